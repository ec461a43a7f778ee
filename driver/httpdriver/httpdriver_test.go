package httpdriver

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pithecus-labs/creditrunner/driver"
	"github.com/pithecus-labs/creditrunner/types"
)

func testCredential() *types.Credential {
	return &types.Credential{ID: "cred-1", Token: "secret-token", Remaining: 100, Limit: 100}
}

func TestCall_SuccessClassification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"cost":1}`))
	}))
	defer ts.Close()

	d, err := New(Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Classification != driver.Success || !result.OK || result.CostActual != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestCall_RetriesTransientThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"cost":1}`))
	}))
	defer ts.Close()

	d, err := New(Config{Endpoint: ts.URL, RetryMax: 5})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Classification != driver.Success {
		t.Errorf("expected eventual success, got %s", result.Classification)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestCall_AuthInvalidDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	d, err := New(Config{Endpoint: ts.URL, RetryMax: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Classification != driver.AuthInvalid {
		t.Errorf("expected authInvalid, got %s", result.Classification)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestCall_BillingClassification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer ts.Close()

	d, _ := New(Config{Endpoint: ts.URL})
	result, _ := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if result.Classification != driver.Billing {
		t.Errorf("expected billing, got %s", result.Classification)
	}
}

func TestCall_QuotaExhaustedClassification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":"quota_exceeded"}`))
	}))
	defer ts.Close()

	d, _ := New(Config{Endpoint: ts.URL})
	result, _ := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if result.Classification != driver.QuotaExhausted {
		t.Errorf("expected quotaExhausted, got %s", result.Classification)
	}
}

func TestCall_ClientErrorDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	d, _ := New(Config{Endpoint: ts.URL, RetryMax: 3})
	result, _ := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if result.Classification != driver.ClientError {
		t.Errorf("expected clientError, got %s", result.Classification)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestCall_ExhaustsRetriesOnPersistentTransient(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d, _ := New(Config{Endpoint: ts.URL, RetryMax: 2})
	result, _ := d.Call(t.Context(), testCredential(), map[string]string{"key": "x"}, 1)
	if result.Classification != driver.Transient {
		t.Errorf("expected transient after exhausting retries, got %s", result.Classification)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 1 initial + 2 retries = 3 attempts, got %d", got)
	}
}

func TestNew_RequiresEndpoint(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestNew_Defaults(t *testing.T) {
	d, err := New(Config{Endpoint: "http://example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d.cfg.RetryMax != 5 {
		t.Errorf("expected default retryMax 5, got %d", d.cfg.RetryMax)
	}
	if d.cfg.CallTimeout != DefaultCallTimeout {
		t.Errorf("expected default call timeout, got %v", d.cfg.CallTimeout)
	}
}
