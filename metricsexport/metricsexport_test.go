package metricsexport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pithecus-labs/creditrunner/runner"
)

func TestObserve_DerivesCounterDeltas(t *testing.T) {
	e := New()
	e.Observe(runner.Metrics{Processed: 3, Succeeded: 2, Failed: 1})
	e.Observe(runner.Metrics{Processed: 5, Succeeded: 3, Failed: 1})

	if got := testutil.ToFloat64(e.processed); got != 5 {
		t.Errorf("processed counter = %v, want 5", got)
	}
	if got := testutil.ToFloat64(e.succeeded); got != 3 {
		t.Errorf("succeeded counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(e.failed); got != 1 {
		t.Errorf("failed counter = %v, want 1", got)
	}
}

func TestObserve_SetsGaugesToLatestValue(t *testing.T) {
	e := New()
	e.Observe(runner.Metrics{Total: 10, RemainingCredits: 42, BannedCredentials: 2})
	if got := testutil.ToFloat64(e.remaining); got != 42 {
		t.Errorf("remaining gauge = %v, want 42", got)
	}
	if got := testutil.ToFloat64(e.banned); got != 2 {
		t.Errorf("banned gauge = %v, want 2", got)
	}
}

func TestMetricsEndpoint_ServesObservedValues(t *testing.T) {
	e := New()
	e.Observe(runner.Metrics{RemainingCredits: 42})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "creditrunner_remaining_credits 42") {
		t.Errorf("expected remaining_credits in body, got: %s", rec.Body.String())
	}
}

func TestNilExporter_MethodsAreNoops(t *testing.T) {
	var e *Exporter
	e.Observe(runner.Metrics{})
	e.Start("127.0.0.1:0", nil)
	if err := e.Stop(context.Background()); err != nil {
		t.Errorf("nil Stop should be a no-op, got %v", err)
	}
}
