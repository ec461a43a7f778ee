// Package httpdriver implements driver.Driver over net/http: the reference
// Actor Driver shipped with this repo. Its retry/backoff loop is grounded
// in the completion adapters' webhook POST retry pattern, adapted to the
// classification taxonomy the Job Runner expects instead of a binary
// retriable/non-retriable split.
package httpdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pithecus-labs/creditrunner/driver"
	"github.com/pithecus-labs/creditrunner/iox"
	"github.com/pithecus-labs/creditrunner/types"
)

// DefaultCallTimeout is the per-attempt wall-clock budget.
const DefaultCallTimeout = 120 * time.Second

// Config configures the HTTP reference driver.
type Config struct {
	// Endpoint is the third-party API URL (required).
	Endpoint string
	// Method defaults to POST.
	Method string
	// RetryMax bounds attempts on a Transient classification (default 5).
	RetryMax int
	// CallTimeout bounds each individual attempt (default 120s).
	CallTimeout time.Duration
}

// responseEnvelope is the minimal shape httpdriver expects back from the
// third party: a cost figure and an optional explicit error signal.
type responseEnvelope struct {
	Cost  int    `json:"cost"`
	Error string `json:"error"`
}

// Driver performs one call per invocation of Call, retrying internally on
// Transient classifications up to RetryMax with exponential backoff
// min(15000ms, 750*2^attempt).
type Driver struct {
	cfg    Config
	client *http.Client
}

// New builds an httpdriver.Driver. Returns an error if Endpoint is empty.
func New(cfg Config) (*Driver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("httpdriver: endpoint is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Driver{
		cfg:    cfg,
		client: &http.Client{},
	}, nil
}

// Call implements driver.Driver.
func (d *Driver) Call(ctx context.Context, credential *types.Credential, request map[string]string, estimatedCost int) (driver.Result, error) {
	var lastResult driver.Result
	var lastErr error

	for attempt := 0; attempt <= d.cfg.RetryMax; attempt++ {
		if ctx.Err() != nil {
			return driver.Result{Classification: driver.Cancelled}, ctx.Err()
		}

		if attempt > 0 {
			backoff := min(15000*time.Millisecond, 750*time.Millisecond*(1<<uint(attempt)))
			select {
			case <-ctx.Done():
				return driver.Result{Classification: driver.Cancelled}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := d.attempt(credential, request, estimatedCost, attempt == d.cfg.RetryMax)
		lastResult, lastErr = result, err

		if result.Classification != driver.Transient {
			return result, err
		}
	}

	return lastResult, lastErr
}

// attempt issues one HTTP call. It deliberately does not derive callCtx from
// the caller's ctx: once a call is in flight it must run to completion and
// have its result honored even if the run is cancelled mid-call, bounding
// cancellation latency at callTimeout instead of aborting work the remote
// may already be billing for.
func (d *Driver) attempt(credential *types.Credential, request map[string]string, estimatedCost int, lastAttempt bool) (driver.Result, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return driver.Result{Classification: driver.ClientError}, fmt.Errorf("httpdriver: marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(context.Background(), d.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, d.cfg.Method, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return driver.Result{Classification: driver.ClientError}, fmt.Errorf("httpdriver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential.Token)

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			if lastAttempt {
				return driver.Result{Classification: driver.ClientError}, fmt.Errorf("httpdriver: call timed out on final attempt: %w", err)
			}
			return driver.Result{Classification: driver.Transient}, err
		}
		return driver.Result{Classification: driver.Transient}, err
	}
	defer iox.DiscardClose(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return driver.Result{Classification: driver.Transient}, fmt.Errorf("httpdriver: read body: %w", err)
	}

	var envelope responseEnvelope
	_ = json.Unmarshal(respBody, &envelope)
	var parsed any
	_ = json.Unmarshal(respBody, &parsed)

	return classify(resp.StatusCode, respBody, envelope, parsed, estimatedCost), nil
}

func classify(status int, body []byte, envelope responseEnvelope, parsed any, estimatedCost int) driver.Result {
	cost := envelope.Cost
	if cost <= 0 {
		cost = estimatedCost
	}

	base := driver.Result{
		HTTPStatus: status,
		Body:       body,
		Parsed:     parsed,
		CostActual: cost,
	}

	switch {
	case status == 429 || status >= 500:
		base.Classification = driver.Transient
	case status == 401 || status == 403:
		base.Classification = driver.AuthInvalid
	case status == 402 || envelope.Error == "billing" || envelope.Error == "insufficient funds":
		base.Classification = driver.Billing
	case envelope.Error == "quota_exceeded":
		base.Classification = driver.QuotaExhausted
	case status >= 400:
		base.Classification = driver.ClientError
	default:
		base.OK = true
		if base.CostActual < 1 {
			base.CostActual = 1
		}
		base.Classification = driver.Success
	}

	return base
}

// Close releases idle connections.
func (d *Driver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

var _ driver.Driver = (*Driver)(nil)
