// Package metricsexport serves the Job Runner's metrics as a Prometheus
// scrape endpoint, grounded in vjache-cie's cmd/cie use of
// github.com/prometheus/client_golang: a promhttp.Handler mounted on
// /metrics behind a dedicated HTTP server, started only when an address is
// configured and stopped alongside the rest of the run.
package metricsexport

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pithecus-labs/creditrunner/runner"
)

// Exporter mirrors a runner.Metrics snapshot into Prometheus collectors and
// serves them on /metrics. A nil *Exporter is valid and every method
// becomes a no-op, so callers can construct one unconditionally from an
// optional config field.
type Exporter struct {
	srv *http.Server

	processed  prometheus.Counter
	skipped    prometheus.Counter
	succeeded  prometheus.Counter
	noMatch    prometheus.Counter
	failed     prometheus.Counter
	total      prometheus.Gauge
	active     prometheus.Gauge
	banned     prometheus.Gauge
	remaining  prometheus.Gauge
	rowIndex   prometheus.Gauge
	lastCounts runner.Metrics
}

// New builds an Exporter registered against its own prometheus.Registry,
// isolated from the global DefaultRegisterer so repeated runs in the same
// process (tests, a future daemon mode) never collide on duplicate
// registration. It does not start listening; call Start for that.
func New() *Exporter {
	reg := prometheus.NewRegistry()
	e := &Exporter{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditrunner_processed_total",
			Help: "Rows processed so far, including skipped and failed rows.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditrunner_skipped_done_total",
			Help: "Rows skipped because they were already marked done on a prior run.",
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditrunner_succeeded_total",
			Help: "Rows that completed with at least one output row.",
		}),
		noMatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditrunner_no_match_total",
			Help: "Rows that completed successfully with zero output rows.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditrunner_failed_total",
			Help: "Rows that failed permanently.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditrunner_rows_total",
			Help: "Total rows in the input file for the current run.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditrunner_active_credentials",
			Help: "Credentials in the wallet that are not banned.",
		}),
		banned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditrunner_banned_credentials",
			Help: "Credentials retired for auth, billing, or quota failures.",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditrunner_remaining_credits",
			Help: "Sum of remaining call budget across all active credentials.",
		}),
		rowIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditrunner_current_row_index",
			Help: "Cursor position in the input file.",
		}),
	}
	reg.MustRegister(e.processed, e.skipped, e.succeeded, e.noMatch, e.failed,
		e.total, e.active, e.banned, e.remaining, e.rowIndex)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return e
}

// Start listens on addr in a background goroutine. onError, if non-nil, is
// called with any error other than http.ErrServerClosed once the listener
// exits. Start returns immediately; it does not block on the listener.
func (e *Exporter) Start(addr string, onError func(error)) {
	if e == nil {
		return
	}
	e.srv.Addr = addr
	go func() {
		if err := e.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// Observe updates the exporter's gauges from m and advances its counters by
// the delta since the last Observe call. runner.Metrics reports cumulative
// totals, so Observe tracks the previously seen values to derive increments
// for the Counter types Prometheus expects.
func (e *Exporter) Observe(m runner.Metrics) {
	if e == nil {
		return
	}
	e.processed.Add(float64(m.Processed - e.lastCounts.Processed))
	e.skipped.Add(float64(m.SkippedDone - e.lastCounts.SkippedDone))
	e.succeeded.Add(float64(m.Succeeded - e.lastCounts.Succeeded))
	e.noMatch.Add(float64(m.NoMatch - e.lastCounts.NoMatch))
	e.failed.Add(float64(m.Failed - e.lastCounts.Failed))
	e.lastCounts = m

	e.total.Set(float64(m.Total))
	e.active.Set(float64(m.ActiveCredentials))
	e.banned.Set(float64(m.BannedCredentials))
	e.remaining.Set(float64(m.RemainingCredits))
	e.rowIndex.Set(float64(m.CurrentRowIndex))
}

// Stop shuts down the HTTP listener, if one was started. Safe to call on a
// nil Exporter or one that was never started.
func (e *Exporter) Stop(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.srv.Shutdown(ctx)
}
