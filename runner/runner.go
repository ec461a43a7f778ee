// Package runner implements the Job Runner: the scheduler that pulls input
// rows, selects a credential, enforces the rate envelope, dispatches to an
// Actor Driver, and checkpoints progress. The worker pool is a fixed set of
// goroutines sharing one cursor behind atomic counters, rather than a
// dynamically-enqueued work queue, since the Job Runner's input is a
// fixed-size CSV known up front.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pithecus-labs/creditrunner/cancel"
	"github.com/pithecus-labs/creditrunner/csvstore"
	"github.com/pithecus-labs/creditrunner/driver"
	"github.com/pithecus-labs/creditrunner/governor"
	"github.com/pithecus-labs/creditrunner/registry"
	"github.com/pithecus-labs/creditrunner/types"
	"github.com/pithecus-labs/creditrunner/wallet"
)

// Run lifecycle phases, mirrored verbatim by the Reporter's status events.
const (
	PhaseStart      = "start"
	PhaseRunning    = "running"
	PhaseCancelling = "cancelling"
	PhaseDone       = "done"
	PhaseStopped    = "stopped"
	PhaseError      = "error"
)

// Metrics is the Reporter's metrics object, snapshot once per row
// completion.
type Metrics struct {
	Total                 int64
	Processed             int64
	SkippedDone           int64
	Succeeded             int64
	NoMatch               int64
	Failed                int64
	ActiveCredentials     int
	BannedCredentials     int
	RemainingCredits      int
	CurrentRowIndex       int
	LastCredentialShortID string
}

// Reporter receives the Job Runner's log, status, and metrics events. A
// nil Reporter is never passed; New requires one. Implementations must not
// block — the worker pool calls these inline on the row-completion path.
type Reporter interface {
	Log(level, message string)
	Status(phase string)
	Metrics(m Metrics)
}

// Config carries the Job Runner's tunables. The rate and retry knobs live
// in the Governor and Driver respectively; Config only holds what the
// runner itself consults.
type Config struct {
	MaxConcurrent int
	ColumnMap     map[string]string

	// RunID, if set, is used as the run's credit-reservation and
	// reporting identity instead of a freshly generated one, so the CLI
	// can share one run identifier across the logger, the Reporter, and
	// the Job Runner.
	RunID string
}

// Runner coordinates the CSV Store, Wallet, Governor, Tool Registry entry,
// and Cancel Controller for a single run.
type Runner struct {
	cfg      Config
	store    *csvstore.Store
	out      *csvstore.OutputWriter
	wallet   *wallet.Wallet
	gov      *governor.Governor
	entry    *registry.Entry
	ctrl     *cancel.Controller
	reporter Reporter

	runID  string
	cursor atomic.Int64
	state  *types.RunState

	cacheMu sync.Mutex
	cache   map[string][]*types.OutputRow

	lastCredMu    sync.Mutex
	lastCredShort string
}

// New builds a Runner over an already-open Store and OutputWriter.
func New(cfg Config, store *csvstore.Store, out *csvstore.OutputWriter, w *wallet.Wallet, gov *governor.Governor, entry *registry.Entry, ctrl *cancel.Controller, reporter Reporter) *Runner {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		out:      out,
		wallet:   w,
		gov:      gov,
		entry:    entry,
		ctrl:     ctrl,
		reporter: reporter,
		runID:    runID,
		state:    types.NewRunState(int64(store.Len())),
		cache:    make(map[string][]*types.OutputRow),
	}
}

// RunID returns the identifier this run reserves credit under.
func (r *Runner) RunID() string { return r.runID }

// Run launches the worker pool and blocks until every row has been picked
// or the Cancel Controller fires. It never returns an error itself — row
// and I/O failures are reported through the Reporter and reflected in the
// final metrics snapshot.
func (r *Runner) Run(ctx context.Context) {
	r.emitStatus(PhaseStart)
	r.emitMetrics()

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx)
		}()
	}
	wg.Wait()

	if r.ctrl.Cancelled() {
		r.state.Cancelling.Store(true)
		r.emitMetrics()
		r.emitStatus(PhaseStopped)
		return
	}
	r.emitStatus(PhaseDone)
}

// worker runs the per-row state machine until the shared cursor is
// exhausted or cancellation is observed. It holds no in-flight reservation
// across iterations, so exiting here always leaves the wallet balanced.
func (r *Runner) worker(ctx context.Context) {
	for {
		row, ok := r.nextRow()
		if !ok {
			return
		}
		r.processRow(ctx, row)
	}
}

// nextRow advances the shared cursor, skipping rows already marked done.
// Skipped rows are counted as processed without ever reaching the driver.
func (r *Runner) nextRow() (*types.InputRow, bool) {
	for {
		if r.ctrl.Cancelled() {
			return nil, false
		}
		idx := int(r.cursor.Add(1) - 1)
		if idx >= r.store.Len() {
			return nil, false
		}
		row := r.store.Rows()[idx]
		if row.IsDone() {
			r.state.SkippedDone.Add(1)
			r.state.Processed.Add(1)
			r.emitMetrics()
			continue
		}
		return row, true
	}
}

// processRow drives one row through PickItem → AcquireRate → ReserveCredit
// → DriverCall and its branches, retrying against a fresh credential on
// authInvalid/billing/quotaExhausted without re-entering the row cursor.
func (r *Runner) processRow(ctx context.Context, row *types.InputRow) {
	r.state.Active.Add(1)
	defer r.state.Active.Add(-1)

	item, skipReason, panicMsg := r.safeBuildRequest(row)
	if panicMsg != "" {
		r.failRow(row, string(driver.ClientError), "panic in BuildRequest: "+panicMsg)
		return
	}
	if skipReason != "" {
		r.failRow(row, "parseError", string(skipReason))
		return
	}
	if item.Key == "" {
		r.skipEmptyKey(row)
		return
	}

	if cached, hit := r.cacheLookup(item.Key); hit {
		r.writeRows(cached)
		r.finishProcessed(row, cached)
		return
	}

	for {
		if r.ctrl.Cancelled() {
			return
		}

		permit, err := r.gov.Acquire(ctx)
		if err != nil {
			return
		}

		inflight := r.wallet.Reserve(r.runID, item.EstimatedCost)
		if inflight == nil {
			permit.Release()
			r.failRow(row, "noCredits", "no credential with remaining credits")
			return
		}

		cred, ok := r.wallet.CredentialByID(inflight.CredentialID)
		if !ok {
			permit.Release()
			_ = r.wallet.Refund(inflight)
			r.failRow(row, "walletError", "reserved credential vanished")
			return
		}
		r.setLastCredential(cred.ID)

		result, callErr := r.entry.Driver.Call(ctx, &cred, item.Request, item.EstimatedCost)
		permit.Release()

		if callErr != nil || result.Classification == driver.Cancelled {
			_ = r.wallet.Refund(inflight)
			return
		}

		switch result.Classification {
		case driver.Success:
			_ = r.wallet.Commit(inflight, result.CostActual)
			outRows, panicMsg := r.safeBuildOutputRows(row, result.Parsed)
			if panicMsg != "" {
				r.failRow(row, string(driver.ClientError), "panic in BuildOutputRows: "+panicMsg)
				return
			}
			r.writeRows(outRows)
			r.cacheStore(item.Key, outRows)
			r.finishProcessed(row, outRows)
			return

		case driver.AuthInvalid:
			_ = r.wallet.Retire(inflight, wallet.RetireInvalidAuth, "authentication rejected")
			r.emitLog("warn", fmt.Sprintf("credential %s retired: authInvalid", cred.TokenHint()))
			continue

		case driver.Billing:
			_ = r.wallet.Retire(inflight, wallet.RetireBilling, "billing error")
			r.emitLog("warn", fmt.Sprintf("credential %s retired: billing", cred.TokenHint()))
			continue

		case driver.QuotaExhausted:
			_ = r.wallet.Retire(inflight, wallet.RetireQuotaExhausted, "quota exhausted")
			r.emitLog("warn", fmt.Sprintf("credential %s retired: quotaExhausted", cred.TokenHint()))
			continue

		default: // clientError, fatal, and transient-after-retries-exhausted
			if result.CostActual >= 1 {
				_ = r.wallet.Commit(inflight, result.CostActual)
			} else {
				_ = r.wallet.Refund(inflight)
			}
			r.failRow(row, string(result.Classification), fmt.Sprintf("http status %d", result.HTTPStatus))
			return
		}
	}
}

func (r *Runner) skipEmptyKey(row *types.InputRow) {
	row.MarkDone()
	if err := r.store.Checkpoint(); err != nil {
		r.emitLog("error", "checkpoint failed: "+err.Error())
	}
	r.state.SkippedDone.Add(1)
	r.state.Processed.Add(1)
	r.emitMetrics()
}

// safeBuildRequest calls entry.BuildRequest guarded by recover, so a
// panicking mapper fails only the current row instead of crashing the
// worker.
func (r *Runner) safeBuildRequest(row *types.InputRow) (item *types.WorkItem, skip registry.SkipReason, panicMsg string) {
	defer func() {
		if p := recover(); p != nil {
			panicMsg = fmt.Sprintf("%v", p)
		}
	}()
	item, skip = r.entry.BuildRequest(row, r.cfg.ColumnMap)
	return
}

// safeBuildOutputRows calls entry.BuildOutputRows guarded by recover, for
// the same reason as safeBuildRequest.
func (r *Runner) safeBuildOutputRows(row *types.InputRow, parsed any) (rows []*types.OutputRow, panicMsg string) {
	defer func() {
		if p := recover(); p != nil {
			panicMsg = fmt.Sprintf("%v", p)
		}
	}()
	rows = r.entry.BuildOutputRows(row, parsed)
	return
}

// finishProcessed marks row done, checkpoints, and classifies the row as
// succeeded or noMatch depending on whether the driver produced any output
// rows — a valid "not found" business answer still counts as success at
// the driver level but as noMatch in run metrics.
func (r *Runner) finishProcessed(row *types.InputRow, outRows []*types.OutputRow) {
	row.MarkDone()
	if err := r.store.Checkpoint(); err != nil {
		r.emitLog("error", "checkpoint failed: "+err.Error())
	}
	if len(outRows) == 0 {
		r.state.NoMatch.Add(1)
	} else {
		r.state.Succeeded.Add(1)
	}
	r.state.Processed.Add(1)
	r.emitMetrics()
}

// failRow writes a failure row (kind-specific columns empty, error columns
// filled), marks the input row done, and checkpoints. Failures are not
// retried across runs.
func (r *Runner) failRow(row *types.InputRow, errStatus, errMessage string) {
	outRow := types.NewOutputRow(r.entry.OutputColumns)
	outRow.Set("Error Status", errStatus)
	outRow.Set("Error Message", errMessage)
	r.writeRows([]*types.OutputRow{outRow})

	row.MarkDone()
	if err := r.store.Checkpoint(); err != nil {
		r.emitLog("error", "checkpoint failed: "+err.Error())
	}
	r.state.Failed.Add(1)
	r.state.Processed.Add(1)
	r.emitMetrics()
}

func (r *Runner) writeRows(rows []*types.OutputRow) {
	for _, row := range rows {
		if err := r.out.WriteRow(row); err != nil {
			r.emitLog("error", "output write failed: "+err.Error())
		}
	}
}

func (r *Runner) cacheLookup(key string) ([]*types.OutputRow, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	rows, ok := r.cache[key]
	return rows, ok
}

func (r *Runner) cacheStore(key string, rows []*types.OutputRow) {
	r.cacheMu.Lock()
	r.cache[key] = rows
	r.cacheMu.Unlock()
}

func (r *Runner) setLastCredential(id string) {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	r.lastCredMu.Lock()
	r.lastCredShort = short
	r.lastCredMu.Unlock()
}

func (r *Runner) emitLog(level, msg string) {
	if r.reporter != nil {
		r.reporter.Log(level, msg)
	}
}

func (r *Runner) emitStatus(phase string) {
	if r.reporter != nil {
		r.reporter.Status(phase)
	}
}

func (r *Runner) emitMetrics() {
	if r.reporter == nil {
		return
	}
	snap := r.state.Snapshot()
	wsnap := r.wallet.Snapshot()

	r.lastCredMu.Lock()
	lastCred := r.lastCredShort
	r.lastCredMu.Unlock()

	r.reporter.Metrics(Metrics{
		Total:                 snap.Total,
		Processed:             snap.Processed,
		SkippedDone:           snap.SkippedDone,
		Succeeded:             snap.Succeeded,
		NoMatch:               snap.NoMatch,
		Failed:                snap.Failed,
		ActiveCredentials:     wsnap.Active,
		BannedCredentials:     wsnap.Banned,
		RemainingCredits:      wsnap.TotalRemaining,
		CurrentRowIndex:       int(r.cursor.Load()),
		LastCredentialShortID: lastCred,
	})
}

// Snapshot exposes the run's current counters for callers outside the
// Reporter path (e.g. the Completion Adapter at run end).
func (r *Runner) Snapshot() types.RunSnapshot { return r.state.Snapshot() }
