// Package report implements the Reporter: the single-line stdout JSON
// protocol the Job Runner emits log/status/metrics events through, plus a
// structured zap side-channel for anything that should also survive in a
// log file. Emitting is best-effort — a write failure is swallowed so a
// broken pipe on stdout never aborts a run.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/pithecus-labs/creditrunner/log"
	"github.com/pithecus-labs/creditrunner/runner"
)

// Event kinds for the typed stdout protocol.
const (
	KindLog     = "log"
	KindStatus  = "status"
	KindMetrics = "metrics"
)

// legacyPrefix is the deprecated line format a controller may still send
// our way on stdin for replay/testing; emitters SHOULD use the typed form
// instead. ParseLine accepts both.
const legacyPrefix = "::STATE:: "

// Event is the typed shape of every stdout line, and the shape ParseLine
// returns regardless of which wire form it decoded.
type Event struct {
	Kind    string          `json:"type"`
	Level   string          `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  string          `json:"status,omitempty"`
	Metrics *runner.Metrics `json:"metrics,omitempty"`
}

// ParseLine decodes one stdout protocol line, accepting both the typed
// JSON form and the legacy "::STATE:: {json}" form a controller may still
// emit for older per-tool scripts.
func ParseLine(line string) (*Event, error) {
	payload := line
	if len(line) > len(legacyPrefix) && line[:len(legacyPrefix)] == legacyPrefix {
		payload = line[len(legacyPrefix):]
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("report: invalid protocol line: %w", err)
	}
	return &ev, nil
}

// Reporter writes the stdout line protocol and mirrors log events to a
// structured zap logger. It implements runner.Reporter.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	logger  *log.Logger
	lastMet *runner.Metrics
}

// New creates a Reporter writing the line protocol to out (os.Stdout in
// production) and mirroring log events to logger.
func New(out io.Writer, logger *log.Logger) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{out: out, logger: logger}
}

// Log emits a log{level, message} line and mirrors it to the zap logger at
// the matching level.
func (r *Reporter) Log(level, message string) {
	r.writeLine(Event{Kind: KindLog, Level: level, Message: message})
	if r.logger == nil {
		return
	}
	switch level {
	case "warn":
		r.logger.Warn(message, nil)
	case "error":
		r.logger.Error(message, nil)
	default:
		r.logger.Info(message, nil)
	}
}

// Status emits a status{phase, metrics?} line. The most recently seen
// Metrics snapshot is attached for the cancelling and terminal phases, where a consumer
// is most likely to be polling for a final read rather than tailing every
// line.
func (r *Reporter) Status(phase string) {
	r.mu.Lock()
	var met *runner.Metrics
	switch phase {
	case runner.PhaseCancelling, runner.PhaseDone, runner.PhaseStopped, runner.PhaseError:
		met = r.lastMet
	}
	r.mu.Unlock()
	r.writeLine(Event{Kind: KindStatus, Status: phase, Metrics: met})
}

// Metrics emits a standalone metrics{...} line and caches it for the next
// terminal Status call.
func (r *Reporter) Metrics(m runner.Metrics) {
	r.mu.Lock()
	r.lastMet = &m
	r.mu.Unlock()
	r.writeLine(Event{Kind: KindMetrics, Metrics: &m})
}

func (r *Reporter) writeLine(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data = append(data, '\n')
	_, _ = r.out.Write(data)
}

var _ runner.Reporter = (*Reporter)(nil)
