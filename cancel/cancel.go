// Package cancel implements the Cancel Controller: a single monotonic
// cancel token triggered by SIGINT, SIGTERM, or the existence of a
// configured stop-flag file, observed via a cancellable context.
package cancel

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pithecus-labs/creditrunner/types"
)

// PollInterval is the stop-flag-file existence check cadence.
const PollInterval = 500 * time.Millisecond

// Controller owns the process-wide cancel token.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	reason types.StopCondition
	onStop func(types.StopCondition)
}

// New derives a cancellable context from parent and starts watching for
// SIGINT/SIGTERM. If stopFlagPath is non-empty, it also polls for the
// file's existence at PollInterval. onStop, if non-nil, fires exactly once
// when cancellation is first observed, so the Reporter can emit
// status{phase: cancelling}.
func New(parent context.Context, stopFlagPath string, onStop func(types.StopCondition)) *Controller {
	ctx, cancelFn := context.WithCancel(parent)
	c := &Controller{ctx: ctx, cancel: cancelFn, onStop: onStop}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			c.trigger(types.StopSignal)
		case <-parent.Done():
			c.trigger(types.StopParentCtx)
		case <-ctx.Done():
			if parent.Err() != nil {
				c.trigger(types.StopParentCtx)
			}
		}
		signal.Stop(sigCh)
	}()

	if stopFlagPath != "" {
		go c.watchStopFlag(stopFlagPath)
	}

	return c
}

func (c *Controller) watchStopFlag(path string) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				c.trigger(types.StopFlagFile)
				return
			}
		}
	}
}

func (c *Controller) trigger(reason types.StopCondition) {
	c.mu.Lock()
	already := c.reason != ""
	if !already {
		c.reason = reason
	}
	onStop := c.onStop
	c.mu.Unlock()

	if already {
		return
	}
	if onStop != nil {
		onStop(reason)
	}
	c.cancel()
}

// Context returns the cancel token as a context.Context; Done() fires
// exactly once, on the first cancellation.
func (c *Controller) Context() context.Context { return c.ctx }

// Cancelled reports whether cancellation has been observed.
func (c *Controller) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Reason returns the StopCondition that triggered cancellation, or "" if
// not yet cancelled.
func (c *Controller) Reason() types.StopCondition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Stop releases the signal handler and stop-flag poller goroutines on
// normal completion. It does not record a StopCondition: Reason() stays
// "" unless cancellation was already observed beforehand.
func (c *Controller) Stop() {
	c.cancel()
}
