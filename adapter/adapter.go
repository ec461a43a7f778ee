// Package adapter defines the completion-notification boundary: an optional
// sink that learns a run's outcome exactly once, after the Job Runner
// reaches a terminal state. The run command builds, publishes to, and closes
// the adapter; the Job Runner itself never touches it.
package adapter

import "context"

// RunCompletedEvent is the payload published when a run finishes. It
// mirrors the Reporter's final metrics snapshot.
type RunCompletedEvent struct {
	RunID             string `json:"run_id"`
	ToolID            string `json:"tool_id"`
	Outcome           string `json:"outcome"` // done, stopped, error
	Total             int64  `json:"total"`
	Processed         int64  `json:"processed"`
	SkippedDone       int64  `json:"skipped_done"`
	Succeeded         int64  `json:"succeeded"`
	NoMatch           int64  `json:"no_match"`
	Failed            int64  `json:"failed"`
	ActiveCredentials int    `json:"active_credentials"`
	BannedCredentials int    `json:"banned_credentials"`
	RemainingCredits  int    `json:"remaining_credits"`
	DurationMs        int64  `json:"duration_ms"`
	Timestamp         string `json:"timestamp"` // ISO 8601
}

// Adapter publishes a run completion event to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends the event to the downstream system. Must respect
	// context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
