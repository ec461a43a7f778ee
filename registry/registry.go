// Package registry implements the Tool Registry: a map from toolId to the
// Actor Driver, row-to-request mapper, and output-row builder that
// together define one backend job.
package registry

import (
	"fmt"
	"strings"

	"github.com/pithecus-labs/creditrunner/driver"
	"github.com/pithecus-labs/creditrunner/types"
)

// SkipReason explains why a row was never turned into a WorkItem.
type SkipReason string

// BuildRequest maps an InputRow plus the configured column map into either
// a WorkItem or a SkipReason. Implementations must be pure and must not
// panic; the Job Runner converts a panic here to a ClientError.
type BuildRequest func(row *types.InputRow, columnMap map[string]string) (*types.WorkItem, SkipReason)

// BuildOutputRows maps one driver response into one or more OutputRows.
// Most tools return exactly one; a "finder" tool that fans a single
// request into N results returns N rows sharing one checkpoint.
type BuildOutputRows func(row *types.InputRow, parsed any) []*types.OutputRow

// Entry is one Tool Registry record.
type Entry struct {
	ToolID          string
	Driver          driver.Driver
	BuildRequest    BuildRequest
	BuildOutputRows BuildOutputRows
	OutputColumns   []string
}

// Registry maps toolId to its Entry.
type Registry struct {
	entries map[string]*Entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds or replaces the entry for toolID.
func (r *Registry) Register(entry *Entry) {
	r.entries[entry.ToolID] = entry
}

// Lookup returns the entry for toolID, or an error if unregistered.
func (r *Registry) Lookup(toolID string) (*Entry, error) {
	e, ok := r.entries[toolID]
	if !ok {
		return nil, fmt.Errorf("registry: unknown toolId %q", toolID)
	}
	return e, nil
}

// NormalizeKey trims and lowercases a natural identifier field, per the
// WorkItem.key invariant.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
