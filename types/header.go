// Package types defines the core domain types shared across the credit
// runner: the CSV row model, work items, credentials, and run state.
package types

import (
	"strconv"
	"strings"
)

// StatusColumn is the distinguished column name that tracks row completion.
const StatusColumn = "Status"

// StatusDone is the literal value a closed row's Status cell holds.
const StatusDone = "done"

// Header describes an ordered, deduplicated set of CSV columns and
// provides O(1) name-to-index lookup.
type Header struct {
	columns []string
	index   map[string]int
}

// NewHeader builds a Header from raw column names, suffixing duplicates
// deterministically ("Name", "Name (2)", "Name (3)", ...).
func NewHeader(names []string) *Header {
	h := &Header{
		columns: make([]string, 0, len(names)),
		index:   make(map[string]int, len(names)),
	}
	seen := make(map[string]int, len(names))
	for _, name := range names {
		final := name
		if n, ok := seen[name]; ok {
			n++
			seen[name] = n
			final = name + " (" + strconv.Itoa(n+1) + ")"
		} else {
			seen[name] = 0
		}
		h.index[final] = len(h.columns)
		h.columns = append(h.columns, final)
	}
	return h
}

// Columns returns the ordered column names. The returned slice must not be
// mutated by callers.
func (h *Header) Columns() []string { return h.columns }

// Len returns the number of columns.
func (h *Header) Len() int { return len(h.columns) }

// IndexOf returns the column index and whether it exists.
func (h *Header) IndexOf(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// HasColumn reports whether name is a known column.
func (h *Header) HasColumn(name string) bool {
	_, ok := h.index[name]
	return ok
}

// WithAppended returns a new Header with name appended, unless it already
// exists (in which case the receiver's columns are returned unchanged).
// Used to add the Status column per the CSV Store contract.
func (h *Header) WithAppended(name string) *Header {
	if h.HasColumn(name) {
		return h
	}
	cols := make([]string, len(h.columns)+1)
	copy(cols, h.columns)
	cols[len(h.columns)] = name
	return NewHeader(cols)
}

// normalizeStatus trims and lowercases a Status cell for comparison, per
// the InputRow invariant that Status comparison is case-insensitive.
func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
