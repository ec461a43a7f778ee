package types

import "strings"

// InputRow is an ordered mapping from column name to string cell, backed by
// a shared Header for O(1) lookup. The column set of every InputRow in a
// file equals the file's header set.
type InputRow struct {
	header *Header
	cells  []string
}

// NewInputRow builds an InputRow against header. cells must be the same
// length as header.Len(); callers pad ragged rows before constructing.
func NewInputRow(header *Header, cells []string) *InputRow {
	return &InputRow{header: header, cells: cells}
}

// Header returns the row's shared column header.
func (r *InputRow) Header() *Header { return r.header }

// Get returns the cell for col, or "" if col is not a known column.
func (r *InputRow) Get(col string) string {
	if i, ok := r.header.IndexOf(col); ok && i < len(r.cells) {
		return r.cells[i]
	}
	return ""
}

// Set writes the cell for col. col must already exist in the row's header.
func (r *InputRow) Set(col, value string) {
	if i, ok := r.header.IndexOf(col); ok {
		r.cells[i] = value
	}
}

// Cells returns the raw cell slice in header order. Callers must not mutate
// it except through Set.
func (r *InputRow) Cells() []string { return r.cells }

// WithHeader reparents the row onto a wider header (e.g. after the Status
// column is appended), padding the new trailing cell with "".
func (r *InputRow) WithHeader(h *Header) *InputRow {
	if h.Len() == len(r.cells) {
		return &InputRow{header: h, cells: r.cells}
	}
	cells := make([]string, h.Len())
	copy(cells, r.cells)
	return &InputRow{header: h, cells: cells}
}

// IsDone reports whether the Status cell equals "done", case-insensitive
// and trimmed.
func (r *InputRow) IsDone() bool {
	return normalizeStatus(r.Get(StatusColumn)) == StatusDone
}

// MarkDone sets the Status cell to the canonical "done" literal.
func (r *InputRow) MarkDone() {
	r.Set(StatusColumn, StatusDone)
}

// OutputRow is an ordered mapping from output column to string cell. The
// column set is fixed per tool (types.OutputRow.Columns never varies within
// a run).
type OutputRow struct {
	Columns []string
	Values  map[string]string
}

// NewOutputRow creates an empty OutputRow over the given fixed columns.
func NewOutputRow(columns []string) *OutputRow {
	return &OutputRow{
		Columns: columns,
		Values:  make(map[string]string, len(columns)),
	}
}

// Set assigns a cell value. col need not be declared in Columns up front,
// but only declared columns are rendered by Render.
func (o *OutputRow) Set(col, value string) {
	o.Values[col] = value
}

// Render returns the row's cells in column order, substituting "" for any
// unset column. Cells vulnerable to spreadsheet formula injection are
// rewritten per FormulaGuard.
func (o *OutputRow) Render() []string {
	cells, _ := o.RenderGuarded()
	return cells
}

// RenderGuarded returns the row's cells in column order alongside a
// parallel forceQuote slice: forceQuote[i] is true when cells[i] must be
// emitted with explicit CSV quoting even though it contains no comma,
// quote, or newline, per the formula-injection defense.
func (o *OutputRow) RenderGuarded() (cells []string, forceQuote []bool) {
	cells = make([]string, len(o.Columns))
	forceQuote = make([]bool, len(o.Columns))
	for i, col := range o.Columns {
		raw := o.Values[col]
		if NeedsFormulaGuard(raw) {
			cells[i] = FormulaGuard(raw)
			forceQuote[i] = true
		} else {
			cells[i] = raw
		}
	}
	return cells, forceQuote
}

// formulaLeadChars are the leading characters that spreadsheet software
// interprets as a formula prefix. Any output cell starting with one of
// these must be neutralized before being written to CSV.
const formulaLeadChars = "+-=@"

// NeedsFormulaGuard reports whether s would be interpreted as a spreadsheet
// formula by Excel/Sheets if written verbatim.
func NeedsFormulaGuard(s string) bool {
	return s != "" && strings.ContainsRune(formulaLeadChars, rune(s[0]))
}

// FormulaGuard prefixes s with a leading "=" wrapping the original value in
// an escaped string literal, so spreadsheet software renders it as literal
// text instead of evaluating it. The CSV writer quotes the cell in addition.
func FormulaGuard(s string) string {
	if !NeedsFormulaGuard(s) {
		return s
	}
	return "=\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
}
