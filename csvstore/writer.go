package csvstore

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pithecus-labs/creditrunner/types"
)

func newBufWriter(f io.Writer) *bufio.Writer { return bufio.NewWriter(f) }

// OutputWriter is a lazy-opened, append-only CSV writer. The header is
// written on the first row; every write is flushed before returning so a
// killed process never loses a completed row.
type OutputWriter struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	opened bool
}

// NewOutputWriter returns a writer that opens path lazily on the first
// WriteRow call.
func NewOutputWriter(path string) *OutputWriter {
	return &OutputWriter{path: path}
}

// WriteRow appends row to the output file, writing the header first if
// this is the first row written to a new file.
func (w *OutputWriter) WriteRow(row *types.OutputRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.opened {
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return &IoError{Path: w.path, Err: err}
		}
		info, statErr := f.Stat()
		w.file = f
		w.writer = bufio.NewWriter(f)
		w.opened = true
		if statErr == nil && info.Size() == 0 {
			if err := writeCSVLine(w.writer, row.Columns, headerForceQuote(row.Columns)); err != nil {
				return &IoError{Path: w.path, Err: err}
			}
		}
	}

	cells, forceQuote := row.RenderGuarded()
	if err := writeCSVLine(w.writer, cells, forceQuote); err != nil {
		return &IoError{Path: w.path, Err: err}
	}
	if err := w.writer.Flush(); err != nil {
		return &IoError{Path: w.path, Err: err}
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file, if it was ever opened.
func (w *OutputWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.opened {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

func headerForceQuote(cols []string) []bool {
	return make([]bool, len(cols))
}

// writeCSVLine writes one RFC4180 record. A cell is quoted when it
// contains a comma, quote, CR, or LF, or when forceQuote marks it
// (the formula-injection defense requires explicit quoting even for
// cells that would not otherwise need it).
func writeCSVLine(w *bufio.Writer, cells []string, forceQuote []bool) error {
	for i, cell := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		quote := forceQuote != nil && forceQuote[i]
		if !quote {
			quote = strings.ContainsAny(cell, ",\"\r\n")
		}
		if quote {
			if _, err := w.WriteString(`"`); err != nil {
				return err
			}
			if _, err := w.WriteString(strings.ReplaceAll(cell, `"`, `""`)); err != nil {
				return err
			}
			if _, err := w.WriteString(`"`); err != nil {
				return err
			}
		} else {
			if _, err := w.WriteString(cell); err != nil {
				return err
			}
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
