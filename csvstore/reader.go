// Package csvstore implements the CSV input/output contract: RFC4180-ish
// reading with BOM stripping and duplicate-header suffixing, atomic
// checkpoint rewrite of the input file after each completed row, and a
// lazy-opened, formula-injection-guarded output append writer.
package csvstore

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/pithecus-labs/creditrunner/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IoError wraps a read/write failure against the input or output file.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string { return fmt.Sprintf("io error on %s: %v", e.Path, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// CsvError signals malformed quoting or a ragged row with more cells than
// the header declares.
type CsvError struct {
	RowIndex int
	Err      error
}

func (e *CsvError) Error() string {
	return fmt.Sprintf("csv error at row %d: %v", e.RowIndex, e.Err)
}
func (e *CsvError) Unwrap() error { return e.Err }

// readAll parses path into a Header and ordered InputRow slice. Ragged rows
// with fewer cells than the header are padded with "". Rows with more
// cells than the header is an error.
func readAll(path string) (*types.Header, []*types.InputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &IoError{Path: path, Err: err}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	peek, _ := br.Peek(3)
	if bytes.Equal(peek, utf8BOM) {
		_, _ = br.Discard(3)
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = false

	headerCells, err := r.Read()
	if err == io.EOF {
		return types.NewHeader(nil), nil, nil
	}
	if err != nil {
		return nil, nil, &CsvError{RowIndex: 0, Err: err}
	}
	header := types.NewHeader(headerCells)

	var rows []*types.InputRow
	idx := 0
	for {
		idx++
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &CsvError{RowIndex: idx, Err: err}
		}
		if len(cells) > header.Len() {
			return nil, nil, &CsvError{RowIndex: idx, Err: fmt.Errorf("row has %d cells, header has %d", len(cells), header.Len())}
		}
		if len(cells) < header.Len() {
			padded := make([]string, header.Len())
			copy(padded, cells)
			cells = padded
		}
		rows = append(rows, types.NewInputRow(header, cells))
	}

	return header, rows, nil
}
