package csvstore

import (
	"os"
	"path/filepath"

	"github.com/pithecus-labs/creditrunner/types"
)

// Store owns the input CSV's in-memory row model and checkpoints it back
// to disk atomically. All checkpoint requests are funneled through a
// single serialized writer goroutine so that concurrent workers never
// produce a torn file.
type Store struct {
	path   string
	header *types.Header
	rows   []*types.InputRow

	checkpointReq chan chan error
	done          chan struct{}
}

// Open reads path into memory, stripping a BOM if present and adding a
// Status column (rewriting the file once) if the header lacks one.
func Open(path string) (*Store, error) {
	header, rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	return open(path, header, rows)
}

// OpenWithRows builds a Store over already-parsed header and rows, skipping
// the CSV read entirely. The Resume Cache uses this to reconstruct a Store
// from a prior run's cached parse without re-reading the input file.
func OpenWithRows(path string, header *types.Header, rows []*types.InputRow) (*Store, error) {
	return open(path, header, rows)
}

func open(path string, header *types.Header, rows []*types.InputRow) (*Store, error) {
	s := &Store{
		path:          path,
		header:        header,
		rows:          rows,
		checkpointReq: make(chan chan error),
		done:          make(chan struct{}),
	}
	go s.writerLoop()

	if !header.HasColumn(types.StatusColumn) {
		widened := header.WithAppended(types.StatusColumn)
		s.header = widened
		for i, row := range rows {
			rows[i] = row.WithHeader(widened)
		}
		s.rows = rows
		if err := s.rewrite(); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// Header returns the store's current (possibly widened) header.
func (s *Store) Header() *types.Header { return s.header }

// Rows returns the in-memory row slice in file order. Callers mutate cells
// through the row's own Set/MarkDone methods; Checkpoint persists.
func (s *Store) Rows() []*types.InputRow { return s.rows }

// Len returns the number of data rows (excluding header).
func (s *Store) Len() int { return len(s.rows) }

// Checkpoint rewrites the entire input file to disk, reflecting whatever
// in-place mutations callers have already made to the row slice. Requests
// are serialized through a single writer goroutine to guarantee
// linearizable writes across concurrent workers.
func (s *Store) Checkpoint() error {
	reply := make(chan error, 1)
	select {
	case s.checkpointReq <- reply:
	case <-s.done:
		return nil
	}
	return <-reply
}

// Close stops the writer goroutine. Safe to call once.
func (s *Store) Close() {
	close(s.done)
}

func (s *Store) writerLoop() {
	for {
		select {
		case reply := <-s.checkpointReq:
			reply <- s.rewrite()
		case <-s.done:
			return
		}
	}
}

// rewrite serializes the current row model to a sibling temp file, fsyncs
// it, and renames it over the original. No column is dropped or reordered.
func (s *Store) rewrite() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".csvstore-*.tmp")
	if err != nil {
		return &IoError{Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := newBufWriter(tmp)
	if err := writeCSVLine(w, s.header.Columns(), nil); err != nil {
		tmp.Close()
		return &IoError{Path: s.path, Err: err}
	}
	for _, row := range s.rows {
		if err := writeCSVLine(w, row.Cells(), nil); err != nil {
			tmp.Close()
			return &IoError{Path: s.path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &IoError{Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &IoError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IoError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return &IoError{Path: s.path, Err: err}
	}
	return nil
}
