// Package rcache implements the Resume Cache: a msgpack-encoded shadow of
// a parsed input CSV, keyed by the file's size and modification time, so a
// repeat run against an unchanged file skips re-parsing. Grounded in the
// teacher's ipc frame codec, which uses the same msgpack library for its
// own wire format.
package rcache

import (
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecus-labs/creditrunner/csvstore"
	"github.com/pithecus-labs/creditrunner/types"
)

type cachedFile struct {
	Size    int64               `msgpack:"size"`
	ModTime int64               `msgpack:"modTime"`
	Header  []string            `msgpack:"header"`
	Rows    []map[string]string `msgpack:"rows"`
}

// Load reconstructs a header and row set from cachePath if it matches
// inputPath's current size and modification time. Any mismatch, missing
// file, or decode error reports ok=false; the cache is an optimization,
// never load-bearing, so callers fall back to csvstore.Open in that case.
func Load(cachePath, inputPath string) (header *types.Header, rows []*types.InputRow, ok bool) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, nil, false
	}
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, nil, false
	}

	var cf cachedFile
	if err := msgpack.Unmarshal(data, &cf); err != nil {
		return nil, nil, false
	}
	if cf.Size != info.Size() || cf.ModTime != info.ModTime().UnixNano() {
		return nil, nil, false
	}

	h := types.NewHeader(cf.Header)
	out := make([]*types.InputRow, len(cf.Rows))
	for i, rowMap := range cf.Rows {
		cells := make([]string, h.Len())
		for j, col := range h.Columns() {
			cells[j] = rowMap[col]
		}
		out[i] = types.NewInputRow(h, cells)
	}
	return h, out, true
}

// Save writes a cache entry stamped with inputPath's current size and
// modification time. Errors are the caller's to log at warn; a failed save
// only costs the next run a full re-parse.
func Save(cachePath, inputPath string, header *types.Header, rows []*types.InputRow) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return err
	}

	cf := cachedFile{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		Header:  header.Columns(),
		Rows:    make([]map[string]string, len(rows)),
	}
	for i, row := range rows {
		m := make(map[string]string, header.Len())
		for _, col := range header.Columns() {
			m[col] = row.Get(col)
		}
		cf.Rows[i] = m
	}

	data, err := msgpack.Marshal(cf)
	if err != nil {
		return err
	}
	return csvstore.AtomicWriteFile(cachePath, data)
}
