package csvstore

import (
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via a sibling temp file, fsync, and
// rename, so a killed process never observes a half-written file. Shared
// by the Credential Wallet for its own persisted snapshots.
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".csvstore-*.tmp")
	if err != nil {
		return &IoError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IoError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &IoError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IoError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &IoError{Path: path, Err: err}
	}
	return nil
}
