package internal

import (
	"os"
	"path/filepath"
)

// AtomicWriter writes a file through a temporary sibling so that the target
// path either receives the complete new contents or is left untouched.
// Callers must finish with either Publish or Abort.
type AtomicWriter struct {
	target string
	tmp    *os.File
	done   bool
}

// NewAtomicWriter creates the temporary file in the target's directory so
// the final rename stays on one filesystem.
func NewAtomicWriter(target string) (*AtomicWriter, error) {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return nil, err
	}
	return &AtomicWriter{target: target, tmp: tmp}, nil
}

func (aw *AtomicWriter) Write(p []byte) (int, error) {
	return aw.tmp.Write(p)
}

func (aw *AtomicWriter) Seek(offset int64, whence int) (int64, error) {
	return aw.tmp.Seek(offset, whence)
}

// File exposes the underlying temporary file for writers that need to patch
// offsets in place before publishing.
func (aw *AtomicWriter) File() *os.File {
	return aw.tmp
}

// Publish closes the temporary file and renames it over the target.
func (aw *AtomicWriter) Publish() error {
	if aw.done {
		return nil
	}
	aw.done = true
	if err := aw.tmp.Close(); err != nil {
		os.Remove(aw.tmp.Name())
		return err
	}
	if err := os.Rename(aw.tmp.Name(), aw.target); err != nil {
		os.Remove(aw.tmp.Name())
		return err
	}
	return nil
}

// Abort discards the temporary file, leaving the target untouched.  Safe to
// defer after a successful Publish.
func (aw *AtomicWriter) Abort() {
	if aw.done {
		return
	}
	aw.done = true
	aw.tmp.Close()
	os.Remove(aw.tmp.Name())
}
