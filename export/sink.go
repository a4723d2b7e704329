package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meigma/zvi"
)

// FileSink writes one file per frame into a directory.
//
// Each frame is encoded into a temporary file in the destination directory
// and renamed into place, so a partially written frame is never visible
// under its final name. FileSink is safe for concurrent use.
type FileSink struct {
	dir       string
	format    Format
	overwrite bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite replaces existing frame files.
// By default, frames whose file already exists are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// NewFileSink returns a FileSink writing format files into dir, creating
// dir if needed.
func NewFileSink(dir string, format Format, opts ...FileSinkOption) (*FileSink, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	s := &FileSink{dir: dir, format: format}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the destination file of frame n.
func (s *FileSink) Path(n int) string {
	return filepath.Join(s.dir, FileName(n, s.format))
}

// ShouldWrite reports false if frame n already has a file and overwrite is
// disabled.
func (s *FileSink) ShouldWrite(n int) bool {
	if s.overwrite {
		return true
	}
	_, err := os.Stat(s.Path(n))
	return os.IsNotExist(err)
}

// Write encodes f into the file for f.Number. It reports false without
// writing when ShouldWrite is false.
func (s *FileSink) Write(f *zvi.Frame) (bool, error) {
	if f == nil {
		return false, errors.New("export: nil frame")
	}
	if !s.ShouldWrite(f.Number) {
		return false, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".frame-*")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	discard := func(err error) (bool, error) {
		_ = tmp.Close()        //nolint:errcheck // we're cleaning up
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return false, err
	}

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, f, s.format); err != nil {
		return discard(err)
	}
	if err := bw.Flush(); err != nil {
		return discard(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return false, fmt.Errorf("close temp file: %w", err)
	}

	dest := s.Path(f.Number)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return false, fmt.Errorf("rename to %s: %w", dest, err)
	}
	return true, nil
}
