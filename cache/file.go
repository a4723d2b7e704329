package cache

import (
	"bytes"
	"io/fs"
	"time"
)

// bytesFile adapts an in-memory buffer to fs.File for Cache.Put.
type bytesFile struct {
	*bytes.Reader
	size int64
}

func newBytesFile(data []byte) *bytesFile {
	return &bytesFile{Reader: bytes.NewReader(data), size: int64(len(data))}
}

func (f *bytesFile) Stat() (fs.FileInfo, error) {
	return bytesFileInfo{size: f.size}, nil
}

func (f *bytesFile) Close() error { return nil }

type bytesFileInfo struct {
	size int64
}

func (fi bytesFileInfo) Name() string       { return "" }
func (fi bytesFileInfo) Size() int64        { return fi.size }
func (fi bytesFileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi bytesFileInfo) ModTime() time.Time { return time.Time{} }
func (fi bytesFileInfo) IsDir() bool        { return false }
func (fi bytesFileInfo) Sys() any           { return nil }
