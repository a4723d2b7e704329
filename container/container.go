// Package container defines the access layer for compound-file containers.
//
// A container holds named byte streams addressed by hierarchical paths, in the
// manner of OLE structured storage. The zvi reader only needs to list stream
// paths and read a stream's full content; implementations live in the
// [github.com/meigma/zvi/container/ole] and
// [github.com/meigma/zvi/container/memory] subpackages.
package container

import (
	"errors"
	"io"
	"strings"
)

// Sentinel errors reported by Container implementations.
var (
	// ErrOpen is returned when a container file is malformed or unreadable.
	ErrOpen = errors.New("zvi: cannot open container")

	// ErrStreamNotFound is returned when no stream exists at a path.
	ErrStreamNotFound = errors.New("zvi: stream not found")
)

// Path addresses a stream inside a container, one element per storage level.
// For example {"Image", "Item(0)", "Contents"}.
type Path []string

// String joins the path elements with "/".
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Equal reports whether p and other name the same stream.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Container provides read access to the streams of a compound file.
//
// Implementations document their own concurrency guarantees. Callers that
// read from multiple goroutines must either use an implementation that is
// safe for concurrent reads or serialize access themselves.
type Container interface {
	io.Closer

	// Streams lists the paths of all streams in the container.
	// Storages (directories) are not listed.
	Streams() []Path

	// ReadStream returns the full content of the stream at p.
	// Returns an error matching ErrStreamNotFound if no such stream exists.
	ReadStream(p Path) ([]byte, error)
}

// Identifier is implemented by containers that can provide a stable
// identifier for their underlying content. Caching layers use it to keep
// entries from different files apart.
type Identifier interface {
	SourceID() string
}
