// Package memory provides an in-memory container.Container.
//
// It is useful for tests and for callers that already hold stream contents,
// for example after extracting them from another archive format.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/meigma/zvi/container"
)

// Container is a read-only map of stream paths to contents.
// It is safe for concurrent use; ReadStream returns a copy of the content.
type Container struct {
	streams  map[string][]byte
	paths    []container.Path
	sourceID string
	closed   atomic.Bool
}

// Interface compliance.
var (
	_ container.Container  = (*Container)(nil)
	_ container.Identifier = (*Container)(nil)
)

// Stream is a single stream to place in a Container.
type Stream struct {
	Path container.Path
	Data []byte
}

// New returns a Container holding the given streams.
// Later streams replace earlier ones with the same path.
func New(streams ...Stream) *Container {
	c := &Container{streams: make(map[string][]byte, len(streams))}
	h := sha256.New()
	for _, s := range streams {
		key := s.Path.String()
		if _, ok := c.streams[key]; !ok {
			c.paths = append(c.paths, append(container.Path(nil), s.Path...))
		}
		c.streams[key] = append([]byte(nil), s.Data...)
	}
	slices.SortFunc(c.paths, func(a, b container.Path) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, p := range c.paths {
		key := p.String()
		fmt.Fprintf(h, "%s\x00%d\x00", key, len(c.streams[key]))
		h.Write(c.streams[key])
	}
	c.sourceID = "memory:" + hex.EncodeToString(h.Sum(nil))
	return c
}

// Streams returns the stream paths in lexical order.
func (c *Container) Streams() []container.Path {
	out := make([]container.Path, len(c.paths))
	for i, p := range c.paths {
		out[i] = append(container.Path(nil), p...)
	}
	return out
}

// ReadStream returns a copy of the content stored at p.
func (c *Container) ReadStream(p container.Path) ([]byte, error) {
	data, ok := c.streams[p.String()]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, container.ErrStreamNotFound)
	}
	return append([]byte(nil), data...), nil
}

// SourceID returns a content-derived identifier.
func (c *Container) SourceID() string {
	return c.sourceID
}

// Close marks the container closed. It never fails.
func (c *Container) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (c *Container) Closed() bool {
	return c.closed.Load()
}
