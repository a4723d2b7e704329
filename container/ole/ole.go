// Package ole implements container.Container for OLE compound files
// (Microsoft Compound File Binary format), such as Zeiss AxioVision ZVI and
// Olympus FluoView OIB files.
//
// Parsing is delegated to github.com/richardlehane/mscfb. The parser keeps a
// shared read buffer, so a Container serializes all stream reads with a
// mutex: it is safe for concurrent use, but reads never run in parallel.
package ole

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/richardlehane/mscfb"

	"github.com/meigma/zvi/container"
)

// Container provides access to the streams of a compound file.
type Container struct {
	mu       sync.Mutex
	doc      *mscfb.Reader
	streams  map[string]*mscfb.File
	paths    []container.Path
	closer   io.Closer
	sourceID string
}

// Interface compliance.
var (
	_ container.Container  = (*Container)(nil)
	_ container.Identifier = (*Container)(nil)
)

// Option configures a Container.
type Option func(*Container)

// WithSourceID sets the identifier reported by SourceID.
// Open derives one from the file path, size, and modification time.
func WithSourceID(id string) Option {
	return func(c *Container) {
		c.sourceID = id
	}
}

// Open opens the compound file at path.
//
// Errors from reading or parsing the file match container.ErrOpen.
// The returned Container owns the file handle; call Close to release it.
func Open(path string, opts ...Option) (*Container, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path is the point
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrOpen, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", container.ErrOpen, err)
	}

	id := fileSourceID(path, info)
	c, err := New(f, append([]Option{WithSourceID(id)}, opts...)...)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// New parses a compound file from ra.
//
// The caller keeps ownership of ra; Close does not close it.
func New(ra io.ReaderAt, opts ...Option) (c *Container, err error) {
	defer func() {
		// mscfb indexes sector tables straight from header values and can
		// panic on truncated input.
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("%w: %v", container.ErrOpen, r)
		}
	}()

	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrOpen, err)
	}

	c = &Container{
		doc:     doc,
		streams: make(map[string]*mscfb.File),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, f := range doc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p := make(container.Path, 0, len(f.Path)+1)
		p = append(p, f.Path...)
		p = append(p, f.Name)
		key := p.String()
		if _, dup := c.streams[key]; dup {
			continue
		}
		c.streams[key] = f
		c.paths = append(c.paths, p)
	}
	return c, nil
}

// Streams returns the stream paths in directory order.
func (c *Container) Streams() []container.Path {
	out := make([]container.Path, len(c.paths))
	for i, p := range c.paths {
		out[i] = append(container.Path(nil), p...)
	}
	return out
}

// ReadStream returns the full content of the stream at p.
func (c *Container) ReadStream(p container.Path) ([]byte, error) {
	f, ok := c.streams[p.String()]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, container.ErrStreamNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, f.Size)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return buf[:n], nil
}

// SourceID returns the identifier of the underlying file, or "" if none was
// configured.
func (c *Container) SourceID() string {
	return c.sourceID
}

// Close releases the file handle opened by Open.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

func fileSourceID(path string, info os.FileInfo) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file:" + path +
		":" + strconv.FormatInt(info.Size(), 10) +
		":" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
}
