// Package disk provides a filesystem-backed cache.Cache for stream contents.
//
// Each entry is a file named by its hex-encoded key, optionally placed in a
// subdirectory named by the first characters of the key. Reads refresh an
// entry's modification time, so pruning evicts the entries read least
// recently.
package disk

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Cache implements cache.Cache on the local filesystem.
// It is safe for concurrent use, including by several processes sharing a
// directory, although size accounting is then per process.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64

	bytes  atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64

	pruneMu sync.Mutex
}

// Stats counts lookups since the Cache was created.
type Stats struct {
	Hits   int64
	Misses int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithShardPrefixLen sets how many hex characters of the key name the
// subdirectory an entry is stored in. Use 0 to store entries directly in
// the cache directory. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes limits the total size of entries. Use 0 for no limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New returns a Cache rooted at dir, creating dir if needed. Entries left
// by earlier runs are kept and counted toward the size limit.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("disk cache: directory is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.shardPrefixLen < 0:
		return nil, fmt.Errorf("disk cache: shard prefix length %d must be >= 0", c.shardPrefixLen)
	case c.maxBytes < 0:
		return nil, fmt.Errorf("disk cache: max bytes %d must be >= 0", c.maxBytes)
	}

	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get opens the entry for key and marks it as recently used.
func (c *Cache) Get(key []byte) (fs.File, bool) {
	path, err := c.path(key)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from the key, not user input
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	now := time.Now()
	_ = os.Chtimes(path, now, now) //nolint:errcheck // recency is advisory
	return f, true
}

// Put stores the content of f under key. An existing entry is kept, and an
// entry larger than the size limit is silently not stored.
func (c *Cache) Put(key []byte, f fs.File) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmpPath, size, err := c.writeTemp(filepath.Dir(path), f)
	if err != nil {
		return err
	}
	ok, err := c.reserve(size)
	if err != nil || !ok {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		if _, statErr := os.Stat(path); statErr == nil {
			// Another writer committed the same key first.
			return nil
		}
		return err
	}
	c.bytes.Add(size)
	return nil
}

// writeTemp copies r into a new temporary file in dir.
func (c *Cache) writeTemp(dir string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return "", 0, err
	}
	return tmp.Name(), n, nil
}

// reserve makes room for need more bytes, pruning if necessary. It reports
// false if the entry cannot fit at all.
func (c *Cache) reserve(need int64) (bool, error) {
	if c.maxBytes == 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (c *Cache) Delete(key []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Stats returns lookup counts.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	_, err := c.Prune(0)
	return err
}

// MaxBytes returns the size limit, or 0 if there is none.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the total size of stored entries.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the least recently used entries until at most targetBytes
// remain, and returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return freed, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("disk cache: empty key")
	}
	name := hex.EncodeToString(key)
	if c.shardPrefixLen == 0 {
		return filepath.Join(c.dir, name), nil
	}
	shard := name[:min(c.shardPrefixLen, len(name))]
	return filepath.Join(c.dir, shard, name), nil
}
