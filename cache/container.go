package cache

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/zvi/container"
)

const (
	encodingRaw  = "raw"
	encodingZstd = "zstd"

	// defaultMaxDecoderMemory bounds zstd window allocation for cached entries.
	defaultMaxDecoderMemory = 256 << 20
)

// ErrNoSourceID is returned by NewContainer when the wrapped container has
// no stable identifier and none was configured.
var ErrNoSourceID = errors.New("zvi: cache requires a container source id")

// errCorrupt marks a cache entry that failed to parse or verify.
var errCorrupt = errors.New("corrupt cache entry")

// Container serves container streams through a Cache.
//
// Concurrent reads of the same uncached stream are deduplicated, so the
// wrapped container sees at most one read per stream until the entry is
// evicted. Container is safe for concurrent use if the wrapped container is.
type Container struct {
	base     container.Container
	cache    Cache
	sourceID string
	compress bool
	maxMem   uint64
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	group    singleflight.Group
	logger   *slog.Logger
}

// Interface compliance.
var (
	_ container.Container  = (*Container)(nil)
	_ container.Identifier = (*Container)(nil)
)

// Option configures a Container.
type Option func(*Container)

// WithSourceID sets the identifier used to key entries. It overrides the
// wrapped container's own SourceID.
func WithSourceID(id string) Option {
	return func(c *Container) {
		c.sourceID = id
	}
}

// WithCompression stores new entries zstd-compressed. Entries written
// either way remain readable.
func WithCompression(enabled bool) Option {
	return func(c *Container) {
		c.compress = enabled
	}
}

// WithMaxDecoderMemory limits the memory used to decompress an entry.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(c *Container) {
		c.maxMem = limit
	}
}

// WithLogger sets the logger for cache hit and miss records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// NewContainer wraps base so its streams are cached in cache.
//
// The source identifier comes from WithSourceID or, failing that, from base
// if it implements container.Identifier. Without one NewContainer returns
// ErrNoSourceID, since entries from different files could not be told apart.
func NewContainer(base container.Container, cache Cache, opts ...Option) (*Container, error) {
	if base == nil || cache == nil {
		return nil, errors.New("cache: base container and cache are required")
	}
	c := &Container{
		base:   base,
		cache:  cache,
		maxMem: defaultMaxDecoderMemory,
	}
	if id, ok := base.(container.Identifier); ok {
		c.sourceID = id.SourceID()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sourceID == "" {
		return nil, ErrNoSourceID
	}

	decOpts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if c.maxMem > 0 {
		decOpts = append(decOpts, zstd.WithDecoderMaxMemory(c.maxMem))
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		return nil, fmt.Errorf("cache: create decoder: %w", err)
	}
	c.decoder = dec
	if c.compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("cache: create encoder: %w", err)
		}
		c.encoder = enc
	}
	return c, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Container) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Streams lists the streams of the wrapped container. Listings are not cached.
func (c *Container) Streams() []container.Path {
	return c.base.Streams()
}

// ReadStream returns the content of the stream at p, from the cache when
// possible. Errors from the wrapped container are returned unchanged and
// are never cached.
func (c *Container) ReadStream(p container.Path) ([]byte, error) {
	key := c.key(p)
	if data, ok := c.lookup(key); ok {
		c.log().Debug("stream cache hit", "path", p.String())
		return data, nil
	}
	c.log().Debug("stream cache miss", "path", p.String())

	result, err, shared := c.group.Do(string(key), func() (any, error) {
		// Double-check cache
		if data, ok := c.lookup(key); ok {
			return data, nil
		}
		data, err := c.base.ReadStream(p)
		if err != nil {
			return nil, err
		}
		if err := c.store(key, data); err != nil {
			c.log().Debug("stream cache store failed", "path", p.String(), "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	if shared {
		data = append([]byte(nil), data...)
	}
	return data, nil
}

// SourceID returns the identifier entries are keyed by.
func (c *Container) SourceID() string {
	return c.sourceID
}

// Close closes the wrapped container. The cache is left open.
func (c *Container) Close() error {
	c.decoder.Close()
	if c.encoder != nil {
		_ = c.encoder.Close() //nolint:errcheck // EncodeAll leaves no pending output
	}
	return c.base.Close()
}

func (c *Container) key(p container.Path) []byte {
	d := digest.SHA256.FromString(c.sourceID + "\x00" + p.String())
	key, err := hex.DecodeString(d.Encoded())
	if err != nil {
		// Encoded is always hex for SHA-256 digests.
		panic(err)
	}
	return key
}

// lookup returns verified content for key. Corrupt entries are deleted.
func (c *Container) lookup(key []byte) ([]byte, bool) {
	f, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	defer f.Close()

	data, err := c.decodeEntry(f)
	if err != nil {
		c.log().Debug("dropping cache entry", "key", hex.EncodeToString(key), "error", err)
		_ = c.cache.Delete(key) //nolint:errcheck // best-effort cache cleanup
		return nil, false
	}
	return data, true
}

func (c *Container) store(key, data []byte) error {
	encoding, payload := encodingRaw, data
	if c.encoder != nil {
		encoding, payload = encodingZstd, c.encoder.EncodeAll(data, nil)
	}
	header := encoding + " " + digest.FromBytes(data).String() + "\n"
	entry := make([]byte, 0, len(header)+len(payload))
	entry = append(entry, header...)
	entry = append(entry, payload...)
	return c.cache.Put(key, newBytesFile(entry))
}

// decodeEntry parses "<encoding> <digest>\n<payload>" and verifies the
// decoded content against the digest.
func (c *Container) decodeEntry(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", errCorrupt, err)
	}
	encoding, dgst, ok := strings.Cut(strings.TrimSuffix(line, "\n"), " ")
	if !ok {
		return nil, fmt.Errorf("%w: header %q", errCorrupt, line)
	}
	want, err := digest.Parse(dgst)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch encoding {
	case encodingRaw:
		data = payload
	case encodingZstd:
		data, err = c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errCorrupt, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", errCorrupt, encoding)
	}

	verifier := want.Verifier()
	_, _ = verifier.Write(data) //nolint:errcheck // hash writes never fail
	if !verifier.Verified() {
		return nil, fmt.Errorf("%w: digest mismatch", errCorrupt)
	}
	return data, nil
}
