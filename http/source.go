// Package http reads compound files served over HTTP.
//
// A Source turns HTTP range requests into an io.ReaderAt. Compound file
// parsers issue many small reads, so a Source fetches whole blocks and keeps
// the most recently used ones in memory.
package http

import (
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/container/ole"
)

const (
	// DefaultBlockSize is the size of each range request.
	DefaultBlockSize int64 = 64 << 10

	// DefaultMaxBlocks is the number of blocks kept in memory.
	DefaultMaxBlocks = 64
)

// ErrRangeUnsupported is returned when the server ignores range requests.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// Source implements io.ReaderAt over HTTP range requests.
// It is safe for concurrent use; block fetches are serialized.
type Source struct {
	url          string
	client       *nethttp.Client
	headers      nethttp.Header
	size         int64
	etag         string
	lastModified string

	blockSize int64
	maxBlocks int

	mu     sync.Mutex
	blocks map[int64][]byte
	recent []int64 // block indices, least recently used first
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithBlockSize sets the size of each range request.
func WithBlockSize(n int64) Option {
	return func(s *Source) {
		s.blockSize = n
	}
}

// WithMaxBlocks sets how many fetched blocks are kept in memory.
// Use 0 to keep none.
func WithMaxBlocks(n int) Option {
	return func(s *Source) {
		s.maxBlocks = n
	}
}

// NewSource probes url for its size and validators and returns a Source.
// The server must support range requests.
func NewSource(url string, opts ...Option) (*Source, error) {
	s := &Source{
		url:       url,
		client:    nethttp.DefaultClient,
		blockSize: DefaultBlockSize,
		maxBlocks: DefaultMaxBlocks,
		blocks:    make(map[int64][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.blockSize <= 0 {
		return nil, fmt.Errorf("http: block size %d must be positive", s.blockSize)
	}
	if s.maxBlocks < 0 {
		return nil, fmt.Errorf("http: max blocks %d must be >= 0", s.maxBlocks)
	}
	if err := s.probe(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens the compound file at url. Stream reads go through a Source
// configured by opts.
//
// Errors match container.ErrOpen.
func Open(url string, opts ...Option) (*ole.Container, error) {
	src, err := NewSource(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrOpen, err)
	}
	return ole.New(src, ole.WithSourceID(src.SourceID()))
}

// Size returns the size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID identifies the remote content by URL, size and validators.
func (s *Source) SourceID() string {
	id := "http:" + s.url + "\x00" + strconv.FormatInt(s.size, 10)
	switch {
	case s.etag != "":
		id += "\x00" + s.etag
	case s.lastModified != "":
		id += "\x00" + s.lastModified
	}
	return id
}

// ReadAt reads len(p) bytes at off, fetching any blocks not in memory.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("http: read at %d: negative offset", off)
	}
	if off >= s.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(p) && off < s.size {
		idx := off / s.blockSize
		block, err := s.block(idx)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], block[off-idx*s.blockSize:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// block returns block idx, from memory when possible. Callers hold mu.
func (s *Source) block(idx int64) ([]byte, error) {
	if data, ok := s.blocks[idx]; ok {
		s.touch(idx)
		return data, nil
	}

	start := idx * s.blockSize
	length := min(s.blockSize, s.size-start)
	data, err := s.fetch(start, length)
	if err != nil {
		return nil, err
	}
	if s.maxBlocks == 0 {
		return data, nil
	}
	if len(s.recent) >= s.maxBlocks {
		delete(s.blocks, s.recent[0])
		s.recent = s.recent[1:]
	}
	s.blocks[idx] = data
	s.recent = append(s.recent, idx)
	return data, nil
}

func (s *Source) touch(idx int64) {
	if i := slices.Index(s.recent, idx); i >= 0 {
		s.recent = append(slices.Delete(s.recent, i, i+1), idx)
	}
}

// fetch reads exactly length bytes at off with one range request.
func (s *Source) fetch(off, length int64) ([]byte, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return nil, ErrRangeUnsupported
	default:
		return nil, fmt.Errorf("http: range request failed: %s", resp.Status)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(resp.Body, data); err != nil {
		return nil, fmt.Errorf("http: read range %d-%d: %w", off, off+length-1, err)
	}
	return data, nil
}

// probe records the content size and validators. A HEAD request supplies
// validators when the server sends them; the size always comes from a
// one-byte range request, which also proves range support.
func (s *Source) probe() error {
	headSize := int64(-1)
	if req, err := s.newRequest(nethttp.MethodHead); err == nil {
		if resp, err := s.client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == nethttp.StatusOK {
				headSize = resp.ContentLength
				s.etag = resp.Header.Get("ETag")
				s.lastModified = resp.Header.Get("Last-Modified")
			}
		}
	}

	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("http: range probe failed: %s", resp.Status)
	}
	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	if headSize > 0 && headSize != size {
		return fmt.Errorf("http: content size mismatch: head=%d range=%d", headSize, size)
	}
	if s.etag == "" {
		s.etag = resp.Header.Get("ETag")
	}
	if s.lastModified == "" {
		s.lastModified = resp.Header.Get("Last-Modified")
	}
	s.size = size
	return nil
}

func (s *Source) newRequest(method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequest(method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if method == nethttp.MethodGet {
		// Fail rather than mix bytes from two versions of the file.
		if s.etag != "" {
			req.Header.Set("If-Match", s.etag)
		} else if s.lastModified != "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return req, nil
}

// parseContentRange returns the complete length from "bytes a-b/size".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	return size, nil
}
