// Package cache layers a persistent stream cache over a container.
//
// Decoding a frame always re-reads its stream. For containers on slow
// storage, [NewContainer] wraps any container.Container so stream contents
// are served from a [Cache] after the first read. The wrapper satisfies
// container.Container and can be passed straight to zvi.New.
//
// Entries are keyed by the SHA-256 of the container's source identifier and
// the stream path, and every entry records the digest of its content, so a
// corrupted entry is detected, dropped, and re-read from the container.
package cache

import "io/fs"

// Cache stores opaque entries under fixed-length binary keys.
//
// A Cache may evict entries at any time. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get opens the entry for key, or reports false if there is none.
	// Every call returns an independent handle that the caller closes.
	Get(key []byte) (fs.File, bool)

	// Put stores the remaining content of f under key. The caller closes f.
	// Storing a key that is already present may keep the existing entry.
	Put(key []byte, f fs.File) error

	// Delete removes the entry for key. Deleting a missing key succeeds.
	Delete(key []byte) error

	// MaxBytes returns the size limit, or 0 if there is none.
	MaxBytes() int64

	// SizeBytes returns the total size of stored entries.
	SizeBytes() int64

	// Prune evicts entries until at most targetBytes remain and returns the
	// number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
