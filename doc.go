// Package zvi reads image sequences stored in Zeiss AxioVision ZVI files.
//
// A ZVI file is an OLE compound file. Each image is a stream named
// Image/Item(<n>)/Contents holding raw 16-bit little-endian grayscale
// samples. The file's metadata is not interpreted: the frame shape must be
// supplied by the caller, and the pixel type is fixed to uint16. The same
// layout is used by Olympus FluoView OIB files and other legacy OLE-based
// formats, which this package can read as well.
//
// # Quick Start
//
// Open a file with a known frame shape and read frames by index:
//
//	seq, err := zvi.Open("movie.zvi", zvi.Shape{Width: 660, Height: 492})
//	if err != nil {
//	    return err
//	}
//	defer seq.Close()
//
//	first, err := seq.Frame(0)
//	last, err := seq.Frame(-1)
//
// Iterate lazily over a subset:
//
//	view, err := seq.Slice(10, 20, 1)
//	for frame, err := range view.All() {
//	    if err != nil {
//	        return err
//	    }
//	    // use frame
//	}
//
// # Sequence Length
//
// The length of a sequence is the largest item number found in the file,
// not the number of image streams. Files with gaps in their numbering open
// normally; reading a missing item returns ErrMissingFrame.
//
// # Concurrency
//
// A Sequence holds no mutable state after construction. Concurrent calls to
// Frame are safe when the underlying container is safe for concurrent reads.
// Containers opened by [Open] serialize their reads internally; containers
// passed to [New] must document their own guarantees.
//
// # Caching
//
// Frames are decoded on every request. To avoid re-reading streams, wrap the
// container with [github.com/meigma/zvi/cache.NewContainer] and pass it to
// [New].
//
// # Remote Files
//
// Files served over HTTP with range request support can be opened with
// [github.com/meigma/zvi/http.Open], which returns a container for [New].
package zvi
