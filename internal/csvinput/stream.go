package csvinput

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CountingReader tracks bytes consumed from the underlying file. Progress
// may be read from another goroutine while the file is consumed.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100), or 0 if the total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead() * 100 / r.Total)
}

// Normalize strips a leading UTF-8 BOM and replaces invalid UTF-8 with U+FFFD.
// The text is also NFC composed. Nothing is buffered beyond the transformer window.
func Normalize(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.UTF8BOM.NewDecoder(),
		runes.ReplaceIllFormed(),
		norm.NFC,
	))
}

// wrap counts raw bytes first so progress reflects the file on disk.
func wrap(r io.Reader, totalSize int64) (io.Reader, *CountingReader) {
	counter := &CountingReader{reader: r, Total: totalSize}
	return Normalize(counter), counter
}
