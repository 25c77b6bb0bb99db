// Package carutil holds small I/O helpers shared by the car package that
// don't belong in its public surface.
package carutil

import "io"

var _ io.Reader = (*CountingReader)(nil)
var _ io.ByteReader = (*CountingReader)(nil)

// CountingReader wraps an io.Reader and tracks how many bytes have passed
// through it, so a caller can report the byte offset of each frame it reads
// without the underlying reader needing to support Seek.
type CountingReader struct {
	r io.Reader
	n int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// ReadByte lets CountingReader satisfy io.ByteReader for callers (such as
// binary.ReadUvarint) that need single-byte reads without an extra
// allocation-heavy adapter on top.
func (cr *CountingReader) ReadByte() (byte, error) {
	if br, ok := cr.r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == nil {
			cr.n++
		}
		return b, err
	}
	var b [1]byte
	_, err := cr.Read(b[:])
	return b[0], err
}

// Count returns the total number of bytes read so far.
func (cr *CountingReader) Count() int64 {
	return cr.n
}
