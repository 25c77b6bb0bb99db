package car

import (
	"bytes"
	"errors"
	"io"

	"github.com/ipfs/go-cid"
)

// ErrNoRoots is returned by NewCarWriter when given an empty root set; a
// CARv1 header with no roots is not a recoverable archive.
var ErrNoRoots = errors.New("car: at least one root is required")

// CarWriter serializes a CARv1 header followed by a stream of blocks. It
// buffers writes internally so that a write to the underlying io.Writer
// that only partially succeeds can be resumed against the remaining
// buffered bytes on the next Flush, rather than losing data.
type CarWriter struct {
	w   io.Writer
	buf bytes.Buffer
}

// NewCarWriter buffers a CARv1 header for roots; call Put to append blocks
// and Flush or Close to commit buffered bytes to w.
func NewCarWriter(w io.Writer, roots []cid.Cid) (*CarWriter, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	cw := &CarWriter{w: w}
	h := CarV1Header{Roots: roots, Version: 1}
	if _, err := h.WriteTo(&cw.buf); err != nil {
		return nil, err
	}
	return cw, nil
}

// Put appends blk's frame to the internal buffer.
func (cw *CarWriter) Put(blk CarBlock) error {
	return blk.writeTo(&cw.buf)
}

// Flush writes all buffered bytes to the underlying writer, retrying a
// short write against the bytes that remain.
func (cw *CarWriter) Flush() error {
	for cw.buf.Len() > 0 {
		n, err := cw.w.Write(cw.buf.Bytes())
		cw.buf.Next(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close flushes remaining buffered bytes and, if the underlying writer is
// an io.Closer, closes it.
func (cw *CarWriter) Close() error {
	if err := cw.Flush(); err != nil {
		return err
	}
	if c, ok := cw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
