package car

import (
	"io"

	"github.com/multiformats/go-varint"
)

// byteReader adapts an io.Reader lacking ReadByte (e.g. io.LimitReader, a
// zstd decoder) so varint.ReadUvarint can consume it one byte at a time.
type byteReader struct {
	io.Reader
}

func (br byteReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(br.Reader, b[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, err
	}
	return b[0], nil
}

func asByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return byteReader{r}
}

// writeLengthPrefixed writes the varint-encoded total length of parts
// followed by each part in turn, the CAR frame format used by both the
// header and every block section.
func writeLengthPrefixed(w io.Writer, parts ...[]byte) error {
	var sum uint64
	for _, p := range parts {
		sum += uint64(len(p))
	}
	buf := make([]byte, varint.UvarintSize(sum))
	n := varint.PutUvarint(buf, sum)
	if _, err := w.Write(buf[:n]); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// readLengthPrefixed reads one varint-length-prefixed frame from r. It
// returns io.EOF cleanly when r is exhausted exactly at a frame boundary,
// and io.ErrUnexpectedEOF for a truncated varint or truncated payload.
//
// If zeroLenAsEOF is set, a frame whose declared length is zero is treated
// as a clean end of stream rather than an empty payload.
func readLengthPrefixed(r io.Reader, zeroLenAsEOF bool, maxSize uint64) ([]byte, error) {
	l, err := varint.ReadUvarint(asByteReader(r))
	if err != nil {
		return nil, err
	}
	if l == 0 && zeroLenAsEOF {
		return nil, io.EOF
	}
	if l > maxSize {
		return nil, ErrSectionTooLarge
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
