package car

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// V2PragmaSize is the length in bytes of the fixed CARv2 pragma.
	V2PragmaSize = 11
	// V2HeaderSize is the length in bytes of the fixed CARv2 header that
	// follows the pragma.
	V2HeaderSize = 40
	// V2PrefixSize is the combined size of the pragma and the header.
	V2PrefixSize = V2PragmaSize + V2HeaderSize
)

// V2Pragma is the fixed byte sequence a CARv2 stream opens with: the CBOR
// encoding of {version: 2} as a one-element varint frame.
var V2Pragma = []byte{0x0a, 0xa1, 0x67, 0x76, 0x65, 0x72, 0x73, 0x69, 0x6f, 0x6e, 0x02}

// CarV2Header is the fixed 40-byte header that follows the CARv2 pragma.
// DataOffset and DataSize locate the wrapped CARv1 payload; IndexOffset
// locates an optional trailing index region this package does not
// interpret. All fields are little-endian on the wire.
type CarV2Header struct {
	Characteristics [16]byte
	DataOffset      int64
	DataSize        int64
	IndexOffset     int64
}

// HasIndex reports whether the header declares a trailing index region.
func (h CarV2Header) HasIndex() bool {
	return h.IndexOffset > 0
}

func (h CarV2Header) marshal() []byte {
	buf := make([]byte, V2HeaderSize)
	copy(buf[0:16], h.Characteristics[:])
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.DataOffset))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.DataSize))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.IndexOffset))
	return buf
}

func (h *CarV2Header) unmarshal(b []byte) error {
	if len(b) != V2HeaderSize {
		return fmt.Errorf("car: invalid v2 header length %d, expected %d", len(b), V2HeaderSize)
	}
	copy(h.Characteristics[:], b[0:16])
	h.DataOffset = int64(binary.LittleEndian.Uint64(b[16:24]))
	h.DataSize = int64(binary.LittleEndian.Uint64(b[24:32]))
	h.IndexOffset = int64(binary.LittleEndian.Uint64(b[32:40]))
	if h.DataOffset < V2PrefixSize {
		return fmt.Errorf("%w: v2 data offset %d precedes end of header", ErrInvalidData, h.DataOffset)
	}
	if h.DataSize <= 0 {
		return fmt.Errorf("%w: v2 data size must be positive, got %d", ErrInvalidData, h.DataSize)
	}
	if h.IndexOffset < 0 {
		return fmt.Errorf("%w: v2 index offset must not be negative, got %d", ErrInvalidData, h.IndexOffset)
	}
	return nil
}

// WriteTo writes the pragma followed by the 40-byte header.
func (h CarV2Header) WriteTo(w io.Writer) (int64, error) {
	if _, err := w.Write(V2Pragma); err != nil {
		return 0, err
	}
	n, err := w.Write(h.marshal())
	return int64(V2PragmaSize + n), err
}

// tryReadHeaderV2 reads exactly V2PrefixSize bytes from r. It returns
// (nil, nil) if those bytes do not begin with the CARv2 pragma (the stream
// is a bare CARv1) or if r does not have enough bytes to hold a full
// pragma+header (a best-effort miss, not a hard failure).
func tryReadHeaderV2(r io.Reader) (*CarV2Header, error) {
	buf := make([]byte, V2PrefixSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil
	}
	if !bytes.Equal(buf[:V2PragmaSize], V2Pragma) {
		return nil, nil
	}
	var h CarV2Header
	if err := h.unmarshal(buf[V2PragmaSize:]); err != nil {
		return nil, err
	}
	return &h, nil
}
