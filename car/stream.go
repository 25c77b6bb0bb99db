package car

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/filecoin-project/go-mpool/internal/carutil"
)

var log = logging.Logger("car")

// zstdMagic is the four-byte magic number that opens every zstd frame,
// little-endian on the wire.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

func isZstd(buf []byte) bool {
	return len(buf) >= 4 && bytes.Equal(buf[:4], zstdMagic)
}

// CarStream reads CarBlocks out of a CARv1 or CARv2 payload, transparently
// unwrapping zstd compression and the CARv2 envelope. The first block is
// read and hash-validated eagerly at construction time so that a corrupt
// archive is rejected before a caller starts iterating.
type CarStream struct {
	r          io.Reader
	counted    *carutil.CountingReader
	closer     func() error
	HeaderV1   CarV1Header
	HeaderV2   *CarV2Header
	firstBlock *CarBlock
	opts       Options
}

// NewCarStreamUnsafe wraps a non-seekable reader. Because it cannot rewind,
// it looks for a CARv2 pragma only within its initial read-ahead buffer; on
// a stream where the pragma straddles that boundary it falls back to
// treating the input as CARv1, matching the fill-buffer-only detection the
// format was designed to tolerate.
func NewCarStreamUnsafe(r io.Reader, opts ...Option) (*CarStream, error) {
	options := applyOptions(opts...)
	br := bufio.NewReaderSize(r, defaultPeekSize)
	peek, _ := br.Peek(defaultPeekSize)
	headerV2 := detectHeaderV2(peek)
	return newCarStream(br, headerV2, options)
}

// NewCarStream wraps a seekable reader, using the seek to look past its
// read-ahead buffer for a CARv2 pragma without losing its place.
func NewCarStream(rs io.ReadSeeker, opts ...Option) (*CarStream, error) {
	options := applyOptions(opts...)
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("car: determining stream position: %w", err)
	}
	peek := make([]byte, defaultPeekSize)
	n, _ := io.ReadFull(rs, peek)
	headerV2 := detectHeaderV2(peek[:n])
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("car: rewinding stream: %w", err)
	}
	return newCarStream(bufio.NewReaderSize(rs, defaultPeekSize), headerV2, options)
}

// detectHeaderV2 decides compression and looks for a v2 pragma+header
// inside buf alone, never touching the underlying reader. It is
// best-effort: any failure (too little data, corrupt zstd frame) is
// reported as "no v2 header found" rather than an error, since the
// fallback of reading buf as a bare v1 stream remains valid.
func detectHeaderV2(buf []byte) *CarV2Header {
	var src io.Reader = bytes.NewReader(buf)
	if isZstd(buf) {
		zr, err := zstd.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil
		}
		defer zr.Close()
		src = zr
	}
	h, err := tryReadHeaderV2(src)
	if err != nil {
		log.Debugw("ignoring malformed v2 pragma seen in peek window", "err", err)
		return nil
	}
	return h
}

func newCarStream(br *bufio.Reader, headerV2 *CarV2Header, opts Options) (*CarStream, error) {
	peek, _ := br.Peek(4)
	var reader io.Reader = br
	var closer func() error
	if isZstd(peek) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: opening zstd stream: %v", ErrInvalidData, err)
		}
		reader = zr
		closer = func() error { zr.Close(); return nil }
	}

	if headerV2 != nil {
		if _, err := io.CopyN(io.Discard, reader, headerV2.DataOffset); err != nil {
			return nil, fmt.Errorf("%w: skipping to v2 data offset: %v", ErrInvalidData, err)
		}
		reader = io.LimitReader(reader, headerV2.DataSize)
	}

	counted := carutil.NewCountingReader(reader)

	var hv1 CarV1Header
	if _, err := hv1.ReadFromChecked(counted, opts.MaxAllowedHeaderSize); err != nil {
		return nil, err
	}
	if hv1.Version != 1 {
		return nil, fmt.Errorf("%w: expected v1 payload version 1, got %d", ErrInvalidData, hv1.Version)
	}
	if len(hv1.Roots) == 0 {
		return nil, fmt.Errorf("%w: v1 header declares no roots", ErrInvalidData)
	}

	cs := &CarStream{r: counted, counted: counted, closer: closer, HeaderV1: hv1, HeaderV2: headerV2, opts: opts}
	first, err := cs.readNextBlock()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return cs, nil
		}
		return nil, err
	}
	if err := first.Validate(); err != nil {
		return nil, fmt.Errorf("%w: first block failed validation: %v", ErrInvalidData, err)
	}
	cs.firstBlock = &first
	return cs, nil
}

func (s *CarStream) readNextBlock() (CarBlock, error) {
	data, err := readLengthPrefixed(s.r, s.opts.ZeroLengthSectionAsEOF, s.opts.MaxAllowedSectionSize)
	if err != nil {
		return CarBlock{}, err
	}
	c, n, err := cid.CidFromBytes(data)
	if err != nil {
		return CarBlock{}, fmt.Errorf("%w: decoding block cid: %v", ErrInvalidData, err)
	}
	return CarBlock{Cid: c, Data: data[n:]}, nil
}

// Pos returns the number of bytes consumed from the v1 payload so far,
// including the header frame. Because the first block is read at
// construction, Pos already counts it before the first call to Next; after
// any call to Next it is the offset just past the block that call returned.
func (s *CarStream) Pos() int64 {
	return s.counted.Count()
}

// Next returns the next block in the archive, or io.EOF once the payload
// is exhausted (or the CARv2 data region's declared size is reached).
func (s *CarStream) Next() (CarBlock, error) {
	if s.firstBlock != nil {
		b := *s.firstBlock
		s.firstBlock = nil
		return b, nil
	}
	return s.readNextBlock()
}

// Close releases any resources held for decompression. It is a no-op for
// an uncompressed stream.
func (s *CarStream) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
