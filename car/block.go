package car

import (
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
)

// CarBlock is a single content-addressed block as it appears in a CAR
// frame: a CID and the raw bytes it was derived from.
type CarBlock struct {
	Cid  cid.Cid
	Data []byte
}

// NewCarBlock derives a CID for data under the given multicodec content
// type and multihash function and returns the resulting block.
func NewCarBlock(codec uint64, mhCode uint64, data []byte) (CarBlock, error) {
	pfx := cid.Prefix{Version: 1, Codec: codec, MhType: mhCode, MhLength: -1}
	c, err := pfx.Sum(data)
	if err != nil {
		return CarBlock{}, fmt.Errorf("car: deriving cid: %w", err)
	}
	return CarBlock{Cid: c, Data: data}, nil
}

// Validate recomputes the multihash of Data under Cid's prefix and confirms
// it matches Cid. It is the authority for whether a block may be trusted.
func (b CarBlock) Validate() error {
	expected, err := b.Cid.Prefix().Sum(b.Data)
	if err != nil {
		return fmt.Errorf("car: recomputing cid: %w", err)
	}
	if !expected.Equals(b.Cid) {
		return fmt.Errorf("%w: declared %s, computed %s", ErrBlockCidMismatch, b.Cid, expected)
	}
	return nil
}

// writeTo appends this block's varint-length-prefixed CID+data frame to w.
func (b CarBlock) writeTo(w io.Writer) error {
	return writeLengthPrefixed(w, b.Cid.Bytes(), b.Data)
}
