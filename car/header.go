package car

import (
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/node/bindnode"
	"github.com/ipld/go-ipld-prime/schema"
)

const v1HeaderSchema = `
type CarV1Header struct {
	roots [&Any]
	version Int
}
`

var v1HeaderPrototype schema.TypedPrototype

func init() {
	ts, err := ipld.LoadSchemaBytes([]byte(v1HeaderSchema))
	if err != nil {
		panic(err)
	}
	v1HeaderPrototype = bindnode.Prototype((*CarV1Header)(nil), ts.TypeByName("CarV1Header"))
}

// CarV1Header is the CBOR-encoded header of a CARv1 payload: the set of
// root CIDs the archive was built from, and a format version (always 1 for
// a payload this package writes).
type CarV1Header struct {
	Roots   []cid.Cid
	Version uint64
}

func (h CarV1Header) encode() ([]byte, error) {
	node := bindnode.Wrap(&h, v1HeaderPrototype.Type())
	return ipld.Encode(node.Representation(), dagcbor.Encode)
}

// WriteTo writes the length-prefixed CBOR header frame to w.
func (h CarV1Header) WriteTo(w io.Writer) (int64, error) {
	hb, err := h.encode()
	if err != nil {
		return 0, fmt.Errorf("car: encoding v1 header: %w", err)
	}
	if err := writeLengthPrefixed(w, hb); err != nil {
		return 0, err
	}
	return int64(len(hb)), nil
}

// ReadFrom reads and decodes the length-prefixed CBOR header frame from r,
// rejecting a header frame larger than defaultMaxHeaderSize. Use
// ReadFromChecked to set a caller-supplied bound.
func (h *CarV1Header) ReadFrom(r io.Reader) (int64, error) {
	return h.ReadFromChecked(r, defaultMaxHeaderSize)
}

// ReadFromChecked reads and decodes the length-prefixed CBOR header frame
// from r, rejecting a header frame larger than maxSize with
// ErrHeaderTooLarge.
func (h *CarV1Header) ReadFromChecked(r io.Reader, maxSize uint64) (int64, error) {
	hb, err := readLengthPrefixed(r, false, maxSize)
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		if err == ErrSectionTooLarge {
			return 0, ErrHeaderTooLarge
		}
		return 0, err
	}
	node, err := ipld.DecodeUsingPrototype(hb, dagcbor.Decode, v1HeaderPrototype)
	if err != nil {
		return int64(len(hb)), fmt.Errorf("%w: decoding v1 header: %v", ErrInvalidData, err)
	}
	decoded, ok := bindnode.Unwrap(node).(*CarV1Header)
	if !ok {
		return int64(len(hb)), fmt.Errorf("%w: v1 header decoded to unexpected type", ErrInvalidData)
	}
	*h = *decoded
	return int64(len(hb)), nil
}
