package mpool

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// messageCidCodec and messageCidHash select the CID shape used for every
// on-chain message in this pool: DAG-CBOR content addressed by BLAKE2b-256,
// the convention Filecoin-family chains use for message CIDs.
const (
	messageCidCodec = cid.DagCBOR
	messageCidHash  = multihash.BLAKE2B_MIN + 31
)

// Address is an account identifier. It wraps the address's wire bytes
// directly so that it is comparable (usable as a map key) and orderable by
// byte form without needing a hash table of its own.
type Address struct {
	b string
}

// NewAddress wraps raw wire bytes as an Address.
func NewAddress(b []byte) Address {
	return Address{b: string(b)}
}

// Bytes returns the address's wire encoding.
func (a Address) Bytes() []byte {
	return []byte(a.b)
}

func (a Address) String() string {
	return fmt.Sprintf("%x", a.b)
}

// Less orders addresses by their byte form.
func (a Address) Less(o Address) bool {
	return a.b < o.b
}

func (a Address) MarshalCBOR(w io.Writer) error {
	return cbg.WriteByteArray(w, a.Bytes())
}

func (a *Address) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	b, err := cbg.ReadByteArray(br, cbg.ByteArrayMaxLen)
	if err != nil {
		return err
	}
	*a = NewAddress(b)
	return nil
}

// TokenAmount is an arbitrary-precision, non-negative quantity of the
// smallest currency unit.
type TokenAmount struct {
	i big.Int
}

// NewTokenAmount wraps v, rejecting negative values.
func NewTokenAmount(v *big.Int) (TokenAmount, error) {
	if v.Sign() < 0 {
		return TokenAmount{}, fmt.Errorf("mpool: token amount must not be negative, got %s", v)
	}
	return TokenAmount{i: *new(big.Int).Set(v)}, nil
}

// NewTokenAmountFromInt64 wraps a non-negative int64 as a TokenAmount.
func NewTokenAmountFromInt64(v int64) TokenAmount {
	if v < 0 {
		panic("mpool: token amount must not be negative")
	}
	return TokenAmount{i: *big.NewInt(v)}
}

// Int returns a copy of the amount's underlying big.Int.
func (t TokenAmount) Int() *big.Int {
	return new(big.Int).Set(&t.i)
}

func (t TokenAmount) String() string {
	return t.i.String()
}

// Cmp compares two TokenAmounts as big.Int.Cmp does.
func (t TokenAmount) Cmp(o TokenAmount) int {
	return t.i.Cmp(&o.i)
}

// Add returns t+o.
func (t TokenAmount) Add(o TokenAmount) TokenAmount {
	return TokenAmount{i: *new(big.Int).Add(&t.i, &o.i)}
}

// Sub returns t-o; callers must ensure the result is non-negative.
func (t TokenAmount) Sub(o TokenAmount) TokenAmount {
	return TokenAmount{i: *new(big.Int).Sub(&t.i, &o.i)}
}

// Mul returns t*n.
func (t TokenAmount) Mul(n int64) TokenAmount {
	return TokenAmount{i: *new(big.Int).Mul(&t.i, big.NewInt(n))}
}

// DivFloor returns floor(t/n).
func (t TokenAmount) DivFloor(n int64) TokenAmount {
	return TokenAmount{i: *new(big.Int).Div(&t.i, big.NewInt(n))}
}

func (t TokenAmount) MarshalCBOR(w io.Writer) error {
	mag := t.i.Bytes()
	buf := make([]byte, 0, len(mag)+1)
	buf = append(buf, 0x00) // sign byte: this package's TokenAmount is always non-negative
	buf = append(buf, mag...)
	return cbg.WriteByteArray(w, buf)
}

func (t *TokenAmount) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	buf, err := cbg.ReadByteArray(br, cbg.ByteArrayMaxLen)
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		t.i = *big.NewInt(0)
		return nil
	}
	if buf[0] != 0x00 {
		return fmt.Errorf("mpool: negative token amount in cbor stream")
	}
	t.i = *new(big.Int).SetBytes(buf[1:])
	return nil
}

// SignatureType distinguishes the signing scheme used for a message.
type SignatureType int

const (
	SignatureSecp256k1 SignatureType = iota
	SignatureBLS
	SignatureDelegated
)

// Signature is a signing-scheme tag plus raw signature bytes.
type Signature struct {
	Type SignatureType
	Data []byte
}

func (s Signature) MarshalCBOR(w io.Writer) error {
	if err := cbg.CborWriteHeader(w, cbg.MajUnsignedInt, uint64(s.Type)); err != nil {
		return err
	}
	return cbg.WriteByteArray(w, s.Data)
}

func (s *Signature) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajUnsignedInt {
		return fmt.Errorf("mpool: signature type should be a uint")
	}
	s.Type = SignatureType(extra)
	data, err := cbg.ReadByteArray(br, cbg.ByteArrayMaxLen)
	if err != nil {
		return err
	}
	s.Data = data
	return nil
}

// UnsignedMessage is the transferable body of a message: sender, receiver,
// nonce, value, gas parameters, and method call.
type UnsignedMessage struct {
	Version    uint64
	To         Address
	From       Address
	Sequence   uint64
	Value      TokenAmount
	GasLimit   int64
	GasFeeCap  TokenAmount
	GasPremium TokenAmount
	Method     uint64
	Params     []byte
}

// RequiredFunds is the maximum balance a sender must hold for this message
// to be admissible: value plus the worst-case gas cost.
func (m UnsignedMessage) RequiredFunds() TokenAmount {
	return m.Value.Add(m.GasFeeCap.Mul(m.GasLimit))
}

var lengthBufUnsignedMessage = []byte{0x8a} // array, 10 fields

func (m UnsignedMessage) MarshalCBOR(w io.Writer) error {
	if _, err := w.Write(lengthBufUnsignedMessage); err != nil {
		return err
	}
	if err := cbg.CborWriteHeader(w, cbg.MajUnsignedInt, m.Version); err != nil {
		return err
	}
	if err := m.To.MarshalCBOR(w); err != nil {
		return err
	}
	if err := m.From.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbg.CborWriteHeader(w, cbg.MajUnsignedInt, m.Sequence); err != nil {
		return err
	}
	if err := m.Value.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbg.CborWriteHeader(w, cbg.MajUnsignedInt, uint64(m.GasLimit)); err != nil {
		return err
	}
	if err := m.GasFeeCap.MarshalCBOR(w); err != nil {
		return err
	}
	if err := m.GasPremium.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbg.CborWriteHeader(w, cbg.MajUnsignedInt, m.Method); err != nil {
		return err
	}
	return cbg.WriteByteArray(w, m.Params)
}

func (m *UnsignedMessage) UnmarshalCBOR(r io.Reader) error {
	*m = UnsignedMessage{}
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 10 {
		return fmt.Errorf("mpool: unsigned message should be a 10-element cbor array")
	}

	readUint := func() (uint64, error) {
		maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
		if err != nil {
			return 0, err
		}
		if maj != cbg.MajUnsignedInt {
			return 0, fmt.Errorf("mpool: expected uint field")
		}
		return extra, nil
	}

	if m.Version, err = readUint(); err != nil {
		return err
	}
	if err := m.To.UnmarshalCBOR(br); err != nil {
		return err
	}
	if err := m.From.UnmarshalCBOR(br); err != nil {
		return err
	}
	if m.Sequence, err = readUint(); err != nil {
		return err
	}
	if err := m.Value.UnmarshalCBOR(br); err != nil {
		return err
	}
	gl, err := readUint()
	if err != nil {
		return err
	}
	m.GasLimit = int64(gl)
	if err := m.GasFeeCap.UnmarshalCBOR(br); err != nil {
		return err
	}
	if err := m.GasPremium.UnmarshalCBOR(br); err != nil {
		return err
	}
	if m.Method, err = readUint(); err != nil {
		return err
	}
	params, err := cbg.ReadByteArray(br, cbg.ByteArrayMaxLen)
	if err != nil {
		return err
	}
	m.Params = params
	return nil
}

// SignedMessage pairs an UnsignedMessage with its signature.
type SignedMessage struct {
	Message   UnsignedMessage
	Signature Signature
}

var lengthBufSignedMessage = []byte{0x82} // array, 2 fields

func (m SignedMessage) MarshalCBOR(w io.Writer) error {
	if _, err := w.Write(lengthBufSignedMessage); err != nil {
		return err
	}
	if err := m.Message.MarshalCBOR(w); err != nil {
		return err
	}
	return m.Signature.MarshalCBOR(w)
}

func (m *SignedMessage) UnmarshalCBOR(r io.Reader) error {
	*m = SignedMessage{}
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 2 {
		return fmt.Errorf("mpool: signed message should be a 2-element cbor array")
	}
	if err := m.Message.UnmarshalCBOR(br); err != nil {
		return err
	}
	return m.Signature.UnmarshalCBOR(br)
}

// From, Sequence and GasPremium mirror the fields of the embedded message
// for callers that only deal in signed messages.
func (m SignedMessage) From() Address              { return m.Message.From }
func (m SignedMessage) Sequence() uint64           { return m.Message.Sequence }
func (m SignedMessage) GasPremium() TokenAmount    { return m.Message.GasPremium }
func (m SignedMessage) GasFeeCap() TokenAmount     { return m.Message.GasFeeCap }
func (m SignedMessage) Value() TokenAmount         { return m.Message.Value }
func (m SignedMessage) RequiredFunds() TokenAmount { return m.Message.RequiredFunds() }

// CID derives the message's content identifier from its CBOR encoding.
func (m UnsignedMessage) CID() (cid.Cid, error) {
	var buf bytes.Buffer
	if err := m.MarshalCBOR(&buf); err != nil {
		return cid.Undef, err
	}
	return cid.Prefix{Version: 1, Codec: messageCidCodec, MhType: messageCidHash, MhLength: 32}.Sum(buf.Bytes())
}

// CID derives the signed message's content identifier from its full CBOR
// encoding (message + signature).
func (m SignedMessage) CID() (cid.Cid, error) {
	var buf bytes.Buffer
	if err := m.MarshalCBOR(&buf); err != nil {
		return cid.Undef, err
	}
	return cid.Prefix{Version: 1, Codec: messageCidCodec, MhType: messageCidHash, MhLength: 32}.Sum(buf.Bytes())
}

// Marshaled returns the CBOR encoding of the signed message, used both for
// the MaxMessageSize check and as the gossip payload.
func (m SignedMessage) Marshaled() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
