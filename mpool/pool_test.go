package mpool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal, in-memory Provider double: actor state is
// seeded directly, messages_for_block is seeded directly, and put_message
// just records bytes under the message's own CID.
type fakeProvider struct {
	mu sync.Mutex

	actors   map[string]Actor
	heaviest *Tipset
	bcast    *Broadcaster

	blockUnsigned map[cid.Cid][]UnsignedMessage
	blockSigned   map[cid.Cid][]SignedMessage

	store map[cid.Cid][]byte

	maxTrusted, maxUntrusted uint64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		actors:        make(map[string]Actor),
		heaviest:      &Tipset{Epoch: 0},
		bcast:         NewBroadcaster(),
		blockUnsigned: make(map[cid.Cid][]UnsignedMessage),
		blockSigned:   make(map[cid.Cid][]SignedMessage),
		store:         make(map[cid.Cid][]byte),
		maxTrusted:    MaxActorPendingMessages,
		maxUntrusted:  MaxUntrustedActorPendingMessages,
	}
}

func (f *fakeProvider) setActor(addr Address, a Actor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors[addr.String()] = a
}

func (f *fakeProvider) setBlockMessages(h *BlockHeader, unsigned []UnsignedMessage, signed []SignedMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockUnsigned[h.Cid] = unsigned
	f.blockSigned[h.Cid] = signed
}

func (f *fakeProvider) GetActorAfter(addr Address, ts *Tipset) (Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actors[addr.String()]
	if !ok {
		return Actor{}, ErrInvalidFromAddr
	}
	return a, nil
}

func (f *fakeProvider) GetHeaviestTipset() *Tipset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heaviest
}

func (f *fakeProvider) SubscribeHeadChanges() *Subscription {
	return f.bcast.Subscribe()
}

func (f *fakeProvider) MessagesForBlock(h *BlockHeader) ([]UnsignedMessage, []SignedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockUnsigned[h.Cid], f.blockSigned[h.Cid], nil
}

func (f *fakeProvider) PutMessage(m ChainMessage) (cid.Cid, error) {
	var buf bytes.Buffer
	if err := m.MarshalCBOR(&buf); err != nil {
		return cid.Undef, err
	}
	c, err := cid.Prefix{Version: 1, Codec: messageCidCodec, MhType: messageCidHash, MhLength: 32}.Sum(buf.Bytes())
	if err != nil {
		return cid.Undef, err
	}
	f.mu.Lock()
	f.store[c] = buf.Bytes()
	f.mu.Unlock()
	return c, nil
}

func (f *fakeProvider) NetworkVersion(epoch int64) uint64 { return 20 }

func (f *fakeProvider) MaxActorPendingMessages() uint64 { return f.maxTrusted }

func (f *fakeProvider) MaxUntrustedActorPendingMessages() uint64 { return f.maxUntrusted }

func newTestSigned(t *testing.T, from Address, seq uint64, value, feeCap, premium int64, gasLimit int64, sigType SignatureType, tag byte) SignedMessage {
	t.Helper()
	return SignedMessage{
		Message: UnsignedMessage{
			Version:    0,
			To:         NewAddress([]byte("dest")),
			From:       from,
			Sequence:   seq,
			Value:      NewTokenAmountFromInt64(value),
			GasLimit:   gasLimit,
			GasFeeCap:  NewTokenAmountFromInt64(feeCap),
			GasPremium: NewTokenAmountFromInt64(premium),
			Method:     0,
			Params:     []byte{tag},
		},
		Signature: Signature{Type: sigType, Data: []byte{tag, 1}},
	}
}

func newTestPool(t *testing.T, fp *fakeProvider) *Pool {
	t.Helper()
	p, err := NewPool(fp, ChanNetworkSender(make(chan NetworkMessage, 16)), ChainConfig{BlockDelaySecs: 30, PropagationDelaySecs: 6, GenesisName: "test"}, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestPoolPushAndGetSequence(t *testing.T) {
	fp := newFakeProvider()
	from := NewAddress([]byte("alice"))
	fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000)})

	p := newTestPool(t, fp)

	m := newTestSigned(t, from, 0, 0, 1000, 200, 1000, SignatureSecp256k1, 1)
	_, err := p.Push(m)
	require.NoError(t, err)

	seq, err := p.GetSequence(from)
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)
}

func TestPoolGasLimitBoundary(t *testing.T) {
	fp := newFakeProvider()
	from := NewAddress([]byte("bob"))
	// Enough balance for gas_fee_cap * gas_limit at the limit (1000 * 1e8),
	// so the only reason left to reject is the gas limit itself.
	fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000_000_000)})
	p := newTestPool(t, fp)

	accepted := newTestSigned(t, from, 0, 0, 1000, 200, MaxMessageGasLimit, SignatureSecp256k1, 1)
	_, err := p.Push(accepted)
	require.NoError(t, err)

	rejected := newTestSigned(t, from, 1, 0, 1000, 200, MaxMessageGasLimit+1, SignatureSecp256k1, 2)
	_, err = p.Push(rejected)
	require.Error(t, err)
}

func TestPoolUntrustedCeilingBoundary(t *testing.T) {
	fp := newFakeProvider()
	from := NewAddress([]byte("carol"))
	fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000_000)})
	p := newTestPool(t, fp)

	for i := uint64(0); i < MaxUntrustedActorPendingMessages; i++ {
		m := newTestSigned(t, from, i, 0, 1000, 200, 1000, SignatureSecp256k1, byte(i))
		require.NoError(t, p.Add(m))
	}
	overflow := newTestSigned(t, from, MaxUntrustedActorPendingMessages, 0, 1000, 200, 1000, SignatureSecp256k1, 99)
	require.Error(t, p.Add(overflow))
}

func TestPoolE1ReplaceByFeeAcceptance(t *testing.T) {
	cases := []struct {
		premium   int64
		wantAdmit bool
	}{
		{125, false},
		{126, false},
		{127, true},
	}
	for _, tc := range cases {
		fp := newFakeProvider()
		from := NewAddress([]byte("dana"))
		fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000_000)})
		p := newTestPool(t, fp)

		m1 := newTestSigned(t, from, 5, 0, 1000, 100, 1000, SignatureSecp256k1, 1)
		require.NoError(t, p.Add(m1))

		m2 := newTestSigned(t, from, 5, 0, 1000, tc.premium, 1000, SignatureSecp256k1, 2)
		err := p.Add(m2)
		if tc.wantAdmit {
			require.NoError(t, err)
		} else {
			require.Error(t, err)
		}
	}
}

func TestPoolE2ApplyThenReorgGap(t *testing.T) {
	fp := newFakeProvider()
	from := NewAddress([]byte("erin"))
	fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000_000)})
	p := newTestPool(t, fp)

	for _, seq := range []uint64{3, 4, 5} {
		m := newTestSigned(t, from, seq, 0, 1000, 100, 1000, SignatureSecp256k1, byte(seq))
		require.NoError(t, p.Add(m))
	}

	blockHeader := &BlockHeader{Cid: mustTestCid(t, "block-with-seq-4"), ParentBaseFee: NewTokenAmountFromInt64(10)}
	m4 := newTestSigned(t, from, 4, 0, 1000, 100, 1000, SignatureSecp256k1, 4)
	fp.setBlockMessages(blockHeader, nil, []SignedMessage{m4})

	require.NoError(t, p.Reconcile(nil, []*Tipset{{Epoch: 1, Headers: []*BlockHeader{blockHeader}}}))

	remaining := p.PendingFor(from)
	require.Len(t, remaining, 2)
	require.EqualValues(t, 3, remaining[0].Sequence())
	require.EqualValues(t, 5, remaining[1].Sequence())

	seq, err := p.GetSequence(from)
	require.NoError(t, err)
	require.EqualValues(t, 6, seq)
}

func TestPoolE3LocalSoftRejectNoPublish(t *testing.T) {
	fp := newFakeProvider()
	from := NewAddress([]byte("frank"))
	fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000_000)})
	fp.heaviest = &Tipset{Epoch: 0, Headers: []*BlockHeader{{Cid: mustTestCid(t, "head"), ParentBaseFee: NewTokenAmountFromInt64(1_000_000)}}}

	netCh := make(chan NetworkMessage, 4)
	p, err := NewPool(fp, ChanNetworkSender(netCh), ChainConfig{BlockDelaySecs: 30, PropagationDelaySecs: 6, GenesisName: "test"}, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	// base_fee_lower_bound(1_000_000) is far above this fee cap.
	m := newTestSigned(t, from, 0, 0, 100, 50, 1000, SignatureSecp256k1, 1)
	_, err = p.Push(m)
	require.NoError(t, err)

	select {
	case <-netCh:
		t.Fatal("expected no publish for a below-bound local message")
	default:
	}
}

func TestPoolE4BLSRecovery(t *testing.T) {
	fp := newFakeProvider()
	from := NewAddress([]byte("grace"))
	fp.setActor(from, Actor{Sequence: 0, Balance: NewTokenAmountFromInt64(1_000_000_000)})
	p := newTestPool(t, fp)

	m := newTestSigned(t, from, 0, 0, 1000, 200, 1000, SignatureBLS, 7)
	_, err := p.Push(m)
	require.NoError(t, err)

	blockHeader := &BlockHeader{Cid: mustTestCid(t, "bls-block"), ParentBaseFee: NewTokenAmountFromInt64(10)}
	fp.setBlockMessages(blockHeader, []UnsignedMessage{m.Message}, nil)

	recovered, err := p.MessagesForBlocks([]*BlockHeader{blockHeader})
	require.NoError(t, err)
	require.Len(t, recovered, 1)

	wantCid, err := m.CID()
	require.NoError(t, err)
	gotCid, err := recovered[0].CID()
	require.NoError(t, err)
	require.Equal(t, wantCid, gotCid)
}

func mustTestCid(t *testing.T, seed string) cid.Cid {
	t.Helper()
	c, err := cid.Prefix{Version: 1, Codec: messageCidCodec, MhType: messageCidHash, MhLength: 32}.Sum([]byte(seed))
	require.NoError(t, err)
	return c
}
