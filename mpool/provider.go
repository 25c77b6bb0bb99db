package mpool

import (
	"io"

	"github.com/ipfs/go-cid"
)

// ChainMessage is anything the provider's block store can persist and
// address: either an UnsignedMessage or a SignedMessage.
type ChainMessage interface {
	MarshalCBOR(w io.Writer) error
}

// Actor is the on-chain account state a Provider resolves addresses to.
type Actor struct {
	Sequence uint64
	Balance  TokenAmount
}

// HeadChangeKind distinguishes the two ways a tipset can move the chain
// head: forward application, or backward reversion during a reorg.
type HeadChangeKind int

const (
	HeadChangeApply HeadChangeKind = iota
	HeadChangeRevert
)

// HeadChange is one event delivered over a Provider's head-change
// broadcast.
type HeadChange struct {
	Kind   HeadChangeKind
	Tipset *Tipset
}

// Provider abstracts the chain-state and transport dependencies the pool
// needs but does not implement itself.
type Provider interface {
	// GetActorAfter returns addr's actor state as of the state produced by
	// applying ts. It fails if the actor does not exist at that state.
	GetActorAfter(addr Address, ts *Tipset) (Actor, error)
	// GetHeaviestTipset returns the chain head at pool construction time.
	GetHeaviestTipset() *Tipset
	// SubscribeHeadChanges returns a lag-tolerant broadcast subscription of
	// head-change events; see Broadcaster.
	SubscribeHeadChanges() *Subscription
	// MessagesForBlock returns the unsigned and signed messages a block
	// header includes, exactly as encoded on-chain.
	MessagesForBlock(h *BlockHeader) (unsigned []UnsignedMessage, signed []SignedMessage, err error)
	// PutMessage persists a message into the block store. It is idempotent
	// by CID.
	PutMessage(m ChainMessage) (cid.Cid, error)
	// NetworkVersion returns the protocol version active at epoch.
	NetworkVersion(epoch int64) uint64
	// MaxActorPendingMessages returns the trusted admission ceiling,
	// overridable for testing.
	MaxActorPendingMessages() uint64
	// MaxUntrustedActorPendingMessages returns the untrusted admission
	// ceiling, overridable for testing.
	MaxUntrustedActorPendingMessages() uint64
}
