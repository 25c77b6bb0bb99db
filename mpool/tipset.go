package mpool

import "github.com/ipfs/go-cid"

// BlockHeader is the minimal header shape messages_for_block and base-fee
// lookups need.
type BlockHeader struct {
	Cid           cid.Cid
	ParentBaseFee TokenAmount
}

// Tipset is the set of sibling block headers at one epoch.
type Tipset struct {
	Epoch   int64
	Headers []*BlockHeader
}

// Key returns the tipset's deterministic key: its block CIDs, as given.
func (t *Tipset) Key() []cid.Cid {
	k := make([]cid.Cid, len(t.Headers))
	for i, h := range t.Headers {
		k[i] = h.Cid
	}
	return k
}
