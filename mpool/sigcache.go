package mpool

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/ipfs/go-cid"
)

// blsSigCache recovers a BLS signature by the CID of the unsigned message
// it was produced for.
type blsSigCache struct {
	c *lru.Cache
}

func newBLSSigCache() *blsSigCache {
	c, err := lru.New(blsSigCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// construction-time constant here.
		panic(err)
	}
	return &blsSigCache{c: c}
}

func (b *blsSigCache) Put(unsignedCid cid.Cid, sig Signature) {
	b.c.Add(unsignedCid, sig)
}

func (b *blsSigCache) Get(unsignedCid cid.Cid) (Signature, bool) {
	v, ok := b.c.Get(unsignedCid)
	if !ok {
		return Signature{}, false
	}
	return v.(Signature), true
}

// sigValCache remembers that a signed message's signature has already been
// verified, keyed by its own CID, so repeated admission attempts for the
// same message skip expensive cryptographic verification.
type sigValCache struct {
	c *lru.Cache
}

func newSigValCache() *sigValCache {
	c, err := lru.New(sigValCacheSize)
	if err != nil {
		panic(err)
	}
	return &sigValCache{c: c}
}

func (s *sigValCache) MarkVerified(signedCid cid.Cid) {
	s.c.Add(signedCid, struct{}{})
}

func (s *sigValCache) IsVerified(signedCid cid.Cid) bool {
	_, ok := s.c.Get(signedCid)
	return ok
}
