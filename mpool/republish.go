package mpool

import (
	"time"

	"github.com/ipfs/go-cid"
)

// republishLoop re-broadcasts local pending messages on a fixed cadence, or
// immediately when queueRepublish wakes it. Republication is best-effort:
// failures are logged and never torn down the pool.
func (p *Pool) republishLoop() {
	defer p.wg.Done()

	interval := time.Duration(10*p.chainConfig.BlockDelaySecs+p.chainConfig.PropagationDelaySecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.republishPending()
		case <-p.repubTrigger:
			p.republishPending()
		}
	}
}

func (p *Pool) republishPending() {
	cur := p.getCurTipset()
	var bound TokenAmount
	haveBound := false
	if cur != nil && len(cur.Headers) > 0 {
		bound = baseFeeLowerBound(cur.Headers[0].ParentBaseFee)
		haveBound = true
	}

	p.localAddrsMu.RLock()
	addrs := append([]Address(nil), p.localAddrs...)
	p.localAddrsMu.RUnlock()

	for _, addr := range addrs {
		for _, m := range p.pendingFor(addr) {
			c, err := m.CID()
			if err != nil {
				continue
			}
			if !p.isRepublishCandidate(c, m, bound, haveBound) {
				continue
			}
			if err := p.publish(m); err != nil {
				log.Warnw("failed to republish pending message", "cid", c, "error", err)
			}
		}
	}
}

func (p *Pool) isRepublishCandidate(c cid.Cid, m SignedMessage, bound TokenAmount, haveBound bool) bool {
	p.republishedMu.RLock()
	_, flagged := p.republished[c]
	p.republishedMu.RUnlock()
	if flagged {
		return true
	}
	return haveBound && m.GasFeeCap().Cmp(bound) >= 0
}
