package mpool

import "github.com/ipfs/go-cid"

// reactHeadChanges is the reconciler task: it drains the pool's head-change
// subscription until either the subscription closes or the pool is closed,
// applying each event's reverted and applied tipsets to the pending map.
func (p *Pool) reactHeadChanges() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case hc, ok := <-p.sub.Changes:
			if !ok {
				return
			}
			if lag := p.sub.Lagged(); lag > 0 {
				log.Warnw("head change subscriber lagged, events skipped", "skipped", lag)
			}
			rev, app := splitHeadChange(hc)
			if err := p.Reconcile(rev, app); err != nil {
				log.Warnw("error reconciling head change", "error", err)
			}
		}
	}
}

func splitHeadChange(hc HeadChange) (rev, app []*Tipset) {
	switch hc.Kind {
	case HeadChangeApply:
		return nil, []*Tipset{hc.Tipset}
	case HeadChangeRevert:
		return []*Tipset{hc.Tipset}, nil
	default:
		return nil, nil
	}
}

// Reconcile applies the effect of a batch of reverted and applied tipsets,
// in that order: messages from reverted tipsets return to pending first, so
// that any of them still present after the applied tipsets are processed
// are genuinely still outstanding. It updates curTipset to the last applied
// tipset and queues still-pending messages from any sender touched by an
// applied tipset for republish.
func (p *Pool) Reconcile(rev, app []*Tipset) error {
	for _, ts := range rev {
		if err := p.reconcileRevert(ts); err != nil {
			return err
		}
	}

	touched := make(map[Address]struct{})
	for _, ts := range app {
		addrs, err := p.reconcileApply(ts)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			touched[a] = struct{}{}
		}
	}

	for addr := range touched {
		p.queueRepublish(addr)
	}

	if len(app) > 0 {
		p.setCurTipset(app[len(app)-1])
	}
	return nil
}

// reconcileRevert re-admits every (deduplicated) message carried by ts's
// blocks: they are returning to pending now that ts is no longer on-chain.
func (p *Pool) reconcileRevert(ts *Tipset) error {
	msgs, err := p.MessagesForBlocks(ts.Headers)
	if err != nil {
		return err
	}
	seen := make(map[cid.Cid]struct{}, len(msgs))
	for _, m := range msgs {
		c, err := m.CID()
		if err != nil {
			return err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}

		if err := p.addHelper(m, true); err != nil {
			log.Warnw("failed to re-admit reverted message", "cid", c, "error", err)
		}
	}
	return nil
}

// reconcileApply removes ts's messages from pending (they are now applied
// on-chain) and returns the set of senders touched, so the caller can decide
// what still deserves republishing.
func (p *Pool) reconcileApply(ts *Tipset) ([]Address, error) {
	msgs, err := p.MessagesForBlocks(ts.Headers)
	if err != nil {
		return nil, err
	}
	touched := make([]Address, 0, len(msgs))
	for _, m := range msgs {
		p.remove(m.From(), m.Sequence(), true)
		touched = append(touched, m.From())
	}
	return touched, nil
}

// queueRepublish marks every message still pending for addr as a republish
// candidate and wakes the republisher, without blocking if it is already
// awake.
func (p *Pool) queueRepublish(addr Address) {
	msgs := p.pendingFor(addr)
	if len(msgs) == 0 {
		return
	}

	p.republishedMu.Lock()
	for _, m := range msgs {
		if c, err := m.CID(); err == nil {
			p.republished[c] = struct{}{}
		}
	}
	p.republishedMu.Unlock()

	select {
	case p.repubTrigger <- struct{}{}:
	default:
	}
}
