package mpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
)

// Pool is the pending-message pool for a single chain. It tracks, per
// sender, the messages waiting for inclusion in a block; admits new
// messages against the sender's on-chain sequence, balance and the
// replace-by-fee rule; and reconciles itself against chain-head movement
// delivered by its Provider.
//
// Every field group is guarded by its own lock so that RPC-driven reads
// contend with the background reconciler or republisher only on the fields
// both touch, matching the per-field locking this pool is built around:
// pending, curTipset,
// localAddrs, localMsgs and republished are each independently
// synchronized.
type Pool struct {
	api           Provider
	networkSender NetworkSender
	chainConfig   ChainConfig

	cfg *configBox

	blsSigCache *blsSigCache
	sigValCache *sigValCache

	pendingMu sync.RWMutex
	pending   map[Address]*MsgSet

	curTipsetMu sync.Mutex
	curTipset   *Tipset

	localAddrsMu sync.RWMutex
	localAddrs   []Address

	localMsgsMu sync.RWMutex
	localMsgs   map[cid.Cid]SignedMessage

	republishedMu sync.RWMutex
	republished   map[cid.Cid]struct{}

	repubTrigger chan struct{}

	sub  *Subscription
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPool constructs a Pool atop api, runs loadLocal, and starts the
// head-change reactor and republisher background tasks. Local-message
// tracking starts empty here, so that loadLocal pass re-admits nothing.
// Callers must eventually call Close to stop the background tasks.
func NewPool(api Provider, sender NetworkSender, chainConfig ChainConfig, cfg Config) (*Pool, error) {
	p := &Pool{
		api:           api,
		networkSender: sender,
		chainConfig:   chainConfig,
		cfg:           newConfigBox(cfg),
		blsSigCache:   newBLSSigCache(),
		sigValCache:   newSigValCache(),
		pending:       make(map[Address]*MsgSet),
		curTipset:     api.GetHeaviestTipset(),
		localMsgs:     make(map[cid.Cid]SignedMessage),
		republished:   make(map[cid.Cid]struct{}),
		repubTrigger:  make(chan struct{}, 4),
		quit:          make(chan struct{}),
	}

	if err := p.loadLocal(); err != nil {
		return nil, err
	}

	p.sub = api.SubscribeHeadChanges()

	p.wg.Add(2)
	go p.reactHeadChanges()
	go p.republishLoop()

	return p, nil
}

// Close stops the background tasks and releases the head-change
// subscription. It does not block on in-flight push/add calls.
func (p *Pool) Close() {
	close(p.quit)
	p.sub.Unsubscribe()
	p.wg.Wait()
}

// Push admits msg as a locally-originated message: it is tracked as local
// and, unless soft-rejected for a too-low gas fee cap, published to the
// gossip network.
func (p *Pool) Push(m SignedMessage) (cid.Cid, error) {
	if err := p.checkMessage(m); err != nil {
		return cid.Undef, err
	}
	c, err := m.CID()
	if err != nil {
		return cid.Undef, err
	}

	curTs := p.getCurTipset()
	publish, err := p.addTipset(m, curTs, true)
	if err != nil {
		return cid.Undef, err
	}

	p.addLocal(m)

	if publish {
		if err := p.publish(m); err != nil {
			return cid.Undef, err
		}
	}
	return c, nil
}

// Add admits msg as an untrusted, remotely-received message: no local
// tracking, no publishing.
func (p *Pool) Add(m SignedMessage) error {
	if err := p.checkMessage(m); err != nil {
		return err
	}
	curTs := p.getCurTipset()
	_, err := p.addTipset(m, curTs, false)
	return err
}

func (p *Pool) publish(m SignedMessage) error {
	payload, err := m.Marshaled()
	if err != nil {
		return err
	}
	topic := Topic(fmt.Sprintf("%s/%s", PubsubMsgTopicPrefix, p.chainConfig.GenesisName))
	if err := p.networkSender.Send(NetworkMessage{Pubsub: &PubsubMessage{Topic: topic, Message: payload}}); err != nil {
		return fmt.Errorf("mpool: publishing message: %w", err)
	}
	return nil
}

// checkMessage runs the cheap, stateless checks that do not require a
// tipset: size, absolute value and fee bounds, and a cached signature check.
func (p *Pool) checkMessage(m SignedMessage) error {
	ser, err := m.Marshaled()
	if err != nil {
		return err
	}
	if len(ser) >= MaxMessageSize {
		return ErrMessageTooBig
	}
	if m.Value().Cmp(totalFilecoinSupply) > 0 {
		return ErrMessageValueTooHigh
	}
	if m.GasFeeCap().Cmp(minimumBaseFee) < 0 {
		return ErrGasFeeCapTooLow
	}
	return p.verifyMessageSignature(m)
}

// verifyMessageSignature checks (and caches) that m carries a well-formed
// signature. Cryptographic verification of the secp256k1/BLS/delegated
// schemes themselves is outside this module's scope (see DESIGN.md); the
// cache contract — verify once, skip on every later admission attempt for
// the same CID — is what this pool implements and tests.
func (p *Pool) verifyMessageSignature(m SignedMessage) error {
	c, err := m.CID()
	if err != nil {
		return err
	}
	if p.sigValCache.IsVerified(c) {
		return nil
	}
	if len(m.Signature.Data) == 0 {
		return fmt.Errorf("mpool: empty signature on message %s", c)
	}
	p.sigValCache.MarkVerified(c)
	return nil
}

// addTipset resolves sender state against curTs, runs verifyMsgBeforeAdd,
// checks funds, and dispatches into the sender's MsgSet. local selects both
// whether a too-low gas fee cap is a soft (non-publishing) admission or a
// hard rejection, and which admission ceiling applies.
func (p *Pool) addTipset(m SignedMessage, curTs *Tipset, local bool) (publish bool, err error) {
	from := m.From()

	sequence, err := p.getStateSequence(from, curTs)
	if err != nil {
		return false, err
	}
	if sequence > m.Sequence() {
		return false, ErrSequenceTooLow
	}

	actor, err := p.api.GetActorAfter(from, curTs)
	if err != nil {
		return false, err
	}
	// Messages can only land in the next epoch or later, hence the +1.
	nv := p.api.NetworkVersion(curTs.Epoch + 1)
	if !senderPermitted(actor, m, nv) {
		return false, fmt.Errorf("mpool: sender actor is not a valid top-level sender")
	}

	publish, err = p.verifyMsgBeforeAdd(m, curTs, local)
	if err != nil {
		return false, err
	}

	balance, err := p.getStateBalance(from, curTs)
	if err != nil {
		return false, err
	}
	if balance.Cmp(m.RequiredFunds()) < 0 {
		return false, ErrNotEnoughFunds
	}

	if err := p.addHelper(m, local); err != nil {
		return false, err
	}
	return publish, nil
}

// senderPermitted reports whether actor may originate a top-level message
// under network version nv. Actor-code registries and the Ethereum-shaped
// delegated-transaction check this decision would otherwise require are out
// of scope for this pool; every actor is accepted regardless of nv.
func senderPermitted(actor Actor, m SignedMessage, nv uint64) bool {
	_ = actor
	_ = m
	_ = nv
	return true
}

// verifyMsgBeforeAdd recomputes the base-fee lower bound for the next ten
// blocks and decides whether m should publish. A local message below the
// bound is admitted without publishing; a remote message below the bound is
// rejected outright.
func (p *Pool) verifyMsgBeforeAdd(m SignedMessage, curTs *Tipset, local bool) (bool, error) {
	if len(curTs.Headers) == 0 {
		return local, nil
	}
	bound := baseFeeLowerBound(curTs.Headers[0].ParentBaseFee)
	if m.GasFeeCap().Cmp(bound) < 0 {
		if local {
			log.Warnw("local message will not be immediately published",
				"gasFeeCap", m.GasFeeCap(), "baseFeeLowerBound", bound)
			return false, nil
		}
		return false, &SoftValidationFailureError{GasFeeCap: m.GasFeeCap(), BaseFeeLowerBound: bound}
	}
	return local, nil
}

// addHelper finishes admission: caches a BLS signature by its unsigned CID,
// rejects an excessive gas limit, persists both the signed and unsigned
// encodings to the provider's block store, and dispatches into the
// sender's MsgSet.
func (p *Pool) addHelper(m SignedMessage, trusted bool) error {
	if m.Signature.Type == SignatureBLS {
		unsignedCid, err := m.Message.CID()
		if err != nil {
			return err
		}
		p.blsSigCache.Put(unsignedCid, m.Signature)
	}

	if m.Message.GasLimit > MaxMessageGasLimit {
		return fmt.Errorf("mpool: message gas limit %d exceeds maximum %d", m.Message.GasLimit, MaxMessageGasLimit)
	}

	if _, err := p.api.PutMessage(m); err != nil {
		return err
	}
	if _, err := p.api.PutMessage(m.Message); err != nil {
		return err
	}

	from := m.From()
	curTs := p.getCurTipset()
	sequence, err := p.getStateSequence(from, curTs)
	if err != nil {
		return err
	}

	var ceiling uint64
	if trusted {
		ceiling = p.api.MaxActorPendingMessages()
	} else {
		ceiling = p.api.MaxUntrustedActorPendingMessages()
	}

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	mset, ok := p.pending[from]
	if !ok {
		mset = NewMsgSet(sequence)
		p.pending[from] = mset
	}
	if trusted {
		return mset.AddTrusted(m, ceiling)
	}
	return mset.AddUntrusted(m, ceiling)
}

func (p *Pool) addLocal(m SignedMessage) {
	c, err := m.CID()
	if err != nil {
		return
	}

	p.localAddrsMu.Lock()
	p.localAddrs = append(p.localAddrs, m.From())
	p.localAddrsMu.Unlock()

	p.localMsgsMu.Lock()
	p.localMsgs[c] = m
	p.localMsgsMu.Unlock()
}

// GetSequence returns the sequence an outgoing message for addr should use
// next: the greater of the on-chain sequence and the pool's own
// next_sequence for that sender.
func (p *Pool) GetSequence(addr Address) (uint64, error) {
	curTs := p.getCurTipset()
	sequence, err := p.getStateSequence(addr, curTs)
	if err != nil {
		return 0, err
	}

	p.pendingMu.RLock()
	mset, ok := p.pending[addr]
	p.pendingMu.RUnlock()
	if !ok {
		return sequence, nil
	}
	if sequence > mset.NextSequence() {
		return sequence, nil
	}
	return mset.NextSequence(), nil
}

func (p *Pool) getStateSequence(addr Address, ts *Tipset) (uint64, error) {
	actor, err := p.api.GetActorAfter(addr, ts)
	if err != nil {
		return 0, err
	}
	return actor.Sequence, nil
}

func (p *Pool) getStateBalance(addr Address, ts *Tipset) (TokenAmount, error) {
	actor, err := p.api.GetActorAfter(addr, ts)
	if err != nil {
		return TokenAmount{}, err
	}
	return actor.Balance, nil
}

// Pending returns every pending message across all senders, each sender's
// run sorted by sequence, alongside the tipset it was observed against.
func (p *Pool) Pending() ([]SignedMessage, *Tipset) {
	p.pendingMu.RLock()
	addrs := make([]Address, 0, len(p.pending))
	for a := range p.pending {
		addrs = append(addrs, a)
	}
	p.pendingMu.RUnlock()

	var out []SignedMessage
	for _, a := range addrs {
		out = append(out, p.pendingFor(a)...)
	}
	return out, p.getCurTipset()
}

// PendingFor returns addr's pending messages sorted by sequence, or nil if
// addr has none pending.
func (p *Pool) PendingFor(addr Address) []SignedMessage {
	return p.pendingFor(addr)
}

func (p *Pool) pendingFor(addr Address) []SignedMessage {
	p.pendingMu.RLock()
	mset, ok := p.pending[addr]
	p.pendingMu.RUnlock()
	if !ok || mset.Len() == 0 {
		return nil
	}
	msgs := mset.Messages()
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Sequence() < msgs[j].Sequence() })
	return msgs
}

// MessagesForBlocks returns, for every block, its signed messages plus its
// unsigned messages reconstructed into signed ones via the BLS signature
// cache keyed on the unsigned CID.
func (p *Pool) MessagesForBlocks(blocks []*BlockHeader) ([]SignedMessage, error) {
	var out []SignedMessage
	for _, b := range blocks {
		unsigned, signed, err := p.api.MessagesForBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, signed...)
		for _, um := range unsigned {
			sm, err := p.recoverSigned(um)
			if err != nil {
				return nil, err
			}
			out = append(out, sm)
		}
	}
	return out, nil
}

func (p *Pool) recoverSigned(um UnsignedMessage) (SignedMessage, error) {
	c, err := um.CID()
	if err != nil {
		return SignedMessage{}, err
	}
	sig, ok := p.blsSigCache.Get(c)
	if !ok {
		return SignedMessage{}, fmt.Errorf("mpool: no cached bls signature for unsigned message %s", c)
	}
	return SignedMessage{Message: um, Signature: sig}, nil
}

// remove drops sequence from addr's MsgSet, if present, and removes the
// MsgSet entirely once it is empty.
func (p *Pool) remove(addr Address, sequence uint64, applied bool) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	mset, ok := p.pending[addr]
	if !ok {
		return
	}
	mset.Rm(sequence, applied)
	if mset.Len() == 0 {
		delete(p.pending, addr)
	}
}

func (p *Pool) getCurTipset() *Tipset {
	p.curTipsetMu.Lock()
	defer p.curTipsetMu.Unlock()
	return p.curTipset
}

func (p *Pool) setCurTipset(ts *Tipset) {
	p.curTipsetMu.Lock()
	p.curTipset = ts
	p.curTipsetMu.Unlock()
}

// loadLocal re-admits every previously tracked local message. A message
// that fails with ErrSequenceTooLow has aged out of relevance and is
// dropped from local tracking; any other failure is logged and the message
// is left in local tracking.
func (p *Pool) loadLocal() error {
	p.localMsgsMu.RLock()
	msgs := make([]SignedMessage, 0, len(p.localMsgs))
	for _, m := range p.localMsgs {
		msgs = append(msgs, m)
	}
	p.localMsgsMu.RUnlock()

	for _, m := range msgs {
		err := p.Add(m)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrSequenceTooLow) {
			log.Warnw("dropping aged-out local message", "error", err)
			if c, cidErr := m.CID(); cidErr == nil {
				p.localMsgsMu.Lock()
				delete(p.localMsgs, c)
				p.localMsgsMu.Unlock()
			}
			continue
		}
		log.Warnw("error reloading local message", "error", err)
	}
	return nil
}

// GetConfig returns the pool's currently active configuration.
func (p *Pool) GetConfig() Config {
	return p.cfg.Get()
}

// SetConfig atomically replaces the pool's active configuration.
func (p *Pool) SetConfig(cfg Config) {
	p.cfg.Set(cfg)
}
