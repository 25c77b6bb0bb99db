package mpool

import (
	"github.com/rcrowley/go-metrics"
)

// pendingMessageTotal is the global pending-message counter bumped on every
// net-new admission and decremented on every removal.
var pendingMessageTotal = metrics.NewRegisteredCounter("mpool/pending_total", metrics.DefaultRegistry)

// MsgSet is the per-sender record of pending messages: a sequence-indexed
// map plus the next usable sequence number.
//
// Invariants: every stored message's sequence is strictly less than
// nextSequence, except after a prune has rewound nextSequence below
// messages still pending; nextSequence never regresses below the chain's
// applied sequence for the sender except when a message is pruned, opening
// a gap.
type MsgSet struct {
	msgs         map[uint64]SignedMessage
	nextSequence uint64
}

// NewMsgSet creates an empty MsgSet starting at sequence.
func NewMsgSet(sequence uint64) *MsgSet {
	return &MsgSet{msgs: make(map[uint64]SignedMessage), nextSequence: sequence}
}

// Len reports how many messages are currently pending in this set.
func (s *MsgSet) Len() int {
	return len(s.msgs)
}

// NextSequence is one past the highest sequence admitted so far, unless a
// prune has lowered it (see Rm). Sequences below it may be unclaimed where
// the set has gaps.
func (s *MsgSet) NextSequence() uint64 {
	return s.nextSequence
}

// Messages returns the pending messages in this set, unordered.
func (s *MsgSet) Messages() []SignedMessage {
	out := make([]SignedMessage, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m)
	}
	return out
}

// AddTrusted admits m from a trusted source (locally originated, or
// already re-verified), applying the trusted admission ceiling.
func (s *MsgSet) AddTrusted(m SignedMessage, ceiling uint64) error {
	return s.add(m, true, ceiling)
}

// AddUntrusted admits m from an untrusted source (received over gossip),
// applying the untrusted admission ceiling.
func (s *MsgSet) AddUntrusted(m SignedMessage, ceiling uint64) error {
	return s.add(m, false, ceiling)
}

func (s *MsgSet) add(m SignedMessage, trusted bool, ceiling uint64) error {
	sequence := m.Sequence()

	if len(s.msgs) == 0 || sequence >= s.nextSequence {
		s.nextSequence = sequence + 1
	}

	if exms, ok := s.msgs[sequence]; ok {
		mCid, err := m.CID()
		if err != nil {
			return err
		}
		exCid, err := exms.CID()
		if err != nil {
			return err
		}
		if mCid == exCid {
			return ErrDuplicateSequence
		}

		premium := exms.GasPremium()
		minPrice := premium.Add(premium.Mul(RBFNum).DivFloor(RBFDenom)).Add(NewTokenAmountFromInt64(1))
		if m.GasPremium().Cmp(minPrice) <= 0 {
			return ErrGasPriceTooLow
		}
	}

	if uint64(len(s.msgs)) >= ceiling {
		return &TooManyPendingMessagesError{Sender: m.From(), Trusted: trusted}
	}

	if _, existed := s.msgs[sequence]; !existed {
		pendingMessageTotal.Inc(1)
	}
	s.msgs[sequence] = m
	return nil
}

// Rm removes the message at sequence, if any, and adjusts nextSequence.
//
// If applied and the message is absent, and sequence is at or beyond
// nextSequence, nextSequence advances past sequence and the contiguous run
// of keys that remain after it (a gap already vacated by an earlier
// removal); an absent sequence below nextSequence changes nothing. If the message is present: when applied, nextSequence bumps
// forward past sequence; when pruned (applied=false), nextSequence rewinds
// to sequence if that creates or widens a gap, so an upstream resender can
// backfill it.
func (s *MsgSet) Rm(sequence uint64, applied bool) {
	if _, ok := s.msgs[sequence]; !ok {
		if applied && sequence >= s.nextSequence {
			s.nextSequence = sequence + 1
			for {
				if _, ok := s.msgs[s.nextSequence]; !ok {
					break
				}
				s.nextSequence++
			}
		}
		return
	}

	delete(s.msgs, sequence)
	pendingMessageTotal.Dec(1)

	if applied {
		if sequence >= s.nextSequence {
			s.nextSequence = sequence + 1
		}
		return
	}
	if sequence < s.nextSequence {
		s.nextSequence = sequence
	}
}
