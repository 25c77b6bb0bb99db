package mpool

import "sync"

// broadcastBufferSize bounds how many undelivered HeadChange events a lazy
// subscriber may accumulate before the broadcaster starts dropping the
// oldest queued event in favor of the newest, reporting the drop as lag
// rather than blocking the sender.
const broadcastBufferSize = 16

// Broadcaster fans HeadChange events out to any number of subscribers. It
// never blocks on Send: a subscriber that falls behind has its oldest
// queued event dropped and its lag counter incremented, rather than
// stalling the sender the way an unbounded or blocking channel would.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscription is a single consumer's view of a Broadcaster. Events arrive
// on Changes; Lagged reports, non-blocking, how many events have been
// dropped since the subscriber last checked.
type Subscription struct {
	Changes <-chan HeadChange

	b      *Broadcaster
	ch     chan HeadChange
	mu     sync.Mutex
	lagged int
}

// Subscribe registers a new subscription. Callers must eventually call
// Unsubscribe to release it.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan HeadChange, broadcastBufferSize)
	sub := &Subscription{Changes: ch, ch: ch, b: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from the broadcaster and closes its channel, so a
// caller blocked reading from Changes is released. Safe to call more than
// once, and safe to call after the broadcaster itself has been closed.
func (sub *Subscription) Unsubscribe() {
	sub.b.mu.Lock()
	_, ok := sub.b.subs[sub]
	delete(sub.b.subs, sub)
	sub.b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Lagged returns and resets the number of events dropped for this
// subscription since the last call.
func (sub *Subscription) Lagged() int {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	n := sub.lagged
	sub.lagged = 0
	return n
}

// Send delivers ev to every current subscriber. A subscriber whose channel
// is full has its oldest queued event dropped to make room, so Send never
// blocks regardless of how slow any one subscriber is.
func (b *Broadcaster) Send(ev HeadChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
				sub.mu.Lock()
				sub.lagged++
				sub.mu.Unlock()
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				// Not reached while b.mu is held: no other Send can
				// refill the slot freed above. Were it reached, ev
				// would be dropped for this subscriber.
			}
		}
	}
}

// Close unsubscribes and closes every live subscription's channel,
// signaling shutdown to all reconciler tasks reading from it.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
