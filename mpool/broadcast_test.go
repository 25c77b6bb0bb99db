package mpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversInOrderUntilFull(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < broadcastBufferSize; i++ {
		b.Send(HeadChange{Kind: HeadChangeApply, Tipset: &Tipset{Epoch: int64(i)}})
	}
	require.Equal(t, 0, sub.Lagged())

	for i := 0; i < broadcastBufferSize; i++ {
		ev := <-sub.Changes
		require.EqualValues(t, i, ev.Tipset.Epoch)
	}
}

func TestBroadcasterDropsOldestOnLag(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	total := broadcastBufferSize + 3
	for i := 0; i < total; i++ {
		b.Send(HeadChange{Kind: HeadChangeApply, Tipset: &Tipset{Epoch: int64(i)}})
	}

	require.Equal(t, 3, sub.Lagged())
	// Lagged() resets the counter.
	require.Equal(t, 0, sub.Lagged())

	first := <-sub.Changes
	require.EqualValues(t, 3, first.Tipset.Epoch) // events 0,1,2 were dropped
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	b.Send(HeadChange{Kind: HeadChangeApply, Tipset: &Tipset{Epoch: 42}})

	ev1 := <-sub1.Changes
	ev2 := <-sub2.Changes
	require.EqualValues(t, 42, ev1.Tipset.Epoch)
	require.EqualValues(t, 42, ev2.Tipset.Epoch)
}

func TestBroadcasterCloseEndsSubscriptions(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	b.Close()

	_, ok := <-sub.Changes
	require.False(t, ok)
}

func TestSubscriptionUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Changes
	require.False(t, ok)

	// Safe to call again, and safe alongside a broadcaster-wide Close.
	sub.Unsubscribe()
	b.Close()
}
