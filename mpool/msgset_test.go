package mpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testMessage(t *testing.T, seq uint64, premium int64, tag byte) SignedMessage {
	t.Helper()
	return SignedMessage{
		Message: UnsignedMessage{
			Version:    0,
			To:         NewAddress([]byte("to-addr")),
			From:       NewAddress([]byte("from-addr")),
			Sequence:   seq,
			Value:      NewTokenAmountFromInt64(0),
			GasLimit:   1000,
			GasFeeCap:  NewTokenAmountFromInt64(1000),
			GasPremium: NewTokenAmountFromInt64(premium),
			Method:     0,
			Params:     []byte{tag},
		},
		Signature: Signature{Type: SignatureSecp256k1, Data: []byte{tag}},
	}
}

func TestMsgSetAddAdvancesNextSequence(t *testing.T) {
	ms := NewMsgSet(0)
	require.NoError(t, ms.AddTrusted(testMessage(t, 5, 100, 1), MaxActorPendingMessages))
	require.EqualValues(t, 6, ms.NextSequence())
	require.Less(t, ms.msgs[5].Sequence(), ms.NextSequence())
}

func TestMsgSetDuplicateSequenceSameCidRejected(t *testing.T) {
	ms := NewMsgSet(0)
	m := testMessage(t, 5, 100, 1)
	require.NoError(t, ms.AddTrusted(m, MaxActorPendingMessages))
	require.ErrorIs(t, ms.AddTrusted(m, MaxActorPendingMessages), ErrDuplicateSequence)
}

func TestMsgSetReplaceByFeeThreshold(t *testing.T) {
	// RBFNum/RBFDenom = 25/100, premium 100 -> threshold = 100 + 25 + 1 = 126.
	cases := []struct {
		premium int64
		wantErr error
	}{
		{125, ErrGasPriceTooLow},
		{126, ErrGasPriceTooLow},
		{127, nil},
	}
	for _, tc := range cases {
		ms := NewMsgSet(0)
		require.NoError(t, ms.AddTrusted(testMessage(t, 5, 100, 1), MaxActorPendingMessages))
		err := ms.AddTrusted(testMessage(t, 5, tc.premium, 2), MaxActorPendingMessages)
		if tc.wantErr != nil {
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, 1, ms.Len())
		} else {
			require.NoError(t, err)
			require.Equal(t, 1, ms.Len())
			require.EqualValues(t, tc.premium, ms.msgs[5].GasPremium().Int().Int64())
		}
	}
}

func TestMsgSetUntrustedCeiling(t *testing.T) {
	ms := NewMsgSet(0)
	for i := uint64(0); i < MaxUntrustedActorPendingMessages; i++ {
		require.NoError(t, ms.AddUntrusted(testMessage(t, i, 100, byte(i)), MaxUntrustedActorPendingMessages))
	}
	err := ms.AddUntrusted(testMessage(t, MaxUntrustedActorPendingMessages, 100, 99), MaxUntrustedActorPendingMessages)
	require.Error(t, err)
	var tooMany *TooManyPendingMessagesError
	require.ErrorAs(t, err, &tooMany)
	require.False(t, tooMany.Trusted)
}

func TestMsgSetTrustedCeiling(t *testing.T) {
	ms := NewMsgSet(0)
	for i := uint64(0); i < MaxActorPendingMessages; i++ {
		require.NoError(t, ms.AddTrusted(testMessage(t, i, 100, byte(i%250)), MaxActorPendingMessages))
	}
	err := ms.AddTrusted(testMessage(t, MaxActorPendingMessages, 100, 7), MaxActorPendingMessages)
	require.Error(t, err)
	var tooMany *TooManyPendingMessagesError
	require.ErrorAs(t, err, &tooMany)
	require.True(t, tooMany.Trusted)
}

func TestMsgSetRmAppliedAdvancesOverGap(t *testing.T) {
	ms := NewMsgSet(0)
	require.NoError(t, ms.AddTrusted(testMessage(t, 3, 100, 1), MaxActorPendingMessages))
	require.NoError(t, ms.AddTrusted(testMessage(t, 4, 100, 2), MaxActorPendingMessages))
	require.NoError(t, ms.AddTrusted(testMessage(t, 5, 100, 3), MaxActorPendingMessages))
	require.EqualValues(t, 6, ms.NextSequence())

	// sequence 4 is applied directly (as if it were the one included in a
	// block); the set becomes {3,5} but next_sequence still reflects the
	// highest sequence ever admitted.
	ms.Rm(4, true)
	require.Equal(t, 2, ms.Len())
	require.EqualValues(t, 6, ms.NextSequence())
	_, has4 := ms.msgs[4]
	require.False(t, has4)
}

func TestMsgSetRmAppliedOnAbsentSequenceFillsForward(t *testing.T) {
	ms := NewMsgSet(0)
	require.NoError(t, ms.AddTrusted(testMessage(t, 0, 100, 1), MaxActorPendingMessages))
	require.NoError(t, ms.AddTrusted(testMessage(t, 1, 100, 2), MaxActorPendingMessages))
	ms.Rm(0, false) // prune sequence 0, leaving a gap at 0 and 1 present
	require.EqualValues(t, 0, ms.NextSequence())

	// Now sequence 0 is applied while absent from msgs, the "already
	// vacated" case: nextSequence moves past 0 and on past the contiguous
	// run of keys still present (1).
	ms.Rm(0, true)
	require.EqualValues(t, 2, ms.NextSequence())
	// Removing the already-absent, already-applied sequence 0 again must
	// not move nextSequence back.
	ms.Rm(0, true)
	require.GreaterOrEqual(t, ms.NextSequence(), uint64(2))
}

func TestMsgSetRmPrunedRewindsNextSequence(t *testing.T) {
	ms := NewMsgSet(0)
	require.NoError(t, ms.AddTrusted(testMessage(t, 5, 100, 1), MaxActorPendingMessages))
	require.EqualValues(t, 6, ms.NextSequence())
	ms.Rm(5, false)
	require.EqualValues(t, 5, ms.NextSequence())
}
