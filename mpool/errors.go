package mpool

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers of push/add and the query API. Most
// are terminal for the offending message; none trigger a retry on their
// own.
var (
	ErrSequenceTooLow      = errors.New("mpool: message sequence already applied")
	ErrGasPriceTooLow      = errors.New("mpool: replacement gas premium does not meet RBF threshold")
	ErrDuplicateSequence   = errors.New("mpool: identical message already pending at this sequence")
	ErrGasFeeCapTooLow     = errors.New("mpool: gas fee cap below protocol minimum")
	ErrNotEnoughFunds      = errors.New("mpool: sender balance insufficient for required funds")
	ErrMessageTooBig       = errors.New("mpool: serialized message exceeds maximum size")
	ErrMessageValueTooHigh = errors.New("mpool: message value exceeds total currency supply")
	ErrInvalidFromAddr     = errors.New("mpool: sender address unknown to the pool")
)

// TooManyPendingMessagesError reports that a sender's admission ceiling,
// trusted or untrusted, has been reached.
type TooManyPendingMessagesError struct {
	Sender  Address
	Trusted bool
}

func (e *TooManyPendingMessagesError) Error() string {
	kind := "untrusted"
	if e.Trusted {
		kind = "trusted"
	}
	return fmt.Sprintf("mpool: too many pending messages for %s sender %s", kind, e.Sender)
}

// SoftValidationFailureError reports that a non-local message's gas fee cap
// fell below the conservative base-fee lower bound. Local messages with
// the same condition are admitted without publishing instead of erroring.
type SoftValidationFailureError struct {
	GasFeeCap         TokenAmount
	BaseFeeLowerBound TokenAmount
}

func (e *SoftValidationFailureError) Error() string {
	return fmt.Sprintf("mpool: gas fee cap %s does not meet base fee lower bound %s for inclusion in the next ten blocks",
		e.GasFeeCap, e.BaseFeeLowerBound)
}
