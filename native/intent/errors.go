package intent

import (
	"errors"
	"fmt"
)

var (
	// ErrIntentNotFound is returned when the referenced intent id is unknown
	// (possibly already evicted).
	ErrIntentNotFound = errors.New("intent engine: intent not found")
)

// RejectReason enumerates the validation rejections engine commands return.
// Rejections are ordinary values: callers branch on the reason, nothing is
// thrown.
type RejectReason string

const (
	RejectInvalidType            RejectReason = "invalid_intent_type"
	RejectBudgetTooLow           RejectReason = "budget_too_low"
	RejectBiddingWindowTooShort  RejectReason = "bidding_window_too_short"
	RejectIntentNotOpen          RejectReason = "intent_not_open"
	RejectBiddingClosed          RejectReason = "bidding_deadline_passed"
	RejectAmountOutOfBounds      RejectReason = "bid_amount_out_of_bounds"
	RejectInsufficientReputation RejectReason = "insufficient_reputation"
	RejectTEERequired            RejectReason = "tee_attestation_required"
	RejectProviderExcluded       RejectReason = "provider_excluded"
	RejectDuplicateBid           RejectReason = "duplicate_bid"
	RejectTooManyBids            RejectReason = "too_many_bids"
	RejectNotOwner               RejectReason = "not_owner"
	RejectWrongProvider          RejectReason = "wrong_provider"
	RejectWrongStatus            RejectReason = "wrong_status"
)

// RejectionError is the structured validation failure for engine commands.
type RejectionError struct {
	Reason RejectReason
	Detail string
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("intent engine: rejected: %s", e.Reason)
	}
	return fmt.Sprintf("intent engine: rejected: %s: %s", e.Reason, e.Detail)
}

func reject(reason RejectReason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Rejection unwraps err into its rejection reason, reporting false for plain
// errors such as ErrIntentNotFound.
func Rejection(err error) (RejectReason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
