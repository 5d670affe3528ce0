package events

import "synapse/core/types"

// Event kinds emitted by the intent engine. The strings are part of the
// public contract; subscribers key on them.
const (
	TypeIntentCreated     = "intent:created"
	TypeIntentUpdated     = "intent:updated"
	TypeIntentCompleted   = "intent:completed"
	TypeIntentFailed      = "intent:failed"
	TypeBidReceived       = "bid:received"
	TypeBidUpdated        = "bid:updated"
	TypeWinnerSelected    = "winner:selected"
	TypeFailoverTriggered = "failover:triggered"
	TypePaymentSettled    = "payment:settled"
)

// IntentCreated is emitted once a new intent is accepted and its bidding
// window opens.
type IntentCreated struct {
	IntentID        string
	Client          string
	IntentType      string
	MaxBudget       string
	Currency        string
	BiddingDeadline int64
}

// EventType satisfies the events.Event interface.
func (IntentCreated) EventType() string { return TypeIntentCreated }

// Event converts the payload into the wire representation.
func (e IntentCreated) Event() *types.Event {
	attrs := map[string]string{
		"intentId":        e.IntentID,
		"biddingDeadline": formatInt(e.BiddingDeadline),
	}
	putIfSet(attrs, "client", e.Client)
	putIfSet(attrs, "intentType", e.IntentType)
	putIfSet(attrs, "maxBudget", e.MaxBudget)
	putIfSet(attrs, "currency", e.Currency)
	return &types.Event{Type: TypeIntentCreated, Attributes: attrs}
}

// IntentUpdated is emitted on every non-terminal status transition, including
// assignment and cancellation.
type IntentUpdated struct {
	IntentID string
	Status   string
	Provider string
}

// EventType satisfies the events.Event interface.
func (IntentUpdated) EventType() string { return TypeIntentUpdated }

// Event converts the payload into the wire representation.
func (e IntentUpdated) Event() *types.Event {
	attrs := map[string]string{"intentId": e.IntentID}
	putIfSet(attrs, "status", e.Status)
	putIfSet(attrs, "provider", e.Provider)
	return &types.Event{Type: TypeIntentUpdated, Attributes: attrs}
}

// IntentCompleted is emitted when the assigned provider delivers a result.
type IntentCompleted struct {
	IntentID        string
	Provider        string
	ProviderID      string
	ExecutionTimeMs int64
}

// EventType satisfies the events.Event interface.
func (IntentCompleted) EventType() string { return TypeIntentCompleted }

// Event converts the payload into the wire representation.
func (e IntentCompleted) Event() *types.Event {
	attrs := map[string]string{
		"intentId":        e.IntentID,
		"executionTimeMs": formatInt(e.ExecutionTimeMs),
	}
	putIfSet(attrs, "provider", e.Provider)
	putIfSet(attrs, "providerId", e.ProviderID)
	return &types.Event{Type: TypeIntentCompleted, Attributes: attrs}
}

// IntentFailed is emitted when an intent reaches the failed state, either at
// bidding close with no bids or after the failover queue is exhausted.
type IntentFailed struct {
	IntentID string
	Reason   string
}

// EventType satisfies the events.Event interface.
func (IntentFailed) EventType() string { return TypeIntentFailed }

// Event converts the payload into the wire representation.
func (e IntentFailed) Event() *types.Event {
	attrs := map[string]string{"intentId": e.IntentID}
	putIfSet(attrs, "reason", e.Reason)
	return &types.Event{Type: TypeIntentFailed, Attributes: attrs}
}

// BidReceived carries the stored bid after scoring and re-ranking.
type BidReceived struct {
	BidID      string
	IntentID   string
	Provider   string
	ProviderID string
	Amount     string
	Score      int64
	Rank       int
}

// EventType satisfies the events.Event interface.
func (BidReceived) EventType() string { return TypeBidReceived }

// Event converts the payload into the wire representation.
func (e BidReceived) Event() *types.Event {
	attrs := map[string]string{
		"bidId":    e.BidID,
		"intentId": e.IntentID,
		"score":    formatInt(e.Score),
		"rank":     formatInt(int64(e.Rank)),
	}
	putIfSet(attrs, "provider", e.Provider)
	putIfSet(attrs, "providerId", e.ProviderID)
	putIfSet(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeBidReceived, Attributes: attrs}
}

// BidUpdated reflects a bid status change (accepted, failover, executed,
// failed).
type BidUpdated struct {
	BidID    string
	IntentID string
	Provider string
	Status   string
}

// EventType satisfies the events.Event interface.
func (BidUpdated) EventType() string { return TypeBidUpdated }

// Event converts the payload into the wire representation.
func (e BidUpdated) Event() *types.Event {
	attrs := map[string]string{
		"bidId":    e.BidID,
		"intentId": e.IntentID,
	}
	putIfSet(attrs, "provider", e.Provider)
	putIfSet(attrs, "status", e.Status)
	return &types.Event{Type: TypeBidUpdated, Attributes: attrs}
}

// WinnerSelected is emitted exactly once per auction that closes with bids.
type WinnerSelected struct {
	IntentID      string
	BidID         string
	Provider      string
	Score         int64
	FailoverDepth int
}

// EventType satisfies the events.Event interface.
func (WinnerSelected) EventType() string { return TypeWinnerSelected }

// Event converts the payload into the wire representation.
func (e WinnerSelected) Event() *types.Event {
	attrs := map[string]string{
		"intentId":      e.IntentID,
		"bidId":         e.BidID,
		"score":         formatInt(e.Score),
		"failoverDepth": formatInt(int64(e.FailoverDepth)),
	}
	putIfSet(attrs, "provider", e.Provider)
	return &types.Event{Type: TypeWinnerSelected, Attributes: attrs}
}

// FailoverTriggered is emitted when the engine reassigns an intent to the
// next-ranked provider after an execution timeout.
type FailoverTriggered struct {
	IntentID       string
	FailedProvider string
	NewProvider    string
	Remaining      int
}

// EventType satisfies the events.Event interface.
func (FailoverTriggered) EventType() string { return TypeFailoverTriggered }

// Event converts the payload into the wire representation.
func (e FailoverTriggered) Event() *types.Event {
	attrs := map[string]string{
		"intentId":  e.IntentID,
		"remaining": formatInt(int64(e.Remaining)),
	}
	putIfSet(attrs, "failedProvider", e.FailedProvider)
	putIfSet(attrs, "newProvider", e.NewProvider)
	return &types.Event{Type: TypeFailoverTriggered, Attributes: attrs}
}

// PaymentSettled records the settlement written back onto a completed intent.
type PaymentSettled struct {
	IntentID string
	Provider string
	Amount   string
	TxID     string
}

// EventType satisfies the events.Event interface.
func (PaymentSettled) EventType() string { return TypePaymentSettled }

// Event converts the payload into the wire representation.
func (e PaymentSettled) Event() *types.Event {
	attrs := map[string]string{"intentId": e.IntentID}
	putIfSet(attrs, "provider", e.Provider)
	putIfSet(attrs, "amount", e.Amount)
	putIfSet(attrs, "txId", e.TxID)
	return &types.Event{Type: TypePaymentSettled, Attributes: attrs}
}
