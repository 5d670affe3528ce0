package events

import "synapse/core/types"

// Event kinds emitted by the safety protocol. The bare names mirror the
// protocol's state-transition vocabulary.
const (
	TypeSafetyBlocked          = "blocked"
	TypeSafetyAnomaly          = "anomaly"
	TypeSafetyRateLimit        = "rate_limit"
	TypeSafetyCircuitBreaker   = "circuit_breaker"
	TypeSafetyCircularPayment  = "circular_payment"
	TypeSafetyLargeTransaction = "large_transaction"
	TypeSafetyCooldownStarted  = "cooldown_started"
	TypeSafetyCooldownEnded    = "cooldown_ended"
)

// SafetyBlocked is emitted whenever the gate denies a payment, in addition to
// the event describing the specific trigger.
type SafetyBlocked struct {
	TxID      string
	Sender    string
	Recipient string
	Amount    string
	Reason    string
}

// EventType satisfies the events.Event interface.
func (SafetyBlocked) EventType() string { return TypeSafetyBlocked }

// Event converts the payload into the wire representation.
func (e SafetyBlocked) Event() *types.Event {
	attrs := map[string]string{}
	putIfSet(attrs, "txId", e.TxID)
	putIfSet(attrs, "sender", e.Sender)
	putIfSet(attrs, "recipient", e.Recipient)
	putIfSet(attrs, "amount", e.Amount)
	putIfSet(attrs, "reason", e.Reason)
	return &types.Event{Type: TypeSafetyBlocked, Attributes: attrs}
}

// SafetyAnomaly is an advisory signal from the statistical detector.
type SafetyAnomaly struct {
	TxID   string
	Sender string
	Amount string
	Detail string
}

// EventType satisfies the events.Event interface.
func (SafetyAnomaly) EventType() string { return TypeSafetyAnomaly }

// Event converts the payload into the wire representation.
func (e SafetyAnomaly) Event() *types.Event {
	attrs := map[string]string{}
	putIfSet(attrs, "txId", e.TxID)
	putIfSet(attrs, "sender", e.Sender)
	putIfSet(attrs, "amount", e.Amount)
	putIfSet(attrs, "detail", e.Detail)
	return &types.Event{Type: TypeSafetyAnomaly, Attributes: attrs}
}

// SafetyRateLimit reports a tripped rate limit; Kind distinguishes the count
// limit from the value limit.
type SafetyRateLimit struct {
	TxID   string
	Sender string
	Kind   string
	Detail string
}

// EventType satisfies the events.Event interface.
func (SafetyRateLimit) EventType() string { return TypeSafetyRateLimit }

// Event converts the payload into the wire representation.
func (e SafetyRateLimit) Event() *types.Event {
	attrs := map[string]string{}
	putIfSet(attrs, "txId", e.TxID)
	putIfSet(attrs, "sender", e.Sender)
	putIfSet(attrs, "kind", e.Kind)
	putIfSet(attrs, "detail", e.Detail)
	return &types.Event{Type: TypeSafetyRateLimit, Attributes: attrs}
}

// SafetyCircuitBreaker reports a breaker state change (open, half_open,
// closed).
type SafetyCircuitBreaker struct {
	State string
}

// EventType satisfies the events.Event interface.
func (SafetyCircuitBreaker) EventType() string { return TypeSafetyCircuitBreaker }

// Event converts the payload into the wire representation.
func (e SafetyCircuitBreaker) Event() *types.Event {
	attrs := map[string]string{}
	putIfSet(attrs, "state", e.State)
	return &types.Event{Type: TypeSafetyCircuitBreaker, Attributes: attrs}
}

// SafetyCircularPayment reports a detected payment cycle; Path is the cycle
// trace from the proposed recipient back to the sender.
type SafetyCircularPayment struct {
	TxID      string
	Sender    string
	Recipient string
	Path      []string
}

// EventType satisfies the events.Event interface.
func (SafetyCircularPayment) EventType() string { return TypeSafetyCircularPayment }

// Event converts the payload into the wire representation.
func (e SafetyCircularPayment) Event() *types.Event {
	attrs := map[string]string{}
	putIfSet(attrs, "txId", e.TxID)
	putIfSet(attrs, "sender", e.Sender)
	putIfSet(attrs, "recipient", e.Recipient)
	putIfSet(attrs, "path", JoinPath(e.Path))
	return &types.Event{Type: TypeSafetyCircularPayment, Attributes: attrs}
}

// SafetyLargeTransaction reports a payment over the confirmation threshold.
type SafetyLargeTransaction struct {
	TxID      string
	Amount    string
	Threshold string
	DelayMs   int64
}

// EventType satisfies the events.Event interface.
func (SafetyLargeTransaction) EventType() string { return TypeSafetyLargeTransaction }

// Event converts the payload into the wire representation.
func (e SafetyLargeTransaction) Event() *types.Event {
	attrs := map[string]string{"delayMs": formatInt(e.DelayMs)}
	putIfSet(attrs, "txId", e.TxID)
	putIfSet(attrs, "amount", e.Amount)
	putIfSet(attrs, "threshold", e.Threshold)
	return &types.Event{Type: TypeSafetyLargeTransaction, Attributes: attrs}
}

// SafetyCooldownStarted marks the beginning of a rate-limit cooldown window.
type SafetyCooldownStarted struct {
	Until int64
}

// EventType satisfies the events.Event interface.
func (SafetyCooldownStarted) EventType() string { return TypeSafetyCooldownStarted }

// Event converts the payload into the wire representation.
func (e SafetyCooldownStarted) Event() *types.Event {
	return &types.Event{Type: TypeSafetyCooldownStarted, Attributes: map[string]string{
		"until": formatInt(e.Until),
	}}
}

// SafetyCooldownEnded marks the end of a rate-limit cooldown window.
type SafetyCooldownEnded struct {
	At int64
}

// EventType satisfies the events.Event interface.
func (SafetyCooldownEnded) EventType() string { return TypeSafetyCooldownEnded }

// Event converts the payload into the wire representation.
func (e SafetyCooldownEnded) Event() *types.Event {
	return &types.Event{Type: TypeSafetyCooldownEnded, Attributes: map[string]string{
		"at": formatInt(e.At),
	}}
}
