package events

import "synapse/core/types"

// Event kinds emitted by the dispute resolver.
const (
	TypeDisputeOpened   = "dispute:opened"
	TypeDisputeEvidence = "dispute:evidence"
	TypeDisputeResolved = "dispute:resolved"
	TypeDisputeExpired  = "dispute:expired"
)

// DisputeOpened is emitted when a dispute is registered against a completed
// intent, before the evidence pipeline runs.
type DisputeOpened struct {
	DisputeID string
	IntentID  string
	EscrowID  string
	Client    string
	Provider  string
	Reason    string
}

// EventType satisfies the events.Event interface.
func (DisputeOpened) EventType() string { return TypeDisputeOpened }

// Event converts the payload into the wire representation.
func (e DisputeOpened) Event() *types.Event {
	attrs := map[string]string{
		"disputeId": e.DisputeID,
		"intentId":  e.IntentID,
	}
	putIfSet(attrs, "escrowId", e.EscrowID)
	putIfSet(attrs, "client", e.Client)
	putIfSet(attrs, "provider", e.Provider)
	putIfSet(attrs, "reason", e.Reason)
	return &types.Event{Type: TypeDisputeOpened, Attributes: attrs}
}

// DisputeEvidence is emitted for every evidence entry appended to a dispute,
// strictly after dispute:opened and before dispute:resolved.
type DisputeEvidence struct {
	DisputeID  string
	EvidenceID string
	Submitter  string
	Kind       string
	Digest     string
}

// EventType satisfies the events.Event interface.
func (DisputeEvidence) EventType() string { return TypeDisputeEvidence }

// Event converts the payload into the wire representation.
func (e DisputeEvidence) Event() *types.Event {
	attrs := map[string]string{
		"disputeId":  e.DisputeID,
		"evidenceId": e.EvidenceID,
	}
	putIfSet(attrs, "submitter", e.Submitter)
	putIfSet(attrs, "kind", e.Kind)
	putIfSet(attrs, "digest", e.Digest)
	return &types.Event{Type: TypeDisputeEvidence, Attributes: attrs}
}

// DisputeResolved carries the verdict and the resolution fractions in basis
// points.
type DisputeResolved struct {
	DisputeID            string
	IntentID             string
	Verdict              string
	Deviation            float64
	ClientRefundBps      uint32
	ProviderPaymentBps   uint32
	SlashBps             uint32
	ReputationPenaltyBps uint32
	Explanation          string
}

// EventType satisfies the events.Event interface.
func (DisputeResolved) EventType() string { return TypeDisputeResolved }

// Event converts the payload into the wire representation.
func (e DisputeResolved) Event() *types.Event {
	attrs := map[string]string{
		"disputeId":            e.DisputeID,
		"intentId":             e.IntentID,
		"deviation":            formatFloat(e.Deviation),
		"clientRefundBps":      formatUint(e.ClientRefundBps),
		"providerPaymentBps":   formatUint(e.ProviderPaymentBps),
		"slashBps":             formatUint(e.SlashBps),
		"reputationPenaltyBps": formatUint(e.ReputationPenaltyBps),
	}
	putIfSet(attrs, "verdict", e.Verdict)
	putIfSet(attrs, "explanation", e.Explanation)
	return &types.Event{Type: TypeDisputeResolved, Attributes: attrs}
}

// DisputeExpired marks a dispute abandoned by the expiry sweep because its
// evidence window lapsed without a resolution.
type DisputeExpired struct {
	DisputeID string
	IntentID  string
}

// EventType satisfies the events.Event interface.
func (DisputeExpired) EventType() string { return TypeDisputeExpired }

// Event converts the payload into the wire representation.
func (e DisputeExpired) Event() *types.Event {
	attrs := map[string]string{"disputeId": e.DisputeID}
	putIfSet(attrs, "intentId", e.IntentID)
	return &types.Event{Type: TypeDisputeExpired, Attributes: attrs}
}
