package dispute

import (
	"synapse/core/types"
	"synapse/native/escrow"
)

// Status tracks a dispute through adjudication.
type Status uint8

const (
	StatusOpened Status = iota + 1
	StatusEvidenceCollection
	StatusUnderReview
	StatusResolvedClientWins
	StatusResolvedProviderWins
	StatusResolvedSplit
	StatusExpired
)

// String renders the canonical lowercase form used in events and APIs.
func (s Status) String() string {
	switch s {
	case StatusOpened:
		return "opened"
	case StatusEvidenceCollection:
		return "evidence_collection"
	case StatusUnderReview:
		return "under_review"
	case StatusResolvedClientWins:
		return "resolved_client_wins"
	case StatusResolvedProviderWins:
		return "resolved_provider_wins"
	case StatusResolvedSplit:
		return "resolved_split"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Resolved reports whether the dispute reached a verdict.
func (s Status) Resolved() bool {
	switch s {
	case StatusResolvedClientWins, StatusResolvedProviderWins, StatusResolvedSplit:
		return true
	default:
		return false
	}
}

// Reason enumerates the allegations a client may raise.
type Reason string

const (
	ReasonIncorrectData     Reason = "incorrect_data"
	ReasonNoResponse        Reason = "no_response"
	ReasonLateResponse      Reason = "late_response"
	ReasonQualityIssue      Reason = "quality_issue"
	ReasonMaliciousBehavior Reason = "malicious_behavior"
	ReasonOther             Reason = "other"
)

// Valid reports whether the reason is one of the enumerated values.
func (r Reason) Valid() bool {
	switch r {
	case ReasonIncorrectData, ReasonNoResponse, ReasonLateResponse,
		ReasonQualityIssue, ReasonMaliciousBehavior, ReasonOther:
		return true
	default:
		return false
	}
}

// Submitter identifies who contributed an evidence entry.
type Submitter string

const (
	SubmitterClient   Submitter = "client"
	SubmitterProvider Submitter = "provider"
	SubmitterOracle   Submitter = "oracle"
)

// Evidence kinds appended by the pipeline.
const (
	EvidenceExecutionProof = "execution_proof"
	EvidenceReferenceData  = "reference_data"
	EvidenceOracleValue    = "oracle_value"
)

// Evidence is one append-only entry in a dispute's evidence log. Digest is
// the blake3 hash of the canonical JSON payload so archived evidence can be
// verified against the log.
type Evidence struct {
	ID        string
	Submitter Submitter
	Kind      string
	Payload   any
	Digest    string
	Timestamp int64
}

// Verdict is the outcome of the deviation test.
type Verdict string

const (
	VerdictClientWins   Verdict = "client_wins"
	VerdictProviderWins Verdict = "provider_wins"
	VerdictSplit        Verdict = "split"
)

// Resolution carries the verdict and the payout fractions in basis points.
type Resolution struct {
	Verdict              Verdict
	ClientRefundBps      uint32
	ProviderPaymentBps   uint32
	SlashBps             uint32
	ReputationPenaltyBps uint32
	Explanation          string
}

// Dispute is a contested intent under adjudication.
type Dispute struct {
	ID             string
	IntentID       string
	EscrowID       string
	Client         types.Address
	Provider       types.Address
	Reason         Reason
	Description    string
	Status         Status
	Evidence       []Evidence
	ProvidedValue  any
	ReferenceValue any
	Deviation      float64
	Resolution     *Resolution
	Slashing       *escrow.SlashReceipt
	CreatedAt      int64
	ResolvedAt     int64
}

// Clone returns a deep-enough copy for snapshots: slices and receipts are
// copied; opaque payloads are shared, callers must treat them as read-only.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	if len(d.Evidence) > 0 {
		clone.Evidence = append([]Evidence(nil), d.Evidence...)
	}
	if d.Resolution != nil {
		res := *d.Resolution
		clone.Resolution = &res
	}
	clone.Slashing = d.Slashing.Clone()
	return &clone
}

// OpenRequest is the input to Resolver.Open. IntentType names the oracle to
// consult; when empty the resolver falls back to inferring it from the shape
// of ProvidedValue.
type OpenRequest struct {
	IntentID      string
	EscrowID      string
	Client        types.Address
	Provider      types.Address
	Reason        Reason
	Description   string
	IntentType    string
	Params        map[string]any
	ProvidedValue any
	ExpectedValue any
}

// Stats is the resolver's monitoring contract.
type Stats struct {
	Total            uint64
	Open             uint64
	ClientWins       uint64
	ProviderWins     uint64
	Split            uint64
	Expired          uint64
	AverageDeviation float64
}
