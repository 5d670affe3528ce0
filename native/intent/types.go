package intent

import (
	"math/big"

	"synapse/core/types"
)

// IntentStatus tracks an intent through its auction lifecycle.
type IntentStatus uint8

const (
	IntentStatusOpen IntentStatus = iota + 1
	IntentStatusBiddingClosed
	IntentStatusAssigned
	IntentStatusExecuting
	IntentStatusCompleted
	IntentStatusFailed
	IntentStatusCancelled
)

// String renders the canonical lowercase form used in events and APIs.
func (s IntentStatus) String() string {
	switch s {
	case IntentStatusOpen:
		return "open"
	case IntentStatusBiddingClosed:
		return "bidding_closed"
	case IntentStatusAssigned:
		return "assigned"
	case IntentStatusExecuting:
		return "executing"
	case IntentStatusCompleted:
		return "completed"
	case IntentStatusFailed:
		return "failed"
	case IntentStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Valid reports whether the status value is within the supported range.
func (s IntentStatus) Valid() bool {
	return s >= IntentStatusOpen && s <= IntentStatusCancelled
}

// Terminal reports whether the status ends the lifecycle. Terminal intents
// are retained for the configured retention period and then evicted.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusCompleted, IntentStatusFailed, IntentStatusCancelled:
		return true
	default:
		return false
	}
}

// BidStatus tracks a bid from submission to its final disposition.
type BidStatus uint8

const (
	BidStatusPending BidStatus = iota + 1
	BidStatusAccepted
	BidStatusFailover
	BidStatusExecuted
	BidStatusFailed
)

// String renders the canonical lowercase form used in events and APIs.
func (s BidStatus) String() string {
	switch s {
	case BidStatusPending:
		return "pending"
	case BidStatusAccepted:
		return "accepted"
	case BidStatusFailover:
		return "failover"
	case BidStatusExecuted:
		return "executed"
	case BidStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Requirements constrains which providers may bid on an intent.
type Requirements struct {
	MinReputation float64
	RequireTEE    bool
	Preferred     []types.Address
	Excluded      []types.Address
	MaxLatencyMs  int64
}

// Clone returns a deep copy of the requirements.
func (r Requirements) Clone() Requirements {
	clone := r
	if len(r.Preferred) > 0 {
		clone.Preferred = append([]types.Address(nil), r.Preferred...)
	}
	if len(r.Excluded) > 0 {
		clone.Excluded = append([]types.Address(nil), r.Excluded...)
	}
	return clone
}

// Excludes reports whether the provider is on the exclusion list.
func (r Requirements) Excludes(provider types.Address) bool {
	for _, addr := range r.Excluded {
		if addr == provider {
			return true
		}
	}
	return false
}

// Result captures the provider's delivered output and, once recorded, the
// settlement written against it.
type Result struct {
	ProviderID      string
	Payload         map[string]any
	ExecutionTimeMs int64
	SettledAmount   *big.Int
	SettlementTx    string
	CompletedAt     int64
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	clone := *r
	if r.SettledAmount != nil {
		clone.SettledAmount = new(big.Int).Set(r.SettledAmount)
	}
	if r.Payload != nil {
		clone.Payload = clonePayload(r.Payload)
	}
	return &clone
}

// Intent is a client's advertised unit of work. All timestamps are unix
// milliseconds from the engine clock; MaxBudget is micro-units.
type Intent struct {
	ID                string
	Client            types.Address
	IntentType        string
	Category          string
	Params            map[string]any
	MaxBudget         *big.Int
	Currency          string
	Requirements      Requirements
	CreatedAt         int64
	BiddingDeadline   int64
	ExecutionDeadline int64
	Status            IntentStatus
	AssignedProvider  *types.Address
	FailoverQueue     []types.Address
	Result            *Result
	FailureReason     string
	TerminalAt        int64
}

// Clone returns a deep copy so callers and subscribers can never mutate the
// engine's stored instance.
func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	clone := *i
	if i.MaxBudget != nil {
		clone.MaxBudget = new(big.Int).Set(i.MaxBudget)
	}
	if i.Params != nil {
		clone.Params = clonePayload(i.Params)
	}
	clone.Requirements = i.Requirements.Clone()
	if i.AssignedProvider != nil {
		addr := *i.AssignedProvider
		clone.AssignedProvider = &addr
	}
	if len(i.FailoverQueue) > 0 {
		clone.FailoverQueue = append([]types.Address(nil), i.FailoverQueue...)
	}
	clone.Result = i.Result.Clone()
	return &clone
}

// Bid is a provider's offer against an intent. Amount is micro-units;
// Reputation is the canonical 0..1 domain snapshotted at submission; Score is
// the scorer output scaled by ScoreScale.
type Bid struct {
	ID              string
	IntentID        string
	Provider        types.Address
	ProviderID      string
	Amount          *big.Int
	EstimatedTimeMs int64
	Confidence      float64
	Reputation      float64
	TEEAttested     bool
	Capabilities    []string
	Score           Score
	Rank            int
	SubmittedAt     int64
	ExpiresAt       int64
	Status          BidStatus
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	}
	if len(b.Capabilities) > 0 {
		clone.Capabilities = append([]string(nil), b.Capabilities...)
	}
	return &clone
}

func clonePayload(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			dst[k] = clonePayload(nested)
			continue
		}
		dst[k] = v
	}
	return dst
}

// CreateRequest is the input to Engine.CreateIntent.
type CreateRequest struct {
	IntentType        string
	Category          string
	Params            map[string]any
	MaxBudget         *big.Int
	Currency          string
	Requirements      Requirements
	BiddingDuration   int64
	ExecutionTimeout  int64
}

// BidSubmission is the input to Engine.SubmitBid.
type BidSubmission struct {
	IntentID        string
	Provider        types.Address
	ProviderID      string
	Amount          *big.Int
	EstimatedTimeMs int64
	Confidence      float64
	Reputation      float64
	TEEAttested     bool
	Capabilities    []string
}

// ResultSubmission is the input to Engine.SubmitResult.
type ResultSubmission struct {
	Provider        types.Address
	ProviderID      string
	Payload         map[string]any
	ExecutionTimeMs int64
}

// Stats is the engine's monitoring contract.
type Stats struct {
	IntentsCreated   uint64
	IntentsCompleted uint64
	IntentsFailed    uint64
	IntentsCancelled uint64
	BidsReceived     uint64
	Failovers        uint64
	CleanupRuns      uint64
	IntentsEvicted   uint64
	ActiveIntents    int
	ScheduledTimers  int
}
