package safety

import (
	"math/big"

	"synapse/core/types"
)

// Transaction is a candidate outgoing payment presented to the gate. Amount
// is micro-units; Timestamp is unix milliseconds and is stamped by the
// protocol when zero.
type Transaction struct {
	ID        string
	Timestamp int64
	Sender    types.Address
	Recipient types.Address
	Amount    *big.Int
	Resource  string
	SessionID string
}

// Clone returns a deep copy of the transaction.
func (t Transaction) Clone() Transaction {
	clone := t
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	}
	return clone
}

// CheckResult is the gate's answer. CheckPayment never errors; a blocked
// payment carries Reason, an allowed one may still carry warnings and a
// confirmation requirement.
type CheckResult struct {
	Allowed              bool
	Reason               string
	Warnings             []string
	RiskScore            float64
	Recommendations      []string
	RequiresConfirmation bool
	DelayMs              int64
}
