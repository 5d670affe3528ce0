package escrow

import (
	"context"
	"errors"
	"math/big"

	"synapse/core/types"
)

var (
	// ErrEscrowNotFound is returned when the referenced escrow id is unknown.
	ErrEscrowNotFound = errors.New("escrow: escrow not found")
	// ErrInsufficientEscrow is returned when a slash would exceed the held
	// balance.
	ErrInsufficientEscrow = errors.New("escrow: insufficient balance")
	// ErrInvalidSlash is returned for slash requests without a positive
	// amount.
	ErrInvalidSlash = errors.New("escrow: invalid slash amount")
)

// Escrow is the dispute resolver's view of an externally held balance. The
// fabric never moves the funds itself; it knows the id and the amount and
// relies on the adapter to slash.
type Escrow struct {
	ID        string
	IntentID  string
	Client    types.Address
	Provider  types.Address
	Amount    *big.Int
	Currency  string
	CreatedAt int64
}

// Clone returns a deep copy of the escrow record.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	}
	return &clone
}

// SlashRequest asks the adapter to move part of an escrow to a recipient.
type SlashRequest struct {
	EscrowID  string
	Amount    *big.Int
	Recipient types.Address
	Reason    string
}

// SlashReceipt is the settlement tuple returned by a successful slash.
type SlashReceipt struct {
	TxID          string
	BlockNumber   uint64
	ExplorerURL   string
	SlashedAmount *big.Int
	Recipient     types.Address
	ExecutedAt    int64
}

// Clone returns a deep copy of the receipt.
func (r *SlashReceipt) Clone() *SlashReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	if r.SlashedAmount != nil {
		clone.SlashedAmount = new(big.Int).Set(r.SlashedAmount)
	}
	return &clone
}

// Adapter is the external collaborator owning escrow records. Slash must be
// idempotent under (escrow id, reason): replaying a slash returns the original
// receipt without moving funds twice.
type Adapter interface {
	Get(ctx context.Context, escrowID string) (*Escrow, error)
	Slash(ctx context.Context, req SlashRequest) (*SlashReceipt, error)
}
