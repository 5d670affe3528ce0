package escrow

import (
	"context"
	"math/big"
	"sync"
	"time"

	"synapse/core/types"
)

// MemoryAdapter is the in-process Adapter used by the daemon and by tests. It
// keeps a slash ledger keyed by (escrow id, reason) so a replayed slash
// returns the original receipt instead of debiting twice.
type MemoryAdapter struct {
	mu       sync.Mutex
	escrows  map[string]*Escrow
	slashes  map[slashKey]*SlashReceipt
	ids      types.IDSource
	nowFn    func() time.Time
	explorer string
	block    uint64
}

type slashKey struct {
	escrowID string
	reason   string
}

// MemoryOption customises MemoryAdapter construction.
type MemoryOption func(*MemoryAdapter)

// WithExplorerBase sets the base URL used to synthesise explorer links on
// receipts. Empty leaves ExplorerURL unset.
func WithExplorerBase(base string) MemoryOption {
	return func(a *MemoryAdapter) { a.explorer = base }
}

// WithIDSource overrides the identifier source used for receipt tx ids.
func WithIDSource(ids types.IDSource) MemoryOption {
	return func(a *MemoryAdapter) {
		if ids != nil {
			a.ids = ids
		}
	}
}

// NewMemoryAdapter constructs an empty adapter.
func NewMemoryAdapter(opts ...MemoryOption) *MemoryAdapter {
	a := &MemoryAdapter{
		escrows: make(map[string]*Escrow),
		slashes: make(map[slashKey]*SlashReceipt),
		ids:     types.UUIDSource{},
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ Adapter = (*MemoryAdapter)(nil)

// SetNowFunc overrides the adapter clock. Passing nil restores time.Now.
func (a *MemoryAdapter) SetNowFunc(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if now == nil {
		a.nowFn = time.Now
		return
	}
	a.nowFn = now
}

// Deposit registers an escrow balance. Re-depositing the same id replaces the
// record.
func (a *MemoryAdapter) Deposit(esc *Escrow) {
	if esc == nil || esc.ID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := esc.Clone()
	if stored.CreatedAt == 0 {
		stored.CreatedAt = a.nowFn().UnixMilli()
	}
	if stored.Amount == nil {
		stored.Amount = new(big.Int)
	}
	a.escrows[stored.ID] = stored
}

// Get implements Adapter.
func (a *MemoryAdapter) Get(_ context.Context, escrowID string) (*Escrow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	esc, ok := a.escrows[escrowID]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc.Clone(), nil
}

// Slash implements Adapter. The debit and the receipt are committed together
// under the adapter lock; a second slash with the same (escrow id, reason)
// returns the first receipt.
func (a *MemoryAdapter) Slash(_ context.Context, req SlashRequest) (*SlashReceipt, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidSlash
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := slashKey{escrowID: req.EscrowID, reason: req.Reason}
	if receipt, ok := a.slashes[key]; ok {
		return receipt.Clone(), nil
	}
	esc, ok := a.escrows[req.EscrowID]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	if esc.Amount.Cmp(req.Amount) < 0 {
		return nil, ErrInsufficientEscrow
	}
	esc.Amount = new(big.Int).Sub(esc.Amount, req.Amount)
	a.block++
	receipt := &SlashReceipt{
		TxID:          a.ids.NewID(types.IDPrefixSettlement),
		BlockNumber:   a.block,
		SlashedAmount: new(big.Int).Set(req.Amount),
		Recipient:     req.Recipient,
		ExecutedAt:    a.nowFn().UnixMilli(),
	}
	if a.explorer != "" {
		receipt.ExplorerURL = a.explorer + "/tx/" + receipt.TxID
	}
	a.slashes[key] = receipt
	return receipt.Clone(), nil
}
