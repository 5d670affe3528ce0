package dispute

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"synapse/core/events"
	"synapse/core/types"
	"synapse/native/escrow"
	"synapse/native/oracle"
)

var (
	// ErrDuplicateDispute enforces the one-dispute-per-intent rule.
	ErrDuplicateDispute = errors.New("dispute resolver: dispute already exists for intent")
	// ErrMissingEscrow is returned when the request names no escrow or the
	// adapter does not know it.
	ErrMissingEscrow = errors.New("dispute resolver: escrow not found")
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("dispute resolver: invalid request")
	// ErrDisputeNotFound is returned when the referenced dispute id is
	// unknown.
	ErrDisputeNotFound = errors.New("dispute resolver: dispute not found")
)

// InferenceRule maps value-shape fields to an intent type. The rules are a
// fallback for requests that do not name their intent type explicitly.
type InferenceRule struct {
	Fields     []string
	IntentType string
}

// InferenceRules is the shape-inference table, checked in order. Deployments
// may extend it for additional marketplaces.
var InferenceRules = []InferenceRule{
	{Fields: []string{"symbol", "price"}, IntentType: oracle.TypeCryptoPrice},
	{Fields: []string{"temperature", "city"}, IntentType: oracle.TypeWeatherCurrent},
}

// InferIntentType applies the inference table to the provided value's shape.
// Unknown shapes return "".
func InferIntentType(value any) string {
	payload, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	for _, rule := range InferenceRules {
		for _, field := range rule.Fields {
			if _, present := payload[field]; present {
				return rule.IntentType
			}
		}
	}
	return ""
}

// Resolver turns an allegation of provider fault into a verdict and, on
// provider fault, an escrow slash. It owns disputes exclusively and holds
// only weak references to intents through the optional read accessor. All
// state mutations run under the resolver mutex; the oracle query and the
// slash call happen with the mutex released.
type Resolver struct {
	mu      sync.Mutex
	cfg     Config
	ids     types.IDSource
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time

	adapter escrow.Adapter
	oracles *oracle.Registry

	disputes map[string]*Dispute
	byIntent map[string]string

	deviationSum   float64
	deviationCount uint64
}

// Option customises Resolver construction.
type Option func(*Resolver)

// WithEmitter sets the event emitter. The default is a NoopEmitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Resolver) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIDSource sets the identifier source.
func WithIDSource(ids types.IDSource) Option {
	return func(r *Resolver) {
		if ids != nil {
			r.ids = ids
		}
	}
}

// NewResolver constructs a resolver bound to the escrow adapter and oracle
// registry capabilities.
func NewResolver(cfg Config, adapter escrow.Adapter, oracles *oracle.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:      cfg.normalized(),
		ids:      types.UUIDSource{},
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		nowFn:    time.Now,
		adapter:  adapter,
		oracles:  oracles,
		disputes: make(map[string]*Dispute),
		byIntent: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetNowFunc overrides the resolver clock. Passing nil restores time.Now.
func (r *Resolver) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now == nil {
		r.nowFn = time.Now
		return
	}
	r.nowFn = now
}

func (r *Resolver) nowMs() int64 {
	return r.nowFn().UnixMilli()
}

// Open registers a dispute against a completed intent and runs the full
// evidence pipeline through to a verdict. The returned snapshot reflects the
// resolved dispute including any slashing receipt.
func (r *Resolver) Open(ctx context.Context, req OpenRequest) (*Dispute, error) {
	if req.IntentID == "" {
		return nil, fmt.Errorf("%w: intent id required", ErrInvalidRequest)
	}
	if req.Reason == "" {
		req.Reason = ReasonOther
	}
	if !req.Reason.Valid() {
		return nil, fmt.Errorf("%w: unknown reason %q", ErrInvalidRequest, req.Reason)
	}
	if req.EscrowID == "" {
		return nil, fmt.Errorf("%w: escrow id required", ErrMissingEscrow)
	}
	var esc *escrow.Escrow
	if r.adapter != nil {
		found, err := r.adapter.Get(ctx, req.EscrowID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingEscrow, req.EscrowID)
		}
		esc = found
	}

	r.mu.Lock()
	if existing, ok := r.byIntent[req.IntentID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (%s)", ErrDuplicateDispute, req.IntentID, existing)
	}
	d := &Dispute{
		ID:            r.ids.NewID(types.IDPrefixDispute),
		IntentID:      req.IntentID,
		EscrowID:      req.EscrowID,
		Client:        req.Client,
		Provider:      req.Provider,
		Reason:        req.Reason,
		Description:   req.Description,
		Status:        StatusOpened,
		ProvidedValue: req.ProvidedValue,
		CreatedAt:     r.nowMs(),
	}
	r.disputes[d.ID] = d
	r.byIntent[d.IntentID] = d.ID
	r.mu.Unlock()

	r.emitter.Emit(events.DisputeOpened{
		DisputeID: d.ID,
		IntentID:  d.IntentID,
		EscrowID:  d.EscrowID,
		Client:    d.Client.String(),
		Provider:  d.Provider.String(),
		Reason:    string(d.Reason),
	})

	// Evidence stage: provider proof first, then the client's expected value
	// when supplied. Appends commit under the lock before the oracle await.
	r.mu.Lock()
	d.Status = StatusEvidenceCollection
	evts := []events.Event{
		r.appendEvidenceLocked(d, SubmitterProvider, EvidenceExecutionProof, req.ProvidedValue),
	}
	if req.ExpectedValue != nil {
		evts = append(evts, r.appendEvidenceLocked(d, SubmitterClient, EvidenceReferenceData, req.ExpectedValue))
	}
	r.mu.Unlock()
	r.emit(evts)

	// Oracle stage, outside the lock. A failed or absent oracle leaves the
	// reference unset and the verdict falls through the null-comparand rule.
	reference := r.queryOracle(ctx, req)
	if reference != nil {
		r.mu.Lock()
		d.ReferenceValue = reference
		evt := r.appendEvidenceLocked(d, SubmitterOracle, EvidenceOracleValue, reference)
		r.mu.Unlock()
		r.emit([]events.Event{evt})
	}

	// Review and verdict.
	r.mu.Lock()
	d.Status = StatusUnderReview
	resolvedEvt := r.resolveLocked(d)
	verdict := d.Resolution.Verdict
	snapshot := d.Clone()
	r.mu.Unlock()
	r.emitter.Emit(resolvedEvt)

	// Slashing runs after the resolution is committed; a failure here never
	// reopens the dispute.
	if verdict == VerdictClientWins && r.cfg.EnableSlashing && r.adapter != nil && esc != nil {
		if receipt := r.slash(ctx, d, esc); receipt != nil {
			r.mu.Lock()
			d.Slashing = receipt
			snapshot = d.Clone()
			r.mu.Unlock()
		}
	}
	return snapshot, nil
}

func (r *Resolver) emit(evts []events.Event) {
	for _, evt := range evts {
		r.emitter.Emit(evt)
	}
}

// appendEvidenceLocked appends one entry to the dispute's evidence log and
// returns the event to emit after the lock is released.
func (r *Resolver) appendEvidenceLocked(d *Dispute, submitter Submitter, kind string, payload any) events.Event {
	entry := Evidence{
		ID:        r.ids.NewID(types.IDPrefixEvidence),
		Submitter: submitter,
		Kind:      kind,
		Payload:   payload,
		Digest:    evidenceDigest(payload),
		Timestamp: r.nowMs(),
	}
	d.Evidence = append(d.Evidence, entry)
	return events.DisputeEvidence{
		DisputeID:  d.ID,
		EvidenceID: entry.ID,
		Submitter:  string(submitter),
		Kind:       kind,
		Digest:     entry.Digest,
	}
}

// evidenceDigest hashes the canonical JSON form of the payload so archived
// evidence can be verified against the log.
func evidenceDigest(payload any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", payload))
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func (r *Resolver) queryOracle(ctx context.Context, req OpenRequest) any {
	if !r.cfg.EnableOracles || r.oracles == nil {
		return nil
	}
	intentType := req.IntentType
	if intentType == "" {
		intentType = InferIntentType(req.ProvidedValue)
	}
	if intentType == "" {
		return nil
	}
	params := req.Params
	if params == nil {
		// The provided value's own fields (symbol, city) double as query
		// parameters when the request carries none.
		if shaped, ok := req.ProvidedValue.(map[string]any); ok {
			params = shaped
		}
	}
	qctx, cancel := context.WithTimeout(ctx, r.cfg.EvidenceTimeout)
	defer cancel()
	value, err := r.oracles.Query(qctx, intentType, params)
	if err != nil {
		r.logger.Warn("oracle query failed, skipping oracle evidence",
			"intentType", intentType,
			"error", err,
		)
		return nil
	}
	return value
}

// resolveLocked computes the deviation verdict and commits the resolution.
// ResolvedAt is set exactly once, on this transition.
func (r *Resolver) resolveLocked(d *Dispute) events.Event {
	provided, providedOK := oracle.Comparand(d.ProvidedValue)
	reference, referenceOK := oracle.Comparand(d.ReferenceValue)

	res := &Resolution{}
	switch {
	case !providedOK || !referenceOK || reference.Sign() == 0:
		res.Verdict = VerdictSplit
		res.ClientRefundBps = 5_000
		res.ProviderPaymentBps = 5_000
		res.Explanation = "unable to determine fault"
		d.Status = StatusResolvedSplit
	default:
		deviation := deviationRatio(provided, reference)
		d.Deviation = deviation
		r.deviationSum += deviation
		r.deviationCount++
		if deviation > r.cfg.DeviationThreshold {
			res.Verdict = VerdictClientWins
			res.ClientRefundBps = 10_000
			res.SlashBps = r.cfg.SlashBps
			res.ReputationPenaltyBps = r.penaltyBps(deviation)
			res.Explanation = fmt.Sprintf("provided value deviates %.2f%% from reference, above the %.2f%% threshold",
				deviation*100, r.cfg.DeviationThreshold*100)
			d.Status = StatusResolvedClientWins
		} else {
			res.Verdict = VerdictProviderWins
			res.ProviderPaymentBps = 10_000
			res.Explanation = fmt.Sprintf("provided value deviates %.2f%% from reference, within the %.2f%% threshold",
				deviation*100, r.cfg.DeviationThreshold*100)
			d.Status = StatusResolvedProviderWins
		}
	}
	d.Resolution = res
	d.ResolvedAt = r.nowMs()
	return events.DisputeResolved{
		DisputeID:            d.ID,
		IntentID:             d.IntentID,
		Verdict:              string(res.Verdict),
		Deviation:            d.Deviation,
		ClientRefundBps:      res.ClientRefundBps,
		ProviderPaymentBps:   res.ProviderPaymentBps,
		SlashBps:             res.SlashBps,
		ReputationPenaltyBps: res.ReputationPenaltyBps,
		Explanation:          res.Explanation,
	}
}

func deviationRatio(provided, reference *big.Rat) float64 {
	diff := new(big.Rat).Sub(provided, reference)
	diff.Abs(diff)
	ratio := diff.Quo(diff, new(big.Rat).Abs(reference))
	f, _ := ratio.Float64()
	return f
}

// penaltyBps computes clamp(min + deviation/2, min, max) in basis points.
func (r *Resolver) penaltyBps(deviation float64) uint32 {
	penalty := float64(r.cfg.MinReputationPenaltyBps) + math.Round(deviation*0.5*10_000)
	if penalty < float64(r.cfg.MinReputationPenaltyBps) {
		penalty = float64(r.cfg.MinReputationPenaltyBps)
	}
	if penalty > float64(r.cfg.MaxReputationPenaltyBps) {
		penalty = float64(r.cfg.MaxReputationPenaltyBps)
	}
	return uint32(penalty)
}

// slash debits SlashBps of the escrow toward the platform wallet, or the
// client when no platform wallet is configured. Failures are logged; the
// dispute stays resolved.
func (r *Resolver) slash(ctx context.Context, d *Dispute, esc *escrow.Escrow) *escrow.SlashReceipt {
	if esc.Amount == nil || esc.Amount.Sign() <= 0 {
		return nil
	}
	amount := new(big.Int).Mul(esc.Amount, big.NewInt(int64(r.cfg.SlashBps)))
	amount.Quo(amount, big.NewInt(10_000))
	if amount.Sign() <= 0 {
		return nil
	}
	recipient := r.cfg.PlatformWallet
	if recipient.IsZero() {
		recipient = d.Client
	}
	receipt, err := r.adapter.Slash(ctx, escrow.SlashRequest{
		EscrowID:  d.EscrowID,
		Amount:    amount,
		Recipient: recipient,
		Reason:    string(d.Reason),
	})
	if err != nil {
		r.logger.Error("escrow slash failed, dispute remains resolved",
			"disputeId", d.ID,
			"escrowId", d.EscrowID,
			"error", err,
		)
		return nil
	}
	return receipt
}

// ExpireStale abandons unresolved disputes whose evidence window lapsed.
// Hosts call it from a sweep ticker; it returns the number expired.
func (r *Resolver) ExpireStale() int {
	r.mu.Lock()
	now := r.nowMs()
	deadline := r.cfg.EvidenceTimeout.Milliseconds()
	var expired []events.Event
	for _, d := range r.disputes {
		if d.Status.Resolved() || d.Status == StatusExpired {
			continue
		}
		if d.CreatedAt+deadline <= now {
			d.Status = StatusExpired
			expired = append(expired, events.DisputeExpired{DisputeID: d.ID, IntentID: d.IntentID})
		}
	}
	r.mu.Unlock()
	r.emit(expired)
	return len(expired)
}

// Get returns a snapshot of the dispute, if present.
func (r *Resolver) Get(id string) (*Dispute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// ByIntent returns the dispute registered against the intent, if any.
func (r *Resolver) ByIntent(intentID string) (*Dispute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byIntent[intentID]
	if !ok {
		return nil, false
	}
	return r.disputes[id].Clone(), true
}

// ByClient returns every dispute raised by the client, oldest first.
func (r *Resolver) ByClient(client types.Address) []*Dispute {
	return r.filter(func(d *Dispute) bool { return d.Client == client })
}

// ByProvider returns every dispute against the provider, oldest first.
func (r *Resolver) ByProvider(provider types.Address) []*Dispute {
	return r.filter(func(d *Dispute) bool { return d.Provider == provider })
}

func (r *Resolver) filter(keep func(*Dispute) bool) []*Dispute {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Dispute
	for _, d := range r.disputes {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Stats returns the resolver's monitoring counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{}
	for _, d := range r.disputes {
		stats.Total++
		switch d.Status {
		case StatusResolvedClientWins:
			stats.ClientWins++
		case StatusResolvedProviderWins:
			stats.ProviderWins++
		case StatusResolvedSplit:
			stats.Split++
		case StatusExpired:
			stats.Expired++
		default:
			stats.Open++
		}
	}
	if r.deviationCount > 0 {
		stats.AverageDeviation = r.deviationSum / float64(r.deviationCount)
	}
	return stats
}
