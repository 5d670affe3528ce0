package dispute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"synapse/core/events"
	"synapse/core/types"
	"synapse/native/escrow"
	"synapse/native/oracle"
)

var (
	disputeClient   = types.MustParseAddress("0x1111111111111111111111111111111111111111")
	disputeProvider = types.MustParseAddress("0x2222222222222222222222222222222222222222")
	disputePlatform = types.MustParseAddress("0x3333333333333333333333333333333333333333")
)

type recordingEmitter struct {
	mu   sync.Mutex
	evts []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, evt)
}

func (r *recordingEmitter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.evts))
	for _, evt := range r.evts {
		out = append(out, evt.EventType())
	}
	return out
}

func (r *recordingEmitter) count(kind string) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestResolver(t *testing.T) (*Resolver, *escrow.MemoryAdapter, *recordingEmitter) {
	t.Helper()
	adapter := escrow.NewMemoryAdapter(escrow.WithIDSource(types.NewSequenceSource()))
	adapter.Deposit(&escrow.Escrow{
		ID:       "esc_1",
		IntentID: "int_1",
		Client:   disputeClient,
		Provider: disputeProvider,
		Amount:   types.MustParseAmount("10"),
		Currency: "USDC",
	})
	emitter := &recordingEmitter{}
	cfg := DefaultConfig()
	cfg.PlatformWallet = disputePlatform
	resolver := NewResolver(cfg, adapter, oracle.DemoRegistry(),
		WithEmitter(emitter), WithIDSource(types.NewSequenceSource()))
	return resolver, adapter, emitter
}

func openRequest(provided any) OpenRequest {
	return OpenRequest{
		IntentID:      "int_1",
		EscrowID:      "esc_1",
		Client:        disputeClient,
		Provider:      disputeProvider,
		Reason:        ReasonIncorrectData,
		Description:   "price way off",
		ProvidedValue: provided,
	}
}

// Scenario: provider reported BTC at 80000 against the 98500 reference;
// deviation ~18.8% exceeds the 5% threshold, so the client wins and a tenth
// of the escrow is slashed.
func TestOpenClientWinsWithSlash(t *testing.T) {
	resolver, adapter, emitter := newTestResolver(t)

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{
		"symbol": "BTC",
		"price":  80_000.0,
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != StatusResolvedClientWins {
		t.Fatalf("status = %s", d.Status)
	}
	res := d.Resolution
	if res.Verdict != VerdictClientWins || res.ClientRefundBps != 10_000 || res.ProviderPaymentBps != 0 {
		t.Fatalf("resolution = %+v", res)
	}
	if res.SlashBps != 1_000 {
		t.Fatalf("slash bps = %d", res.SlashBps)
	}
	if res.ReputationPenaltyBps != 1_939 {
		t.Fatalf("reputation penalty = %d bps, want 1939", res.ReputationPenaltyBps)
	}
	if d.Deviation < 0.187 || d.Deviation > 0.189 {
		t.Fatalf("deviation = %v", d.Deviation)
	}
	if d.ResolvedAt == 0 {
		t.Fatalf("resolved_at not set")
	}

	// Slash executed once: 10% of the 10 USDC escrow to the platform wallet.
	if d.Slashing == nil {
		t.Fatalf("slashing record missing")
	}
	if types.FormatAmount(d.Slashing.SlashedAmount) != "1" {
		t.Fatalf("slashed amount = %s", types.FormatAmount(d.Slashing.SlashedAmount))
	}
	if d.Slashing.Recipient != disputePlatform {
		t.Fatalf("slash recipient = %s", d.Slashing.Recipient)
	}
	esc, _ := adapter.Get(context.Background(), "esc_1")
	if types.FormatAmount(esc.Amount) != "9" {
		t.Fatalf("escrow balance = %s", types.FormatAmount(esc.Amount))
	}

	if emitter.count(events.TypeDisputeResolved) != 1 {
		t.Fatalf("dispute:resolved emitted %d times", emitter.count(events.TypeDisputeResolved))
	}
}

// Scenario: 98700 vs 98500 is ~0.2% deviation, within tolerance; the provider
// wins and nothing is slashed.
func TestOpenProviderWinsWithinTolerance(t *testing.T) {
	resolver, adapter, _ := newTestResolver(t)

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{
		"symbol": "BTC",
		"price":  98_700.0,
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != StatusResolvedProviderWins {
		t.Fatalf("status = %s", d.Status)
	}
	res := d.Resolution
	if res.Verdict != VerdictProviderWins || res.ProviderPaymentBps != 10_000 || res.ClientRefundBps != 0 {
		t.Fatalf("resolution = %+v", res)
	}
	if res.SlashBps != 0 || res.ReputationPenaltyBps != 0 {
		t.Fatalf("provider win carried penalties: %+v", res)
	}
	if d.Slashing != nil {
		t.Fatalf("slash executed on provider win")
	}
	esc, _ := adapter.Get(context.Background(), "esc_1")
	if types.FormatAmount(esc.Amount) != "10" {
		t.Fatalf("escrow balance changed: %s", types.FormatAmount(esc.Amount))
	}
}

func TestOpenSplitWhenNoComparand(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{
		"headline": "markets rally",
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != StatusResolvedSplit {
		t.Fatalf("status = %s", d.Status)
	}
	res := d.Resolution
	if res.Verdict != VerdictSplit || res.ClientRefundBps != 5_000 || res.ProviderPaymentBps != 5_000 {
		t.Fatalf("resolution = %+v", res)
	}
	if res.Explanation != "unable to determine fault" {
		t.Fatalf("explanation = %q", res.Explanation)
	}
	if d.Slashing != nil {
		t.Fatalf("split verdict slashed")
	}
}

func TestOpenDuplicateRejected(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	if _, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0})); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 90_000.0}))
	if !errors.Is(err, ErrDuplicateDispute) {
		t.Fatalf("duplicate open: got %v", err)
	}
}

func TestOpenMissingEscrowRejected(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	req := openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0})
	req.EscrowID = "esc_missing"
	if _, err := resolver.Open(context.Background(), req); !errors.Is(err, ErrMissingEscrow) {
		t.Fatalf("missing escrow: got %v", err)
	}

	req.EscrowID = ""
	if _, err := resolver.Open(context.Background(), req); !errors.Is(err, ErrMissingEscrow) {
		t.Fatalf("empty escrow: got %v", err)
	}
}

func TestEvidencePipelineOrdering(t *testing.T) {
	resolver, _, emitter := newTestResolver(t)

	req := openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0})
	req.ExpectedValue = map[string]any{"price": 98_500.0}
	d, err := resolver.Open(context.Background(), req)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Provider proof, client expectation, oracle answer.
	if len(d.Evidence) != 3 {
		t.Fatalf("evidence entries = %d", len(d.Evidence))
	}
	if d.Evidence[0].Submitter != SubmitterProvider || d.Evidence[0].Kind != EvidenceExecutionProof {
		t.Fatalf("first evidence = %+v", d.Evidence[0])
	}
	if d.Evidence[1].Submitter != SubmitterClient || d.Evidence[1].Kind != EvidenceReferenceData {
		t.Fatalf("second evidence = %+v", d.Evidence[1])
	}
	if d.Evidence[2].Submitter != SubmitterOracle || d.Evidence[2].Kind != EvidenceOracleValue {
		t.Fatalf("third evidence = %+v", d.Evidence[2])
	}
	for _, entry := range d.Evidence {
		if entry.Digest == "" || entry.ID == "" {
			t.Fatalf("evidence missing id or digest: %+v", entry)
		}
	}

	// dispute:opened strictly precedes all dispute:evidence, which precede
	// dispute:resolved.
	kinds := emitter.kinds()
	openedAt, resolvedAt := -1, -1
	var evidenceAt []int
	for i, kind := range kinds {
		switch kind {
		case events.TypeDisputeOpened:
			openedAt = i
		case events.TypeDisputeEvidence:
			evidenceAt = append(evidenceAt, i)
		case events.TypeDisputeResolved:
			resolvedAt = i
		}
	}
	if openedAt < 0 || resolvedAt < 0 || len(evidenceAt) != 3 {
		t.Fatalf("event kinds = %v", kinds)
	}
	for _, at := range evidenceAt {
		if at <= openedAt || at >= resolvedAt {
			t.Fatalf("evidence event out of order: %v", kinds)
		}
	}
}

// Explicit intent type takes precedence; the shape heuristic is the fallback.
func TestIntentTypeInference(t *testing.T) {
	if got := InferIntentType(map[string]any{"symbol": "BTC", "price": 1.0}); got != oracle.TypeCryptoPrice {
		t.Fatalf("crypto shape inferred %q", got)
	}
	if got := InferIntentType(map[string]any{"city": "london", "temperature": 11.5}); got != oracle.TypeWeatherCurrent {
		t.Fatalf("weather shape inferred %q", got)
	}
	if got := InferIntentType(map[string]any{"headline": "x"}); got != "" {
		t.Fatalf("unknown shape inferred %q", got)
	}
	if got := InferIntentType("not a map"); got != "" {
		t.Fatalf("non-map inferred %q", got)
	}
}

func TestExplicitIntentTypeOverridesInference(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	// The payload looks like nothing in the inference table, but the request
	// names weather.current and carries query params.
	req := openRequest(map[string]any{"value": 16.5})
	req.IntentType = oracle.TypeWeatherCurrent
	req.Params = map[string]any{"city": "tokyo"}
	d, err := resolver.Open(context.Background(), req)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.ReferenceValue == nil {
		t.Fatalf("oracle not consulted despite explicit type")
	}
	if d.Status != StatusResolvedProviderWins {
		t.Fatalf("status = %s (deviation %v)", d.Status, d.Deviation)
	}
}

// P8: with the same reference, a larger deviation is never more favourable to
// the provider.
func TestDeviationMonotonicity(t *testing.T) {
	verdictRank := func(v Verdict) int {
		switch v {
		case VerdictClientWins:
			return 0
		case VerdictSplit:
			return 1
		default:
			return 2
		}
	}
	provided := []float64{98_500, 97_000, 90_000, 80_000, 50_000}
	prevRank := 2
	prevPenalty := uint32(0)
	for i, price := range provided {
		resolver, _, _ := newTestResolver(t)
		d, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": price}))
		if err != nil {
			t.Fatalf("Open(%v): %v", price, err)
		}
		rank := verdictRank(d.Resolution.Verdict)
		if i > 0 && rank > prevRank {
			t.Fatalf("larger deviation produced more favourable verdict at price %v", price)
		}
		if d.Resolution.Verdict == VerdictClientWins && d.Resolution.ReputationPenaltyBps < prevPenalty {
			t.Fatalf("penalty decreased with deviation at price %v", price)
		}
		prevRank = rank
		prevPenalty = d.Resolution.ReputationPenaltyBps
	}
}

func TestReputationPenaltyClamped(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	// 1 vs 98500 is essentially a 100% deviation; the penalty saturates at
	// the configured maximum.
	d, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 1.0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Resolution.ReputationPenaltyBps != 5_000 {
		t.Fatalf("penalty = %d, want clamp at 5000", d.Resolution.ReputationPenaltyBps)
	}
}

type failingAdapter struct {
	inner *escrow.MemoryAdapter
}

func (f failingAdapter) Get(ctx context.Context, id string) (*escrow.Escrow, error) {
	return f.inner.Get(ctx, id)
}

func (f failingAdapter) Slash(context.Context, escrow.SlashRequest) (*escrow.SlashReceipt, error) {
	return nil, errors.New("chain unavailable")
}

// A slashing failure is logged but the dispute stays resolved.
func TestSlashFailureLeavesDisputeResolved(t *testing.T) {
	adapter := escrow.NewMemoryAdapter()
	adapter.Deposit(&escrow.Escrow{ID: "esc_1", Amount: types.MustParseAmount("10")})
	emitter := &recordingEmitter{}
	cfg := DefaultConfig()
	resolver := NewResolver(cfg, failingAdapter{inner: adapter}, oracle.DemoRegistry(),
		WithEmitter(emitter), WithIDSource(types.NewSequenceSource()))

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != StatusResolvedClientWins {
		t.Fatalf("status = %s", d.Status)
	}
	if d.Slashing != nil {
		t.Fatalf("failed slash recorded a receipt")
	}
	if emitter.count(events.TypeDisputeResolved) != 1 {
		t.Fatalf("dispute:resolved emitted %d times", emitter.count(events.TypeDisputeResolved))
	}
}

func TestSlashingDisabled(t *testing.T) {
	adapter := escrow.NewMemoryAdapter()
	adapter.Deposit(&escrow.Escrow{ID: "esc_1", Amount: types.MustParseAmount("10")})
	cfg := DefaultConfig()
	cfg.EnableSlashing = false
	resolver := NewResolver(cfg, adapter, oracle.DemoRegistry(), WithIDSource(types.NewSequenceSource()))

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Slashing != nil {
		t.Fatalf("slash executed with slashing disabled")
	}
	esc, _ := adapter.Get(context.Background(), "esc_1")
	if types.FormatAmount(esc.Amount) != "10" {
		t.Fatalf("escrow debited with slashing disabled")
	}
}

func TestOraclesDisabledFallsThroughToSplit(t *testing.T) {
	adapter := escrow.NewMemoryAdapter()
	adapter.Deposit(&escrow.Escrow{ID: "esc_1", Amount: types.MustParseAmount("10")})
	cfg := DefaultConfig()
	cfg.EnableOracles = false
	resolver := NewResolver(cfg, adapter, oracle.DemoRegistry(), WithIDSource(types.NewSequenceSource()))

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.ReferenceValue != nil {
		t.Fatalf("oracle consulted while disabled")
	}
	if d.Status != StatusResolvedSplit {
		t.Fatalf("status = %s", d.Status)
	}
}

func TestQueries(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{"symbol": "BTC", "price": 80_000.0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got, ok := resolver.Get(d.ID); !ok || got.ID != d.ID {
		t.Fatalf("Get failed")
	}
	if _, ok := resolver.Get("disp_missing"); ok {
		t.Fatalf("Get found missing dispute")
	}
	if got, ok := resolver.ByIntent("int_1"); !ok || got.ID != d.ID {
		t.Fatalf("ByIntent failed")
	}
	if got := resolver.ByClient(disputeClient); len(got) != 1 {
		t.Fatalf("ByClient = %d", len(got))
	}
	if got := resolver.ByProvider(disputeProvider); len(got) != 1 {
		t.Fatalf("ByProvider = %d", len(got))
	}
	if got := resolver.ByProvider(disputePlatform); len(got) != 0 {
		t.Fatalf("ByProvider(miss) = %d", len(got))
	}

	stats := resolver.Stats()
	if stats.Total != 1 || stats.ClientWins != 1 || stats.Open != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.AverageDeviation < 0.18 || stats.AverageDeviation > 0.19 {
		t.Fatalf("average deviation = %v", stats.AverageDeviation)
	}
}

func TestExpireStale(t *testing.T) {
	adapter := escrow.NewMemoryAdapter()
	adapter.Deposit(&escrow.Escrow{ID: "esc_1", Amount: types.MustParseAmount("10")})
	emitter := &recordingEmitter{}
	// An empty registry with oracles enabled leaves the dispute resolvable
	// only by the split rule; to exercise expiry we freeze one mid-pipeline
	// by opening with a clock, resolving, then checking resolved disputes are
	// immune, plus expiring a synthetic stuck one.
	resolver := NewResolver(DefaultConfig(), adapter, oracle.NewRegistry(),
		WithEmitter(emitter), WithIDSource(types.NewSequenceSource()))
	base := time.UnixMilli(1_700_000_000_000)
	resolver.SetNowFunc(func() time.Time { return base })

	d, err := resolver.Open(context.Background(), openRequest(map[string]any{"headline": "x"}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Simulate a dispute stuck before resolution.
	resolver.mu.Lock()
	stuck := &Dispute{ID: "disp_stuck", IntentID: "int_2", EscrowID: "esc_1", Status: StatusUnderReview, CreatedAt: base.UnixMilli()}
	resolver.disputes[stuck.ID] = stuck
	resolver.byIntent[stuck.IntentID] = stuck.ID
	resolver.mu.Unlock()

	resolver.SetNowFunc(func() time.Time { return base.Add(10 * time.Minute) })
	if expired := resolver.ExpireStale(); expired != 1 {
		t.Fatalf("expired = %d", expired)
	}

	got, _ := resolver.Get("disp_stuck")
	if got.Status != StatusExpired {
		t.Fatalf("stuck dispute status = %s", got.Status)
	}
	resolved, _ := resolver.Get(d.ID)
	if resolved.Status != StatusResolvedSplit {
		t.Fatalf("resolved dispute mutated by sweep: %s", resolved.Status)
	}
	if emitter.count(events.TypeDisputeExpired) != 1 {
		t.Fatalf("dispute:expired emitted %d times", emitter.count(events.TypeDisputeExpired))
	}
}
