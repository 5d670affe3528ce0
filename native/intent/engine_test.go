package intent

import (
	"sync"
	"testing"
	"time"

	"synapse/core/events"
	"synapse/core/types"
)

var (
	testClient    = types.MustParseAddress("0x1111111111111111111111111111111111111111")
	testProvider1 = types.MustParseAddress("0xaaaA000000000000000000000000000000000001")
	testProvider2 = types.MustParseAddress("0xAAaa000000000000000000000000000000000002")
	testProvider3 = types.MustParseAddress("0xaAAa000000000000000000000000000000000003")
)

// manualClock is a deterministic time source for driving deadlines by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingEmitter captures emitted events in program order.
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

func newTestEngine(t *testing.T) (*Engine, *manualClock, *recordingEmitter) {
	t.Helper()
	clock := newManualClock()
	emitter := &recordingEmitter{}
	eng := NewEngine(Config{}, WithEmitter(emitter), WithIDSource(types.NewSequenceSource()))
	eng.SetNowFunc(clock.Now)
	return eng, clock, emitter
}

func createTestIntent(t *testing.T, eng *Engine) *Intent {
	t.Helper()
	it, err := eng.CreateIntent(CreateRequest{
		IntentType:      "crypto.price",
		Params:          map[string]any{"symbol": "BTC"},
		MaxBudget:       types.MustParseAmount("1"),
		Currency:        "USDC",
		BiddingDuration: 5_000,
	}, testClient)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	return it
}

func submitThreeBids(t *testing.T, eng *Engine, intentID string) {
	t.Helper()
	bids := []BidSubmission{
		{IntentID: intentID, Provider: testProvider1, ProviderID: "prov-1", Amount: types.MustParseAmount("0.60"), EstimatedTimeMs: 500, Confidence: 0.9, Reputation: 0.9},
		{IntentID: intentID, Provider: testProvider2, ProviderID: "prov-2", Amount: types.MustParseAmount("0.80"), EstimatedTimeMs: 300, Confidence: 0.95, Reputation: 0.7, TEEAttested: true},
		{IntentID: intentID, Provider: testProvider3, ProviderID: "prov-3", Amount: types.MustParseAmount("0.50"), EstimatedTimeMs: 2_000, Confidence: 0.6, Reputation: 0.5},
	}
	for _, sub := range bids {
		if _, err := eng.SubmitBid(sub); err != nil {
			t.Fatalf("SubmitBid(%s): %v", sub.ProviderID, err)
		}
	}
}

func TestCreateIntentValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.CreateIntent(CreateRequest{MaxBudget: types.MustParseAmount("1")}, testClient)
	if reason, _ := Rejection(err); reason != RejectInvalidType {
		t.Fatalf("empty type: got %v", err)
	}

	_, err = eng.CreateIntent(CreateRequest{IntentType: "x", MaxBudget: types.MustParseAmount("0.0005")}, testClient)
	if reason, _ := Rejection(err); reason != RejectBudgetTooLow {
		t.Fatalf("low budget: got %v", err)
	}

	_, err = eng.CreateIntent(CreateRequest{IntentType: "x", MaxBudget: types.MustParseAmount("1"), BiddingDuration: 10}, testClient)
	if reason, _ := Rejection(err); reason != RejectBiddingWindowTooShort {
		t.Fatalf("short window: got %v", err)
	}
}

func TestSubmitBidValidation(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	it, err := eng.CreateIntent(CreateRequest{
		IntentType:      "crypto.price",
		MaxBudget:       types.MustParseAmount("1"),
		BiddingDuration: 5_000,
		Requirements: Requirements{
			MinReputation: 0.5,
			RequireTEE:    true,
			Excluded:      []types.Address{testProvider3},
		},
	}, testClient)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	cases := []struct {
		name string
		sub  BidSubmission
		want RejectReason
	}{
		{"amount above budget", BidSubmission{IntentID: it.ID, Provider: testProvider1, Amount: types.MustParseAmount("2"), Reputation: 0.9, TEEAttested: true}, RejectAmountOutOfBounds},
		{"amount below floor", BidSubmission{IntentID: it.ID, Provider: testProvider1, Amount: types.MustParseAmount("0.0001"), Reputation: 0.9, TEEAttested: true}, RejectAmountOutOfBounds},
		{"reputation too low", BidSubmission{IntentID: it.ID, Provider: testProvider1, Amount: types.MustParseAmount("0.5"), Reputation: 0.3, TEEAttested: true}, RejectInsufficientReputation},
		{"tee required", BidSubmission{IntentID: it.ID, Provider: testProvider1, Amount: types.MustParseAmount("0.5"), Reputation: 0.9}, RejectTEERequired},
		{"excluded provider", BidSubmission{IntentID: it.ID, Provider: testProvider3, Amount: types.MustParseAmount("0.5"), Reputation: 0.9, TEEAttested: true}, RejectProviderExcluded},
	}
	for _, tc := range cases {
		_, err := eng.SubmitBid(tc.sub)
		if reason, ok := Rejection(err); !ok || reason != tc.want {
			t.Fatalf("%s: got %v, want %s", tc.name, err, tc.want)
		}
	}

	if _, err := eng.SubmitBid(BidSubmission{IntentID: it.ID, Provider: testProvider1, Amount: types.MustParseAmount("0.5"), Reputation: 0.9, TEEAttested: true}); err != nil {
		t.Fatalf("valid bid rejected: %v", err)
	}
	_, err = eng.SubmitBid(BidSubmission{IntentID: it.ID, Provider: testProvider1, Amount: types.MustParseAmount("0.4"), Reputation: 0.9, TEEAttested: true})
	if reason, _ := Rejection(err); reason != RejectDuplicateBid {
		t.Fatalf("duplicate bid: got %v", err)
	}

	clock.Advance(10 * time.Second)
	_, err = eng.SubmitBid(BidSubmission{IntentID: it.ID, Provider: testProvider2, Amount: types.MustParseAmount("0.5"), Reputation: 0.9, TEEAttested: true})
	if reason, _ := Rejection(err); reason != RejectBiddingClosed {
		t.Fatalf("late bid: got %v", err)
	}

	if _, err := eng.SubmitBid(BidSubmission{IntentID: "int_missing", Provider: testProvider1, Amount: types.MustParseAmount("0.5")}); err != ErrIntentNotFound {
		t.Fatalf("unknown intent: got %v", err)
	}
}

// Happy auction: three bids, force-close, the cheap reputable provider wins
// and the others queue in score order.
func TestHappyAuction(t *testing.T) {
	eng, _, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)

	bids := eng.BidsForIntent(it.ID)
	if len(bids) != 3 {
		t.Fatalf("bid count = %d", len(bids))
	}
	for i, bid := range bids {
		if bid.Rank != i+1 {
			t.Fatalf("rank at %d = %d", i, bid.Rank)
		}
	}

	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}

	got, ok := eng.Get(it.ID)
	if !ok {
		t.Fatalf("intent gone")
	}
	if got.Status != IntentStatusAssigned {
		t.Fatalf("status = %s", got.Status)
	}
	if got.AssignedProvider == nil || *got.AssignedProvider != testProvider1 {
		t.Fatalf("assigned = %v, want provider 1", got.AssignedProvider)
	}
	if len(got.FailoverQueue) != 2 || got.FailoverQueue[0] != testProvider2 || got.FailoverQueue[1] != testProvider3 {
		t.Fatalf("failover queue = %v", got.FailoverQueue)
	}
	if emitter.count(events.TypeWinnerSelected) != 1 {
		t.Fatalf("winner:selected emitted %d times", emitter.count(events.TypeWinnerSelected))
	}

	// P1: exactly one accepted bid, matching the assigned provider.
	accepted := 0
	for _, bid := range eng.BidsForIntent(it.ID) {
		switch bid.Status {
		case BidStatusAccepted:
			accepted++
			if bid.Provider != testProvider1 {
				t.Fatalf("accepted bid provider = %s", bid.Provider)
			}
		case BidStatusFailover:
		default:
			t.Fatalf("unexpected bid status %s", bid.Status)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted bids = %d", accepted)
	}
}

func TestBiddingCloseWithoutBids(t *testing.T) {
	eng, clock, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)

	clock.Advance(6 * time.Second)
	eng.fireDueTimers(clock.Now().UnixMilli())

	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.FailureReason != "no bids received" {
		t.Fatalf("reason = %q", got.FailureReason)
	}
	if emitter.count(events.TypeIntentFailed) != 1 {
		t.Fatalf("intent:failed emitted %d times", emitter.count(events.TypeIntentFailed))
	}
}

// Failover: the pickup window elapses without MarkExecutionStarted and the
// intent moves to the runner-up.
func TestFailoverOnPickupTimeout(t *testing.T) {
	eng, clock, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)
	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}

	clock.Advance(11 * time.Second)
	eng.fireDueTimers(clock.Now().UnixMilli())

	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusAssigned {
		t.Fatalf("status = %s", got.Status)
	}
	if got.AssignedProvider == nil || *got.AssignedProvider != testProvider2 {
		t.Fatalf("assigned = %v, want provider 2", got.AssignedProvider)
	}
	if len(got.FailoverQueue) != 1 || got.FailoverQueue[0] != testProvider3 {
		t.Fatalf("failover queue = %v", got.FailoverQueue)
	}
	for _, bid := range eng.BidsForIntent(it.ID) {
		switch bid.Provider {
		case testProvider1:
			if bid.Status != BidStatusFailed {
				t.Fatalf("provider 1 bid status = %s", bid.Status)
			}
		case testProvider2:
			if bid.Status != BidStatusAccepted {
				t.Fatalf("provider 2 bid status = %s", bid.Status)
			}
		}
	}
	if emitter.count(events.TypeFailoverTriggered) != 1 {
		t.Fatalf("failover:triggered emitted %d times", emitter.count(events.TypeFailoverTriggered))
	}
}

// All providers fail: failover exhausts the queue and the intent fails.
func TestFailoverExhaustsQueue(t *testing.T) {
	eng, clock, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)
	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}

	for i := 0; i < 3; i++ {
		clock.Advance(11 * time.Second)
		eng.fireDueTimers(clock.Now().UnixMilli())
	}

	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.FailureReason != "all providers failed" {
		t.Fatalf("reason = %q", got.FailureReason)
	}
	if emitter.count(events.TypeIntentFailed) != 1 {
		t.Fatalf("intent:failed emitted %d times", emitter.count(events.TypeIntentFailed))
	}
	if got.AssignedProvider != nil {
		t.Fatalf("assigned provider should be cleared")
	}
	if stats := eng.Stats(); stats.Failovers != 2 {
		t.Fatalf("failovers = %d, want 2", stats.Failovers)
	}
}

func TestMarkExecutionStartedExtendsDeadline(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)
	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}

	if err := eng.MarkExecutionStarted(it.ID, testProvider2); err == nil {
		t.Fatalf("wrong provider accepted")
	}
	if err := eng.MarkExecutionStarted(it.ID, testProvider1); err != nil {
		t.Fatalf("MarkExecutionStarted: %v", err)
	}
	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusExecuting {
		t.Fatalf("status = %s", got.Status)
	}

	// The pickup window elapsing no longer triggers failover; the global
	// execution deadline governs now.
	clock.Advance(11 * time.Second)
	eng.fireDueTimers(clock.Now().UnixMilli())
	got, _ = eng.Get(it.ID)
	if got.Status != IntentStatusExecuting {
		t.Fatalf("status after pickup window = %s", got.Status)
	}

	clock.Advance(10 * time.Minute)
	eng.fireDueTimers(clock.Now().UnixMilli())
	got, _ = eng.Get(it.ID)
	if got.Status != IntentStatusAssigned {
		t.Fatalf("status after execution deadline = %s, want failover to next provider", got.Status)
	}
}

func TestSubmitResultCompletes(t *testing.T) {
	eng, _, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)
	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}

	err := eng.SubmitResult(it.ID, ResultSubmission{Provider: testProvider2, ProviderID: "prov-2"})
	if reason, _ := Rejection(err); reason != RejectWrongProvider {
		t.Fatalf("wrong provider: got %v", err)
	}

	payload := map[string]any{"symbol": "BTC", "price": 98_500.0}
	if err := eng.SubmitResult(it.ID, ResultSubmission{Provider: testProvider1, ProviderID: "prov-1", Payload: payload, ExecutionTimeMs: 420}); err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}

	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Result == nil || got.Result.ProviderID != "prov-1" || got.Result.ExecutionTimeMs != 420 {
		t.Fatalf("result = %+v", got.Result)
	}
	if emitter.count(events.TypeIntentCompleted) != 1 {
		t.Fatalf("intent:completed emitted %d times", emitter.count(events.TypeIntentCompleted))
	}

	// P2: completed intents correspond to executed bids one-to-one.
	executed := 0
	for _, bid := range eng.BidsForIntent(it.ID) {
		if bid.Status == BidStatusExecuted {
			executed++
		}
	}
	if executed != 1 {
		t.Fatalf("executed bids = %d", executed)
	}

	err = eng.SubmitResult(it.ID, ResultSubmission{Provider: testProvider1})
	if reason, _ := Rejection(err); reason != RejectWrongStatus {
		t.Fatalf("resubmission: got %v", err)
	}
}

func TestRecordPayment(t *testing.T) {
	eng, _, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)
	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}

	if err := eng.RecordPayment(it.ID, types.MustParseAmount("0.60"), "tx_settle"); err == nil {
		t.Fatalf("payment before completion accepted")
	}
	if err := eng.SubmitResult(it.ID, ResultSubmission{Provider: testProvider1, ProviderID: "prov-1"}); err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}
	if err := eng.RecordPayment(it.ID, types.MustParseAmount("0.60"), "tx_settle"); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	got, _ := eng.Get(it.ID)
	if got.Result.SettlementTx != "tx_settle" {
		t.Fatalf("settlement tx = %q", got.Result.SettlementTx)
	}
	if types.FormatAmount(got.Result.SettledAmount) != "0.6" {
		t.Fatalf("settled amount = %s", types.FormatAmount(got.Result.SettledAmount))
	}
	if emitter.count(events.TypePaymentSettled) != 1 {
		t.Fatalf("payment:settled emitted %d times", emitter.count(events.TypePaymentSettled))
	}
}

func TestCancelIntent(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	it := createTestIntent(t, eng)

	if err := eng.CancelIntent(it.ID, testProvider1); err == nil {
		t.Fatalf("non-owner cancel accepted")
	}
	if err := eng.CancelIntent(it.ID, testClient); err != nil {
		t.Fatalf("CancelIntent: %v", err)
	}
	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}

	if err := eng.CancelIntent(it.ID, testClient); err == nil {
		t.Fatalf("cancel of cancelled intent accepted")
	}
}

func TestCancelledIntentTimersNeverFire(t *testing.T) {
	eng, clock, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	if err := eng.CancelIntent(it.ID, testClient); err != nil {
		t.Fatalf("CancelIntent: %v", err)
	}

	clock.Advance(time.Minute)
	eng.fireDueTimers(clock.Now().UnixMilli())

	got, _ := eng.Get(it.ID)
	if got.Status != IntentStatusCancelled {
		t.Fatalf("cancelled intent transitioned to %s", got.Status)
	}
	if emitter.count(events.TypeIntentFailed) != 0 {
		t.Fatalf("spurious intent:failed after cancellation")
	}
}

// P9: a terminal intent is evicted within retention + cleanup interval.
func TestCleanupEvictsTerminalIntents(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	it := createTestIntent(t, eng)
	if err := eng.CancelIntent(it.ID, testClient); err != nil {
		t.Fatalf("CancelIntent: %v", err)
	}

	clock.Advance(30 * time.Minute)
	eng.runCleanup()
	if _, ok := eng.Get(it.ID); !ok {
		t.Fatalf("intent evicted before retention expired")
	}

	clock.Advance(31 * time.Minute)
	eng.runCleanup()
	if _, ok := eng.Get(it.ID); ok {
		t.Fatalf("intent not evicted after retention")
	}
	if len(eng.BidsForIntent(it.ID)) != 0 {
		t.Fatalf("bids survived eviction")
	}
	stats := eng.Stats()
	if stats.IntentsEvicted != 1 || stats.CleanupRuns != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCleanupEnforcesHardCap(t *testing.T) {
	clock := newManualClock()
	eng := NewEngine(Config{MaxIntents: 2}, WithIDSource(types.NewSequenceSource()))
	eng.SetNowFunc(clock.Now)

	var ids []string
	for i := 0; i < 3; i++ {
		it, err := eng.CreateIntent(CreateRequest{
			IntentType:      "crypto.price",
			MaxBudget:       types.MustParseAmount("1"),
			BiddingDuration: 5_000,
		}, testClient)
		if err != nil {
			t.Fatalf("CreateIntent: %v", err)
		}
		if err := eng.CancelIntent(it.ID, testClient); err != nil {
			t.Fatalf("CancelIntent: %v", err)
		}
		ids = append(ids, it.ID)
		clock.Advance(time.Second)
	}

	eng.runCleanup()
	if _, ok := eng.Get(ids[0]); ok {
		t.Fatalf("oldest terminal intent survived the cap")
	}
	if _, ok := eng.Get(ids[2]); !ok {
		t.Fatalf("newest terminal intent evicted prematurely")
	}
	if stats := eng.Stats(); stats.ActiveIntents != 2 {
		t.Fatalf("active intents = %d", stats.ActiveIntents)
	}
}

func TestEngineStartStop(t *testing.T) {
	eng := NewEngine(Config{CleanupInterval: 10 * time.Millisecond})
	eng.Start()
	eng.Start() // idempotent
	time.Sleep(30 * time.Millisecond)
	eng.Stop()
	eng.Stop() // idempotent
}

func TestEventOrderingPerIntent(t *testing.T) {
	eng, _, emitter := newTestEngine(t)
	it := createTestIntent(t, eng)
	submitThreeBids(t, eng, it.ID)
	if err := eng.ForceCloseBidding(it.ID); err != nil {
		t.Fatalf("ForceCloseBidding: %v", err)
	}
	if err := eng.SubmitResult(it.ID, ResultSubmission{Provider: testProvider1, ProviderID: "prov-1"}); err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}

	winnerAt, completedAt := -1, -1
	for i, kind := range emitter.kinds() {
		switch kind {
		case events.TypeWinnerSelected:
			winnerAt = i
		case events.TypeIntentCompleted:
			completedAt = i
		}
	}
	if winnerAt < 0 || completedAt < 0 || winnerAt > completedAt {
		t.Fatalf("winner:selected at %d, intent:completed at %d", winnerAt, completedAt)
	}
}
