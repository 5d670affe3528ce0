package intent

import (
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"synapse/core/events"
	"synapse/core/types"
)

// Engine is the sole owner of intents and bids. It runs the auction state
// machine, enforces the bidding and execution deadlines through a single
// scheduler goroutine, fails over to runner-up bidders, and evicts terminal
// intents after the retention period. Every state transition runs under the
// engine mutex; events are emitted after the mutex is released, in program
// order, carrying cloned snapshots.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	ids     types.IDSource
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time

	intents map[string]*Intent
	books   map[string][]*Bid
	timers  *timerWheel

	intentsCreated   uint64
	intentsCompleted uint64
	intentsFailed    uint64
	intentsCancelled uint64
	bidsReceived     uint64
	failovers        uint64
	cleanupRuns      uint64
	intentsEvicted   uint64

	started bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

// Option customises Engine construction.
type Option func(*Engine)

// WithEmitter sets the event emitter. The default is a NoopEmitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDSource sets the identifier source. The default issues UUIDv7 IDs.
func WithIDSource(ids types.IDSource) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// NewEngine constructs an engine with the given configuration. Zero-valued
// config fields fall back to DefaultConfig. The engine does not enforce
// deadlines until Start is called; tests may instead drive time explicitly
// through SetNowFunc and the command surface.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.normalized(),
		ids:     types.UUIDSource{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   time.Now,
		intents: make(map[string]*Intent),
		books:   make(map[string][]*Bid),
		timers:  newTimerWheel(),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNowFunc overrides the engine clock. Passing nil restores time.Now.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) nowMs() int64 {
	return e.nowFn().UnixMilli()
}

// Start launches the scheduler goroutine that enforces deadlines and runs the
// retention sweep. Start is idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()
	go e.run()
}

// Stop halts the scheduler. A stopped engine never fires deadline callbacks;
// the command surface keeps working so tests and drains can still submit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()
	close(e.quit)
	<-e.done
}

// maxTimerIdle bounds how long the scheduler sleeps with an empty wheel so a
// clock override never strands it.
const maxTimerIdle = time.Minute

func (e *Engine) run() {
	defer close(e.done)
	cleanup := time.NewTicker(e.cfg.CleanupInterval)
	defer cleanup.Stop()
	for {
		e.mu.Lock()
		wait := maxTimerIdle
		if next, ok := e.timers.next(); ok {
			d := time.Duration(next-e.nowMs()) * time.Millisecond
			if d < 0 {
				d = 0
			}
			if d < wait {
				wait = d
			}
		}
		e.mu.Unlock()
		timer := time.NewTimer(wait)
		select {
		case <-e.quit:
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-cleanup.C:
			timer.Stop()
			e.runCleanup()
		case <-timer.C:
			e.fireDueTimers(e.nowMs())
		}
	}
}

func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) emit(evts []events.Event) {
	for _, evt := range evts {
		e.emitter.Emit(evt)
	}
}

// CreateIntent validates the request, stores the intent in the open state,
// schedules its bidding deadline, and emits intent:created.
func (e *Engine) CreateIntent(req CreateRequest, client types.Address) (*Intent, error) {
	if req.IntentType == "" {
		return nil, reject(RejectInvalidType, "intent type must not be empty")
	}
	if req.MaxBudget == nil || req.MaxBudget.Cmp(e.cfg.MinBidAmount) <= 0 {
		return nil, reject(RejectBudgetTooLow, "max budget must exceed the minimum bid amount %s", types.FormatAmount(e.cfg.MinBidAmount))
	}
	biddingDuration := req.BiddingDuration
	if biddingDuration == 0 {
		biddingDuration = e.cfg.DefaultBiddingDuration.Milliseconds()
	}
	if biddingDuration < e.cfg.MinBiddingDuration.Milliseconds() {
		return nil, reject(RejectBiddingWindowTooShort, "bidding duration %dms below platform minimum %dms", biddingDuration, e.cfg.MinBiddingDuration.Milliseconds())
	}
	executionTimeout := req.ExecutionTimeout
	if executionTimeout <= 0 {
		executionTimeout = e.cfg.DefaultExecutionTimeout.Milliseconds()
	}

	e.mu.Lock()
	now := e.nowMs()
	it := &Intent{
		ID:                e.ids.NewID(types.IDPrefixIntent),
		Client:            client,
		IntentType:        req.IntentType,
		Category:          req.Category,
		Params:            req.Params,
		MaxBudget:         new(big.Int).Set(req.MaxBudget),
		Currency:          req.Currency,
		Requirements:      req.Requirements.Clone(),
		CreatedAt:         now,
		BiddingDeadline:   now + biddingDuration,
		ExecutionDeadline: now + biddingDuration + executionTimeout,
		Status:            IntentStatusOpen,
	}
	e.intents[it.ID] = it
	e.intentsCreated++
	e.timers.schedule(it.ID, timerBidding, it.BiddingDeadline)
	snapshot := it.Clone()
	e.mu.Unlock()

	e.notify()
	e.emitter.Emit(events.IntentCreated{
		IntentID:        it.ID,
		Client:          client.String(),
		IntentType:      it.IntentType,
		MaxBudget:       types.FormatAmount(it.MaxBudget),
		Currency:        it.Currency,
		BiddingDeadline: it.BiddingDeadline,
	})
	return snapshot, nil
}

// SubmitBid validates the submission against the intent's requirements,
// scores it, inserts it into the book, re-ranks, and emits bid:received. The
// returned bid carries the calculated score and rank.
func (e *Engine) SubmitBid(sub BidSubmission) (*Bid, error) {
	e.mu.Lock()
	it, ok := e.intents[sub.IntentID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrIntentNotFound
	}
	if it.Status != IntentStatusOpen {
		e.mu.Unlock()
		return nil, reject(RejectIntentNotOpen, "intent %s is %s", it.ID, it.Status)
	}
	now := e.nowMs()
	if now > it.BiddingDeadline {
		e.mu.Unlock()
		return nil, reject(RejectBiddingClosed, "bidding deadline passed for %s", it.ID)
	}
	if sub.Amount == nil || sub.Amount.Cmp(e.cfg.MinBidAmount) < 0 || sub.Amount.Cmp(it.MaxBudget) > 0 {
		e.mu.Unlock()
		return nil, reject(RejectAmountOutOfBounds, "bid amount must be within [%s, %s]", types.FormatAmount(e.cfg.MinBidAmount), types.FormatAmount(it.MaxBudget))
	}
	reputation := NormalizeReputation(sub.Reputation)
	if reputation < it.Requirements.MinReputation {
		e.mu.Unlock()
		return nil, reject(RejectInsufficientReputation, "reputation %.2f below required %.2f", reputation, it.Requirements.MinReputation)
	}
	if it.Requirements.RequireTEE && !sub.TEEAttested {
		e.mu.Unlock()
		return nil, reject(RejectTEERequired, "intent %s requires TEE attestation", it.ID)
	}
	if it.Requirements.Excludes(sub.Provider) {
		e.mu.Unlock()
		return nil, reject(RejectProviderExcluded, "provider %s is excluded", sub.Provider)
	}
	book := e.books[it.ID]
	for _, existing := range book {
		if existing.Provider == sub.Provider {
			e.mu.Unlock()
			return nil, reject(RejectDuplicateBid, "provider %s already bid on %s", sub.Provider, it.ID)
		}
	}
	if len(book) >= e.cfg.MaxBidsPerIntent {
		e.mu.Unlock()
		return nil, reject(RejectTooManyBids, "intent %s already has %d bids", it.ID, len(book))
	}

	bid := &Bid{
		ID:              e.ids.NewID(types.IDPrefixBid),
		IntentID:        it.ID,
		Provider:        sub.Provider,
		ProviderID:      sub.ProviderID,
		Amount:          new(big.Int).Set(sub.Amount),
		EstimatedTimeMs: sub.EstimatedTimeMs,
		Confidence:      sub.Confidence,
		Reputation:      reputation,
		TEEAttested:     sub.TEEAttested,
		Capabilities:    append([]string(nil), sub.Capabilities...),
		SubmittedAt:     now,
		ExpiresAt:       it.ExecutionDeadline,
		Status:          BidStatusPending,
	}
	bid.Score = ScoreBid(it, bid, e.cfg.Scorer)
	book = append(book, bid)
	rankBids(book)
	e.books[it.ID] = book
	e.bidsReceived++
	snapshot := bid.Clone()
	e.mu.Unlock()

	e.emitter.Emit(events.BidReceived{
		BidID:      bid.ID,
		IntentID:   it.ID,
		Provider:   bid.Provider.String(),
		ProviderID: bid.ProviderID,
		Amount:     types.FormatAmount(bid.Amount),
		Score:      int64(bid.Score),
		Rank:       snapshot.Rank,
	})
	return snapshot, nil
}

// Get returns a snapshot of the intent, if present.
func (e *Engine) Get(id string) (*Intent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.intents[id]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// BidsForIntent returns cloned bids in rank order.
func (e *Engine) BidsForIntent(id string) []*Bid {
	e.mu.Lock()
	defer e.mu.Unlock()
	book := e.books[id]
	out := make([]*Bid, 0, len(book))
	for _, bid := range book {
		out = append(out, bid.Clone())
	}
	return out
}

// ForceCloseBidding collapses the bidding timer immediately, closing the
// auction as if the deadline had fired.
func (e *Engine) ForceCloseBidding(id string) error {
	e.mu.Lock()
	it, ok := e.intents[id]
	if !ok {
		e.mu.Unlock()
		return ErrIntentNotFound
	}
	if it.Status != IntentStatusOpen {
		e.mu.Unlock()
		return reject(RejectWrongStatus, "intent %s is %s", it.ID, it.Status)
	}
	e.timers.cancel(it.ID, timerBidding)
	evts := e.closeBiddingLocked(it)
	e.mu.Unlock()

	e.notify()
	e.emit(evts)
	return nil
}

// closeBiddingLocked runs bidding closure and, with bids present, winner
// selection. Caller holds the mutex; returned events are emitted after
// release.
func (e *Engine) closeBiddingLocked(it *Intent) []events.Event {
	pending := e.pendingBidsLocked(it.ID)
	if len(pending) == 0 {
		return e.failIntentLocked(it, "no bids received")
	}
	it.Status = IntentStatusBiddingClosed
	return e.selectWinnerLocked(it, pending)
}

func (e *Engine) pendingBidsLocked(intentID string) []*Bid {
	var pending []*Bid
	for _, bid := range e.books[intentID] {
		if bid.Status == BidStatusPending {
			pending = append(pending, bid)
		}
	}
	return pending
}

// selectWinnerLocked promotes the top-ranked pending bid, queues the rest as
// failover candidates in score order, and starts the pickup window.
func (e *Engine) selectWinnerLocked(it *Intent, pending []*Bid) []events.Event {
	winner := pending[0]
	for _, bid := range pending[1:] {
		if lessBid(bid, winner) {
			winner = bid
		}
	}
	winner.Status = BidStatusAccepted
	queue := make([]types.Address, 0, len(pending)-1)
	sort.Slice(pending, func(i, j int) bool { return lessBid(pending[i], pending[j]) })
	for _, bid := range pending {
		if bid == winner {
			continue
		}
		bid.Status = BidStatusFailover
		queue = append(queue, bid.Provider)
	}
	provider := winner.Provider
	it.AssignedProvider = &provider
	it.FailoverQueue = queue
	it.Status = IntentStatusAssigned
	e.timers.schedule(it.ID, timerExecution, e.nowMs()+e.cfg.FailoverTimeout.Milliseconds())
	return []events.Event{
		events.WinnerSelected{
			IntentID:      it.ID,
			BidID:         winner.ID,
			Provider:      winner.Provider.String(),
			Score:         int64(winner.Score),
			FailoverDepth: len(queue),
		},
		events.BidUpdated{
			BidID:    winner.ID,
			IntentID: it.ID,
			Provider: winner.Provider.String(),
			Status:   winner.Status.String(),
		},
		events.IntentUpdated{
			IntentID: it.ID,
			Status:   it.Status.String(),
			Provider: winner.Provider.String(),
		},
	}
}

// MarkExecutionStarted records that the assigned provider picked the job up.
// The execution timer moves from the short pickup window to the intent's
// global execution deadline.
func (e *Engine) MarkExecutionStarted(id string, provider types.Address) error {
	e.mu.Lock()
	it, ok := e.intents[id]
	if !ok {
		e.mu.Unlock()
		return ErrIntentNotFound
	}
	if it.Status != IntentStatusAssigned {
		e.mu.Unlock()
		return reject(RejectWrongStatus, "intent %s is %s", it.ID, it.Status)
	}
	if it.AssignedProvider == nil || *it.AssignedProvider != provider {
		e.mu.Unlock()
		return reject(RejectWrongProvider, "provider %s is not assigned to %s", provider, it.ID)
	}
	it.Status = IntentStatusExecuting
	e.timers.schedule(it.ID, timerExecution, it.ExecutionDeadline)
	e.mu.Unlock()

	e.notify()
	e.emitter.Emit(events.IntentUpdated{
		IntentID: it.ID,
		Status:   IntentStatusExecuting.String(),
		Provider: provider.String(),
	})
	return nil
}

// SubmitResult accepts the delivered result from the currently assigned
// provider, completes the intent, and marks the winning bid executed.
func (e *Engine) SubmitResult(id string, sub ResultSubmission) error {
	e.mu.Lock()
	it, ok := e.intents[id]
	if !ok {
		e.mu.Unlock()
		return ErrIntentNotFound
	}
	if it.Status != IntentStatusAssigned && it.Status != IntentStatusExecuting {
		e.mu.Unlock()
		return reject(RejectWrongStatus, "intent %s is %s", it.ID, it.Status)
	}
	if it.AssignedProvider == nil || *it.AssignedProvider != sub.Provider {
		e.mu.Unlock()
		return reject(RejectWrongProvider, "provider %s is not assigned to %s", sub.Provider, it.ID)
	}
	now := e.nowMs()
	it.Status = IntentStatusCompleted
	it.TerminalAt = now
	it.Result = &Result{
		ProviderID:      sub.ProviderID,
		Payload:         sub.Payload,
		ExecutionTimeMs: sub.ExecutionTimeMs,
		CompletedAt:     now,
	}
	e.timers.cancelAll(it.ID)
	var evts []events.Event
	if winning := e.acceptedBidLocked(it.ID); winning != nil {
		winning.Status = BidStatusExecuted
		evts = append(evts, events.BidUpdated{
			BidID:    winning.ID,
			IntentID: it.ID,
			Provider: winning.Provider.String(),
			Status:   winning.Status.String(),
		})
	} else {
		e.logger.Error("completed intent has no accepted bid",
			"intentId", it.ID,
			"provider", sub.Provider.String(),
		)
	}
	e.intentsCompleted++
	evts = append(evts, events.IntentCompleted{
		IntentID:        it.ID,
		Provider:        sub.Provider.String(),
		ProviderID:      sub.ProviderID,
		ExecutionTimeMs: sub.ExecutionTimeMs,
	})
	e.mu.Unlock()

	e.emit(evts)
	return nil
}

func (e *Engine) acceptedBidLocked(intentID string) *Bid {
	for _, bid := range e.books[intentID] {
		if bid.Status == BidStatusAccepted {
			return bid
		}
	}
	return nil
}

// TriggerFailover hands the intent to the next queued provider, as the
// execution timeout would.
func (e *Engine) TriggerFailover(id string) error {
	e.mu.Lock()
	it, ok := e.intents[id]
	if !ok {
		e.mu.Unlock()
		return ErrIntentNotFound
	}
	if it.Status != IntentStatusAssigned && it.Status != IntentStatusExecuting {
		e.mu.Unlock()
		return reject(RejectWrongStatus, "intent %s is %s", it.ID, it.Status)
	}
	e.timers.cancel(it.ID, timerExecution)
	evts := e.failoverLocked(it)
	e.mu.Unlock()

	e.notify()
	e.emit(evts)
	return nil
}

// failoverLocked marks the current accepted bid failed and reassigns to the
// head of the failover queue, or fails the intent when the queue is empty.
func (e *Engine) failoverLocked(it *Intent) []events.Event {
	var evts []events.Event
	var failedProvider string
	if current := e.acceptedBidLocked(it.ID); current != nil {
		current.Status = BidStatusFailed
		failedProvider = current.Provider.String()
		evts = append(evts, events.BidUpdated{
			BidID:    current.ID,
			IntentID: it.ID,
			Provider: failedProvider,
			Status:   current.Status.String(),
		})
	}
	if len(it.FailoverQueue) == 0 {
		it.AssignedProvider = nil
		return append(evts, e.failIntentLocked(it, "all providers failed")...)
	}
	next := it.FailoverQueue[0]
	it.FailoverQueue = it.FailoverQueue[1:]
	var nextBid *Bid
	for _, bid := range e.books[it.ID] {
		if bid.Provider == next && bid.Status == BidStatusFailover {
			nextBid = bid
			break
		}
	}
	if nextBid == nil {
		// Queue entry without a failover bid violates I4. Degrade by failing
		// the intent instead of assigning a provider with no bid.
		e.logger.Error("failover queue entry has no matching bid",
			"intentId", it.ID,
			"provider", next.String(),
		)
		it.AssignedProvider = nil
		return append(evts, e.failIntentLocked(it, "all providers failed")...)
	}
	nextBid.Status = BidStatusAccepted
	provider := next
	it.AssignedProvider = &provider
	it.Status = IntentStatusAssigned
	e.failovers++
	e.timers.schedule(it.ID, timerExecution, e.nowMs()+e.cfg.FailoverTimeout.Milliseconds())
	evts = append(evts,
		events.FailoverTriggered{
			IntentID:       it.ID,
			FailedProvider: failedProvider,
			NewProvider:    next.String(),
			Remaining:      len(it.FailoverQueue),
		},
		events.BidUpdated{
			BidID:    nextBid.ID,
			IntentID: it.ID,
			Provider: next.String(),
			Status:   nextBid.Status.String(),
		},
		events.IntentUpdated{
			IntentID: it.ID,
			Status:   it.Status.String(),
			Provider: next.String(),
		},
	)
	return evts
}

// failIntentLocked moves the intent into the failed terminal state.
func (e *Engine) failIntentLocked(it *Intent, reason string) []events.Event {
	it.Status = IntentStatusFailed
	it.FailureReason = reason
	it.TerminalAt = e.nowMs()
	e.timers.cancelAll(it.ID)
	e.intentsFailed++
	return []events.Event{events.IntentFailed{IntentID: it.ID, Reason: reason}}
}

// RecordPayment writes the settlement onto a completed intent's result and
// emits payment:settled.
func (e *Engine) RecordPayment(id string, amount *big.Int, txID string) error {
	e.mu.Lock()
	it, ok := e.intents[id]
	if !ok {
		e.mu.Unlock()
		return ErrIntentNotFound
	}
	if it.Status != IntentStatusCompleted || it.Result == nil {
		e.mu.Unlock()
		return reject(RejectWrongStatus, "intent %s is %s", it.ID, it.Status)
	}
	if amount != nil {
		it.Result.SettledAmount = new(big.Int).Set(amount)
	}
	it.Result.SettlementTx = txID
	var provider string
	if it.AssignedProvider != nil {
		provider = it.AssignedProvider.String()
	}
	e.mu.Unlock()

	e.emitter.Emit(events.PaymentSettled{
		IntentID: id,
		Provider: provider,
		Amount:   types.FormatAmount(amount),
		TxID:     txID,
	})
	return nil
}

// CancelIntent lets the originator withdraw an intent that has not started
// executing. Both timer families are cancelled atomically with the
// transition.
func (e *Engine) CancelIntent(id string, client types.Address) error {
	e.mu.Lock()
	it, ok := e.intents[id]
	if !ok {
		e.mu.Unlock()
		return ErrIntentNotFound
	}
	if it.Client != client {
		e.mu.Unlock()
		return reject(RejectNotOwner, "client %s did not create %s", client, it.ID)
	}
	switch it.Status {
	case IntentStatusOpen, IntentStatusBiddingClosed, IntentStatusAssigned:
	default:
		e.mu.Unlock()
		return reject(RejectWrongStatus, "intent %s is %s", it.ID, it.Status)
	}
	it.Status = IntentStatusCancelled
	it.TerminalAt = e.nowMs()
	it.AssignedProvider = nil
	e.timers.cancelAll(it.ID)
	e.intentsCancelled++
	e.mu.Unlock()

	e.emitter.Emit(events.IntentUpdated{
		IntentID: it.ID,
		Status:   IntentStatusCancelled.String(),
	})
	return nil
}

// Stats returns the engine's monitoring counters and live gauges.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		IntentsCreated:   e.intentsCreated,
		IntentsCompleted: e.intentsCompleted,
		IntentsFailed:    e.intentsFailed,
		IntentsCancelled: e.intentsCancelled,
		BidsReceived:     e.bidsReceived,
		Failovers:        e.failovers,
		CleanupRuns:      e.cleanupRuns,
		IntentsEvicted:   e.intentsEvicted,
		ActiveIntents:    len(e.intents),
		ScheduledTimers:  e.timers.size(),
	}
}

// fireDueTimers drains every deadline due at now and dispatches it into the
// state machine. Exposed to the scheduler goroutine and to tests driving a
// manual clock.
func (e *Engine) fireDueTimers(now int64) {
	e.mu.Lock()
	var evts []events.Event
	for _, entry := range e.timers.popDue(now) {
		it, ok := e.intents[entry.key.intentID]
		if !ok {
			continue
		}
		switch entry.key.kind {
		case timerBidding:
			if it.Status == IntentStatusOpen {
				evts = append(evts, e.closeBiddingLocked(it)...)
			}
		case timerExecution:
			if it.Status == IntentStatusAssigned || it.Status == IntentStatusExecuting {
				evts = append(evts, e.failoverLocked(it)...)
			}
		}
	}
	e.mu.Unlock()
	e.emit(evts)
}

// runCleanup evicts terminal intents past the retention period and enforces
// the hard intent cap, oldest terminal first. Bids are evicted with their
// intent.
func (e *Engine) runCleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanupRuns++
	now := e.nowMs()
	retention := e.cfg.RetentionPeriod.Milliseconds()
	var terminal []*Intent
	for _, it := range e.intents {
		if !it.Status.Terminal() {
			continue
		}
		if it.TerminalAt+retention <= now {
			e.evictLocked(it.ID)
			continue
		}
		terminal = append(terminal, it)
	}
	if excess := len(e.intents) - e.cfg.MaxIntents; excess > 0 {
		sort.Slice(terminal, func(i, j int) bool { return terminal[i].TerminalAt < terminal[j].TerminalAt })
		for i := 0; i < len(terminal) && excess > 0; i++ {
			e.evictLocked(terminal[i].ID)
			excess--
		}
	}
}

func (e *Engine) evictLocked(id string) {
	delete(e.intents, id)
	delete(e.books, id)
	e.timers.cancelAll(id)
	e.intentsEvicted++
}
