package safety

import (
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"synapse/core/events"
	"synapse/core/types"
)

// Protocol is the pre-trade gate every candidate outgoing payment passes
// through. It composes five independent checks; any blocking check
// short-circuits the rest. CheckPayment never errors: the answer is always a
// CheckResult.
type Protocol struct {
	mu      sync.Mutex
	cfg     Config
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time

	history       []Transaction
	graph         *paymentGraph
	breaker       *breaker
	cooldownUntil int64
}

// Option customises Protocol construction.
type Option func(*Protocol)

// WithEmitter sets the event emitter. The default is a NoopEmitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(p *Protocol) {
		if emitter != nil {
			p.emitter = emitter
		}
	}
}

// WithLogger sets the protocol logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProtocol constructs a gate with the given configuration. Zero-valued
// numeric fields fall back to DefaultConfig.
func NewProtocol(cfg Config, opts ...Option) *Protocol {
	p := &Protocol{
		cfg:     cfg.normalized(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   time.Now,
		graph:   newPaymentGraph(),
	}
	p.breaker = newBreaker(p.cfg.Breaker)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetNowFunc overrides the protocol clock. Passing nil restores time.Now.
func (p *Protocol) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now == nil {
		p.nowFn = time.Now
		return
	}
	p.nowFn = now
}

func (p *Protocol) nowMs() int64 {
	return p.nowFn().UnixMilli()
}

// BreakerState reports the circuit breaker's current position.
func (p *Protocol) BreakerState() BreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.breaker.state
}

// rateWindowMs is the sliding bucket the rate limit operates over.
const rateWindowMs = 60_000

// CheckPayment runs the gate. Allowed transactions are recorded into the
// history and the payment graph; blocked ones are not.
func (p *Protocol) CheckPayment(tx Transaction) CheckResult {
	p.mu.Lock()
	now := p.nowMs()
	if tx.Timestamp == 0 {
		tx.Timestamp = now
	}
	if tx.Amount == nil {
		tx.Amount = new(big.Int)
	}

	var evts []events.Event
	result := CheckResult{Allowed: true}

	// Cooldown from a previous rate-limit trip blocks everything until it
	// lapses.
	if p.cooldownUntil > 0 && now >= p.cooldownUntil {
		evts = append(evts, events.SafetyCooldownEnded{At: now})
		p.cooldownUntil = 0
	}
	if p.cooldownUntil > 0 {
		result = p.blockLocked(tx, &evts, fmt.Sprintf("rate limit cooldown active for another %dms", p.cooldownUntil-now))
		p.mu.Unlock()
		p.emit(evts)
		return result
	}

	// Rate limit: count and cumulative value over the last 60 seconds.
	count, value := p.rateBucketLocked(now)
	if count >= p.cfg.RateLimit.MaxTxPerMinute {
		evts = append(evts, events.SafetyRateLimit{TxID: tx.ID, Sender: tx.Sender.String(), Kind: "count",
			Detail: fmt.Sprintf("%d transactions in the last minute (max %d)", count, p.cfg.RateLimit.MaxTxPerMinute)})
		p.startCooldownLocked(now, &evts)
		result = p.blockLocked(tx, &evts, "rate limit exceeded: too many transactions per minute")
		p.mu.Unlock()
		p.emit(evts)
		return result
	}
	projected := new(big.Int).Add(value, tx.Amount)
	if projected.Cmp(p.cfg.RateLimit.MaxValuePerMinute) > 0 {
		evts = append(evts, events.SafetyRateLimit{TxID: tx.ID, Sender: tx.Sender.String(), Kind: "value",
			Detail: fmt.Sprintf("%s in the last minute (max %s)", types.FormatAmount(projected), types.FormatAmount(p.cfg.RateLimit.MaxValuePerMinute))})
		p.startCooldownLocked(now, &evts)
		result = p.blockLocked(tx, &evts, "rate limit exceeded: value per minute")
		p.mu.Unlock()
		p.emit(evts)
		return result
	}

	// Circuit breaker.
	if p.cfg.Breaker.Enabled {
		ok, transitioned := p.breaker.allow(now)
		if transitioned {
			evts = append(evts, events.SafetyCircuitBreaker{State: p.breaker.state.String()})
		}
		if !ok {
			result = p.blockLocked(tx, &evts, "circuit breaker open: payments suspended until recovery")
			p.mu.Unlock()
			p.emit(evts)
			return result
		}
		if p.breaker.state == BreakerHalfOpen {
			result.Warnings = append(result.Warnings, "circuit breaker half-open: this payment is the recovery probe")
		}
	}

	// Circular payment detection.
	if p.cfg.Circular.Enabled {
		p.graph.prune(now, p.cfg.Circular.TimeWindow.Milliseconds())
		if cycle := p.graph.findCycle(tx.Sender, tx.Recipient, p.cfg.Circular.MaxHops); cycle != nil {
			trace := make([]string, 0, len(cycle))
			for _, addr := range cycle {
				trace = append(trace, addr.String())
			}
			evts = append(evts, events.SafetyCircularPayment{TxID: tx.ID, Sender: tx.Sender.String(), Recipient: tx.Recipient.String(), Path: trace})
			result = p.blockLocked(tx, &evts, "circular payment detected: "+events.JoinPath(trace))
			p.mu.Unlock()
			p.emit(evts)
			return result
		}
		if p.graph.hasPaid(tx.Recipient, tx.Sender) {
			result.Warnings = append(result.Warnings, "potential cycle: recipient has previously paid sender")
		}
	}

	// Anomaly detection (advisory only).
	if p.cfg.Anomaly.Enabled {
		warnings := p.anomalyWarningsLocked(tx, now)
		if len(warnings) > 0 {
			result.Warnings = append(result.Warnings, warnings...)
			evts = append(evts, events.SafetyAnomaly{TxID: tx.ID, Sender: tx.Sender.String(),
				Amount: types.FormatAmount(tx.Amount), Detail: warnings[0]})
		}
	}

	// Large-transaction protection.
	if tx.Amount.Cmp(p.cfg.LargeTx.Threshold) >= 0 {
		result.RequiresConfirmation = p.cfg.LargeTx.RequireConfirmation
		result.DelayMs = p.cfg.LargeTx.Delay.Milliseconds()
		result.Warnings = append(result.Warnings, fmt.Sprintf("large transaction: %s is at or above the %s threshold",
			types.FormatAmount(tx.Amount), types.FormatAmount(p.cfg.LargeTx.Threshold)))
		result.Recommendations = append(result.Recommendations, "confirm the recipient before release; execution is delayed")
		evts = append(evts, events.SafetyLargeTransaction{TxID: tx.ID, Amount: types.FormatAmount(tx.Amount),
			Threshold: types.FormatAmount(p.cfg.LargeTx.Threshold), DelayMs: result.DelayMs})
	}

	result.RiskScore = p.riskScoreLocked(tx, result, count)
	p.recordLocked(tx)
	p.mu.Unlock()
	p.emit(evts)
	return result
}

// RecordOutcome feeds a payment's final outcome to the circuit breaker. A
// success in half_open closes the circuit; a failure trips it.
func (p *Protocol) RecordOutcome(success bool) {
	if !p.cfg.Breaker.Enabled {
		return
	}
	p.mu.Lock()
	now := p.nowMs()
	var transitioned bool
	if success {
		transitioned = p.breaker.recordSuccess(now)
	} else {
		transitioned = p.breaker.recordFailure(now)
	}
	state := p.breaker.state.String()
	p.mu.Unlock()
	if transitioned {
		p.emitter.Emit(events.SafetyCircuitBreaker{State: state})
	}
}

func (p *Protocol) emit(evts []events.Event) {
	for _, evt := range evts {
		p.emitter.Emit(evt)
	}
}

func (p *Protocol) blockLocked(tx Transaction, evts *[]events.Event, reason string) CheckResult {
	*evts = append(*evts, events.SafetyBlocked{
		TxID:      tx.ID,
		Sender:    tx.Sender.String(),
		Recipient: tx.Recipient.String(),
		Amount:    types.FormatAmount(tx.Amount),
		Reason:    reason,
	})
	return CheckResult{
		Allowed:   false,
		Reason:    reason,
		RiskScore: 1,
	}
}

func (p *Protocol) startCooldownLocked(now int64, evts *[]events.Event) {
	p.cooldownUntil = now + p.cfg.RateLimit.CooldownPeriod.Milliseconds()
	*evts = append(*evts, events.SafetyCooldownStarted{Until: p.cooldownUntil})
}

func (p *Protocol) rateBucketLocked(now int64) (int, *big.Int) {
	count := 0
	value := new(big.Int)
	for _, tx := range p.history {
		if now-tx.Timestamp <= rateWindowMs {
			count++
			value.Add(value, tx.Amount)
		}
	}
	return count, value
}

func (p *Protocol) anomalyWarningsLocked(tx Transaction, now int64) []string {
	var warnings []string
	amounts := make([]float64, 0, len(p.history))
	recentToRecipient := 0
	firstTime := true
	for _, past := range p.history {
		amounts = append(amounts, microToFloat(past.Amount))
		if past.Recipient == tx.Recipient {
			firstTime = false
			if now-past.Timestamp <= rateWindowMs {
				recentToRecipient++
			}
		}
	}
	if len(amounts) >= p.cfg.Anomaly.MinTransactions {
		mean, stddev := meanStdDev(amounts)
		threshold := p.cfg.Anomaly.StdDevThreshold * p.cfg.Anomaly.Sensitivity
		if stddev > 0 {
			z := math.Abs(microToFloat(tx.Amount)-mean) / stddev
			if z > threshold {
				warnings = append(warnings, fmt.Sprintf("amount deviates %.1f standard deviations from the rolling mean", z))
			}
		}
	}
	hour := time.UnixMilli(tx.Timestamp).Local().Hour()
	if hour >= 2 && hour < 5 {
		warnings = append(warnings, "unusual hour: payment initiated between 02:00 and 05:00")
	}
	if firstTime && len(p.history) > 0 {
		warnings = append(warnings, "first payment to this recipient")
	}
	if recentToRecipient >= 3 {
		warnings = append(warnings, fmt.Sprintf("%d recent payments to the same recipient", recentToRecipient))
	}
	return warnings
}

// riskScoreLocked folds the advisory signals into a 0..1 score: warning
// count, amount relative to the large-transaction threshold, circuit state,
// and how much of the per-minute budget is already consumed.
func (p *Protocol) riskScoreLocked(tx Transaction, result CheckResult, recentCount int) float64 {
	score := 0.15 * float64(len(result.Warnings))
	if ratio := bigRatio(tx.Amount, p.cfg.LargeTx.Threshold); ratio > 0 {
		score += 0.3 * math.Min(ratio, 1)
	}
	switch p.breaker.state {
	case BreakerHalfOpen:
		score += 0.2
	case BreakerOpen:
		score += 0.4
	}
	score += 0.2 * math.Min(float64(recentCount)/float64(p.cfg.RateLimit.MaxTxPerMinute), 1)
	return math.Min(score, 1)
}

func (p *Protocol) recordLocked(tx Transaction) {
	p.history = append(p.history, tx.Clone())
	if excess := len(p.history) - p.cfg.MaxHistory; excess > 0 {
		p.history = append(p.history[:0:0], p.history[excess:]...)
	}
	p.graph.record(tx.Sender, tx.Recipient, tx.Timestamp)
}

func microToFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(amount, big.NewInt(1_000_000)).Float64()
	return f
}

func bigRatio(num, den *big.Int) float64 {
	if num == nil || den == nil || den.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(num, den).Float64()
	return f
}

func meanStdDev(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	var variance float64
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return mean, math.Sqrt(variance)
}
