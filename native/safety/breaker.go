package safety

// BreakerState is the circuit breaker's position.
type BreakerState uint8

const (
	BreakerClosed BreakerState = iota + 1
	BreakerOpen
	BreakerHalfOpen
)

// String renders the canonical lowercase form used in events.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker is the payment circuit breaker: a sliding window of failure
// timestamps trips it open; after the recovery timeout exactly one probe is
// admitted in half_open, and the probe's outcome closes or re-opens the
// circuit. Callers hold the protocol lock; all times are unix milliseconds.
type breaker struct {
	cfg              BreakerConfig
	state            BreakerState
	failures         []int64
	recoveryDeadline int64
	probeInFlight    bool
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{cfg: cfg, state: BreakerClosed}
}

// allow reports whether a payment may pass and whether the state changed
// while deciding (the open → half_open transition happens lazily here).
func (b *breaker) allow(now int64) (ok bool, transitioned bool) {
	switch b.state {
	case BreakerClosed:
		return true, false
	case BreakerOpen:
		if now <= b.recoveryDeadline {
			return false, false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true, true
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false, false
		}
		b.probeInFlight = true
		return true, false
	default:
		return true, false
	}
}

// recordFailure registers a failed payment outcome. In half_open the probe
// failure re-opens the circuit immediately; in closed the failure window is
// pruned and the threshold checked. Returns true when the state changed.
func (b *breaker) recordFailure(now int64) bool {
	switch b.state {
	case BreakerHalfOpen:
		b.trip(now)
		return true
	case BreakerOpen:
		return false
	}
	b.failures = append(b.failures, now)
	b.pruneFailures(now)
	if len(b.failures) >= b.cfg.FailureThreshold {
		b.trip(now)
		return true
	}
	return false
}

// recordSuccess registers a successful payment outcome. A half_open probe
// success closes the circuit. Returns true when the state changed.
func (b *breaker) recordSuccess(now int64) bool {
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.failures = nil
		b.probeInFlight = false
		return true
	}
	b.pruneFailures(now)
	return false
}

func (b *breaker) trip(now int64) {
	b.state = BreakerOpen
	b.recoveryDeadline = now + b.cfg.RecoveryTimeout.Milliseconds()
	b.failures = nil
	b.probeInFlight = false
}

func (b *breaker) pruneFailures(now int64) {
	window := b.cfg.FailureWindow.Milliseconds()
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if now-ts <= window {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}
