package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	safetyMetricsOnce sync.Once
	safetyRegistry    *SafetyMetrics

	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Gateway returns the lazily-initialised metrics registry used to record
// HTTP gateway activity.
func Gateway() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "synapse",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// SafetyMetrics captures collectors for the payment safety gate.
type SafetyMetrics struct {
	checks       *prometheus.CounterVec
	blocks       *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	riskScore    prometheus.Histogram
}

// Safety returns the singleton metrics registry for the safety protocol.
func Safety() *SafetyMetrics {
	safetyMetricsOnce.Do(func() {
		safetyRegistry = &SafetyMetrics{
			checks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "safety",
				Name:      "checks_total",
				Help:      "Count of payment checks segmented by outcome.",
			}, []string{"outcome"}),
			blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "safety",
				Name:      "blocks_total",
				Help:      "Count of blocked payments segmented by triggering check.",
			}, []string{"check"}),
			breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "synapse",
				Subsystem: "safety",
				Name:      "circuit_state",
				Help:      "Current circuit breaker position; the active state's gauge is 1.",
			}, []string{"state"}),
			riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "synapse",
				Subsystem: "safety",
				Name:      "risk_score",
				Help:      "Distribution of risk scores assigned to checked payments.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			}),
		}
		prometheus.MustRegister(
			safetyRegistry.checks,
			safetyRegistry.blocks,
			safetyRegistry.breakerState,
			safetyRegistry.riskScore,
		)
	})
	return safetyRegistry
}

// ObserveCheck records the result of a payment check.
func (m *SafetyMetrics) ObserveCheck(allowed bool, riskScore float64) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	m.checks.WithLabelValues(outcome).Inc()
	if riskScore >= 0 && riskScore <= 1 {
		m.riskScore.Observe(riskScore)
	}
}

// RecordBlock increments the block counter for the named check.
func (m *SafetyMetrics) RecordBlock(check string) {
	if m == nil {
		return
	}
	if check = strings.TrimSpace(check); check == "" {
		check = "unspecified"
	}
	m.blocks.WithLabelValues(check).Inc()
}

// SetBreakerState marks the supplied state active and clears the others.
func (m *SafetyMetrics) SetBreakerState(state string) {
	if m == nil {
		return
	}
	for _, candidate := range []string{"closed", "open", "half_open"} {
		value := 0.0
		if candidate == state {
			value = 1
		}
		m.breakerState.WithLabelValues(candidate).Set(value)
	}
}

// EscrowMetrics wraps collectors tracking escrow balances and slashing.
type EscrowMetrics struct {
	slashes     *prometheus.CounterVec
	slashAmount *prometheus.CounterVec
	balance     *prometheus.GaugeVec
}

// Escrow exposes the metrics registry for the escrow adapter.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			slashes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "escrow",
				Name:      "slashes_total",
				Help:      "Count of executed slashes segmented by reason.",
			}, []string{"reason"}),
			slashAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "escrow",
				Name:      "slash_amount_micro_total",
				Help:      "Cumulative slashed value in micro-units segmented by reason.",
			}, []string{"reason"}),
			balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "synapse",
				Subsystem: "escrow",
				Name:      "balance_micro",
				Help:      "Remaining escrow balance in micro-units per escrow.",
			}, []string{"escrow"}),
		}
		prometheus.MustRegister(
			escrowRegistry.slashes,
			escrowRegistry.slashAmount,
			escrowRegistry.balance,
		)
	})
	return escrowRegistry
}

// RecordSlash registers an executed slash and its value.
func (m *EscrowMetrics) RecordSlash(reason string, amount *big.Int) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.slashes.WithLabelValues(reason).Inc()
	m.slashAmount.WithLabelValues(reason).Add(bigToFloat(amount))
}

// SetBalance updates the balance gauge for an escrow.
func (m *EscrowMetrics) SetBalance(escrowID string, balance *big.Int) {
	if m == nil {
		return
	}
	if escrowID == "" {
		escrowID = "unknown"
	}
	m.balance.WithLabelValues(escrowID).Set(bigToFloat(balance))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
