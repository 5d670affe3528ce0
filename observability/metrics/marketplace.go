package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketplaceMetrics struct {
	intentsCreated  prometheus.Counter
	intentsSettled  *prometheus.CounterVec
	openIntents     prometheus.Gauge
	bidsReceived    prometheus.Counter
	winnersSelected prometheus.Counter
	failovers       prometheus.Counter
	paymentsSettled prometheus.Counter
	disputesOpened  *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	deviation       prometheus.Histogram
}

var (
	marketplaceOnce     sync.Once
	marketplaceRegistry *MarketplaceMetrics
)

func Marketplace() *MarketplaceMetrics {
	marketplaceOnce.Do(func() {
		marketplaceRegistry = &MarketplaceMetrics{
			intentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synapse_intents_created_total",
				Help: "Count of intents accepted into the marketplace.",
			}),
			intentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synapse_intents_settled_total",
				Help: "Count of intents reaching a terminal status by outcome.",
			}, []string{"outcome"}),
			openIntents: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "synapse_intents_open",
				Help: "Number of intents currently in a non-terminal status.",
			}),
			bidsReceived: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synapse_bids_received_total",
				Help: "Count of bids accepted into auctions.",
			}),
			winnersSelected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synapse_winners_selected_total",
				Help: "Count of auction winner selections, including failover reassignments.",
			}),
			failovers: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synapse_failovers_total",
				Help: "Count of provider failovers.",
			}),
			paymentsSettled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synapse_payments_settled_total",
				Help: "Count of settled intent payments.",
			}),
			disputesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synapse_disputes_opened_total",
				Help: "Count of opened disputes by reason.",
			}, []string{"reason"}),
			verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synapse_dispute_verdicts_total",
				Help: "Count of resolved disputes by verdict.",
			}, []string{"verdict"}),
			deviation: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "synapse_dispute_deviation",
				Help:    "Distribution of measured deviation ratios across adjudicated disputes.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			}),
		}
		prometheus.MustRegister(
			marketplaceRegistry.intentsCreated,
			marketplaceRegistry.intentsSettled,
			marketplaceRegistry.openIntents,
			marketplaceRegistry.bidsReceived,
			marketplaceRegistry.winnersSelected,
			marketplaceRegistry.failovers,
			marketplaceRegistry.paymentsSettled,
			marketplaceRegistry.disputesOpened,
			marketplaceRegistry.verdicts,
			marketplaceRegistry.deviation,
		)
	})
	return marketplaceRegistry
}

func (m *MarketplaceMetrics) ObserveIntentCreated() {
	if m == nil {
		return
	}
	m.intentsCreated.Inc()
	m.openIntents.Inc()
}

func (m *MarketplaceMetrics) ObserveIntentSettled(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.intentsSettled.WithLabelValues(outcome).Inc()
	m.openIntents.Dec()
}

func (m *MarketplaceMetrics) ObserveBidReceived() {
	if m == nil {
		return
	}
	m.bidsReceived.Inc()
}

func (m *MarketplaceMetrics) ObserveWinnerSelected() {
	if m == nil {
		return
	}
	m.winnersSelected.Inc()
}

func (m *MarketplaceMetrics) ObserveFailover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

func (m *MarketplaceMetrics) ObservePaymentSettled() {
	if m == nil {
		return
	}
	m.paymentsSettled.Inc()
}

func (m *MarketplaceMetrics) ObserveDisputeOpened(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.disputesOpened.WithLabelValues(reason).Inc()
}

func (m *MarketplaceMetrics) ObserveVerdict(verdict string, deviation float64) {
	if m == nil {
		return
	}
	if verdict == "" {
		verdict = "unknown"
	}
	m.verdicts.WithLabelValues(verdict).Inc()
	if deviation > 0 {
		m.deviation.Observe(deviation)
	}
}
