package observability

import (
	"synapse/core/events"
	"synapse/observability/metrics"
)

// AttachRecorder subscribes the metrics registries to the event bus so every
// marketplace and safety event updates the corresponding collectors. The
// returned token cancels the subscription via bus.Unsubscribe.
func AttachRecorder(bus *events.Bus) uint64 {
	if bus == nil {
		return 0
	}
	marketplace := metrics.Marketplace()
	safety := Safety()
	return bus.SubscribeAll(func(evt events.Event) {
		switch e := evt.(type) {
		case events.IntentCreated:
			marketplace.ObserveIntentCreated()
		case events.IntentCompleted:
			marketplace.ObserveIntentSettled("completed")
		case events.IntentFailed:
			marketplace.ObserveIntentSettled("failed")
		case events.BidReceived:
			marketplace.ObserveBidReceived()
		case events.WinnerSelected:
			marketplace.ObserveWinnerSelected()
		case events.FailoverTriggered:
			marketplace.ObserveFailover()
		case events.PaymentSettled:
			marketplace.ObservePaymentSettled()
		case events.DisputeOpened:
			marketplace.ObserveDisputeOpened(e.Reason)
		case events.DisputeResolved:
			marketplace.ObserveVerdict(e.Verdict, e.Deviation)
		case events.SafetyBlocked:
			safety.ObserveCheck(false, 1)
		case events.SafetyRateLimit:
			safety.RecordBlock("rate_limit")
		case events.SafetyCircularPayment:
			safety.RecordBlock("circular_payment")
		case events.SafetyCircuitBreaker:
			safety.SetBreakerState(e.State)
		}
	})
}
