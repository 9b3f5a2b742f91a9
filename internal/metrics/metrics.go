package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the intake API.
	Registry = prometheus.NewRegistry()

	// WebhookEvents counts inbound webhook deliveries by outcome:
	// processed, duplicate, unknown_sender, invalid_signature, error.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_events_total", Help: "Inbound webhook deliveries by outcome."},
		[]string{"outcome"},
	)

	// OrdersCreated counts assembled orders per org.
	OrdersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_created_total", Help: "Orders created from paired submissions."},
		[]string{"org_id"},
	)

	// ExtractionFailures counts vision extractions that failed or timed out.
	ExtractionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "extraction_failures_total", Help: "Vision extractions that failed or timed out."},
	)

	// DroppedAttachments counts buffered photos dropped past the pairing window.
	DroppedAttachments = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dropped_attachments_total", Help: "Buffered photos dropped past the pairing window."},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(WebhookEvents)
		Registry.MustRegister(OrdersCreated)
		Registry.MustRegister(ExtractionFailures)
		Registry.MustRegister(DroppedAttachments)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
