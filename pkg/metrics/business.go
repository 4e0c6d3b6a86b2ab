package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const businessSubsystem = "billing"

var webhookEventsDef = &Metric{
	ID:          "whEvents",
	Name:        "webhook_events_total",
	Description: "Processor webhook deliveries partitioned by event type and outcome.",
	Type:        CounterVec,
	Args:        []string{"event_type", "outcome"},
}

var processorCallDef = &Metric{
	ID:          "procDur",
	Name:        "processor_call_duration_ms",
	Description: "Latency of outbound payment processor calls in milliseconds.",
	Type:        HistogramVec,
	Args:        []string{"operation", "result"},
}

var deferredPendingDef = &Metric{
	ID:          "deferredPending",
	Name:        "deferred_events_pending",
	Description: "Deferred webhook events waiting for out-of-band reconciliation.",
	Type:        Gauge,
}

// Business groups the billing metrics shared across services.
type Business struct {
	webhookEvents   *prometheus.CounterVec
	processorCall   *prometheus.HistogramVec
	deferredPending prometheus.Gauge
}

var (
	businessOnce sync.Once
	business     *Business
)

// NewBusiness registers the billing metrics on the default registry once and
// returns the shared instance.
func NewBusiness() *Business {
	businessOnce.Do(func() {
		business = newBusiness(prometheus.DefaultRegisterer)
	})
	return business
}

func newBusiness(reg prometheus.Registerer) *Business {
	b := &Business{
		webhookEvents:   register(reg, webhookEventsDef).(*prometheus.CounterVec),
		processorCall:   register(reg, processorCallDef).(*prometheus.HistogramVec),
		deferredPending: register(reg, deferredPendingDef).(prometheus.Gauge),
	}
	return b
}

func register(reg prometheus.Registerer, def *Metric) prometheus.Collector {
	c := NewMetric(def, businessSubsystem)
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if asAlreadyRegistered(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// ObserveWebhook counts one webhook delivery. Nil receivers are no-ops so that
// callers built without metrics keep working.
func (b *Business) ObserveWebhook(eventType, outcome string) {
	if b == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	b.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (b *Business) ObserveProcessorCall(operation string, start time.Time, err error) {
	if b == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.processorCall.WithLabelValues(operation, result).Observe(MillisecondsSince(start))
}

func (b *Business) SetDeferredPending(n int64) {
	if b == nil {
		return
	}
	b.deferredPending.Set(float64(n))
}

var Module = fx.Options(
	fx.Provide(NewBusiness),
)
