package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Mediator счётчики маршрутизатора сообщений
type Mediator struct {
	inbound    *prometheus.CounterVec
	outbound   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	unknown    prometheus.Counter
	payments   *prometheus.CounterVec
	openOrders prometheus.Gauge
}

var (
	mediatorOnce     sync.Once
	mediatorRegistry *Mediator
)

// Get возвращает зарегистрированные коллекторы.
func Get() *Mediator {
	mediatorOnce.Do(func() {
		mediatorRegistry = &Mediator{
			inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediator_inbound_messages_total",
				Help: "Inbound messages routed by action.",
			}, []string{"action"}),
			outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediator_outbound_messages_total",
				Help: "Messages sent to participants by action.",
			}, []string{"action"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediator_rejected_envelopes_total",
				Help: "Envelopes dropped before routing by reason.",
			}, []string{"reason"}),
			unknown: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "mediator_unknown_action_total",
				Help: "Messages skipped because the action tag is not recognised.",
			}),
			payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediator_buyer_payments_total",
				Help: "Outgoing buyer payments by result.",
			}, []string{"result"}),
			openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "mediator_pending_orders",
				Help: "Pending orders seen by the last scheduler run.",
			}),
		}
		prometheus.MustRegister(
			mediatorRegistry.inbound,
			mediatorRegistry.outbound,
			mediatorRegistry.rejected,
			mediatorRegistry.unknown,
			mediatorRegistry.payments,
			mediatorRegistry.openOrders,
		)
	})
	return mediatorRegistry
}

func (m *Mediator) ObserveInbound(action string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(action).Inc()
}

func (m *Mediator) ObserveOutbound(action string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(action).Inc()
}

func (m *Mediator) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Mediator) ObserveUnknownAction() {
	if m == nil {
		return
	}
	m.unknown.Inc()
}

func (m *Mediator) ObservePayment(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "success"
	}
	m.payments.WithLabelValues(result).Inc()
}

func (m *Mediator) SetPendingOrders(n int64) {
	if m == nil {
		return
	}
	m.openOrders.Set(float64(n))
}
