package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics covers the order, inventory and payment paths.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	transitions         *prometheus.CounterVec
	reservationFailures prometheus.Counter
	verifications       *prometheus.CounterVec
	duplicateOrders     prometheus.Gauge
	refunds             *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return nil
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_order_transitions_total",
			Help: "Order status transitions by target status.",
		}, []string{"to"}),
		reservationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_inventory_reservation_failures_total",
			Help: "Reservations rejected for insufficient stock.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_payment_verifications_total",
			Help: "Payment callback verification outcomes.",
		}, []string{"outcome"}),
		duplicateOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_duplicate_payment_orders",
			Help: "Orders with more than one settled payment found by the last scan.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_refunds_total",
			Help: "Refunds by resulting status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.transitions, m.reservationFailures, m.verifications, m.duplicateOrders, m.refunds)
	return m
}

func (m *OrderMetrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) ReservationFailed() {
	if m == nil {
		return
	}
	m.reservationFailures.Inc()
}

// Verification records captured, failed, ambiguous, duplicate or invalid_signature.
func (m *OrderMetrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) SetDuplicateOrders(n int) {
	if m == nil {
		return
	}
	m.duplicateOrders.Set(float64(n))
}

func (m *OrderMetrics) Refund(status string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(status)).Inc()
}
