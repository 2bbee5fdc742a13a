package metrics

import "github.com/prometheus/client_golang/prometheus"

// EditMetrics exposes counters/histograms for booking edit flows.
type EditMetrics struct {
	editsTotal     *prometheus.CounterVec
	refundsTotal   *prometheus.CounterVec
	refundedCents  *prometheus.HistogramVec
	upchargesTotal *prometheus.CounterVec
}

func NewEditMetrics(reg prometheus.Registerer) *EditMetrics {
	m := &EditMetrics{
		editsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlastours",
			Subsystem: "bookings",
			Name:      "edits_total",
			Help:      "Total booking edit attempts",
		}, []string{"kind", "outcome"}),
		refundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlastours",
			Subsystem: "bookings",
			Name:      "refunds_total",
			Help:      "Total edit-triggered refunds",
		}, []string{"outcome"}),
		refundedCents: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "atlastours",
			Subsystem: "bookings",
			Name:      "refunded_cents",
			Help:      "Refunded amounts in cents",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		}, []string{"kind"}),
		upchargesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlastours",
			Subsystem: "bookings",
			Name:      "upcharges_total",
			Help:      "Total upcharge intents created",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.editsTotal, m.refundsTotal, m.refundedCents, m.upchargesTotal)
	return m
}

func (m *EditMetrics) ObserveEdit(kind, outcome string) {
	if m == nil {
		return
	}
	m.editsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *EditMetrics) ObserveRefund(outcome string) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(outcome).Inc()
}

func (m *EditMetrics) ObserveRefundedCents(kind string, cents int64) {
	if m == nil {
		return
	}
	m.refundedCents.WithLabelValues(kind).Observe(float64(cents))
}

func (m *EditMetrics) ObserveUpcharge(kind, outcome string) {
	if m == nil {
		return
	}
	m.upchargesTotal.WithLabelValues(kind, outcome).Inc()
}
