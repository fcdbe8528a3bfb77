package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application's prometheus collectors.
type Metrics struct {
	// method, path, status_code
	HTTPRequestsTotal *prometheus.CounterVec

	// method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// outcome: success, conflict, not_bookable, gateway_error, error
	ReservationsTotal *prometheus.CounterVec

	// outcome: confirmed, duplicate, amount_mismatch, late_refund, error
	PaymentsTotal *prometheus.CounterVec

	// kind: cancel, partial
	RefundsTotal *prometheus.CounterVec

	RefundedAmount *prometheus.CounterVec

	// outcome: expired, confirmed, retry
	SweepTotal *prometheus.CounterVec

	// result: valid, invalid
	TicketVerificationsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_reservations_total",
				Help: "Seat reservation attempts by outcome",
			},
			[]string{"outcome"},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_payments_total",
				Help: "Payment confirmations by outcome",
			},
			[]string{"outcome"},
		),
		RefundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_refunds_total",
				Help: "Refunds issued by kind",
			},
			[]string{"kind"},
		),
		RefundedAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_refunded_amount_minor_total",
				Help: "Refunded amount in minor currency units",
			},
			[]string{"currency"},
		),
		SweepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_sweep_total",
				Help: "Pending bookings handled by the expiry sweep",
			},
			[]string{"outcome"},
		),
		TicketVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_verifications_total",
				Help: "Ticket verification attempts",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.PaymentsTotal,
		m.RefundsTotal,
		m.RefundedAmount,
		m.SweepTotal,
		m.TicketVerificationsTotal,
	)

	return m
}

// The helpers below tolerate a nil receiver so callers can run without metrics.

func (m *Metrics) Reservation(outcome string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Payment(outcome string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refund(kind, currency string, amount int64) {
	if m == nil {
		return
	}
	m.RefundsTotal.WithLabelValues(kind).Inc()
	m.RefundedAmount.WithLabelValues(currency).Add(float64(amount))
}

func (m *Metrics) Sweep(outcome string) {
	if m == nil {
		return
	}
	m.SweepTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Verification(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.TicketVerificationsTotal.WithLabelValues(result).Inc()
}
