package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Mutation results recorded by TicketMetrics.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// TicketMetrics groups the ticket domain collectors.
type TicketMetrics struct {
	Mutations     *prometheus.CounterVec
	LedgerEntries prometheus.Gauge
	PaymentAmount prometheus.Counter
	OpenTickets   prometheus.Gauge
}

// NewTicketMetrics registers and returns the ticket domain collectors.
func NewTicketMetrics(namespace string, reg prometheus.Registerer) *TicketMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &TicketMetrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_mutations_total",
			Help:      "Count of ticket mutations by operation and outcome.",
		}, []string{"op", "result"}),
		LedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ticket_ledger_entries",
			Help:      "Ledger transactions held by the most recently mutated ticket.",
		}),
		PaymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_payment_amount_total",
			Help:      "Sum of payment amounts recorded against tickets.",
		}),
		OpenTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ticket_open",
			Help:      "Number of tickets that are not closed.",
		}),
	}
	mustRegisterCollector(reg, m.Mutations, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Mutations = v
		}
	})
	mustRegisterCollector(reg, m.LedgerEntries, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.LedgerEntries = v
		}
	})
	mustRegisterCollector(reg, m.PaymentAmount, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.PaymentAmount = v
		}
	})
	mustRegisterCollector(reg, m.OpenTickets, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.OpenTickets = v
		}
	})
	return m
}

// ObserveMutation counts one mutation. Safe on a nil receiver.
func (m *TicketMetrics) ObserveMutation(op, result string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, result).Inc()
}

// ObserveLedger records the ledger size of a ticket.
func (m *TicketMetrics) ObserveLedger(entries int) {
	if m == nil {
		return
	}
	m.LedgerEntries.Set(float64(entries))
}

// ObservePayment adds amount to the payment total. Negative amounts (refunds) are ignored.
func (m *TicketMetrics) ObservePayment(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.PaymentAmount.Add(amount)
}

// SetOpenTickets records the number of open tickets.
func (m *TicketMetrics) SetOpenTickets(n int) {
	if m == nil {
		return
	}
	m.OpenTickets.Set(float64(n))
}
