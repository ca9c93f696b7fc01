package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// invoicesCreated counts invoice links successfully issued.
	invoicesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoices_created_total",
		Help: "Total number of invoice links issued.",
	})

	// paymentsRecorded counts ledger rows written from payment-completed
	// notifications, by outcome.
	paymentsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Total number of payment notifications processed.",
	}, []string{"outcome"}) // recorded|duplicate|error
)

func init() {
	prometheus.MustRegister(invoicesCreated, paymentsRecorded)
}
