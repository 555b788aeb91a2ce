package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters for the billing ledger. Registered on the default registry
// so they are exported alongside the HTTP metrics.
var (
	ChargesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "charges_submitted_total",
		Help:      "Invoice charges submitted to the payment processor.",
	})

	ChargeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "charge_results_total",
		Help:      "Recorded charge results, partitioned by outcome.",
	}, []string{"outcome"})

	WeeklyResets = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "analytics",
		Name:      "weekly_resets_total",
		Help:      "Weekly analytics counter resets performed.",
	})

	VaultSessions = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "vault_sessions_total",
		Help:      "Payment-method vaulting sessions created.",
	})
)
