package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "academy_payments"

var (
	// CheckoutQuotes counts priced checkout sessions
	CheckoutQuotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_quotes_total",
		Help:      "Checkout quotes issued, by whether a coupon applied.",
	}, []string{"coupon_applied"})

	// Submissions counts manual payment submissions by outcome
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "manual_payment_submissions_total",
		Help:      "Manual payment submissions, by outcome.",
	}, []string{"outcome"})

	// Adjudications counts admin decisions
	Adjudications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "manual_payment_adjudications_total",
		Help:      "Admin decisions on manual payments, by decision.",
	}, []string{"decision"})

	// Reconciled counts pending payments repaired by the reconciliation job
	Reconciled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "manual_payments_reconciled_total",
		Help:      "Pending payments marked approved because an enrollment already existed.",
	})
)

// Submission outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Adjudication decisions
const (
	DecisionApproved        = "approved"
	DecisionRejected        = "rejected"
	DecisionRejectedMinimal = "rejected_minimal"
)
