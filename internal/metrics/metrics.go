// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Signups counts created and cancelled signups by kind
	// (free, paid, tournament, cancelled, tournament_cancelled).
	Signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warwickgg",
		Name:      "signups_total",
		Help:      "Signups created or cancelled, by kind.",
	}, []string{"kind"})

	// WebhookEvents counts inbound payment webhooks by type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warwickgg",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries, by event type and outcome.",
	}, []string{"type", "outcome"})

	// RefundFailures counts refunds the gateway refused or timed out on.
	RefundFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warwickgg",
		Name:      "refund_failures_total",
		Help:      "Refund requests that failed and need follow-up.",
	})

	// SeatingRevisions counts committed seating revisions.
	SeatingRevisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warwickgg",
		Name:      "seating_revisions_total",
		Help:      "Seating revisions committed.",
	})

	// MembershipChecks counts membership verification calls by result
	// (member, non_member, error).
	MembershipChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warwickgg",
		Name:      "membership_checks_total",
		Help:      "Students' union membership lookups, by result.",
	}, []string{"result"})
)
