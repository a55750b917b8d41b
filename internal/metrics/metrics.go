// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkin_submissions_total",
		Help:      "Check-in submissions by outcome (created, updated, rejected).",
	}, []string{"result"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkin_decisions_total",
		Help:      "Approval decisions by outcome.",
	}, []string{"outcome"})

	StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "store_version_conflicts_total",
		Help:      "Compare-and-swap conflicts by collection.",
	}, []string{"collection"})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "sessions_swept_total",
		Help:      "Sessions deactivated after their end time.",
	})
)

// Decision outcome labels.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeCapacity  = "capacity_exceeded"
	OutcomeNotFound  = "not_found"
)
