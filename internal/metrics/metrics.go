// Package metrics exposes Prometheus counters for the vault core. Every
// method is safe on a nil *Metrics, so callers that do not care about
// metrics pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Access decisions by outcome and reason
	AccessDecisions *prometheus.CounterVec

	// Authentication outcomes: succeeded, failed, locked
	AuthOutcomes *prometheus.CounterVec

	// Votes accepted and rejected as duplicates
	VotesCast      prometheus.Counter
	DuplicateVotes prometheus.Counter

	// Chain verification runs and the mismatches they found
	ChainVerifications *prometheus.CounterVec
	ChainMismatches    prometheus.Counter
	ChainVerifyLatency prometheus.Histogram
}

// New registers the vault metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AccessDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irisvault_access_decisions_total",
			Help: "Recognition access decisions by outcome and reason",
		}, []string{"outcome", "reason"}),

		AuthOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irisvault_auth_outcomes_total",
			Help: "Authentication attempts by outcome",
		}, []string{"outcome"}),

		VotesCast: f.NewCounter(prometheus.CounterOpts{
			Name: "irisvault_votes_cast_total",
			Help: "Votes accepted",
		}),
		DuplicateVotes: f.NewCounter(prometheus.CounterOpts{
			Name: "irisvault_duplicate_votes_total",
			Help: "Votes rejected because the person already voted in the election",
		}),

		ChainVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irisvault_chain_verifications_total",
			Help: "Audit chain verification runs by result",
		}, []string{"result"}),
		ChainMismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "irisvault_chain_mismatches_total",
			Help: "Audit chain positions reported as tampered",
		}),
		ChainVerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "irisvault_chain_verify_duration_seconds",
			Help:    "Duration of audit chain verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) IncrementAccessDecision(granted bool, reason string) {
	if m != nil {
		outcome := "denied"
		if granted {
			outcome = "granted"
		}
		m.AccessDecisions.WithLabelValues(outcome, reason).Inc()
	}
}

// IncrementAuth records an authentication outcome.
func (m *Metrics) IncrementAuth(outcome string) {
	if m != nil {
		m.AuthOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementVote() {
	if m != nil {
		m.VotesCast.Inc()
	}
}

func (m *Metrics) IncrementDuplicateVote() {
	if m != nil {
		m.DuplicateVotes.Inc()
	}
}

// ObserveVerification records one chain verification run.
func (m *Metrics) ObserveVerification(mismatches int, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if mismatches > 0 {
		result = "tampered"
		m.ChainMismatches.Add(float64(mismatches))
	}
	m.ChainVerifications.WithLabelValues(result).Inc()
	m.ChainVerifyLatency.Observe(d.Seconds())
}
