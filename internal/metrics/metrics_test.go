package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/irisvault/internal/metrics"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.IncrementAccessDecision(true, "threshold_met")
		m.IncrementAuth("failed")
		m.IncrementVote()
		m.IncrementDuplicateVote()
		m.ObserveVerification(2, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.IncrementAccessDecision(true, "threshold_met")
	m.IncrementAccessDecision(false, "below_threshold")
	m.IncrementAccessDecision(false, "below_threshold")
	m.IncrementVote()
	m.IncrementDuplicateVote()
	m.ObserveVerification(0, time.Millisecond)
	m.ObserveVerification(3, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("granted", "threshold_met")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("denied", "below_threshold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesCast))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateVotes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainVerifications.WithLabelValues("tampered")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChainMismatches))
}
