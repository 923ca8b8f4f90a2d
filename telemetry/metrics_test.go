package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	CacheHitsTotal.Add(0) // ensure registered before gather
	before := testutil.ToFloat64(CacheHitsTotal)
	CacheHitsTotal.Inc()
	after := testutil.ToFloat64(CacheHitsTotal)
	require.Equal(t, before+1, after)
}

func TestVerdictsLabeled(t *testing.T) {
	DetectorVerdictsTotal.WithLabelValues("honeypot").Inc()
	count := testutil.ToFloat64(DetectorVerdictsTotal.WithLabelValues("honeypot"))
	require.GreaterOrEqual(t, count, float64(1))
}
