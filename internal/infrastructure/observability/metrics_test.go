package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("cashdesk", reg)

	m.SubmissionsTotal.WithLabelValues("deposit", "ok").Inc()
	m.PollChecksTotal.WithLabelValues("waiting").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("deposit", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PollChecksTotal.WithLabelValues("waiting")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cashdesk_submissions_total")
	assert.Contains(t, names, "cashdesk_poll_checks_total")
}

func TestNewMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("cashdesk", reg)
	assert.Panics(t, func() { NewMetrics("cashdesk", reg) })
}
