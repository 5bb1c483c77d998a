package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

func TestGuardEvents(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.LoginGranted(guard.RoleAdmin, guard.DeviceInfo{})
	m.LoginGranted(guard.RoleViewer, guard.DeviceInfo{})
	m.LoginDenied(guard.DeviceInfo{}, time.Now())
	m.LoginRejectedLocked()
	m.LoginRejectedLocked()
	m.Heartbeat(nil)
	m.Heartbeat(errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("granted_admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("granted_viewer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("denied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockoutsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatWritesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatWritesTotal.WithLabelValues("error")))
}

func TestConsoleAndFeedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRedistributionWrite("clicks", true)
	m.RecordRedistributionWrite("clicks", true)
	m.RecordRedistributionWrite("clicks", false)
	m.RecordRedistributionDrift("clicks", 1)
	m.RecordChange("ads")
	m.RecordDropped()
	m.RecordMirrorError()
	m.ObserveHTTP("GET", "/api/v1/ads", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RedistributionWritesTotal.WithLabelValues("clicks", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedistributionWritesTotal.WithLabelValues("clicks", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangeEventsTotal.WithLabelValues("ads")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangeEventsDroppedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangeMirrorErrorsTotal))

	count, err := testutil.GatherAndCount(reg, "campaigndesk_http_request_duration_seconds", "campaigndesk_redistribution_drift")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
