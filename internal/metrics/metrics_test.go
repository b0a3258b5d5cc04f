package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObserveTick(150 * time.Millisecond)
	m.ObserveTick(20 * time.Millisecond)
	m.Escalation("escalated")
	m.Escalation("stale")
	m.Escalation("escalated")
	m.Notification("delivered")
	m.CaseOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.escalations.WithLabelValues("escalated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.casesOpened))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Second)
	m.Escalation("escalated")
	m.Notification("failed")
	m.CaseOpened()
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.CaseOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "escalator_cases_opened_total 1"))
}
