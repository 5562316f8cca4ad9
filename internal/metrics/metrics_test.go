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

func TestCollector_Counts(t *testing.T) {
	c := New()
	c.DialSubmitted(true)
	c.DialSubmitted(false)
	c.DialSubmitted(false)
	c.TickError()
	c.Outcome("ENDED", "HANGUP")
	c.Action("end_call")
	c.Joined(2 * time.Second)
	c.SessionStarted()
	c.SessionStarted()
	c.SessionFinished()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.dials.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dials.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tickErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("ENDED", "HANGUP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.live))
}

func TestCollector_Independent(t *testing.T) {
	// separate registries must not collide
	a, b := New(), New()
	a.TickError()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.tickErrors))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.Action("schedule_callback")

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `outcall_actions_total{action="schedule_callback"} 1`))
}
