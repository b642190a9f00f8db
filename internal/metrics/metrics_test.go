package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillRate(t *testing.T) {
	r := NewRegistry()

	_, ok := r.FillRate()
	assert.False(t, ok, "no slices recorded yet")

	r.RecordSlice("filled")
	r.RecordSlice("filled")
	r.RecordSlice("filled")
	r.RecordSlice("failed")

	rate, ok := r.FillRate()
	require.True(t, ok)
	assert.InDelta(t, 0.75, rate, 1e-9)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.TotalRoutes.Inc()
	r.RecordRejection("pause")
	r.StartStep("risk_check").Stop("ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "orderrouter_routes_total 1")
	assert.Contains(t, body, `orderrouter_rejections_total{gate="pause"} 1`)
	assert.Contains(t, body, `orderrouter_step_duration_seconds_count{result="ok",step="risk_check"} 1`)
}

func TestPrivateRegistryIsolation(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.TotalRoutes.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "orderrouter_routes_total 0")
}
