package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/reports/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/api/reports/a", "/api/reports/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/reports/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestBusinessCounters(t *testing.T) {
	m := New()
	m.ReportSubmitted()
	m.SOSTriggered("voice")
	m.Delivery("sent")
	m.Delivery("sent")
	m.CacheResult(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sosTriggered.WithLabelValues("voice")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues("sent")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "aegisher_cache_requests_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReportSubmitted()
		m.SOSResolved("resolved")
		m.PredictionFallback()
		m.CacheResult(true)
		m.WSClients(3)
	})
}
