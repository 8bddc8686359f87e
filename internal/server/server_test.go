package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegisher/api/internal/config"
	"aegisher/api/internal/middleware"
	"aegisher/api/internal/store/storetest"
)

func testConfig() *config.Config {
	return &config.Config{
		GinMode:       "test",
		CORSOrigins:   []string{"http://localhost:5173"},
		StatsCacheTTL: time.Second,
		Notifier:      config.NotifierConfig{Kind: NotifierLog},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := NewServer(cfg, storetest.New(t), nil, nil, nil)
	require.NoError(t, s.Setup())
	t.Cleanup(func() { s.wsHub.Stop() })
	return s
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func submitReport(t *testing.T, s *Server) string {
	t.Helper()
	w, body := do(t, s, http.MethodPost, "/api/safety-reports", map[string]interface{}{
		"latitude":     12.9,
		"longitude":    77.6,
		"safetyRating": 2,
		"timeOfDay":    "night",
		"reportType":   "lighting",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["reportId"].(string)
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, body := do(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AegiSher API is running", body["message"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "active", body["status"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, body := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", body["database"])
	assert.Equal(t, "disabled", body["redis"])
	assert.Equal(t, "disabled", body["nats"])
	assert.Equal(t, "disabled", body["jetstream"])
}

func TestSubmitReport(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, body := do(t, s, http.MethodPost, "/api/safety-reports", map[string]interface{}{
		"latitude":     "12.9",
		"longitude":    77.6,
		"safetyRating": 4,
		"timeOfDay":    "evening",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["reportId"])

	report := body["report"].(map[string]interface{})
	location := report["location"].(map[string]interface{})
	assert.Equal(t, "Point", location["type"])
	assert.Equal(t, []interface{}{77.6, 12.9}, location["coordinates"])
	assert.Equal(t, "general", report["reportType"])
	assert.Equal(t, float64(0), report["upvotes"])
	assert.Equal(t, false, report["verified"])

	// the alias path behaves the same
	w, _ = do(t, s, http.MethodPost, "/api/safety-reports/submit", map[string]interface{}{
		"latitude": 12.9, "longitude": 77.6, "safetyRating": 3, "timeOfDay": "morning",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmitReportRejectsBadRating(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, body := do(t, s, http.MethodPost, "/api/safety-reports", map[string]interface{}{
		"latitude": 12.9, "longitude": 77.6, "safetyRating": 7, "timeOfDay": "evening",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Safety rating must be between 1 and 5", body["error"])

	w, body = do(t, s, http.MethodPost, "/api/safety-reports", map[string]interface{}{
		"latitude": 12.9, "longitude": 77.6, "safetyRating": 3, "timeOfDay": "evening",
		"address": strings.Repeat("a", 256),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Address cannot exceed 255 characters", body["error"])

	w, body = do(t, s, http.MethodGet, "/api/safety-reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/safety-reports", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")
}

func TestConcurrentUpvotes(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := submitReport(t, s)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPatch, "/api/safety-reports/"+id+"/upvote", nil)
			w := httptest.NewRecorder()
			s.GetRouter().ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	w, body := do(t, s, http.MethodGet, "/api/safety-reports/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(n), report["upvotes"])
}

func TestNearbyAndStats(t *testing.T) {
	s := newTestServer(t, testConfig())
	submitReport(t, s)
	submitReport(t, s)

	w, body := do(t, s, http.MethodGet, "/api/safety-reports/nearby?latitude=12.9&longitude=77.6&radius=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "2.00", body["averageSafetyRating"])

	w, _ = do(t, s, http.MethodGet, "/api/safety-reports/nearby?longitude=77.6", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, s, http.MethodGet, "/api/safety-reports/stats/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := body["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["totalReports"])
	assert.Equal(t, "2.00", stats["averageSafetyRating"])
}

func TestSOSFlow(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, body := do(t, s, http.MethodPost, "/api/users", map[string]interface{}{
		"name": "Asha", "email": "Asha@Example.com", "phone": "+911234567890",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	userID := body["user"].(map[string]interface{})["_id"].(string)

	w, _ = do(t, s, http.MethodPost, "/api/trusted-circle/"+userID+"/add", map[string]interface{}{
		"name": "Ravi", "phone": "+919876543210", "relationship": "Family",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, body = do(t, s, http.MethodPost, "/api/sos/trigger", map[string]interface{}{
		"userId": userID, "latitude": 12.97, "longitude": 77.59, "triggerMethod": "voice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), body["alertsSent"])
	sosID := body["sosId"].(string)

	w, body = do(t, s, http.MethodPatch, "/api/sos/"+sosID+"/resolve", map[string]interface{}{"status": "false_alarm"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	alert := body["alert"].(map[string]interface{})
	assert.Equal(t, "false_alarm", alert["status"])
	assert.NotEmpty(t, alert["resolvedAt"])

	// resolving twice is rejected
	w, _ = do(t, s, http.MethodPatch, "/api/sos/"+sosID+"/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, s, http.MethodGet, "/api/sos/history/"+userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, tc := range []struct {
		method, path, msg string
	}{
		{http.MethodGet, "/api/safety-reports/00000000-0000-0000-0000-000000000000", "Report not found"},
		{http.MethodPatch, "/api/safety-reports/00000000-0000-0000-0000-000000000000/upvote", "Report not found"},
		{http.MethodPatch, "/api/sos/00000000-0000-0000-0000-000000000000/resolve", "SOS alert not found"},
		{http.MethodGet, "/api/users/00000000-0000-0000-0000-000000000000", "User not found"},
		{http.MethodGet, "/api/nothing-here", "Endpoint not found"},
		{http.MethodGet, "/nope", "Endpoint not found"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			w, body := do(t, s, tc.method, tc.path, nil)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, tc.msg, body["error"])
		})
	}
}

func TestHeatmap(t *testing.T) {
	s := newTestServer(t, testConfig())
	submitReport(t, s)

	w, body := do(t, s, http.MethodGet, "/api/danger-prediction/heatmap?centerLat=12.9&centerLng=77.6", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "11x11", body["gridSize"])
	assert.Equal(t, float64(10000), body["radius"])
	assert.Len(t, body["heatmapData"], 121)

	w, _ = do(t, s, http.MethodGet, "/api/danger-prediction/heatmap?centerLat=12.9", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, body := do(t, s, http.MethodPost, "/api/routes/compare", map[string]interface{}{
		"startLatitude": 12.9, "startLongitude": 77.6, "endLatitude": 12.95, "endLongitude": 77.65,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])

	w, _ = do(t, s, http.MethodGet, "/api/routes/safe?startLat=12.9&startLng=77.6", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{
		Enabled: true,
		DefaultRule: config.RateLimitRule{
			Path: "*", Limit: 100, Window: time.Minute,
			Algorithm: middleware.TokenBucket, Type: middleware.RateLimitByIP,
		},
		SpecificRules: []config.RateLimitRule{{
			Path: "/api/safety-reports/status", Method: http.MethodGet, Limit: 2, Window: time.Minute,
			Algorithm: middleware.FixedWindow, Type: middleware.RateLimitByIP,
		}},
	}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		w, _ := do(t, s, http.MethodGet, "/api/safety-reports/status", nil)
		require.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("request %d", i))
	}
	w, _ := do(t, s, http.MethodGet, "/api/safety-reports/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// other endpoints fall under the default rule
	w, _ = do(t, s, http.MethodGet, "/api/safety-reports", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// the root endpoint is outside the limited group
	w, _ = do(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownNotifier(t *testing.T) {
	cfg := testConfig()
	cfg.Notifier.Kind = "pigeon"
	s := NewServer(cfg, storetest.New(t), nil, nil, nil)
	err := s.Setup()
	require.Error(t, err)
	s.wsHub.Stop()
}
