package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"aegisher/api/internal/middleware"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()
	assert.Equal(t, 5000, cfg.APIPort)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "log", cfg.Notifier.Kind)
	assert.Contains(t, cfg.CORSOrigins, "http://localhost:5173")
	assert.Equal(t, 15*time.Minute, cfg.SOSReminderAfter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STATS_CACHE_TTL", "2m")
	t.Setenv("RATE_LIMIT_SOS_LIMIT", "3")

	cfg := Load()
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 2*time.Minute, cfg.StatsCacheTTL)

	group := middleware.NewRateLimitGroup(middleware.NewMemoryRateLimiter(), cfg.RateLimit.DefaultRule.ToMiddlewareConfig(), zap.NewNop())
	for _, r := range cfg.RateLimit.SpecificRules {
		group.AddRule(r.ToMiddlewareRule())
	}

	_, rule := group.ConfigFor(http.MethodPost, "/api/sos/trigger")
	assert.Equal(t, 3, rule.Limit)
	assert.Equal(t, 60, rule.Window)
	assert.Equal(t, middleware.FixedWindow, rule.Algorithm)

	_, fallback := group.ConfigFor(http.MethodGet, "/api/sos/trigger")
	assert.Equal(t, 100, fallback.Limit)
}
