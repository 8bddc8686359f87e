package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimitAlgorithm 限流算法类型
type RateLimitAlgorithm string

const (
	// TokenBucket 令牌桶算法
	TokenBucket RateLimitAlgorithm = "token_bucket"
	// FixedWindow 固定窗口算法
	FixedWindow RateLimitAlgorithm = "fixed_window"
)

// RateLimitType 限流类型
type RateLimitType string

const (
	// RateLimitByIP 基于IP限流
	RateLimitByIP RateLimitType = "ip"
	// RateLimitByEndpoint 基于接口限流
	RateLimitByEndpoint RateLimitType = "endpoint"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 请求限制数
	Limit int
	// 窗口大小（秒）
	Window int
	// 限流算法
	Algorithm RateLimitAlgorithm
	// 限流类型
	Type RateLimitType
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error)
}

// RateLimitResult 限流结果
type RateLimitResult struct {
	// 是否允许通过
	Allowed bool
	// 剩余请求数
	Remaining int
	// 重置时间（Unix时间戳）
	ResetAt int64
	// 总限制数
	Limit int
}

// RedisRateLimiter 基于Redis的限流器
type RedisRateLimiter struct {
	redis *redis.Client
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter(redis *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{redis: redis}
}

// Allow 检查是否允许请求通过
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	if config.Algorithm == FixedWindow {
		return r.fixedWindow(ctx, key, config)
	}
	return r.tokenBucket(ctx, key, config)
}

// tokenBucketScript 令牌桶
var tokenBucketScript = redis.NewScript(`
	local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'last_update')
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local tokens = tonumber(bucket[1]) or capacity
	local last_update = tonumber(bucket[2]) or now

	local elapsed = now - last_update
	local new_tokens = math.min(capacity, tokens + elapsed * rate)

	local allowed = new_tokens >= requested
	local remaining = 0
	if allowed then
		new_tokens = new_tokens - requested
		remaining = math.floor(new_tokens)
	end

	redis.call('HMSET', KEYS[1], 'tokens', new_tokens, 'last_update', now)
	redis.call('EXPIRE', KEYS[1], math.ceil(capacity / rate) + 1)

	return {allowed and 1 or 0, remaining, capacity}
`)

// fixedWindowScript 固定窗口
var fixedWindowScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or 0)
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local allowed = current < limit
	local remaining = limit - current - 1

	if allowed then
		redis.call('INCR', KEYS[1])
		if current == 0 then
			redis.call('EXPIRE', KEYS[1], ttl)
		end
	else
		remaining = 0
	end

	return {allowed and 1 or 0, remaining, limit}
`)

func (r *RedisRateLimiter) tokenBucket(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now().Unix()
	bucketKey := fmt.Sprintf("aegisher:ratelimit:token:%s", key)

	// 每秒产生令牌数
	ratePerSecond := float64(config.Limit) / float64(config.Window)

	values, err := tokenBucketScript.Run(ctx, r.redis, []string{bucketKey},
		config.Limit,
		ratePerSecond,
		now,
		1,
	).Int64Slice()
	if err != nil {
		return nil, err
	}

	return &RateLimitResult{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		ResetAt:   now + int64(config.Window),
		Limit:     int(values[2]),
	}, nil
}

func (r *RedisRateLimiter) fixedWindow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now().Unix()
	window := now / int64(config.Window)
	windowKey := fmt.Sprintf("aegisher:ratelimit:fixed:%s:%d", key, window)

	values, err := fixedWindowScript.Run(ctx, r.redis, []string{windowKey},
		config.Limit,
		config.Window+1,
	).Int64Slice()
	if err != nil {
		return nil, err
	}

	return &RateLimitResult{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		ResetAt:   (window + 1) * int64(config.Window),
		Limit:     int(values[2]),
	}, nil
}

// MemoryRateLimiter 进程内限流器, 未配置Redis时使用
type MemoryRateLimiter struct {
	store limiter.Store

	mu       sync.Mutex
	limiters map[string]*limiter.Limiter // "limit/window" -> limiter
}

// NewMemoryRateLimiter 创建内存限流器
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		store: memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "aegisher_ratelimit",
			CleanUpInterval: time.Minute,
		}),
		limiters: make(map[string]*limiter.Limiter),
	}
}

// Allow 检查是否允许请求通过. 内存实现统一按固定窗口计数.
func (m *MemoryRateLimiter) Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	rateKey := fmt.Sprintf("%d/%d", config.Limit, config.Window)

	m.mu.Lock()
	l, ok := m.limiters[rateKey]
	if !ok {
		l = limiter.New(m.store, limiter.Rate{
			Period: time.Duration(config.Window) * time.Second,
			Limit:  int64(config.Limit),
		})
		m.limiters[rateKey] = l
	}
	m.mu.Unlock()

	lc, err := l.Get(ctx, rateKey+":"+key)
	if err != nil {
		return nil, err
	}
	return &RateLimitResult{
		Allowed:   !lc.Reached,
		Remaining: int(lc.Remaining),
		ResetAt:   lc.Reset,
		Limit:     int(lc.Limit),
	}, nil
}

// RateLimitRule 按路径前缀匹配的限流规则
type RateLimitRule struct {
	// 路径前缀
	Path string
	// 请求方法, 为空匹配全部
	Method string
	Config *RateLimitConfig
}

// RateLimitGroup 限流组配置
type RateLimitGroup struct {
	limiter       RateLimiter
	defaultConfig *RateLimitConfig
	rules         []RateLimitRule
	log           *zap.Logger
}

// NewRateLimitGroup 创建限流组
func NewRateLimitGroup(limiter RateLimiter, defaultConfig *RateLimitConfig, log *zap.Logger) *RateLimitGroup {
	return &RateLimitGroup{
		limiter:       limiter,
		defaultConfig: defaultConfig,
		log:           log,
	}
}

// AddRule 添加特定路径规则, 先添加的优先
func (g *RateLimitGroup) AddRule(rule RateLimitRule) {
	g.rules = append(g.rules, rule)
}

// ConfigFor 返回请求匹配的限流配置
func (g *RateLimitGroup) ConfigFor(method, path string) (string, *RateLimitConfig) {
	for _, rule := range g.rules {
		if rule.Method != "" && rule.Method != method {
			continue
		}
		if strings.HasPrefix(path, rule.Path) {
			return rule.Path, rule.Config
		}
	}
	return "*", g.defaultConfig
}

// Middleware 返回Gin中间件函数（支持不同路径不同配置）
func (g *RateLimitGroup) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, config := g.ConfigFor(c.Request.Method, c.Request.URL.Path)
		key := scope + ":" + generateKey(c, config)

		result, err := g.limiter.Allow(c.Request.Context(), key, config)
		if err != nil {
			// 限流器错误时，允许请求通过（降级策略）
			g.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests, please try again later",
				"retry_after": result.ResetAt - time.Now().Unix(),
			})
			return
		}

		c.Next()
	}
}

// generateKey 生成限流Key
func generateKey(c *gin.Context, config *RateLimitConfig) string {
	if config.Type == RateLimitByEndpoint {
		return fmt.Sprintf("endpoint:%s:%s", c.Request.Method, c.FullPath())
	}
	return "ip:" + clientIP(c)
}

// clientIP 获取客户端IP
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := c.GetHeader("X-Real-Ip"); xri != "" {
		return xri
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
