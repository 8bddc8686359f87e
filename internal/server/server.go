package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aegisher/api/internal/cache"
	"aegisher/api/internal/config"
	"aegisher/api/internal/handler"
	"aegisher/api/internal/metrics"
	"aegisher/api/internal/middleware"
	"aegisher/api/internal/notify"
	"aegisher/api/internal/service"
	"aegisher/api/internal/store"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	// Version is reported by the root endpoint
	Version = "1.0.0"

	NotifierLog     = "log"
	NotifierNATS    = "nats"
	NotifierWebhook = "webhook"
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	store      *store.Store
	redis      *redis.Client
	nats       *nats.Conn
	events     *service.EventPublisher
	metrics    *metrics.Metrics
	wsHub      *handler.WSHub
	wsHandler  *handler.WSHandler
	reminder   *service.ReminderScheduler
	log        *zap.Logger
}

// NewServer creates a new server instance. redisClient and natsConn may be nil.
func NewServer(cfg *config.Config, st *store.Store, redisClient *redis.Client, natsConn *nats.Conn, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		config: cfg,
		store:  st,
		redis:  redisClient,
		nats:   natsConn,
		log:    log,
	}
}

// Setup initializes services, routes and handlers
func (s *Server) Setup() error {
	s.metrics = metrics.New()

	// WebSocket hub first, the event publisher broadcasts through it
	s.wsHub = handler.NewWSHub(s.nats, s.metrics, s.log.Named("ws"))
	s.wsHandler = handler.NewWSHandler(s.wsHub)
	go s.wsHub.Run()

	if s.nats != nil {
		// the hub relays NATS events
		s.events = service.NewEventPublisher(s.nats, nil, s.log.Named("events"))
		if s.config.JetStreamEnabled {
			if err := s.events.EnableJetStream(); err != nil {
				s.log.Warn("jetstream unavailable, publishing to core nats only", zap.Error(err))
			}
		}
	} else {
		s.events = service.NewEventPublisher(nil, s.wsHub, s.log.Named("events"))
	}

	notifier, err := s.newNotifier()
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notifier, s.metrics, s.log.Named("notify"))

	// Initialize services
	reportService := service.NewReportService(s.store, s.newCache(), s.config.StatsCacheTTL, s.metrics, s.log.Named("reports"))
	exportService := service.NewExportService(s.store)
	sosService := service.NewSOSService(s.store, dispatcher, s.events, s.metrics, s.log.Named("sos"))
	userService := service.NewUserService(s.store)
	predictionService := service.NewPredictionService(s.store, s.metrics, s.log.Named("prediction"))
	routeService := service.NewRouteService(nil)

	if s.config.SOSReminderSchedule != "" {
		s.reminder, err = service.NewReminderScheduler(sosService, s.config.SOSReminderSchedule, s.config.SOSReminderAfter, s.log.Named("reminder"))
		if err != nil {
			return fmt.Errorf("invalid SOS_REMINDER_SCHEDULE: %w", err)
		}
	}

	// Setup Gin router
	s.router = gin.New()
	s.router.Use(
		middleware.Recovery(s.log),
		middleware.RequestLogger(s.log.Named("http")),
		s.metrics.Middleware(),
		middleware.CORS(s.config.CORSOrigins),
	)

	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router.GET("/ws/sos", s.wsHandler.HandleSOS)
	s.router.GET("/ws/stats", s.wsHandler.GetStats)

	api := s.router.Group("/api")
	if s.config.RateLimit.Enabled {
		api.Use(s.rateLimits().Middleware())
	}
	handler.NewReportHandler(reportService, exportService).RegisterRoutes(api)
	handler.NewSOSHandler(sosService).RegisterRoutes(api)
	handler.NewUserHandler(userService).RegisterRoutes(api)
	handler.NewPredictionHandler(predictionService).RegisterRoutes(api)
	handler.NewRouteHandler(routeService).RegisterRoutes(api)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})
	return nil
}

func (s *Server) newNotifier() (notify.Notifier, error) {
	switch s.config.Notifier.Kind {
	case "", NotifierLog:
		return notify.NewLogNotifier(s.log.Named("sms")), nil
	case NotifierNATS:
		if s.nats == nil {
			return nil, errors.New("NOTIFIER=nats requires NATS_URL")
		}
		return notify.NewNATSNotifier(s.nats), nil
	case NotifierWebhook:
		if s.config.Notifier.WebhookURL == "" {
			return nil, errors.New("NOTIFIER=webhook requires NOTIFIER_WEBHOOK_URL")
		}
		return notify.NewWebhookNotifier(s.config.Notifier.WebhookURL, s.config.Notifier.WebhookSecret, s.config.Notifier.WebhookTimeout), nil
	}
	return nil, fmt.Errorf("unknown NOTIFIER %q", s.config.Notifier.Kind)
}

func (s *Server) newCache() cache.Cache {
	if s.redis != nil {
		return cache.NewRedis(s.redis)
	}
	ttl := s.config.StatsCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return cache.NewLocal(ttl, 2*ttl)
}

func (s *Server) rateLimits() *middleware.RateLimitGroup {
	var limiter middleware.RateLimiter
	if s.redis != nil {
		limiter = middleware.NewRedisRateLimiter(s.redis)
	} else {
		limiter = middleware.NewMemoryRateLimiter()
	}

	group := middleware.NewRateLimitGroup(limiter, s.config.RateLimit.DefaultRule.ToMiddlewareConfig(), s.log.Named("ratelimit"))
	for _, rule := range s.config.RateLimit.SpecificRules {
		group.AddRule(rule.ToMiddlewareRule())
	}
	return group
}

// root 服务信息
// @Summary API status
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "AegiSher API is running",
		"version": Version,
		"status":  "active",
	})
}

// health 依赖状态检查
// @Summary Dependency health
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	health := gin.H{"status": "ok", "ws_clients": s.wsHub.GetClientCount()}

	if err := s.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		health["status"] = "degraded"
		health["database"] = "down"
	} else {
		health["database"] = "up"
	}

	switch {
	case s.redis == nil:
		health["redis"] = "disabled"
	case s.redis.Ping(ctx).Err() != nil:
		health["redis"] = "down"
	default:
		health["redis"] = "up"
	}

	if s.nats == nil {
		health["nats"] = "disabled"
	} else {
		health["nats"] = s.nats.Status().String()
	}

	// Add JetStream status if enabled
	if s.events.JetStreamEnabled() {
		health["jetstream"] = "enabled"
		if info, err := s.events.StreamInfo(); err == nil {
			health["jetstream_sos"] = gin.H{
				"messages": info.State.Msgs,
				"bytes":    info.State.Bytes,
			}
		}
	} else {
		health["jetstream"] = "disabled"
	}

	c.JSON(status, health)
}

// Run starts the reminder sweep and the HTTP server
func (s *Server) Run(addr string) error {
	if s.reminder != nil {
		s.reminder.Start()
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("HTTP server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetRouter returns the gin router for testing
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
		s.log.Info("HTTP server stopped")
	}
	if s.reminder != nil {
		s.reminder.Stop()
		s.log.Info("SOS reminder stopped")
	}
	if s.wsHub != nil {
		s.wsHub.Stop()
		s.log.Info("WebSocket hub stopped")
	}
	return err
}
