package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aegisher/api/internal/config"
	"aegisher/api/internal/logger"
	"aegisher/api/internal/server"
	"aegisher/api/internal/store"

	_ "aegisher/api/docs"
)

// @title AegiSher API
// @version 1.0
// @description AegiSher - community safety reports, SOS alerts and danger prediction
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/aegisher/aegisher/issues

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:5000
// @BasePath /api

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	log, err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Debug:      cfg.Debug(),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log.Info("Starting AegiSher API Server...")

	// Connect to database
	db, err := store.Open(cfg.DatabaseURL, cfg.Debug())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Connected to database")

	if cfg.DBAutoMigrate {
		err = store.AutoMigrate(db)
	} else {
		err = store.Migrate(cfg.DatabaseURL)
	}
	if err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database migrated", zap.Bool("auto", cfg.DBAutoMigrate))

	// Connect to Redis
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		log.Info("Connected to Redis")
		defer redisClient.Close()
	}

	// Connect to NATS
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL,
			nats.Name("aegisher-api"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("NATS disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		log.Info("Connected to NATS")
		defer natsConn.Close()
	}

	// Create and setup server
	srv := server.NewServer(cfg, store.New(db, store.WithCandidateLimit(cfg.ProximityCandidateLimit)), redisClient, natsConn, log)
	if err := srv.Setup(); err != nil {
		log.Fatal("Failed to set up server", zap.Error(err))
	}

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	go func() {
		if err := srv.Run(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server ready", zap.String("addr", addr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
