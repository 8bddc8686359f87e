// Package store persists reports, alerts and users with gorm and answers proximity queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrUserNotFound = fmt.Errorf("user: %w", ErrNotFound)
	ErrDuplicate    = errors.New("duplicate record")
	// ErrNotActive is returned when resolving an alert that already left the active state
	ErrNotActive = errors.New("alert is not active")
)

// DefaultCandidateLimit caps the rows one proximity query reads from its bounding box
const DefaultCandidateLimit = 5000

// Store is the gorm-backed GeoStore
type Store struct {
	db             *gorm.DB
	candidateLimit int
}

// Option configures a Store
type Option func(*Store)

// WithCandidateLimit caps the rows one proximity query reads. Non-positive values keep the default.
func WithCandidateLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.candidateLimit = n
		}
	}
}

// New wraps an open gorm connection
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, candidateLimit: DefaultCandidateLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CandidateLimit returns the cap on rows one proximity query reads
func (s *Store) CandidateLimit() int {
	return s.candidateLimit
}

// Open connects to PostgreSQL
func Open(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// DB exposes the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates the schema from the models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.TrustedContact{},
		&model.SafetyReport{},
		&model.SOSAlert{},
		&model.DeliveryRecord{},
	)
}

func (s *Store) withContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// inBox restricts a query to the lat/lon rectangle around a point
func inBox(q *gorm.DB, box geo.Box) *gorm.DB {
	return q.Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?",
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
