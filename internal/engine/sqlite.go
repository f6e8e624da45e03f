package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqlEntry is one row of the engine table.
type sqlEntry struct {
	Key     string `gorm:"column:cache_key;primaryKey"`
	Payload []byte `gorm:"column:payload;not null"`
}

// TableName specifies the table name for sqlEntry.
func (sqlEntry) TableName() string {
	return "tua_storage"
}

// SQLite is an engine that persists payloads in a SQLite database through gorm.
// glebarez/sqlite is a pure Go driver, so no CGO is required.
type SQLite struct {
	mu     sync.RWMutex
	db     *gorm.DB
	closed bool
}

var _ Engine = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dsn and migrates the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	return NewSQLite(db)
}

// NewSQLite wraps an open gorm database and migrates the schema.
func NewSQLite(db *gorm.DB) (*SQLite, error) {
	// A single connection keeps ":memory:" databases alive and serializes writers.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&sqlEntry{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Get retrieves a payload from the table.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var e sqlEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e.Payload, nil
}

// Set upserts a payload.
func (s *SQLite) Set(ctx context.Context, key string, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	if payload == nil {
		payload = []byte{}
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload"}),
	}).Create(&sqlEntry{Key: key, Payload: payload}).Error
}

// Remove deletes a payload. Deleting a missing row is not an error.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	return s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&sqlEntry{}).Error
}

// Clear deletes every row.
func (s *SQLite) Clear(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&sqlEntry{}).Error
}

// Keys returns every stored key.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var keys []string
	if err := s.db.WithContext(ctx).Model(&sqlEntry{}).Pluck("cache_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
