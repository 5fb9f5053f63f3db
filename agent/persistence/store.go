package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/strengthflow/agent/crews"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// StoreConfig configures report persistence.
type StoreConfig struct {
	// Type is the storage backend
	Type StoreType `json:"driver" yaml:"driver"`

	// Retention is how long reports are kept; 0 keeps them forever
	Retention time.Duration `json:"retention" yaml:"retention"`

	// MaxReports caps the memory store; 0 means unbounded
	MaxReports int `json:"max_reports" yaml:"max_reports"`

	// CleanupInterval is how often expired reports are purged (memory and sql)
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:            StoreTypeMemory,
		Retention:       24 * time.Hour,
		MaxReports:      1000,
		CleanupInterval: time.Hour,
	}
}

// Validate checks the configuration.
func (c StoreConfig) Validate() error {
	switch c.Type {
	case StoreTypeMemory, StoreTypeRedis, StoreTypeSQL:
	default:
		return fmt.Errorf("unsupported store type %q", c.Type)
	}
	if c.Retention < 0 || c.CleanupInterval < 0 || c.MaxReports < 0 {
		return fmt.Errorf("%w: retention, cleanup_interval and max_reports must not be negative", ErrInvalidInput)
	}
	return nil
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// ReportStore persists crew reports.
type ReportStore interface {
	Store

	// SaveReport inserts or replaces a report by ID
	SaveReport(ctx context.Context, report *crews.Report) error

	// GetReport returns ErrNotFound for unknown or expired IDs
	GetReport(ctx context.Context, id string) (*crews.Report, error)

	// ListReports returns the newest reports first; limit <= 0 returns all
	ListReports(ctx context.Context, limit int) ([]*crews.Report, error)
}

func validateReport(report *crews.Report) error {
	if report == nil || report.ID == "" {
		return ErrInvalidInput
	}
	return nil
}

func encodeReport(report *crews.Report) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

func decodeReport(data []byte) (*crews.Report, error) {
	var report crews.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// cloneReport decouples stored reports from caller-owned values.
func cloneReport(report *crews.Report) (*crews.Report, error) {
	data, err := encodeReport(report)
	if err != nil {
		return nil, err
	}
	return decodeReport(data)
}
