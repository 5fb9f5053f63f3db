package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/agent/crews"
	"github.com/BaSui01/strengthflow/internal/cache"
)

// RedisReportStore keeps reports as JSON strings with a sorted-set index
// ordered by start time. Suitable for multi-instance deployments.
type RedisReportStore struct {
	cache  *cache.Manager
	config StoreConfig
	logger *zap.Logger
}

// NewRedisReportStore creates a report store on top of a cache manager.
// The store owns the manager and closes it on Close.
func NewRedisReportStore(manager *cache.Manager, config StoreConfig, logger *zap.Logger) (*RedisReportStore, error) {
	if manager == nil {
		return nil, fmt.Errorf("%w: redis store requires a cache manager", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisReportStore{
		cache:  manager,
		config: config,
		logger: logger.With(zap.String("component", "redis_report_store")),
	}, nil
}

func (s *RedisReportStore) reportKey(id string) string {
	return s.cache.Key("report", id)
}

func (s *RedisReportStore) indexKey() string {
	return s.cache.Key("reports")
}

// Close closes the underlying manager
func (s *RedisReportStore) Close() error {
	return s.cache.Close()
}

// Ping checks if the store is healthy
func (s *RedisReportStore) Ping(ctx context.Context) error {
	return mapCacheErr(s.cache.Ping(ctx))
}

// SaveReport writes the report with the configured retention as TTL
func (s *RedisReportStore) SaveReport(ctx context.Context, report *crews.Report) error {
	if err := validateReport(report); err != nil {
		return err
	}
	data, err := encodeReport(report)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.reportKey(report.ID), string(data), s.config.Retention); err != nil {
		return mapCacheErr(err)
	}
	score := float64(report.StartedAt.UnixNano())
	return mapCacheErr(s.cache.IndexAdd(ctx, s.indexKey(), report.ID, score))
}

// GetReport returns ErrNotFound when the key is missing or expired
func (s *RedisReportStore) GetReport(ctx context.Context, id string) (*crews.Report, error) {
	raw, err := s.cache.Get(ctx, s.reportKey(id))
	if err != nil {
		return nil, mapCacheErr(err)
	}
	return decodeReport([]byte(raw))
}

// ListReports walks the index newest first, pruning IDs whose data has expired
func (s *RedisReportStore) ListReports(ctx context.Context, limit int) ([]*crews.Report, error) {
	ids, err := s.cache.IndexNewest(ctx, s.indexKey(), 0)
	if err != nil {
		return nil, mapCacheErr(err)
	}

	reports := make([]*crews.Report, 0, len(ids))
	var stale []string
	for _, id := range ids {
		if limit > 0 && len(reports) >= limit {
			break
		}
		r, err := s.GetReport(ctx, id)
		if err == ErrNotFound {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	if len(stale) > 0 {
		if err := s.cache.IndexRemove(ctx, s.indexKey(), stale...); err != nil {
			s.logger.Warn("failed to prune report index", zap.Int("stale", len(stale)), zap.Error(err))
		}
	}
	return reports, nil
}

func mapCacheErr(err error) error {
	switch {
	case err == nil:
		return nil
	case cache.IsCacheMiss(err):
		return ErrNotFound
	case err == cache.ErrClosed:
		return ErrStoreClosed
	default:
		return err
	}
}
