package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/strengthflow/agent/crews"
	"github.com/BaSui01/strengthflow/internal/database"
)

// reportRecord is the SQL row of a report. Indexed columns are copied out of
// the JSON payload for listing and cleanup.
type reportRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Subject    string    `gorm:"size:255;index"`
	Status     string    `gorm:"size:16;index"`
	Fallbacks  int       `gorm:"not null;default:0"`
	Payload    string    `gorm:"type:text;not null"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
}

func (reportRecord) TableName() string { return "strength_reports" }

// GormReportStore persists reports in postgres, mysql or sqlite through gorm.
type GormReportStore struct {
	pool   *database.PoolManager
	config StoreConfig
	logger *zap.Logger
	now    func() time.Time
	done   chan struct{}
	stop   sync.Once
}

// NewGormReportStore migrates the schema and returns a store. The store owns
// the pool and closes it on Close.
func NewGormReportStore(pool *database.PoolManager, config StoreConfig, logger *zap.Logger) (*GormReportStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: sql store requires a database pool", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&reportRecord{}); err != nil {
		return nil, err
	}

	s := &GormReportStore{
		pool:   pool,
		config: config,
		logger: logger.With(zap.String("component", "sql_report_store")),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	if config.Retention > 0 && config.CleanupInterval > 0 {
		go s.cleanupLoop(config.CleanupInterval)
	}
	return s, nil
}

// Close stops cleanup and closes the pool
func (s *GormReportStore) Close() error {
	s.stop.Do(func() { close(s.done) })
	return s.pool.Close()
}

// Ping checks if the store is healthy
func (s *GormReportStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		if errors.Is(err, database.ErrPoolClosed) {
			return ErrStoreClosed
		}
		return err
	}
	return nil
}

// SaveReport upserts the report row
func (s *GormReportStore) SaveReport(ctx context.Context, report *crews.Report) error {
	if err := validateReport(report); err != nil {
		return err
	}
	data, err := encodeReport(report)
	if err != nil {
		return err
	}
	rec := reportRecord{
		ID:         report.ID,
		Subject:    report.Subject.Name,
		Status:     string(report.Status),
		Fallbacks:  len(report.Failures),
		Payload:    string(data),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}

	err = s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
	return s.mapErr(err)
}

// GetReport returns ErrNotFound for unknown or expired IDs
func (s *GormReportStore) GetReport(ctx context.Context, id string) (*crews.Report, error) {
	var rec reportRecord
	q := s.pool.DB().WithContext(ctx).Where("id = ?", id)
	if cutoff, ok := s.cutoff(); ok {
		q = q.Where("started_at >= ?", cutoff)
	}
	if err := q.First(&rec).Error; err != nil {
		return nil, s.mapErr(err)
	}
	return decodeReport([]byte(rec.Payload))
}

// ListReports returns the newest reports first
func (s *GormReportStore) ListReports(ctx context.Context, limit int) ([]*crews.Report, error) {
	var recs []reportRecord
	q := s.pool.DB().WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if cutoff, ok := s.cutoff(); ok {
		q = q.Where("started_at >= ?", cutoff)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, s.mapErr(err)
	}

	reports := make([]*crews.Report, 0, len(recs))
	for _, rec := range recs {
		r, err := decodeReport([]byte(rec.Payload))
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Purge deletes reports that started before cutoff
func (s *GormReportStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.pool.DB().WithContext(ctx).Where("started_at < ?", cutoff).Delete(&reportRecord{})
	return res.RowsAffected, s.mapErr(res.Error)
}

func (s *GormReportStore) cutoff() (time.Time, bool) {
	if s.config.Retention <= 0 {
		return time.Time{}, false
	}
	return s.now().Add(-s.config.Retention), true
}

func (s *GormReportStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		cutoff, _ := s.cutoff()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := s.Purge(ctx, cutoff)
		cancel()
		if err != nil {
			s.logger.Warn("report purge failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("purged expired reports", zap.Int64("count", n))
		}
	}
}

func (s *GormReportStore) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrPoolClosed):
		return ErrStoreClosed
	default:
		return err
	}
}
