package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/strengthflow/agent/crews"
)

// MemoryReportStore is an in-memory implementation of ReportStore.
// Suitable for development and single-instance deployments. Data is lost on restart.
type MemoryReportStore struct {
	reports map[string]*crews.Report
	config  StoreConfig
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewMemoryReportStore creates a new in-memory report store
func NewMemoryReportStore(config StoreConfig) *MemoryReportStore {
	s := &MemoryReportStore{
		reports: make(map[string]*crews.Report),
		config:  config,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if config.Retention > 0 && config.CleanupInterval > 0 {
		go s.cleanupLoop(config.CleanupInterval)
	}
	return s
}

// Close closes the store
func (s *MemoryReportStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryReportStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveReport stores a copy of report
func (s *MemoryReportStore) SaveReport(_ context.Context, report *crews.Report) error {
	if err := validateReport(report); err != nil {
		return err
	}
	stored, err := cloneReport(report)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.reports[stored.ID] = stored
	s.evictLocked()
	return nil
}

// GetReport returns a copy of the stored report
func (s *MemoryReportStore) GetReport(_ context.Context, id string) (*crews.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	report, ok := s.reports[id]
	if !ok || s.expired(report) {
		return nil, ErrNotFound
	}
	return cloneReport(report)
}

// ListReports returns the newest reports first
func (s *MemoryReportStore) ListReports(_ context.Context, limit int) ([]*crews.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	reports := make([]*crews.Report, 0, len(s.reports))
	for _, r := range s.reports {
		if !s.expired(r) {
			reports = append(reports, r)
		}
	}
	sortNewestFirst(reports)
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}

	out := make([]*crews.Report, len(reports))
	for i, r := range reports {
		c, err := cloneReport(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Cleanup removes expired reports and returns how many were removed
func (s *MemoryReportStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, r := range s.reports {
		if s.expired(r) {
			delete(s.reports, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryReportStore) expired(r *crews.Report) bool {
	return s.config.Retention > 0 && s.now().Sub(r.StartedAt) > s.config.Retention
}

// evictLocked drops the oldest reports beyond MaxReports.
func (s *MemoryReportStore) evictLocked() {
	if s.config.MaxReports <= 0 || len(s.reports) <= s.config.MaxReports {
		return
	}
	all := make([]*crews.Report, 0, len(s.reports))
	for _, r := range s.reports {
		all = append(all, r)
	}
	sortNewestFirst(all)
	for _, r := range all[s.config.MaxReports:] {
		delete(s.reports, r.ID)
	}
}

func (s *MemoryReportStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

func sortNewestFirst(reports []*crews.Report) {
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].StartedAt.Equal(reports[j].StartedAt) {
			return reports[i].ID > reports[j].ID
		}
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
}
