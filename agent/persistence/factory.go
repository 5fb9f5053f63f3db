package persistence

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/internal/cache"
	"github.com/BaSui01/strengthflow/internal/database"
)

// Backends carries the connections a store may need. Only the one matching
// StoreConfig.Type is used; the store takes ownership of it.
type Backends struct {
	Cache *cache.Manager
	DB    *database.PoolManager
}

// NewReportStore creates a ReportStore based on the configuration
func NewReportStore(config StoreConfig, backends Backends, logger *zap.Logger) (ReportStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Type {
	case StoreTypeMemory:
		return NewMemoryReportStore(config), nil
	case StoreTypeRedis:
		return NewRedisReportStore(backends.Cache, config, logger)
	case StoreTypeSQL:
		return NewGormReportStore(backends.DB, config, logger)
	default:
		return nil, fmt.Errorf("unsupported report store type: %s", config.Type)
	}
}
