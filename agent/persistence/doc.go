// Package persistence stores crew reports so they can be fetched after a run.
//
// Supported backends:
//   - Memory: development and single-instance deployments (default)
//   - Redis: shared storage through internal/cache, TTL-based retention
//   - SQL: postgres, mysql or sqlite through gorm, periodic purge
//
// All backends implement ReportStore and return ErrNotFound for unknown or
// expired report IDs.
package persistence
