// Package backup provides automated, tiered-retention snapshotting of the
// memory store. Unlike a raw file copy, a snapshot is a JSON export of
// every agent's records (including soft-deleted ones, for full restore
// fidelity) produced through the same Export/Import surface the /v1/export
// and /v1/import HTTP routes use, so the backup format never depends on a
// specific storage backend's on-disk layout.
package backup

import (
	"context"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// Exporter is the subset of Engine a BackupService needs to read every
// agent's records.
type Exporter interface {
	Agents() []string
	Export(ctx context.Context, agent string, filter storage.Filter) ([]*types.Memory, error)
}

// Importer is the subset of Engine a BackupService needs to restore
// records into an agent's store.
type Importer interface {
	Import(ctx context.Context, agent string, records []*types.Memory) (int, error)
}

// Config holds backup service configuration.
type Config struct {
	// Source supplies the agent list and their records for each snapshot.
	Source Exporter

	// BackupDir is the directory where snapshot files will be stored.
	BackupDir string

	// Interval is the duration between automated snapshots (default: 1 hour).
	Interval time.Duration

	// Retention defines how long to keep snapshots at different tiers.
	Retention RetentionPolicy

	// VerifyBackups re-parses a snapshot immediately after writing it.
	VerifyBackups bool
}

// RetentionPolicy defines how many snapshots to keep at each tier.
// Snapshots are categorized by age:
//   - Hourly: less than 24 hours old
//   - Daily: 1-7 days old
//   - Weekly: 7-30 days old
//   - Monthly: 30-365 days old
type RetentionPolicy struct {
	Hourly  int // default: 24
	Daily   int // default: 7
	Weekly  int // default: 4
	Monthly int // default: 12
}

// BackupInfo describes a snapshot file already on disk.
type BackupInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
	Verified  bool
}

// BackupResult is the outcome of a single snapshot run.
type BackupResult struct {
	Path        string
	Duration    time.Duration
	Size        int64
	AgentCount  int
	RecordCount int
	Verified    bool
	Error       error
}

// HealthStatus reports the backup service's current standing.
type HealthStatus struct {
	Status        string // "healthy", "warning", or "error"
	Message       string
	LastBackup    time.Time
	NextBackup    time.Time
	TotalBackups  int
	BackupDir     string
	DiskSpaceUsed int64
}

// snapshot is the on-disk JSON shape: every agent's exported records keyed
// by agent id.
type snapshot map[string][]*types.Memory
