package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/asuman/agent-memory/internal/storage"
)

// BackupService runs tiered-retention JSON snapshots of every agent a
// Source knows about, grounded on the teacher's own backup service's
// ticker-loop/mutex-guarded-state shape, adapted from a raw SQLite file
// copy to a logical Export/Import snapshot.
type BackupService struct {
	source        Exporter
	backupDir     string
	interval      time.Duration
	retention     RetentionPolicy
	verifyBackups bool

	mu             sync.Mutex
	running        bool
	stopCh         chan struct{}
	lastBackupTime time.Time
	nextBackupTime time.Time
}

// NewBackupService creates a BackupService from cfg, applying defaults for
// any unset interval/retention fields.
func NewBackupService(cfg Config) (*BackupService, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("backup: a Source is required")
	}
	if cfg.BackupDir == "" {
		return nil, fmt.Errorf("backup: a backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.Retention.Hourly == 0 {
		cfg.Retention.Hourly = 24
	}
	if cfg.Retention.Daily == 0 {
		cfg.Retention.Daily = 7
	}
	if cfg.Retention.Weekly == 0 {
		cfg.Retention.Weekly = 4
	}
	if cfg.Retention.Monthly == 0 {
		cfg.Retention.Monthly = 12
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: creating backup directory: %w", err)
	}
	return &BackupService{
		source:        cfg.Source,
		backupDir:     cfg.BackupDir,
		interval:      cfg.Interval,
		retention:     cfg.Retention,
		verifyBackups: cfg.VerifyBackups,
		stopCh:        make(chan struct{}),
	}, nil
}

// Start runs the automated snapshot loop until ctx is cancelled or Stop is
// called.
func (s *BackupService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup: service is already running")
	}
	s.running = true
	s.nextBackupTime = time.Now().Add(s.interval)
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("backup: service started interval=%v dir=%s", s.interval, s.backupDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-ticker.C:
			result, err := s.BackupNow(ctx)
			if err != nil {
				log.Printf("backup: scheduled snapshot failed: %v", err)
			} else {
				log.Printf("backup: scheduled snapshot done path=%s agents=%d records=%d duration=%v",
					result.Path, result.AgentCount, result.RecordCount, result.Duration)
			}

			s.mu.Lock()
			s.nextBackupTime = time.Now().Add(s.interval)
			s.mu.Unlock()
		}
	}
}

// Stop halts the automated snapshot loop.
func (s *BackupService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("backup: service is not running")
	}
	close(s.stopCh)
	s.running = false
	return nil
}

// BackupNow exports every agent's records into a single timestamped JSON
// snapshot file and applies the retention policy.
func (s *BackupService) BackupNow(ctx context.Context) (*BackupResult, error) {
	start := time.Now()

	snap := snapshot{}
	recordCount := 0
	for _, agent := range s.source.Agents() {
		records, err := s.source.Export(ctx, agent, storage.Filter{})
		if err != nil {
			return nil, fmt.Errorf("backup: exporting agent %q: %w", agent, err)
		}
		snap[agent] = records
		recordCount += len(records)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: marshaling snapshot: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000000")
	name := fmt.Sprintf("agent-memory-backup-%s.json", timestamp)
	path := filepath.Join(s.backupDir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("backup: writing snapshot: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: statting snapshot: %w", err)
	}

	result := &BackupResult{
		Path:        path,
		Duration:    time.Since(start),
		Size:        info.Size(),
		AgentCount:  len(snap),
		RecordCount: recordCount,
	}

	if s.verifyBackups {
		if err := verifySnapshot(path); err != nil {
			result.Error = fmt.Errorf("backup: verification failed: %w", err)
			return result, result.Error
		}
		result.Verified = true
	}

	s.mu.Lock()
	s.lastBackupTime = time.Now()
	s.mu.Unlock()

	if err := applyRetention(s.backupDir, s.retention); err != nil {
		log.Printf("backup: warning: retention cleanup failed: %v", err)
	}

	return result, nil
}

// ListBackups lists every snapshot currently on disk, newest first.
func (s *BackupService) ListBackups() ([]BackupInfo, error) {
	return listBackups(s.backupDir)
}

// RestoreBackup restores every agent in the snapshot at path into target.
// The service must be stopped first.
func (s *BackupService) RestoreBackup(ctx context.Context, backupPath string, target Importer) (int, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return 0, fmt.Errorf("backup: cannot restore while the service is running")
	}

	snap, err := readSnapshot(backupPath)
	if err != nil {
		return 0, err
	}

	total := 0
	for agent, records := range snap {
		n, err := target.Import(ctx, agent, records)
		if err != nil {
			return total, fmt.Errorf("backup: restoring agent %q: %w", agent, err)
		}
		total += n
	}
	log.Printf("backup: restored %d records across %d agents from %s", total, len(snap), backupPath)
	return total, nil
}

// HealthCheck reports the service's current standing.
func (s *BackupService) HealthCheck() (*HealthStatus, error) {
	s.mu.Lock()
	lastBackup := s.lastBackupTime
	nextBackup := s.nextBackupTime
	s.mu.Unlock()

	backups, err := s.ListBackups()
	if err != nil {
		return nil, fmt.Errorf("backup: listing backups: %w", err)
	}
	diskUsage, err := calculateDiskUsage(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("backup: calculating disk usage: %w", err)
	}

	status := &HealthStatus{
		LastBackup:    lastBackup,
		NextBackup:    nextBackup,
		TotalBackups:  len(backups),
		BackupDir:     s.backupDir,
		DiskSpaceUsed: diskUsage,
		Status:        "healthy",
	}

	switch {
	case !lastBackup.IsZero() && time.Since(lastBackup) > s.interval*2:
		status.Status = "warning"
		status.Message = fmt.Sprintf("backup overdue by %v", time.Since(lastBackup)-s.interval)
	case lastBackup.IsZero():
		status.Message = "no backups yet"
	default:
		status.Message = fmt.Sprintf("last backup %v ago", time.Since(lastBackup).Round(time.Minute))
	}

	return status, nil
}

func verifySnapshot(path string) error {
	_, err := readSnapshot(path)
	return err
}

func readSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backup: reading snapshot %s: %w", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("backup: parsing snapshot %s: %w", path, err)
	}
	return snap, nil
}
