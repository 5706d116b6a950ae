package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/asuman/agent-memory/internal/backup"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/connections"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// fakeSource is an in-memory backup.Exporter/Importer double, standing in
// for a StoragePool-backed poolSource in tests that only care about the
// snapshot/restore shape, not real sqlite files.
type fakeSource struct {
	mu      sync.Mutex
	records map[string][]*types.Memory
}

func newFakeSource(records map[string][]*types.Memory) *fakeSource {
	return &fakeSource{records: records}
}

func (f *fakeSource) Agents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	agents := make([]string, 0, len(f.records))
	for agent := range f.records {
		agents = append(agents, agent)
	}
	return agents
}

func (f *fakeSource) Export(ctx context.Context, agent string, filter storage.Filter) ([]*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[agent], nil
}

func (f *fakeSource) Import(ctx context.Context, agent string, records []*types.Memory) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = make(map[string][]*types.Memory)
	}
	f.records[agent] = records
	return len(records), nil
}

func sampleMemory(agent, text string) *types.Memory {
	return &types.Memory{
		ID:             types.DeriveID(agent, text),
		Agent:          agent,
		Text:           text,
		NormalizedText: text,
		Category:       types.CategoryFact,
		Importance:     0.5,
		Strength:       1.0,
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
	}
}

func defaultRetention() backup.RetentionPolicy {
	return backup.RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

func TestBackupService_OneshotMode(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")

	source := newFakeSource(map[string][]*types.Memory{
		"alice": {sampleMemory("alice", "likes tea"), sampleMemory("alice", "works remote")},
		"bob":   {sampleMemory("bob", "prefers dark mode")},
	})

	service, err := backup.NewBackupService(backup.Config{
		Source:        source,
		BackupDir:     backupDir,
		Interval:      time.Hour,
		Retention:     defaultRetention(),
		VerifyBackups: true,
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}

	result, err := service.BackupNow(context.Background())
	if err != nil {
		t.Fatalf("BackupNow: %v", err)
	}

	if result.Path == "" {
		t.Error("backup path is empty")
	}
	if result.Size <= 0 {
		t.Error("backup size should be positive")
	}
	if !result.Verified {
		t.Error("backup should be verified")
	}
	if result.AgentCount != 2 {
		t.Errorf("expected 2 agents, got %d", result.AgentCount)
	}
	if result.RecordCount != 3 {
		t.Errorf("expected 3 records, got %d", result.RecordCount)
	}

	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("backup file not found at %s: %v", result.Path, err)
	}
}

func TestBackupService_ListBackups(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	source := newFakeSource(map[string][]*types.Memory{"alice": {sampleMemory("alice", "hello")}})

	service, err := backup.NewBackupService(backup.Config{
		Source:        source,
		BackupDir:     backupDir,
		Interval:      time.Hour,
		Retention:     defaultRetention(),
		VerifyBackups: true,
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}

	const numBackups = 3
	for i := 0; i < numBackups; i++ {
		if _, err := service.BackupNow(context.Background()); err != nil {
			t.Fatalf("BackupNow iteration %d: %v", i+1, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	backups, err := service.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) < numBackups {
		t.Errorf("expected at least %d backups, got %d", numBackups, len(backups))
	}
	for i, b := range backups {
		if b.Path == "" {
			t.Errorf("backup %d has empty path", i)
		}
		if b.Size <= 0 {
			t.Errorf("backup %d has invalid size: %d", i, b.Size)
		}
		if b.Timestamp.IsZero() {
			t.Errorf("backup %d has zero timestamp", i)
		}
	}
}

func TestBackupService_HealthCheck(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	source := newFakeSource(map[string][]*types.Memory{"alice": {sampleMemory("alice", "hello")}})

	service, err := backup.NewBackupService(backup.Config{
		Source:        source,
		BackupDir:     backupDir,
		Interval:      time.Hour,
		Retention:     defaultRetention(),
		VerifyBackups: true,
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}

	health, err := service.HealthCheck()
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
	if health.TotalBackups != 0 {
		t.Errorf("expected 0 backups, got %d", health.TotalBackups)
	}
	if health.BackupDir != backupDir {
		t.Errorf("expected backup dir %s, got %s", backupDir, health.BackupDir)
	}

	if _, err := service.BackupNow(context.Background()); err != nil {
		t.Fatalf("BackupNow: %v", err)
	}

	health, err = service.HealthCheck()
	if err != nil {
		t.Fatalf("HealthCheck after backup: %v", err)
	}
	if health.TotalBackups != 1 {
		t.Errorf("expected 1 backup, got %d", health.TotalBackups)
	}
	if health.LastBackup.IsZero() {
		t.Error("expected last backup time to be set")
	}
	if health.DiskSpaceUsed <= 0 {
		t.Error("expected positive disk space usage")
	}
}

func TestBackupService_RestoreFromBackup(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	source := newFakeSource(map[string][]*types.Memory{
		"alice": {sampleMemory("alice", "likes tea"), sampleMemory("alice", "works remote")},
	})

	service, err := backup.NewBackupService(backup.Config{
		Source:        source,
		BackupDir:     backupDir,
		Interval:      time.Hour,
		Retention:     defaultRetention(),
		VerifyBackups: true,
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}

	result, err := service.BackupNow(context.Background())
	if err != nil {
		t.Fatalf("BackupNow: %v", err)
	}

	target := newFakeSource(nil)
	n, err := service.RestoreBackup(context.Background(), result.Path, target)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 restored records, got %d", n)
	}
	if len(target.records["alice"]) != 2 {
		t.Errorf("expected 2 records restored for alice, got %d", len(target.records["alice"]))
	}
}

func TestBackupService_NewBackupService_MissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := backup.NewBackupService(backup.Config{
		BackupDir: filepath.Join(tmpDir, "backups"),
	})
	if err == nil {
		t.Error("expected error for missing Source")
	}
}

func TestBackupService_NewBackupService_MissingBackupDir(t *testing.T) {
	_, err := backup.NewBackupService(backup.Config{
		Source: newFakeSource(nil),
	})
	if err == nil {
		t.Error("expected error for missing BackupDir")
	}
}

func TestBackupService_RestoreBackup_NonexistentBackup(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	source := newFakeSource(nil)

	service, err := backup.NewBackupService(backup.Config{
		Source:    source,
		BackupDir: backupDir,
		Interval:  time.Hour,
		Retention: defaultRetention(),
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}

	_, err = service.RestoreBackup(context.Background(), filepath.Join(backupDir, "nonexistent.json"), newFakeSource(nil))
	if err == nil {
		t.Error("expected error when restoring from nonexistent backup")
	}
}

func TestBackupService_RestoreBackup_WhileRunning(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	source := newFakeSource(map[string][]*types.Memory{"alice": {sampleMemory("alice", "hello")}})

	service, err := backup.NewBackupService(backup.Config{
		Source:    source,
		BackupDir: backupDir,
		Interval:  100 * time.Millisecond,
		Retention: defaultRetention(),
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = service.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	backupPath := filepath.Join(backupDir, "test-backup.json")
	if err := os.WriteFile(backupPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing test backup file: %v", err)
	}

	if _, err := service.RestoreBackup(ctx, backupPath, newFakeSource(nil)); err == nil {
		t.Error("expected error when restoring while service is running")
	}

	_ = service.Stop()
}

func TestBackupService_DefaultRetentionPolicy(t *testing.T) {
	tmpDir := t.TempDir()
	service, err := backup.NewBackupService(backup.Config{
		Source:    newFakeSource(nil),
		BackupDir: filepath.Join(tmpDir, "backups"),
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}
	if service == nil {
		t.Error("expected backup service to be created with default retention policy")
	}
}

func TestBackupService_BackupDirectory_Created(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "does", "not", "exist", "yet")

	if _, err := os.Stat(backupDir); err == nil {
		t.Fatalf("backup directory should not exist yet: %s", backupDir)
	}

	service, err := backup.NewBackupService(backup.Config{
		Source:    newFakeSource(nil),
		BackupDir: backupDir,
		Retention: defaultRetention(),
	})
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}
	if service == nil {
		t.Error("expected backup service to be created")
	}
	if _, err := os.Stat(backupDir); err != nil {
		t.Fatalf("backup directory was not created: %v", err)
	}
}

// --- poolSource agent discovery ---

func TestNewPoolSource_DiscoversAgentsFromSqliteFiles(t *testing.T) {
	dataDir := t.TempDir()
	for _, name := range []string{"memory-alice.sqlite", "memory-bob.sqlite", "notes.txt", "memory-bad id.sqlite"} {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte{}, 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dataDir, "memory-dir.sqlite"), 0o755); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}

	cfg := config.StorageConfig{Backend: "sqlite"}
	pool, err := connections.NewStoragePool(cfg, dataDir)
	if err != nil {
		t.Fatalf("NewStoragePool: %v", err)
	}
	defer pool.Close()

	source, err := newPoolSource(pool, cfg, dataDir)
	if err != nil {
		t.Fatalf("newPoolSource: %v", err)
	}

	agents := source.Agents()
	found := map[string]bool{}
	for _, a := range agents {
		found[a] = true
	}
	if !found["alice"] || !found["bob"] {
		t.Errorf("expected alice and bob discovered, got %v", agents)
	}
	if len(agents) != 2 {
		t.Errorf("expected exactly 2 discovered agents, got %v", agents)
	}
}

func TestNewPoolSource_RejectsPostgres(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.StorageConfig{Backend: "postgres", PostgresDSN: "postgres://x"}
	pool, err := connections.NewStoragePool(cfg, dataDir)
	if err != nil {
		t.Fatalf("NewStoragePool: %v", err)
	}
	defer pool.Close()

	if _, err := newPoolSource(pool, cfg, dataDir); err == nil {
		t.Error("expected error requesting agent discovery on postgres backend")
	}
}

func TestNewPoolSource_EmptyDataDir(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.StorageConfig{Backend: "sqlite"}
	pool, err := connections.NewStoragePool(cfg, dataDir)
	if err != nil {
		t.Fatalf("NewStoragePool: %v", err)
	}
	defer pool.Close()

	source, err := newPoolSource(pool, cfg, dataDir)
	if err != nil {
		t.Fatalf("newPoolSource: %v", err)
	}
	if len(source.Agents()) != 0 {
		t.Errorf("expected no agents for an empty data dir, got %v", source.Agents())
	}
}
