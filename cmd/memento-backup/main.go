// Command memento-backup runs the automated snapshot backup service: a
// standalone process that periodically exports every agent's records to a
// JSON file and enforces the tiered retention policy, independent of
// whether agent-memory-server is running.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asuman/agent-memory/internal/backup"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/connections"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

var (
	configPath = flag.String("config", "", "path to a JSON config overlay file")
	backupDir  = flag.String("backup-dir", "", "backup directory path (overrides config)")
	interval   = flag.Duration("interval", 0, "backup interval (overrides config)")
	verify     = flag.Bool("verify", true, "verify snapshots after creation")
	oneshot    = flag.Bool("oneshot", false, "perform a single backup and exit")
	restore    = flag.String("restore", "", "restore every agent from the named snapshot file and exit")
	healthCmd  = flag.Bool("health", false, "check backup service health and exit")
	listCmd    = flag.Bool("list", false, "list all available snapshots and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dataDir, err := connections.ResolveDataDir()
	if err != nil {
		log.Fatalf("config: resolving data directory: %v", err)
	}
	cfg.Storage.DataDir = dataDir

	pool, err := connections.NewStoragePool(cfg.Storage, dataDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer pool.Close()

	source, err := newPoolSource(pool, cfg.Storage, dataDir)
	if err != nil {
		log.Fatalf("storage: discovering agents: %v", err)
	}

	dir := cfg.Backup.Path
	if *backupDir != "" {
		dir = *backupDir
	}

	backupInterval := 1 * time.Hour
	if *interval > 0 {
		backupInterval = *interval
	}

	service, err := backup.NewBackupService(backup.Config{
		Source:    source,
		BackupDir: dir,
		Interval:  backupInterval,
		Retention: backup.RetentionPolicy{
			Hourly:  cfg.Backup.RetentionHourly,
			Daily:   cfg.Backup.RetentionDaily,
			Weekly:  cfg.Backup.RetentionWeekly,
			Monthly: cfg.Backup.RetentionMonthly,
		},
		VerifyBackups: *verify,
	})
	if err != nil {
		log.Fatalf("backup: creating service: %v", err)
	}

	ctx := context.Background()

	if *restore != "" {
		handleRestore(ctx, service, source, *restore)
		return
	}

	if *healthCmd {
		handleHealth(service)
		return
	}

	if *listCmd {
		handleList(service)
		return
	}

	if *oneshot {
		handleOneshot(ctx, service)
		return
	}

	runService(ctx, service)
}

func handleRestore(ctx context.Context, service *backup.BackupService, target backup.Importer, backupPath string) {
	log.Printf("restoring from snapshot: %s", backupPath)

	n, err := service.RestoreBackup(ctx, backupPath, target)
	if err != nil {
		log.Fatalf("restore failed: %v", err)
	}

	log.Printf("restored %d records", n)
}

func handleHealth(service *backup.BackupService) {
	health, err := service.HealthCheck()
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	if health.Message != "" {
		fmt.Printf("Message: %s\n", health.Message)
	}
	fmt.Printf("Total Backups: %d\n", health.TotalBackups)
	fmt.Printf("Disk Space Used: %.2f MB\n", float64(health.DiskSpaceUsed)/(1024*1024))
	fmt.Printf("Backup Directory: %s\n", health.BackupDir)

	if !health.LastBackup.IsZero() {
		fmt.Printf("Last Backup: %s (%s ago)\n",
			health.LastBackup.Format(time.RFC3339),
			time.Since(health.LastBackup).Round(time.Minute))
	} else {
		fmt.Println("Last Backup: Never")
	}

	if !health.NextBackup.IsZero() {
		fmt.Printf("Next Backup: %s (in %s)\n",
			health.NextBackup.Format(time.RFC3339),
			time.Until(health.NextBackup).Round(time.Minute))
	}

	if health.Status != "healthy" {
		os.Exit(1)
	}
}

func handleList(service *backup.BackupService) {
	backups, err := service.ListBackups()
	if err != nil {
		log.Fatalf("failed to list backups: %v", err)
	}

	if len(backups) == 0 {
		fmt.Println("No backups found")
		return
	}

	fmt.Printf("Found %d backup(s):\n\n", len(backups))
	for i, b := range backups {
		fmt.Printf("%d. %s\n", i+1, b.Path)
		fmt.Printf("   Size: %.2f MB\n", float64(b.Size)/(1024*1024))
		fmt.Printf("   Created: %s (%s ago)\n",
			b.Timestamp.Format(time.RFC3339),
			time.Since(b.Timestamp).Round(time.Minute))
		fmt.Println()
	}
}

func handleOneshot(ctx context.Context, service *backup.BackupService) {
	log.Println("performing one-time backup...")

	result, err := service.BackupNow(ctx)
	if err != nil {
		log.Fatalf("backup failed: %v", err)
	}

	log.Printf("backup completed:")
	log.Printf("  Path: %s", result.Path)
	log.Printf("  Agents: %d", result.AgentCount)
	log.Printf("  Records: %d", result.RecordCount)
	log.Printf("  Duration: %v", result.Duration)
	log.Printf("  Verified: %v", result.Verified)
}

func runService(ctx context.Context, service *backup.BackupService) {
	go func() {
		if err := service.Start(ctx); err != nil {
			if err != context.Canceled {
				log.Printf("backup service error: %v", err)
			}
		}
	}()

	log.Println("memento-backup service started")
	log.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down backup service...")
	if err := service.Stop(); err != nil {
		log.Printf("warning: %v", err)
	}

	log.Println("backup service stopped")
}

// poolSource discovers agent ids from the sqlite data directory's
// memory-<agent>.sqlite files (StoragePool itself only tracks stores it has
// already opened, so a freshly started backup process otherwise sees none)
// and routes Export/Import through the pool's per-agent stores.
type poolSource struct {
	pool   *connections.StoragePool
	agents []string
}

func newPoolSource(pool *connections.StoragePool, cfg config.StorageConfig, dataDir string) (*poolSource, error) {
	if cfg.Backend != "sqlite" {
		return nil, fmt.Errorf("memento-backup: agent discovery is only supported for the sqlite backend; " +
			"for postgres, back up with pg_dump/native tooling instead")
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return &poolSource{pool: pool}, nil
		}
		return nil, fmt.Errorf("memento-backup: reading data dir %s: %w", dataDir, err)
	}

	var agents []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		const prefix, suffix = "memory-", ".sqlite"
		if len(name) <= len(prefix)+len(suffix) || name[:len(prefix)] != prefix || filepath.Ext(name) != suffix {
			continue
		}
		agent := name[len(prefix) : len(name)-len(suffix)]
		if connections.ValidateAgentID(agent) != nil {
			continue
		}
		agents = append(agents, agent)
	}

	return &poolSource{pool: pool, agents: agents}, nil
}

func (p *poolSource) Agents() []string {
	return p.agents
}

func (p *poolSource) Export(ctx context.Context, agent string, filter storage.Filter) ([]*types.Memory, error) {
	store, err := p.pool.Get(agent)
	if err != nil {
		return nil, err
	}
	filter.Agent = agent
	filter.IncludeSoftDeleted = true
	return store.Export(ctx, filter)
}

func (p *poolSource) Import(ctx context.Context, agent string, records []*types.Memory) (int, error) {
	store, err := p.pool.Get(agent)
	if err != nil {
		return 0, err
	}
	return store.Import(ctx, records)
}
