// Package config loads configuration for the recall and lifecycle engine
// from environment variables under the AGENT_MEMORY_ prefix (legacy
// ASUMAN_MEMORY_ fallback for compatibility with older deployments), with
// an optional JSON overlay file applied on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds every setting the core and its adapters need.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embed     EmbedConfig
	Search    SearchConfig
	Reranker  RerankerConfig
	Lifecycle LifecycleConfig
	Backup    BackupConfig
	Security  SecurityConfig
}

// SecurityConfig configures the HTTP adapter's auth and rate limiting.
// Enforcement itself lives entirely in the adapter (see internal/authkeys
// and internal/httpapi), never in the core engine.
type SecurityConfig struct {
	KeysPath        string // path to the per-agent API key JSON file; empty = development mode
	RateLimitPerSec float64
	RateLimitBurst  int
}

// ServerConfig is the HTTP adapter's listen configuration.
type ServerConfig struct {
	Port int
	Host string
}

// StorageConfig selects and configures the Store backend.
type StorageConfig struct {
	Backend     string // "sqlite" | "postgres"
	DataDir     string // resolved by StoragePool; recorded here for display/metrics
	PostgresDSN string
}

// EmbedConfig configures the Embedder's remote client.
type EmbedConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Dimensions     int
	MaxChars       int
	BatchSize      int
	BatchWindowMS  int
	RequestsPerSec float64
}

// SearchConfig configures the Fuser's RRF weights and candidate sizes.
type SearchConfig struct {
	WeightSemantic   float64
	WeightKeyword    float64
	WeightRecency    float64
	WeightStrength   float64
	WeightImportance float64
	NSemantic        int
	NLexical         int
	KFuse            int
	RecallDeadlineMS int
}

// RerankerConfig configures the two-pass reranker.
type RerankerConfig struct {
	PrimaryEnabled    bool
	PrimaryModel      string // "balanced" | "quality" preset name
	PrimaryTopK       int
	PrimaryWeight     float64
	PrimaryMaxChars   int
	ConfidentGapSkip  float64
	SecondaryEnabled  bool
	SecondaryModel    string
	SecondaryTopK     int
	SecondaryWeight   float64
	SecondaryEndpoint string
	MMRLambda         float64
	Threads           int
}

// LifecycleConfig configures decay/consolidate/GC thresholds.
type LifecycleConfig struct {
	DecayBaseRate        float64
	DecayAlpha           float64
	MergeThreshold       float64
	ConsolidateThreshold float64
	ConflictMargin       float64
	WeakStrength         float64
	StaleAgeDays         float64
	HardPurgeDays        float64
	ReinforceDelta       float64
}

// BackupConfig configures the tiered backup retention policy.
type BackupConfig struct {
	Enabled          bool
	Path             string
	RetentionHourly  int
	RetentionDaily   int
	RetentionWeekly  int
	RetentionMonthly int
}

// Load reads environment variables (AGENT_MEMORY_* preferred,
// ASUMAN_MEMORY_* as legacy fallback) and applies overlayPath, if non-empty,
// as a JSON overlay on top.
func Load(overlayPath string) (*Config, error) {
	cfg := buildBaseConfig()

	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading overlay %s: %w", overlayPath, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing overlay %s: %w", overlayPath, err)
		}
	}

	return cfg, nil
}

func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8085),
			Host: getEnv("HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Backend:     getEnv("BACKEND", "sqlite"),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
		},
		Embed: EmbedConfig{
			BaseURL:        getEnv("EMBED_BASE_URL", "http://localhost:8081/v1"),
			APIKey:         getEnv("EMBED_API_KEY", ""),
			Model:          getEnv("EMBED_MODEL", "text-embedding-3-small"),
			Dimensions:     getEnvInt("DIMENSIONS", 768),
			MaxChars:       getEnvInt("MAX_EMBED_CHARS", 8000),
			BatchSize:      getEnvInt("EMBED_BATCH_SIZE", 32),
			BatchWindowMS:  getEnvInt("EMBED_BATCH_WINDOW_MS", 50),
			RequestsPerSec: getEnvFloat("EMBED_RATE_LIMIT_RPS", 10),
		},
		Search: SearchConfig{
			WeightSemantic:   getEnvFloat("W_SEMANTIC", 0.50),
			WeightKeyword:    getEnvFloat("W_KEYWORD", 0.25),
			WeightRecency:    getEnvFloat("W_RECENCY", 0.10),
			WeightStrength:   getEnvFloat("W_STRENGTH", 0.07),
			WeightImportance: getEnvFloat("W_IMPORTANCE", 0.08),
			NSemantic:        getEnvInt("N_SEMANTIC", 50),
			NLexical:         getEnvInt("N_LEXICAL", 50),
			KFuse:            getEnvInt("K_FUSE", 20),
			RecallDeadlineMS: getEnvInt("RECALL_DEADLINE_MS", 2000),
		},
		Reranker: RerankerConfig{
			PrimaryEnabled:    getEnvBool("RERANK_PRIMARY_ENABLED", true),
			PrimaryModel:      getEnv("RERANK_PRIMARY_PRESET", "balanced"),
			PrimaryTopK:       getEnvInt("RERANK_PRIMARY_TOPK", 10),
			PrimaryWeight:     getEnvFloat("RERANK_PRIMARY_WEIGHT", 0.22),
			PrimaryMaxChars:   getEnvInt("RERANK_PRIMARY_MAX_CHARS", 600),
			ConfidentGapSkip:  getEnvFloat("RERANK_CONFIDENT_GAP", 0.20),
			SecondaryEnabled:  getEnvBool("RERANK_SECONDARY_ENABLED", false),
			SecondaryModel:    getEnv("RERANK_SECONDARY_PRESET", "quality"),
			SecondaryTopK:     getEnvInt("RERANK_SECONDARY_TOPK", 3),
			SecondaryWeight:   getEnvFloat("RERANK_SECONDARY_WEIGHT", 0.35),
			SecondaryEndpoint: getEnv("RERANK_SECONDARY_ENDPOINT", ""),
			MMRLambda:         getEnvFloat("MMR_LAMBDA", 0.7),
			Threads:           getEnvInt("RERANK_THREADS", 2),
		},
		Lifecycle: LifecycleConfig{
			DecayBaseRate:        getEnvFloat("DECAY_BASE_RATE", 0.15),
			DecayAlpha:           getEnvFloat("DECAY_ALPHA", 2.0),
			MergeThreshold:       getEnvFloat("MERGE_THRESHOLD", 0.85),
			ConsolidateThreshold: getEnvFloat("CONSOLIDATE_THRESHOLD", 0.9),
			ConflictMargin:       getEnvFloat("CONFLICT_MARGIN", 0.15),
			WeakStrength:         getEnvFloat("WEAK_STRENGTH", 0.1),
			StaleAgeDays:         getEnvFloat("STALE_AGE_DAYS", 90),
			HardPurgeDays:        getEnvFloat("HARD_PURGE_DAYS", 30),
			ReinforceDelta:       getEnvFloat("REINFORCE_DELTA", 0.1),
		},
		Backup: BackupConfig{
			Enabled:          getEnvBool("BACKUP_ENABLED", false),
			Path:             getEnv("BACKUP_PATH", "./backups"),
			RetentionHourly:  getEnvInt("BACKUP_RETENTION_HOURLY", 24),
			RetentionDaily:   getEnvInt("BACKUP_RETENTION_DAILY", 7),
			RetentionWeekly:  getEnvInt("BACKUP_RETENTION_WEEKLY", 4),
			RetentionMonthly: getEnvInt("BACKUP_RETENTION_MONTHLY", 12),
		},
		Security: SecurityConfig{
			KeysPath:        getEnv("API_KEYS_PATH", ""),
			RateLimitPerSec: getEnvFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}
}

// getEnv reads AGENT_MEMORY_<key>, falling back to the legacy
// ASUMAN_MEMORY_<key> name, then to defaultValue.
func getEnv(key, defaultValue string) string {
	if v := os.Getenv("AGENT_MEMORY_" + key); v != "" {
		return v
	}
	if v := os.Getenv("ASUMAN_MEMORY_" + key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := getEnv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := getEnv(key, ""); v != "" {
		switch v {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
