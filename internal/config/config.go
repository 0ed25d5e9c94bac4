package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"media-pipeline/internal/logging"
)

// Config holds all pipeline configuration.
type Config struct {
	// Storage paths
	DataDir       string
	CatalogPath   string
	AnalyticsPath string
	ScratchDir    string

	// Delivery backend
	Backend     string // "local" or "s3"
	StorageRoot string // local backend root
	BaseURL     string // local backend public URL prefix
	S3Bucket    string
	S3Region    string
	S3Prefix    string
	CDNBaseURL  string // optional CDN prefix in front of S3

	// Ingestion
	WorkerCount    int   // 0 = sized automatically
	MaxUploadBytes int64 // oversize rejection threshold

	// Per-stage timeouts
	HashTimeout    time.Duration
	InspectTimeout time.Duration
	ImageTimeout   time.Duration
	RungTimeout    time.Duration // per transcode rung

	// Analytics
	NATSURL         string // optional serve-event fan-out
	NATSSubject     string
	UnusedAfter     time.Duration
	RecompressRatio float64
	OversizeFactor  float64

	// Observability
	MetricsPort    string
	MetricsEnabled bool

	// Feature flags derived at load time
	VideoEnabled bool // ffmpeg and ffprobe found on PATH
}

// Load reads configuration from the environment (with .env support) and
// validates it. Validation failures here are fatal: the pipeline never starts
// with a half-usable configuration.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		logging.Debug("loaded configuration overrides from .env")
	}

	dataDir := envOr("DATA_DIR", "./data")
	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	cfg := &Config{
		DataDir:       dataDir,
		CatalogPath:   envOr("CATALOG_PATH", filepath.Join(dataDir, "catalog.db")),
		AnalyticsPath: envOr("ANALYTICS_PATH", filepath.Join(dataDir, "analytics.db")),
		ScratchDir:    envOr("SCRATCH_DIR", filepath.Join(dataDir, "scratch")),

		Backend:     envOr("STORAGE_BACKEND", "local"),
		StorageRoot: envOr("STORAGE_ROOT", filepath.Join(dataDir, "variants")),
		BaseURL:     envOr("BASE_URL", "http://localhost:8080/media"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    os.Getenv("S3_REGION"),
		S3Prefix:    os.Getenv("S3_PREFIX"),
		CDNBaseURL:  os.Getenv("CDN_BASE_URL"),

		WorkerCount:    envIntOr("WORKER_COUNT", 0),
		MaxUploadBytes: envInt64Or("MAX_UPLOAD_BYTES", 2*1024*1024*1024),

		HashTimeout:    envDurationOr("HASH_TIMEOUT", 30*time.Second),
		InspectTimeout: envDurationOr("INSPECT_TIMEOUT", 15*time.Second),
		ImageTimeout:   envDurationOr("IMAGE_TIMEOUT", 60*time.Second),
		RungTimeout:    envDurationOr("RUNG_TIMEOUT", 10*time.Minute),

		NATSURL:         os.Getenv("NATS_URL"),
		NATSSubject:     envOr("NATS_SUBJECT", "media.serves"),
		UnusedAfter:     envDurationOr("UNUSED_AFTER", 90*24*time.Hour),
		RecompressRatio: envFloatOr("RECOMPRESS_RATIO", 1.5),
		OversizeFactor:  envFloatOr("OVERSIZE_FACTOR", 4.0),

		MetricsPort:    envOr("METRICS_PORT", "9090"),
		MetricsEnabled: envBoolOr("METRICS_ENABLED", true),
	}

	logging.Info("configuration:")
	logging.Info("  DATA_DIR:        %s", cfg.DataDir)
	logging.Info("  CATALOG_PATH:    %s", cfg.CatalogPath)
	logging.Info("  STORAGE_BACKEND: %s", cfg.Backend)
	logging.Info("  WORKER_COUNT:    %d (0 = auto)", cfg.WorkerCount)
	logging.Info("  METRICS:         %v (port %s)", cfg.MetricsEnabled, cfg.MetricsPort)
	logging.Info("  LOG_LEVEL:       %s", logging.GetLevel())

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.VideoEnabled = ffmpegAvailable()
	if !cfg.VideoEnabled {
		logging.Warn("ffmpeg/ffprobe not found on PATH; video ingestion disabled")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "local":
		if err := ensureWritableDir(c.StorageRoot); err != nil {
			return fmt.Errorf("storage root unusable: %w", err)
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("STORAGE_BACKEND=s3 requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}

	for _, dir := range []string{filepath.Dir(c.CatalogPath), filepath.Dir(c.AnalyticsPath), c.ScratchDir} {
		if err := ensureWritableDir(dir); err != nil {
			return fmt.Errorf("directory %s unusable: %w", dir, err)
		}
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.RecompressRatio <= 1.0 {
		return fmt.Errorf("RECOMPRESS_RATIO must exceed 1.0, got %v", c.RecompressRatio)
	}
	if c.OversizeFactor <= 1.0 {
		return fmt.Errorf("OVERSIZE_FACTOR must exceed 1.0, got %v", c.OversizeFactor)
	}

	return nil
}

// ensureWritableDir creates dir if needed and verifies write access with a
// probe file, the only reliable check on network filesystems.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	probe := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		logging.Warn("failed to remove probe file %s: %v", probe, err)
	}
	return nil
}

func ffmpegAvailable() bool {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return false
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return false
	}
	return true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logging.Warn("invalid %s=%q, using default %d", key, v, fallback)
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		logging.Warn("invalid %s=%q, using default %d", key, v, fallback)
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		logging.Warn("invalid %s=%q, using default %v", key, v, fallback)
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		logging.Warn("invalid %s=%q, using default %v", key, v, fallback)
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		logging.Warn("invalid %s=%q, using default %s", key, v, fallback)
	}
	return fallback
}
