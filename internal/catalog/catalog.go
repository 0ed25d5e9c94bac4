package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
)

// Default timeout for catalog operations
const defaultTimeout = 5 * time.Second

// Catalog is the durable metadata store for assets, variants, delivery
// mappings, and tags. One row exists per distinct content hash.
type Catalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes writers; SQLite allows many readers in WAL mode
}

// Open creates a Catalog backed by the SQLite file at dbPath. The parent
// directory must already exist and be writable (config.Load validates this).
func Open(ctx context.Context, dbPath string) (*Catalog, error) {
	logging.Info("catalog path: %s", dbPath)

	// WAL for concurrent readers, busy_timeout to ride out writer contention,
	// foreign_keys so asset deletion cascades to variants and mappings.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("connect catalog: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	c := &Catalog{db: db, dbPath: dbPath}

	if err := c.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog after schema failure: %v", closeErr)
		}
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}

	logging.Info("catalog initialized at %s", dbPath)
	return c, nil
}

func (c *Catalog) initialize(ctx context.Context) error {
	schema := `
	-- One row per distinct content hash
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		byte_size INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		color_profile TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		frame_rate REAL NOT NULL DEFAULT 0,
		codec TEXT NOT NULL DEFAULT '',
		placeholder TEXT NOT NULL DEFAULT '',
		dominant_color TEXT NOT NULL DEFAULT '',
		uploaded_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_assets_kind ON assets(kind);
	CREATE INDEX IF NOT EXISTS idx_assets_filename ON assets(original_filename COLLATE NOCASE);

	-- Derived renderings; regenerable, cascade on asset deletion
	CREATE TABLE IF NOT EXISTS variants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
		preset_name TEXT NOT NULL,
		format TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		bitrate INTEGER NOT NULL DEFAULT 0,
		byte_size INTEGER NOT NULL DEFAULT 0,
		storage_key TEXT NOT NULL,
		checksum TEXT NOT NULL,
		generated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(asset_id, preset_name, format)
	);

	CREATE INDEX IF NOT EXISTS idx_variants_asset ON variants(asset_id);

	-- URL resolution per uploaded variant
	CREATE TABLE IF NOT EXISTS delivery_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
		preset_name TEXT NOT NULL,
		format TEXT NOT NULL,
		url TEXT NOT NULL,
		etag TEXT NOT NULL DEFAULT '',
		max_age INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(asset_id, preset_name, format)
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_asset ON delivery_mappings(asset_id);

	-- Tags
	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS asset_tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(asset_id, tag_id)
	);

	CREATE INDEX IF NOT EXISTS idx_asset_tags_asset ON asset_tags(asset_id);
	CREATE INDEX IF NOT EXISTS idx_asset_tags_tag ON asset_tags(tag_id);

	-- Full-text search over filenames
	CREATE VIRTUAL TABLE IF NOT EXISTS assets_fts USING fts5(
		original_filename,
		content='assets',
		content_rowid='rowid',
		tokenize='trigram'
	);

	CREATE TRIGGER IF NOT EXISTS assets_ai AFTER INSERT ON assets BEGIN
		INSERT INTO assets_fts(rowid, original_filename) VALUES (new.rowid, new.original_filename);
	END;

	CREATE TRIGGER IF NOT EXISTS assets_ad AFTER DELETE ON assets BEGIN
		INSERT INTO assets_fts(assets_fts, rowid, original_filename) VALUES('delete', old.rowid, old.original_filename);
	END;

	CREATE TRIGGER IF NOT EXISTS assets_au AFTER UPDATE ON assets BEGIN
		INSERT INTO assets_fts(assets_fts, rowid, original_filename) VALUES('delete', old.rowid, old.original_filename);
		INSERT INTO assets_fts(rowid, original_filename) VALUES (new.rowid, new.original_filename);
	END;
	`

	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// recordQuery records catalog query metrics.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.CatalogQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.CatalogQueryDuration.WithLabelValues(operation).Observe(duration)
}
