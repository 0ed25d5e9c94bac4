package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const storeTimeout = 5 * time.Second

// Store is the append-only serve-event log, kept in its own SQLite file so
// high-volume analytics writes never contend with catalog transactions.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the analytics database.
func OpenStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS serve_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_id TEXT NOT NULL,
			preset_name TEXT NOT NULL,
			format TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			device_class TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_serves_asset ON serve_events(asset_id, preset_name);
		CREATE INDEX IF NOT EXISTS idx_serves_ts ON serve_events(ts);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init analytics schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append writes one serve event. Zero timestamps are stamped with now.
func (s *Store) Append(ctx context.Context, e ServeEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO serve_events (asset_id, preset_name, format, bytes, latency_ms, device_class, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.AssetID, e.PresetName, e.FormatServed, e.BytesTransferred, e.LatencyMs, e.DeviceClass, ts.Unix())
	if err != nil {
		return fmt.Errorf("append serve event: %w", err)
	}
	return nil
}

// EventCount returns the total number of recorded events.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM serve_events").Scan(&n)
	return n, err
}

// VariantUsage aggregates the serve history of one (preset, format) pair
// of an asset.
type VariantUsage struct {
	AssetID    string
	PresetName string
	Format     string
	Serves     int64
	MeanBytes  float64
	LastServed time.Time
}

// UsageFor aggregates serve history per variant. With an empty assetID it
// covers every asset that has ever been served.
func (s *Store) UsageFor(ctx context.Context, assetID string) ([]VariantUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `
		SELECT asset_id, preset_name, format, COUNT(*), AVG(bytes), MAX(ts)
		FROM serve_events`
	var args []any
	if assetID != "" {
		query += " WHERE asset_id = ?"
		args = append(args, assetID)
	}
	query += " GROUP BY asset_id, preset_name, format"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	defer rows.Close()

	var usage []VariantUsage
	for rows.Next() {
		var u VariantUsage
		var lastTs int64
		if err := rows.Scan(&u.AssetID, &u.PresetName, &u.Format, &u.Serves, &u.MeanBytes, &lastTs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.LastServed = time.Unix(lastTs, 0)
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
