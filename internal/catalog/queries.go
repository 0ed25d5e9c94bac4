package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-pipeline/internal/metrics"
)

// ErrNotFound is returned when a requested asset or variant does not exist.
var ErrNotFound = errors.New("catalog: not found")

const assetColumns = `id, content_hash, kind, original_filename, mime_type, byte_size,
	width, height, color_profile, duration, frame_rate, codec,
	placeholder, dominant_color, uploaded_by, created_at`

func scanAsset(row interface{ Scan(...any) error }) (*Asset, error) {
	var a Asset
	var createdAt int64
	err := row.Scan(
		&a.ID, &a.ContentHash, &a.Kind, &a.OriginalFilename, &a.MimeType, &a.ByteSize,
		&a.Props.Width, &a.Props.Height, &a.Props.ColorProfile,
		&a.Props.Duration, &a.Props.FrameRate, &a.Props.Codec,
		&a.Placeholder, &a.DominantColor, &a.UploadedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// PutAsset inserts an asset keyed by content hash. Inserting a hash that
// already exists is a no-op: the existing row is returned with created=false
// and the submitted record is discarded. This is the dedup guarantee at the
// storage layer, independent of the in-process reservation index.
func (c *Catalog) PutAsset(ctx context.Context, a *Asset) (*Asset, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_asset", start, err) }()

	if a.ContentHash == "" {
		err = errors.New("asset has no content hash")
		return nil, false, err
	}
	if a.ID == "" {
		a.ID = AssetID(a.ContentHash)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, execErr := c.db.ExecContext(ctx, `
		INSERT INTO assets (id, content_hash, kind, original_filename, mime_type, byte_size,
			width, height, color_profile, duration, frame_rate, codec,
			placeholder, dominant_color, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`,
		a.ID, a.ContentHash, a.Kind, a.OriginalFilename, a.MimeType, a.ByteSize,
		a.Props.Width, a.Props.Height, a.Props.ColorProfile,
		a.Props.Duration, a.Props.FrameRate, a.Props.Codec,
		a.Placeholder, a.DominantColor, a.UploadedBy,
	)
	if execErr != nil {
		err = fmt.Errorf("insert asset: %w", execErr)
		return nil, false, err
	}

	inserted, _ := res.RowsAffected()

	existing, getErr := c.getByHash(ctx, a.ContentHash)
	if getErr != nil {
		err = getErr
		return nil, false, err
	}
	return existing, inserted > 0, nil
}

// GetAsset returns the asset with the given id, including its tags.
func (c *Catalog) GetAsset(ctx context.Context, id string) (*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_asset", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	a, scanErr := scanAsset(c.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			err = ErrNotFound
		} else {
			err = fmt.Errorf("get asset: %w", scanErr)
		}
		return nil, err
	}
	a.Tags, err = c.tagsFor(ctx, a.ID)
	return a, err
}

// GetByHash returns the asset with the given content hash, or ErrNotFound.
func (c *Catalog) GetByHash(ctx context.Context, contentHash string) (*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_by_hash", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	a, getErr := c.getByHash(ctx, contentHash)
	err = getErr
	return a, err
}

func (c *Catalog) getByHash(ctx context.Context, contentHash string) (*Asset, error) {
	a, err := scanAsset(c.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE content_hash = ?", contentHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get asset by hash: %w", err)
	}
	a.Tags, err = c.tagsFor(ctx, a.ID)
	return a, err
}

// DeleteAsset removes an asset. Variants, delivery mappings, and tag links
// cascade. The content hash is freed: re-ingesting the same bytes afterwards
// creates a fresh asset.
func (c *Catalog) DeleteAsset(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_asset", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, execErr := c.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if execErr != nil {
		err = fmt.Errorf("delete asset: %w", execErr)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// Find returns assets matching the filter, newest first. Tag constraints are
// an intersection; the free-text query matches filenames (trigram FTS for
// queries of three or more characters, LIKE otherwise) and tag names.
func (c *Catalog) Find(ctx context.Context, f Filter) ([]*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var where []string
	var args []any

	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}

	if len(f.Tags) > 0 {
		placeholders := strings.Repeat("?,", len(f.Tags)-1) + "?"
		where = append(where, fmt.Sprintf(`id IN (
			SELECT at.asset_id FROM asset_tags at
			JOIN tags t ON t.id = at.tag_id
			WHERE t.name IN (%s) COLLATE NOCASE
			GROUP BY at.asset_id
			HAVING COUNT(DISTINCT t.name) = ?
		)`, placeholders))
		for _, tag := range f.Tags {
			args = append(args, tag)
		}
		args = append(args, len(f.Tags))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		// Trigram FTS needs at least three characters; short queries fall
		// back to LIKE. Tag names always match via LIKE.
		if len(q) >= 3 {
			where = append(where, `(rowid IN (SELECT rowid FROM assets_fts WHERE assets_fts MATCH ?)
				OR id IN (SELECT at.asset_id FROM asset_tags at JOIN tags t ON t.id = at.tag_id WHERE t.name LIKE ?))`)
			args = append(args, `"`+strings.ReplaceAll(q, `"`, `""`)+`"`, "%"+q+"%")
		} else {
			where = append(where, `(original_filename LIKE ?
				OR id IN (SELECT at.asset_id FROM asset_tags at JOIN tags t ON t.id = at.tag_id WHERE t.name LIKE ?))`)
			args = append(args, "%"+q+"%", "%"+q+"%")
		}
	}

	query := "SELECT " + assetColumns + " FROM assets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, queryErr := c.db.QueryContext(ctx, query, args...)
	if queryErr != nil {
		err = fmt.Errorf("find assets: %w", queryErr)
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, scanErr := scanAsset(rows)
		if scanErr != nil {
			err = fmt.Errorf("scan asset: %w", scanErr)
			return nil, err
		}
		assets = append(assets, a)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = rowsErr
		return nil, err
	}

	for _, a := range assets {
		a.Tags, err = c.tagsFor(ctx, a.ID)
		if err != nil {
			return nil, err
		}
	}
	return assets, nil
}

// PutVariant records a variant for an existing asset, replacing a previous
// render of the same preset and format. The foreign key guarantees the asset
// row is already committed.
func (c *Catalog) PutVariant(ctx context.Context, v *Variant) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_variant", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, execErr := c.db.ExecContext(ctx, `
		INSERT INTO variants (asset_id, preset_name, format, width, height, bitrate,
			byte_size, storage_key, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, preset_name, format) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			bitrate = excluded.bitrate,
			byte_size = excluded.byte_size,
			storage_key = excluded.storage_key,
			checksum = excluded.checksum,
			generated_at = strftime('%s', 'now')
	`, v.AssetID, v.PresetName, v.Format, v.Width, v.Height, v.Bitrate,
		v.ByteSize, v.StorageKey, v.Checksum)
	if execErr != nil {
		err = fmt.Errorf("put variant: %w", execErr)
	}
	return err
}

// VariantsFor returns all variants of an asset ordered by width ascending,
// then preset and format for a stable order at equal widths.
func (c *Catalog) VariantsFor(ctx context.Context, assetID string) ([]*Variant, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("variants_for", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, queryErr := c.db.QueryContext(ctx, `
		SELECT id, asset_id, preset_name, format, width, height, bitrate,
			byte_size, storage_key, checksum, generated_at
		FROM variants WHERE asset_id = ?
		ORDER BY width ASC, preset_name, format
	`, assetID)
	if queryErr != nil {
		err = fmt.Errorf("variants for %s: %w", assetID, queryErr)
		return nil, err
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		var v Variant
		var generatedAt int64
		if scanErr := rows.Scan(&v.ID, &v.AssetID, &v.PresetName, &v.Format,
			&v.Width, &v.Height, &v.Bitrate, &v.ByteSize, &v.StorageKey,
			&v.Checksum, &generatedAt); scanErr != nil {
			err = fmt.Errorf("scan variant: %w", scanErr)
			return nil, err
		}
		v.GeneratedAt = time.Unix(generatedAt, 0)
		variants = append(variants, &v)
	}
	err = rows.Err()
	return variants, err
}

// DeleteVariant removes one variant row. Its delivery mapping is removed by
// the router's invalidate, not here.
func (c *Catalog) DeleteVariant(ctx context.Context, assetID, presetName, format string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_variant", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = c.db.ExecContext(ctx,
		"DELETE FROM variants WHERE asset_id = ? AND preset_name = ? AND format = ?",
		assetID, presetName, format)
	return err
}

// PutMapping records the delivery URL for an uploaded variant.
func (c *Catalog) PutMapping(ctx context.Context, m *Mapping) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_mapping", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, execErr := c.db.ExecContext(ctx, `
		INSERT INTO delivery_mappings (asset_id, preset_name, format, url, etag, max_age)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, preset_name, format) DO UPDATE SET
			url = excluded.url,
			etag = excluded.etag,
			max_age = excluded.max_age,
			updated_at = strftime('%s', 'now')
	`, m.AssetID, m.PresetName, m.Format, m.URL, m.ETag, m.MaxAge)
	if execErr != nil {
		err = fmt.Errorf("put mapping: %w", execErr)
	}
	return err
}

// MappingsFor returns all delivery mappings for an asset. If presetName is
// non-empty only that preset's mappings are returned.
func (c *Catalog) MappingsFor(ctx context.Context, assetID, presetName string) ([]*Mapping, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("mappings_for", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT asset_id, preset_name, format, url, etag, max_age, updated_at
		FROM delivery_mappings WHERE asset_id = ?`
	args := []any{assetID}
	if presetName != "" {
		query += " AND preset_name = ?"
		args = append(args, presetName)
	}
	query += " ORDER BY preset_name, format"

	rows, queryErr := c.db.QueryContext(ctx, query, args...)
	if queryErr != nil {
		err = fmt.Errorf("mappings for %s: %w", assetID, queryErr)
		return nil, err
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		var m Mapping
		var updatedAt int64
		if scanErr := rows.Scan(&m.AssetID, &m.PresetName, &m.Format, &m.URL,
			&m.ETag, &m.MaxAge, &updatedAt); scanErr != nil {
			err = fmt.Errorf("scan mapping: %w", scanErr)
			return nil, err
		}
		m.UpdatedAt = time.Unix(updatedAt, 0)
		mappings = append(mappings, &m)
	}
	err = rows.Err()
	return mappings, err
}

// DeleteMappings removes delivery mappings for an asset; with a preset name,
// only that preset's mappings.
func (c *Catalog) DeleteMappings(ctx context.Context, assetID, presetName string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_mappings", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if presetName == "" {
		_, err = c.db.ExecContext(ctx, "DELETE FROM delivery_mappings WHERE asset_id = ?", assetID)
	} else {
		_, err = c.db.ExecContext(ctx,
			"DELETE FROM delivery_mappings WHERE asset_id = ? AND preset_name = ?",
			assetID, presetName)
	}
	return err
}

// CalculateStats counts catalog contents.
func (c *Catalog) CalculateStats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s Stats
	err = c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assets),
			(SELECT COUNT(*) FROM assets WHERE kind = 'image'),
			(SELECT COUNT(*) FROM assets WHERE kind = 'video'),
			(SELECT COUNT(*) FROM variants),
			(SELECT COUNT(*) FROM delivery_mappings),
			(SELECT COUNT(*) FROM tags)
	`).Scan(&s.TotalAssets, &s.TotalImages, &s.TotalVideos,
		&s.TotalVariants, &s.TotalMappings, &s.TotalTags)
	if err == nil {
		metrics.CatalogAssets.WithLabelValues("image").Set(float64(s.TotalImages))
		metrics.CatalogAssets.WithLabelValues("video").Set(float64(s.TotalVideos))
		metrics.CatalogAssets.WithLabelValues("other").Set(float64(s.TotalAssets - s.TotalImages - s.TotalVideos))
	}
	return s, err
}
