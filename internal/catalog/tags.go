package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tag attaches tags to an asset, creating tag rows as needed. Adding a tag
// the asset already carries is a no-op.
func (c *Catalog) Tag(ctx context.Context, assetID string, tags ...string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("tag", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	for _, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" {
			err = errors.New("tag name cannot be empty")
			return err
		}

		var tagID int64
		scanErr := c.db.QueryRowContext(ctx,
			"SELECT id FROM tags WHERE name = ? COLLATE NOCASE", name).Scan(&tagID)
		if scanErr != nil {
			res, createErr := c.db.ExecContext(ctx, "INSERT INTO tags (name) VALUES (?)", name)
			if createErr != nil {
				err = fmt.Errorf("create tag %q: %w", name, createErr)
				return err
			}
			tagID, _ = res.LastInsertId()
		}

		if _, linkErr := c.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO asset_tags (asset_id, tag_id) VALUES (?, ?)",
			assetID, tagID); linkErr != nil {
			err = fmt.Errorf("link tag %q: %w", name, linkErr)
			return err
		}
	}
	return nil
}

// Untag removes a tag from an asset. The tag row itself survives for other
// assets.
func (c *Catalog) Untag(ctx context.Context, assetID, tagName string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("untag", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = c.db.ExecContext(ctx, `
		DELETE FROM asset_tags
		WHERE asset_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ? COLLATE NOCASE)
	`, assetID, tagName)
	return err
}

// TagsFor returns the tags of an asset sorted by name.
func (c *Catalog) TagsFor(ctx context.Context, assetID string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("tags_for", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tags, tagsErr := c.tagsFor(ctx, assetID)
	err = tagsErr
	return tags, err
}

func (c *Catalog) tagsFor(ctx context.Context, assetID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN asset_tags at ON at.tag_id = t.id
		WHERE at.asset_id = ?
		ORDER BY t.name COLLATE NOCASE
	`, assetID)
	if err != nil {
		return nil, fmt.Errorf("tags for %s: %w", assetID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}
