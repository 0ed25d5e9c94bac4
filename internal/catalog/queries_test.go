package catalog

import (
	"context"
	"testing"
)

func seedSearchFixtures(t *testing.T, c *Catalog) (beach, city, clip *Asset) {
	t.Helper()
	ctx := context.Background()

	var err error
	beach, _, err = c.PutAsset(ctx, testAsset("h1", "beach-sunset.jpg", KindImage))
	if err != nil {
		t.Fatalf("PutAsset() error: %v", err)
	}
	city, _, err = c.PutAsset(ctx, testAsset("h2", "city-night.jpg", KindImage))
	if err != nil {
		t.Fatalf("PutAsset() error: %v", err)
	}
	clip, _, err = c.PutAsset(ctx, testAsset("h3", "drone-clip.mp4", KindVideo))
	if err != nil {
		t.Fatalf("PutAsset() error: %v", err)
	}

	if err := c.Tag(ctx, beach.ID, "travel", "beach"); err != nil {
		t.Fatalf("Tag() error: %v", err)
	}
	if err := c.Tag(ctx, city.ID, "travel", "night"); err != nil {
		t.Fatalf("Tag() error: %v", err)
	}
	if err := c.Tag(ctx, clip.ID, "travel", "beach"); err != nil {
		t.Fatalf("Tag() error: %v", err)
	}
	return beach, city, clip
}

func findIDs(t *testing.T, c *Catalog, f Filter) map[string]bool {
	t.Helper()
	assets, err := c.Find(context.Background(), f)
	if err != nil {
		t.Fatalf("Find(%+v) error: %v", f, err)
	}
	ids := make(map[string]bool, len(assets))
	for _, a := range assets {
		ids[a.ID] = true
	}
	return ids
}

func TestFindByKind(t *testing.T) {
	c := newTestCatalog(t)
	beach, city, clip := seedSearchFixtures(t, c)

	ids := findIDs(t, c, Filter{Kind: KindImage})
	if !ids[beach.ID] || !ids[city.ID] || ids[clip.ID] {
		t.Errorf("Find(kind=image) = %v", ids)
	}
}

func TestFindByTagIntersection(t *testing.T) {
	c := newTestCatalog(t)
	beach, city, clip := seedSearchFixtures(t, c)

	// travel AND beach: the city shot carries travel but not beach.
	ids := findIDs(t, c, Filter{Tags: []string{"travel", "beach"}})
	if !ids[beach.ID] || !ids[clip.ID] || ids[city.ID] {
		t.Errorf("Find(tags=travel+beach) = %v", ids)
	}

	// Case-insensitive tag matching.
	ids = findIDs(t, c, Filter{Tags: []string{"TRAVEL", "Beach"}})
	if !ids[beach.ID] || !ids[clip.ID] {
		t.Errorf("Find(tags case-insensitive) = %v", ids)
	}
}

func TestFindByFreeText(t *testing.T) {
	c := newTestCatalog(t)
	beach, city, clip := seedSearchFixtures(t, c)

	// Filename substring via FTS.
	ids := findIDs(t, c, Filter{Query: "sunset"})
	if !ids[beach.ID] || ids[city.ID] {
		t.Errorf("Find(query=sunset) = %v", ids)
	}

	// Tag-name match reaches assets whose filename does not contain the term.
	ids = findIDs(t, c, Filter{Query: "night"})
	if !ids[city.ID] {
		t.Errorf("Find(query=night) missed tag match: %v", ids)
	}

	// Short query falls back to LIKE.
	ids = findIDs(t, c, Filter{Query: "dr"})
	if !ids[clip.ID] || ids[beach.ID] {
		t.Errorf("Find(query=dr) = %v", ids)
	}
}

func TestFindCombinedFilters(t *testing.T) {
	c := newTestCatalog(t)
	beach, _, clip := seedSearchFixtures(t, c)

	ids := findIDs(t, c, Filter{Kind: KindVideo, Tags: []string{"beach"}})
	if !ids[clip.ID] || ids[beach.ID] {
		t.Errorf("Find(kind=video, tag=beach) = %v", ids)
	}
}

func TestFindLimit(t *testing.T) {
	c := newTestCatalog(t)
	seedSearchFixtures(t, c)

	assets, err := c.Find(context.Background(), Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(assets) != 2 {
		t.Errorf("Find(limit=2) returned %d assets", len(assets))
	}
}

func TestUntag(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	beach, _, _ := seedSearchFixtures(t, c)

	if err := c.Untag(ctx, beach.ID, "beach"); err != nil {
		t.Fatalf("Untag() error: %v", err)
	}

	tags, err := c.TagsFor(ctx, beach.ID)
	if err != nil {
		t.Fatalf("TagsFor() error: %v", err)
	}
	if len(tags) != 1 || tags[0] != "travel" {
		t.Errorf("tags after Untag = %v, want [travel]", tags)
	}
}

func TestMappingsForPresetFilter(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	a, _, err := c.PutAsset(ctx, testAsset("h1", "a.jpg", KindImage))
	if err != nil {
		t.Fatalf("PutAsset() error: %v", err)
	}

	for _, m := range []Mapping{
		{AssetID: a.ID, PresetName: "thumbnail", Format: "webp", URL: "u1"},
		{AssetID: a.ID, PresetName: "thumbnail", Format: "jpeg", URL: "u2"},
		{AssetID: a.ID, PresetName: "hero", Format: "webp", URL: "u3"},
	} {
		m := m
		if err := c.PutMapping(ctx, &m); err != nil {
			t.Fatalf("PutMapping() error: %v", err)
		}
	}

	all, err := c.MappingsFor(ctx, a.ID, "")
	if err != nil {
		t.Fatalf("MappingsFor() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d mappings, want 3", len(all))
	}

	thumbs, err := c.MappingsFor(ctx, a.ID, "thumbnail")
	if err != nil {
		t.Fatalf("MappingsFor(thumbnail) error: %v", err)
	}
	if len(thumbs) != 2 {
		t.Errorf("got %d thumbnail mappings, want 2", len(thumbs))
	}

	if err := c.DeleteMappings(ctx, a.ID, "thumbnail"); err != nil {
		t.Fatalf("DeleteMappings() error: %v", err)
	}
	rest, err := c.MappingsFor(ctx, a.ID, "")
	if err != nil {
		t.Fatalf("MappingsFor() error: %v", err)
	}
	if len(rest) != 1 || rest[0].PresetName != "hero" {
		t.Errorf("mappings after preset delete = %+v", rest)
	}
}
