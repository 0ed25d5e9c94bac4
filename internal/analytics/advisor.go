package analytics

import (
	"context"
	"fmt"
	"time"

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/metrics"
)

// Policy holds the advisor thresholds. All fields have working defaults;
// deployments tune them through config.
type Policy struct {
	// UnusedAfter marks variants with no serves in this window.
	UnusedAfter time.Duration
	// RecompressRatio flags a format whose mean served size exceeds a
	// sibling format of the same preset by this factor.
	RecompressRatio float64
	// OversizeFactor flags originals at least this many times larger than
	// the largest variant anyone actually requested.
	OversizeFactor float64
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		UnusedAfter:     90 * 24 * time.Hour,
		RecompressRatio: 1.5,
		OversizeFactor:  4.0,
	}
}

// Advisor derives optimization recommendations from serve history and the
// catalog. It only ever reads; acting on a recommendation is an operator
// decision.
type Advisor struct {
	cat    *catalog.Catalog
	store  *Store
	policy Policy
}

// NewAdvisor builds an Advisor with the given thresholds.
func NewAdvisor(cat *catalog.Catalog, store *Store, policy Policy) *Advisor {
	if policy.UnusedAfter <= 0 {
		policy.UnusedAfter = DefaultPolicy().UnusedAfter
	}
	if policy.RecompressRatio <= 1 {
		policy.RecompressRatio = DefaultPolicy().RecompressRatio
	}
	if policy.OversizeFactor <= 1 {
		policy.OversizeFactor = DefaultPolicy().OversizeFactor
	}
	return &Advisor{cat: cat, store: store, policy: policy}
}

// Recommend analyzes one asset, or the whole catalog when assetID is empty.
func (a *Advisor) Recommend(ctx context.Context, assetID string) ([]Recommendation, error) {
	metrics.RecommendationRuns.Inc()

	var assets []*catalog.Asset
	if assetID != "" {
		asset, err := a.cat.GetAsset(ctx, assetID)
		if err != nil {
			return nil, err
		}
		assets = []*catalog.Asset{asset}
	} else {
		var err error
		assets, err = a.cat.Find(ctx, catalog.Filter{})
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	var recs []Recommendation
	for _, asset := range assets {
		r, err := a.analyzeAsset(ctx, asset, now)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r...)
	}
	return recs, nil
}

func (a *Advisor) analyzeAsset(ctx context.Context, asset *catalog.Asset, now time.Time) ([]Recommendation, error) {
	variants, err := a.cat.VariantsFor(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, nil
	}
	usage, err := a.store.UsageFor(ctx, asset.ID)
	if err != nil {
		return nil, err
	}

	usageBy := make(map[string]VariantUsage, len(usage))
	for _, u := range usage {
		usageBy[u.PresetName+"/"+u.Format] = u
	}

	cutoff := now.Add(-a.policy.UnusedAfter)
	var recs []Recommendation

	// unused variants: never served, or silent for the whole window
	for _, v := range variants {
		if v.GeneratedAt.After(cutoff) {
			continue // too young to judge
		}
		u, served := usageBy[v.PresetName+"/"+v.Format]
		if served && u.LastServed.After(cutoff) {
			continue
		}
		evidence := "never served"
		if served {
			evidence = fmt.Sprintf("last served %s", u.LastServed.Format(time.RFC3339))
		}
		recs = append(recs, Recommendation{
			AssetID:     asset.ID,
			PresetName:  v.PresetName,
			Kind:        RecUnusedVariant,
			Evidence:    fmt.Sprintf("%s/%s: %s", v.PresetName, v.Format, evidence),
			GeneratedAt: now,
		})
	}

	// recompress candidates: compare served formats within one preset
	byPreset := make(map[string][]VariantUsage)
	for _, u := range usage {
		if u.Serves > 0 {
			byPreset[u.PresetName] = append(byPreset[u.PresetName], u)
		}
	}
	for preset, us := range byPreset {
		if len(us) < 2 {
			continue
		}
		lightest := us[0]
		for _, u := range us[1:] {
			if u.MeanBytes < lightest.MeanBytes {
				lightest = u
			}
		}
		for _, u := range us {
			if u.Format == lightest.Format {
				continue
			}
			if u.MeanBytes > lightest.MeanBytes*a.policy.RecompressRatio {
				recs = append(recs, Recommendation{
					AssetID:    asset.ID,
					PresetName: preset,
					Kind:       RecRecompressCandidate,
					Evidence: fmt.Sprintf("%s averages %.0f bytes/serve vs %.0f for %s",
						u.Format, u.MeanBytes, lightest.MeanBytes, lightest.Format),
					GeneratedAt: now,
				})
			}
		}
	}

	// oversized original: compare against the largest variant in demand
	var largestServed *catalog.Variant
	for _, v := range variants {
		u, served := usageBy[v.PresetName+"/"+v.Format]
		if !served || u.Serves == 0 {
			continue
		}
		if largestServed == nil || v.ByteSize > largestServed.ByteSize {
			largestServed = v
		}
	}
	if largestServed != nil && largestServed.ByteSize > 0 &&
		float64(asset.ByteSize) >= a.policy.OversizeFactor*float64(largestServed.ByteSize) {
		recs = append(recs, Recommendation{
			AssetID: asset.ID,
			Kind:    RecOversizedOriginal,
			Evidence: fmt.Sprintf("original is %d bytes, largest served variant (%s/%s) is %d",
				asset.ByteSize, largestServed.PresetName, largestServed.Format, largestServed.ByteSize),
			GeneratedAt: now,
		})
	}

	return recs, nil
}
