package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/config"
	"media-pipeline/internal/dedup"
	"media-pipeline/internal/delivery"
	"media-pipeline/internal/imagegen"
	"media-pipeline/internal/inspect"
	"media-pipeline/internal/transcode"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ScratchDir:     t.TempDir(),
		MaxUploadBytes: 10 * 1024 * 1024,
		HashTimeout:    10 * time.Second,
		InspectTimeout: 10 * time.Second,
		ImageTimeout:   60 * time.Second,
		WorkerCount:    2,
	}
}

func newTestOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *catalog.Catalog, *delivery.Router) {
	t.Helper()

	cat, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	gen, err := imagegen.New([]imagegen.Preset{
		{Name: "thumbnail", MaxWidth: 100, MaxHeight: 100, Fit: imagegen.FitCover, Quality: 75},
		{Name: "small", MaxWidth: 200, MaxHeight: 200, Fit: imagegen.FitContain, Quality: 80},
	}, []string{"jpeg"})
	if err != nil {
		t.Fatalf("imagegen: %v", err)
	}

	backend, err := delivery.NewLocalBackend(t.TempDir(), "http://cdn.test")
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	router, err := delivery.NewRouter(cat, backend)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	index := dedup.NewIndex(cat, dedup.DefaultReservationTTL)
	inspector := inspect.New(cfg.ScratchDir, false)
	return New(cfg, cat, index, inspector, gen, nil, router), cat, router
}

func pngBytes(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x) + seed, G: uint8(y), B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIngestImage(t *testing.T) {
	o, cat, router := newTestOrchestrator(t, testConfig(t))
	ctx := context.Background()

	data := pngBytes(t, 400, 300, 1)
	asset, err := o.Ingest(ctx, bytes.NewReader(data), "image/png", Meta{
		Filename:   "photo.png",
		UploadedBy: "tester",
		Tags:       []string{"vacation", "beach"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if asset.Kind != catalog.KindImage {
		t.Errorf("kind = %s, want image", asset.Kind)
	}
	if asset.Props.Width != 400 || asset.Props.Height != 300 {
		t.Errorf("dimensions = %dx%d, want 400x300", asset.Props.Width, asset.Props.Height)
	}
	if asset.ByteSize != int64(len(data)) {
		t.Errorf("byte size = %d, want %d", asset.ByteSize, len(data))
	}

	stored, err := cat.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if len(stored.Tags) != 2 {
		t.Errorf("tags = %v, want 2 entries", stored.Tags)
	}
	if stored.Placeholder == "" || stored.DominantColor == "" {
		t.Errorf("swatch not persisted: placeholder=%q dominant=%q", stored.Placeholder, stored.DominantColor)
	}

	// two presets in jpeg plus the stored original
	variants, err := cat.VariantsFor(ctx, asset.ID)
	if err != nil {
		t.Fatalf("VariantsFor: %v", err)
	}
	if len(variants) != 3 {
		t.Errorf("got %d variants, want 3", len(variants))
	}

	m, err := router.Resolve(ctx, asset.ID, "small", "jpeg")
	if err != nil {
		t.Fatalf("Resolve after ingest: %v", err)
	}
	if m.URL == "" {
		t.Error("resolved mapping has no URL")
	}
}

func TestIngestDedupIdempotent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))
	ctx := context.Background()
	data := pngBytes(t, 200, 200, 2)

	first, err := o.Ingest(ctx, bytes.NewReader(data), "image/png", Meta{Filename: "a.png"})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := o.Ingest(ctx, bytes.NewReader(data), "image/png", Meta{Filename: "b.png"})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate content produced distinct assets: %s vs %s", first.ID, second.ID)
	}
	// original metadata wins
	if second.OriginalFilename != "a.png" {
		t.Errorf("filename = %q, want the first upload's", second.OriginalFilename)
	}
}

func TestIngestDedupConcurrent(t *testing.T) {
	o, cat, _ := newTestOrchestrator(t, testConfig(t))
	ctx := context.Background()
	data := pngBytes(t, 200, 200, 3)

	const n = 4
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			a, err := o.Ingest(ctx, bytes.NewReader(data), "image/png", Meta{Filename: "c.png"})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = a.ID
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("goroutine %d got asset %s, want %s", i, ids[i], ids[0])
		}
	}

	stats, err := cat.CalculateStats(ctx)
	if err != nil {
		t.Fatalf("CalculateStats: %v", err)
	}
	if stats.TotalAssets != 1 {
		t.Errorf("TotalAssets = %d, want 1", stats.TotalAssets)
	}
}

func TestIngestOversizeRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxUploadBytes = 64
	o, _, _ := newTestOrchestrator(t, cfg)

	data := pngBytes(t, 100, 100, 4)
	_, err := o.Ingest(context.Background(), bytes.NewReader(data), "image/png", Meta{})
	if !errors.Is(err, ErrOversizeInput) {
		t.Errorf("error = %v, want ErrOversizeInput", err)
	}
	if Classify(err) != FailureValidation {
		t.Errorf("Classify = %s, want validation", Classify(err))
	}
}

func TestIngestEmptyInput(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))
	if _, err := o.Ingest(context.Background(), bytes.NewReader(nil), "image/png", Meta{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestIngestSignatureMismatchReleasesReservation(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))
	ctx := context.Background()
	data := pngBytes(t, 100, 100, 5)

	// declared type contradicts the actual bytes
	_, err := o.Ingest(ctx, bytes.NewReader(data), "video/mp4", Meta{})
	if !errors.Is(err, inspect.ErrSignatureMismatch) {
		t.Fatalf("error = %v, want ErrSignatureMismatch", err)
	}
	if Classify(err) != FailureValidation {
		t.Errorf("Classify = %s, want validation", Classify(err))
	}

	// the hash must not stay poisoned by the failed attempt
	done := make(chan error, 1)
	go func() {
		_, err := o.Ingest(ctx, bytes.NewReader(data), "image/png", Meta{Filename: "ok.png"})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("retry after failure: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("retry blocked on a leaked reservation")
	}
}

func TestIngestBatchPartialIsolation(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))

	open := func(data []byte) func() (io.ReadCloser, error) {
		return func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	items := []BatchItem{
		{Open: open(pngBytes(t, 150, 150, 6)), DeclaredMime: "image/png", Meta: Meta{Filename: "0.png"}},
		{Open: open([]byte("definitely not an image")), DeclaredMime: "image/png", Meta: Meta{Filename: "1.bin"}},
		{Open: open(pngBytes(t, 150, 150, 7)), DeclaredMime: "image/png", Meta: Meta{Filename: "2.png"}},
	}

	seen := make(map[int]Outcome, len(items))
	for out := range o.IngestBatch(context.Background(), items, nil) {
		seen[out.Index] = out
	}
	if len(seen) != len(items) {
		t.Fatalf("got %d outcomes, want %d", len(seen), len(items))
	}
	if seen[0].Err != nil || seen[2].Err != nil {
		t.Errorf("healthy items failed: %v / %v", seen[0].Err, seen[2].Err)
	}
	if seen[1].Err == nil {
		t.Error("garbage item reported success")
	}
	if seen[1].FailureClass != FailureValidation {
		t.Errorf("failure class = %s, want validation", seen[1].FailureClass)
	}
}

func TestIngestBatchReportsDedup(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))
	data := pngBytes(t, 150, 150, 8)

	open := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	items := []BatchItem{
		{Open: open, DeclaredMime: "image/png", Meta: Meta{Filename: "x.png"}},
		{Open: open, DeclaredMime: "image/png", Meta: Meta{Filename: "y.png"}},
	}

	var dedups, creations int
	for out := range o.IngestBatch(context.Background(), items, nil) {
		if out.Err != nil {
			t.Fatalf("item %d: %v", out.Index, out.Err)
		}
		if out.Deduplicated {
			dedups++
		} else {
			creations++
		}
	}
	if creations != 1 || dedups != 1 {
		t.Errorf("creations=%d dedups=%d, want 1 and 1", creations, dedups)
	}
}

func TestIngestBatchProgress(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))

	progress := make(chan Progress, 256)
	items := []BatchItem{{
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(pngBytes(t, 150, 150, 9))), nil
		},
		DeclaredMime: "image/png",
		Meta:         Meta{Filename: "p.png"},
	}}

	for out := range o.IngestBatch(context.Background(), items, progress) {
		if out.Err != nil {
			t.Fatalf("ingest: %v", out.Err)
		}
	}
	close(progress)

	stages := make(map[string]bool)
	for p := range progress {
		if p.Index != 0 {
			t.Errorf("progress for unknown index %d", p.Index)
		}
		stages[p.Stage] = true
	}
	for _, stage := range []string{StageHash, StageGenerate, StageUpload} {
		if !stages[stage] {
			t.Errorf("no progress event for stage %s", stage)
		}
	}
}

func TestIngestBatchCancellation(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []BatchItem{{
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(pngBytes(t, 150, 150, 10))), nil
		},
		DeclaredMime: "image/png",
	}}

	count := 0
	for out := range o.IngestBatch(ctx, items, nil) {
		count++
		if out.Err == nil {
			t.Error("canceled item reported success")
		}
	}
	if count == 0 {
		t.Error("no outcome for canceled item")
	}
}

// stalledReader blocks in Read until released, like an upload stream that
// went quiet without closing.
type stalledReader struct {
	unblock chan struct{}
}

func (r *stalledReader) Read([]byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}

func TestIngestHashTimeoutStalledStream(t *testing.T) {
	cfg := testConfig(t)
	cfg.HashTimeout = 100 * time.Millisecond
	o, _, _ := newTestOrchestrator(t, cfg)

	r := &stalledReader{unblock: make(chan struct{})}
	t.Cleanup(func() { close(r.unblock) })

	done := make(chan error, 1)
	go func() {
		_, err := o.Ingest(context.Background(), r, "image/png", Meta{Filename: "stuck.png"})
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Ingest succeeded on a stream that never produced data")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
		if got := Classify(err); got != FailureTransient {
			t.Errorf("Classify(err) = %q, want %q", got, FailureTransient)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ingest still blocked long after the hash timeout")
	}
}

func TestDeleteRemovesResolution(t *testing.T) {
	o, cat, router := newTestOrchestrator(t, testConfig(t))
	ctx := context.Background()

	asset, err := o.Ingest(ctx, bytes.NewReader(pngBytes(t, 300, 200, 7)), "image/png", Meta{Filename: "gone.png"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	// warm the resolve cache so deletion must purge it too
	if _, err := router.Resolve(ctx, asset.ID, "thumbnail", "jpeg"); err != nil {
		t.Fatalf("Resolve before delete: %v", err)
	}

	if err := o.Delete(ctx, asset.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := router.Resolve(ctx, asset.ID, "thumbnail", "jpeg"); !errors.Is(err, delivery.ErrNotFound) {
		t.Errorf("Resolve after delete = %v, want delivery.ErrNotFound", err)
	}
	if _, err := cat.GetAsset(ctx, asset.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("GetAsset after delete = %v, want catalog.ErrNotFound", err)
	}
	if variants, err := cat.VariantsFor(ctx, asset.ID); err != nil || len(variants) != 0 {
		t.Errorf("variants after delete = %d (%v), want none", len(variants), err)
	}
}

func TestVideoStorageKeysUseTranscodeVersion(t *testing.T) {
	asset := &catalog.Asset{ID: "a1", ContentHash: "feedface"}
	vd := videoExtra(asset, "poster", "jpeg", []byte("img"))
	want := "assets/fe/feedface/" + transcode.Version + "/poster.jpeg"
	if vd.variant.StorageKey != want {
		t.Errorf("storage key = %s, want %s", vd.variant.StorageKey, want)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"oversize", fmt.Errorf("x: %w", ErrOversizeInput), FailureValidation},
		{"mismatch", inspect.ErrSignatureMismatch, FailureValidation},
		{"unsupported", inspect.ErrUnsupportedKind, FailureValidation},
		{"transient", Transient(errors.New("backend down")), FailureTransient},
		{"deadline", context.DeadlineExceeded, FailureTransient},
		{"other", errors.New("boom"), FailureFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
