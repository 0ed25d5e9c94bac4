package dedup

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-pipeline/internal/catalog"
)

func newTestIndex(t *testing.T, ttl time.Duration) (*Index, *catalog.Catalog) {
	t.Helper()

	cat, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	return NewIndex(cat, ttl), cat
}

func TestLookupOrReserveNovelHash(t *testing.T) {
	ix, _ := newTestIndex(t, 0)

	asset, res, err := ix.LookupOrReserve(context.Background(), "h1")
	if err != nil {
		t.Fatalf("LookupOrReserve() error: %v", err)
	}
	if asset != nil {
		t.Errorf("got asset %v for novel hash", asset)
	}
	if res == nil {
		t.Fatal("no reservation for novel hash")
	}
	if ix.ActiveReservations() != 1 {
		t.Errorf("ActiveReservations() = %d, want 1", ix.ActiveReservations())
	}

	res.Release()
	if ix.ActiveReservations() != 0 {
		t.Errorf("ActiveReservations() after release = %d, want 0", ix.ActiveReservations())
	}
}

func TestLookupReturnsExistingAsset(t *testing.T) {
	ix, cat := newTestIndex(t, 0)
	ctx := context.Background()

	put, _, err := cat.PutAsset(ctx, &catalog.Asset{
		ContentHash: "h1", Kind: catalog.KindImage,
		OriginalFilename: "a.jpg", MimeType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("PutAsset() error: %v", err)
	}

	asset, res, err := ix.LookupOrReserve(ctx, "h1")
	if err != nil {
		t.Fatalf("LookupOrReserve() error: %v", err)
	}
	if res != nil {
		t.Error("got a reservation for an existing asset")
	}
	if asset == nil || asset.ID != put.ID {
		t.Errorf("asset = %v, want id %s", asset, put.ID)
	}
}

func TestConcurrentReservationsConverge(t *testing.T) {
	ix, cat := newTestIndex(t, 0)
	ctx := context.Background()

	const goroutines = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ids       = map[string]bool{}
		creations int
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			asset, res, err := ix.LookupOrReserve(ctx, "h1")
			if err != nil {
				t.Errorf("LookupOrReserve() error: %v", err)
				return
			}
			if res != nil {
				// We won the race: commit the asset, then finalize.
				created, _, err := cat.PutAsset(ctx, &catalog.Asset{
					ContentHash: "h1", Kind: catalog.KindImage,
					OriginalFilename: "a.jpg", MimeType: "image/jpeg",
				})
				if err != nil {
					t.Errorf("PutAsset() error: %v", err)
					res.Release()
					return
				}
				res.Finalize()
				mu.Lock()
				creations++
				ids[created.ID] = true
				mu.Unlock()
				return
			}
			mu.Lock()
			ids[asset.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if creations != 1 {
		t.Errorf("%d goroutines created the asset, want exactly 1", creations)
	}
	if len(ids) != 1 {
		t.Errorf("callers observed %d distinct asset ids, want 1", len(ids))
	}
	if ix.ActiveReservations() != 0 {
		t.Errorf("ActiveReservations() = %d after convergence", ix.ActiveReservations())
	}
}

func TestReleaseUnblocksWaiter(t *testing.T) {
	ix, _ := newTestIndex(t, 0)
	ctx := context.Background()

	_, first, err := ix.LookupOrReserve(ctx, "h1")
	if err != nil || first == nil {
		t.Fatalf("first LookupOrReserve() = %v, %v", first, err)
	}

	got := make(chan *Reservation, 1)
	go func() {
		_, res, err := ix.LookupOrReserve(ctx, "h1")
		if err != nil {
			t.Errorf("second LookupOrReserve() error: %v", err)
		}
		got <- res
	}()

	// The second caller must be blocked while the first holds the claim.
	select {
	case <-got:
		t.Fatal("second caller acquired while first reservation was live")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case res := <-got:
		if res == nil {
			t.Fatal("second caller got no reservation after release")
		}
		res.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second caller still blocked after release")
	}
}

func TestExpiredReservationReclaimed(t *testing.T) {
	ix, _ := newTestIndex(t, 10*time.Millisecond)
	ctx := context.Background()

	_, stale, err := ix.LookupOrReserve(ctx, "h1")
	if err != nil || stale == nil {
		t.Fatalf("LookupOrReserve() = %v, %v", stale, err)
	}

	time.Sleep(20 * time.Millisecond)

	// The stale claim is past its deadline; a new caller takes over.
	_, fresh, err := ix.LookupOrReserve(ctx, "h1")
	if err != nil {
		t.Fatalf("LookupOrReserve() after expiry error: %v", err)
	}
	if fresh == nil {
		t.Fatal("expired reservation was not reclaimed")
	}

	// The superseded holder's release must not disturb the new claim.
	stale.Release()
	if ix.ActiveReservations() != 1 {
		t.Errorf("ActiveReservations() = %d, want 1 (fresh claim)", ix.ActiveReservations())
	}
	fresh.Release()
}

func TestCancelledWaiter(t *testing.T) {
	ix, _ := newTestIndex(t, 0)

	_, res, err := ix.LookupOrReserve(context.Background(), "h1")
	if err != nil || res == nil {
		t.Fatalf("LookupOrReserve() = %v, %v", res, err)
	}
	defer res.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err = ix.LookupOrReserve(ctx, "h1")
	if err == nil {
		t.Fatal("cancelled waiter returned without error")
	}
}

func TestSum(t *testing.T) {
	data := bytes.Repeat([]byte("media"), 200_000) // spans multiple chunks

	var lastReported int64
	digest, n, err := Sum(bytes.NewReader(data), func(b int64) { lastReported = b })
	if err != nil {
		t.Fatalf("Sum() error: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("Sum() counted %d bytes, want %d", n, len(data))
	}
	if lastReported != n {
		t.Errorf("final progress = %d, want %d", lastReported, n)
	}
	if digest != SumBytes(data) {
		t.Errorf("streaming digest %s != buffered digest %s", digest, SumBytes(data))
	}

	again, _, err := Sum(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Sum() second pass error: %v", err)
	}
	if again != digest {
		t.Errorf("digest not deterministic: %s != %s", again, digest)
	}
}
