package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
)

// DefaultReservationTTL bounds how long a reservation can sit unfinalized
// before another ingestion may reclaim it. A crashed worker must not poison
// its content hash forever.
const DefaultReservationTTL = 15 * time.Minute

// Index is the content-addressed dedup index. It answers the one question
// the orchestrator asks before doing any work: does an asset with these
// bytes already exist, and if not, am I the one ingestion allowed to create
// it?
//
// The index is the pipeline's only piece of shared mutable state. All
// coordination happens inside LookupOrReserve; callers never inspect the
// reservation table directly.
type Index struct {
	cat *catalog.Catalog
	ttl time.Duration

	mu       sync.Mutex
	inflight map[string]*inflight
}

type inflight struct {
	token    string
	deadline time.Time
	done     chan struct{}
}

// Reservation is a transactional claim on a content hash. Exactly one of
// Finalize or Release must be called; both are idempotent afterwards.
type Reservation struct {
	ContentHash string
	Token       string

	idx      *Index
	consumed bool
	mu       sync.Mutex
}

// NewIndex creates an Index over the given catalog. A ttl of 0 uses
// DefaultReservationTTL.
func NewIndex(cat *catalog.Catalog, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Index{
		cat:      cat,
		ttl:      ttl,
		inflight: make(map[string]*inflight),
	}
}

// LookupOrReserve resolves a content hash to either an existing asset or a
// fresh reservation. When another ingestion already holds a live reservation
// for the hash, the call blocks until that ingestion finalizes or releases,
// then re-checks the catalog, so concurrent uploads of identical bytes
// converge on a single asset with no duplicate processing.
func (ix *Index) LookupOrReserve(ctx context.Context, contentHash string) (*catalog.Asset, *Reservation, error) {
	if contentHash == "" {
		return nil, nil, fmt.Errorf("dedup: empty content hash")
	}

	for {
		asset, err := ix.cat.GetByHash(ctx, contentHash)
		if err == nil {
			metrics.DedupHits.Inc()
			return asset, nil, nil
		}
		if err != catalog.ErrNotFound {
			return nil, nil, fmt.Errorf("dedup lookup: %w", err)
		}

		ix.mu.Lock()
		if holder, ok := ix.inflight[contentHash]; ok {
			if time.Now().Before(holder.deadline) {
				done := holder.done
				ix.mu.Unlock()

				logging.Debug("dedup: waiting on in-flight ingestion of %s", contentHash)
				select {
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				case <-done:
					continue // holder finished; re-check the catalog
				}
			}
			// Stale claim from a worker that never finalized. Reclaim it.
			logging.Warn("dedup: reclaiming expired reservation for %s (token %s)", contentHash, holder.token)
			close(holder.done)
			delete(ix.inflight, contentHash)
			metrics.DedupReservationsActive.Dec()
		}

		res := &inflight{
			token:    uuid.NewString(),
			deadline: time.Now().Add(ix.ttl),
			done:     make(chan struct{}),
		}
		ix.inflight[contentHash] = res
		metrics.DedupReservationsActive.Inc()
		ix.mu.Unlock()

		return nil, &Reservation{
			ContentHash: contentHash,
			Token:       res.token,
			idx:         ix,
		}, nil
	}
}

// Finalize consumes the reservation after the asset row is committed,
// waking any ingestion blocked on the same hash.
func (r *Reservation) Finalize() {
	r.consume("finalize")
}

// Release consumes the reservation after a failed ingestion so a retry (or
// a concurrent duplicate) can claim the hash immediately.
func (r *Reservation) Release() {
	r.consume("release")
}

func (r *Reservation) consume(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return
	}
	r.consumed = true

	r.idx.mu.Lock()
	defer r.idx.mu.Unlock()

	holder, ok := r.idx.inflight[r.ContentHash]
	if !ok || holder.token != r.Token {
		// Expired and reclaimed by someone else; nothing left to do.
		logging.Debug("dedup: %s of superseded reservation for %s", op, r.ContentHash)
		return
	}
	close(holder.done)
	delete(r.idx.inflight, r.ContentHash)
	metrics.DedupReservationsActive.Dec()
}

// ActiveReservations reports how many hashes are currently claimed.
func (ix *Index) ActiveReservations() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.inflight)
}
