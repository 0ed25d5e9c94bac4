package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/workers"
)

// Pipeline stages reported in progress events.
const (
	StageHash     = "hash"
	StageGenerate = "generate"
	StageUpload   = "upload"
)

// BatchItem is one upload in a bulk ingestion. Open is called once, on the
// worker goroutine that claims the item.
type BatchItem struct {
	Open         func() (io.ReadCloser, error)
	DeclaredMime string
	Meta         Meta
}

// Outcome reports the result of one batch item. Deduplicated means the
// content already existed; Asset is set either way on success.
type Outcome struct {
	Index        int
	Asset        *catalog.Asset
	Deduplicated bool
	Err          error
	FailureClass string
}

// Progress is a fire-and-forget status event for one item.
type Progress struct {
	Index        int
	Stage        string
	BytesHashed  int64
	VariantDone  int
	VariantTotal int
}

// IngestBatch processes items on a bounded worker pool and streams one
// Outcome per item, in completion order. One item's failure never affects
// its siblings. progress may be nil; sends to it never block, late
// consumers just miss events. The returned channel closes when every item
// has an outcome or the context is canceled.
func (o *Orchestrator) IngestBatch(ctx context.Context, items []BatchItem, progress chan<- Progress) <-chan Outcome {
	outcomes := make(chan Outcome, len(items))

	n := o.workerCount
	if n <= 0 {
		n = workers.ForMixed(0)
	}
	if n > len(items) {
		n = len(items)
	}
	logging.Debug("batch of %d items on %d workers", len(items), n)

	queue := make(chan int)
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func() {
			defer wg.Done()
			for idx := range queue {
				metrics.BatchItemsInFlight.Inc()
				outcomes <- o.runItem(ctx, idx, items[idx], progress)
				metrics.BatchItemsInFlight.Dec()
			}
		}()
	}

	go func() {
		defer close(queue)
		for i := range items {
			metrics.BatchItemsQueued.Inc()
			select {
			case queue <- i:
				metrics.BatchItemsQueued.Dec()
			case <-ctx.Done():
				metrics.BatchItemsQueued.Dec()
				// canceled before a worker claimed it
				outcomes <- Outcome{Index: i, Err: ctx.Err(), FailureClass: FailureTransient}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()
	return outcomes
}

func (o *Orchestrator) runItem(ctx context.Context, idx int, item BatchItem, progress chan<- Progress) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Index: idx, Err: err, FailureClass: FailureTransient}
	}

	var report func(Progress)
	if progress != nil {
		report = func(p Progress) {
			p.Index = idx
			select {
			case progress <- p:
			default:
			}
		}
	}

	rc, err := item.Open()
	if err != nil {
		err = fmt.Errorf("open item %d: %w", idx, err)
		return Outcome{Index: idx, Err: err, FailureClass: Classify(Transient(err))}
	}
	defer rc.Close()

	asset, deduplicated, err := o.ingest(ctx, rc, item.DeclaredMime, item.Meta, report)
	if err != nil {
		logging.Warn("batch item %d (%s) failed: %v", idx, item.Meta.Filename, err)
		return Outcome{Index: idx, Err: err, FailureClass: Classify(err)}
	}
	return Outcome{Index: idx, Asset: asset, Deduplicated: deduplicated}
}
