package analytics

import (
	"context"
	"sync"
	"time"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
)

// Publisher fans serve events out to external consumers. Implementations
// must not block for long; the drainer calls them inline.
type Publisher interface {
	PublishServe(e ServeEvent) error
}

const defaultBuffer = 1024

// Recorder accepts serve events from the delivery path without ever
// blocking it. Events land on a buffered channel; a background drainer
// persists them and optionally republishes. When the buffer is full the
// event is dropped and counted.
type Recorder struct {
	store  *Store
	pub    Publisher
	events chan ServeEvent

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder starts the drain goroutine. pub may be nil.
func NewRecorder(store *Store, pub Publisher) *Recorder {
	r := &Recorder{
		store:  store,
		pub:    pub,
		events: make(chan ServeEvent, defaultBuffer),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues an event. It never blocks: a full buffer drops the event.
func (r *Recorder) Record(e ServeEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case r.events <- e:
	default:
		metrics.ServeEventsDropped.Inc()
	}
}

// Close stops accepting events and flushes whatever is buffered.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
		<-r.done
	})
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := r.store.Append(ctx, e); err != nil {
			cancel()
			logging.Warn("failed to persist serve event for %s: %v", e.AssetID, err)
			metrics.ServeEventsDropped.Inc()
			continue
		}
		cancel()
		metrics.ServeEventsRecorded.Inc()

		if r.pub != nil {
			if err := r.pub.PublishServe(e); err != nil {
				logging.Debug("serve event publish failed: %v", err)
			}
		}
	}
}
