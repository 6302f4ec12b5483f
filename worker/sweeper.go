package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/docstore"
)

// sweepTimeout bounds one sweep pass.
const sweepTimeout = 30 * time.Second

// Sweeper periodically enqueues PENDING documents that are not already on
// the extraction queue, so documents created outside the ingest path (or
// orphaned by a crash) still get processed.
type Sweeper struct {
	cache *cache.Store
	docs  docstore.Store
	cron  *cron.Cron
	log   *slog.Logger
}

// NewSweeper schedules sweeps per spec (a robfig/cron expression such as
// "@every 1m"). The schedule is registered but not started.
func NewSweeper(store *cache.Store, docs docstore.Store, spec string) (*Sweeper, error) {
	s := &Sweeper{
		cache: store,
		docs:  docs,
		cron:  cron.New(),
		log:   slog.Default().With("component", "sweeper"),
	}
	if _, err := s.cron.AddFunc(spec, s.sweepOnce); err != nil {
		return nil, fmt.Errorf("worker: invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	n, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("sweep enqueued pending documents", "count", n)
	}
}

// Sweep enqueues every PENDING document that is not already queued and
// returns how many envelopes it pushed. The dedup only sees envelopes still
// sitting in the queue: a document popped and in flight at sweep time can be
// re-enqueued. Delivery is at-least-once; processing is idempotent, so the
// duplicate run converges on the same terminal state.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.docs.QueryPending(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("worker: querying pending documents: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	queued, err := s.cache.PeekQueue(cache.QueueExtraction, 0)
	if err != nil {
		return 0, fmt.Errorf("worker: peeking extraction queue: %w", err)
	}
	inFlight := make(map[string]bool, len(queued))
	for _, item := range queued {
		var env Envelope
		if err := json.Unmarshal(item, &env); err == nil {
			inFlight[env.DocID] = true
		}
	}

	enqueued := 0
	for _, doc := range pending {
		if inFlight[doc.DocID.String()] {
			continue
		}
		if err := Enqueue(s.cache, doc.DocID); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}
