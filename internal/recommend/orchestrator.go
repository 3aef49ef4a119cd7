package recommend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
	"github.com/TheWicklowWolf/eBookBuddy/internal/ratelimit"
)

// ScrapeFunc runs the full navigation/extraction flow for one seed title.
// It never fails: internal errors degrade to zero records.
type ScrapeFunc func(ctx context.Context, seed string) []models.Book

// Batch size bounds: the number of seeds drawn per pass follows the
// configured thread limit only when it sits in [minBatchSize, maxBatchSize],
// otherwise it falls back to the default.
const (
	minBatchSize     = 4
	maxBatchSize     = 7
	defaultBatchSize = 4
)

// Orchestrator coordinates search passes: it samples seeds, fans scrape
// tasks out over a bounded worker pool and drains their results through the
// aggregator in completion order.
type Orchestrator struct {
	session     *Session
	agg         *Aggregator
	scrape      ScrapeFunc
	sink        Sink
	threadLimit int
	limiter     *ratelimit.Limiter
	logger      *slog.Logger

	// held before releasing an exhausted-session request, so a caller that
	// immediately retries doesn't spin.
	exhaustedHold time.Duration
}

func NewOrchestrator(session *Session, agg *Aggregator, scrape ScrapeFunc, sink Sink, threadLimit int, limiter *ratelimit.Limiter, logger *slog.Logger) *Orchestrator {
	if threadLimit < 1 {
		threadLimit = 1
	}
	return &Orchestrator{
		session:       session,
		agg:           agg,
		scrape:        scrape,
		sink:          sink,
		threadLimit:   threadLimit,
		limiter:       limiter,
		logger:        logger.With("component", "orchestrator"),
		exhaustedHold: 2 * time.Second,
	}
}

// Start begins a new search session over the selected library items. The
// pass itself runs on its own goroutine so the caller never blocks.
func (o *Orchestrator) Start(ctx context.Context, selected []string) {
	o.sink.Emit(EventClear, nil)

	if err := o.session.StartSelection(selected); err != nil {
		o.logger.Error("startup error", "error", err)
		o.sink.Emit(EventSidebarUpdate, models.SidebarUpdate{
			Status:  "Error",
			Code:    err.Error(),
			Data:    o.session.Library(),
			Running: o.session.Running(),
		})
		return
	}

	go o.RunPass(ctx)
}

// RunPass executes one search pass. A stopped session is a no-op; a pass
// already in progress is rejected with an informational toast, never an
// error; an exhausted session re-notifies and briefly holds.
func (o *Orchestrator) RunPass(ctx context.Context) {
	if o.session.Stopped() {
		if o.session.InProgress() {
			o.notifyInProgress()
		}
		return
	}
	if !o.session.TryBegin() {
		o.notifyInProgress()
		return
	}
	defer func() {
		o.session.EndPass()
		o.logger.Info("finished searching")
	}()

	if o.session.Exhausted() {
		o.notifyExhausted()
		time.Sleep(o.exhaustedHold)
		return
	}

	o.runActivePass(ctx)
}

func (o *Orchestrator) runActivePass(ctx context.Context) {
	passID := uuid.New().String()
	logger := o.logger.With("pass_id", passID)

	logger.Info("searching for new books")
	o.sink.Emit(EventToast, models.Toast{Title: "Searching for new books", Message: "Please be patient...."})

	// Assume exhaustion until a genuinely new record clears it.
	o.session.SetExhausted(true)

	batch := o.threadLimit
	if batch < minBatchSize || batch > maxBatchSize {
		batch = defaultBatchSize
	}
	seeds := o.session.SampleSeeds(batch)
	logger.Info("sampled seeds", "count", len(seeds), "workers", o.threadLimit)

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		seed  string
		books []models.Book
	}

	results := make(chan result)
	sem := make(chan struct{}, o.threadLimit)
	var wg sync.WaitGroup

	for _, seed := range seeds {
		wg.Add(1)
		go func(seed string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-tctx.Done():
				return
			}
			defer func() { <-sem }()

			if o.limiter != nil {
				if err := o.limiter.Wait(tctx); err != nil {
					return
				}
			}
			if o.session.Stopped() {
				return
			}

			books := o.scrape(tctx, seed)
			select {
			case results <- result{seed: seed, books: books}:
			case <-tctx.Done():
			}
		}(seed)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	newBooks := 0
	for res := range results {
		for _, book := range res.books {
			if o.session.Stopped() {
				cancel()
				break
			}
			if o.agg.Admit(book) {
				newBooks++
			}
		}
	}

	if newBooks > 0 {
		logger.Info("found new suggestions not already in library", "count", newBooks)
	}

	if o.session.Exhausted() {
		o.notifyExhausted()
	}
}

func (o *Orchestrator) notifyInProgress() {
	o.logger.Info("searching already in progress")
	o.sink.Emit(EventToast, models.Toast{Title: "Search in progress", Message: "It's just slow...."})
}

func (o *Orchestrator) notifyExhausted() {
	o.logger.Info("search exhausted, try selecting more books from the existing library")
	o.sink.Emit(EventToast, models.Toast{Title: "Search Exhausted", Message: "Try selecting more books from existing Readarr library"})
}
