package recommend

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

func newTestOrchestrator(t *testing.T, scrape ScrapeFunc, sink Sink, threadLimit int) (*Orchestrator, *Session) {
	t.Helper()
	session := NewSession()
	agg := NewAggregator(session, sink, slog.Default())
	o := NewOrchestrator(session, agg, scrape, sink, threadLimit, nil, slog.Default())
	o.exhaustedHold = 0
	return o, session
}

func libraryOf(names ...string) []models.LibraryItem {
	items := make([]models.LibraryItem, 0, len(names))
	for _, name := range names {
		items = append(items, models.LibraryItem{Name: name})
	}
	return items
}

func TestRunPassOnStoppedSessionIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	scraped := false
	o, _ := newTestOrchestrator(t, func(ctx context.Context, seed string) []models.Book {
		scraped = true
		return nil
	}, sink, 1)

	o.RunPass(context.Background())

	assert.False(t, scraped)
	assert.Empty(t, sink.events)
}

func TestStartWithNothingSelected(t *testing.T) {
	sink := &recordingSink{}
	o, session := newTestOrchestrator(t, func(ctx context.Context, seed string) []models.Book {
		return nil
	}, sink, 1)
	session.SetLibrary(libraryOf("Frank Herbert - Dune"), nil)

	o.Start(context.Background(), nil)

	require.Equal(t, 1, sink.count(EventClear))
	require.Equal(t, 1, sink.count(EventSidebarUpdate))
	update, ok := sink.events[1].data.(models.SidebarUpdate)
	require.True(t, ok)
	assert.Equal(t, "Error", update.Status)
	assert.False(t, update.Running)
	assert.False(t, session.Running())
}

func TestRunPassRejectsConcurrentPass(t *testing.T) {
	sink := &recordingSink{}
	o, session := newTestOrchestrator(t, func(ctx context.Context, seed string) []models.Book {
		return nil
	}, sink, 1)
	session.SetLibrary(libraryOf("Frank Herbert - Dune"), nil)
	require.NoError(t, session.StartSelection([]string{"Frank Herbert - Dune"}))
	require.True(t, session.TryBegin())
	defer session.EndPass()

	o.RunPass(context.Background())

	require.Equal(t, 1, sink.count(EventToast))
	toast := sink.events[0].data.(models.Toast)
	assert.Equal(t, "Search in progress", toast.Title)
}

func TestRunPassSamplesDistinctSeedsWithBoundedWorkers(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var active, peak int32

	scrape := func(ctx context.Context, seed string) []models.Book {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)

		mu.Lock()
		seen = append(seen, seed)
		mu.Unlock()
		return nil
	}

	sink := &recordingSink{}
	o, session := newTestOrchestrator(t, scrape, sink, 2)
	names := []string{"Seed A", "Seed B", "Seed C", "Seed D", "Seed E"}
	session.SetLibrary(libraryOf(names...), nil)
	require.NoError(t, session.StartSelection(names))

	o.RunPass(context.Background())

	// A thread limit outside [4,7] falls back to a batch of 4 seeds, still
	// run by only 2 workers at a time.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	sort.Strings(seen)
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i], "seeds must be sampled without replacement")
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunPassAdmitsScrapedBooks(t *testing.T) {
	scrape := func(ctx context.Context, seed string) []models.Book {
		return []models.Book{
			{Title: "Hyperion", Author: "Dan Simmons", SeedTitle: seed},
			{Title: "Hyperion", Author: "Dan Simmons", SeedTitle: seed},
		}
	}

	sink := &recordingSink{}
	o, session := newTestOrchestrator(t, scrape, sink, 1)
	session.SetLibrary(libraryOf("Frank Herbert - Dune"), nil)
	require.NoError(t, session.StartSelection([]string{"Frank Herbert - Dune"}))

	o.RunPass(context.Background())

	assert.Len(t, session.Books(), 1)
	assert.Equal(t, 1, sink.count(EventBooksLoaded))
	assert.False(t, session.Exhausted())
}

func TestRunPassStopHaltsAdmissions(t *testing.T) {
	scrape := func(ctx context.Context, seed string) []models.Book {
		return []models.Book{
			{Title: "Book One", Author: "Author One", SeedTitle: seed},
			{Title: "Book Two", Author: "Author Two", SeedTitle: seed},
			{Title: "Book Three", Author: "Author Three", SeedTitle: seed},
		}
	}

	sink := &recordingSink{}
	o, session := newTestOrchestrator(t, scrape, sink, 1)
	sink.onEmit = func(event string, data any) {
		if event == EventBooksLoaded {
			session.RequestStop()
		}
	}
	session.SetLibrary(libraryOf("Frank Herbert - Dune"), nil)
	require.NoError(t, session.StartSelection([]string{"Frank Herbert - Dune"}))

	o.RunPass(context.Background())

	assert.Equal(t, 1, sink.count(EventBooksLoaded))
	assert.Len(t, session.Books(), 1)
}

func TestRunPassExhaustion(t *testing.T) {
	scrape := func(ctx context.Context, seed string) []models.Book {
		return nil
	}

	sink := &recordingSink{}
	o, session := newTestOrchestrator(t, scrape, sink, 1)
	session.SetLibrary(libraryOf("Frank Herbert - Dune"), nil)
	require.NoError(t, session.StartSelection([]string{"Frank Herbert - Dune"}))

	o.RunPass(context.Background())

	// Nothing new: the pass ends exhausted and says so.
	assert.True(t, session.Exhausted())
	require.NotEmpty(t, sink.events)
	last := sink.events[len(sink.events)-1]
	require.Equal(t, EventToast, last.event)
	assert.Equal(t, "Search Exhausted", last.data.(models.Toast).Title)

	// The next pass short-circuits on the exhausted flag.
	before := sink.count(EventToast)
	o.RunPass(context.Background())
	assert.Equal(t, before+1, sink.count(EventToast))
}
