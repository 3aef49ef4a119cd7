// Package recommend holds the discovery session: the seed pool drawn from
// the user's library, the running recommendation set, and the orchestration
// of concurrent scrape passes over it.
package recommend

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/TheWicklowWolf/eBookBuddy/internal/match"
	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

// ErrNoSeedsSelected is the pass-level precondition failure: a search was
// requested with nothing selected in the library.
var ErrNoSeedsSelected = errors.New("no library books selected")

// connectionSampleSize caps how many retained recommendations are replayed
// to the first client that connects.
const connectionSampleSize = 25

// Session is the shared state of one discovery session. The recommendation
// set, owned-catalog set and flags are mutated only by the orchestrator's
// control goroutine as it drains task results; scrape tasks get read-only
// seed strings and return plain values. The stop flag is the one field
// toggled from request handlers, so it is atomic.
type Session struct {
	mu         sync.Mutex
	library    []models.LibraryItem
	seeds      []string
	owned      map[string]struct{}
	books      []models.Book
	exhausted  bool
	inProgress bool

	stopped atomic.Bool
}

func NewSession() *Session {
	s := &Session{
		owned:     make(map[string]struct{}),
		exhausted: true,
	}
	s.stopped.Store(true)
	return s
}

// SetLibrary replaces the selectable library listing and merges the given
// normalized identity keys into the owned-catalog set. Owned keys accumulate
// across refreshes so previously added books stay excluded.
func (s *Session) SetLibrary(items []models.LibraryItem, ownedKeys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.library = items
	for _, key := range ownedKeys {
		s.owned[key] = struct{}{}
	}
}

// Library returns a snapshot of the library listing.
func (s *Session) Library() []models.LibraryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LibraryItem, len(s.library))
	copy(out, s.library)
	return out
}

// AddLibraryItem appends a newly added book to the library listing and the
// owned set so it is excluded from future passes.
func (s *Session) AddLibraryItem(name, ownedKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.library = append(s.library, models.LibraryItem{Name: name})
	s.owned[ownedKey] = struct{}{}
}

// StartSelection resets the session for a new search: clears the
// recommendation set, marks the chosen library items checked and builds the
// seed pool. With nothing selected the session stops and the caller gets
// ErrNoSeedsSelected.
func (s *Session) StartSelection(selected []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chosen := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		chosen[name] = struct{}{}
	}

	s.exhausted = false
	s.books = nil
	s.seeds = nil
	for i := range s.library {
		if _, ok := chosen[s.library[i].Name]; ok {
			s.library[i].Checked = true
			s.seeds = append(s.seeds, s.library[i].Name)
		} else {
			s.library[i].Checked = false
		}
	}

	if len(s.seeds) == 0 {
		s.stopped.Store(true)
		return ErrNoSeedsSelected
	}

	s.stopped.Store(false)
	return nil
}

// SampleSeeds draws up to n distinct seeds uniformly at random without
// replacement from the selected pool.
func (s *Session) SampleSeeds(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.seeds) {
		n = len(s.seeds)
	}
	perm := rand.Perm(len(s.seeds))
	out := make([]string, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, s.seeds[idx])
	}
	return out
}

// SeedCount reports the size of the selected seed pool.
func (s *Session) SeedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeds)
}

// Books returns a snapshot of the recommendation set.
func (s *Session) Books() []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Book, len(s.books))
	copy(out, s.books)
	return out
}

// Owned reports whether the normalized identity key is in the owned set.
func (s *Session) Owned(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owned[key]
	return ok
}

// Append adds an admitted record and clears the exhausted flag: a genuinely
// new discovery means the session is not exhausted.
func (s *Session) Append(book models.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append(s.books, book)
	s.exhausted = false
}

// UpdateBookStatus mutates the status of a retained record, returning the
// updated copy.
func (s *Session) UpdateBookStatus(author, title, status string) (models.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.books {
		if s.books[i].Author == author && s.books[i].Title == title {
			s.books[i].Status = status
			return s.books[i], true
		}
	}
	return models.Book{}, false
}

// ConnectSnapshot returns the recommendations to replay to a connecting
// client. When no other client is connected the retained set is trimmed to
// a random sample (or shuffled, if small enough) first.
func (s *Session) ConnectSnapshot(firstClient bool) []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.books) == 0 {
		return nil
	}

	if firstClient {
		if len(s.books) > connectionSampleSize {
			perm := rand.Perm(len(s.books))
			sampled := make([]models.Book, 0, connectionSampleSize)
			for _, idx := range perm[:connectionSampleSize] {
				sampled = append(sampled, s.books[idx])
			}
			s.books = sampled
		} else {
			rand.Shuffle(len(s.books), func(i, j int) {
				s.books[i], s.books[j] = s.books[j], s.books[i]
			})
		}
	}

	out := make([]models.Book, len(s.books))
	copy(out, s.books)
	return out
}

// Exhausted reports whether the last pass produced nothing new.
func (s *Session) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

func (s *Session) SetExhausted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted = v
}

// TryBegin marks a pass in progress. It fails if one already is, which is
// how a concurrent start request gets rejected.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	return true
}

// EndPass clears the in-progress flag. Runs on every pass exit path.
func (s *Session) EndPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
}

// InProgress reports whether a pass is actively running.
func (s *Session) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// RequestStop sets the cooperative cancellation flag. Polled by the
// orchestrator between record admissions; never preempts an in-flight
// browser interaction.
func (s *Session) RequestStop() {
	s.stopped.Store(true)
}

// Stopped reports whether cancellation has been requested.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// Running reports whether the session is active (not stopped).
func (s *Session) Running() bool {
	return !s.stopped.Load()
}

// OwnedKey builds the normalized identity key for a library book.
func OwnedKey(author, title string) string {
	return match.Key(author, title)
}
