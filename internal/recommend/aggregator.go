package recommend

import (
	"log/slog"

	"github.com/TheWicklowWolf/eBookBuddy/internal/match"
	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

// Aggregator merges scrape results into the session's recommendation set,
// filtering out books already owned and near-duplicates already recommended.
type Aggregator struct {
	session *Session
	sink    Sink
	logger  *slog.Logger
}

func NewAggregator(session *Session, sink Sink, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		session: session,
		sink:    sink,
		logger:  logger.With("component", "aggregator"),
	}
}

// Admit applies the dedup rules to one candidate and reports whether it was
// added. Accepted records stream to the sink immediately, one at a time, and
// clear the session's exhausted flag.
func (a *Aggregator) Admit(book models.Book) bool {
	key := match.Key(book.Author, book.Title)
	if a.session.Owned(key) {
		return false
	}

	candidate := book.AuthorAndTitle()
	for _, existing := range a.session.Books() {
		if match.Ratio(candidate, existing.AuthorAndTitle()) >= match.DuplicateThreshold {
			return false
		}
	}

	a.session.Append(book)
	a.sink.Emit(EventBooksLoaded, []models.Book{book})
	a.logger.Debug("admitted recommendation", "book", candidate, "seed", book.SeedTitle)
	return true
}
