package readarr

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheWicklowWolf/eBookBuddy/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.ReadarrConfig{
		Address:           srv.URL,
		APIKey:            "test-key",
		RootFolderPath:    "/data/media/books",
		APITimeout:        5 * time.Second,
		QualityProfileID:  2,
		MetadataProfileID: 3,
	}
	return New(cfg, slog.Default()), srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestLibrary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/author", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		writeJSON(t, w, []map[string]any{
			{"id": 1, "authorName": "Frank Herbert"},
			{"id": 2, "authorName": "Jane Austen"},
		})
	})
	mux.HandleFunc("/api/v1/book", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("authorId") {
		case "1":
			writeJSON(t, w, []map[string]any{
				{"id": 10, "title": "Dune", "statistics": map[string]any{"bookFileCount": 1}},
				{"id": 11, "title": "Dune Messiah", "statistics": map[string]any{"bookFileCount": 0}},
			})
		case "2":
			writeJSON(t, w, []map[string]any{
				{"id": 20, "title": "Emma", "statistics": map[string]any{"bookFileCount": 2}},
			})
		default:
			http.NotFound(w, r)
		}
	})
	client, _ := newTestClient(t, mux)

	items, ownedKeys, err := client.Library(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 2)
	// Downloaded books only, sorted by name.
	assert.Equal(t, "Frank Herbert - Dune", items[0].Name)
	assert.Equal(t, "Jane Austen - Emma", items[1].Name)
	assert.Equal(t, []string{"frank herbert - dune", "jane austen - emma"}, ownedKeys)
}

func TestLibraryAuthorFetchError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/author", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	client, _ := newTestClient(t, mux)

	_, _, err := client.Library(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch authors")
}

func TestAddBookWithExistingAuthor(t *testing.T) {
	var monitorPayload struct {
		BookIDs   []int `json:"bookIds"`
		Monitored bool  `json:"monitored"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/author", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 7, "authorName": "Frank Herbert"},
		})
	})
	mux.HandleFunc("/api/v1/book", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("authorId"))
		writeJSON(t, w, []map[string]any{
			{"id": 42, "title": "Dune Messiah"},
			{"id": 43, "title": "Children of Dune"},
		})
	})
	mux.HandleFunc("/api/v1/book/monitor", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&monitorPayload))
		w.WriteHeader(http.StatusAccepted)
	})
	client, _ := newTestClient(t, mux)

	err := client.AddBook(context.Background(), "Frank Herbert", "Dune Messiah")

	require.NoError(t, err)
	assert.Equal(t, []int{42}, monitorPayload.BookIDs)
	assert.True(t, monitorPayload.Monitored)
}

func TestAddBookAddsMissingAuthor(t *testing.T) {
	var addPayload map[string]any
	authorAdded := false

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/author", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&addPayload))
			authorAdded = true
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]any{"id": 9, "authorName": "Dan Simmons", "foreignAuthorId": "abc-123"})
			return
		}
		writeJSON(t, w, []map[string]any{})
	})
	mux.HandleFunc("/api/v1/author/lookup", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Dan Simmons", r.URL.Query().Get("term"))
		writeJSON(t, w, []map[string]any{
			{"authorName": "Dan Simmons", "foreignAuthorId": "abc-123"},
		})
	})
	mux.HandleFunc("/api/v1/book", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9", r.URL.Query().Get("authorId"))
		writeJSON(t, w, []map[string]any{
			{"id": 55, "title": "Hyperion"},
		})
	})
	mux.HandleFunc("/api/v1/book/monitor", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	client, _ := newTestClient(t, mux)

	err := client.AddBook(context.Background(), "Dan Simmons", "Hyperion")

	require.NoError(t, err)
	require.True(t, authorAdded)
	assert.Equal(t, "Dan Simmons", addPayload["authorName"])
	assert.Equal(t, "abc-123", addPayload["foreignAuthorId"])
	assert.Equal(t, "/data/media/books", addPayload["rootFolderPath"])
	assert.Equal(t, "/data/media/books/Dan Simmons", addPayload["path"])
	assert.Equal(t, float64(2), addPayload["qualityProfileId"])
	assert.Equal(t, float64(3), addPayload["metadataProfileId"])
	assert.Equal(t, "none", addPayload["monitorNewItems"])
	addOptions, ok := addPayload["addOptions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "future", addOptions["monitor"])
}

func TestAddBookNoAuthorMatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/author", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{})
	})
	mux.HandleFunc("/api/v1/author/lookup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"authorName": "Somebody Else"},
		})
	})
	client, _ := newTestClient(t, mux)

	err := client.AddBook(context.Background(), "Dan Simmons", "Hyperion")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no author match")
}

func TestAddBookNoTitleMatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/author", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 7, "authorName": "Frank Herbert"},
		})
	})
	mux.HandleFunc("/api/v1/book", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 42, "title": "Something Entirely Different"},
		})
	})
	client, _ := newTestClient(t, mux)

	err := client.AddBook(context.Background(), "Frank Herbert", "Dune")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found under author")
}
