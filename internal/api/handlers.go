// Package api exposes the HTTP surface: library and search control
// endpoints, book actions, settings and the websocket upgrade.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gorilla "github.com/gorilla/websocket"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/TheWicklowWolf/eBookBuddy/internal/books"
	"github.com/TheWicklowWolf/eBookBuddy/internal/config"
	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
	"github.com/TheWicklowWolf/eBookBuddy/internal/readarr"
	"github.com/TheWicklowWolf/eBookBuddy/internal/recommend"
	"github.com/TheWicklowWolf/eBookBuddy/internal/websocket"
)

type Handlers struct {
	mu      sync.Mutex
	cfg     *config.Config
	readarr *readarr.Client
	books   *books.Client

	session *recommend.Session
	orch    *recommend.Orchestrator
	hub     *websocket.Hub

	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

func NewHandlers(cfg *config.Config, readarrClient *readarr.Client, booksClient *books.Client, session *recommend.Session, orch *recommend.Orchestrator, hub *websocket.Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		readarr: readarrClient,
		books:   booksClient,
		session: session,
		orch:    orch,
		hub:     hub,
		upgrader: gorilla.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "api"),
	}
}

// Routes mounts every endpoint on the given router.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/ws", h.ServeWS)

	// The websocket route stays outside the timeout, it holds the
	// connection open indefinitely.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/library", h.GetLibrary)
		r.Post("/library/refresh", h.RefreshLibraryAsync)

		r.Post("/search/start", h.StartSearch)
		r.Post("/search/stop", h.StopSearch)
		r.Post("/search/more", h.MoreBooks)

		r.Post("/books/add", h.AddBook)
		r.Post("/books/overview", h.Overview)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
	})
}

// ServeWS upgrades the connection and replays the retained recommendation
// set. The first client to connect gets the set trimmed to a sample first.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	firstClient := h.hub.ClientCount() == 0
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(h.hub, conn)
	client.Start()

	if snapshot := h.session.ConnectSnapshot(firstClient); len(snapshot) > 0 {
		client.Send(websocket.Message{Event: recommend.EventBooksLoaded, Data: snapshot})
	}
}

// GetLibrary returns the sidebar listing, optionally fuzzy-filtered by the
// q parameter.
func (h *Handlers) GetLibrary(w http.ResponseWriter, r *http.Request) {
	items := h.session.Library()

	if q := r.URL.Query().Get("q"); q != "" {
		filtered := items[:0]
		for _, item := range items {
			if fuzzy.MatchNormalizedFold(q, item.Name) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	h.respondJSON(w, http.StatusOK, models.SidebarUpdate{
		Status:  "Success",
		Data:    items,
		Running: h.session.Running(),
	})
}

// RefreshLibraryAsync re-fetches the library from Readarr in the background
// and pushes the result over the sidebar update event.
func (h *Handlers) RefreshLibraryAsync(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.RefreshLibrary(context.Background(), false); err != nil {
			h.logger.Error("library refresh failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// RefreshLibrary fetches the downloaded library, replaces the session's
// listing with the checked flag applied to every entry, and notifies
// clients. Failures notify too, with the error in the payload.
func (h *Handlers) RefreshLibrary(ctx context.Context, checked bool) error {
	items, ownedKeys, err := h.readarrClient().Library(ctx)
	if err != nil {
		h.hub.Emit(recommend.EventSidebarUpdate, models.SidebarUpdate{
			Status:  "Error",
			Code:    http.StatusInternalServerError,
			Data:    err.Error(),
			Running: h.session.Running(),
		})
		return err
	}

	for i := range items {
		items[i].Checked = checked
	}
	h.session.SetLibrary(items, ownedKeys)

	h.hub.Emit(recommend.EventSidebarUpdate, models.SidebarUpdate{
		Status:  "Success",
		Data:    items,
		Running: h.session.Running(),
	})
	return nil
}

type startRequest struct {
	Selected []string `json:"selected"`
}

// StartSearch begins a new discovery session over the selected library
// items.
func (h *Handlers) StartSearch(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.orch.Start(context.Background(), req.Selected)
	w.WriteHeader(http.StatusAccepted)
}

// StopSearch requests cooperative cancellation of the running session.
func (h *Handlers) StopSearch(w http.ResponseWriter, r *http.Request) {
	h.session.RequestStop()
	w.WriteHeader(http.StatusOK)
}

// MoreBooks kicks off another pass over the current seed pool.
func (h *Handlers) MoreBooks(w http.ResponseWriter, r *http.Request) {
	go h.orch.RunPass(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

// AddBook sends a recommendation to Readarr in the background and reports
// the outcome through the refresh_book event.
func (h *Handlers) AddBook(w http.ResponseWriter, r *http.Request) {
	var book models.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if book.Title == "" || book.Author == "" {
		h.respondError(w, http.StatusBadRequest, "book name and author are required")
		return
	}

	go h.addBook(book)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) addBook(book models.Book) {
	status := "Added"
	if err := h.readarrClient().AddBook(context.Background(), book.Author, book.Title); err != nil {
		h.logger.Error("failed to add book", "book", book.AuthorAndTitle(), "error", err)
		status = "Failed to Add"
		h.hub.Emit(recommend.EventToast, models.Toast{
			Title:   "Failed to add Book",
			Message: "No Matching Book for: " + book.AuthorAndTitle(),
		})
	} else {
		h.session.AddLibraryItem(book.AuthorAndTitle(), recommend.OwnedKey(book.Author, book.Title))
		h.logger.Info("book added", "book", book.AuthorAndTitle())
	}

	if updated, ok := h.session.UpdateBookStatus(book.Author, book.Title, status); ok {
		h.hub.Emit(recommend.EventRefreshBook, updated)
	} else {
		h.logger.Info("book not found in recommendation list", "book", book.AuthorAndTitle())
	}
}

// Overview enriches a recommendation with Google Books metadata, returning
// it and pushing it over the overview event.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	var book models.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	enriched := h.booksClient().Enrich(r.Context(), book)
	h.hub.Emit(recommend.EventOverview, enriched)
	h.respondJSON(w, http.StatusOK, enriched)
}

// Settings is the editable subset of the configuration.
type Settings struct {
	ReadarrAddress    string `json:"readarr_address"`
	ReadarrAPIKey     string `json:"readarr_api_key"`
	RootFolderPath    string `json:"root_folder_path"`
	GoogleBooksAPIKey string `json:"google_books_api_key"`
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	settings := Settings{
		ReadarrAddress:    h.cfg.Readarr.Address,
		ReadarrAPIKey:     h.cfg.Readarr.APIKey,
		RootFolderPath:    h.cfg.Readarr.RootFolderPath,
		GoogleBooksAPIKey: h.cfg.Books.APIKey,
	}
	h.mu.Unlock()

	h.hub.Emit(recommend.EventSettingsLoaded, settings)
	h.respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings applies the edited fields, persists them and rebuilds the
// outbound clients so the new endpoints take effect immediately.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	h.cfg.Readarr.Address = settings.ReadarrAddress
	h.cfg.Readarr.APIKey = settings.ReadarrAPIKey
	h.cfg.Readarr.RootFolderPath = settings.RootFolderPath
	h.cfg.Books.APIKey = settings.GoogleBooksAPIKey
	h.readarr = readarr.New(h.cfg.Readarr, h.logger)
	h.books = books.New(h.cfg.Books.APIKey, h.logger)
	err := h.cfg.Save()
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("failed to save settings", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	h.respondJSON(w, http.StatusOK, settings)
}

func (h *Handlers) readarrClient() *readarr.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readarr
}

func (h *Handlers) booksClient() *books.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.books
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
