// Package books enriches recommendations with metadata from the Google
// Books volumes API.
package books

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TheWicklowWolf/eBookBuddy/internal/match"
	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

const defaultBaseURL = "https://www.googleapis.com/books/v1"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func New(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "googlebooks"),
	}
}

// NewWithBaseURL is for tests pointing at a fake API server.
func NewWithBaseURL(baseURL, apiKey string, logger *slog.Logger) *Client {
	c := New(apiKey, logger)
	c.baseURL = baseURL
	return c
}

type volumeList struct {
	Items []struct {
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

type volumeInfo struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description"`
	PublishedDate string   `json:"publishedDate"`
	PageCount     int      `json:"pageCount"`
}

// Enrich looks the book up by "Author - Title" and fills in the overview,
// published date and page count from the first matching volume. No match
// leaves those fields empty; lookup failures are logged, never propagated.
func (c *Client) Enrich(ctx context.Context, book models.Book) models.Book {
	book.Overview = ""
	book.PublishedDate = ""
	book.PageCount = 0

	info, ok := c.lookup(ctx, book.AuthorAndTitle())
	if !ok {
		return book
	}

	book.Overview = info.Description
	book.PublishedDate = info.PublishedDate
	book.PageCount = info.PageCount
	return book
}

func (c *Client) lookup(ctx context.Context, query string) (volumeInfo, bool) {
	params := url.Values{"q": {query}}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		c.logger.Error("building volumes request", "error", err)
		return volumeInfo{}, false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("querying google books", "error", err)
		return volumeInfo{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("querying google books", "status", resp.StatusCode, "body", string(body))
		return volumeInfo{}, false
	}

	var list volumeList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		c.logger.Error("decoding google books response", "error", err)
		return volumeInfo{}, false
	}

	for _, item := range list.Items {
		info := item.VolumeInfo
		if info.Title == "" || len(info.Authors) == 0 {
			continue
		}
		candidate := fmt.Sprintf("%s - %s", info.Authors[0], info.Title)
		if match.Ratio(candidate, query) > match.IdentityThreshold || strings.Contains(candidate, query) {
			return info, true
		}
	}
	return volumeInfo{}, false
}
