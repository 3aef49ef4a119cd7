// Package readarr is a minimal client for the Readarr v1 API covering the
// two flows this service needs: listing the downloaded library and adding a
// recommended book to it.
package readarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"time"

	"github.com/TheWicklowWolf/eBookBuddy/internal/config"
	"github.com/TheWicklowWolf/eBookBuddy/internal/match"
	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

type Client struct {
	cfg    config.ReadarrConfig
	http   *http.Client
	logger *slog.Logger
}

func New(cfg config.ReadarrConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.APITimeout},
		logger: logger.With("component", "readarr"),
	}
}

type author struct {
	ID              int    `json:"id"`
	AuthorName      string `json:"authorName"`
	ForeignAuthorID string `json:"foreignAuthorId"`
}

type book struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Statistics struct {
		BookFileCount int `json:"bookFileCount"`
	} `json:"statistics"`
}

// Library fetches every author and their books, keeping only books with at
// least one downloaded file. It returns the sorted sidebar listing and the
// normalized identity keys of everything owned.
func (c *Client) Library(ctx context.Context) ([]models.LibraryItem, []string, error) {
	c.logger.Info("getting books from readarr")

	var authors []author
	if err := c.get(ctx, "/api/v1/author", nil, &authors); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch authors: %w", err)
	}

	var items []models.LibraryItem
	var ownedKeys []string
	for _, a := range authors {
		var books []book
		query := url.Values{"authorId": {fmt.Sprint(a.ID)}}
		if err := c.get(ctx, "/api/v1/book", query, &books); err != nil {
			return nil, nil, fmt.Errorf("failed to fetch books for author %q: %w", a.AuthorName, err)
		}
		for _, b := range books {
			if b.Statistics.BookFileCount > 0 {
				items = append(items, models.LibraryItem{Name: fmt.Sprintf("%s - %s", a.AuthorName, b.Title)})
				ownedKeys = append(ownedKeys, match.Key(a.AuthorName, b.Title))
			}
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, ownedKeys, nil
}

// AddBook ensures the author exists in Readarr (adding them if necessary),
// finds the matching book record and flips it to monitored.
func (c *Client) AddBook(ctx context.Context, authorName, title string) error {
	a, err := c.resolveAuthor(ctx, authorName)
	if err != nil {
		return err
	}

	// Give Readarr time to populate the new author's book list.
	select {
	case <-time.After(c.cfg.WaitDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	var books []book
	query := url.Values{"authorId": {fmt.Sprint(a.ID)}}
	if err := c.get(ctx, "/api/v1/book", query, &books); err != nil {
		return fmt.Errorf("failed to fetch books for author %q: %w", a.AuthorName, err)
	}

	var target *book
	for i := range books {
		if match.Ratio(books[i].Title, title) > match.IdentityThreshold {
			target = &books[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("book %q not found under author %q", title, a.AuthorName)
	}

	payload := map[string]any{"bookIds": []int{target.ID}, "monitored": true}
	status, body, err := c.send(ctx, http.MethodPut, "/api/v1/book/monitor", payload)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return fmt.Errorf("failed to monitor book %q: %s", title, body)
	}

	c.logger.Info("book monitoring enabled", "book", title, "author", a.AuthorName)
	return nil
}

// resolveAuthor returns the catalog record for the named author, first by
// scanning the existing authors, then via lookup-and-add.
func (c *Client) resolveAuthor(ctx context.Context, authorName string) (author, error) {
	var existing []author
	if err := c.get(ctx, "/api/v1/author", nil, &existing); err == nil {
		for _, a := range existing {
			if match.Ratio(a.AuthorName, authorName) > match.AuthorThreshold {
				return a, nil
			}
		}
	}

	var results []author
	query := url.Values{"term": {authorName}}
	if err := c.get(ctx, "/api/v1/author/lookup", query, &results); err != nil {
		return author{}, fmt.Errorf("author lookup failed: %w", err)
	}

	var found *author
	for i := range results {
		if match.Ratio(results[i].AuthorName, authorName) > match.AuthorThreshold {
			found = &results[i]
			break
		}
	}
	if found == nil {
		return author{}, fmt.Errorf("no author match for %q", authorName)
	}

	payload := map[string]any{
		"authorName":        found.AuthorName,
		"metadataProfileId": c.cfg.MetadataProfileID,
		"qualityProfileId":  c.cfg.QualityProfileID,
		"rootFolderPath":    c.cfg.RootFolderPath,
		"path":              path.Join(c.cfg.RootFolderPath, found.AuthorName),
		"foreignAuthorId":   found.ForeignAuthorID,
		"monitored":         true,
		"monitorNewItems":   "none",
		"addOptions": map[string]any{
			"monitor":               "future",
			"searchForMissingBooks": c.cfg.SearchForMissingBook,
			"monitored":             true,
		},
	}
	status, body, err := c.send(ctx, http.MethodPost, "/api/v1/author", payload)
	if err != nil {
		return author{}, err
	}
	if status != http.StatusCreated {
		return author{}, fmt.Errorf("failed to add author %q: %s", found.AuthorName, body)
	}

	var created author
	if err := json.Unmarshal(body, &created); err != nil {
		return author{}, fmt.Errorf("failed to decode added author: %w", err)
	}
	c.logger.Info("author added", "author", created.AuthorName)
	return created, nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.cfg.Address + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Address+endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}
