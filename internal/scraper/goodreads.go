// Package scraper drives a headless browser through the GoodReads flow:
// search, disambiguate, open the book page, paginate the related-books
// carousel and extract structured records.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/TheWicklowWolf/eBookBuddy/internal/browser"
	"github.com/TheWicklowWolf/eBookBuddy/internal/match"
	"github.com/TheWicklowWolf/eBookBuddy/internal/models"
)

const searchBaseURL = "https://www.goodreads.com/search"

// carouselBatchSize is how many cards the carousel shows per page.
const carouselBatchSize = 4

// StepError tags a failure with the state-machine step that produced it, so
// the log line always names which part of the flow broke.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) *StepError {
	return &StepError{Step: step, Err: err}
}

type Scraper struct {
	minimumRating float64
	minimumVotes  int
	waitDelay     time.Duration
	headless      bool
	logger        *slog.Logger
}

func New(minimumRating float64, minimumVotes int, waitDelay time.Duration, headless bool, logger *slog.Logger) *Scraper {
	return &Scraper{
		minimumRating: minimumRating,
		minimumVotes:  minimumVotes,
		waitDelay:     waitDelay,
		headless:      headless,
		logger:        logger.With("component", "goodreads_scraper"),
	}
}

// Recommendations runs the full flow for one seed title. Failures never
// escape this boundary: any step failure degrades to zero results plus a
// logged diagnostic naming the step.
func (s *Scraper) Recommendations(ctx context.Context, seed string) []models.Book {
	books, err := s.run(ctx, seed)
	if err != nil {
		var step string
		if se, ok := err.(*StepError); ok {
			step = se.Step
		}
		s.logger.Error("scrape failed", "seed", seed, "step", step, "error", err)
	}
	s.logger.Info("discovered potential books", "seed", seed, "count", len(books))
	return books
}

func (s *Scraper) run(ctx context.Context, seed string) ([]models.Book, error) {
	session, err := browser.NewSession(&browser.Options{
		Headless:       s.headless,
		WaitDelay:      s.waitDelay,
		ViewportWidth:  1280,
		ViewportHeight: 768,
	})
	if err != nil {
		return nil, stepErr("searchIssued", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("browser teardown reported errors", "seed", seed, "error", cerr)
		}
	}()

	page := session.Page()

	searchURL := fmt.Sprintf("%s?q=%s", searchBaseURL, url.QueryEscape(seed))
	if _, err := page.Goto(searchURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, stepErr("searchIssued", err)
	}

	s.dismissSearchOverlay(page)

	bookLink, err := s.pickBestResult(page, seed, searchURL)
	if err != nil {
		return nil, err
	}

	if err := validateLink(bookLink); err != nil {
		return nil, err
	}

	if _, err := page.Goto(bookLink, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, stepErr("navigateToBook", err)
	}

	s.dismissBookOverlay(page)

	carousel, err := s.locateCarousel(page)
	if err != nil {
		return nil, err
	}

	return s.paginateAndExtract(ctx, page, carousel, seed)
}

// dismissSearchOverlay waits for the interstitial modal on the search page
// and closes it if present. Absence within the wait delay is normal.
func (s *Scraper) dismissSearchOverlay(page playwright.Page) {
	overlay := page.Locator(".Overlay__window").First()
	if err := overlay.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(s.waitDelay.Milliseconds())),
	}); err != nil {
		s.logger.Info("no overlay displayed, continuing")
		return
	}

	s.logger.Info("overlay displayed on search, attempting to close it")
	dismiss := overlay.Locator(".modal__close").Locator("img[alt='Dismiss']")
	if err := dismiss.Click(); err != nil {
		s.logger.Warn("failed to close overlay, trying to continue", "error", err)
	}
}

// pickBestResult scans the results table in document order and returns the
// detail-page link of the first row whose "author - title" string passes the
// identity threshold or contains the seed literally. First match wins.
func (s *Scraper) pickBestResult(page playwright.Page, seed, baseURL string) (string, error) {
	// Nudge the page so the results table is rendered.
	page.Keyboard().Press("PageDown")
	page.Keyboard().Press("PageDown")

	rows := page.Locator(".tableList").Locator("tr")
	count, err := rows.Count()
	if err != nil {
		return "", stepErr("pickBestResult", err)
	}

	for i := 0; i < count; i++ {
		row := rows.Nth(i)

		title, err := row.Locator("span[itemprop='name']").First().InnerText()
		if err != nil {
			return "", stepErr("pickBestResult", err)
		}
		author, err := row.Locator("span[itemprop='author'] span[itemprop='name']").First().InnerText()
		if err != nil {
			return "", stepErr("pickBestResult", err)
		}

		candidate := fmt.Sprintf("%s - %s", strings.TrimSpace(author), strings.TrimSpace(title))
		ratio := match.Ratio(candidate, seed)
		if ratio > match.IdentityThreshold || strings.Contains(candidate, seed) {
			s.logger.Info("matched search result", "candidate", candidate, "seed", seed, "ratio", ratio)
			href, err := row.Locator("a.bookTitle").First().GetAttribute("href")
			if err != nil {
				return "", stepErr("pickBestResult", err)
			}
			return resolveLink(baseURL, href), nil
		}
	}

	return "", stepErr("pickBestResult", fmt.Errorf("no matching book for %q", seed))
}

// resolveLink makes relative table hrefs absolute against the page they came
// from, so the link validation step sees a full URL.
func resolveLink(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

func validateLink(link string) error {
	if link == "" {
		return stepErr("validateLink", fmt.Errorf("no link captured"))
	}
	u, err := url.Parse(link)
	if err != nil {
		return stepErr("validateLink", fmt.Errorf("invalid URL %q: %w", link, err))
	}
	if u.Scheme == "" || u.Host == "" {
		return stepErr("validateLink", fmt.Errorf("invalid URL %q", link))
	}
	return nil
}

// dismissBookOverlay closes the book-page interstitial, which unlike the
// search overlay needs a click on the overlay itself before its nested close
// control responds.
func (s *Scraper) dismissBookOverlay(page playwright.Page) {
	overlay := page.Locator(".Overlay__window").First()
	if err := overlay.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(s.waitDelay.Milliseconds())),
	}); err != nil {
		s.logger.Info("no overlay displayed, continuing")
		return
	}

	s.logger.Info("overlay displayed on book link, attempting to close it")
	if err := overlay.Click(); err != nil {
		s.logger.Warn("failed to click overlay, attempting to continue", "error", err)
		return
	}
	if err := overlay.Locator(".Button__container").First().Click(); err != nil {
		s.logger.Warn("failed to close overlay, attempting to continue", "error", err)
	}
}

// locateCarousel scrolls the related-books section into view and waits for
// the carousel, retrying the wait exactly once.
func (s *Scraper) locateCarousel(page playwright.Page) (playwright.Locator, error) {
	related := page.Locator(".BookPage__relatedTopContent").First()
	if err := related.ScrollIntoViewIfNeeded(); err != nil {
		s.logger.Warn("failed to scroll related content into view", "error", err)
	}

	carousel := page.Locator(".Carousel").First()
	waitOpts := playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(s.waitDelay.Milliseconds())),
	}

	s.logger.Info("waiting until carousel is displayed")
	if err := carousel.WaitFor(waitOpts); err != nil {
		s.logger.Info("could not find carousel on first attempt, trying again")
		if err := carousel.WaitFor(waitOpts); err != nil {
			return nil, stepErr("locateCarousel", fmt.Errorf("no valid carousel: %w", err))
		}
	}

	return carousel, nil
}

// paginateAndExtract walks the carousel in batches of four, re-querying the
// live card list each batch because pagination replaces the DOM nodes. A bad
// card is skipped, never fatal to its batch.
func (s *Scraper) paginateAndExtract(ctx context.Context, page playwright.Page, carousel playwright.Locator, seed string) ([]models.Book, error) {
	nextButton := page.Locator(`button[aria-label="Carousel, Next page"]`).First()

	total, err := carousel.Locator(".BookCard").Count()
	if err != nil {
		return nil, stepErr("paginateAndExtract", err)
	}

	var books []models.Book
	for i := 0; i < total; i += carouselBatchSize {
		select {
		case <-ctx.Done():
			return books, nil
		default:
		}

		cards := carousel.Locator(".BookCard")
		for j := i; j < i+carouselBatchSize && j < total; j++ {
			html, err := cards.Nth(j).InnerHTML()
			if err != nil {
				s.logger.Warn("failed to read book card", "seed", seed, "index", j, "error", err)
				continue
			}

			card, err := ParseCard(html)
			if err != nil {
				s.logger.Warn("failed to parse book card", "seed", seed, "index", j, "error", err)
				continue
			}

			if card.Rating > s.minimumRating && card.Votes > s.minimumVotes {
				books = append(books, models.Book{
					Title:     card.Title,
					Author:    card.Author,
					Rating:    card.Rating,
					Votes:     card.Votes,
					ImageURL:  card.ImageURL,
					SeedTitle: seed,
				})
			}
		}

		if i+carouselBatchSize < total {
			enabled, err := nextButton.IsEnabled()
			if err == nil && enabled {
				if err := nextButton.Click(); err != nil {
					s.logger.Warn("failed to advance carousel", "seed", seed, "error", err)
					continue
				}
				s.logger.Info("checking next batch", "seed", seed)
				// Let the widget finish its transition before re-querying.
				time.Sleep(time.Second)
			}
		}
	}

	return books, nil
}
