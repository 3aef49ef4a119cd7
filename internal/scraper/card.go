package scraper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Card holds the fields extracted from a single carousel book card.
type Card struct {
	Title    string
	Author   string
	Rating   float64
	Votes    int
	ImageURL string
}

// ParseCard extracts structured fields from a BookCard fragment.
func ParseCard(html string) (*Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse card HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find(`[data-testid="title"]`).First().Text())
	author := strings.TrimSpace(doc.Find(`[data-testid="author"]`).First().Text())
	if title == "" || author == "" {
		return nil, fmt.Errorf("card missing title or author")
	}

	ratingText := strings.TrimSpace(doc.Find(".AverageRating__ratingValue").First().Text())
	rating, err := ParseRating(ratingText)
	if err != nil {
		return nil, fmt.Errorf("bad rating %q: %w", ratingText, err)
	}

	votesText := strings.TrimSpace(doc.Find(`[data-testid="ratingsCount"]`).First().Text())
	votes, err := ParseVoteCount(votesText)
	if err != nil {
		return nil, fmt.Errorf("bad vote count %q: %w", votesText, err)
	}

	imageURL, _ := doc.Find("img.ResponsiveImage").First().Attr("src")

	return &Card{
		Title:    title,
		Author:   author,
		Rating:   rating,
		Votes:    votes,
		ImageURL: imageURL,
	}, nil
}

// ParseRating parses the card's average rating. A blank rating renders as 0.
func ParseRating(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseVoteCount parses the card's ratings-count text: an "m" suffix scales
// by one million, "k" by one thousand, otherwise a plain integer with commas
// stripped. Blank is zero.
func ParseVoteCount(s string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")

	switch {
	case strings.Contains(cleaned, "m"):
		f, err := strconv.ParseFloat(strings.ReplaceAll(cleaned, "m", ""), 64)
		if err != nil {
			return 0, err
		}
		return int(f * 1_000_000), nil
	case strings.Contains(cleaned, "k"):
		f, err := strconv.ParseFloat(strings.ReplaceAll(cleaned, "k", ""), 64)
		if err != nil {
			return 0, err
		}
		return int(f * 1_000), nil
	case cleaned == "":
		return 0, nil
	default:
		return strconv.Atoi(cleaned)
	}
}
