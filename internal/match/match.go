// Package match wraps the fuzzy string similarity used to decide whether two
// book or author strings refer to the same work despite formatting noise.
package match

import (
	"fmt"
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Similarity cutoffs. Identity decides whether a search result or API hit is
// the requested work, Duplicate decides whether a candidate is already in the
// recommendation list, Author matches author names against catalog entries.
const (
	IdentityThreshold  = 90
	DuplicateThreshold = 95
	AuthorThreshold    = 95
)

// Ratio returns a symmetric similarity score in [0,100].
func Ratio(a, b string) int {
	return fuzzy.Ratio(a, b)
}

// Normalize strips diacritics and casefolds, producing the form used for
// exact identity comparisons.
func Normalize(s string) string {
	// The chain carries internal buffers, so build it per call rather than
	// sharing one transformer across goroutines.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Key builds the normalized "author - title" identity key for a book.
func Key(author, title string) string {
	return Normalize(fmt.Sprintf("%s - %s", author, title))
}
