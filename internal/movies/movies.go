// Package movies resolves free-text titles against TMDB with an OMDB
// fallback and normalizes both into one result shape.
package movies

import (
	"errors"
	"strconv"
)

var (
	// ErrNotConfigured marks a provider without an API key.
	ErrNotConfigured = errors.New("movies: provider not configured")
	// ErrNotFound marks a query no provider could match.
	ErrNotFound = errors.New("movies: no match for query")
)

// Source labels which provider produced a result.
const (
	SourceTMDB = "tmdb"
	SourceOMDB = "omdb"
)

// Movie is a normalized search result.
type Movie struct {
	Title     string
	Year      string
	Rating    string
	PosterURL string
	Source    string
}

func formatRating(vote float64) string {
	return strconv.FormatFloat(vote, 'g', -1, 64)
}
