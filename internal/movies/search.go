package movies

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Service searches TMDB first and falls back to OMDB when TMDB has no
// match, is unconfigured, or fails outright.
type Service struct {
	tmdb *TMDBClient
	omdb *OMDBClient
}

// NewService constructs a Service from provider API keys.
func NewService(tmdbAPIKey, omdbAPIKey string) *Service {
	return &Service{
		tmdb: NewTMDBClient(tmdbAPIKey),
		omdb: NewOMDBClient(omdbAPIKey),
	}
}

// Search resolves a title query to the best match.
func (s *Service) Search(ctx context.Context, query string) (*Movie, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}

	movie, errTMDB := s.tmdb.SearchMovie(ctx, query)
	if errTMDB == nil {
		return movie, nil
	}
	if !errors.Is(errTMDB, ErrNotFound) && !errors.Is(errTMDB, ErrNotConfigured) {
		log.WithError(errTMDB).Warn("movies: tmdb search failed, trying omdb")
	}

	movie, errOMDB := s.omdb.LookupTitle(ctx, query)
	if errOMDB == nil {
		return movie, nil
	}
	if errors.Is(errOMDB, ErrNotFound) || errors.Is(errOMDB, ErrNotConfigured) {
		// Surface a provider outage over a plain miss so the caller can
		// tell "nothing matched" apart from "search was degraded".
		if !errors.Is(errTMDB, ErrNotFound) && !errors.Is(errTMDB, ErrNotConfigured) {
			return nil, errTMDB
		}
		return nil, ErrNotFound
	}
	return nil, errOMDB
}
