package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	tmdbBaseURL = "https://api.themoviedb.org"
	// tmdbImageBase prefixes poster paths at the 500px rendition.
	tmdbImageBase = "https://image.tmdb.org/t/p/w500"

	providerTimeout = 20 * time.Second
)

// TMDBClient queries The Movie Database search API.
type TMDBClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewTMDBClient constructs a TMDBClient. An empty key yields a client that
// reports ErrNotConfigured on every search.
func NewTMDBClient(apiKey string) *TMDBClient {
	return &TMDBClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    tmdbBaseURL,
		httpClient: &http.Client{Timeout: providerTimeout},
	}
}

type tmdbMovie struct {
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
}

type tmdbSearchResponse struct {
	Results []tmdbMovie `json:"results"`
}

// SearchMovie returns the top match for the query.
func (c *TMDBClient) SearchMovie(ctx context.Context, query string) (*Movie, error) {
	if c == nil || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)
	params.Set("include_adult", "false")
	requestURL := c.baseURL + "/3/search/movie?" + params.Encode()

	req, errRequest := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if errRequest != nil {
		return nil, fmt.Errorf("movies: tmdb: build request: %w", errRequest)
	}

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("movies: tmdb: send request: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("movies: tmdb: failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("movies: tmdb: unexpected status %d", resp.StatusCode)
	}

	data, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("movies: tmdb: read response: %w", errRead)
	}

	var parsed tmdbSearchResponse
	if errUnmarshal := json.Unmarshal(data, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("movies: tmdb: decode response: %w", errUnmarshal)
	}
	if len(parsed.Results) == 0 {
		return nil, ErrNotFound
	}

	top := parsed.Results[0]
	title := strings.TrimSpace(top.Title)
	if title == "" {
		title = query
	}
	year := top.ReleaseDate
	if len(year) > 4 {
		year = year[:4]
	}
	movie := &Movie{
		Title:  title,
		Year:   year,
		Rating: formatRating(top.VoteAverage),
		Source: SourceTMDB,
	}
	if top.PosterPath != "" {
		movie.PosterURL = tmdbImageBase + top.PosterPath
	}
	return movie, nil
}
