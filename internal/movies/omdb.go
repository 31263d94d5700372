package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

const omdbBaseURL = "http://www.omdbapi.com"

// OMDBClient queries the OMDB title lookup API.
type OMDBClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOMDBClient constructs an OMDBClient. An empty key yields a client
// that reports ErrNotConfigured on every lookup.
func NewOMDBClient(apiKey string) *OMDBClient {
	return &OMDBClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    omdbBaseURL,
		httpClient: &http.Client{Timeout: providerTimeout},
	}
}

type omdbResponse struct {
	Response   string `json:"Response"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	IMDBRating string `json:"imdbRating"`
	Poster     string `json:"Poster"`
}

// LookupTitle returns the exact-title match for the query.
func (c *OMDBClient) LookupTitle(ctx context.Context, title string) (*Movie, error) {
	if c == nil || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", title)
	requestURL := c.baseURL + "/?" + params.Encode()

	req, errRequest := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if errRequest != nil {
		return nil, fmt.Errorf("movies: omdb: build request: %w", errRequest)
	}

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("movies: omdb: send request: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("movies: omdb: failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("movies: omdb: unexpected status %d", resp.StatusCode)
	}

	data, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("movies: omdb: read response: %w", errRead)
	}

	var parsed omdbResponse
	if errUnmarshal := json.Unmarshal(data, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("movies: omdb: decode response: %w", errUnmarshal)
	}
	if parsed.Response != "True" {
		return nil, ErrNotFound
	}

	movieTitle := strings.TrimSpace(parsed.Title)
	if movieTitle == "" {
		movieTitle = "?"
	}
	rating := strings.TrimSpace(parsed.IMDBRating)
	if rating == "" {
		rating = "N/A"
	}
	movie := &Movie{
		Title:  movieTitle,
		Year:   parsed.Year,
		Rating: rating,
		Source: SourceOMDB,
	}
	// OMDB reports a literal N/A when no poster exists.
	if parsed.Poster != "" && parsed.Poster != "N/A" {
		movie.PosterURL = parsed.Poster
	}
	return movie, nil
}
