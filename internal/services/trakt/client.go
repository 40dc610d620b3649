// Package trakt fetches show and season metadata from the Trakt catalog.
// Only public endpoints are used, so a client ID is enough; no OAuth flow.
package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/config"
)

const (
	baseURL    = "https://api.trakt.tv"
	apiVersion = "2"
)

// Client handles communication with the Trakt API
type Client struct {
	clientID   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Trakt API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.TraktClientID == "" {
		return nil, fmt.Errorf("trakt client ID is required")
	}

	return &Client{
		clientID:   cfg.TraktClientID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// doRequest performs a GET request against the Trakt API
func (c *Client) doRequest(ctx context.Context, path string, result interface{}) error {
	fullURL := baseURL + path
	c.logger.WithField("url", fullURL).Debug("Making Trakt API request")

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// EpisodeInfo describes one episode of a season
type EpisodeInfo struct {
	Number  int
	Title   string
	AirDate *time.Time
}

// lookupTraktID resolves a Trakt show ID from an IMDB ID
func (c *Client) lookupTraktID(ctx context.Context, imdbID string) (int, error) {
	path := fmt.Sprintf("/search/imdb/%s?type=show", imdbID)

	var results []struct {
		Type string `json:"type"`
		Show *struct {
			IDs struct {
				Trakt int `json:"trakt"`
			} `json:"ids"`
		} `json:"show"`
	}

	if err := c.doRequest(ctx, path, &results); err != nil {
		return 0, fmt.Errorf("failed to lookup Trakt ID: %w", err)
	}

	if len(results) == 0 || results[0].Show == nil {
		return 0, fmt.Errorf("show not found in Trakt for IMDB ID %s", imdbID)
	}

	return results[0].Show.IDs.Trakt, nil
}

// FetchSeason retrieves the episode list for one season of a show
func (c *Client) FetchSeason(ctx context.Context, imdbID string, season int) ([]EpisodeInfo, error) {
	traktID, err := c.lookupTraktID(ctx, imdbID)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/shows/%d/seasons/%d?extended=full", traktID, season)

	var episodes []struct {
		Number     int        `json:"number"`
		Title      string     `json:"title"`
		FirstAired *time.Time `json:"first_aired"`
	}
	if err := c.doRequest(ctx, path, &episodes); err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}

	result := make([]EpisodeInfo, 0, len(episodes))
	for _, ep := range episodes {
		result = append(result, EpisodeInfo{
			Number:  ep.Number,
			Title:   ep.Title,
			AirDate: ep.FirstAired,
		})
	}
	return result, nil
}
