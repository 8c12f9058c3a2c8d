package musicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/t1mm4te/MusicCircles/logger"
	"github.com/t1mm4te/MusicCircles/model"
)

// SearchTracks looks up tracks by name. An empty slice is a valid result
// meaning "no matches" and is distinct from an error.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]model.TrackCandidate, error) {
	params := url.Values{}
	params.Set("query", query)

	reqURL := fmt.Sprintf("%s/search/?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("track search request failed", logger.ErrorField(err))
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("track search returned bad status", logger.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var result struct {
		Results []struct {
			ID         int64    `json:"id"`
			Title      string   `json:"title"`
			Artists    []string `json:"artists"`
			DurationMS int      `json:"duration_ms"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Error("track search response decode failed", logger.ErrorField(err))
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	candidates := make([]model.TrackCandidate, len(result.Results))
	for i, row := range result.Results {
		candidates[i] = model.TrackCandidate{
			ID:       strconv.FormatInt(row.ID, 10),
			Title:    row.Title,
			Artists:  strings.Join(row.Artists, ", "),
			Duration: row.DurationMS / 1000,
		}
	}

	logger.Info("track search finished",
		logger.String("query", query),
		logger.Int("found", len(candidates)))

	return candidates, nil
}

// GetTrackDuration fetches track metadata and returns its duration in
// seconds. The service reports milliseconds.
func (c *Client) GetTrackDuration(ctx context.Context, trackID string) (int, error) {
	reqURL := fmt.Sprintf("%s/track/%s/info", c.baseURL, url.PathEscape(trackID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating track info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("track info request failed",
			logger.String("trackID", trackID), logger.ErrorField(err))
		return 0, fmt.Errorf("track info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("track info returned bad status",
			logger.String("trackID", trackID), logger.Int("status", resp.StatusCode))
		return 0, fmt.Errorf("track info returned status %d", resp.StatusCode)
	}

	var result struct {
		Duration *int `json:"duration"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Error("track info response decode failed",
			logger.String("trackID", trackID), logger.ErrorField(err))
		return 0, fmt.Errorf("decoding track info response: %w", err)
	}

	if result.Duration == nil {
		return 0, fmt.Errorf("track info response lacks duration field")
	}

	return *result.Duration / 1000, nil
}
