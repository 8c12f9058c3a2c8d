package musicapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/t1mm4te/MusicCircles/logger"
)

// DownloadTrack streams the full source audio for a track into destDir and
// returns the written file path. The body is copied chunk by chunk, never
// buffered whole in memory. Any failure is fatal for the caller's pipeline.
func (c *Client) DownloadTrack(ctx context.Context, trackID, destDir string) (string, error) {
	reqURL := fmt.Sprintf("%s/track/%s/download", c.baseURL, url.PathEscape(trackID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating track download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("track download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("track download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	filePath := filepath.Join(destDir, trackID+".mp3")

	out, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("creating audio file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("saving audio file: %w", err)
	}

	logger.Info("track downloaded",
		logger.String("trackID", trackID),
		logger.String("path", filePath),
		logger.Int64("bytes", written))

	return filePath, nil
}

// DownloadCover fetches the cover image for a track into destDir and returns
// the written file path. On any failure it returns "" so the caller can fall
// back to the default cover; a missing cover never aborts anything.
func (c *Client) DownloadCover(ctx context.Context, trackID, destDir string) string {
	reqURL := fmt.Sprintf("%s/track/%s/cover", c.baseURL, url.PathEscape(trackID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		logger.Warn("creating cover request failed",
			logger.String("trackID", trackID), logger.ErrorField(err))
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("cover download request failed",
			logger.String("trackID", trackID), logger.ErrorField(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("cover download returned bad status",
			logger.String("trackID", trackID), logger.Int("status", resp.StatusCode))
		return ""
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		logger.Warn("creating cover dir failed", logger.ErrorField(err))
		return ""
	}

	filePath := filepath.Join(destDir, trackID+".jpg")

	out, err := os.Create(filePath)
	if err != nil {
		logger.Warn("creating cover file failed", logger.ErrorField(err))
		return ""
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		logger.Warn("saving cover file failed", logger.ErrorField(err))
		os.Remove(filePath)
		return ""
	}

	return filePath
}
