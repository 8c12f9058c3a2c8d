package mediaapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/t1mm4te/MusicCircles/logger"
)

// Client talks to the media processor service: audio trimming and
// image-to-video muxing. Both operations report a bare success flag; the
// caller decides what a failure means for its flow.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the media processor service. Video muxing
// can take a while, hence the generous timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// SetTimeout overrides the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// TrimAudio uploads the audio at srcPath and stores the [start, end] cut
// returned by the service at destPath. Returns false on any failure.
func (c *Client) TrimAudio(ctx context.Context, srcPath string, start, end int, destPath string) bool {
	file, err := os.Open(srcPath)
	if err != nil {
		logger.Error("opening audio for trim failed",
			logger.String("path", srcPath), logger.ErrorField(err))
		return false
	}
	defer file.Close()

	body, contentType, err := buildMultipart(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filepath.Base(srcPath))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
		if err := w.WriteField("start", strconv.Itoa(start)); err != nil {
			return err
		}
		return w.WriteField("end", strconv.Itoa(end))
	})
	if err != nil {
		logger.Error("building trim request failed", logger.ErrorField(err))
		return false
	}

	if err := c.postToFile(ctx, "/trim_audio", contentType, body, destPath); err != nil {
		logger.Error("trim audio failed",
			logger.String("src", srcPath),
			logger.Int("start", start),
			logger.Int("end", end),
			logger.ErrorField(err))
		return false
	}

	return true
}

// CreateVideo uploads a trimmed audio file and a cover image and stores the
// muxed square video returned by the service at destPath. Returns false on
// any failure.
func (c *Client) CreateVideo(ctx context.Context, audioPath, imagePath, destPath string) bool {
	audio, err := os.Open(audioPath)
	if err != nil {
		logger.Error("opening audio for video failed",
			logger.String("path", audioPath), logger.ErrorField(err))
		return false
	}
	defer audio.Close()

	image, err := os.Open(imagePath)
	if err != nil {
		logger.Error("opening cover for video failed",
			logger.String("path", imagePath), logger.ErrorField(err))
		return false
	}
	defer image.Close()

	body, contentType, err := buildMultipart(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("audio_file", filepath.Base(audioPath))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, audio); err != nil {
			return err
		}
		part, err = w.CreateFormFile("image_file", filepath.Base(imagePath))
		if err != nil {
			return err
		}
		_, err = io.Copy(part, image)
		return err
	})
	if err != nil {
		logger.Error("building create video request failed", logger.ErrorField(err))
		return false
	}

	if err := c.postToFile(ctx, "/create_video", contentType, body, destPath); err != nil {
		logger.Error("create video failed",
			logger.String("audio", audioPath),
			logger.String("image", imagePath),
			logger.ErrorField(err))
		return false
	}

	return true
}

// buildMultipart assembles a multipart body with fill and returns the body
// along with its content type.
func buildMultipart(fill func(w *multipart.Writer) error) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := fill(writer)
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, writer.FormDataContentType(), nil
}

// postToFile POSTs body to path and streams the response into destPath.
func (c *Client) postToFile(ctx context.Context, path, contentType string, body io.Reader, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("saving output file: %w", err)
	}

	return nil
}
