package musicapi

import (
	"net/http"
	"time"
)

// Client talks to the audio receiver service: track search, metadata,
// audio and cover downloads.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the audio receiver service.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetTimeout overrides the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}
