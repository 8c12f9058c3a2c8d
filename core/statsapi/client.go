package statsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/t1mm4te/MusicCircles/logger"
)

// Interaction types recorded by the logging service.
const (
	InteractionSearch      = "Поиск песни"
	InteractionVideoCreate = "Создание видео"
)

// Client talks to the interaction-logging service. Every call is
// best-effort: a failure is logged and reported as false, nothing more.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the interaction-logging service.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// LogInteraction records a user action. Returns false on any failure; the
// caller must never let that alter the user-facing flow.
func (c *Client) LogInteraction(ctx context.Context, userID int64, username, interactionType string) bool {
	payload := struct {
		UserID          int64  `json:"user_id"`
		Username        string `json:"username"`
		InteractionType string `json:"interaction_type"`
	}{
		UserID:          userID,
		Username:        username,
		InteractionType: interactionType,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("encoding interaction failed", logger.ErrorField(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/log-interaction/", bytes.NewReader(data))
	if err != nil {
		logger.Error("creating interaction request failed", logger.ErrorField(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("logging interaction failed",
			logger.Int64("userID", userID), logger.ErrorField(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("logging interaction returned bad status",
			logger.Int64("userID", userID), logger.Int("status", resp.StatusCode))
		return false
	}

	logger.Info("interaction logged",
		logger.Int64("userID", userID),
		logger.String("type", interactionType))

	return true
}
