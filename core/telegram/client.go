package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/t1mm4te/MusicCircles/core/bot"
	"github.com/t1mm4te/MusicCircles/logger"
	"github.com/t1mm4te/MusicCircles/model"
)

const defaultAPIURL = "https://api.telegram.org"

// Client is a Telegram Bot API client implementing the orchestrator's
// Messenger capability plus the long-polling update loop.
type Client struct {
	apiURL  string
	fileURL string

	httpClient *http.Client
	seq        *sequencer
}

// NewClient creates a Bot API client for the given token. The timeout has
// to cover both the long-poll window and video note uploads.
func NewClient(token string) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		seq: newSequencer(),
	}
	c.SetAPIURL(defaultAPIURL, token)
	return c
}

// SetAPIURL points the client at a different Bot API server.
func (c *Client) SetAPIURL(baseURL, token string) {
	c.apiURL = fmt.Sprintf("%s/bot%s", baseURL, token)
	c.fileURL = fmt.Sprintf("%s/file/bot%s", baseURL, token)
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// call POSTs a JSON payload to a Bot API method and decodes the result.
// Platform-side 400s are wrapped with bot.ErrBadRequest so callers can
// tell them from transport trouble.
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeAPIResponse(method, resp.Body, result)
}

func decodeAPIResponse(method string, body io.Reader, result any) error {
	var envelope apiResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}

	if !envelope.OK {
		if envelope.ErrorCode == http.StatusBadRequest {
			return fmt.Errorf("%s: %s: %w", method, envelope.Description, bot.ErrBadRequest)
		}
		return fmt.Errorf("%s: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// inlineKeyboardButton and inlineKeyboardMarkup mirror the Bot API wire
// format for menus.
type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

func replyMarkup(menu *model.Menu) *inlineKeyboardMarkup {
	if menu == nil || len(menu.Buttons) == 0 {
		return nil
	}
	rows := make([][]inlineKeyboardButton, len(menu.Buttons))
	for i, row := range menu.Buttons {
		rows[i] = make([]inlineKeyboardButton, len(row))
		for j, btn := range row {
			rows[i][j] = inlineKeyboardButton{Text: btn.Label, CallbackData: btn.Data}
		}
	}
	return &inlineKeyboardMarkup{InlineKeyboard: rows}
}

// SendText sends a text message, optionally with an inline keyboard.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, menu *model.Menu) error {
	payload := struct {
		ChatID      int64                 `json:"chat_id"`
		Text        string                `json:"text"`
		ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: replyMarkup(menu),
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// EditText replaces the text (and keyboard) of an existing message.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, menu *model.Menu) error {
	payload := struct {
		ChatID      int64                 `json:"chat_id"`
		MessageID   int                   `json:"message_id"`
		Text        string                `json:"text"`
		ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: replyMarkup(menu),
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallback acknowledges a button press so the client stops spinning.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	payload := struct {
		CallbackQueryID string `json:"callback_query_id"`
	}{CallbackQueryID: callbackID}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// DownloadFile resolves a platform file id via getFile and streams the file
// contents to destPath.
func (c *Client) DownloadFile(ctx context.Context, fileID, destPath string) error {
	payload := struct {
		FileID string `json:"file_id"`
	}{FileID: fileID}

	var info struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", payload, &info); err != nil {
		return err
	}
	if info.FilePath == "" {
		return fmt.Errorf("getFile: no file_path for %s", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.fileURL+"/"+info.FilePath, nil)
	if err != nil {
		return fmt.Errorf("creating file download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("file download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("saving file: %w", err)
	}

	logger.Info("platform file downloaded",
		logger.String("fileID", fileID),
		logger.String("path", destPath),
		logger.Int64("bytes", written))
	return nil
}

// SendVideoNote uploads the file at videoPath as a round video message.
func (c *Client) SendVideoNote(ctx context.Context, chatID int64, videoPath string) error {
	file, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("opening video note: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return fmt.Errorf("building video note request: %w", err)
	}
	part, err := writer.CreateFormFile("video_note", filepath.Base(videoPath))
	if err != nil {
		return fmt.Errorf("building video note request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("reading video note: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("building video note request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/sendVideoNote", &body)
	if err != nil {
		return fmt.Errorf("creating video note request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("video note request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := decodeAPIResponse("sendVideoNote", resp.Body, nil); err != nil {
		return err
	}

	logger.Info("video note sent", logger.Int64("chatID", chatID))
	return nil
}
