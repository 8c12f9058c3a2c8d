package telegram

import (
	"context"
	"time"

	"github.com/t1mm4te/MusicCircles/core/bot"
	"github.com/t1mm4te/MusicCircles/logger"
)

// Handler consumes inbound updates. The orchestrator implements it.
type Handler interface {
	HandleMessage(ctx context.Context, msg bot.Message)
	HandleCallback(ctx context.Context, cb bot.Callback)
}

// Wire types for getUpdates.
type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type message struct {
	MessageID int        `json:"message_id"`
	From      *user      `json:"from"`
	Chat      chat       `json:"chat"`
	Text      string     `json:"text"`
	Audio     *audioFile `json:"audio"`
	Voice     *audioFile `json:"voice"`
}

// audioFile covers both the audio and voice attachment shapes.
type audioFile struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	Duration int    `json:"duration"`
}

type user struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type chat struct {
	ID int64 `json:"id"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    user     `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

const pollTimeoutSec = 30

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	payload := struct {
		Offset         int64    `json:"offset"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        pollTimeoutSec,
		AllowedUpdates: []string{"message", "callback_query"},
	}

	var updates []update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Poll runs the long-polling loop until ctx is cancelled. Updates are
// dispatched through a per-user sequencer: one user's events are handled
// strictly in arrival order, different users run concurrently.
func (c *Client) Poll(ctx context.Context, handler Handler) error {
	logger.Info("starting update polling")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			logger.Info("update polling stopped")
			return ctx.Err()
		default:
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("getUpdates failed", logger.ErrorField(err))
			time.Sleep(3 * time.Second)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			c.dispatch(ctx, handler, u)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, handler Handler, u update) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		msg := bot.Message{
			ChatID:    u.Message.Chat.ID,
			UserID:    u.Message.From.ID,
			Username:  u.Message.From.Username,
			MessageID: u.Message.MessageID,
			Text:      u.Message.Text,
			Audio:     audioAttachment(u.Message),
		}
		c.seq.enqueue(msg.UserID, func() { handler.HandleMessage(ctx, msg) })

	case u.CallbackQuery != nil:
		cb := bot.Callback{
			ID:       u.CallbackQuery.ID,
			UserID:   u.CallbackQuery.From.ID,
			Username: u.CallbackQuery.From.Username,
			Data:     u.CallbackQuery.Data,
		}
		if u.CallbackQuery.Message != nil {
			cb.ChatID = u.CallbackQuery.Message.Chat.ID
			cb.MessageID = u.CallbackQuery.Message.MessageID
		}
		c.seq.enqueue(cb.UserID, func() { handler.HandleCallback(ctx, cb) })

	default:
		logger.Debug("ignoring unsupported update", logger.Int64("updateID", u.UpdateID))
	}
}

// audioAttachment maps a message's audio or voice payload, if any.
func audioAttachment(m *message) *bot.AudioAttachment {
	att := m.Audio
	if att == nil {
		att = m.Voice
	}
	if att == nil {
		return nil
	}
	return &bot.AudioAttachment{
		FileID:      att.FileID,
		MIMEType:    att.MimeType,
		FileSize:    att.FileSize,
		DurationSec: att.Duration,
	}
}
