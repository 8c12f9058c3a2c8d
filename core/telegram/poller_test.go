package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t1mm4te/MusicCircles/core/bot"
)

type recordingHandler struct {
	messages  chan bot.Message
	callbacks chan bot.Callback
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages:  make(chan bot.Message, 8),
		callbacks: make(chan bot.Callback, 8),
	}
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg bot.Message) {
	h.messages <- msg
}

func (h *recordingHandler) HandleCallback(_ context.Context, cb bot.Callback) {
	h.callbacks <- cb
}

func TestPollDispatchesUpdates(t *testing.T) {
	var calls atomic.Int64
	var secondOffset atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Offset int64 `json:"offset"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if calls.Add(1) == 1 {
			w.Write([]byte(`{"ok": true, "result": [
				{"update_id": 5, "message": {"message_id": 1,
					"from": {"id": 42, "username": "tester"},
					"chat": {"id": 42}, "text": "hello"}},
				{"update_id": 6, "callback_query": {"id": "cb-1",
					"from": {"id": 42, "username": "tester"},
					"message": {"message_id": 2, "chat": {"id": 42}},
					"data": "create_video"}},
				{"update_id": 7, "message": {"message_id": 3,
					"from": {"id": 42, "username": "tester"},
					"chat": {"id": 42},
					"voice": {"file_id": "v-1", "mime_type": "audio/ogg",
						"file_size": 2048, "duration": 12}}}
			]}`))
			return
		}
		secondOffset.Store(payload.Offset)
		w.Write([]byte(`{"ok": true, "result": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-token")
	client.SetAPIURL(srv.URL, "test-token")

	handler := newRecordingHandler()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Poll(ctx, handler)
		close(done)
	}()

	select {
	case msg := <-handler.messages:
		assert.Equal(t, int64(42), msg.ChatID)
		assert.Equal(t, int64(42), msg.UserID)
		assert.Equal(t, "tester", msg.Username)
		assert.Equal(t, "hello", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("message update never dispatched")
	}

	select {
	case cb := <-handler.callbacks:
		assert.Equal(t, "cb-1", cb.ID)
		assert.Equal(t, int64(42), cb.ChatID)
		assert.Equal(t, 2, cb.MessageID)
		assert.Equal(t, "create_video", cb.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("callback update never dispatched")
	}

	select {
	case msg := <-handler.messages:
		require.NotNil(t, msg.Audio)
		assert.Equal(t, "v-1", msg.Audio.FileID)
		assert.Equal(t, "audio/ogg", msg.Audio.MIMEType)
		assert.Equal(t, int64(2048), msg.Audio.FileSize)
		assert.Equal(t, 12, msg.Audio.DurationSec)
	case <-time.After(2 * time.Second):
		t.Fatal("voice update never dispatched")
	}

	// The offset must advance past the last consumed update.
	assert.Eventually(t, func() bool { return secondOffset.Load() == 8 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop on cancel")
	}
}

func TestPollStopsImmediatelyOnCancelledContext(t *testing.T) {
	client := NewClient("test-token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Poll(ctx, newRecordingHandler())
	assert.ErrorIs(t, err, context.Canceled)
}
