package bot

import (
	"context"
	"errors"

	"github.com/t1mm4te/MusicCircles/model"
)

// Message is an inbound free-text event (song name, time code, or command)
// or an audio upload when Audio is set.
type Message struct {
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	Text      string
	Audio     *AudioAttachment
}

// AudioAttachment describes an audio or voice file attached to a message.
// The file itself stays on the platform until fetched by its id.
type AudioAttachment struct {
	FileID      string
	MIMEType    string
	FileSize    int64
	DurationSec int
}

// Callback is an inbound button press.
type Callback struct {
	ID        string
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	Data      string
}

// ErrBadRequest marks a delivery failure the platform blamed on the request
// itself (wrong file, bad chat id) rather than on transport. Messenger
// implementations wrap such failures with it.
var ErrBadRequest = errors.New("bad request")

// Messenger is the messaging-platform capability the orchestrator drives.
// A nil menu means a plain text message.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, menu *model.Menu) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, menu *model.Menu) error
	AnswerCallback(ctx context.Context, callbackID string) error
	SendVideoNote(ctx context.Context, chatID int64, videoPath string) error
	DownloadFile(ctx context.Context, fileID, destPath string) error
}

// MusicService is the track search/download collaborator.
type MusicService interface {
	SearchTracks(ctx context.Context, query string) ([]model.TrackCandidate, error)
	GetTrackDuration(ctx context.Context, trackID string) (int, error)
	DownloadTrack(ctx context.Context, trackID, destDir string) (string, error)
	DownloadCover(ctx context.Context, trackID, destDir string) string
}

// MediaService is the transcoding collaborator.
type MediaService interface {
	TrimAudio(ctx context.Context, srcPath string, start, end int, destPath string) bool
	CreateVideo(ctx context.Context, audioPath, imagePath, destPath string) bool
}

// StatsService is the best-effort interaction-logging collaborator.
type StatsService interface {
	LogInteraction(ctx context.Context, userID int64, username, interactionType string) bool
}
