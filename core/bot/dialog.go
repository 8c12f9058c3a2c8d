package bot

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/t1mm4te/MusicCircles/core/statsapi"
	"github.com/t1mm4te/MusicCircles/logger"
	"github.com/t1mm4te/MusicCircles/model"
)

// Orchestrator is the dialogue engine: it dispatches inbound events by the
// session's current state, mutates the session, calls the remote services
// and renders replies. One instance serves all users; per-user ordering is
// enforced by the session lock.
type Orchestrator struct {
	sessions  *Store
	messenger Messenger
	music     MusicService
	media     MediaService
	stats     StatsService

	defaultCoverPath string
}

// NewOrchestrator wires the dialogue engine to its collaborators.
func NewOrchestrator(sessions *Store, messenger Messenger, music MusicService,
	media MediaService, stats StatsService, defaultCoverPath string) *Orchestrator {
	return &Orchestrator{
		sessions:         sessions,
		messenger:        messenger,
		music:            music,
		media:            media,
		stats:            stats,
		defaultCoverPath: defaultCoverPath,
	}
}

// HandleMessage processes one inbound text message.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) {
	sess := o.sessions.Get(msg.UserID)
	sess.Lock()
	defer sess.Unlock()
	sess.Username = msg.Username

	if strings.HasPrefix(msg.Text, "/start") {
		o.handleStart(ctx, sess, msg)
		return
	}

	// A direct audio upload is an entry point from any state.
	if msg.Audio != nil {
		o.handleAudioUpload(ctx, sess, msg)
		return
	}

	switch sess.State {
	case StateTypingSongName:
		o.handleSearch(ctx, sess, msg)
	case StateInputTimeCode:
		o.handleTimeCode(ctx, sess, msg)
	default:
		// Free text has no meaning in button-driven states.
		logger.Debug("text ignored in current state",
			logger.Int64("userID", msg.UserID),
			logger.String("state", sess.State.String()))
	}
}

// HandleCallback processes one inbound button press.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) {
	if err := o.messenger.AnswerCallback(ctx, cb.ID); err != nil {
		logger.Warn("answering callback failed", logger.ErrorField(err))
	}

	sess := o.sessions.Get(cb.UserID)
	sess.Lock()
	sess.Username = cb.Username

	// The pipeline runs outside the session lock so the user can abandon
	// it with a new search; see runCreationPipeline.
	job := o.dispatchCallback(ctx, sess, cb)
	sess.Unlock()

	if job != nil {
		o.runCreationPipeline(ctx, job)
	}
}

func (o *Orchestrator) dispatchCallback(ctx context.Context, sess *Session, cb Callback) *pipelineJob {
	// Restart is honored in every state.
	if cb.Data == CallbackRestartSearch {
		o.sessions.Reset(sess)
		o.editText(ctx, cb, newSearchText)
		return nil
	}

	switch sess.State {
	case StateSelectingSong:
		o.handleTrackSelection(ctx, sess, cb)

	case StateChoosingOptions:
		switch cb.Data {
		case CallbackSetTimeCode:
			menu := TimeMenu(sess)
			o.editMenu(ctx, cb, menu.Text, &menu)
			sess.State = StateSelectingAction
		case CallbackCreateVideo:
			// Buttons on older menu messages stay pressable, so a second
			// create press can arrive while a run is live. One pipeline
			// per epoch.
			if sess.PipelineRunning {
				logger.Debug("create pressed while pipeline running",
					logger.Int64("userID", cb.UserID))
				return nil
			}
			return o.beginPipeline(ctx, sess, cb)
		default:
			logger.Warn("unexpected callback in choosing options",
				logger.Int64("userID", cb.UserID), logger.String("data", cb.Data))
		}

	case StateSelectingAction:
		switch cb.Data {
		case CallbackFromStart:
			sess.WindowStartSec, sess.WindowEndSec = DefaultWindow(sess.TrackDurationSec)
			menu := MainMenuWithText(sess, fromStartText)
			o.editMenu(ctx, cb, menu.Text, &menu)
			sess.State = StateChoosingOptions
		case CallbackCustomTime:
			o.editText(ctx, cb, CustomTimePrompt())
			sess.State = StateInputTimeCode
		case CallbackBackToMenu:
			menu := MainMenu(sess)
			o.editMenu(ctx, cb, menu.Text, &menu)
			sess.State = StateChoosingOptions
		default:
			logger.Warn("unexpected callback in selecting action",
				logger.Int64("userID", cb.UserID), logger.String("data", cb.Data))
		}

	default:
		logger.Debug("callback ignored in current state",
			logger.Int64("userID", cb.UserID),
			logger.String("state", sess.State.String()),
			logger.String("data", cb.Data))
	}

	return nil
}

// handleStart greets the user and drops any previous session state.
func (o *Orchestrator) handleStart(ctx context.Context, sess *Session, msg Message) {
	o.sessions.Reset(sess)
	logger.Info("user started bot", logger.Int64("userID", msg.UserID))
	o.sendText(ctx, sess, msg.ChatID, greetingText)
}

// maxUploadBytes caps direct audio uploads at 6MB.
const maxUploadBytes = 6 * 1024 * 1024

// uploadExtension maps an accepted upload MIME type to a file extension.
// Empty for anything outside the whitelist.
func uploadExtension(mimeType string) string {
	switch mimeType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav":
		return ".wav"
	default:
		return ""
	}
}

// handleAudioUpload takes a user-sent audio file as the clip source instead
// of a searched track: validate, fetch to the session work dir, apply the
// default window and jump straight to the options menu.
func (o *Orchestrator) handleAudioUpload(ctx context.Context, sess *Session, msg Message) {
	att := msg.Audio

	if att.FileSize > maxUploadBytes {
		logger.Info("upload rejected: too large",
			logger.Int64("userID", msg.UserID), logger.Int64("size", att.FileSize))
		o.sendText(ctx, sess, msg.ChatID, uploadTooBigText(att.FileSize))
		return
	}

	ext := uploadExtension(att.MIMEType)
	if ext == "" {
		logger.Info("upload rejected: unsupported type",
			logger.Int64("userID", msg.UserID), logger.String("mime", att.MIMEType))
		o.sendText(ctx, sess, msg.ChatID, uploadBadTypeText)
		return
	}

	// The upload replaces whatever the session held before.
	o.sessions.Reset(sess)

	workDir, err := o.sessions.EnsureWorkDir(sess)
	if err != nil {
		logger.Error("creating work dir for upload failed",
			logger.Int64("userID", msg.UserID), logger.ErrorField(err))
		o.sendText(ctx, sess, msg.ChatID, searchFailText)
		return
	}

	destPath := filepath.Join(workDir, att.FileID+ext)
	if err := o.messenger.DownloadFile(ctx, att.FileID, destPath); err != nil {
		logger.Error("fetching uploaded audio failed",
			logger.Int64("userID", msg.UserID),
			logger.String("fileID", att.FileID),
			logger.ErrorField(err))
		o.sendText(ctx, sess, msg.ChatID, searchFailText)
		o.sessions.Reset(sess)
		return
	}

	logger.Info("uploaded audio saved",
		logger.Int64("userID", msg.UserID),
		logger.String("path", destPath),
		logger.Int64("size", att.FileSize))

	sess.SourceAudioPath = destPath
	sess.TrackDurationSec = att.DurationSec
	sess.WindowStartSec, sess.WindowEndSec = DefaultWindow(att.DurationSec)

	o.sendText(ctx, sess, msg.ChatID, uploadSavedText)
	menu := MainMenu(sess)
	o.sendMenu(ctx, sess, msg.ChatID, menu.Text, &menu)
	sess.State = StateChoosingOptions
}

// handleSearch runs a track search. Failure and "no matches" are distinct:
// the user gets a retry message for the former, a not-found message for the
// latter, and stays in the search state either way.
func (o *Orchestrator) handleSearch(ctx context.Context, sess *Session, msg Message) {
	logger.Info("searching tracks",
		logger.Int64("userID", msg.UserID), logger.String("query", msg.Text))

	o.logInteraction(sess.UserID, sess.Username, statsapi.InteractionSearch)

	candidates, err := o.music.SearchTracks(ctx, msg.Text)
	if err != nil {
		o.sendText(ctx, sess, msg.ChatID, searchFailText)
		return
	}
	if len(candidates) == 0 {
		o.sendText(ctx, sess, msg.ChatID, notFoundText)
		return
	}

	sess.Candidates = candidates
	menu := CandidateMenu(candidates)
	o.sendMenu(ctx, sess, msg.ChatID, menu.Text, &menu)
	sess.State = StateSelectingSong
}

// handleTrackSelection fetches the chosen track's duration and applies the
// default window. A lookup failure sends the user back to the search state
// with the track fields left unset.
func (o *Orchestrator) handleTrackSelection(ctx context.Context, sess *Session, cb Callback) {
	trackID := cb.Data

	duration, err := o.music.GetTrackDuration(ctx, trackID)
	if err != nil {
		logger.Error("track duration lookup failed",
			logger.Int64("userID", cb.UserID),
			logger.String("trackID", trackID),
			logger.ErrorField(err))
		o.editText(ctx, cb, selectFailText)
		sess.Candidates = nil
		sess.State = StateTypingSongName
		return
	}

	sess.TrackID = trackID
	sess.TrackDurationSec = duration
	sess.WindowStartSec, sess.WindowEndSec = DefaultWindow(duration)
	sess.Candidates = nil

	menu := MainMenu(sess)
	o.editMenu(ctx, cb, menu.Text, &menu)
	sess.State = StateChoosingOptions
}

// handleTimeCode applies a free-text time window. Text that does not match
// the grammar never reaches the parser: the pattern gate drops it here.
func (o *Orchestrator) handleTimeCode(ctx context.Context, sess *Session, msg Message) {
	if !MatchesTimeCode(msg.Text) {
		logger.Debug("message does not match time-code grammar",
			logger.Int64("userID", msg.UserID))
		return
	}

	start, end, err := ParseWindow(msg.Text, sess.TrackDurationSec)
	if err != nil {
		logger.Info("rejected time window",
			logger.Int64("userID", msg.UserID),
			logger.String("input", msg.Text),
			logger.ErrorField(err))
		o.sendText(ctx, sess, msg.ChatID, BadWindowText(sess.TrackDurationSec))
		return
	}

	sess.WindowStartSec = start
	sess.WindowEndSec = end

	menu := MainMenuWithText(sess, WindowAppliedText(sess))
	o.sendMenu(ctx, sess, msg.ChatID, menu.Text, &menu)
	sess.State = StateChoosingOptions
}

// logInteraction records a user action in the background; failures never
// touch the user-facing flow.
func (o *Orchestrator) logInteraction(userID int64, username, interactionType string) {
	go func() {
		if !o.stats.LogInteraction(context.Background(), userID, username, interactionType) {
			logger.Warn("interaction logging failed",
				logger.Int64("userID", userID),
				logger.String("type", interactionType))
		}
	}()
}

func (o *Orchestrator) sendText(ctx context.Context, sess *Session, chatID int64, text string) {
	if err := o.messenger.SendText(ctx, chatID, text, nil); err != nil {
		logger.Error("sending message failed",
			logger.Int64("userID", sess.UserID), logger.ErrorField(err))
	}
}

func (o *Orchestrator) sendMenu(ctx context.Context, sess *Session, chatID int64, text string, menu *model.Menu) {
	if err := o.messenger.SendText(ctx, chatID, text, menu); err != nil {
		logger.Error("sending menu failed",
			logger.Int64("userID", sess.UserID), logger.ErrorField(err))
	}
}

func (o *Orchestrator) editText(ctx context.Context, cb Callback, text string) {
	if err := o.messenger.EditText(ctx, cb.ChatID, cb.MessageID, text, nil); err != nil {
		logger.Error("editing message failed",
			logger.Int64("userID", cb.UserID), logger.ErrorField(err))
	}
}

func (o *Orchestrator) editMenu(ctx context.Context, cb Callback, text string, menu *model.Menu) {
	if err := o.messenger.EditText(ctx, cb.ChatID, cb.MessageID, text, menu); err != nil {
		logger.Error("editing menu failed",
			logger.Int64("userID", cb.UserID), logger.ErrorField(err))
	}
}
