package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t1mm4te/MusicCircles/model"
)

type sentMessage struct {
	chatID int64
	text   string
	menu   *model.Menu
}

type fakeMessenger struct {
	sent       []sentMessage
	edits      []sentMessage
	videoNotes []string
	answered   []string
	downloads  []string

	videoNoteErr error
	downloadErr  error
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, menu *model.Menu) error {
	m.sent = append(m.sent, sentMessage{chatID, text, menu})
	return nil
}

func (m *fakeMessenger) EditText(_ context.Context, chatID int64, _ int, text string, menu *model.Menu) error {
	m.edits = append(m.edits, sentMessage{chatID, text, menu})
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, callbackID string) error {
	m.answered = append(m.answered, callbackID)
	return nil
}

func (m *fakeMessenger) SendVideoNote(_ context.Context, _ int64, videoPath string) error {
	if m.videoNoteErr != nil {
		return m.videoNoteErr
	}
	m.videoNotes = append(m.videoNotes, videoPath)
	return nil
}

func (m *fakeMessenger) DownloadFile(_ context.Context, fileID, destPath string) error {
	if m.downloadErr != nil {
		return m.downloadErr
	}
	m.downloads = append(m.downloads, fileID)
	return os.WriteFile(destPath, []byte("uploaded audio"), 0644)
}

func (m *fakeMessenger) lastText() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].text
}

func (m *fakeMessenger) lastEdit() string {
	if len(m.edits) == 0 {
		return ""
	}
	return m.edits[len(m.edits)-1].text
}

type fakeMusic struct {
	candidates []model.TrackCandidate
	searchErr  error

	duration    int
	durationErr error

	downloadErr   error
	downloadCalls int
	coverFails    bool
	coverCalls    int
}

func (f *fakeMusic) SearchTracks(_ context.Context, _ string) ([]model.TrackCandidate, error) {
	return f.candidates, f.searchErr
}

func (f *fakeMusic) GetTrackDuration(_ context.Context, _ string) (int, error) {
	return f.duration, f.durationErr
}

func (f *fakeMusic) DownloadTrack(_ context.Context, trackID, destDir string) (string, error) {
	f.downloadCalls++
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := filepath.Join(destDir, trackID+".mp3")
	return path, os.WriteFile(path, []byte("audio"), 0644)
}

func (f *fakeMusic) DownloadCover(_ context.Context, trackID, destDir string) string {
	f.coverCalls++
	if f.coverFails {
		return ""
	}
	path := filepath.Join(destDir, trackID+".jpg")
	if err := os.WriteFile(path, []byte("cover"), 0644); err != nil {
		return ""
	}
	return path
}

type fakeMedia struct {
	mu         sync.Mutex
	trimFails  bool
	videoFails bool
	trimCalls  int
	trimSrc    string
	coverUsed  string

	// trimStarted and trimGate let a test hold a pipeline open mid-run.
	trimStarted chan struct{}
	trimGate    chan struct{}
}

func (f *fakeMedia) TrimAudio(_ context.Context, srcPath string, _, _ int, destPath string) bool {
	f.mu.Lock()
	f.trimCalls++
	f.trimSrc = srcPath
	fails := f.trimFails
	f.mu.Unlock()

	if f.trimStarted != nil {
		f.trimStarted <- struct{}{}
	}
	if f.trimGate != nil {
		<-f.trimGate
	}
	if fails {
		return false
	}
	return os.WriteFile(destPath, []byte("trimmed"), 0644) == nil
}

func (f *fakeMedia) CreateVideo(_ context.Context, _, imagePath, destPath string) bool {
	f.mu.Lock()
	f.coverUsed = imagePath
	fails := f.videoFails
	f.mu.Unlock()
	if fails {
		return false
	}
	return os.WriteFile(destPath, []byte("video"), 0644) == nil
}

func (f *fakeMedia) trims() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trimCalls
}

func (f *fakeMedia) lastCover() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coverUsed
}

type fakeStats struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeStats) LogInteraction(_ context.Context, _ int64, _, interactionType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, interactionType)
	return true
}

func (f *fakeStats) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type testEnv struct {
	orch      *Orchestrator
	store     *Store
	baseDir   string
	messenger *fakeMessenger
	music     *fakeMusic
	media     *fakeMedia
	stats     *fakeStats
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	baseDir := t.TempDir()

	coverPath := filepath.Join(baseDir, "default_cover.jpg")
	require.NoError(t, os.WriteFile(coverPath, []byte("default"), 0644))

	messenger := &fakeMessenger{}
	music := &fakeMusic{
		candidates: []model.TrackCandidate{
			{ID: "101", Title: "Song A", Artists: "Artist A", Duration: 200},
			{ID: "202", Title: "Song B", Artists: "Artist B", Duration: 95},
		},
		duration: 200,
	}
	media := &fakeMedia{}
	stats := &fakeStats{}
	store := NewStore(baseDir)

	return &testEnv{
		orch:      NewOrchestrator(store, messenger, music, media, stats, coverPath),
		store:     store,
		baseDir:   baseDir,
		messenger: messenger,
		music:     music,
		media:     media,
		stats:     stats,
	}
}

func (e *testEnv) message(userID int64, text string) Message {
	return Message{ChatID: userID, UserID: userID, Username: "tester", Text: text}
}

func (e *testEnv) callback(userID int64, data string) Callback {
	return Callback{ID: "cb", ChatID: userID, UserID: userID, Username: "tester", MessageID: 10, Data: data}
}

// selectTrack walks a user from search through selection into the options
// menu.
func (e *testEnv) selectTrack(t *testing.T, userID int64) *Session {
	t.Helper()
	ctx := context.Background()
	e.orch.HandleMessage(ctx, e.message(userID, "some song"))
	e.orch.HandleCallback(ctx, e.callback(userID, "101"))

	sess := e.store.Get(userID)
	require.Equal(t, StateChoosingOptions, sess.State)
	return sess
}

func TestStartGreetsAndResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.selectTrack(t, 1)
	env.orch.HandleMessage(ctx, env.message(1, "/start"))

	assert.Equal(t, StateTypingSongName, sess.State)
	assert.Empty(t, sess.TrackID)
	assert.Equal(t, greetingText, env.messenger.lastText())
}

func TestSearchThenSelect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.orch.HandleMessage(ctx, env.message(1, "some song"))

	sess := env.store.Get(1)
	assert.Equal(t, StateSelectingSong, sess.State)
	require.Len(t, sess.Candidates, 2)

	last := env.messenger.sent[len(env.messenger.sent)-1]
	require.NotNil(t, last.menu)
	assert.Contains(t, last.text, "Song A")
	assert.Contains(t, last.text, "Song B")

	env.orch.HandleCallback(ctx, env.callback(1, "101"))

	assert.Equal(t, StateChoosingOptions, sess.State)
	assert.Equal(t, "101", sess.TrackID)
	assert.Equal(t, 200, sess.TrackDurationSec)
	assert.Equal(t, 0, sess.WindowStartSec)
	assert.Equal(t, 60, sess.WindowEndSec)
	assert.Nil(t, sess.Candidates)
}

func TestSearchFailureVersusNoMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.music.searchErr = errors.New("boom")
	env.orch.HandleMessage(ctx, env.message(1, "some song"))
	assert.Equal(t, searchFailText, env.messenger.lastText())
	assert.Equal(t, StateTypingSongName, env.store.Get(1).State)

	env.music.searchErr = nil
	env.music.candidates = nil
	env.orch.HandleMessage(ctx, env.message(1, "some song"))
	assert.Equal(t, notFoundText, env.messenger.lastText())
	assert.Equal(t, StateTypingSongName, env.store.Get(1).State)
}

func TestSearchLogsInteraction(t *testing.T) {
	env := newTestEnv(t)

	env.orch.HandleMessage(context.Background(), env.message(1, "some song"))

	assert.Eventually(t, func() bool { return env.stats.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestDurationLookupFailureReturnsToSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.orch.HandleMessage(ctx, env.message(1, "some song"))
	env.music.durationErr = errors.New("boom")
	env.orch.HandleCallback(ctx, env.callback(1, "101"))

	sess := env.store.Get(1)
	assert.Equal(t, StateTypingSongName, sess.State)
	assert.Empty(t, sess.TrackID)
	assert.Zero(t, sess.TrackDurationSec)
	assert.Equal(t, selectFailText, env.messenger.lastEdit())
}

func TestCustomTimeWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackSetTimeCode))
	assert.Equal(t, StateSelectingAction, sess.State)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCustomTime))
	assert.Equal(t, StateInputTimeCode, sess.State)
	assert.Equal(t, customTimeText, env.messenger.lastEdit())

	env.orch.HandleMessage(ctx, env.message(1, "10 40"))
	assert.Equal(t, StateChoosingOptions, sess.State)
	assert.Equal(t, 10, sess.WindowStartSec)
	assert.Equal(t, 40, sess.WindowEndSec)
	assert.Contains(t, env.messenger.lastText(), "с 10с по 40с")
}

func TestInvalidWindowStaysInTimeInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackSetTimeCode))
	env.orch.HandleCallback(ctx, env.callback(1, CallbackCustomTime))

	// Grammar-shaped but out of range: corrective prompt, state unchanged.
	env.orch.HandleMessage(ctx, env.message(1, "40 10"))
	assert.Equal(t, StateInputTimeCode, sess.State)
	assert.Equal(t, BadWindowText(200), env.messenger.lastText())
	assert.Equal(t, 0, sess.WindowStartSec)
	assert.Equal(t, 60, sess.WindowEndSec)

	// Text outside the grammar is silently ignored.
	before := len(env.messenger.sent)
	env.orch.HandleMessage(ctx, env.message(1, "what?"))
	assert.Equal(t, StateInputTimeCode, sess.State)
	assert.Len(t, env.messenger.sent, before)
}

func TestFromStartAndBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackSetTimeCode))
	env.orch.HandleCallback(ctx, env.callback(1, CallbackCustomTime))
	env.orch.HandleMessage(ctx, env.message(1, "30 90"))
	require.Equal(t, 30, sess.WindowStartSec)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackSetTimeCode))
	env.orch.HandleCallback(ctx, env.callback(1, CallbackFromStart))

	assert.Equal(t, StateChoosingOptions, sess.State)
	assert.Equal(t, 0, sess.WindowStartSec)
	assert.Equal(t, 60, sess.WindowEndSec)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackSetTimeCode))
	env.orch.HandleCallback(ctx, env.callback(1, CallbackBackToMenu))
	assert.Equal(t, StateChoosingOptions, sess.State)
}

func TestRestartHonoredInEveryState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackRestartSearch))

	assert.Equal(t, StateTypingSongName, sess.State)
	assert.Empty(t, sess.TrackID)
	assert.Equal(t, newSearchText, env.messenger.lastEdit())
}

func TestCreationPipelineDeliversVideo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	require.Len(t, env.messenger.videoNotes, 1)
	assert.Contains(t, env.messenger.videoNotes[0], "video_101.mp4")

	// The run ends with a full session purge.
	assert.Equal(t, StateTypingSongName, sess.State)
	assert.Empty(t, sess.WorkDir)
	entries, err := os.ReadDir(env.baseDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, entry.IsDir(), "leftover work dir %s", entry.Name())
	}
}

func TestCreationPipelineTrimFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)
	env.media.trimFails = true

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	// Exactly one generic failure message, no video.
	failures := 0
	for _, edit := range env.messenger.edits {
		if edit.text == createFailText {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Empty(t, env.messenger.videoNotes)

	// Session fully reset, nothing left on disk.
	assert.Equal(t, StateTypingSongName, sess.State)
	entries, err := os.ReadDir(env.baseDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, entry.IsDir(), "leftover work dir %s", entry.Name())
	}
}

func TestCreationPipelineUsesDefaultCover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.selectTrack(t, 1)
	env.music.coverFails = true

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	require.Len(t, env.messenger.videoNotes, 1)
	assert.Equal(t, env.orch.defaultCoverPath, env.media.lastCover())
}

func TestCreationPipelineVideoFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.selectTrack(t, 1)
	env.media.videoFails = true

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	assert.Empty(t, env.messenger.videoNotes)
	assert.Equal(t, createFailText, env.messenger.lastEdit())
}

func TestStalePipelineDropsVideo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)

	// Snapshot a job, then reset the session as a new search would. The
	// work dir is detached first so the run can finish its stages and hit
	// the delivery-time epoch check.
	sess.Lock()
	job := env.orch.beginPipeline(ctx, sess, env.callback(1, CallbackCreateVideo))
	require.NotNil(t, job)
	sess.WorkDir = ""
	env.store.Reset(sess)
	sess.Unlock()

	env.orch.runCreationPipeline(ctx, job)

	// The finished video is dropped and the job's dir cleaned up.
	assert.Empty(t, env.messenger.videoNotes)
	assert.NotEqual(t, createFailText, env.messenger.lastEdit())
	assert.NoDirExists(t, job.workDir)
	assert.Nil(t, sess.Artifacts)
}

func TestSecondCreatePressIgnoredWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.selectTrack(t, 1)

	env.media.trimStarted = make(chan struct{}, 2)
	env.media.trimGate = make(chan struct{})

	done := make(chan struct{})
	go func() {
		env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))
		close(done)
	}()
	<-env.media.trimStarted

	// A second press from a still-live older menu message while the run
	// is in flight must not start another pipeline.
	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	close(env.media.trimGate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never finished")
	}

	assert.Equal(t, 1, env.media.trims())
	assert.Len(t, env.messenger.videoNotes, 1)
}

func TestAudioUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg := env.message(1, "")
	msg.Audio = &AudioAttachment{
		FileID:      "file-7",
		MIMEType:    "audio/mpeg",
		FileSize:    1024,
		DurationSec: 90,
	}
	env.orch.HandleMessage(ctx, msg)

	sess := env.store.Get(1)
	assert.Equal(t, StateChoosingOptions, sess.State)
	assert.Empty(t, sess.TrackID)
	assert.Equal(t, 90, sess.TrackDurationSec)
	assert.Equal(t, 0, sess.WindowStartSec)
	assert.Equal(t, 60, sess.WindowEndSec)
	require.NotEmpty(t, sess.SourceAudioPath)
	assert.FileExists(t, sess.SourceAudioPath)

	assert.Equal(t, []string{"file-7"}, env.messenger.downloads)
	require.GreaterOrEqual(t, len(env.messenger.sent), 2)
	assert.Equal(t, uploadSavedText, env.messenger.sent[len(env.messenger.sent)-2].text)
	assert.Equal(t, chooseOptionText, env.messenger.lastText())
}

func TestAudioUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tooBig := env.message(1, "")
	tooBig.Audio = &AudioAttachment{
		FileID:      "file-7",
		MIMEType:    "audio/mpeg",
		FileSize:    7 * 1024 * 1024,
		DurationSec: 90,
	}
	env.orch.HandleMessage(ctx, tooBig)
	assert.Equal(t, uploadTooBigText(tooBig.Audio.FileSize), env.messenger.lastText())
	assert.Equal(t, StateTypingSongName, env.store.Get(1).State)

	badType := env.message(1, "")
	badType.Audio = &AudioAttachment{
		FileID:      "file-8",
		MIMEType:    "audio/flac",
		FileSize:    1024,
		DurationSec: 90,
	}
	env.orch.HandleMessage(ctx, badType)
	assert.Equal(t, uploadBadTypeText, env.messenger.lastText())
	assert.Empty(t, env.messenger.downloads)
}

func TestCreationPipelineFromUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg := env.message(1, "")
	msg.Audio = &AudioAttachment{
		FileID:      "file-7",
		MIMEType:    "audio/ogg",
		FileSize:    1024,
		DurationSec: 90,
	}
	env.orch.HandleMessage(ctx, msg)
	uploadedPath := env.store.Get(1).SourceAudioPath

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	// The uploaded file is the trim source; nothing is fetched from the
	// track service and the bundled default cover is used.
	require.Len(t, env.messenger.videoNotes, 1)
	assert.Contains(t, env.messenger.videoNotes[0], "video_upload.mp4")
	env.media.mu.Lock()
	trimSrc := env.media.trimSrc
	env.media.mu.Unlock()
	assert.Equal(t, uploadedPath, trimSrc)
	assert.Zero(t, env.music.downloadCalls)
	assert.Zero(t, env.music.coverCalls)
	assert.Equal(t, env.orch.defaultCoverPath, env.media.lastCover())
}

func TestStalePipelineLeavesStatusAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)
	env.media.trimFails = true

	sess.Lock()
	job := env.orch.beginPipeline(ctx, sess, env.callback(1, CallbackCreateVideo))
	require.NotNil(t, job)
	sess.WorkDir = ""
	env.store.Reset(sess)
	sess.Unlock()

	editsBefore := len(env.messenger.edits)
	env.orch.runCreationPipeline(ctx, job)

	// Neither progress markers nor the failure text reach the abandoned
	// status message.
	assert.Len(t, env.messenger.edits, editsBefore)
}

func TestDeliveryBadRequestIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.selectTrack(t, 1)
	env.messenger.videoNoteErr = ErrBadRequest

	env.orch.HandleCallback(ctx, env.callback(1, CallbackCreateVideo))

	// Delivery failure after a successful build produces no extra
	// user-facing error.
	assert.NotEqual(t, createFailText, env.messenger.lastEdit())
	assert.Equal(t, StateTypingSongName, sess.State)
}
