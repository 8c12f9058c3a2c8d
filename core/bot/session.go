package bot

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/t1mm4te/MusicCircles/logger"
	"github.com/t1mm4te/MusicCircles/model"
)

// Session is the per-user conversational state plus in-progress selections
// and artifact files. A session is owned by exactly one user and never
// aliased across users.
type Session struct {
	UserID   int64
	Username string

	State State

	TrackID          string
	SourceAudioPath  string
	TrackDurationSec int
	WindowStartSec   int
	WindowEndSec     int

	// Candidates live only between a search and the selection step.
	Candidates []model.TrackCandidate

	// WorkDir is this session's private artifact directory; every file the
	// creation pipeline produces goes under it. Empty until first needed.
	WorkDir string
	// Artifacts are the ephemeral files created during the pipeline, owned
	// by the session until the next reset.
	Artifacts []string

	// Epoch increments on every reset. Pipelines capture it at start and
	// deliver results only while it still matches, so a stale run that
	// finishes after the user moved on becomes a no-op.
	Epoch uint64

	// PipelineRunning is set while a creation run for this epoch is in
	// flight. Further create presses are ignored until it clears; a reset
	// clears it together with everything else.
	PipelineRunning bool

	mu sync.Mutex
}

// Lock serializes event handling for this user.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-user lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Store holds one Session per user. All methods are safe for concurrent use;
// there is no persistence, so a session absent from the map is simply a
// fresh user.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	baseDir  string
}

// NewStore creates a session store whose work dirs live under baseDir.
func NewStore(baseDir string) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		baseDir:  baseDir,
	}
}

// Get returns the user's session, creating a fresh one on first touch.
func (st *Store) Get(userID int64) *Session {
	st.mu.RLock()
	sess, ok := st.sessions[userID]
	st.mu.RUnlock()
	if ok {
		return sess
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.sessions[userID]; ok {
		return sess
	}
	sess = &Session{
		UserID: userID,
		State:  StateTypingSongName,
	}
	st.sessions[userID] = sess
	return sess
}

// Count reports the number of active sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Epoch returns the current epoch of the user's session, or 0 for an
// unknown user.
func (st *Store) Epoch(userID int64) uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if sess, ok := st.sessions[userID]; ok {
		return sess.Epoch
	}
	return 0
}

// EnsureWorkDir creates and returns the session's private artifact
// directory. The uuid suffix keeps concurrent sessions for the same track
// from colliding on file paths. Caller must hold the session lock.
func (st *Store) EnsureWorkDir(sess *Session) (string, error) {
	if sess.WorkDir != "" {
		return sess.WorkDir, nil
	}
	dir := filepath.Join(st.baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	sess.WorkDir = dir
	return dir, nil
}

// Reset clears the session back to an empty TypingSongName state and deletes
// every artifact file it owned. Idempotent: resetting an already-empty
// session is a no-op and never fails. Caller must hold the session lock.
func (st *Store) Reset(sess *Session) {
	for _, path := range sess.Artifacts {
		removeIfExists(sess.UserID, path)
	}
	removeIfExists(sess.UserID, sess.SourceAudioPath)
	if sess.WorkDir != "" {
		if err := os.RemoveAll(sess.WorkDir); err != nil {
			logger.Warn("removing session work dir failed",
				logger.Int64("userID", sess.UserID),
				logger.String("dir", sess.WorkDir),
				logger.ErrorField(err))
		}
	}

	sess.State = StateTypingSongName
	sess.TrackID = ""
	sess.SourceAudioPath = ""
	sess.TrackDurationSec = 0
	sess.WindowStartSec = 0
	sess.WindowEndSec = 0
	sess.Candidates = nil
	sess.WorkDir = ""
	sess.Artifacts = nil
	sess.PipelineRunning = false
	sess.Epoch++

	logger.Info("session reset", logger.Int64("userID", sess.UserID))
}

func removeIfExists(userID int64, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("removing session file failed",
				logger.Int64("userID", userID),
				logger.String("path", path),
				logger.ErrorField(err))
		}
		return
	}
	logger.Info("session file deleted",
		logger.Int64("userID", userID), logger.String("path", path))
}
