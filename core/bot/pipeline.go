package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/t1mm4te/MusicCircles/core/statsapi"
	"github.com/t1mm4te/MusicCircles/logger"
)

// pipelineJob is a snapshot of everything one creation run needs, taken
// under the session lock. The run itself holds no lock so the user can
// abandon it with a new search; the epoch decides whether its result is
// still wanted when it finishes.
type pipelineJob struct {
	chatID    int64
	messageID int
	userID    int64
	username  string
	epoch     uint64
	trackID   string
	// sourcePath is set when the session already holds the source audio
	// (user-uploaded file); the download stage is skipped then.
	sourcePath string
	// baseName names the run's artifact files; the track id for searched
	// tracks, a fixed tag for uploads.
	baseName string
	startSec int
	endSec   int
	workDir  string
	status   string
}

// beginPipeline prepares a creation run: posts the initial status message
// and snapshots the session. Called under the session lock.
func (o *Orchestrator) beginPipeline(ctx context.Context, sess *Session, cb Callback) *pipelineJob {
	workDir, err := o.sessions.EnsureWorkDir(sess)
	if err != nil {
		logger.Error("creating work dir failed",
			logger.Int64("userID", sess.UserID), logger.ErrorField(err))
		o.editText(ctx, cb, createFailText)
		o.sessions.Reset(sess)
		return nil
	}

	baseName := sess.TrackID
	if baseName == "" {
		baseName = "upload"
	}

	job := &pipelineJob{
		chatID:     cb.ChatID,
		messageID:  cb.MessageID,
		userID:     sess.UserID,
		username:   sess.Username,
		epoch:      sess.Epoch,
		trackID:    sess.TrackID,
		sourcePath: sess.SourceAudioPath,
		baseName:   baseName,
		startSec:   sess.WindowStartSec,
		endSec:     sess.WindowEndSec,
		workDir:    workDir,
		status:     creatingText,
	}
	sess.PipelineRunning = true

	o.editJobStatus(ctx, job, "")
	return job
}

// runCreationPipeline executes the download → trim → cover → mux → deliver
// sequence. Every stage is gated on the previous one; any failure shows a
// single generic error. Win or lose, the session is purged at the end.
func (o *Orchestrator) runCreationPipeline(ctx context.Context, job *pipelineJob) {
	defer o.finishPipeline(job)

	// Stage 1: full source audio. Uploaded files are already on disk; a
	// download failure for searched tracks is fatal to the run.
	audioPath := job.sourcePath
	if audioPath == "" {
		var err error
		audioPath, err = o.music.DownloadTrack(ctx, job.trackID, job.workDir)
		if err != nil {
			logger.Error("pipeline: track download failed",
				logger.Int64("userID", job.userID),
				logger.String("trackID", job.trackID),
				logger.ErrorField(err))
			o.editJobStatus(ctx, job, createFailText)
			return
		}
		o.recordArtifact(job, audioPath, true)
	}
	o.editJobStatus(ctx, job, "⚙️")

	// Stage 2: trim to the selected window.
	trimmedPath := filepath.Join(job.workDir, "trimmed_"+job.baseName+".mp3")
	logger.Info("pipeline: trimming audio",
		logger.Int64("userID", job.userID),
		logger.String("src", audioPath),
		logger.Int("start", job.startSec),
		logger.Int("end", job.endSec))

	if !o.media.TrimAudio(ctx, audioPath, job.startSec, job.endSec, trimmedPath) {
		logger.Warn("pipeline: audio trim failed", logger.Int64("userID", job.userID))
		o.editJobStatus(ctx, job, createFailText)
		return
	}
	o.recordArtifact(job, trimmedPath, false)
	o.editJobStatus(ctx, job, "⚙️")

	// Stage 3: cover image. Uploads carry no track id to fetch a cover
	// for; a failed download is non-fatal. Either way the bundled default
	// steps in.
	var coverPath string
	if job.trackID != "" {
		coverPath = o.music.DownloadCover(ctx, job.trackID, job.workDir)
	}
	if coverPath == "" {
		if job.trackID != "" {
			logger.Warn("pipeline: cover download failed, using default cover",
				logger.Int64("userID", job.userID),
				logger.String("trackID", job.trackID))
		}
		coverPath = o.defaultCoverPath
	} else {
		o.recordArtifact(job, coverPath, false)
	}
	o.editJobStatus(ctx, job, "⚙️")

	// Stage 4: mux audio and cover into a square video.
	videoPath := filepath.Join(job.workDir, "video_"+job.baseName+".mp4")
	if !o.media.CreateVideo(ctx, trimmedPath, coverPath, videoPath) {
		logger.Error("pipeline: video creation failed", logger.Int64("userID", job.userID))
		o.editJobStatus(ctx, job, createFailText)
		return
	}
	o.recordArtifact(job, videoPath, false)

	// Stage 5: the service said yes, but trust the disk.
	if _, err := os.Stat(videoPath); err != nil {
		logger.Error("pipeline: video file missing after creation",
			logger.Int64("userID", job.userID),
			logger.String("path", videoPath))
		o.editJobStatus(ctx, job, createFailText)
		return
	}

	o.logInteraction(job.userID, job.username, statsapi.InteractionVideoCreate)

	// Stage 6: deliver. If the session was reset while we worked, the user
	// has moved on and the video is silently dropped.
	if o.sessions.Epoch(job.userID) != job.epoch {
		logger.Info("pipeline: session reset during run, dropping video",
			logger.Int64("userID", job.userID))
		return
	}

	o.deliverVideoNote(ctx, job, videoPath)
}

// deliverVideoNote sends the finished video. Delivery errors are classified
// and logged but never produce a second user-facing error: everything the
// user needed to know was already said by the stages before.
func (o *Orchestrator) deliverVideoNote(ctx context.Context, job *pipelineJob, videoPath string) {
	logger.Info("pipeline: sending video note",
		logger.Int64("userID", job.userID), logger.Int64("chatID", job.chatID))

	err := o.messenger.SendVideoNote(ctx, job.chatID, videoPath)
	if err == nil {
		logger.Info("pipeline: video note delivered", logger.Int64("userID", job.userID))
		return
	}

	if errors.Is(err, ErrBadRequest) {
		logger.Error("pipeline: video note rejected by platform",
			logger.Int64("userID", job.userID),
			logger.Int64("chatID", job.chatID),
			logger.ErrorField(err))
	} else {
		logger.Error("pipeline: video note delivery failed",
			logger.Int64("userID", job.userID),
			logger.ErrorField(err))
	}
}

// finishPipeline purges the session after a run, whatever the outcome. When
// the session was reset mid-run its work dir is already gone; the job's own
// dir is removed again best-effort so nothing accumulates.
func (o *Orchestrator) finishPipeline(job *pipelineJob) {
	sess := o.sessions.Get(job.userID)
	sess.Lock()
	defer sess.Unlock()

	if sess.Epoch == job.epoch {
		o.sessions.Reset(sess)
		return
	}
	if err := os.RemoveAll(job.workDir); err != nil {
		logger.Warn("removing stale pipeline work dir failed",
			logger.String("dir", job.workDir), logger.ErrorField(err))
	}
}

// recordArtifact attaches a pipeline file to the session while the run is
// still current, so a reset can purge it.
func (o *Orchestrator) recordArtifact(job *pipelineJob, path string, isSource bool) {
	sess := o.sessions.Get(job.userID)
	sess.Lock()
	defer sess.Unlock()
	if sess.Epoch != job.epoch {
		return
	}
	if isSource {
		sess.SourceAudioPath = path
		return
	}
	sess.Artifacts = append(sess.Artifacts, path)
}

// editJobStatus appends a progress marker (or replaces the whole text with
// a final message) on the single status message. A run whose session was
// reset stops touching the old message: the user has moved on.
func (o *Orchestrator) editJobStatus(ctx context.Context, job *pipelineJob, update string) {
	if o.sessions.Epoch(job.userID) != job.epoch {
		return
	}
	switch update {
	case "":
		// initial status, job.status already set
	case createFailText:
		job.status = createFailText
	default:
		job.status += update
	}
	if err := o.messenger.EditText(ctx, job.chatID, job.messageID, job.status, nil); err != nil {
		logger.Warn("updating pipeline status failed",
			logger.Int64("userID", job.userID), logger.ErrorField(err))
	}
}
