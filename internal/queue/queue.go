package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mediavault/internal/database/models"
	"mediavault/internal/files"
	"mediavault/internal/hls"
	"mediavault/internal/media"
	"mediavault/internal/metrics"
)

// ErrNotCancellable is returned when cancelling a job that already left the
// pending state. A running encoder process is not killed.
var ErrNotCancellable = errors.New("only pending jobs can be cancelled")

// transcodeQuality is the fixed output profile: single 720p rendition.
const transcodeQuality = "720p"

// Session is a running encode as seen by the queue worker.
type Session interface {
	Progress() <-chan media.EncodeProgress
	Wait() error
}

// Encoder starts HLS encodes. Satisfied by the adapter over
// *media.Encoder; tests inject fakes.
type Encoder interface {
	EncodeHLS(ctx context.Context, opts media.EncodeOptions) (Session, error)
}

type ffmpegEncoder struct {
	encoder *media.Encoder
}

// NewFFmpegEncoder adapts the media encoder to the queue's Encoder.
func NewFFmpegEncoder(encoder *media.Encoder) Encoder {
	return ffmpegEncoder{encoder: encoder}
}

func (f ffmpegEncoder) EncodeHLS(ctx context.Context, opts media.EncodeOptions) (Session, error) {
	return f.encoder.EncodeHLS(ctx, opts)
}

// Transcoder is the queue handle exposed to request handlers; tests can
// inject a fake.
type Transcoder interface {
	Enqueue(ctx context.Context, fileID string) (*models.TranscodeJob, error)
	Job(ctx context.Context, id string) (*models.TranscodeJob, error)
	Active(ctx context.Context, fileID string) (*models.TranscodeJob, error)
	Cancel(ctx context.Context, id string) error
}

// Config tunes the queue worker.
type Config struct {
	// HLSDir is the root under which per-file stream trees live.
	HLSDir string
	// EncodeTimeout bounds one encoder invocation; on expiry the process
	// is killed and the job fails. Zero means the 2 hour default.
	EncodeTimeout time.Duration
}

// Queue is a single-worker FIFO job runner: one encoder process runs at a
// time system-wide, jobs strictly in creation order.
type Queue struct {
	logger   zerolog.Logger
	store    JobStore
	fileStr  files.Store
	resolver *files.Resolver
	encoder  Encoder
	config   Config

	mu      sync.Mutex
	running bool
}

func New(store JobStore, fileStore files.Store, resolver *files.Resolver, encoder Encoder, config Config) *Queue {
	if config.EncodeTimeout == 0 {
		config.EncodeTimeout = 2 * time.Hour
	}

	return &Queue{
		logger:   log.With().Str("module", "queue").Logger(),
		store:    store,
		fileStr:  fileStore,
		resolver: resolver,
		encoder:  encoder,
		config:   config,
	}
}

// Enqueue creates a pending job for a file and kicks the worker. When a
// non-terminal job already exists it is returned unchanged, so duplicate
// concurrent encodes of the same source are impossible.
func (q *Queue) Enqueue(ctx context.Context, fileID string) (*models.TranscodeJob, error) {
	if existing, err := q.store.FindActive(ctx, fileID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	job := &models.TranscodeJob{
		ID:         uuid.New().String(),
		FileID:     fileID,
		Status:     models.JobStatusPending,
		OutputPath: path.Join("hls", fileID),
	}
	if err := q.store.Create(ctx, job); err != nil {
		return nil, err
	}

	q.updateDepth(ctx)
	q.logger.Info().Str("job", job.ID).Str("file", fileID).Msg("transcode queued")
	q.kick()

	return job, nil
}

// Job returns a job row by id.
func (q *Queue) Job(ctx context.Context, id string) (*models.TranscodeJob, error) {
	return q.store.Get(ctx, id)
}

// Active returns the non-terminal job for a file, or nil.
func (q *Queue) Active(ctx context.Context, fileID string) (*models.TranscodeJob, error) {
	return q.store.FindActive(ctx, fileID)
}

// Cancel fails a job while it is still pending. A job already processing
// cannot be cancelled; its encoder process keeps running.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	cancelled, err := q.store.CancelPending(ctx, id)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotCancellable
	}

	q.updateDepth(ctx)
	return nil
}

// kick starts the worker loop unless one is already running.
func (q *Queue) kick() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true

	go q.work()
}

// work drains the pending queue oldest-first. A job failure never stops the
// loop. On drain the running flag is cleared, with a re-check closing the
// race against a concurrent enqueue.
func (q *Queue) work() {
	ctx := context.Background()

	for {
		job, err := q.store.OldestPending(ctx)
		if err != nil {
			q.logger.Err(err).Msg("unable to query pending jobs")
		}

		if job == nil {
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()

			// an enqueue may have landed between the query and the flag
			if job, _ := q.store.OldestPending(ctx); job == nil {
				return
			}

			q.mu.Lock()
			if q.running {
				q.mu.Unlock()
				return
			}
			q.running = true
			q.mu.Unlock()
			continue
		}

		q.process(ctx, job)
		q.updateDepth(ctx)
	}
}

func (q *Queue) process(ctx context.Context, job *models.TranscodeJob) {
	logger := q.logger.With().Str("job", job.ID).Str("file", job.FileID).Logger()

	if err := q.store.SetStatus(ctx, job.ID, models.JobStatusProcessing); err != nil {
		// leaving the job pending would make the worker re-select it forever
		logger.Err(err).Msg("unable to mark job processing")
		q.fail(ctx, job.ID, fmt.Sprintf("unable to mark job processing: %v", err))
		return
	}

	file, err := q.fileStr.Get(ctx, job.FileID)
	if err != nil {
		logger.Warn().Err(err).Msg("source file missing, failing job")
		q.fail(ctx, job.ID, fmt.Sprintf("source file unavailable: %v", err))
		return
	}

	inputPath, err := q.resolver.Resolve(file.Path)
	if err != nil {
		q.fail(ctx, job.ID, err.Error())
		return
	}

	outputDir := filepath.Join(q.config.HLSDir, job.FileID, transcodeQuality)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		q.fail(ctx, job.ID, fmt.Sprintf("unable to create output dir: %v", err))
		return
	}

	encodeCtx, cancel := context.WithTimeout(ctx, q.config.EncodeTimeout)
	defer cancel()

	session, err := q.encoder.EncodeHLS(encodeCtx, media.EncodeOptions{
		InputPath:      inputPath,
		OutputDir:      outputDir,
		PlaylistName:   hls.MediaPlaylistName,
		Height:         720,
		VideoBitrate:   "2500k",
		AudioBitrate:   "128k",
		SegmentSeconds: 6,
	})
	if err != nil {
		q.fail(ctx, job.ID, fmt.Sprintf("unable to start encoder: %v", err))
		return
	}

	metrics.ActiveEncodes.Set(1)
	defer metrics.ActiveEncodes.Set(0)

	logger.Info().Msg("encode started")

	for event := range session.Progress() {
		// progress persistence is best-effort telemetry
		if err := q.store.SetProgress(ctx, job.ID, int(event.Percent)); err != nil {
			logger.Debug().Err(err).Msg("unable to persist progress")
		}
	}

	if err := session.Wait(); err != nil {
		logger.Warn().Err(err).Msg("encode failed")
		q.fail(ctx, job.ID, err.Error())
		return
	}

	if err := hls.WriteMaster(filepath.Join(q.config.HLSDir, job.FileID)); err != nil {
		q.fail(ctx, job.ID, fmt.Sprintf("unable to write master playlist: %v", err))
		return
	}

	if err := q.store.Complete(ctx, job.ID); err != nil {
		logger.Err(err).Msg("unable to mark job completed")
		return
	}

	metrics.TranscodeJobs.WithLabelValues(models.JobStatusCompleted).Inc()
	logger.Info().Msg("encode completed")
}

func (q *Queue) fail(ctx context.Context, id string, reason string) {
	if err := q.store.Fail(ctx, id, reason); err != nil {
		q.logger.Err(err).Str("job", id).Msg("unable to mark job failed")
		return
	}
	metrics.TranscodeJobs.WithLabelValues(models.JobStatusFailed).Inc()
}

func (q *Queue) updateDepth(ctx context.Context) {
	if count, err := q.store.CountPending(ctx); err == nil {
		metrics.QueueDepth.Set(float64(count))
	}
}
