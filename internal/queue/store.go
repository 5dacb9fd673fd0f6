package queue

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mediavault/internal/database/models"
)

// ErrJobNotFound is returned when no job row matches.
var ErrJobNotFound = errors.New("transcode job not found")

// JobStore persists transcode job rows. Rows are never deleted by normal
// operation; history is retained.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.TranscodeJob, error)
	// FindActive returns the non-terminal (pending or processing) job for a
	// file, or nil when none exists.
	FindActive(ctx context.Context, fileID string) (*models.TranscodeJob, error)
	Create(ctx context.Context, job *models.TranscodeJob) error
	// OldestPending returns the pending job with the earliest creation
	// time, or nil when the queue is drained.
	OldestPending(ctx context.Context) (*models.TranscodeJob, error)
	SetStatus(ctx context.Context, id string, status string) error
	SetProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, reason string) error
	// CancelPending conditionally fails a job only while it is still
	// pending; it reports whether the update applied.
	CancelPending(ctx context.Context, id string) (bool, error)
	CountPending(ctx context.Context) (int64, error)
}

type gormJobStore struct {
	db *gorm.DB
}

// NewJobStore returns a JobStore backed by the shared database.
func NewJobStore(db *gorm.DB) JobStore {
	return &gormJobStore{db: db}
}

func (s *gormJobStore) Get(ctx context.Context, id string) (*models.TranscodeJob, error) {
	var job models.TranscodeJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *gormJobStore) FindActive(ctx context.Context, fileID string) (*models.TranscodeJob, error) {
	var job models.TranscodeJob
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND status IN ?", fileID, []string{models.JobStatusPending, models.JobStatusProcessing}).
		Order("created_at").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *gormJobStore) Create(ctx context.Context, job *models.TranscodeJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *gormJobStore) OldestPending(ctx context.Context) (*models.TranscodeJob, error) {
	var job models.TranscodeJob
	err := s.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order("created_at").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *gormJobStore) SetStatus(ctx context.Context, id string, status string) error {
	return s.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *gormJobStore) SetProgress(ctx context.Context, id string, progress int) error {
	return s.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

func (s *gormJobStore) Complete(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"progress":     100,
			"completed_at": &now,
		}).Error
}

func (s *gormJobStore) Fail(ctx context.Context, id string, reason string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error":        reason,
			"completed_at": &now,
		}).Error
}

func (s *gormJobStore) CancelPending(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error":        "cancelled",
			"completed_at": &now,
		})
	return result.RowsAffected > 0, result.Error
}

func (s *gormJobStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("status = ?", models.JobStatusPending).
		Count(&count).Error
	return count, err
}
