package files

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"mediavault/internal/database/models"
)

var (
	// ErrNotFound is returned when no file record matches.
	ErrNotFound = errors.New("file not found")
	// ErrConflict is returned when a record with the same folder and name
	// already exists.
	ErrConflict = errors.New("file already exists")
)

// Store is the file record collaborator. The media pipeline only needs
// these synchronous operations.
type Store interface {
	Get(ctx context.Context, id string) (*models.File, error)
	Exists(ctx context.Context, folderID, name string) (bool, error)
	Create(ctx context.Context, file *models.File) error
	SetMetadata(ctx context.Context, id string, metadata []byte) error
	ReplaceTracks(ctx context.Context, fileID string, tracks []models.VideoTrack, subtitles []models.Subtitle) error
	Subtitle(ctx context.Context, fileID string, language string) (*models.Subtitle, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore returns a Store backed by the shared database.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *gormStore) Exists(ctx context.Context, folderID, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("folder_id = ? AND name = ?", folderID, name).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) Create(ctx context.Context, file *models.File) error {
	exists, err := s.Exists(ctx, file.FolderID, file.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}
	return s.db.WithContext(ctx).Create(file).Error
}

func (s *gormStore) SetMetadata(ctx context.Context, id string, metadata []byte) error {
	return s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ?", id).
		Update("metadata", metadata).Error
}

// ReplaceTracks swaps the full track and subtitle sets for a file in one
// transaction: delete-then-insert, so re-analysis never leaves stale rows.
func (s *gormStore) ReplaceTracks(ctx context.Context, fileID string, tracks []models.VideoTrack, subtitles []models.Subtitle) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&models.VideoTrack{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", fileID).Delete(&models.Subtitle{}).Error; err != nil {
			return err
		}
		if len(tracks) > 0 {
			if err := tx.Create(&tracks).Error; err != nil {
				return err
			}
		}
		if len(subtitles) > 0 {
			if err := tx.Create(&subtitles).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *gormStore) Subtitle(ctx context.Context, fileID string, language string) (*models.Subtitle, error) {
	var subtitle models.Subtitle
	err := s.db.WithContext(ctx).
		First(&subtitle, "file_id = ? AND language = ?", fileID, language).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &subtitle, nil
}

// Resolver maps storage-relative paths to absolute paths, rejecting any
// path that would escape the storage root.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Resolve returns the absolute path for a relative one, or an error when
// the cleaned path would point outside the root.
func (r *Resolver) Resolve(relPath string) (string, error) {
	abs := filepath.Join(r.root, filepath.Clean("/"+relPath))
	if abs != r.root && !strings.HasPrefix(abs, r.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", relPath)
	}
	return abs, nil
}

// Root returns the storage root directory.
func (r *Resolver) Root() string {
	return r.root
}
