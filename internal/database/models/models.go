package models

import (
	"time"
)

// Job statuses. Terminal states are final; a failed job is superseded by a
// fresh row, never resurrected.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// File is one stored file record.
type File struct {
	ID        string    `gorm:"column:id;primaryKey"`
	FolderID  string    `gorm:"column:folder_id;index:idx_files_folder_name,unique"`
	Name      string    `gorm:"column:name;not null;index:idx_files_folder_name,unique"`
	Path      string    `gorm:"column:path;not null"`
	MimeType  string    `gorm:"column:mime_type"`
	SizeBytes int64     `gorm:"column:size_bytes;not null"`
	Checksum  string    `gorm:"column:checksum"`
	Metadata  []byte    `gorm:"column:metadata"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TranscodeJob is one persistent transcode queue entry. At most one job per
// file may be in a non-terminal status at any time.
type TranscodeJob struct {
	ID          string     `gorm:"column:id;primaryKey"`
	FileID      string     `gorm:"column:file_id;not null;index"`
	Status      string     `gorm:"column:status;not null;index"`
	Progress    int        `gorm:"column:progress;not null;default:0"`
	OutputPath  string     `gorm:"column:output_path"`
	Error       string     `gorm:"column:error"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// VideoTrack is one extracted media stream record. The set of tracks for a
// file is replaced wholesale on every (re)analysis.
type VideoTrack struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement"`
	FileID    string `gorm:"column:file_id;not null;index"`
	TrackType string `gorm:"column:track_type;not null"`
	Codec     string `gorm:"column:codec;not null"`
	Language  string `gorm:"column:language"`
	Index     int    `gorm:"column:stream_index;not null"`
	Title     string `gorm:"column:title"`
}

// Subtitle is one extracted subtitle record pointing at its on-disk WebVTT.
type Subtitle struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement"`
	FileID   string `gorm:"column:file_id;not null;index"`
	Language string `gorm:"column:language"`
	Path     string `gorm:"column:path;not null"`
	Format   string `gorm:"column:format"`
	Title    string `gorm:"column:title"`
}
