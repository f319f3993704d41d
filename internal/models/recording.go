package models

import (
	"time"

	"github.com/lib/pq"
)

// RecordingArchive keeps the file list the provider reported when a recording stopped.
type RecordingArchive struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Mode      RecordingMode  `gorm:"column:mode;type:text" json:"mode"`
	SID       string         `gorm:"column:sid;type:text" json:"sid"`
	FileNames pq.StringArray `gorm:"column:file_names;type:text[]" json:"file_names"`
	StoppedAt time.Time      `gorm:"column:stopped_at" json:"stopped_at"`
}

func (RecordingArchive) TableName() string { return "recording_archives" }
