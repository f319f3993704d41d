package postgres

import (
	"context"

	"github.com/yoockh/groupspeak/internal/models"
	"gorm.io/gorm"
)

type RecordingArchiveRepository interface {
	Insert(ctx context.Context, a *models.RecordingArchive) error
	ListBySession(ctx context.Context, sessionID string) ([]models.RecordingArchive, error)
}

type recordingArchiveRepo struct {
	db *gorm.DB
}

func NewRecordingArchiveRepo(db *gorm.DB) RecordingArchiveRepository {
	return &recordingArchiveRepo{db: db}
}

func (r *recordingArchiveRepo) Insert(ctx context.Context, a *models.RecordingArchive) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *recordingArchiveRepo) ListBySession(ctx context.Context, sessionID string) ([]models.RecordingArchive, error) {
	var rows []models.RecordingArchive
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("stopped_at ASC").
		Find(&rows).Error
	return rows, err
}
