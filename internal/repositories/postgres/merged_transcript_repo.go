package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MergedTranscriptRepository interface {
	// Create reports false when a transcript for the session already exists.
	Create(ctx context.Context, t *models.MergedTranscript) (bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.MergedTranscript, error)
}

type mergedTranscriptRepo struct {
	db *gorm.DB
}

func NewMergedTranscriptRepo(db *gorm.DB) MergedTranscriptRepository {
	return &mergedTranscriptRepo{db: db}
}

func (r *mergedTranscriptRepo) Create(ctx context.Context, t *models.MergedTranscript) (bool, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(t)
	return res.RowsAffected == 1, res.Error
}

func (r *mergedTranscriptRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.MergedTranscript, error) {
	var t models.MergedTranscript
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &t, err
}
