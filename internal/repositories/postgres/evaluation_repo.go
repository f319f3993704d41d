package postgres

import (
	"context"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvaluationRepository interface {
	// InsertAll writes every row in one transaction; rows that already exist for
	// (session_id, user_id) are skipped. It returns the number of new rows.
	InsertAll(ctx context.Context, rows []models.Evaluation) (int64, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Evaluation, error)
}

type evaluationRepo struct {
	db *gorm.DB
}

func NewEvaluationRepo(db *gorm.DB) EvaluationRepository {
	return &evaluationRepo{db: db}
}

func (r *evaluationRepo) InsertAll(ctx context.Context, rows []models.Evaluation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}

	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&rows)
		inserted = res.RowsAffected
		return res.Error
	})
	return inserted, err
}

func (r *evaluationRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Evaluation{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}

func (r *evaluationRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Evaluation, error) {
	var rows []models.Evaluation
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("label ASC").
		Find(&rows).Error
	return rows, err
}
