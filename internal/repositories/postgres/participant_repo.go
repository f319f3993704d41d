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

var ErrSessionFull = errors.New("session is full")

type ParticipantRepository interface {
	// Join inserts p unless the user already joined or the session holds max participants.
	// It returns the stored participant and the participant count after the call.
	Join(ctx context.Context, p *models.Participant, max int) (*models.Participant, int, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Participant, error)
	SetReady(ctx context.Context, sessionID, userID string) error
}

type participantRepo struct {
	db *gorm.DB
}

func NewParticipantRepo(db *gorm.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) Join(ctx context.Context, p *models.Participant, max int) (*models.Participant, int, error) {
	var out *models.Participant
	var count int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serialise joins on the session row
		var s models.Session
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", p.SessionID).
			Take(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrNotFound
			}
			return err
		}

		if p.UserID != nil {
			var existing models.Participant
			err := tx.Where("session_id = ? AND user_id = ?", p.SessionID, *p.UserID).Take(&existing).Error
			if err == nil {
				out = &existing
				return tx.Model(&models.Participant{}).Where("session_id = ?", p.SessionID).Count(&count).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.Model(&models.Participant{}).Where("session_id = ?", p.SessionID).Count(&count).Error; err != nil {
			return err
		}
		if int(count) >= max {
			return ErrSessionFull
		}
		if p.JoinedAt.IsZero() {
			p.JoinedAt = time.Now().UTC()
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		count++
		out = p
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, int(count), nil
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("joined_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *participantRepo) SetReady(ctx context.Context, sessionID, userID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("session_id = ? AND user_id = ? AND is_ai = ?", sessionID, userID, false).
		Update("ready", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// postgres counts matched rows, so a repeated ready still reports 1
		return utils.ErrNotFound
	}
	return nil
}
