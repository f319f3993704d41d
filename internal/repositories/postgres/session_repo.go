package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/utils"
	"gorm.io/gorm"
)

// SessionRepository exposes every contended write on a session as a conditional
// update. The bool results report whether this caller's update affected the row.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Transition(ctx context.Context, id string, from, to models.SessionStatus, stamps map[string]any) (bool, error)
	MarkTranscriptMerged(ctx context.Context, id string) (bool, error)
	ReleaseTranscriptMerge(ctx context.Context, id string) (bool, error)
	ClaimRecording(ctx context.Context, id string, mode models.RecordingMode, resourceID string) (bool, error)
	SetRecordingSID(ctx context.Context, id string, mode models.RecordingMode, resourceID, sid string) (bool, error)
	ClearRecordingHandle(ctx context.Context, id string, mode models.RecordingMode, resourceID string) (bool, error)
	ListDue(ctx context.Context, status models.SessionStatus, before time.Time, limit int) ([]models.Session, error)
}

var ErrUnknownMode = errors.New("unknown recording mode")

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) Transition(ctx context.Context, id string, from, to models.SessionStatus, stamps map[string]any) (bool, error) {
	set := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range stamps {
		set[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, from).
		Updates(set)
	return res.RowsAffected == 1, res.Error
}

func (r *sessionRepo) MarkTranscriptMerged(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND transcript_merged = ?", id, false).
		Updates(map[string]any{"transcript_merged": true, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// ReleaseTranscriptMerge undoes a claim whose merge failed so a retry can win again.
func (r *sessionRepo) ReleaseTranscriptMerge(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND transcript_merged = ?", id, true).
		Updates(map[string]any{"transcript_merged": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// ClaimRecording stores resourceID for mode only while the mode holds no
// resource. The caller whose claim applies owns the start for that mode.
func (r *sessionRepo) ClaimRecording(ctx context.Context, id string, mode models.RecordingMode, resourceID string) (bool, error) {
	rcol, scol, ok := models.RecordingColumns(mode)
	if !ok {
		return false, ErrUnknownMode
	}
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND "+rcol+" IS NULL", id).
		Updates(map[string]any{rcol: resourceID, scol: nil, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// SetRecordingSID records the started sid while the claimed resource is still
// in place and has no sid yet.
func (r *sessionRepo) SetRecordingSID(ctx context.Context, id string, mode models.RecordingMode, resourceID, sid string) (bool, error) {
	rcol, scol, ok := models.RecordingColumns(mode)
	if !ok {
		return false, ErrUnknownMode
	}
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND "+rcol+" = ? AND "+scol+" IS NULL", id, resourceID).
		Updates(map[string]any{scol: sid, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// ClearRecordingHandle nulls the handle only while it still names resourceID, so a
// stale stop never wipes a newer recording.
func (r *sessionRepo) ClearRecordingHandle(ctx context.Context, id string, mode models.RecordingMode, resourceID string) (bool, error) {
	rcol, scol, ok := models.RecordingColumns(mode)
	if !ok {
		return false, ErrUnknownMode
	}
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND "+rcol+" = ?", id, resourceID).
		Updates(map[string]any{rcol: nil, scol: nil, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// ListDue returns sessions in status whose anchor timestamp is before the cutoff.
func (r *sessionRepo) ListDue(ctx context.Context, status models.SessionStatus, before time.Time, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	var anchor string
	switch status {
	case models.StatusWaiting:
		anchor = "expires_at"
	case models.StatusPreparation:
		anchor = "preparation_start_time"
	case models.StatusDiscussion:
		anchor = "discussion_start_time"
	default:
		return nil, nil
	}

	var rows []models.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND "+anchor+" IS NOT NULL AND "+anchor+" < ?", status, before).
		Order(anchor + " ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
