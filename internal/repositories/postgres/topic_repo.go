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

type TopicRepository interface {
	GetByID(ctx context.Context, id string) (*models.Topic, error)
	Upsert(ctx context.Context, t *models.Topic) error
}

type topicRepo struct {
	db *gorm.DB
}

func NewTopicRepo(db *gorm.DB) TopicRepository {
	return &topicRepo{db: db}
}

func (r *topicRepo) GetByID(ctx context.Context, id string) (*models.Topic, error) {
	var t models.Topic
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &t, err
}

func (r *topicRepo) Upsert(ctx context.Context, t *models.Topic) error {
	t.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "rubric", "updated_at"}),
		}).
		Create(t).Error
}
