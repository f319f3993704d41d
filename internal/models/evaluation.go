package models

import (
	"time"

	"gorm.io/datatypes"
)

// Rubric categories are fixed; each is scored independently.
const (
	CategoryContent       = "content"
	CategoryCommunication = "communication"
	CategoryCollaboration = "collaboration"
	CategoryLeadership    = "leadership"
)

var RubricCategories = []string{CategoryContent, CategoryCommunication, CategoryCollaboration, CategoryLeadership}

const (
	MinScore = 0
	MaxScore = 7
)

type Evaluation struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;type:uuid;uniqueIndex:uniq_eval_session_user" json:"session_id"`
	UserID    string `gorm:"column:user_id;type:uuid;uniqueIndex:uniq_eval_session_user" json:"user_id"`
	Label     string `gorm:"column:label;type:text" json:"label"`

	ContentScore         int    `gorm:"column:content_score" json:"content_score"`
	ContentComment       string `gorm:"column:content_comment;type:text" json:"content_comment"`
	CommunicationScore   int    `gorm:"column:communication_score" json:"communication_score"`
	CommunicationComment string `gorm:"column:communication_comment;type:text" json:"communication_comment"`
	CollaborationScore   int    `gorm:"column:collaboration_score" json:"collaboration_score"`
	CollaborationComment string `gorm:"column:collaboration_comment;type:text" json:"collaboration_comment"`
	LeadershipScore      int    `gorm:"column:leadership_score" json:"leadership_score"`
	LeadershipComment    string `gorm:"column:leadership_comment;type:text" json:"leadership_comment"`

	Raw       datatypes.JSON `gorm:"column:raw" json:"-"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Evaluation) TableName() string { return "evaluations" }
