package models

import "time"

const MaxParticipants = 4

type Participant struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"column:session_id;type:uuid;index;uniqueIndex:uniq_session_user" json:"session_id"`
	UserID    *string   `gorm:"column:user_id;type:uuid;uniqueIndex:uniq_session_user" json:"user_id,omitempty"` // nil for synthetic
	IsAI      bool      `gorm:"column:is_ai;not null;default:false" json:"is_ai"`
	Ready     bool      `gorm:"column:ready;not null;default:false" json:"ready"`
	JoinedAt  time.Time `gorm:"column:joined_at;index" json:"joined_at"`
}

func (Participant) TableName() string { return "participants" }

// Human participants count towards readiness and transcript quorum.
func HumanParticipants(ps []Participant) []Participant {
	out := make([]Participant, 0, len(ps))
	for _, p := range ps {
		if !p.IsAI && p.UserID != nil {
			out = append(out, p)
		}
	}
	return out
}
