package models

import "time"

type SessionStatus string

const (
	StatusWaiting     SessionStatus = "waiting"
	StatusPreparation SessionStatus = "preparation"
	StatusDiscussion  SessionStatus = "discussion"
	StatusEvaluation  SessionStatus = "evaluation"
	StatusCompleted   SessionStatus = "completed"
	StatusExpired     SessionStatus = "expired"
)

type RecordingMode string

const (
	RecordingIndividual RecordingMode = "individual"
	RecordingComposite  RecordingMode = "composite"
)

// Session is the only row contended across handlers. Status, TranscriptMerged and
// the recording handles are always written with conditional updates.
type Session struct {
	ID         string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code       string `gorm:"column:code;type:text;uniqueIndex" json:"code"` // recording channel name
	HostUserID string `gorm:"column:host_user_id;type:uuid;index" json:"host_user_id"`
	TopicID    string `gorm:"column:topic_id;type:text" json:"topic_id"`
	TestTopic  string `gorm:"column:test_topic;type:text" json:"test_topic"`

	Status               SessionStatus `gorm:"column:status;type:text;index" json:"status"`
	ExpiresAt            time.Time     `gorm:"column:expires_at" json:"expires_at"`
	PreparationStartTime *time.Time    `gorm:"column:preparation_start_time" json:"preparation_start_time,omitempty"`
	DiscussionStartTime  *time.Time    `gorm:"column:discussion_start_time" json:"discussion_start_time,omitempty"`
	TranscriptMerged     bool          `gorm:"column:transcript_merged;not null;default:false" json:"transcript_merged"`

	IndividualResourceID *string `gorm:"column:individual_resource_id;type:text" json:"individual_resource_id,omitempty"`
	IndividualSID        *string `gorm:"column:individual_sid;type:text" json:"individual_sid,omitempty"`
	CompositeResourceID  *string `gorm:"column:composite_resource_id;type:text" json:"composite_resource_id,omitempty"`
	CompositeSID         *string `gorm:"column:composite_sid;type:text" json:"composite_sid,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// RecordingHandle is the provider's {resourceId, sid} pair for one mode.
type RecordingHandle struct {
	ResourceID string `json:"resource_id"`
	SID        string `json:"sid"`
}

// Handle returns the stored handle for mode, or nil when nothing is recording.
// A handle with a resource but no sid was acquired but never started.
func (s *Session) Handle(mode RecordingMode) *RecordingHandle {
	var rid, sid *string
	switch mode {
	case RecordingIndividual:
		rid, sid = s.IndividualResourceID, s.IndividualSID
	case RecordingComposite:
		rid, sid = s.CompositeResourceID, s.CompositeSID
	}
	if rid == nil {
		return nil
	}
	h := &RecordingHandle{ResourceID: *rid}
	if sid != nil {
		h.SID = *sid
	}
	return h
}

// RecordingColumns maps a mode to its handle columns.
func RecordingColumns(mode RecordingMode) (resourceCol, sidCol string, ok bool) {
	switch mode {
	case RecordingIndividual:
		return "individual_resource_id", "individual_sid", true
	case RecordingComposite:
		return "composite_resource_id", "composite_sid", true
	default:
		return "", "", false
	}
}
