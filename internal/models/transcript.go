package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/datatypes"
)

// TranscriptSegment offsets are seconds relative to the submitter's StartAt.
type TranscriptSegment struct {
	Start float64 `bson:"start" json:"start"`
	End   float64 `bson:"end" json:"end"`
	Text  string  `bson:"text" json:"text"`
}

// TranscriptSubmission is one participant's recognised speech, stored once per (session, user).
type TranscriptSubmission struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SessionID   string              `bson:"session_id" json:"session_id"`
	UserID      string              `bson:"user_id" json:"user_id"`
	StartAt     time.Time           `bson:"start_at" json:"start_at"`
	Segments    []TranscriptSegment `bson:"segments" json:"segments"`
	SubmittedAt time.Time           `bson:"submitted_at" json:"submitted_at"`
}

// MergedLine is one entry of the interleaved conversation.
type MergedLine struct {
	At      time.Time `json:"at"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
}

type MergedTranscript struct {
	SessionID string         `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`
	Content   string         `gorm:"column:content;type:text" json:"content"`
	Lines     datatypes.JSON `gorm:"column:lines" json:"lines"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (MergedTranscript) TableName() string { return "merged_transcripts" }
