package services

import (
	"time"

	"github.com/yoockh/groupspeak/internal/models"
)

// allowed lists the only moves the lifecycle accepts. Anything else is rejected
// before the datastore is touched.
var allowed = map[models.SessionStatus][]models.SessionStatus{
	models.StatusWaiting:     {models.StatusPreparation, models.StatusExpired},
	models.StatusPreparation: {models.StatusDiscussion, models.StatusExpired},
	models.StatusDiscussion:  {models.StatusEvaluation},
	models.StatusEvaluation:  {models.StatusCompleted},
}

func CanTransition(from, to models.SessionStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReadyQuorum counts ready humans. Synthetic participants never gate the start.
func ReadyQuorum(ps []models.Participant) (ready, expected int, all bool) {
	humans := models.HumanParticipants(ps)
	for _, p := range humans {
		if p.Ready {
			ready++
		}
	}
	return ready, len(humans), len(humans) > 0 && ready == len(humans)
}

func IsTerminal(st models.SessionStatus) bool {
	return st == models.StatusCompleted || st == models.StatusExpired
}

// SessionSettings holds the durations deadlines are derived from.
type SessionSettings struct {
	WaitingTTL          time.Duration
	PreparationDuration time.Duration
	DiscussionDuration  time.Duration
	MaxParticipants     int
}

func (s SessionSettings) withDefaults() SessionSettings {
	if s.WaitingTTL <= 0 {
		s.WaitingTTL = 10 * time.Minute
	}
	if s.PreparationDuration <= 0 {
		s.PreparationDuration = 2 * time.Minute
	}
	if s.DiscussionDuration <= 0 {
		s.DiscussionDuration = 10 * time.Minute
	}
	if s.MaxParticipants <= 0 || s.MaxParticipants > models.MaxParticipants {
		s.MaxParticipants = models.MaxParticipants
	}
	return s
}

// Deadline re-derives the current phase's end from persisted anchors only.
// ok is false when the phase has no deadline or its anchor is not stamped yet.
func Deadline(s *models.Session, cfg SessionSettings) (deadline time.Time, ok bool) {
	switch s.Status {
	case models.StatusWaiting:
		if s.ExpiresAt.IsZero() {
			return time.Time{}, false
		}
		return s.ExpiresAt, true
	case models.StatusPreparation:
		if s.PreparationStartTime == nil {
			return time.Time{}, false
		}
		return s.PreparationStartTime.Add(cfg.PreparationDuration), true
	case models.StatusDiscussion:
		if s.DiscussionStartTime == nil {
			return time.Time{}, false
		}
		return s.DiscussionStartTime.Add(cfg.DiscussionDuration), true
	default:
		return time.Time{}, false
	}
}

type Timer struct {
	SessionID        string               `json:"session_id"`
	Status           models.SessionStatus `json:"status"`
	Deadline         *time.Time           `json:"deadline,omitempty"`
	RemainingSeconds int64                `json:"remaining_seconds"`
	ServerTime       time.Time            `json:"server_time"`
}

func ComputeTimer(s *models.Session, cfg SessionSettings, now time.Time) Timer {
	t := Timer{SessionID: s.ID, Status: s.Status, ServerTime: now.UTC()}
	d, ok := Deadline(s, cfg)
	if !ok {
		return t
	}
	d = d.UTC()
	t.Deadline = &d
	if rem := d.Sub(now); rem > 0 {
		t.RemainingSeconds = int64(rem.Round(time.Second) / time.Second)
	}
	return t
}
