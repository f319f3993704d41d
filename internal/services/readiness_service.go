package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/utils"
)

type ReadyResult struct {
	SessionID           string               `json:"session_id"`
	Status              models.SessionStatus `json:"status"`
	ReadyCount          int                  `json:"ready_count"`
	ExpectedCount       int                  `json:"expected_count"`
	AllReady            bool                 `json:"all_ready"`
	Started             bool                 `json:"started"`
	DiscussionStartTime *time.Time           `json:"discussion_start_time,omitempty"`
	Message             string               `json:"message"`
}

type ReadinessService interface {
	MarkReady(ctx context.Context, sessionID, userID string) (*ReadyResult, error)
}

type readinessService struct {
	sessions     SessionService
	sessionRepo  pgrepo.SessionRepository
	participants pgrepo.ParticipantRepository
	now          func() time.Time
}

func NewReadinessService(sessions SessionService, sessionRepo pgrepo.SessionRepository, participants pgrepo.ParticipantRepository) ReadinessService {
	return &readinessService{
		sessions:     sessions,
		sessionRepo:  sessionRepo,
		participants: participants,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// MarkReady is safe to repeat: every call re-runs the quorum check, and only
// the caller whose transition applies triggers the broadcast.
func (s *readinessService) MarkReady(ctx context.Context, sessionID, userID string) (*ReadyResult, error) {
	const op = "ReadinessService.MarkReady"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	if err := s.participants.SetReady(ctx, sessionID, userID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "participant not found in session", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to mark ready", err)
	}

	ps, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list participants", err)
	}
	res := &ReadyResult{SessionID: sessionID}
	res.ReadyCount, res.ExpectedCount, res.AllReady = ReadyQuorum(ps)

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	res.Status = session.Status
	res.DiscussionStartTime = session.DiscussionStartTime

	if !res.AllReady {
		res.Message = "waiting for other participants to be ready"
		return res, nil
	}

	switch session.Status {
	case models.StatusWaiting:
		// the move into preparation re-runs this check
		res.Message = "waiting room is still open"
		return res, nil
	case models.StatusPreparation:
	default:
		res.Message = "discussion already started"
		return res, nil
	}

	start := s.now()
	applied, err := s.sessions.Transition(ctx, sessionID, models.StatusPreparation, models.StatusDiscussion,
		map[string]any{"discussion_start_time": start})
	if err != nil {
		return nil, err
	}
	if !applied {
		// a concurrent ready call won; report its anchor, not ours
		fresh, err := s.sessionRepo.GetByID(ctx, sessionID)
		if err == nil {
			res.Status = fresh.Status
			res.DiscussionStartTime = fresh.DiscussionStartTime
		}
		res.Message = "discussion already started"
		return res, nil
	}

	res.Status = models.StatusDiscussion
	res.Started = true
	res.DiscussionStartTime = &start
	res.Message = "all participants ready, discussion started"
	return res, nil
}
