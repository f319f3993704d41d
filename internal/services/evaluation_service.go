package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/providers/llm"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type EvaluationResult struct {
	SessionID     string              `json:"session_id"`
	Inserted      int64               `json:"inserted"`
	SkippedLabels []string            `json:"skipped_labels,omitempty"`
	Evaluations   []models.Evaluation `json:"evaluations"`
}

type EvaluationService interface {
	Evaluate(ctx context.Context, sessionID string) (*EvaluationResult, error)
	Results(ctx context.Context, sessionID string) ([]models.Evaluation, error)
}

type evaluationService struct {
	sessions     SessionService
	sessionRepo  pgrepo.SessionRepository
	participants pgrepo.ParticipantRepository
	topics       pgrepo.TopicRepository
	merged       pgrepo.MergedTranscriptRepository
	evaluations  pgrepo.EvaluationRepository
	scorer       llm.Provider
	timeout      time.Duration
	log          *logrus.Logger
}

func NewEvaluationService(
	sessions SessionService,
	sessionRepo pgrepo.SessionRepository,
	participants pgrepo.ParticipantRepository,
	topics pgrepo.TopicRepository,
	merged pgrepo.MergedTranscriptRepository,
	evaluations pgrepo.EvaluationRepository,
	scorer llm.Provider,
	timeout time.Duration,
	log *logrus.Logger,
) EvaluationService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &evaluationService{
		sessions:     sessions,
		sessionRepo:  sessionRepo,
		participants: participants,
		topics:       topics,
		merged:       merged,
		evaluations:  evaluations,
		scorer:       scorer,
		timeout:      timeout,
		log:          log,
	}
}

// Evaluate scores every labelled participant in one scoring call and stores all
// rows or none.
func (s *evaluationService) Evaluate(ctx context.Context, sessionID string) (*EvaluationResult, error) {
	const op = "EvaluationService.Evaluate"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}

	ps, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list participants", err)
	}
	labels, order := SpeakerLabels(ps)
	if len(order) == 0 || len(order) < len(models.HumanParticipants(ps)) {
		return nil, utils.E(utils.CodePreconditionFailed, op, "session has no scoreable participants", nil)
	}

	done, err := s.evaluations.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count evaluations", err)
	}
	if done >= int64(len(order)) {
		return nil, utils.E(utils.CodeAlreadyHandled, op, "session already evaluated", nil)
	}

	transcript, err := s.merged.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodePreconditionFailed, op, "merged transcript not available", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load merged transcript", err)
	}

	topic, err := s.topics.GetByID(ctx, session.TopicID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to load topic", err)
	}
	if topic == nil || topic.Rubric == "" || session.TestTopic == "" {
		return nil, utils.E(utils.CodePreconditionFailed, op, "topic or rubric missing", err)
	}

	prompt, err := buildScoringPrompt(session.TestTopic, topic.Rubric, transcript.Content, order)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build scoring prompt", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.scorer.GenerateJSON(callCtx, scoringSystemInstruction, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.E(utils.CodeTimeout, op, "scoring service timed out", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "scoring service call failed", err)
	}

	cards, err := parseScoringResponse(text)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidScoringResponse, op, "unusable scoring response", err)
	}

	res := &EvaluationResult{SessionID: sessionID}
	rows := make([]models.Evaluation, 0, len(cards))
	scored := make(map[string]bool, len(cards))
	for _, c := range cards {
		userID, ok := labels[c.Label]
		if !ok {
			res.SkippedLabels = append(res.SkippedLabels, c.Label)
			continue
		}
		scored[c.Label] = true
		rows = append(rows, c.evaluation(sessionID, userID, uuid.NewString()))
	}
	if len(res.SkippedLabels) > 0 {
		s.log.WithFields(logrus.Fields{"session_id": sessionID, "labels": res.SkippedLabels}).
			Warn("scoring response named participants outside the session")
	}
	for _, label := range order {
		if !scored[label] {
			return nil, utils.E(utils.CodeInvalidScoringResponse, op, "participant "+label+" was not scored", nil)
		}
	}

	res.Inserted, err = s.evaluations.InsertAll(ctx, rows)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store evaluations", err)
	}
	res.Evaluations = rows

	s.complete(ctx, session)
	s.log.WithFields(logrus.Fields{"session_id": sessionID, "inserted": res.Inserted}).Info("session evaluated")
	return res, nil
}

// complete walks the session to completed. Losing either transition is fine.
func (s *evaluationService) complete(ctx context.Context, session *models.Session) {
	if session.Status == models.StatusDiscussion {
		if _, err := s.sessions.Transition(ctx, session.ID, models.StatusDiscussion, models.StatusEvaluation, nil); err != nil {
			s.log.WithError(err).WithField("session_id", session.ID).Warn("failed to close discussion")
		}
	}
	if _, err := s.sessions.Transition(ctx, session.ID, models.StatusEvaluation, models.StatusCompleted, nil); err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Warn("failed to complete session")
	}
}

func (s *evaluationService) Results(ctx context.Context, sessionID string) ([]models.Evaluation, error) {
	const op = "EvaluationService.Results"

	rows, err := s.evaluations.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list evaluations", err)
	}
	return rows, nil
}
