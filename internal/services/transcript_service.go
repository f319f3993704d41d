package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	mongorepo "github.com/yoockh/groupspeak/internal/repositories/mongo"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/utils"

	"github.com/sirupsen/logrus"
)

// EvaluationDispatcher hands a merged session to the evaluation workers.
type EvaluationDispatcher interface {
	Dispatch(ctx context.Context, sessionID string) error
}

type SubmitOutcome string

const (
	OutcomeRecorded         SubmitOutcome = "recorded"
	OutcomeAlreadyMerged    SubmitOutcome = "already_merged"
	OutcomeMergingElsewhere SubmitOutcome = "merging_elsewhere"
	OutcomeMerged           SubmitOutcome = "merged"
)

type SubmitResult struct {
	SessionID      string        `json:"session_id"`
	Outcome        SubmitOutcome `json:"outcome"`
	SubmittedCount int64         `json:"submitted_count"`
	ExpectedCount  int64         `json:"expected_count"`
}

type SubmitInput struct {
	SessionID string
	UserID    string
	Segments  []models.TranscriptSegment
	StartAt   *time.Time
}

type TranscriptService interface {
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	GetMerged(ctx context.Context, sessionID string) (*models.MergedTranscript, error)
}

type transcriptService struct {
	sessions     SessionService
	sessionRepo  pgrepo.SessionRepository
	participants pgrepo.ParticipantRepository
	submissions  mongorepo.TranscriptRepository
	merged       pgrepo.MergedTranscriptRepository
	dispatcher   EvaluationDispatcher // optional
	log          *logrus.Logger
}

func NewTranscriptService(
	sessions SessionService,
	sessionRepo pgrepo.SessionRepository,
	participants pgrepo.ParticipantRepository,
	submissions mongorepo.TranscriptRepository,
	merged pgrepo.MergedTranscriptRepository,
	dispatcher EvaluationDispatcher,
	log *logrus.Logger,
) TranscriptService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &transcriptService{
		sessions:     sessions,
		sessionRepo:  sessionRepo,
		participants: participants,
		submissions:  submissions,
		merged:       merged,
		dispatcher:   dispatcher,
		log:          log,
	}
}

func (s *transcriptService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	const op = "TranscriptService.Submit"

	// an empty segment list is a valid submission, a missing one is not
	if in.SessionID == "" || in.UserID == "" || in.Segments == nil || in.StartAt == nil || in.StartAt.IsZero() {
		return nil, utils.E(utils.CodeMissingFields, op, "session_id, user_id, segments and start_at are required", nil)
	}

	ps, err := s.participants.ListBySession(ctx, in.SessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list participants", err)
	}
	humans := models.HumanParticipants(ps)
	if !isMember(humans, in.UserID) {
		return nil, utils.E(utils.CodeForbidden, op, "user is not a participant of this session", nil)
	}

	session, err := s.sessionRepo.GetByID(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	if !acceptsTranscripts(session.Status) {
		return nil, utils.E(utils.CodePreconditionFailed, op, "session is not accepting transcripts while "+string(session.Status), nil)
	}

	sub := &models.TranscriptSubmission{
		SessionID:   in.SessionID,
		UserID:      in.UserID,
		StartAt:     in.StartAt.UTC(),
		Segments:    in.Segments,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.submissions.Upsert(ctx, sub); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store transcript", err)
	}

	res := &SubmitResult{SessionID: in.SessionID, ExpectedCount: int64(len(humans))}

	if session.TranscriptMerged {
		res.Outcome = OutcomeAlreadyMerged
		res.SubmittedCount = res.ExpectedCount
		return res, nil
	}

	res.SubmittedCount, err = s.submissions.CountBySession(ctx, in.SessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count transcripts", err)
	}
	if res.SubmittedCount != res.ExpectedCount {
		res.Outcome = OutcomeRecorded
		return res, nil
	}

	won, err := s.sessionRepo.MarkTranscriptMerged(ctx, in.SessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to claim transcript merge", err)
	}
	if !won {
		res.Outcome = OutcomeMergingElsewhere
		return res, nil
	}

	if err := s.merge(ctx, session, ps); err != nil {
		// hand the claim back so the next submission retry can merge
		if _, rerr := s.sessionRepo.ReleaseTranscriptMerge(ctx, in.SessionID); rerr != nil {
			s.log.WithError(rerr).WithField("session_id", in.SessionID).Error("failed to release transcript merge claim")
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to merge transcripts", err)
	}
	res.Outcome = OutcomeMerged

	s.afterMerge(ctx, session)
	return res, nil
}

// acceptsTranscripts is true once the discussion has started. Completed
// sessions answer with already_merged.
func acceptsTranscripts(st models.SessionStatus) bool {
	switch st {
	case models.StatusDiscussion, models.StatusEvaluation, models.StatusCompleted:
		return true
	}
	return false
}

func (s *transcriptService) merge(ctx context.Context, session *models.Session, ps []models.Participant) error {
	subs, err := s.submissions.ListBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	labels, order := SpeakerLabels(ps)
	byUser := make(map[string]models.TranscriptSubmission, len(subs))
	for _, sub := range subs {
		byUser[sub.UserID] = sub
	}

	in := make([]SpeakerTranscript, 0, len(order))
	for _, label := range order {
		sub, ok := byUser[labels[label]]
		if !ok {
			continue
		}
		in = append(in, SpeakerTranscript{Label: label, StartAt: sub.StartAt, Segments: sub.Segments})
	}

	content, lines := MergeTranscripts(in)
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	created, err := s.merged.Create(ctx, &models.MergedTranscript{
		SessionID: session.ID,
		Content:   content,
		Lines:     raw,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !created {
		s.log.WithField("session_id", session.ID).Warn("merged transcript already existed")
	}
	s.log.WithFields(logrus.Fields{"session_id": session.ID, "lines": len(lines)}).Info("transcripts merged")
	return nil
}

// afterMerge closes the discussion if it is still open and queues evaluation.
// Neither step fails the submission.
func (s *transcriptService) afterMerge(ctx context.Context, session *models.Session) {
	if session.Status == models.StatusDiscussion {
		if _, err := s.sessions.Transition(ctx, session.ID, models.StatusDiscussion, models.StatusEvaluation, nil); err != nil {
			s.log.WithError(err).WithField("session_id", session.ID).Warn("failed to close discussion after merge")
		}
	}

	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, session.ID); err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("failed to dispatch evaluation")
	}
}

func (s *transcriptService) GetMerged(ctx context.Context, sessionID string) (*models.MergedTranscript, error) {
	const op = "TranscriptService.GetMerged"

	out, err := s.merged.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "merged transcript not available yet", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get merged transcript", err)
	}
	return out, nil
}

func isMember(ps []models.Participant, userID string) bool {
	for _, p := range ps {
		if p.UserID != nil && *p.UserID == userID {
			return true
		}
	}
	return false
}
