package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/groupspeak/internal/cache"
	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/notify"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SessionService interface {
	Create(ctx context.Context, hostUserID, topicID string) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Participants(ctx context.Context, sessionID string) ([]models.Participant, error)
	Join(ctx context.Context, sessionID, userID string) (*JoinResult, error)
	AddSyntheticParticipant(ctx context.Context, sessionID string) (*JoinResult, error)
	StartPreparation(ctx context.Context, sessionID, userID string) (bool, error)
	Transition(ctx context.Context, sessionID string, from, to models.SessionStatus, stamps map[string]any) (bool, error)
	Timer(ctx context.Context, sessionID string, now time.Time) (*Timer, error)
	EndDiscussion(ctx context.Context, sessionID string) (bool, error)
	Settings() SessionSettings
}

type JoinResult struct {
	Participant *models.Participant  `json:"participant"`
	Count       int                  `json:"participant_count"`
	Status      models.SessionStatus `json:"status"`
}

type SessionServiceDeps struct {
	Sessions     pgrepo.SessionRepository
	Participants pgrepo.ParticipantRepository
	Topics       pgrepo.TopicRepository
	Cache        cache.SessionSnapshots // optional
	Publisher    notify.Publisher       // optional
	Recordings   RecordingService       // optional
	Settings     SessionSettings
	// AutoRecord starts both recording modes when the discussion clock starts.
	AutoRecord bool
	Log        *logrus.Logger
}

type sessionService struct {
	sessions     pgrepo.SessionRepository
	participants pgrepo.ParticipantRepository
	topics       pgrepo.TopicRepository
	cache        cache.SessionSnapshots
	pub          notify.Publisher
	recordings   RecordingService
	cfg          SessionSettings
	autoRecord   bool
	log          *logrus.Logger
	now          func() time.Time
}

func NewSessionService(d SessionServiceDeps) SessionService {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &sessionService{
		sessions:     d.Sessions,
		participants: d.Participants,
		topics:       d.Topics,
		cache:        d.Cache,
		pub:          d.Publisher,
		recordings:   d.Recordings,
		cfg:          d.Settings.withDefaults(),
		autoRecord:   d.AutoRecord,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *sessionService) Settings() SessionSettings { return s.cfg }

func (s *sessionService) Create(ctx context.Context, hostUserID, topicID string) (*models.Session, error) {
	const op = "SessionService.Create"

	if hostUserID == "" || topicID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "host user and topic_id are required", nil)
	}

	topic, err := s.topics.GetByID(ctx, topicID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "topic not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load topic", err)
	}

	now := s.now()
	id := uuid.NewString()
	session := &models.Session{
		ID:         id,
		Code:       "gd" + strings.ReplaceAll(id, "-", "")[:12],
		HostUserID: hostUserID,
		TopicID:    topic.ID,
		TestTopic:  topic.Title,
		Status:     models.StatusWaiting,
		ExpiresAt:  now.Add(s.cfg.WaitingTTL),
		CreatedAt:  now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}

	// the host is the first participant
	if _, err := s.join(ctx, op, session, &hostUserID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	if s.cache != nil {
		snap, hit, err := s.cache.Load(ctx, sessionID)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Debug("session cache read failed")
		}
		if hit {
			return snap, nil
		}
	}

	out, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Store(ctx, out); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Debug("session cache write failed")
		}
	}
	return out, nil
}

// load always reads the datastore.
func (s *sessionService) load(ctx context.Context, op, sessionID string) (*models.Session, error) {
	out, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) Participants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	const op = "SessionService.Participants"

	if _, err := s.load(ctx, op, sessionID); err != nil {
		return nil, err
	}
	ps, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list participants", err)
	}
	return ps, nil
}

func (s *sessionService) Join(ctx context.Context, sessionID, userID string) (*JoinResult, error) {
	const op = "SessionService.Join"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}
	session, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, op, session, &userID)
}

func (s *sessionService) AddSyntheticParticipant(ctx context.Context, sessionID string) (*JoinResult, error) {
	const op = "SessionService.AddSyntheticParticipant"

	session, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, op, session, nil)
}

func (s *sessionService) join(ctx context.Context, op string, session *models.Session, userID *string) (*JoinResult, error) {
	if session.Status != models.StatusWaiting {
		// a rejoin by an existing member stays valid after the room closes
		if userID != nil {
			if p, n, ok := s.findMember(ctx, session.ID, *userID); ok {
				return &JoinResult{Participant: p, Count: n, Status: session.Status}, nil
			}
		}
		return nil, utils.E(utils.CodeInvalidTransition, op, "session is not accepting participants", nil)
	}

	p := &models.Participant{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		UserID:    userID,
		IsAI:      userID == nil,
		JoinedAt:  s.now(),
	}
	stored, count, err := s.participants.Join(ctx, p, models.MaxParticipants)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrSessionFull):
			return nil, utils.E(utils.CodeConflict, op, "session already has the maximum number of participants", err)
		case errors.Is(err, utils.ErrNotFound):
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		default:
			return nil, utils.E(utils.CodeInternal, op, "failed to join session", err)
		}
	}

	status := session.Status
	if count >= s.cfg.MaxParticipants {
		now := s.now()
		applied, err := s.Transition(ctx, session.ID, models.StatusWaiting, models.StatusPreparation,
			map[string]any{"preparation_start_time": now})
		if err != nil {
			return nil, err
		}
		if applied {
			status = models.StatusPreparation
		}
	}
	s.invalidate(ctx, session.ID)
	return &JoinResult{Participant: stored, Count: count, Status: status}, nil
}

func (s *sessionService) findMember(ctx context.Context, sessionID, userID string) (*models.Participant, int, bool) {
	ps, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, 0, false
	}
	for i := range ps {
		if ps[i].UserID != nil && *ps[i].UserID == userID {
			return &ps[i], len(ps), true
		}
	}
	return nil, 0, false
}

// StartPreparation lets the host close the waiting room before it fills up.
func (s *sessionService) StartPreparation(ctx context.Context, sessionID, userID string) (bool, error) {
	const op = "SessionService.StartPreparation"

	session, err := s.load(ctx, op, sessionID)
	if err != nil {
		return false, err
	}
	if session.HostUserID != userID {
		return false, utils.E(utils.CodeForbidden, op, "only the host can start the session", nil)
	}
	if session.Status == models.StatusPreparation {
		return false, nil
	}

	ps, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to list participants", err)
	}
	if len(models.HumanParticipants(ps)) == 0 {
		return false, utils.E(utils.CodePreconditionFailed, op, "session has no participants", nil)
	}

	return s.Transition(ctx, sessionID, session.Status, models.StatusPreparation,
		map[string]any{"preparation_start_time": s.now()})
}

// Transition applies from→to with a single conditional write. A lost race
// reports applied=false without error.
func (s *sessionService) Transition(ctx context.Context, sessionID string, from, to models.SessionStatus, stamps map[string]any) (bool, error) {
	const op = "SessionService.Transition"

	if !CanTransition(from, to) {
		return false, utils.E(utils.CodeInvalidTransition, op, string(from)+" -> "+string(to)+" is not allowed", nil)
	}

	applied, err := s.sessions.Transition(ctx, sessionID, from, to, stamps)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to update session status", err)
	}
	if !applied {
		s.log.WithFields(logrus.Fields{"session_id": sessionID, "from": from, "to": to}).Debug("transition already applied")
		return false, nil
	}

	s.log.WithFields(logrus.Fields{"session_id": sessionID, "from": from, "to": to}).Info("session transitioned")
	s.invalidate(ctx, sessionID)
	s.afterTransition(ctx, sessionID, to, stamps)
	if to == models.StatusPreparation {
		s.startIfAllReady(ctx, sessionID)
	}
	return true, nil
}

// startIfAllReady covers ready calls made while the waiting room was open;
// those could not start the discussion themselves.
func (s *sessionService) startIfAllReady(ctx context.Context, sessionID string) {
	ps, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("ready check after preparation failed")
		return
	}
	if _, _, all := ReadyQuorum(ps); !all {
		return
	}
	if _, err := s.Transition(ctx, sessionID, models.StatusPreparation, models.StatusDiscussion,
		map[string]any{"discussion_start_time": s.now()}); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to start discussion after preparation")
	}
}

// afterTransition runs only for the caller whose write applied, so each phase
// change is broadcast once.
func (s *sessionService) afterTransition(ctx context.Context, sessionID string, to models.SessionStatus, stamps map[string]any) {
	ev := notify.Event{SessionID: sessionID, Status: string(to)}
	switch to {
	case models.StatusPreparation:
		ev.PreparationStartTime = stampTime(stamps, "preparation_start_time")
	case models.StatusDiscussion:
		ev.Status = notify.StatusReady
		ev.DiscussionStartTime = stampTime(stamps, "discussion_start_time")
		if s.autoRecord && s.recordings != nil {
			go s.recordAsync(ctx, sessionID, true)
		}
	case models.StatusEvaluation:
		if s.recordings != nil {
			go s.recordAsync(ctx, sessionID, false)
		}
	}
	s.broadcast(ctx, ev)
}

func (s *sessionService) recordAsync(parent context.Context, sessionID string, start bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 2*time.Minute)
	defer cancel()

	var results []ModeResult
	if start {
		results = s.recordings.StartAll(ctx, sessionID)
	} else {
		results = s.recordings.StopAll(ctx, sessionID)
	}
	for _, r := range results {
		entry := s.log.WithFields(logrus.Fields{"session_id": sessionID, "mode": r.Mode, "start": start})
		if r.Err != nil {
			// the discussion carries on without this recording
			entry.WithError(r.Err).Warn("recording call failed")
			continue
		}
		entry.Info("recording call done")
	}
}

func (s *sessionService) broadcast(ctx context.Context, ev notify.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session_id": ev.SessionID, "status": ev.Status}).Warn("broadcast failed")
	}
}

func (s *sessionService) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Drop(ctx, sessionID); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Debug("session cache invalidate failed")
	}
}

func (s *sessionService) Timer(ctx context.Context, sessionID string, now time.Time) (*Timer, error) {
	const op = "SessionService.Timer"

	session, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	t := ComputeTimer(session, s.cfg, now)
	return &t, nil
}

func (s *sessionService) EndDiscussion(ctx context.Context, sessionID string) (bool, error) {
	const op = "SessionService.EndDiscussion"

	session, err := s.load(ctx, op, sessionID)
	if err != nil {
		return false, err
	}
	switch session.Status {
	case models.StatusEvaluation, models.StatusCompleted:
		return false, nil
	case models.StatusDiscussion:
		return s.Transition(ctx, sessionID, models.StatusDiscussion, models.StatusEvaluation, nil)
	default:
		return false, utils.E(utils.CodeInvalidTransition, op, "session is not in discussion", nil)
	}
}

func stampTime(stamps map[string]any, key string) *time.Time {
	if v, ok := stamps[key].(time.Time); ok {
		return &v
	}
	return nil
}
