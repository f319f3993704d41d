package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
)

const testRubric = "Content: relevance of ideas. Communication: clarity. Collaboration: building on others. Leadership: steering."

type harness struct {
	sessionRepo  *fakeSessionRepo
	participants *fakeParticipantRepo
	topics       *fakeTopicRepo
	submissions  *fakeSubmissionRepo
	merged       *fakeMergedRepo
	evaluations  *fakeEvaluationRepo
	archives     *fakeArchiveRepo
	recorder     *fakeRecorder
	publisher    *fakePublisher
	scorer       *fakeScorer
	dispatcher   *fakeDispatcher

	sessions    SessionService
	readiness   ReadinessService
	recordings  RecordingService
	transcripts TranscriptService
	evaluator   EvaluationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := quietLogger()
	h := &harness{
		sessionRepo:  newFakeSessionRepo(),
		participants: newFakeParticipantRepo(),
		topics:       newFakeTopicRepo(models.Topic{ID: "remote-work", Title: "Is remote work here to stay?", Rubric: testRubric}),
		submissions:  newFakeSubmissionRepo(),
		merged:       newFakeMergedRepo(),
		evaluations:  &fakeEvaluationRepo{},
		archives:     &fakeArchiveRepo{},
		recorder:     &fakeRecorder{},
		publisher:    &fakePublisher{},
		scorer:       &fakeScorer{},
		dispatcher:   &fakeDispatcher{},
	}
	h.recordings = NewRecordingService(h.sessionRepo, h.archives, h.recorder, nil,
		RecordingSettings{IndividualUID: "100001", CompositeUID: "100002"}, log)
	h.sessions = NewSessionService(SessionServiceDeps{
		Sessions:     h.sessionRepo,
		Participants: h.participants,
		Topics:       h.topics,
		Publisher:    h.publisher,
		Settings:     SessionSettings{MaxParticipants: 4},
		Log:          log,
	})
	h.readiness = NewReadinessService(h.sessions, h.sessionRepo, h.participants)
	h.transcripts = NewTranscriptService(h.sessions, h.sessionRepo, h.participants, h.submissions, h.merged, h.dispatcher, log)
	h.evaluator = NewEvaluationService(h.sessions, h.sessionRepo, h.participants, h.topics, h.merged, h.evaluations, h.scorer, time.Second, log)
	return h
}

// seed creates a session in status with the given human users joined in order
// plus synthetic members.
func (h *harness) seed(t *testing.T, status models.SessionStatus, users []string, synthetic int) *models.Session {
	t.Helper()
	now := time.Now().UTC()
	s := &models.Session{
		ID:        fmt.Sprintf("s-%d", now.UnixNano()),
		Code:      "gdtest",
		TopicID:   "remote-work",
		TestTopic: "Is remote work here to stay?",
		Status:    status,
		ExpiresAt: now.Add(10 * time.Minute),
	}
	if len(users) > 0 {
		s.HostUserID = users[0]
	}
	if status == models.StatusPreparation || status == models.StatusDiscussion {
		s.PreparationStartTime = &now
	}
	if status == models.StatusDiscussion {
		s.DiscussionStartTime = &now
	}
	h.sessionRepo.put(s)

	for i, u := range users {
		p := &models.Participant{ID: fmt.Sprintf("p-%d", i), SessionID: s.ID, UserID: strPtr(u), JoinedAt: now.Add(time.Duration(i) * time.Second)}
		if _, _, err := h.participants.Join(context.Background(), p, models.MaxParticipants); err != nil {
			t.Fatalf("seed join: %v", err)
		}
	}
	for i := 0; i < synthetic; i++ {
		p := &models.Participant{ID: fmt.Sprintf("ai-%d", i), SessionID: s.ID, IsAI: true, JoinedAt: now.Add(time.Duration(len(users)+i) * time.Second)}
		if _, _, err := h.participants.Join(context.Background(), p, models.MaxParticipants); err != nil {
			t.Fatalf("seed synthetic join: %v", err)
		}
	}
	return s
}

func scoringJSON(labels ...string) string {
	out := `{"participants":[`
	for i, l := range labels {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"label":%q,"scores":{"content":{"score":5,"comment":"relevant"},"communication":{"score":6,"comment":"clear"},"collaboration":{"score":%d,"comment":"listens"},"leadership":{"score":3,"comment":"quiet"}}}`, l, i%8)
	}
	return out + `]}`
}
