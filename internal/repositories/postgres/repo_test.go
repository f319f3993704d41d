package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// recording_archives uses a postgres array column and is left out here
	if err := db.AutoMigrate(&models.Topic{}, &models.Session{}, &models.Participant{}, &models.MergedTranscript{}, &models.Evaluation{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedSession(t *testing.T, repo SessionRepository, status models.SessionStatus) *models.Session {
	t.Helper()
	s := &models.Session{
		ID:        uuid.NewString(),
		Code:      uuid.NewString()[:8],
		TestTopic: "remote work",
		Status:    status,
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestSessionRepo_TransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))
	s := seedSession(t, repo, models.StatusPreparation)

	start := time.Now().UTC()
	ok, err := repo.Transition(ctx, s.ID, models.StatusPreparation, models.StatusDiscussion, map[string]any{"discussion_start_time": start})
	if err != nil || !ok {
		t.Fatalf("expected first transition to apply, ok=%v err=%v", ok, err)
	}
	ok, err = repo.Transition(ctx, s.ID, models.StatusPreparation, models.StatusDiscussion, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected stale transition to affect zero rows")
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if got.Status != models.StatusDiscussion {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if got.DiscussionStartTime == nil {
		t.Fatal("expected discussion_start_time to be stamped")
	}
}

func TestSessionRepo_GetByIDNotFound(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	if _, err := repo.GetByID(context.Background(), uuid.NewString()); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepo_MarkTranscriptMergedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))
	s := seedSession(t, repo, models.StatusDiscussion)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkTranscriptMerged(ctx, s.ID)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	released, err := repo.ReleaseTranscriptMerge(ctx, s.ID)
	if err != nil || !released {
		t.Fatalf("expected release to apply, released=%v err=%v", released, err)
	}
	ok, err := repo.MarkTranscriptMerged(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("expected claim after release to apply, ok=%v err=%v", ok, err)
	}
}

func TestSessionRepo_RecordingHandleLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newTestDB(t))
	s := seedSession(t, repo, models.StatusDiscussion)

	ok, err := repo.ClaimRecording(ctx, s.ID, models.RecordingComposite, "res-1")
	if err != nil || !ok {
		t.Fatalf("expected first claim to apply, ok=%v err=%v", ok, err)
	}
	ok, err = repo.ClaimRecording(ctx, s.ID, models.RecordingComposite, "res-2")
	if err != nil || ok {
		t.Fatalf("expected second claim to miss, ok=%v err=%v", ok, err)
	}
	ok, err = repo.SetRecordingSID(ctx, s.ID, models.RecordingComposite, "res-2", "sid-2")
	if err != nil || ok {
		t.Fatalf("expected sid for foreign resource to miss, ok=%v err=%v", ok, err)
	}
	ok, err = repo.SetRecordingSID(ctx, s.ID, models.RecordingComposite, "res-1", "sid-1")
	if err != nil || !ok {
		t.Fatalf("expected sid write to apply, ok=%v err=%v", ok, err)
	}
	ok, _ = repo.SetRecordingSID(ctx, s.ID, models.RecordingComposite, "res-1", "sid-3")
	if ok {
		t.Fatal("expected sid to be written once")
	}
	got, _ := repo.GetByID(ctx, s.ID)
	h := got.Handle(models.RecordingComposite)
	if h == nil || h.ResourceID != "res-1" || h.SID != "sid-1" {
		t.Fatalf("unexpected handle: %+v", h)
	}
	if got.Handle(models.RecordingIndividual) != nil {
		t.Fatal("individual handle must stay empty")
	}

	ok, err = repo.ClearRecordingHandle(ctx, s.ID, models.RecordingComposite, "other")
	if err != nil || ok {
		t.Fatalf("expected mismatched clear to be a no-op, ok=%v err=%v", ok, err)
	}
	ok, err = repo.ClearRecordingHandle(ctx, s.ID, models.RecordingComposite, "res-1")
	if err != nil || !ok {
		t.Fatalf("expected clear to apply, ok=%v err=%v", ok, err)
	}
	ok, _ = repo.ClearRecordingHandle(ctx, s.ID, models.RecordingComposite, "res-1")
	if ok {
		t.Fatal("expected second clear to be a no-op")
	}
	got, _ = repo.GetByID(ctx, s.ID)
	if got.Handle(models.RecordingComposite) != nil {
		t.Fatalf("expected handle to be cleared, got %+v", got.Handle(models.RecordingComposite))
	}

	if _, err := repo.ClaimRecording(ctx, s.ID, "bogus", "x"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if _, err := repo.SetRecordingSID(ctx, s.ID, "bogus", "x", "y"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestParticipantRepo_JoinLimitsAndIdempotency(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessions := NewSessionRepo(db)
	parts := NewParticipantRepo(db)
	s := seedSession(t, sessions, models.StatusWaiting)

	first, n, err := parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: s.ID, UserID: strPtr("u1")}, 3)
	if err != nil || n != 1 {
		t.Fatalf("unexpected join result n=%d err=%v", n, err)
	}
	again, n, err := parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: s.ID, UserID: strPtr("u1")}, 3)
	if err != nil || n != 1 || again.ID != first.ID {
		t.Fatalf("expected idempotent join, n=%d id=%s err=%v", n, again.ID, err)
	}
	if _, n, err = parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: s.ID, IsAI: true}, 3); err != nil || n != 2 {
		t.Fatalf("unexpected synthetic join n=%d err=%v", n, err)
	}
	if _, n, err = parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: s.ID, UserID: strPtr("u2")}, 3); err != nil || n != 3 {
		t.Fatalf("unexpected third join n=%d err=%v", n, err)
	}
	if _, _, err = parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: s.ID, UserID: strPtr("u3")}, 3); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}
	if _, _, err = parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: uuid.NewString(), UserID: strPtr("u1")}, 3); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}

	rows, err := parts.ListBySession(ctx, s.ID)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(rows) != 3 || len(models.HumanParticipants(rows)) != 2 {
		t.Fatalf("unexpected participants: %+v", rows)
	}
}

func TestParticipantRepo_SetReady(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessions := NewSessionRepo(db)
	parts := NewParticipantRepo(db)
	s := seedSession(t, sessions, models.StatusPreparation)

	if _, _, err := parts.Join(ctx, &models.Participant{ID: uuid.NewString(), SessionID: s.ID, UserID: strPtr("u1")}, 4); err != nil {
		t.Fatalf("failed to join: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := parts.SetReady(ctx, s.ID, "u1"); err != nil {
			t.Fatalf("ready call %d failed: %v", i, err)
		}
	}
	if err := parts.SetReady(ctx, s.ID, "ghost"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rows, _ := parts.ListBySession(ctx, s.ID)
	if !rows[0].Ready {
		t.Fatal("expected participant to be ready")
	}
}

func TestMergedTranscriptRepo_CreateOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMergedTranscriptRepo(db)
	sid := uuid.NewString()

	created, err := repo.Create(ctx, &models.MergedTranscript{SessionID: sid, Content: "Participant A: hi"})
	if err != nil || !created {
		t.Fatalf("expected create, created=%v err=%v", created, err)
	}
	created, err = repo.Create(ctx, &models.MergedTranscript{SessionID: sid, Content: "other"})
	if err != nil || created {
		t.Fatalf("expected duplicate to be skipped, created=%v err=%v", created, err)
	}
	got, err := repo.GetBySessionID(ctx, sid)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Content != "Participant A: hi" {
		t.Fatalf("unexpected content: %q", got.Content)
	}
}

func TestEvaluationRepo_InsertAllSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewEvaluationRepo(newTestDB(t))
	sid := uuid.NewString()

	rows := func() []models.Evaluation {
		return []models.Evaluation{
			{ID: uuid.NewString(), SessionID: sid, UserID: "u1", Label: "A", ContentScore: 5},
			{ID: uuid.NewString(), SessionID: sid, UserID: "u2", Label: "B", ContentScore: 3},
		}
	}
	n, err := repo.InsertAll(ctx, rows())
	if err != nil || n != 2 {
		t.Fatalf("unexpected first insert n=%d err=%v", n, err)
	}
	n, err = repo.InsertAll(ctx, rows())
	if err != nil || n != 0 {
		t.Fatalf("expected duplicates to be skipped, n=%d err=%v", n, err)
	}
	count, _ := repo.CountBySession(ctx, sid)
	if count != 2 {
		t.Fatalf("unexpected count: %d", count)
	}
	list, _ := repo.ListBySession(ctx, sid)
	if list[0].Label != "A" || list[1].Label != "B" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestTopicRepo_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewTopicRepo(newTestDB(t))

	if err := repo.Upsert(ctx, &models.Topic{ID: "t1", Title: "Old", Rubric: "r1"}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := repo.Upsert(ctx, &models.Topic{ID: "t1", Title: "New", Rubric: "r2"}); err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	got, err := repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Title != "New" || got.Rubric != "r2" {
		t.Fatalf("unexpected topic: %+v", got)
	}
}
