package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/notify"
	"github.com/yoockh/groupspeak/internal/providers/recording"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func strPtr(s string) *string { return &s }

// ---- sessions

type fakeSessionRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[string]*models.Session)}
}

func (r *fakeSessionRepo) put(s *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.ID] = &cp
}

func (r *fakeSessionRepo) Create(_ context.Context, s *models.Session) error {
	r.put(s)
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) Transition(_ context.Context, id string, from, to models.SessionStatus, stamps map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	for k, v := range stamps {
		t, _ := v.(time.Time)
		switch k {
		case "preparation_start_time":
			s.PreparationStartTime = &t
		case "discussion_start_time":
			s.DiscussionStartTime = &t
		}
	}
	return true, nil
}

func (r *fakeSessionRepo) MarkTranscriptMerged(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.TranscriptMerged {
		return false, nil
	}
	s.TranscriptMerged = true
	return true, nil
}

func (r *fakeSessionRepo) ReleaseTranscriptMerge(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !s.TranscriptMerged {
		return false, nil
	}
	s.TranscriptMerged = false
	return true, nil
}

func (r *fakeSessionRepo) ClaimRecording(_ context.Context, id string, mode models.RecordingMode, resourceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	rid := resourceID
	switch mode {
	case models.RecordingIndividual:
		if s.IndividualResourceID != nil {
			return false, nil
		}
		s.IndividualResourceID, s.IndividualSID = &rid, nil
	case models.RecordingComposite:
		if s.CompositeResourceID != nil {
			return false, nil
		}
		s.CompositeResourceID, s.CompositeSID = &rid, nil
	default:
		return false, pgrepo.ErrUnknownMode
	}
	return true, nil
}

func (r *fakeSessionRepo) SetRecordingSID(_ context.Context, id string, mode models.RecordingMode, resourceID, sid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	h := s.Handle(mode)
	if h == nil || h.ResourceID != resourceID || h.SID != "" {
		return false, nil
	}
	switch mode {
	case models.RecordingIndividual:
		s.IndividualSID = strPtr(sid)
	case models.RecordingComposite:
		s.CompositeSID = strPtr(sid)
	}
	return true, nil
}

func (r *fakeSessionRepo) ClearRecordingHandle(_ context.Context, id string, mode models.RecordingMode, resourceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	h := s.Handle(mode)
	if h == nil || h.ResourceID != resourceID {
		return false, nil
	}
	switch mode {
	case models.RecordingIndividual:
		s.IndividualResourceID, s.IndividualSID = nil, nil
	case models.RecordingComposite:
		s.CompositeResourceID, s.CompositeSID = nil, nil
	}
	return true, nil
}

func (r *fakeSessionRepo) ListDue(_ context.Context, status models.SessionStatus, before time.Time, _ int) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.rows {
		if s.Status != status {
			continue
		}
		var anchor *time.Time
		switch status {
		case models.StatusWaiting:
			anchor = &s.ExpiresAt
		case models.StatusPreparation:
			anchor = s.PreparationStartTime
		case models.StatusDiscussion:
			anchor = s.DiscussionStartTime
		}
		if anchor != nil && anchor.Before(before) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) status(id string) models.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Status
}

// ---- participants

type fakeParticipantRepo struct {
	mu   sync.Mutex
	rows map[string][]models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{rows: make(map[string][]models.Participant)}
}

func (r *fakeParticipantRepo) Join(_ context.Context, p *models.Participant, max int) (*models.Participant, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.rows[p.SessionID]
	if p.UserID != nil {
		for i := range ps {
			if ps[i].UserID != nil && *ps[i].UserID == *p.UserID {
				cp := ps[i]
				return &cp, len(ps), nil
			}
		}
	}
	if len(ps) >= max {
		return nil, 0, pgrepo.ErrSessionFull
	}
	r.rows[p.SessionID] = append(ps, *p)
	return p, len(ps) + 1, nil
}

func (r *fakeParticipantRepo) ListBySession(_ context.Context, sessionID string) ([]models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]models.Participant(nil), r.rows[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *fakeParticipantRepo) SetReady(_ context.Context, sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.rows[sessionID] {
		if p.UserID != nil && *p.UserID == userID && !p.IsAI {
			r.rows[sessionID][i].Ready = true
			return nil
		}
	}
	return utils.ErrNotFound
}

// ---- topics

type fakeTopicRepo struct {
	mu   sync.Mutex
	rows map[string]models.Topic
}

func newFakeTopicRepo(ts ...models.Topic) *fakeTopicRepo {
	r := &fakeTopicRepo{rows: make(map[string]models.Topic)}
	for _, t := range ts {
		r.rows[t.ID] = t
	}
	return r
}

func (r *fakeTopicRepo) GetByID(_ context.Context, id string) (*models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &t, nil
}

func (r *fakeTopicRepo) Upsert(_ context.Context, t *models.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[t.ID] = *t
	return nil
}

// ---- transcript submissions

type fakeSubmissionRepo struct {
	mu    sync.Mutex
	order []string
	rows  map[string]models.TranscriptSubmission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{rows: make(map[string]models.TranscriptSubmission)}
}

func (r *fakeSubmissionRepo) Upsert(_ context.Context, t *models.TranscriptSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := t.SessionID + "/" + t.UserID
	if _, ok := r.rows[key]; ok {
		return nil
	}
	r.rows[key] = *t
	r.order = append(r.order, key)
	return nil
}

func (r *fakeSubmissionRepo) CountBySession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.rows {
		if t.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (r *fakeSubmissionRepo) ListBySession(_ context.Context, sessionID string) ([]models.TranscriptSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TranscriptSubmission
	for _, key := range r.order {
		if t := r.rows[key]; t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ---- merged transcripts

type fakeMergedRepo struct {
	mu      sync.Mutex
	rows    map[string]models.MergedTranscript
	creates atomic.Int32
	fail    error
}

func newFakeMergedRepo() *fakeMergedRepo {
	return &fakeMergedRepo{rows: make(map[string]models.MergedTranscript)}
}

func (r *fakeMergedRepo) Create(_ context.Context, t *models.MergedTranscript) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return false, r.fail
	}
	if _, ok := r.rows[t.SessionID]; ok {
		return false, nil
	}
	r.creates.Add(1)
	r.rows[t.SessionID] = *t
	return true, nil
}

func (r *fakeMergedRepo) GetBySessionID(_ context.Context, sessionID string) (*models.MergedTranscript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &t, nil
}

// ---- evaluations

type fakeEvaluationRepo struct {
	mu   sync.Mutex
	rows []models.Evaluation
}

func (r *fakeEvaluationRepo) InsertAll(_ context.Context, rows []models.Evaluation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range rows {
		dup := false
		for _, existing := range r.rows {
			if existing.SessionID == row.SessionID && existing.UserID == row.UserID {
				dup = true
				break
			}
		}
		if !dup {
			r.rows = append(r.rows, row)
			n++
		}
	}
	return n, nil
}

func (r *fakeEvaluationRepo) CountBySession(_ context.Context, sessionID string) (int64, error) {
	rows, _ := r.ListBySession(context.Background(), sessionID)
	return int64(len(rows)), nil
}

func (r *fakeEvaluationRepo) ListBySession(_ context.Context, sessionID string) ([]models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Evaluation
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// ---- recording archives

type fakeArchiveRepo struct {
	mu   sync.Mutex
	rows []models.RecordingArchive
}

func (r *fakeArchiveRepo) Insert(_ context.Context, a *models.RecordingArchive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *a)
	return nil
}

func (r *fakeArchiveRepo) ListBySession(_ context.Context, sessionID string) ([]models.RecordingArchive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RecordingArchive
	for _, a := range r.rows {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ---- recording provider

type fakeRecorder struct {
	acquires atomic.Int32
	starts   atomic.Int32
	stops    atomic.Int32
	failMode models.RecordingMode
	stopErr  error
	// acquireDelay widens the window between reading the session and claiming a mode.
	acquireDelay time.Duration
}

func (f *fakeRecorder) Acquire(_ context.Context, cname, uid string) (string, error) {
	n := f.acquires.Add(1)
	if f.acquireDelay > 0 {
		time.Sleep(f.acquireDelay)
	}
	return fmt.Sprintf("rid-%s-%d", uid, n), nil
}

func (f *fakeRecorder) Start(_ context.Context, resourceID, _, _ string, mode models.RecordingMode) (string, error) {
	n := f.starts.Add(1)
	if mode == f.failMode {
		return "", &recording.ProviderError{Op: "start", StatusCode: 400, Body: `{"code":2}`}
	}
	return fmt.Sprintf("sid-%s-%d", mode, n), nil
}

func (f *fakeRecorder) Stop(_ context.Context, _, sid, _, _ string, mode models.RecordingMode) (*recording.StopResult, error) {
	f.stops.Add(1)
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &recording.StopResult{FileNames: []string{sid + "/" + string(mode) + ".m3u8"}, UploadingStatus: "uploaded"}, nil
}

// ---- notifications

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count(status string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Status == status {
			n++
		}
	}
	return n
}

// ---- scoring

type fakeScorer struct {
	calls    atomic.Int32
	response string
	err      error
}

func (f *fakeScorer) GenerateJSON(_ context.Context, _, _ string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeScorer) Close() error { return nil }

// ---- dispatch

type fakeDispatcher struct {
	mu    sync.Mutex
	ids   []string
	onRun func(sessionID string)
}

func (d *fakeDispatcher) Dispatch(_ context.Context, sessionID string) error {
	d.mu.Lock()
	d.ids = append(d.ids, sessionID)
	run := d.onRun
	d.mu.Unlock()
	if run != nil {
		run(sessionID)
	}
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

var errBoom = errors.New("boom")
