package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"github.com/yoockh/groupspeak/internal/providers/recording"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/storage"
	"github.com/yoockh/groupspeak/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RecordingModes is the order StartAll and StopAll report results in.
var RecordingModes = []models.RecordingMode{models.RecordingIndividual, models.RecordingComposite}

type RecordingSettings struct {
	IndividualUID string
	CompositeUID  string
	SignedURLTTL  time.Duration
}

type ModeResult struct {
	Mode   models.RecordingMode    `json:"mode"`
	Handle *models.RecordingHandle `json:"handle,omitempty"`
	// AlreadyDone marks a start on a running recording or a stop on a stopped one.
	AlreadyDone bool     `json:"already_done"`
	FileNames   []string `json:"file_names,omitempty"`
	Err         error    `json:"-"`
	Error       string   `json:"error,omitempty"`
}

type RecordingFile struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type RecordingView struct {
	Mode      models.RecordingMode `json:"mode"`
	SID       string               `json:"sid"`
	StoppedAt time.Time            `json:"stopped_at"`
	Files     []RecordingFile      `json:"files"`
}

type RecordingService interface {
	Acquire(ctx context.Context, sessionID string, mode models.RecordingMode) (string, error)
	Start(ctx context.Context, sessionID string, mode models.RecordingMode) (*ModeResult, error)
	Stop(ctx context.Context, sessionID string, mode models.RecordingMode) (*ModeResult, error)
	StartAll(ctx context.Context, sessionID string) []ModeResult
	StopAll(ctx context.Context, sessionID string) []ModeResult
	ListRecordings(ctx context.Context, sessionID string) ([]RecordingView, error)
}

type recordingService struct {
	sessions pgrepo.SessionRepository
	archives pgrepo.RecordingArchiveRepository
	provider recording.Provider
	signer   storage.Signer // optional
	cfg      RecordingSettings
	log      *logrus.Logger
}

func NewRecordingService(
	sessions pgrepo.SessionRepository,
	archives pgrepo.RecordingArchiveRepository,
	provider recording.Provider,
	signer storage.Signer,
	cfg RecordingSettings,
	log *logrus.Logger,
) RecordingService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	return &recordingService{
		sessions: sessions,
		archives: archives,
		provider: provider,
		signer:   signer,
		cfg:      cfg,
		log:      log,
	}
}

func (s *recordingService) uid(mode models.RecordingMode) string {
	if mode == models.RecordingComposite {
		return s.cfg.CompositeUID
	}
	return s.cfg.IndividualUID
}

func (s *recordingService) session(ctx context.Context, op, sessionID string, mode models.RecordingMode) (*models.Session, error) {
	if _, _, ok := models.RecordingColumns(mode); !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "mode must be individual or composite", nil)
	}
	out, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

// Acquire reserves a provider resource for mode and claims it on the session
// as a handle without a sid. When another caller already holds the mode its
// resource is returned instead.
func (s *recordingService) Acquire(ctx context.Context, sessionID string, mode models.RecordingMode) (string, error) {
	const op = "RecordingService.Acquire"

	session, err := s.session(ctx, op, sessionID, mode)
	if err != nil {
		return "", err
	}
	if h := session.Handle(mode); h != nil {
		return h.ResourceID, nil
	}
	rid, claimed, err := s.claim(ctx, op, session, mode)
	if err != nil {
		return "", err
	}
	if !claimed {
		h, err := s.current(ctx, op, sessionID, mode)
		if err != nil || h == nil {
			return "", err
		}
		return h.ResourceID, nil
	}
	return rid, nil
}

// claim acquires a resource and stores it only if the mode is still free.
// A lost claim leaves the acquired resource unused; the provider releases it.
func (s *recordingService) claim(ctx context.Context, op string, session *models.Session, mode models.RecordingMode) (string, bool, error) {
	rid, err := s.provider.Acquire(ctx, session.Code, s.uid(mode))
	if err != nil {
		return "", false, utils.E(utils.CodeRecordingProvider, op, "failed to acquire recording resource", err)
	}
	claimed, err := s.sessions.ClaimRecording(ctx, session.ID, mode, rid)
	if err != nil {
		return "", false, utils.E(utils.CodeInternal, op, "failed to store recording resource", err)
	}
	if !claimed {
		s.log.WithFields(logrus.Fields{"session_id": session.ID, "mode": mode, "resource_id": rid}).
			Info("recording mode already claimed, dropping acquired resource")
	}
	return rid, claimed, nil
}

func (s *recordingService) current(ctx context.Context, op, sessionID string, mode models.RecordingMode) (*models.RecordingHandle, error) {
	fresh, err := s.session(ctx, op, sessionID, mode)
	if err != nil {
		return nil, err
	}
	return fresh.Handle(mode), nil
}

// Start begins recording mode once per session. The resource claim and the sid
// write are both conditional, so concurrent starts leave exactly one live
// recording and every loser reports AlreadyDone.
func (s *recordingService) Start(ctx context.Context, sessionID string, mode models.RecordingMode) (*ModeResult, error) {
	const op = "RecordingService.Start"

	session, err := s.session(ctx, op, sessionID, mode)
	if err != nil {
		return nil, err
	}

	h := session.Handle(mode)
	if h != nil && h.SID != "" {
		return &ModeResult{Mode: mode, Handle: h, AlreadyDone: true}, nil
	}

	var rid string
	if h != nil {
		rid = h.ResourceID
	} else {
		var claimed bool
		rid, claimed, err = s.claim(ctx, op, session, mode)
		if err != nil {
			return nil, err
		}
		if !claimed {
			cur, err := s.current(ctx, op, sessionID, mode)
			if err != nil {
				return nil, err
			}
			return &ModeResult{Mode: mode, Handle: cur, AlreadyDone: true}, nil
		}
	}

	sid, err := s.provider.Start(ctx, rid, session.Code, s.uid(mode), mode)
	if err != nil {
		return nil, utils.E(utils.CodeRecordingProvider, op, "failed to start "+string(mode)+" recording", err)
	}

	stored, err := s.sessions.SetRecordingSID(ctx, sessionID, mode, rid, sid)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store recording handle", err)
	}
	if !stored {
		// another start on the same resource got its sid in first; stop ours
		if _, err := s.provider.Stop(ctx, rid, sid, session.Code, s.uid(mode), mode); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"session_id": sessionID, "mode": mode, "sid": sid}).
				Error("failed to stop duplicate recording")
		}
		cur, err := s.current(ctx, op, sessionID, mode)
		if err != nil {
			return nil, err
		}
		return &ModeResult{Mode: mode, Handle: cur, AlreadyDone: true}, nil
	}

	handle := models.RecordingHandle{ResourceID: rid, SID: sid}
	return &ModeResult{Mode: mode, Handle: &handle}, nil
}

// Stop is a local no-op when no handle is stored, so retries never reach the provider.
func (s *recordingService) Stop(ctx context.Context, sessionID string, mode models.RecordingMode) (*ModeResult, error) {
	const op = "RecordingService.Stop"

	session, err := s.session(ctx, op, sessionID, mode)
	if err != nil {
		return nil, err
	}

	h := session.Handle(mode)
	if h == nil {
		return &ModeResult{Mode: mode, AlreadyDone: true}, nil
	}

	res := &ModeResult{Mode: mode, Handle: h}
	if h.SID != "" {
		out, err := s.provider.Stop(ctx, h.ResourceID, h.SID, session.Code, s.uid(mode), mode)
		if err != nil {
			msg := "failed to stop " + string(mode) + " recording"
			var pe *recording.ProviderError
			if errors.As(err, &pe) {
				msg += ": " + pe.Body
			}
			return nil, utils.E(utils.CodeRecordingStop, op, msg, err)
		}
		res.FileNames = out.FileNames
	}

	if _, err := s.sessions.ClearRecordingHandle(ctx, sessionID, mode, h.ResourceID); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to clear recording handle", err)
	}

	if h.SID != "" {
		archive := &models.RecordingArchive{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Mode:      mode,
			SID:       h.SID,
			FileNames: res.FileNames,
			StoppedAt: time.Now().UTC(),
		}
		if err := s.archives.Insert(ctx, archive); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"session_id": sessionID, "mode": mode}).Warn("failed to archive recording file list")
		}
	}
	return res, nil
}

func (s *recordingService) StartAll(ctx context.Context, sessionID string) []ModeResult {
	return s.each(ctx, sessionID, s.Start)
}

func (s *recordingService) StopAll(ctx context.Context, sessionID string) []ModeResult {
	return s.each(ctx, sessionID, s.Stop)
}

// each runs fn for every mode concurrently. A failing mode never cancels the other.
func (s *recordingService) each(ctx context.Context, sessionID string, fn func(context.Context, string, models.RecordingMode) (*ModeResult, error)) []ModeResult {
	out := make([]ModeResult, len(RecordingModes))
	var g errgroup.Group
	for i, mode := range RecordingModes {
		g.Go(func() error {
			r, err := fn(ctx, sessionID, mode)
			if err != nil {
				out[i] = ModeResult{Mode: mode, Err: err, Error: err.Error()}
				return nil
			}
			out[i] = *r
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *recordingService) ListRecordings(ctx context.Context, sessionID string) ([]RecordingView, error) {
	const op = "RecordingService.ListRecordings"

	rows, err := s.archives.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}

	out := make([]RecordingView, 0, len(rows))
	for _, a := range rows {
		v := RecordingView{Mode: a.Mode, SID: a.SID, StoppedAt: a.StoppedAt, Files: make([]RecordingFile, 0, len(a.FileNames))}
		for _, name := range a.FileNames {
			f := RecordingFile{Name: name}
			if s.signer != nil {
				url, err := s.signer.SignedGetURL(ctx, name, s.cfg.SignedURLTTL)
				if err != nil {
					s.log.WithError(err).WithField("object", name).Warn("failed to sign recording url")
				} else {
					f.URL = url
				}
			}
			v.Files = append(v.Files, f)
		}
		out = append(out, v)
	}
	return out, nil
}
