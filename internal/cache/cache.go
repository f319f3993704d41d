package cache

import (
	"context"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
)

// SessionSnapshotTTL bounds how stale a polled session view can be.
const SessionSnapshotTTL = 2 * time.Second

// SessionSnapshots holds short-lived copies of session rows for polling clients.
// A miss is (nil, false, nil); callers fall back to the datastore.
type SessionSnapshots interface {
	Load(ctx context.Context, sessionID string) (*models.Session, bool, error)
	Store(ctx context.Context, s *models.Session) error
	Drop(ctx context.Context, sessionID string) error
}
