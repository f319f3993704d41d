package storage

import (
	"context"
	"time"
)

// Signer issues time-limited download URLs for recorded files.
type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}
