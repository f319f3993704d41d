package recording

import (
	"context"
	"errors"
	"fmt"

	"github.com/yoockh/groupspeak/internal/models"
)

// Provider is the external cloud recording service. All calls are synchronous.
type Provider interface {
	Acquire(ctx context.Context, cname, uid string) (resourceID string, err error)
	Start(ctx context.Context, resourceID, cname, uid string, mode models.RecordingMode) (sid string, err error)
	Stop(ctx context.Context, resourceID, sid, cname, uid string, mode models.RecordingMode) (*StopResult, error)
}

type StopResult struct {
	FileNames       []string
	UploadingStatus string
}

// ProviderError carries the provider's diagnostic detail for a non-success response.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("recording %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

var ErrDisabled = errors.New("cloud recording is disabled")

// Disabled stands in when no provider credentials are configured.
type Disabled struct{}

func (Disabled) Acquire(context.Context, string, string) (string, error) { return "", ErrDisabled }

func (Disabled) Start(context.Context, string, string, string, models.RecordingMode) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Stop(context.Context, string, string, string, string, models.RecordingMode) (*StopResult, error) {
	return nil, ErrDisabled
}
