// Package notify broadcasts session phase changes to connected clients.
// Delivery is best effort; clients also poll the session endpoint.
package notify

import (
	"context"
	"time"
)

type Event struct {
	SessionID            string     `json:"session_id"`
	Status               string     `json:"status"`
	PreparationStartTime *time.Time `json:"preparation_start_time,omitempty"`
	DiscussionStartTime  *time.Time `json:"discussion_start_time,omitempty"`
	Message              string     `json:"message,omitempty"`
}

// StatusReady is broadcast when every participant is ready and the discussion clock starts.
const StatusReady = "ready"

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Channel is the session-scoped topic name.
func Channel(sessionID string) string { return "session_status_" + sessionID }
