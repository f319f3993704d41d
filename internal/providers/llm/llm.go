package llm

import "context"

// Provider is a stateless chat-style completion service that answers with one JSON object.
type Provider interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
	Close() error
}
