package push

import (
	"context"
	"time"
)

// Message is the logical payload sent to every resolved device token.
type Message struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// TokenResult is the per-token outcome of a multicast send.
type TokenResult struct {
	Token   string
	Success bool
	Error   string
	// Unregistered means the gateway says the token is dead and should be
	// deactivated immediately rather than counted as a transient failure.
	Unregistered bool
}

// MulticastResult aggregates one gateway round trip.
type MulticastResult struct {
	SuccessCount int
	FailureCount int
	Results      []TokenResult
	SentAt       time.Time
}

// Transport delivers one message to many device tokens in a single gateway
// call. Token-level failures come back in the result; only a transport-level
// failure (gateway unreachable, auth rejected) is returned as an error.
type Transport interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) (*MulticastResult, error)
}
