package push

import (
	"context"
	"sync"
	"time"
)

// FakeTransport is an in-memory Transport for tests and local development.
// Token outcomes are scripted per token value; unscripted tokens succeed.
type FakeTransport struct {
	mu sync.Mutex

	// FailTokens maps token -> gateway error string
	FailTokens map[string]string
	// UnregisteredTokens marks tokens the gateway reports as dead
	UnregisteredTokens map[string]bool
	// Err, when set, fails the whole multicast call
	Err error

	Calls [][]string
}

var _ Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a fake that succeeds for every token.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		FailTokens:         map[string]string{},
		UnregisteredTokens: map[string]bool{},
	}
}

// SendMulticast records the call and returns the scripted outcomes.
func (f *FakeTransport) SendMulticast(ctx context.Context, tokens []string, msg Message) (*MulticastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, append([]string(nil), tokens...))

	if f.Err != nil {
		return nil, f.Err
	}

	result := &MulticastResult{SentAt: time.Now().UTC()}
	for _, token := range tokens {
		tr := TokenResult{Token: token, Success: true}
		if errMsg, ok := f.FailTokens[token]; ok {
			tr.Success = false
			tr.Error = errMsg
			tr.Unregistered = f.UnregisteredTokens[token]
		}
		if tr.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
		result.Results = append(result.Results, tr)
	}
	return result, nil
}
