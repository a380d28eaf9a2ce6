package grading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kurid3v/AVinci/pkg/ai"
)

type stubClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []ai.Request
}

func (s *stubClient) Generate(_ context.Context, req ai.Request) (ai.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx < len(s.errs) && s.errs[idx] != nil {
		return ai.Response{}, s.errs[idx]
	}
	if idx < len(s.responses) {
		return ai.Response{Text: s.responses[idx]}, nil
	}
	if len(s.responses) > 0 {
		return ai.Response{Text: s.responses[len(s.responses)-1]}, nil
	}
	return ai.Response{}, errors.New("stub: no response configured")
}

func (s *stubClient) Provider() string {
	return "stub"
}

func (s *stubClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestEngine(t *testing.T, client ai.Client) *Engine {
	t.Helper()
	engine, err := NewEngine(client, Config{
		Model:       "test-model",
		Temperature: 0.1,
		Retry:       ai.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond},
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return engine
}
