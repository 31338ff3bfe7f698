package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic replies for local runs and tests.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Name() string { return "mock" }

func (a *MockAdapter) Respond(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	base := strings.TrimSpace(req.InputText)
	if base == "" {
		base = "I am listening."
	}
	if len(req.Context) == 0 {
		return Response{Text: fmt.Sprintf("[%s/%s] I heard you: %s", req.Agent, req.Intent, base)}, nil
	}
	last := strings.TrimSpace(req.Context[len(req.Context)-1])
	return Response{Text: fmt.Sprintf("[%s/%s] I heard you: %s\nEarlier you said: %s", req.Agent, req.Intent, base, last)}, nil
}
