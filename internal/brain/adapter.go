package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is the normalized prompt sent to an external responder.
type Request struct {
	Agent     string   `json:"agent"`
	SessionID string   `json:"session_id"`
	Intent    string   `json:"intent"`
	InputText string   `json:"input_text"`
	Context   []string `json:"context,omitempty"`
}

// Response carries the replacement reply text.
type Response struct {
	Text string `json:"text"`
}

// Adapter asks an external service for reply text. Callers invoke it at
// most once per chat and fall back to their local generator on error.
type Adapter interface {
	Respond(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Config struct {
	Mode    string
	HTTPURL string
	Timeout time.Duration
}

// NewAdapter returns nil for mode "off" (or empty).
func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "off":
		return nil, nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}
}
