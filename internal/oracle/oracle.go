// Package oracle wraps the language-model services used to read invoices and
// canonicalize product names.
package oracle

import (
	"context"
	"fmt"
	"time"
)

// Request is a single-turn completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	// JSON asks the backend to constrain the reply to a JSON object.
	JSON bool
}

// Completer returns the model's text response to a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Backend names accepted by New.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New builds the Completer for cfg.Backend.
func New(cfg Config) (Completer, error) {
	var c Completer
	switch cfg.Backend {
	case BackendOpenAI, "":
		c = NewOpenAI(cfg.BaseURL, cfg.APIKey)
	case BackendOllama:
		c = NewOllama(cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown oracle backend %q", cfg.Backend)
	}
	if cfg.Timeout > 0 {
		c = WithTimeout(c, cfg.Timeout)
	}
	return c, nil
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every call made through next.
func WithTimeout(next Completer, timeout time.Duration) Completer {
	return &timeoutCompleter{next: next, timeout: timeout}
}

func (t *timeoutCompleter) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}

// Func adapts a plain function to Completer.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
