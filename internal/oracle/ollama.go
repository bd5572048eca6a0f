package oracle

import (
	"context"
	"strings"

	"github.com/kalambet/stockai/internal/ollama"
)

// Ollama routes completions to a local Ollama server.
type Ollama struct {
	client *ollama.Client
}

// NewOllama creates a Completer for the Ollama server at baseURL.
func NewOllama(baseURL string) *Ollama {
	return &Ollama{client: ollama.New(baseURL)}
}

// Client exposes the underlying client for readiness checks.
func (o *Ollama) Client() *ollama.Client {
	return o.client
}

func (o *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	var messages []ollama.Message
	if req.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: req.Prompt})

	out, err := o.client.Chat(ctx, req.Model, messages, &ollama.Options{Temperature: req.Temperature}, req.JSON)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
