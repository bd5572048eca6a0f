// Package extract turns the plain text of an invoice into a structured record
// with the help of a language model.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/stockai/internal/oracle"
)

var (
	// ErrOracle means the model call itself failed.
	ErrOracle = errors.New("extraction oracle failed")
	// ErrMalformedExtraction means the reply was not a usable invoice object.
	ErrMalformedExtraction = errors.New("malformed extraction")
)

// Extractor reads invoices through a Completer.
type Extractor struct {
	oracle oracle.Completer
	model  string
	logger *slog.Logger
}

// NewExtractor creates an Extractor that asks model on c.
func NewExtractor(c oracle.Completer, model string) *Extractor {
	return &Extractor{oracle: c, model: model, logger: slog.Default()}
}

// Extract returns the structured invoice found in text. Only the invoice
// number is required; every other field may be missing or null.
func (e *Extractor) Extract(ctx context.Context, text string) (*Invoice, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty invoice text", ErrMalformedExtraction)
	}

	raw, err := e.oracle.Complete(ctx, oracle.Request{
		Model:       e.model,
		Prompt:      BuildPrompt(text),
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOracle, err)
	}

	inv, err := Parse(raw)
	if err != nil {
		e.logger.Warn("unusable extraction reply", "error", err, "response", truncate(raw, 500))
		return nil, err
	}
	return inv, nil
}

// Parse decodes a model reply. Text around the outermost braces is ignored.
func Parse(raw string) (*Invoice, error) {
	content := strings.TrimSpace(raw)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var inv Invoice
	if err := json.Unmarshal([]byte(content), &inv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExtraction, err)
	}
	if inv.Number.Text() == "" {
		return nil, fmt.Errorf("%w: numero_factura missing", ErrMalformedExtraction)
	}
	return &inv, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
