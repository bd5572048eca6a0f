// Package pdftext reads the plain text of PDF documents.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned for documents without an extractable text layer,
// such as scanned images.
var ErrNoText = errors.New("pdf has no extractable text")

// Extractor produces the plain text of the document at path.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Reader extracts text row by row so that invoice tables keep one line item
// per output line.
type Reader struct{}

// ExtractText implements Extractor.
func (Reader) ExtractText(ctx context.Context, path string) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("reading page %d of %s: %w", i, path, err)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				if s := strings.TrimSpace(w.S); s != "" {
					words = append(words, s)
				}
			}
			if len(words) > 0 {
				sb.WriteString(strings.Join(words, " "))
				sb.WriteByte('\n')
			}
		}
	}

	text = strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNoText)
	}
	return text, nil
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, path string) (string, error)

func (f Func) ExtractText(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}
