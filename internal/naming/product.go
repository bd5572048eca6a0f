package naming

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/stockai/internal/oracle"
)

// UnknownProduct replaces product names that are empty after normalization.
const UnknownProduct = "unknown product"

// ProductNormalizer maps a product name as printed on an invoice to a
// canonical name shared across suppliers. Implementations never fail; they
// degrade to a weaker normalization instead.
type ProductNormalizer interface {
	NormalizeProduct(ctx context.Context, raw string) string
}

// FilterProduct keeps lowercase letters, digits and single spaces.
func FilterProduct(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxLatin1+0x180:
			b.WriteRune(r)
		case unicode.IsDigit(r) && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// RuleProducts normalizes names with FilterProduct alone.
type RuleProducts struct{}

func (RuleProducts) NormalizeProduct(_ context.Context, raw string) string {
	if out := FilterProduct(raw); out != "" {
		return out
	}
	return UnknownProduct
}

// OracleProducts asks a language model for the generic singular name of a
// product and falls back to FilterProduct when the call fails.
type OracleProducts struct {
	oracle oracle.Completer
	model  string
	logger *slog.Logger
}

// NewOracleProducts creates an OracleProducts using model on c.
func NewOracleProducts(c oracle.Completer, model string) *OracleProducts {
	return &OracleProducts{oracle: c, model: model, logger: slog.Default()}
}

func (o *OracleProducts) NormalizeProduct(ctx context.Context, raw string) string {
	name, _ := o.normalize(ctx, raw)
	return name
}

// fallibleNormalizer reports whether a name is final. A false result is a
// fallback that callers must not remember.
type fallibleNormalizer interface {
	normalize(ctx context.Context, raw string) (name string, ok bool)
}

func (o *OracleProducts) normalize(ctx context.Context, raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return UnknownProduct, true
	}

	out, err := o.oracle.Complete(ctx, oracle.Request{
		Model:       o.model,
		Prompt:      fmt.Sprintf(productPrompt, raw),
		Temperature: 0.1,
	})
	if err != nil {
		o.logger.Error("product normalization failed, using filtered name", "product", raw, "error", err)
		return RuleProducts{}.NormalizeProduct(ctx, raw), false
	}

	if name := FilterProduct(out); name != "" {
		return name, true
	}
	return UnknownProduct, true
}

// CachedProducts memoizes another normalizer by raw name. Concurrent lookups
// of the same name share one call. Fallback names returned after a failed
// oracle call are not cached, so the next lookup asks again.
type CachedProducts struct {
	next  ProductNormalizer
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachedProducts wraps next with an in-memory cache.
func NewCachedProducts(next ProductNormalizer) *CachedProducts {
	return &CachedProducts{next: next, cache: make(map[string]string)}
}

func (c *CachedProducts) NormalizeProduct(ctx context.Context, raw string) string {
	key := strings.TrimSpace(raw)

	c.mu.RLock()
	name, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return name
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		name, ok := c.cache[key]
		c.mu.RUnlock()
		if ok {
			return name, nil
		}

		name, ok = c.lookup(ctx, raw)
		if ok {
			c.mu.Lock()
			c.cache[key] = name
			c.mu.Unlock()
		}
		return name, nil
	})
	return v.(string)
}

func (c *CachedProducts) lookup(ctx context.Context, raw string) (string, bool) {
	if f, ok := c.next.(fallibleNormalizer); ok {
		return f.normalize(ctx, raw)
	}
	return c.next.NormalizeProduct(ctx, raw), true
}

// Len reports the number of cached names.
func (c *CachedProducts) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
