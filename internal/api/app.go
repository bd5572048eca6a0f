// Package api exposes the invoice stores, reorder analytics and ingestion
// runs over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stockai/internal/export"
	"github.com/kalambet/stockai/internal/ingest"
	"github.com/kalambet/stockai/internal/reorder"
	"github.com/kalambet/stockai/internal/storage"
)

// InvoiceStore is the read and delete side of the per-entity stores.
type InvoiceStore interface {
	Entities() ([]string, error)
	ReadAll(entity string) ([]storage.Line, error)
	Query(entity string, f storage.Filter) ([]storage.Line, error)
	Delete(entity string, id int64) (int64, error)
}

// ReorderAnalyzer computes recommendations for an entity.
type ReorderAnalyzer interface {
	Compute(ctx context.Context, entity string) ([]reorder.Recommendation, error)
}

// Ingester runs the pending-invoice batch.
type Ingester interface {
	Run(ctx context.Context) (*ingest.Report, error)
	Pending() (int, error)
}

type serialIngester struct {
	mu   sync.Mutex
	next Ingester
}

// Serialize makes concurrent Run calls wait for each other.
func Serialize(i Ingester) Ingester {
	if s, ok := i.(*serialIngester); ok {
		return s
	}
	return &serialIngester{next: i}
}

func (s *serialIngester) Run(ctx context.Context) (*ingest.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Run(ctx)
}

func (s *serialIngester) Pending() (int, error) {
	return s.next.Pending()
}

// AppDeps holds the dependencies of the HTTP API.
type AppDeps struct {
	Store   InvoiceStore
	Reorder ReorderAnalyzer
	Ingest  Ingester
	// Token enables bearer authentication when non-empty.
	Token string
}

// NewAppHandler returns the HTTP API.
func NewAppHandler(deps AppDeps) http.Handler {
	deps.Ingest = Serialize(deps.Ingest)

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/entities", handleListEntities(deps))
		r.Get("/entities/{entity}/invoices", handleListInvoices(deps))
		r.Delete("/entities/{entity}/invoices/{id}", handleDeleteInvoiceLine(deps))
		r.Get("/entities/{entity}/reorder", handleReorder(deps))
		r.Get("/entities/{entity}/export.xlsx", handleExport(deps))

		r.Get("/ingest/pending", handlePending(deps))
		r.Post("/ingest/run", handleRun(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListEntities(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := deps.Store.Entities()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list entities: %v", err)
			return
		}
		writeJSON(w, entities)
	}
}

func handleListInvoices(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := chi.URLParam(r, "entity")

		f, err := parseFilter(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		lines, err := deps.Store.Query(entity, f)
		if err != nil {
			storeError(w, "failed to list invoice lines", err)
			return
		}
		writeJSON(w, lines)
	}
}

func handleDeleteInvoiceLine(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := chi.URLParam(r, "entity")
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid line id %q", chi.URLParam(r, "id"))
			return
		}

		n, err := deps.Store.Delete(entity, id)
		if err != nil {
			storeError(w, "failed to delete invoice line", err)
			return
		}
		writeJSON(w, map[string]int64{"deleted": n})
	}
}

func handleReorder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Reorder.Compute(r.Context(), chi.URLParam(r, "entity"))
		if err != nil {
			storeError(w, "failed to compute reorder points", err)
			return
		}
		writeJSON(w, recs)
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := chi.URLParam(r, "entity")

		lines, err := deps.Store.ReadAll(entity)
		if err != nil {
			storeError(w, "failed to read invoice lines", err)
			return
		}
		recs, err := deps.Reorder.Compute(r.Context(), entity)
		if err != nil {
			storeError(w, "failed to compute reorder points", err)
			return
		}

		b, err := export.Workbook(lines, recs)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build workbook: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, entity))
		w.Write(b)
	}
}

func handlePending(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Ingest.Pending()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count pending invoices: %v", err)
			return
		}
		writeJSON(w, map[string]int{"pending": n})
	}
}

func handleRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Ingest.Run(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "ingestion failed: %v", err)
			return
		}
		writeJSON(w, report)
	}
}

func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		Product: q.Get("product"),
		Invoice: q.Get("invoice"),
	}

	var err error
	if f.From, err = parseDateParam(q.Get("from")); err != nil {
		return f, fmt.Errorf("invalid from date: %w", err)
	}
	if f.To, err = parseDateParam(q.Get("to")); err != nil {
		return f, fmt.Errorf("invalid to date: %w", err)
	}
	return f, nil
}

func parseDateParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := storage.ParseDate(s)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return t, nil
}

// storeError maps storage errors onto HTTP statuses.
func storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, storage.ErrInvalidEntity) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %v", msg, err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", msg, err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
