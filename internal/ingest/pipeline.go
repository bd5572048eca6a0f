// Package ingest moves invoice PDFs from the pending area into the
// per-entity stores.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/stockai/internal/extract"
	"github.com/kalambet/stockai/internal/naming"
	"github.com/kalambet/stockai/internal/numeric"
	"github.com/kalambet/stockai/internal/pdftext"
	"github.com/kalambet/stockai/internal/storage"
)

// InvoiceExtractor reads the structured invoice out of plain text.
type InvoiceExtractor interface {
	Extract(ctx context.Context, text string) (*extract.Invoice, error)
}

// InvoiceStore is the subset of storage.Stores the pipeline writes to.
type InvoiceStore interface {
	EnsureSchema(entity string) error
	Exists(entity, invoiceNumber string) (bool, error)
	InsertLines(entity string, inv storage.Invoice) (int, error)
}

// Dirs are the pending and processed file areas.
type Dirs struct {
	Pending   string
	Processed string
}

// Pipeline processes pending invoice files one at a time.
type Pipeline struct {
	dirs     Dirs
	text     pdftext.Extractor
	invoices InvoiceExtractor
	products naming.ProductNormalizer
	store    InvoiceStore
	logger   *slog.Logger
}

// New creates a Pipeline with the given dependencies.
func New(dirs Dirs, text pdftext.Extractor, invoices InvoiceExtractor, products naming.ProductNormalizer, store InvoiceStore) *Pipeline {
	return &Pipeline{
		dirs:     dirs,
		text:     text,
		invoices: invoices,
		products: products,
		store:    store,
		logger:   slog.Default(),
	}
}

// PendingFiles returns the paths of the pending PDFs sorted by name.
func (p *Pipeline) PendingFiles() ([]string, error) {
	return ListPending(p.dirs.Pending)
}

// ListPending returns the paths of the PDFs in dir sorted by name. The
// extension match ignores case. A missing directory holds no files.
func ListPending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing pending invoices: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Pending counts the files waiting to be processed.
func (p *Pipeline) Pending() (int, error) {
	paths, err := p.PendingFiles()
	return len(paths), err
}

// Run processes every pending file. Failures are recorded per file and
// never stop the batch; cancelling ctx stops it before the next file.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	r := &Report{RunID: uuid.New().String(), StartedAt: time.Now().UTC(), Outcomes: []Outcome{}}
	logger := p.logger.With("run_id", r.RunID)

	paths, err := p.PendingFiles()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		logger.Info("no pending invoices", "dir", p.dirs.Pending)
	}

	for i, path := range paths {
		if ctx.Err() != nil {
			r.Remaining = len(paths) - i
			logger.Warn("ingestion cancelled", "remaining", r.Remaining)
			break
		}
		o := p.process(ctx, logger, path)
		r.add(o)
	}

	r.FinishedAt = time.Now().UTC()
	r.Summary = r.Text()
	logger.Info("ingestion finished",
		"stored", r.Stored, "duplicates", r.Duplicates, "failed", r.Failed,
		"elapsed", r.FinishedAt.Sub(r.StartedAt))
	return r, nil
}

// Process runs a single file through the pipeline.
func (p *Pipeline) Process(ctx context.Context, path string) Outcome {
	return p.process(ctx, p.logger, path)
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, path string) Outcome {
	o := Outcome{File: filepath.Base(path), State: StatePending}
	logger = logger.With("file", o.File)
	logger.Info("processing invoice")

	fail := func(err error) Outcome {
		o.FailedAt = o.State
		o.State = StateFailed
		o.Err = err
		o.Error = err.Error()
		logger.Error("invoice failed", "stage", o.FailedAt, "error", err)
		return o
	}

	text, err := p.text.ExtractText(ctx, path)
	if err != nil {
		return fail(fmt.Errorf("reading pdf: %w", err))
	}
	o.State = StateTextExtracted

	inv, err := p.invoices.Extract(ctx, text)
	if err != nil {
		return fail(err)
	}
	o.State = StateDataExtracted

	o.Entity = naming.EntityKey(inv.Company.Any())
	record := p.normalize(ctx, inv)
	o.InvoiceNumber = record.Number
	o.State = StateNormalized
	logger = logger.With("entity", o.Entity, "invoice", o.InvoiceNumber)

	dup, err := p.store.Exists(o.Entity, record.Number)
	if err != nil {
		return fail(err)
	}
	if dup {
		o.Disposition = DispositionDuplicate
		logger.Info("invoice already stored, skipping")
	} else {
		if err := p.store.EnsureSchema(o.Entity); err != nil {
			return fail(err)
		}
		n, err := p.store.InsertLines(o.Entity, record)
		if err != nil {
			return fail(err)
		}
		o.Disposition = DispositionStored
		o.Lines = n
		logger.Info("invoice stored", "lines", n)
	}
	o.State = StateDeduplicated

	if err := p.archive(path); err != nil {
		return fail(fmt.Errorf("archiving: %w", err))
	}
	o.State = StateArchived
	return o
}

// normalize converts the extracted values into the stored representation.
// Product names are normalized one line at a time.
func (p *Pipeline) normalize(ctx context.Context, inv *extract.Invoice) storage.Invoice {
	record := storage.Invoice{
		Number:    inv.Number.Text(),
		IssueDate: inv.IssueDate.Text(),
		Total:     numeric.Normalize(inv.Total.Any()),
		Items:     make([]storage.Item, 0, len(inv.Lines)),
	}
	for _, l := range inv.Lines {
		record.Items = append(record.Items, storage.Item{
			ProductName: p.products.NormalizeProduct(ctx, l.Name.Text()),
			Quantity:    numeric.Normalize(l.Quantity.Any()),
			UnitPrice:   numeric.Normalize(l.UnitPrice.Any()),
			LineTotal:   numeric.Normalize(l.Total.Any()),
		})
	}
	return record
}

// archive moves path into the processed area under the same name,
// replacing any file already there.
func (p *Pipeline) archive(path string) error {
	if err := os.MkdirAll(p.dirs.Processed, 0o755); err != nil {
		return fmt.Errorf("creating processed directory: %w", err)
	}
	dst := filepath.Join(p.dirs.Processed, filepath.Base(path))

	if err := os.Rename(path, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems.
	if err := copyFile(path, dst); err != nil {
		return err
	}
	return os.Remove(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
