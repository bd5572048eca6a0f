package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/stockai/internal/extract"
	"github.com/kalambet/stockai/internal/naming"
	"github.com/kalambet/stockai/internal/oracle"
	"github.com/kalambet/stockai/internal/pdftext"
	"github.com/kalambet/stockai/internal/storage"
)

// fakeText returns the file's own content as its text.
var fakeText = pdftext.Func(func(ctx context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
})

// replyOracle answers extraction prompts from a table keyed by a marker
// contained in the invoice text.
func replyOracle(replies map[string]string) oracle.Completer {
	return oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		for marker, reply := range replies {
			if strings.Contains(req.Prompt, marker) {
				return reply, nil
			}
		}
		return "", errors.New("no reply configured")
	})
}

// canonicalProducts maps supplier spellings onto one name.
var canonicalProducts = oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
	_, name, _ := strings.Cut(req.Prompt, "Product name:")
	if strings.Contains(strings.ToLower(name), "mascarilla") {
		return "Mascarilla quirúrgica", nil
	}
	return name, nil
})

type testEnv struct {
	dirs   Dirs
	stores *storage.Stores
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		dirs: Dirs{
			Pending:   filepath.Join(root, "facturas"),
			Processed: filepath.Join(root, "facturas_procesadas"),
		},
		stores: storage.NewStores(filepath.Join(root, "bases_datos")),
	}
	if err := os.MkdirAll(env.dirs.Pending, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { env.stores.Close() })
	return env
}

func (e *testEnv) addPending(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.dirs.Pending, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) pipeline(extractor oracle.Completer, products oracle.Completer) *Pipeline {
	return New(e.dirs, fakeText,
		extract.NewExtractor(extractor, "extract-model"),
		naming.NewOracleProducts(products, "normalize-model"),
		e.stores)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRun_CanonicalProductAcrossSuppliers(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "a.pdf", "INV-A")
	env.addPending(t, "b.pdf", "INV-B")

	p := env.pipeline(replyOracle(map[string]string{
		"INV-A": `{"nombre_empresa": "Clínica Norte S.L.", "numero_factura": "A-1", "fecha_emision": "01/03/2024",
			"productos": [{"nombre": "Mascarillas quirúrgicas IIR caja 50", "cantidad": "40", "precio_unitario": "0,10", "total_por_producto": "4,00"}],
			"total_factura": "4,00"}`,
		"INV-B": `{"nombre_empresa": "Clínica Norte S.L.", "numero_factura": "B-7", "fecha_emision": "11/03/2024",
			"productos": [{"nombre": "MASCARILLA QUIRURGICA TIPO IIR", "cantidad": 60, "precio_unitario": 0.1, "total_por_producto": 6}],
			"total_factura": 6}`,
	}), canonicalProducts)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stored != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}

	lines, err := env.stores.ReadAll("clínica_norte_sl")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	for _, l := range lines {
		if l.ProductName != "mascarilla quirúrgica" {
			t.Errorf("ProductName = %q, want canonical name", l.ProductName)
		}
	}
	if lines[0].Quantity != 40 || lines[0].UnitPrice != 0.1 || lines[0].InvoiceTotal != 4 {
		t.Errorf("lines[0] = %+v", lines[0])
	}

	for _, name := range []string{"a.pdf", "b.pdf"} {
		if fileExists(filepath.Join(env.dirs.Pending, name)) {
			t.Errorf("%s still pending", name)
		}
		if !fileExists(filepath.Join(env.dirs.Processed, name)) {
			t.Errorf("%s not archived", name)
		}
	}
}

func TestRun_DuplicateIsSkippedAndArchived(t *testing.T) {
	env := newTestEnv(t)
	reply := `{"nombre_empresa": "Acme", "numero_factura": "F-1", "fecha_emision": "2024-01-01",
		"productos": [{"nombre": "Gel", "cantidad": 1, "precio_unitario": 2, "total_por_producto": 2}], "total_factura": 2}`
	p := env.pipeline(replyOracle(map[string]string{"COPY": reply}), canonicalProducts)

	env.addPending(t, "first.pdf", "COPY 1")
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	env.addPending(t, "second.pdf", "COPY 2")
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Duplicates != 1 || len(report.Outcomes) != 1 {
		t.Fatalf("report = %+v", report)
	}
	o := report.Outcomes[0]
	if o.Disposition != DispositionDuplicate || o.State != StateArchived {
		t.Errorf("outcome = %+v", o)
	}
	if !strings.Contains(o.Line(), "already exists") || !strings.Contains(o.Line(), "F-1") {
		t.Errorf("Line = %q", o.Line())
	}
	if !fileExists(filepath.Join(env.dirs.Processed, "second.pdf")) {
		t.Error("duplicate not archived")
	}

	lines, _ := env.stores.ReadAll("acme")
	if len(lines) != 1 {
		t.Errorf("row count = %d, want 1", len(lines))
	}
}

func TestRun_FailuresStayPendingAndBatchContinues(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "1-bad.pdf", "GARBAGE")
	env.addPending(t, "2-good.pdf", "GOOD")
	env.addPending(t, "3-down.pdf", "DOWN")

	p := env.pipeline(replyOracle(map[string]string{
		"GARBAGE": "I cannot read this document.",
		"GOOD":    `{"nombre_empresa": "Acme", "numero_factura": "G-1", "productos": []}`,
	}), canonicalProducts)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 2 || report.Stored != 1 {
		t.Fatalf("report = %+v", report)
	}

	bad := report.Outcomes[0]
	if bad.File != "1-bad.pdf" || bad.State != StateFailed || bad.FailedAt != StateTextExtracted {
		t.Errorf("bad outcome = %+v", bad)
	}
	if !errors.Is(bad.Err, extract.ErrMalformedExtraction) {
		t.Errorf("bad error = %v, want ErrMalformedExtraction", bad.Err)
	}
	if !errors.Is(report.Outcomes[2].Err, extract.ErrOracle) {
		t.Errorf("down error = %v, want ErrOracle", report.Outcomes[2].Err)
	}
	if !strings.HasPrefix(bad.Line(), "Error processing '1-bad.pdf'") {
		t.Errorf("Line = %q", bad.Line())
	}

	for _, name := range []string{"1-bad.pdf", "3-down.pdf"} {
		if !fileExists(filepath.Join(env.dirs.Pending, name)) {
			t.Errorf("%s left the pending area", name)
		}
	}
	if n, _ := p.Pending(); n != 2 {
		t.Errorf("Pending = %d, want 2", n)
	}
	if lines := strings.Split(report.Summary, "\n"); len(lines) != 3 {
		t.Errorf("summary has %d lines, want 3:\n%s", len(lines), report.Summary)
	}
}

func TestRun_TextExtractionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "scan.pdf", "")

	noText := pdftext.Func(func(ctx context.Context, path string) (string, error) {
		return "", pdftext.ErrNoText
	})
	p := New(env.dirs, noText, extract.NewExtractor(replyOracle(nil), "m"), naming.RuleProducts{}, env.stores)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	o := report.Outcomes[0]
	if o.State != StateFailed || o.FailedAt != StatePending || !errors.Is(o.Err, pdftext.ErrNoText) {
		t.Errorf("outcome = %+v", o)
	}
}

type failingStore struct{ *storage.Stores }

func (failingStore) InsertLines(string, storage.Invoice) (int, error) {
	return 0, storage.ErrStorage
}

func TestRun_StorageFailureKeepsFile(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "x.pdf", "INV-X")

	p := New(env.dirs, fakeText,
		extract.NewExtractor(replyOracle(map[string]string{"INV-X": `{"numero_factura": "X-1", "productos": [{"nombre": "gel"}]}`}), "m"),
		naming.RuleProducts{}, failingStore{env.stores})

	report, _ := p.Run(context.Background())
	o := report.Outcomes[0]
	if !errors.Is(o.Err, storage.ErrStorage) || o.FailedAt != StateNormalized {
		t.Errorf("outcome = %+v", o)
	}
	if !fileExists(filepath.Join(env.dirs.Pending, "x.pdf")) {
		t.Error("file moved after storage failure")
	}
}

func TestRun_UnknownEntityAndEmptyProducts(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "u.pdf", "INV-U")

	p := env.pipeline(replyOracle(map[string]string{"INV-U": `{"nombre_empresa": null, "numero_factura": 77, "productos": []}`}), canonicalProducts)
	report, _ := p.Run(context.Background())

	o := report.Outcomes[0]
	if o.Entity != naming.UnknownEntity || o.InvoiceNumber != "77" || o.Disposition != DispositionStored || o.Lines != 0 {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRun_NoPendingFiles(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(replyOracle(nil), canonicalProducts)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary != NoPendingMessage {
		t.Errorf("Summary = %q", report.Summary)
	}
}

func TestPending_FiltersAndSorts(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "b.PDF", "")
	env.addPending(t, "a.pdf", "")
	env.addPending(t, "notes.txt", "")
	if err := os.Mkdir(filepath.Join(env.dirs.Pending, "dir.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := env.pipeline(replyOracle(nil), canonicalProducts)
	paths, err := p.PendingFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.pdf" || filepath.Base(paths[1]) != "b.PDF" {
		t.Errorf("PendingFiles = %v", paths)
	}

	missing := New(Dirs{Pending: filepath.Join(t.TempDir(), "nope")}, fakeText, nil, nil, nil)
	if n, err := missing.Pending(); n != 0 || err != nil {
		t.Errorf("Pending(missing dir) = %d, %v", n, err)
	}
}

func TestListPending_WithoutPipeline(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"z.pdf", "m.Pdf", "readme.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := ListPending(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "m.Pdf" || filepath.Base(paths[1]) != "z.pdf" {
		t.Errorf("ListPending = %v", paths)
	}

	if paths, err := ListPending(filepath.Join(dir, "missing")); paths != nil || err != nil {
		t.Errorf("ListPending(missing) = %v, %v", paths, err)
	}
}

func TestRun_CancelledLeavesFilesPending(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "a.pdf", "A")
	env.addPending(t, "b.pdf", "B")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := env.pipeline(replyOracle(nil), canonicalProducts)
	report, err := p.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Outcomes) != 0 || report.Remaining != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestArchive_OverwritesExisting(t *testing.T) {
	env := newTestEnv(t)
	env.addPending(t, "a.pdf", "new")
	if err := os.MkdirAll(env.dirs.Processed, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.dirs.Processed, "a.pdf"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := env.pipeline(replyOracle(nil), canonicalProducts)
	if err := p.archive(filepath.Join(env.dirs.Pending, "a.pdf")); err != nil {
		t.Fatalf("archive: %v", err)
	}
	b, _ := os.ReadFile(filepath.Join(env.dirs.Processed, "a.pdf"))
	if string(b) != "new" {
		t.Errorf("archived content = %q, want new", b)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	os.WriteFile(src, []byte("%PDF-1.4"), 0o644)

	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "%PDF-1.4" {
		t.Errorf("dst = %q", b)
	}
}
