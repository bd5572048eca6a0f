package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/stockai/internal/config"
	"github.com/kalambet/stockai/internal/extract"
	"github.com/kalambet/stockai/internal/ingest"
	"github.com/kalambet/stockai/internal/naming"
	"github.com/kalambet/stockai/internal/ollama"
	"github.com/kalambet/stockai/internal/oracle"
	"github.com/kalambet/stockai/internal/pdftext"
	"github.com/kalambet/stockai/internal/reorder"
	"github.com/kalambet/stockai/internal/storage"
)

// app holds the components every command builds from the loaded config.
type app struct {
	cfg      config.Config
	stores   *storage.Stores
	analyzer *reorder.Analyzer
	pipeline *ingest.Pipeline // nil until withIngest
}

var loadConfig = config.Load

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	return buildApp(cfg), nil
}

func buildApp(cfg config.Config) *app {
	stores := storage.NewStores(cfg.Storage.StoresDir)
	analyzer := reorder.NewAnalyzer(stores)
	analyzer.LeadDays = float64(cfg.Reorder.LeadDays)
	analyzer.SafetyDays = float64(cfg.Reorder.SafetyDays)
	analyzer.SafetyFactor = cfg.Reorder.SafetyFactor

	return &app{cfg: cfg, stores: stores, analyzer: analyzer}
}

// withIngest validates the oracle settings and builds the pipeline. For the
// ollama backend the server is checked and missing models are pulled first.
func (a *app) withIngest(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	timeout, err := a.cfg.OracleTimeout()
	if err != nil {
		return err
	}

	oc := oracle.Config{
		Backend: a.cfg.Oracle.Backend,
		BaseURL: a.cfg.Oracle.BaseURL,
		APIKey:  a.cfg.Oracle.APIKey,
		Timeout: timeout,
	}
	if oc.Backend == oracle.BackendOllama {
		oc.BaseURL = a.cfg.Ollama.BaseURL
		models := []string{a.cfg.Oracle.ExtractModel, a.cfg.Oracle.NormalizeModel}
		if err := ollama.EnsureReady(ctx, ollama.New(oc.BaseURL), models, os.Stderr); err != nil {
			return err
		}
	}

	completer, err := oracle.New(oc)
	if err != nil {
		return err
	}

	a.pipeline = ingest.New(
		ingest.Dirs{Pending: a.cfg.Storage.PendingDir, Processed: a.cfg.Storage.ProcessedDir},
		pdftext.Reader{},
		extract.NewExtractor(completer, a.cfg.Oracle.ExtractModel),
		naming.NewCachedProducts(naming.NewOracleProducts(completer, a.cfg.Oracle.NormalizeModel)),
		a.stores,
	)
	slog.Debug("ingestion ready",
		"backend", oc.Backend,
		"extract_model", a.cfg.Oracle.ExtractModel,
		"normalize_model", a.cfg.Oracle.NormalizeModel,
		"pending_dir", a.cfg.Storage.PendingDir)
	return nil
}

func (a *app) Close() {
	if err := a.stores.Close(); err != nil {
		slog.Warn("closing stores", "error", err)
	}
}
