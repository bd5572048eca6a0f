package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/stockai/internal/api"
	"github.com/kalambet/stockai/internal/ingest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runServer(addr)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: 127.0.0.1:<server.port>)")
}

// unavailableIngester lists pending files but refuses to run when the
// oracle is not configured.
type unavailableIngester struct {
	pendingDir string
	err        error
}

func (u unavailableIngester) Run(context.Context) (*ingest.Report, error) {
	return nil, fmt.Errorf("ingestion not available: %w", u.err)
}

func (u unavailableIngester) Pending() (int, error) {
	paths, err := ingest.ListPending(u.pendingDir)
	return len(paths), err
}

// ingester returns the pipeline, or a read-only stand-in when the oracle
// settings are incomplete so the query surfaces still work.
func (a *app) ingester(ctx context.Context) api.Ingester {
	if err := a.withIngest(ctx); err != nil {
		slog.Warn("ingestion disabled", "error", err)
		return unavailableIngester{pendingDir: a.cfg.Storage.PendingDir, err: err}
	}
	return a.pipeline
}

func runServer(addr string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Server.Token == "" {
		slog.Warn("STOCKAI_SERVER_TOKEN is not set; the API accepts unauthenticated requests")
	}

	handler := api.NewAppHandler(api.AppDeps{
		Store:   a.stores,
		Reorder: a.analyzer,
		Ingest:  a.ingester(ctx),
		Token:   a.cfg.Server.Token,
	})

	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "stockai %s listening on %s\n", version, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:   a.stores,
		Reorder: a.analyzer,
		Ingest:  a.ingester(ctx),
	})

	slog.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
