// Package main runs knowledged, the document knowledge base server.
//
// One process owns the vector table and serves it three ways:
//   - MCP tools on stdio (disable with --no-mcp)
//   - the HTTP API on server.http_host:server.http_port (enable with --http)
//   - a directory watcher that ingests new PDFs (enable with --watch or watch.enabled)
//
// Logs go to stderr so stdout stays reserved for the MCP protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/docconv"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/telemetry"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// options holds command line flags.
type options struct {
	configPath string
	http       bool
	noMCP      bool
	watch      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default: ~/.config/knowledged/config.yaml)")
	flag.BoolVar(&opts.http, "http", false, "also serve the HTTP API")
	flag.BoolVar(&opts.noMCP, "no-mcp", false, "do not serve MCP tools on stdio")
	flag.BoolVar(&opts.watch, "watch", false, "ingest PDFs added to knowledge_base_path")
	flag.Parse()

	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		printVersion()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "knowledged: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("knowledged %s\n", version)
	fmt.Printf("  commit: %s\n", gitCommit)
	fmt.Printf("  built:  %s\n", buildDate)
}

// run loads configuration, builds the knowledge stack and serves until ctx
// is cancelled or a frontend stops.
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.watch {
		cfg.Watch.Enabled = true
	}
	if opts.noMCP && !opts.http && !cfg.Watch.Enabled {
		return errors.New("nothing to run: --no-mcp given without --http or --watch")
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	if degraded, derr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(derr))
	}

	deps, err := initDependencies(cfg, zl)
	if err != nil {
		return err
	}
	defer deps.Close()

	svcs, err := initServices(cfg, opts, deps, zl)
	if err != nil {
		return err
	}

	logger.Info(ctx, "knowledged starting",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", deps.embedder.Dimension()),
	)

	return serve(ctx, cfg, svcs, zl)
}

// initLogger builds the zap logger, bridged to OpenTelemetry when enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	lc.Output.OTEL = tel.Enabled() && tel.LoggerProvider() != nil
	return logging.NewLogger(lc, tel.LoggerProvider())
}

// dependencies holds infrastructure shared by every frontend.
type dependencies struct {
	embedder embeddings.Provider
	table    vectorstore.Table
	pipeline *rag.Pipeline
	logger   *zap.Logger
}

// Close releases the table and the embedder.
func (d *dependencies) Close() {
	if d.table != nil {
		if err := d.table.Close(); err != nil {
			d.logger.Warn("failed to close vector table", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("failed to close embedder", zap.Error(err))
		}
	}
}

// initDependencies creates the embedder, the vector table and the pipeline.
// The table is created with the embedder's dimension.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	deps := &dependencies{embedder: embedder, logger: logger}

	table, err := vectorstore.NewTable(cfg.VectorStore, embedder.Dimension(), logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open vector table: %w", err)
	}
	deps.table = table

	pipeline, err := rag.New(table, embedder, docconv.NewConverter(cfg.DocConv, logger), cfg.Retrieval, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	deps.pipeline = pipeline
	return deps, nil
}
