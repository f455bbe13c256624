package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/mcp"
	"github.com/fyrsmithlabs/knowledged/internal/services"
	"github.com/fyrsmithlabs/knowledged/internal/watch"
)

// initServices builds the knowledge façade and every enabled frontend.
// Disabled frontends stay nil in the registry.
func initServices(cfg *config.Config, opts options, deps *dependencies, logger *zap.Logger) (services.Registry, error) {
	svc, err := knowledge.NewService(knowledge.Config{
		Paths:       cfg.Knowledge,
		RebuildRate: cfg.Embeddings.RebuildRate,
	}, deps.pipeline, logger.Named("knowledge"))
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge service: %w", err)
	}

	reg := services.Options{Knowledge: svc, Pipeline: deps.pipeline}

	if !opts.noMCP {
		reg.MCP, err = mcp.NewServer(&mcp.Config{
			Name:    "knowledged",
			Version: version,
			Logger:  logger.Named("mcp"),
		}, svc)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP server: %w", err)
		}
	}

	if opts.http {
		reg.HTTP, err = httpserver.NewServer(svc, logger.Named("http"), &httpserver.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP server: %w", err)
		}
	}

	if cfg.Watch.Enabled {
		reg.Watcher, err = watch.New(cfg.Watch, cfg.Knowledge.KnowledgeBasePath, svc, logger.Named("watch"))
		if err != nil {
			return nil, err
		}
	}

	return services.NewRegistry(reg), nil
}

// serve runs the enabled frontends. The first one to stop, or ctx
// cancellation, stops the rest.
func serve(ctx context.Context, cfg *config.Config, reg services.Registry, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	if srv := reg.HTTP(); srv != nil {
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
				return
			}
			errCh <- nil
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
		}()
	}

	if w := reg.Watcher(); w != nil {
		go func() {
			if err := w.Run(ctx); err != nil {
				errCh <- fmt.Errorf("watcher: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	if m := reg.MCP(); m != nil {
		go func() {
			// Run returns when the client closes stdin.
			errCh <- m.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			logger.Error("frontend stopped", zap.Error(err))
		}
		return err
	}
}
