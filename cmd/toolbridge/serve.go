package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/toolzflow/toolbridge/internal/api"
	"github.com/toolzflow/toolbridge/internal/mcpserver"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TOOLBRIDGE_ADDR)")
	return cmd
}

func runServe(ctx context.Context, c *cli) error {
	svc, err := buildServices(c.cfg)
	if err != nil {
		return err
	}

	mcpSrv, err := mcpserver.Build(ctx, svc.catalog, svc.compiler, svc.dispatcher, version)
	if err != nil {
		return fmt.Errorf("build MCP server: %w", err)
	}

	opts := api.Options{
		Catalog:    svc.catalog,
		Compiler:   svc.compiler,
		Dispatcher: svc.dispatcher,
		Metrics:    svc.metrics,
		MCP:        mcpserver.HTTPHandler(mcpSrv),
		APIKey:     c.cfg.APIKey,
		Version:    version,
	}
	if c.cfg.LLM.APIKey != "" {
		opts.Chat = svc.loop
	} else {
		slog.Warn("no LLM API key configured, /v1/chat disabled")
	}

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           api.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("toolbridge starting",
		slog.String("version", version),
		slog.String("tools_dir", c.cfg.ToolsDir),
		slog.String("model", c.cfg.LLM.Model))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return startHTTPServer(gctx, srv, "HTTP server")
	})
	return g.Wait()
}

// startHTTPServer serves srv until ctx is done, then shuts it down.
func startHTTPServer(ctx context.Context, srv *http.Server, label string) error {
	errc := make(chan error, 1)
	go func() {
		slog.Info(label+" listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("%s: %w", label, err)
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down " + label)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", label, err)
	}
	slog.Info(label + " stopped")
	return nil
}
