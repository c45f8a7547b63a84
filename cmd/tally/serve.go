package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/aretw0/tally/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout is how long in-flight requests get after a stop signal.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Exposes the assistant over HTTP: POST /v1/chat (JSON or SSE), the action
catalogue, conversation inspection and Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.Config()
	logger := c.Logger()
	addr := cfg.HTTP.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}
	if len(cfg.HTTP.Tokens) == 0 && cfg.HTTP.IdentityHeader == "" {
		return errors.New("no way to identify callers: set http.tokens or http.identity_header")
	}
	if cfg.HTTP.IdentityHeader != "" {
		logger.Warn("header identity enabled, do not expose this server publicly", "header", cfg.HTTP.IdentityHeader)
	}

	opts := []httpadapter.Option{
		httpadapter.WithAuthenticator(httpadapter.NewAuthenticator(cfg.HTTP.Tokens, cfg.HTTP.IdentityHeader)),
		httpadapter.WithRecords(c.Records()),
		httpadapter.WithMetrics(c.Metrics().Handler()),
		httpadapter.WithLogger(logger),
	}
	if c.Sessions() != nil {
		opts = append(opts, httpadapter.WithSessions(c.Sessions()))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpadapter.NewHandler(c.Assistant(), opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("tally server listening", "address", addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("tally server stopped gracefully")
	return nil
}
