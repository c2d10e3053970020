package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/preceptor"
	preceptorhttp "github.com/aretw0/preceptor/pkg/adapters/http"
	"github.com/aretw0/preceptor/pkg/session"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the tutor as an HTTP server. POST /chat is stateless: the client sends
the state back on every turn. The /sessions endpoints keep the state in the
configured store. Finished sessions get their artifacts generated in the
background; GET /events streams state changes as Server-Sent Events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("handouts") {
			cfg.HTTP.HandoutsDir, _ = cmd.Flags().GetString("handouts")
		}
		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("shutdown", "err", err)
			}
		}()

		opts := []preceptorhttp.Option{
			preceptorhttp.WithLogger(logger),
			preceptorhttp.WithVersion(preceptor.Version),
			preceptorhttp.WithGateway(a.gateway),
			preceptorhttp.WithFinalizer(a.finalizer),
			preceptorhttp.WithValidation(cfg.HTTP.Validation),
		}
		if cfg.HTTP.HandoutsDir != "" {
			opts = append(opts, preceptorhttp.WithHandoutsDir(cfg.HTTP.HandoutsDir))
		}
		if cfg.HTTP.Metrics {
			opts = append(opts, preceptorhttp.WithMetricsHandler(a.metrics.Handler()))
		}
		server := preceptorhttp.NewServer(a.engine, opts...)

		if cfg.HTTP.Sessions {
			svc := session.NewService(a.engine, a.sessionManager(), a.finalizer,
				session.WithServiceLogger(logger),
				session.WithDiffListener(server.DiffListener()),
			)
			preceptorhttp.WithSessions(svc)(server)
		}

		handler, err := server.Routes()
		if err != nil {
			return fmt.Errorf("build routes: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("http server listening",
				"addr", srv.Addr,
				"gateway", cfg.Gateway.Backend,
				"store", cfg.Store.Backend,
				"artifacts", cfg.Artifacts.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
			logger.Info("shutting down http server")
		}

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			return srv.Close()
		}
		logger.Info("http server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().String("handouts", "", "Directory served under /handouts")
}
