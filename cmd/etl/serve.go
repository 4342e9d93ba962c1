package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"duck-etl/internal/api"
	"duck-etl/internal/config"
	"duck-etl/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run scheduled pipelines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			logger := rt.logger

			if !noScheduler {
				if err := rt.app.Scheduler.Start(ctx); err != nil {
					return err
				}
				defer rt.app.Scheduler.Stop()
			}

			auth, err := newTokenValidator(ctx, rt.cfg)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: rt.cfg.ListenAddr,
				Handler: api.NewRouter(rt.app.Service, api.Options{
					AllowedOrigins: rt.cfg.CORSAllowedOrigins,
					TriggerRate:    rt.cfg.TriggerRate,
					TriggerBurst:   rt.cfg.TriggerBurst,
					Auth:           auth,
					Logger:         logger.With("component", "api"),
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running scheduled pipelines")
	return cmd
}

// newTokenValidator returns nil when API auth is not configured.
func newTokenValidator(ctx context.Context, cfg *config.Config) (middleware.TokenValidator, error) {
	switch {
	case cfg.OIDCIssuer != "":
		v, err := middleware.NewOIDCValidator(ctx, cfg.OIDCIssuer, cfg.OIDCAudience)
		if err != nil {
			return nil, err
		}
		return v, nil
	case cfg.JWTSecret != "":
		v, err := middleware.NewHS256Validator(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, nil
}
