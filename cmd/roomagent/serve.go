package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	router "github.com/dkeye/VoiceRoom/internal/adapters/http"
	wssignal "github.com/dkeye/VoiceRoom/internal/adapters/signal"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the room UI over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			o := wireOrchestrator(cfg)
			ctl := wssignal.NewSignalWSController(o, wssignal.Config{
				SendBuffer:   cfg.Signal.SendBuffer,
				RateLimit:    cfg.Signal.RateLimit,
				RateInterval: cfg.Signal.RateInterval,
			})
			o.Observe(ctl.PublishState, ctl.PublishNotice)

			addr := fmt.Sprintf(":%d", cfg.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           router.SetupRouter(ctx, cfg, o, ctl),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().Str("addr", addr).Msg("room agent started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("Shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer shutdownCancel()
				o.Close(shutdownCtx)
				ctl.Wait()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Server forced to shutdown")
					return err
				}
				log.Info().Msg("Server exited gracefully")
				return nil
			})
			return g.Wait()
		},
	}
}
