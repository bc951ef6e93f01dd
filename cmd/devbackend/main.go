// Command devbackend runs an in-memory room backend that issues LiveKit
// room tokens. It is meant for local development of the room agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkeye/VoiceRoom/internal/devbackend"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd binds flags to DEVBACKEND_* variables through v.
func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "devbackend",
		Short:        "Development room backend issuing LiveKit tokens",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, port, rooms, err := configFrom(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), port, devbackend.NewServer(cfg, rooms))
		},
	}

	f := cmd.Flags()
	f.Int("port", 8081, "listen port")
	f.String("livekit-url", "ws://localhost:7880", "LiveKit server url handed to clients")
	f.String("api-key", "devkey", "LiveKit API key")
	f.String("api-secret", "", "LiveKit API secret")
	f.Duration("token-ttl", 24*time.Hour, "room token lifetime")
	f.String("user-secret", "", "HS256 secret for user access tokens (empty: bearer token is the user id)")
	f.Bool("auto-create", true, "create unknown rooms on first join")
	f.Int("max-participants", 0, "participant limit per room (0: unlimited)")

	v.SetEnvPrefix("DEVBACKEND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(f)
	return cmd
}

func configFrom(v *viper.Viper) (devbackend.Config, int, *devbackend.Rooms, error) {
	cfg := devbackend.Config{
		LiveKitURL:       v.GetString("livekit-url"),
		LiveKitAPIKey:    v.GetString("api-key"),
		LiveKitAPISecret: v.GetString("api-secret"),
		TokenTTL:         v.GetDuration("token-ttl"),
		UserSecret:       v.GetString("user-secret"),
	}
	if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		return cfg, 0, nil, errors.New("api-key and api-secret are required")
	}
	rooms := devbackend.NewRooms(v.GetBool("auto-create"), v.GetInt("max-participants"))
	return cfg, v.GetInt("port"), rooms, nil
}

func serve(ctx context.Context, port int, s *devbackend.Server) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("dev backend started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
