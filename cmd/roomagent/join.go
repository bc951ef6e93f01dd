package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/dkeye/VoiceRoom/internal/app/orch"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newJoinCmd(load configLoader) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room headless and stay until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := domain.ParseRoomID(args[0])
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			o := wireOrchestrator(cfg)
			o.Observe(logView, logNotice)
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer shutdownCancel()
				o.Close(shutdownCtx)
			}()

			if _, err := o.Join(ctx, roomID, token); err != nil {
				return err
			}
			<-ctx.Done()
			log.Info().Str("room", string(roomID)).Msg("leaving")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "backend access token (default backend.access_token)")
	return cmd
}

func logView(v orch.View) {
	log.Info().
		Str("module", "join").
		Str("room", string(v.Room)).
		Str("state", string(v.State)).
		Int("participants", v.ParticipantCount).
		Bool("mic", v.Devices.MicEnabled).
		Bool("camera", v.Devices.CameraEnabled).
		Bool("sharing", v.Devices.ScreenSharing).
		Msg("session")
}

func logNotice(n domain.Notice) {
	level := zerolog.InfoLevel
	switch n.Severity {
	case domain.SeverityWarning:
		level = zerolog.WarnLevel
	case domain.SeverityError:
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).Str("module", "join").Str("source", string(n.Source)).Msg(n.Message)
}
