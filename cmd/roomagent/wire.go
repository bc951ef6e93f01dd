package main

import (
	"github.com/dkeye/VoiceRoom/internal/adapters/backend"
	"github.com/dkeye/VoiceRoom/internal/adapters/capture"
	"github.com/dkeye/VoiceRoom/internal/adapters/render"
	"github.com/dkeye/VoiceRoom/internal/adapters/rtc"
	"github.com/dkeye/VoiceRoom/internal/app"
	"github.com/dkeye/VoiceRoom/internal/app/orch"
	"github.com/dkeye/VoiceRoom/internal/config"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
)

// wireOrchestrator builds the coordinator with the real adapters.
func wireOrchestrator(cfg *config.Config) *orch.Orchestrator {
	deps := orch.Deps{
		Transport: rtc.NewTransport(),
		Capturer:  capture.NewCapturer(captureConfig(cfg.Devices)),
		Surfaces:  render.NewFactory(cfg.Surfaces.RecordDir),
		Policy:    app.SimplePolicy{},
	}
	nav := orch.NewNavigator(deps, sessionOptions(cfg.Room))
	return orch.NewOrchestrator(nav, credentials(cfg.Backend))
}

// credentials falls back to the configured access token when the caller
// brings none.
func credentials(cfg config.BackendConfig) orch.CredentialsFor {
	client := backend.New(cfg.URL, cfg.Timeout)
	return func(token string) core.CredentialSource {
		if token == "" {
			token = cfg.AccessToken
		}
		return client.WithToken(token)
	}
}

func sessionOptions(cfg config.RoomConfig) orch.Options {
	return orch.Options{
		AutoEnableCamera:     cfg.AutoEnableCamera,
		AutoEnableMicrophone: cfg.AutoEnableMicrophone,
		ScreenShareAudio:     cfg.ScreenShareAudio,
		Facing:               domain.Facing(cfg.Facing),
		ReconcileInterval:    cfg.ReconcileInterval,
		EventBuffer:          cfg.EventBuffer,
	}
}

func captureConfig(cfg config.DevicesConfig) capture.Config {
	out := capture.Config{
		Microphone:   cfg.Microphone,
		Display:      cfg.Display,
		DisplayAudio: cfg.DisplayAudio,
		Loop:         cfg.Loop,
	}
	for _, cam := range cfg.Cameras {
		out.Cameras = append(out.Cameras, capture.Device{
			Label:  cam.Label,
			Path:   cam.Path,
			Facing: domain.Facing(cam.Facing),
		})
	}
	for _, src := range cfg.Deny {
		out.Deny = append(out.Deny, domain.TrackSource(src))
	}
	return out
}
