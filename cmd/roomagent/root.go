package main

import (
	"io"
	"os"
	"strings"

	"github.com/dkeye/VoiceRoom/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "roomagent",
		Short:         "Room agent: joins a conferencing room for one local participant",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")

	load := func() (*config.Config, error) {
		var (
			cfg *config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}
		setupLogging(cfg.Log, os.Stderr)
		return cfg, nil
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(load),
		newJoinCmd(load),
	)
	return rootCmd
}

type configLoader func() (*config.Config, error)

func setupLogging(cfg config.LogConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
}
