package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromFlags(t *testing.T) {
	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.Flags().Parse([]string{"--api-secret", "s3cret", "--max-participants", "4", "--token-ttl", "1h"}))

	cfg, port, rooms, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 8081, port)
	assert.Equal(t, "devkey", cfg.LiveKitAPIKey)
	assert.Equal(t, "s3cret", cfg.LiveKitAPISecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.True(t, rooms.AutoCreate)
	assert.Equal(t, 4, rooms.MaxParticipants)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DEVBACKEND_API_SECRET", "from-env")
	t.Setenv("DEVBACKEND_LIVEKIT_URL", "wss://sfu.example")
	v := viper.New()
	newRootCmd(v)

	cfg, _, _, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LiveKitAPISecret)
	assert.Equal(t, "wss://sfu.example", cfg.LiveKitURL)
}

func TestConfigRequiresSecret(t *testing.T) {
	v := viper.New()
	newRootCmd(v)

	_, _, _, err := configFrom(v)
	assert.Error(t, err)
}
