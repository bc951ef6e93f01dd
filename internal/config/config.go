package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICEROOM"

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	Log      LogConfig      `mapstructure:"log"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Room     RoomConfig     `mapstructure:"room"`
	Devices  DevicesConfig  `mapstructure:"devices"`
	Surfaces SurfacesConfig `mapstructure:"surfaces"`
	Signal   SignalConfig   `mapstructure:"signal"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// AccessToken is used by headless visits; UI clients bring their own.
	AccessToken string `mapstructure:"access_token"`
}

type RoomConfig struct {
	AutoEnableCamera     bool          `mapstructure:"auto_enable_camera"`
	AutoEnableMicrophone bool          `mapstructure:"auto_enable_microphone"`
	ScreenShareAudio     bool          `mapstructure:"screen_share_audio"`
	Facing               string        `mapstructure:"facing"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	EventBuffer          int           `mapstructure:"event_buffer"`
}

type CameraConfig struct {
	Label  string `mapstructure:"label"`
	Path   string `mapstructure:"path"`
	Facing string `mapstructure:"facing"`
}

type DevicesConfig struct {
	Cameras      []CameraConfig `mapstructure:"cameras"`
	Microphone   string         `mapstructure:"microphone"`
	Display      string         `mapstructure:"display"`
	DisplayAudio string         `mapstructure:"display_audio"`
	Loop         bool           `mapstructure:"loop"`
	Deny         []string       `mapstructure:"deny"`
}

type SurfacesConfig struct {
	RecordDir string `mapstructure:"record_dir"`
}

type SignalConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName, falling back to defaults when it is missing.
// VOICEROOM_* variables override both, e.g. VOICEROOM_BACKEND_URL.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("backend", cfg.Backend.URL).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "voiceroom-dev-secret")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("backend.url", "http://localhost:8081")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.access_token", "")

	v.SetDefault("room.auto_enable_camera", true)
	v.SetDefault("room.auto_enable_microphone", true)
	v.SetDefault("room.screen_share_audio", false)
	v.SetDefault("room.facing", string(domain.FacingUser))
	v.SetDefault("room.reconcile_interval", "500ms")
	v.SetDefault("room.event_buffer", 64)

	v.SetDefault("devices.microphone", "")
	v.SetDefault("devices.display", "")
	v.SetDefault("devices.display_audio", "")
	v.SetDefault("devices.loop", true)
	v.SetDefault("devices.deny", []string{})

	v.SetDefault("surfaces.record_dir", "")

	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 20)
	v.SetDefault("signal.rate_interval", "1s")
}

var (
	ErrBadFacing = errors.New("facing must be user or environment")
	ErrBadSource = errors.New("unknown track source")
)

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if !validFacing(c.Room.Facing) {
		return fmt.Errorf("room.facing %q: %w", c.Room.Facing, ErrBadFacing)
	}
	for _, cam := range c.Devices.Cameras {
		if cam.Facing != "" && !validFacing(cam.Facing) {
			return fmt.Errorf("camera %q facing %q: %w", cam.Label, cam.Facing, ErrBadFacing)
		}
	}
	for _, src := range c.Devices.Deny {
		if !validSource(src) {
			return fmt.Errorf("devices.deny %q: %w", src, ErrBadSource)
		}
	}
	return nil
}

func validFacing(f string) bool {
	return f == string(domain.FacingUser) || f == string(domain.FacingEnvironment)
}

func validSource(s string) bool {
	for _, src := range domain.Sources {
		if s == string(src) {
			return true
		}
	}
	return false
}
