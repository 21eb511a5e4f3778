// Package config loads process configuration for the conference core from
// environment variables (optionally backed by a .env-style file), with
// documented defaults and struct validation.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds every process tunable: the signaling endpoint, the ICE
// server, and the VAD/jitter/heartbeat constants.
type Config struct {
	SignalingURL string `mapstructure:"signaling_url" validate:"required,url"`
	StunURL      string `mapstructure:"stun_url" validate:"required"`

	VADThreshold     float32 `mapstructure:"vad_threshold" validate:"gt=0"`
	VADHangoverFrames int    `mapstructure:"vad_hangover_frames" validate:"gt=0"`

	JitterTargetSamples int `mapstructure:"jitter_target_samples" validate:"gt=0"`

	HeartbeatIntervalMs int `mapstructure:"heartbeat_interval_ms" validate:"gt=0"`
	PeerTimeoutCheckMs  int `mapstructure:"peer_timeout_check_ms" validate:"gt=0"`
	PeerTimeoutMs       int `mapstructure:"peer_timeout_ms" validate:"gt=0"`
	ReconnectBackoffMs  int `mapstructure:"reconnect_backoff_ms" validate:"gt=0"`
	ResetDrainMs        int `mapstructure:"reset_drain_ms" validate:"gt=0"`

	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFile  string `mapstructure:"log_file"`
}

// Load reads configuration from the environment (and an optional env file
// named by the ENV_PATH variable), applies defaults, and validates the
// result. It fails fast on an invalid value rather than silently falling
// back to a default.
func Load() (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SIGNALING_URL", "ws://localhost:8080/ws")
	v.SetDefault("STUN_URL", "stun:stun.l.google.com:19302")

	v.SetDefault("VAD_THRESHOLD", 0.005)
	v.SetDefault("VAD_HANGOVER_FRAMES", 10)

	v.SetDefault("JITTER_TARGET_SAMPLES", 3840)

	v.SetDefault("HEARTBEAT_INTERVAL_MS", 2000)
	v.SetDefault("PEER_TIMEOUT_CHECK_MS", 1000)
	v.SetDefault("PEER_TIMEOUT_MS", 6000)
	v.SetDefault("RECONNECT_BACKOFF_MS", 3000)
	v.SetDefault("RESET_DRAIN_MS", 500)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
}
