package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/enesunal-m/livevoice"
	"github.com/enesunal-m/livevoice/webrtc"
)

// settings is the CLI configuration after merging file, environment and flags.
type settings struct {
	Endpoint         string        `mapstructure:"endpoint"`
	Model            string        `mapstructure:"model"`
	APIKey           string        `mapstructure:"api_key"`
	BearerToken      string        `mapstructure:"bearer_token"`
	Transport        string        `mapstructure:"transport"`
	Modalities       []string      `mapstructure:"modalities"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout"`
	MaxTurnDuration  time.Duration `mapstructure:"max_turn_duration"`
	Retries          int           `mapstructure:"retries"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	Log              struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// loadSettings reads .env (if present), then the config file, then
// LIVEVOICE_* environment variables. Flags bound on v take precedence.
func loadSettings(v *viper.Viper, path string) (*settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("LIVEVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("endpoint", livevoice.DefaultEndpoint)
	v.SetDefault("transport", "websocket")
	v.SetDefault("handshake_timeout", livevoice.DefaultHandshakeTimeout)
	v.SetDefault("drain_timeout", livevoice.DefaultDrainTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	// Defaults make AutomaticEnv see these keys during Unmarshal.
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("bearer_token", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.file", "")
	v.SetDefault("max_turn_duration", 0)
	v.SetDefault("retries", 0)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("livevoice")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".livevoice"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if s.APIKey == "" {
		s.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	return &s, nil
}

// clientConfig converts settings into a library Config.
func (s *settings) clientConfig(log *livevoice.Logger, metrics *livevoice.Metrics) (livevoice.Config, error) {
	cfg := livevoice.Config{
		Endpoint:           s.Endpoint,
		Model:              s.Model,
		ResponseModalities: s.Modalities,
		HandshakeTimeout:   s.HandshakeTimeout,
		DrainTimeout:       s.DrainTimeout,
		MaxTurnDuration:    s.MaxTurnDuration,
		Logger:             log,
		Metrics:            metrics,
	}
	switch {
	case s.BearerToken != "":
		cfg.Credential = livevoice.Bearer(s.BearerToken)
	case s.APIKey != "":
		cfg.Credential = livevoice.APIKey(s.APIKey)
	}
	switch strings.ToLower(s.Transport) {
	case "", "websocket", "ws":
	case "webrtc":
		cfg.Dialer = &webrtc.Dialer{}
	default:
		return livevoice.Config{}, fmt.Errorf("unknown transport %q", s.Transport)
	}
	if s.Retries > 0 {
		rc := livevoice.DefaultRetryConfig()
		rc.MaxRetries = s.Retries
		cfg.Retry = &rc
	}
	return cfg, livevoice.ValidateConfig(cfg)
}
