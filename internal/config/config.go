package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/grebe/internal/protocol/session"
)

const (
	GameIdentity  = "identity"
	GameTicTacToe = "tictactoe"
)

// ClientConfig is everything a player binary needs to reach the arbiter.
type ClientConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	Game           string
	ConnectTimeout time.Duration
	Reconnect      ReconnectConfig
}

// ReconnectConfig bounds dial retries. MaxAttempts of 0 retries forever.
type ReconnectConfig struct {
	MaxAttempts int
	Backoff     session.BackoffConfig
}

type fileConfig struct {
	Host             string  `toml:"host"`
	Port             int     `toml:"port"`
	Username         string  `toml:"username"`
	Password         string  `toml:"password"`
	Game             string  `toml:"game"`
	ConnectTimeout   string  `toml:"connect_timeout"`
	ConnectTimeoutMS int64   `toml:"connect_timeout_ms"`
	MaxAttempts      int     `toml:"reconnect_max_attempts"`
	InitialDelay     string  `toml:"reconnect_initial_delay"`
	MaxDelay         string  `toml:"reconnect_max_delay"`
	Multiplier       float64 `toml:"reconnect_multiplier"`
	Jitter           bool    `toml:"reconnect_jitter"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:           "localhost",
		Port:           session.DefaultPort,
		Game:           GameTicTacToe,
		ConnectTimeout: session.DefaultConfig().ConnectTimeout,
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			Backoff:     session.DefaultBackoff(),
		},
	}
}

// LoadClientConfig overlays the keys present in the TOML file at path on
// DefaultClientConfig and validates the result.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("config has unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("game") {
		cfg.Game = strings.ToLower(strings.TrimSpace(raw.Game))
	}
	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if meta.IsDefined("connect_timeout_ms") {
		cfg.ConnectTimeout = time.Duration(raw.ConnectTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("reconnect_max_attempts") {
		cfg.Reconnect.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("reconnect_initial_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.InitialDelay))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("parse reconnect_initial_delay: %w", err)
		}
		cfg.Reconnect.Backoff.InitialDelay = d
	}
	if meta.IsDefined("reconnect_max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxDelay))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("parse reconnect_max_delay: %w", err)
		}
		cfg.Reconnect.Backoff.MaxDelay = d
	}
	if meta.IsDefined("reconnect_multiplier") {
		cfg.Reconnect.Backoff.Multiplier = raw.Multiplier
	}
	if meta.IsDefined("reconnect_jitter") {
		cfg.Reconnect.Backoff.Jitter = raw.Jitter
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// ValidateClientConfig does not require a username; the CLI may supply it.
func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("client config missing host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("client config invalid port %d", cfg.Port)
	}
	switch cfg.Game {
	case GameIdentity, GameTicTacToe:
	default:
		return fmt.Errorf("client config unknown game %q", cfg.Game)
	}
	if cfg.ConnectTimeout < 0 {
		return fmt.Errorf("client config negative connect_timeout")
	}
	if cfg.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("client config negative reconnect_max_attempts")
	}
	if cfg.Reconnect.Backoff.InitialDelay < 0 || cfg.Reconnect.Backoff.MaxDelay < 0 {
		return fmt.Errorf("client config negative reconnect delay")
	}
	return nil
}

// Address is the dialable host:port.
func (c ClientConfig) Address() string {
	return session.Address(c.Host, c.Port)
}

func (c ClientConfig) SessionConfig() session.Config {
	return session.Config{
		Address:        c.Address(),
		ConnectTimeout: c.ConnectTimeout,
	}
}
