package session

import (
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const DefaultPort = 13579

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines how a session reaches the arbiter.
type Config struct {
	Address        string
	ConnectTimeout time.Duration
	// Logger is the parent logger; the session adds its own id field.
	Logger *zerolog.Logger
}

// DefaultConfig returns defaults matching the reference arbiter.
func DefaultConfig() Config {
	return Config{
		Address:        net.JoinHostPort("localhost", strconv.Itoa(DefaultPort)),
		ConnectTimeout: 5 * time.Second,
	}
}

// DefaultBackoff is the reconnect schedule used by long-running players.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	return c
}

// Address joins host and port into a dialable address.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
