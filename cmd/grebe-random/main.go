package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danmuck/grebe/internal/config"
	"github.com/danmuck/grebe/internal/logging"
	"github.com/danmuck/grebe/internal/observability"
	"github.com/danmuck/grebe/internal/player"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const usage = `Usage: grebe-random [options] USERNAME HOST [PORT]

Plays one game of tic-tac-toe with uniformly random moves.

Options:
`

type options struct {
	client      config.ClientConfig
	metricsAddr string
	seed        int64
}

func main() {
	logging.ConfigureRuntime()

	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "grebe-random: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "grebe-random: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs layers the config file, then flags, then positional arguments.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("grebe-random", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "client config TOML file")
	port := fs.Int("port", 0, "arbiter port (default 13579)")
	password := fs.String("password", "", "login password")
	timeout := fs.Duration("timeout", 0, "connect timeout")
	attempts := fs.Int("attempts", -1, "dial attempts before giving up, 0 retries forever")
	metricsAddr := fs.String("metrics", "", "serve prometheus metrics on this address")
	seed := fs.Int64("seed", 0, "fixed random seed")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg := config.DefaultClientConfig()
	if *configPath != "" {
		loaded, err := config.LoadClientConfig(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "password":
			cfg.Password = *password
		case "timeout":
			cfg.ConnectTimeout = *timeout
		case "attempts":
			cfg.Reconnect.MaxAttempts = *attempts
		}
	})

	rest := fs.Args()
	if len(rest) > 3 || (len(rest) < 2 && cfg.Username == "") {
		fs.Usage()
		return options{}, fmt.Errorf("invalid number of args")
	}
	if len(rest) >= 1 {
		cfg.Username = rest[0]
	}
	if len(rest) >= 2 {
		cfg.Host = rest[1]
	}
	if len(rest) == 3 {
		p, err := strconv.Atoi(rest[2])
		if err != nil {
			return options{}, fmt.Errorf("invalid port %q", rest[2])
		}
		cfg.Port = p
	}
	if cfg.Game != config.GameTicTacToe {
		return options{}, fmt.Errorf("random player only plays %s, config has %q", config.GameTicTacToe, cfg.Game)
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		return options{}, err
	}
	return options{client: cfg, metricsAddr: *metricsAddr, seed: *seed}, nil
}

func run(ctx context.Context, opts options) error {
	if opts.metricsAddr != "" {
		observability.RegisterMetrics()
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Str("addr", opts.metricsAddr).Msg("grebe-random metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	cfg := player.DefaultConfig()
	cfg.Username = opts.client.Username
	cfg.Password = opts.client.Password
	cfg.Session = opts.client.SessionConfig()
	cfg.MaxAttempts = opts.client.Reconnect.MaxAttempts
	cfg.Backoff = opts.client.Reconnect.Backoff
	cfg.Seed = opts.seed

	p, err := player.NewRandom(cfg)
	if err != nil {
		return err
	}
	log.Info().
		Str("user", cfg.Username).
		Str("addr", cfg.Session.Address).
		Msg("grebe-random starting")

	res, err := p.Play(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("role", res.Role.String()).
		Str("result", res.Outcome.Result).
		Str("reason", res.Outcome.Reason).
		Bool("won", res.Won()).
		Int("turns", res.Turns).
		Msg("grebe-random finished")
	return nil
}
