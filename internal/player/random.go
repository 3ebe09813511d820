// Package player holds ready-made tic-tac-toe clients built on the session
// layer.
package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/danmuck/grebe/internal/game/tictactoe"
	"github.com/danmuck/grebe/internal/protocol"
	"github.com/danmuck/grebe/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUsernameRequired = errors.New("player: username required")
	ErrBoardDiverged    = errors.New("player: local board diverged from arbiter")
)

type Config struct {
	Username    string
	Password    string
	Session     session.Config
	MaxAttempts int
	Backoff     session.BackoffConfig
	// Seed fixes the move sequence when non-zero.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Session:     session.DefaultConfig(),
		MaxAttempts: 5,
		Backoff:     session.DefaultBackoff(),
	}
}

// Result summarises one finished game from this player's seat.
type Result struct {
	Role    protocol.Role
	Outcome session.GameOutcome[tictactoe.Cell]
	Board   tictactoe.Board
	Turns   int
}

// Won reports whether the outcome favours this player's seat.
func (r Result) Won() bool {
	switch r.Role {
	case protocol.RoleP1:
		return r.Outcome.Result == tictactoe.ResultP1Win
	case protocol.RoleP2:
		return r.Outcome.Result == tictactoe.ResultP2Win
	}
	return false
}

// Random plays uniformly random open cells.
type Random struct {
	cfg Config
	rng *rand.Rand
	log zerolog.Logger
}

func NewRandom(cfg Config) (*Random, error) {
	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.Username == "" {
		return nil, ErrUsernameRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Random{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
		log: log.Logger.With().
			Str("component", "player").
			Str("user", cfg.Username).
			Logger(),
	}, nil
}

// Play connects, logs in and plays until the arbiter ends the game.
// Cancelling ctx closes the session.
func (p *Random) Play(ctx context.Context) (Result, error) {
	s, err := p.connect(ctx)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	res, err := p.play(s)
	if err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, err
}

func (p *Random) connect(ctx context.Context) (*session.Session[tictactoe.Cell, tictactoe.Board], error) {
	backoff := session.NewBackoff(p.cfg.Backoff, p.cfg.MaxAttempts, p.rng)
	for {
		s, err := session.New[tictactoe.Cell, tictactoe.Board](p.cfg.Session, tictactoe.Adapter{})
		if err != nil {
			return nil, err
		}
		err = s.Connect(ctx)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, session.ErrConnection) {
			return nil, err
		}
		delay, ok := backoff.Next()
		p.log.Warn().Err(err).Int("attempt", backoff.Attempts()).Dur("retry_in", delay).Msg("player dial failed")
		if !ok {
			return nil, fmt.Errorf("player: gave up after %d attempts: %w", backoff.Attempts(), err)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (p *Random) play(s *session.Session[tictactoe.Cell, tictactoe.Board]) (Result, error) {
	login, err := s.Login(p.cfg.Username, p.cfg.Password)
	if err != nil {
		return Result{}, err
	}
	out := Result{Role: login.Role, Board: login.InitialState}
	mine := tictactoe.MarkFor(login.Role == protocol.RoleP1)

	for {
		var turn session.Turn[tictactoe.Cell]
		if login.Role.IsPlayer() && out.Board.ToMove() == mine {
			cell, err := p.pick(out.Board)
			if err != nil {
				return out, err
			}
			p.log.Debug().Str("cell", cell.String()).Msg("player move")
			turn, err = s.Move(cell)
			if err != nil {
				return out, err
			}
		} else {
			turn, err = s.WaitForNextTurn()
			if err != nil {
				return out, err
			}
		}
		out.Turns++

		if turn.Ended() {
			out.Outcome = *turn.Outcome
			p.log.Info().
				Str("role", login.Role.String()).
				Str("result", out.Outcome.Result).
				Str("reason", out.Outcome.Reason).
				Bool("won", out.Won()).
				Msg("player game over")
			return out, nil
		}
		if err := applyTurn(&out.Board, turn); err != nil {
			return out, err
		}
	}
}

func (p *Random) pick(b tictactoe.Board) (tictactoe.Cell, error) {
	open := b.OpenCells()
	if len(open) == 0 {
		return tictactoe.Cell{}, fmt.Errorf("%w: no open cells", ErrBoardDiverged)
	}
	return open[p.rng.Intn(len(open))], nil
}

func applyTurn(b *tictactoe.Board, turn session.Turn[tictactoe.Cell]) error {
	if turn.P1.Made {
		if err := b.Apply(turn.P1.Value, tictactoe.X); err != nil {
			return fmt.Errorf("%w: %v", ErrBoardDiverged, err)
		}
	}
	if turn.P2.Made {
		if err := b.Apply(turn.P2.Value, tictactoe.O); err != nil {
			return fmt.Errorf("%w: %v", ErrBoardDiverged, err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
