package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/grebe/internal/game"
	"github.com/danmuck/grebe/internal/observability"
	"github.com/danmuck/grebe/internal/protocol"
	"github.com/danmuck/grebe/internal/protocol/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session is one client connection to the arbiter. M and S are the move and
// state types produced by the bound adapter.
type Session[M, S any] struct {
	cfg     Config
	adapter game.Adapter[M, S]
	id      string
	log     zerolog.Logger

	// mu guards the fields below. It is never held across I/O so Close can
	// interrupt a blocked read.
	mu       sync.Mutex
	state    State
	conn     *protocol.Conn
	role     protocol.Role
	moveTime time.Duration
	loggedIn bool
}

// New builds an unconnected session bound to adapter.
func New[M, S any](cfg Config, adapter game.Adapter[M, S]) (*Session[M, S], error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	cfg = cfg.WithDefaults()
	parent := log.Logger
	if cfg.Logger != nil {
		parent = *cfg.Logger
	}
	id := uuid.NewString()
	return &Session[M, S]{
		cfg:     cfg,
		adapter: adapter,
		id:      id,
		log: parent.With().
			Str("component", "session").
			Str("session", id).
			Str("addr", cfg.Address).
			Logger(),
		state: StateNew,
	}, nil
}

// NewIdentity builds a session that passes move and state strings through.
func NewIdentity(cfg Config) *Session[string, string] {
	s, err := New[string, string](cfg, game.Identity{})
	if err != nil {
		// New only fails on a nil adapter.
		panic(err)
	}
	return s
}

func (s *Session[M, S]) ID() string { return s.id }

func (s *Session[M, S]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role is empty until login succeeds.
func (s *Session[M, S]) Role() protocol.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session[M, S]) MoveTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveTime
}

func (s *Session[M, S]) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Connect dials the arbiter.
func (s *Session[M, S]) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateNew:
	case StateEnded:
		s.mu.Unlock()
		return ErrSessionEnded
	default:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		s.log.Warn().Err(err).Msg("session.Connect dial failed")
		observability.RecordWireError("connect")
		return &ConnectError{Addr: s.cfg.Address, Err: err}
	}
	return s.attach(raw)
}

// attach binds an established socket to a New session.
func (s *Session[M, S]) attach(raw net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNew {
		_ = raw.Close()
		if s.state == StateEnded {
			return ErrSessionEnded
		}
		return ErrAlreadyConnected
	}
	s.conn = protocol.NewConn(raw, s.log)
	s.state = StateConnected
	s.log.Info().Str("local", raw.LocalAddr().String()).Msg("session connected")
	return nil
}

// Login authenticates and waits for the game to start. A second call on the
// same session fails with ErrAlreadyLoggedIn without touching the socket.
func (s *Session[M, S]) Login(username, password string) (LoginResult[S], error) {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
	case StateNew:
		s.mu.Unlock()
		return LoginResult[S]{}, ErrNotConnected
	case StateEnded:
		s.mu.Unlock()
		return LoginResult[S]{}, ErrSessionEnded
	default:
		s.mu.Unlock()
		return LoginResult[S]{}, ErrAlreadyLoggedIn
	}
	s.state = StateAuthenticating
	conn := s.conn
	s.mu.Unlock()

	started := time.Now()
	res, err := s.login(conn, username, password)
	if err != nil {
		observability.RecordLogin(protocol.ErrorKind(err), time.Since(started))
		if errors.Is(err, protocol.ErrLoginFailure) || errors.Is(err, protocol.ErrMessageRejected) {
			s.advance(StateConnected, StateAuthenticating)
		}
		return LoginResult[S]{}, s.fail("login", err)
	}

	s.mu.Lock()
	if s.state != StateAuthenticating {
		s.mu.Unlock()
		return LoginResult[S]{}, ErrSessionEnded
	}
	s.state = StateAuthenticated
	s.role = res.Role
	s.moveTime = res.MoveTime
	s.loggedIn = true
	s.mu.Unlock()

	observability.RecordLogin("ok", time.Since(started))
	s.log.Info().
		Str("user", username).
		Str("role", res.Role.String()).
		Dur("move_time", res.MoveTime).
		Msg("session logged in")
	return res, nil
}

func (s *Session[M, S]) login(conn *protocol.Conn, username, password string) (LoginResult[S], error) {
	if err := conn.Send(protocol.TypeLogin, username, password); err != nil {
		return LoginResult[S]{}, err
	}

	reply, err := conn.Next()
	if err != nil {
		return LoginResult[S]{}, err
	}
	if reply.Type != protocol.TypeLoginSuccess {
		return LoginResult[S]{}, &protocol.UnexpectedMessageError{
			Got:  reply.Type,
			Want: []string{protocol.TypeLoginSuccess},
		}
	}
	role := protocol.Role(reply.Arg(0))
	if !role.Valid() {
		return LoginResult[S]{}, &message.FormatError{Reason: fmt.Sprintf("Unknown role %q", role)}
	}

	start, err := conn.Next()
	if err != nil {
		return LoginResult[S]{}, err
	}
	if start.Type != protocol.TypeStart {
		return LoginResult[S]{}, &protocol.UnexpectedMessageError{
			Got:  start.Type,
			Want: []string{protocol.TypeStart},
		}
	}

	state, err := s.adapter.ParseState(start.Args[0])
	if err != nil {
		return LoginResult[S]{}, &message.FormatError{Reason: "Invalid initial state", Err: err}
	}
	millis, err := strconv.ParseInt(start.Args[1], 10, 64)
	if err != nil || millis < 0 {
		return LoginResult[S]{}, &message.FormatError{
			Reason: fmt.Sprintf("Invalid move time %q", start.Args[1]),
			Err:    err,
		}
	}
	return LoginResult[S]{
		Role:         role,
		InitialState: state,
		MoveTime:     time.Duration(millis) * time.Millisecond,
	}, nil
}

// Move sends one move and waits for the arbiter to close the turn.
func (s *Session[M, S]) Move(move M) (Turn[M], error) {
	conn, err := s.inGame()
	if err != nil {
		return Turn[M]{}, err
	}
	formatted, err := s.adapter.FormatMove(move)
	if err != nil {
		return Turn[M]{}, fmt.Errorf("session: format move: %w", err)
	}
	if err := conn.Send(protocol.TypeMove, formatted); err != nil {
		return Turn[M]{}, s.fail("move", err)
	}
	s.advance(StateInTurn, StateAuthenticated)
	return s.awaitTurn(conn)
}

// WaitForNextTurn blocks until the arbiter sends NEXT or END.
func (s *Session[M, S]) WaitForNextTurn() (Turn[M], error) {
	conn, err := s.inGame()
	if err != nil {
		return Turn[M]{}, err
	}
	return s.awaitTurn(conn)
}

func (s *Session[M, S]) awaitTurn(conn *protocol.Conn) (Turn[M], error) {
	msg, err := conn.Next()

	var end *protocol.EndError
	if errors.As(err, &end) {
		return s.finish(end)
	}
	if errors.Is(err, protocol.ErrMessageRejected) {
		s.advance(StateAuthenticated, StateInTurn)
		return Turn[M]{}, s.fail("turn", err)
	}
	if err != nil && msg.Type == "" {
		return Turn[M]{}, s.fail("turn", err)
	}
	// A decoded message of the wrong type is out of sequence even when its
	// arguments are also malformed.
	if msg.Type != protocol.TypeNext {
		return Turn[M]{}, s.fail("turn", &protocol.UnexpectedMessageError{
			Got:  msg.Type,
			Want: []string{protocol.TypeNext, protocol.TypeEnd},
		})
	}
	if err != nil {
		return Turn[M]{}, s.fail("turn", err)
	}

	p1, err := s.parseMove(msg.Args[0])
	if err != nil {
		return Turn[M]{}, s.fail("turn", err)
	}
	p2, err := s.parseMove(msg.Args[1])
	if err != nil {
		return Turn[M]{}, s.fail("turn", err)
	}
	s.advance(StateInTurn, StateAuthenticated)
	return Turn[M]{P1: p1, P2: p2}, nil
}

// finish converts END into the terminal turn and ends the session.
func (s *Session[M, S]) finish(end *protocol.EndError) (Turn[M], error) {
	p1, err := s.parseMove(end.P1Move)
	if err != nil {
		return Turn[M]{}, s.fail("end", err)
	}
	p2, err := s.parseMove(end.P2Move)
	if err != nil {
		return Turn[M]{}, s.fail("end", err)
	}
	outcome := &GameOutcome[M]{
		Result:     end.Result,
		Reason:     end.Reason,
		LastMoveP1: p1,
		LastMoveP2: p2,
	}
	observability.RecordGameEnd(end.Result)
	s.log.Info().Str("result", end.Result).Str("reason", end.Reason).Msg("session game ended")
	s.shutdown()
	return Turn[M]{P1: p1, P2: p2, Outcome: outcome}, nil
}

func (s *Session[M, S]) parseMove(raw string) (game.Move[M], error) {
	m, err := game.ParseOptional(s.adapter, raw)
	if err != nil {
		return game.Move[M]{}, &message.FormatError{Reason: fmt.Sprintf("Invalid move %q", raw), Err: err}
	}
	return m, nil
}

// Close ends the session. It is safe to call more than once and from another
// goroutine while a read is blocked.
func (s *Session[M, S]) Close() error {
	s.mu.Lock()
	prev := s.state
	conn := s.conn
	s.state = StateEnded
	s.loggedIn = false
	s.mu.Unlock()

	if prev != StateEnded {
		s.log.Debug().Str("from", prev.String()).Msg("session closed")
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Session[M, S]) inGame() (*protocol.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state.InGame():
		return s.conn, nil
	case s.state == StateEnded:
		return nil, ErrSessionEnded
	default:
		return nil, ErrNotLoggedIn
	}
}

// advance moves to next only from one of the given states, so a concurrent
// Close is never undone.
func (s *Session[M, S]) advance(next State, from ...State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range from {
		if s.state == st {
			s.state = next
			return
		}
	}
}

func (s *Session[M, S]) shutdown() {
	_ = s.Close()
}

// fail logs err and ends the session when err leaves the stream unusable.
// Server rejections and login refusals keep the session open; the arbiter
// decides whether to hang up.
func (s *Session[M, S]) fail(op string, err error) error {
	kind := protocol.ErrorKind(err)
	ev := s.log.Warn()
	if terminal(err) {
		s.shutdown()
		ev = s.log.Error()
	}
	ev.Err(err).Str("op", op).Str("kind", kind).Msg("session failure")
	return err
}

func terminal(err error) bool {
	switch {
	case errors.Is(err, protocol.ErrMessageRejected),
		errors.Is(err, protocol.ErrLoginFailure):
		return false
	}
	return true
}
