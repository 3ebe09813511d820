package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/grebe/internal/game"
	"github.com/danmuck/grebe/internal/game/tictactoe"
	"github.com/danmuck/grebe/internal/protocol"
	"github.com/danmuck/grebe/internal/testutil/arbitertest"
	"github.com/danmuck/grebe/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const emptyBoard = "...\n...\n..."

func testConfig(addr string) Config {
	return Config{Address: addr, ConnectTimeout: time.Second}
}

func dialIdentity(t *testing.T, addr string) *Session[string, string] {
	t.Helper()
	s := NewIdentity(testConfig(addr))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startGame(p *arbitertest.Peer, role protocol.Role) error {
	if _, err := p.Login(role); err != nil {
		return err
	}
	return p.Send(protocol.TypeStart, emptyBoard, "1000")
}

// untilClosed blocks until the client hangs up and fails on any traffic.
func untilClosed(p *arbitertest.Peer) error {
	msg, err := p.Receive()
	if err == nil {
		return &protocol.UnexpectedMessageError{Got: msg.Type}
	}
	if !errors.Is(err, protocol.ErrConnectionClosed) {
		return err
	}
	return nil
}

func TestSessionPlaysToEnd(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
		user, err := p.Login(protocol.RoleP1)
		if err != nil {
			return err
		}
		if user != "alice" {
			return errors.New("unexpected username " + user)
		}
		if err := p.Send(protocol.TypeStart, emptyBoard, "1000"); err != nil {
			return err
		}
		move, err := p.Expect(protocol.TypeMove)
		if err != nil {
			return err
		}
		if move.Arg(0) != "2,2" {
			return errors.New("unexpected move " + move.Arg(0))
		}
		if err := p.Send(protocol.TypeNext, "2,2", ""); err != nil {
			return err
		}
		return p.Send(protocol.TypeEnd, "1-0", "Three in a row", "3,3", "")
	})

	s := dialIdentity(t, srv.Addr())
	if s.State() != StateConnected {
		t.Fatalf("state got=%s want=connected", s.State())
	}

	res, err := s.Login("alice", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	want := LoginResult[string]{Role: protocol.RoleP1, InitialState: emptyBoard, MoveTime: time.Second}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("login result mismatch (-want +got):\n%s", diff)
	}
	if res.MoveTimeSeconds() != 1.0 {
		t.Fatalf("move time seconds got=%v", res.MoveTimeSeconds())
	}
	if !s.LoggedIn() || s.Role() != protocol.RoleP1 || s.MoveTime() != time.Second {
		t.Fatalf("session not updated after login")
	}

	turn, err := s.Move("2,2")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if turn.Ended() {
		t.Fatalf("unexpected end: %v", turn.Outcome)
	}
	wantTurn := Turn[string]{P1: game.Some("2,2"), P2: game.None[string]()}
	if diff := cmp.Diff(wantTurn, turn); diff != "" {
		t.Fatalf("turn mismatch (-want +got):\n%s", diff)
	}
	if got := turn.Opponent(protocol.RoleP1); got.Made {
		t.Fatalf("opponent should not have moved: %+v", got)
	}

	turn, err = s.WaitForNextTurn()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !turn.Ended() {
		t.Fatalf("expected end of game")
	}
	wantOutcome := &GameOutcome[string]{
		Result:     "1-0",
		Reason:     "Three in a row",
		LastMoveP1: game.Some("3,3"),
		LastMoveP2: game.None[string](),
	}
	if diff := cmp.Diff(wantOutcome, turn.Outcome); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	if s.State() != StateEnded || s.LoggedIn() {
		t.Fatalf("session should be ended, state=%s", s.State())
	}
	if _, err := s.WaitForNextTurn(); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("arbiter: %v", err)
	}
}

func TestSessionSecondLoginDoesNoIO(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
		if err := startGame(p, protocol.RoleP2); err != nil {
			return err
		}
		return untilClosed(p)
	})

	s := dialIdentity(t, srv.Addr())
	if _, err := s.Login("bob", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.Login("bob", "pw"); !errors.Is(err, ErrAlreadyLoggedIn) {
		t.Fatalf("expected ErrAlreadyLoggedIn, got %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state got=%s want=authenticated", s.State())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("arbiter saw traffic after second login: %v", err)
	}
}

func TestSessionLoginFailure(t *testing.T) {
	cases := []struct {
		name   string
		reason string
		target error
	}{
		{name: "user", reason: protocol.ReasonUserAlreadyLoggedIn, target: protocol.ErrUserAlreadyLoggedIn},
		{name: "client", reason: protocol.ReasonClientAlreadyLoggedIn, target: protocol.ErrClientAlreadyLoggedIn},
		{name: "other", reason: "Bad password", target: protocol.ErrLoginFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
				if _, err := p.Expect(protocol.TypeLogin); err != nil {
					return err
				}
				if err := p.Send(protocol.TypeLoginFailure, tc.reason); err != nil {
					return err
				}
				return untilClosed(p)
			})

			s := dialIdentity(t, srv.Addr())
			_, err := s.Login("alice", "")
			if !errors.Is(err, tc.target) || !errors.Is(err, protocol.ErrLoginFailure) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			var le *protocol.LoginError
			if !errors.As(err, &le) || le.Reason != tc.reason {
				t.Fatalf("expected LoginError with reason %q, got %v", tc.reason, err)
			}
			if s.State() != StateConnected || s.LoggedIn() {
				t.Fatalf("state got=%s want=connected", s.State())
			}
			_ = s.Close()
			if err := srv.Wait(); err != nil {
				t.Fatalf("arbiter: %v", err)
			}
		})
	}
}

func TestSessionTerminalFailures(t *testing.T) {
	cases := []struct {
		name   string
		script arbitertest.Script
		target error
	}{
		{
			name: "zero length prefix",
			script: func(p *arbitertest.Peer) error {
				if _, err := p.Expect(protocol.TypeLogin); err != nil {
					return err
				}
				return p.SendRaw([]byte{0x00, 0x00})
			},
			target: protocol.ErrFraming,
		},
		{
			name: "oversized prefix",
			script: func(p *arbitertest.Peer) error {
				if _, err := p.Expect(protocol.TypeLogin); err != nil {
					return err
				}
				return p.SendRaw([]byte{0x01, 0xFF})
			},
			target: protocol.ErrFraming,
		},
		{
			name: "no colon",
			script: func(p *arbitertest.Peer) error {
				if _, err := p.Expect(protocol.TypeLogin); err != nil {
					return err
				}
				return p.SendBody("LOGIN/SUCCESS")
			},
			target: protocol.ErrFormat,
		},
		{
			name: "unknown role",
			script: func(p *arbitertest.Peer) error {
				_, err := p.Login(protocol.Role("Referee"))
				return err
			},
			target: protocol.ErrFormat,
		},
		{
			name: "start before success",
			script: func(p *arbitertest.Peer) error {
				if _, err := p.Expect(protocol.TypeLogin); err != nil {
					return err
				}
				return p.Send(protocol.TypeStart, emptyBoard, "1000")
			},
			target: protocol.ErrUnexpectedMessage,
		},
		{
			name: "bad move time",
			script: func(p *arbitertest.Peer) error {
				if _, err := p.Login(protocol.RoleP1); err != nil {
					return err
				}
				return p.Send(protocol.TypeStart, emptyBoard, "soon")
			},
			target: protocol.ErrFormat,
		},
		{
			name: "hang up before start",
			script: func(p *arbitertest.Peer) error {
				_, err := p.Login(protocol.RoleP1)
				return err
			},
			target: protocol.ErrConnectionClosed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			srv := arbitertest.Start(t, tc.script)
			s := dialIdentity(t, srv.Addr())

			_, err := s.Login("alice", "")
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if s.State() != StateEnded {
				t.Fatalf("state got=%s want=ended", s.State())
			}
			if err := srv.Wait(); err != nil {
				t.Fatalf("arbiter: %v", err)
			}
		})
	}
}

func TestSessionInvalidKeepsSessionOpen(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
		if err := startGame(p, protocol.RoleP1); err != nil {
			return err
		}
		if _, err := p.Expect(protocol.TypeMove); err != nil {
			return err
		}
		if err := p.Send(protocol.TypeInvalid, "Invalid move"); err != nil {
			return err
		}
		if _, err := p.Expect(protocol.TypeMove); err != nil {
			return err
		}
		return p.Send(protocol.TypeNext, "1,1", "")
	})

	s := dialIdentity(t, srv.Addr())
	if _, err := s.Login("alice", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err := s.Move("9,9")
	var rejected *protocol.RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != "Invalid move" {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if errors.Is(err, protocol.ErrFormat) {
		t.Fatalf("server rejection must not match ErrFormat")
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state got=%s want=authenticated", s.State())
	}

	turn, err := s.Move("1,1")
	if err != nil {
		t.Fatalf("retry move: %v", err)
	}
	if turn.P1.Value != "1,1" || turn.P2.Made {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("arbiter: %v", err)
	}
}

func TestSessionCloseUnblocksWait(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
		if err := startGame(p, protocol.RoleP2); err != nil {
			return err
		}
		return untilClosed(p)
	})

	s := dialIdentity(t, srv.Addr())
	if _, err := s.Login("bob", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.WaitForNextTurn()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not unblock after close")
	}
	if s.State() != StateEnded {
		t.Fatalf("state got=%s want=ended", s.State())
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("arbiter: %v", err)
	}
}

func TestSessionUnexpectedTurnMessage(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{name: "well formed", args: []string{emptyBoard, "1000"}},
		{name: "wrong arity", args: []string{emptyBoard}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
				if err := startGame(p, protocol.RoleP2); err != nil {
					return err
				}
				return p.Send(protocol.TypeStart, tc.args...)
			})

			s := dialIdentity(t, srv.Addr())
			if _, err := s.Login("bob", ""); err != nil {
				t.Fatalf("login: %v", err)
			}
			_, err := s.WaitForNextTurn()
			var unexpected *protocol.UnexpectedMessageError
			if !errors.As(err, &unexpected) || unexpected.Got != protocol.TypeStart {
				t.Fatalf("expected UnexpectedMessageError, got %v", err)
			}
			if s.State() != StateEnded {
				t.Fatalf("state got=%s want=ended", s.State())
			}
		})
	}
}

func TestSessionPreconditions(t *testing.T) {
	testlog.Start(t)
	s := NewIdentity(testConfig("127.0.0.1:1"))
	if _, err := s.Login("alice", ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Move("1,1"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := s.WaitForNextTurn(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close unconnected: %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if _, err := New[string, string](Config{}, nil); !errors.Is(err, ErrNilAdapter) {
		t.Fatalf("expected ErrNilAdapter, got %v", err)
	}
}

func TestNewIdentity(t *testing.T) {
	testlog.Start(t)
	s := NewIdentity(Config{})
	if s == nil || s.State() != StateNew || s.ID() == "" {
		t.Fatalf("unexpected identity session: %+v", s)
	}
}

func TestSessionConnectRefused(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	s := NewIdentity(testConfig(addr))
	err = s.Connect(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Addr != addr {
		t.Fatalf("expected ConnectError for %s, got %v", addr, err)
	}
	if s.State() != StateNew {
		t.Fatalf("failed dial must leave state new, got %s", s.State())
	}
}

func TestSessionAlreadyConnected(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, untilClosed)
	s := dialIdentity(t, srv.Addr())
	if err := s.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	_ = s.Close()
	if err := srv.Wait(); err != nil {
		t.Fatalf("arbiter: %v", err)
	}
}

func TestSessionWithTicTacToeAdapter(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
		if _, err := p.Login(protocol.RoleP2); err != nil {
			return err
		}
		if err := p.Send(protocol.TypeStart, "X..\n...\n...", "250"); err != nil {
			return err
		}
		move, err := p.Expect(protocol.TypeMove)
		if err != nil {
			return err
		}
		if move.Arg(0) != "2,2" {
			return errors.New("unexpected move " + move.Arg(0))
		}
		if err := p.Send(protocol.TypeNext, "", "2,2"); err != nil {
			return err
		}
		return p.Send(protocol.TypeNext, "not-a-cell", "")
	})

	s, err := New[tictactoe.Cell, tictactoe.Board](testConfig(srv.Addr()), tictactoe.Adapter{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	res, err := s.Login("bob", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.InitialState.At(tictactoe.Cell{Row: 1, Col: 1}) != tictactoe.X {
		t.Fatalf("initial board not parsed:\n%s", res.InitialState)
	}
	if res.MoveTime != 250*time.Millisecond {
		t.Fatalf("move time got=%s", res.MoveTime)
	}

	if _, err := s.Move(tictactoe.Cell{Row: 0, Col: 4}); !errors.Is(err, tictactoe.ErrInvalidCell) {
		t.Fatalf("expected local format failure, got %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("local format failure must not change state, got %s", s.State())
	}

	turn, err := s.Move(tictactoe.Cell{Row: 2, Col: 2})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if turn.P1.Made || turn.P2.Value != (tictactoe.Cell{Row: 2, Col: 2}) {
		t.Fatalf("unexpected turn: %+v", turn)
	}

	if _, err := s.WaitForNextTurn(); !errors.Is(err, protocol.ErrFormat) {
		t.Fatalf("expected ErrFormat for unparseable move, got %v", err)
	}
	if s.State() != StateEnded {
		t.Fatalf("state got=%s want=ended", s.State())
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("arbiter: %v", err)
	}
}

func TestSessionSpectatorRole(t *testing.T) {
	testlog.Start(t)
	srv := arbitertest.Start(t, func(p *arbitertest.Peer) error {
		if err := startGame(p, protocol.RoleSpectator); err != nil {
			return err
		}
		return p.Send(protocol.TypeEnd, "1/2-1/2", "Out of squares", "", "")
	})

	s := dialIdentity(t, srv.Addr())
	res, err := s.Login("carol", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Role != protocol.RoleSpectator || res.Role.IsPlayer() {
		t.Fatalf("unexpected role %q", res.Role)
	}
	turn, err := s.WaitForNextTurn()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !turn.Ended() || turn.Outcome.Result != "1/2-1/2" || turn.Outcome.LastMoveP1.Made {
		t.Fatalf("unexpected outcome: %+v", turn.Outcome)
	}
	if got := turn.Outcome.String(); got != "1/2-1/2 (Out of squares)" {
		t.Fatalf("outcome string got=%q", got)
	}
}
