package arbitertest

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/grebe/internal/game/tictactoe"
	"github.com/danmuck/grebe/internal/protocol"
)

// Result is the verdict the match arbiter sent with END.
type Result struct {
	Result string
	Reason string
	Board  tictactoe.Board
	Turns  int
}

// Match plays one tic-tac-toe game between two usernames, following the
// reference arbiter: P1 is X and moves first, unknown usernames are
// spectators, and a seat that misses its move time loses.
type Match struct {
	*Server

	p1, p2   string
	moveTime time.Duration

	mu       sync.Mutex
	loggedIn map[string]bool
	seats    map[protocol.Role]*Peer
	watchers []*Peer
	ready    chan struct{}

	done   chan struct{}
	result Result
}

// StartMatch serves a single game until it ends.
func StartMatch(t testing.TB, p1, p2 string, moveTime time.Duration) *Match {
	t.Helper()
	m := &Match{
		Server:   listen(t),
		p1:       p1,
		p2:       p2,
		moveTime: moveTime,
		loggedIn: make(map[string]bool),
		seats:    make(map[protocol.Role]*Peer),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.wg.Add(2)
	go m.acceptLoop()
	go m.run()
	return m
}

// Result blocks until END has been sent.
func (m *Match) Result(timeout time.Duration) (Result, error) {
	select {
	case <-m.done:
		return m.result, nil
	case <-time.After(timeout):
		return Result{}, errors.New("arbitertest: match did not finish")
	}
}

func (m *Match) acceptLoop() {
	defer m.wg.Done()
	for {
		p, err := m.accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				m.record(err)
			}
			return
		}
		go m.authenticate(p)
	}
}

func (m *Match) authenticate(p *Peer) {
	msg, err := p.Expect(protocol.TypeLogin)
	if err != nil {
		_ = p.Close()
		return
	}
	user := msg.Arg(0)

	m.mu.Lock()
	if m.loggedIn[user] {
		m.mu.Unlock()
		_ = p.Send(protocol.TypeLoginFailure, protocol.ReasonUserAlreadyLoggedIn)
		_ = p.Close()
		return
	}
	m.loggedIn[user] = true
	role := protocol.RoleSpectator
	switch user {
	case m.p1:
		role = protocol.RoleP1
	case m.p2:
		role = protocol.RoleP2
	}
	if role.IsPlayer() {
		m.seats[role] = p
	} else {
		m.watchers = append(m.watchers, p)
	}
	start := len(m.seats) == 2 && role.IsPlayer()
	// Sent under the lock so START can never overtake it.
	err = p.Send(protocol.TypeLoginSuccess, role.String())
	m.mu.Unlock()
	if err != nil {
		m.record(err)
		return
	}
	m.log.Debug().Str("user", user).Str("role", role.String()).Msg("arbitertest login")
	if start {
		close(m.ready)
	}
}

func (m *Match) run() {
	defer m.wg.Done()
	select {
	case <-m.ready:
	case <-m.done:
		return
	}

	board := tictactoe.NewBoard()
	m.broadcast(protocol.TypeStart, board.String(), strconv.FormatInt(m.moveTime.Milliseconds(), 10))

	turns := 0
	for {
		role := protocol.RoleP1
		if board.ToMove() == tictactoe.O {
			role = protocol.RoleP2
		}
		p1Move, p2Move, err := m.readMove(role)
		if err != nil {
			m.end(board, turns, lossFor(role), err.Error(), p1Move, p2Move)
			return
		}
		turns++

		raw := p1Move
		if role == protocol.RoleP2 {
			raw = p2Move
		}
		cell, err := tictactoe.Adapter{}.ParseMove(raw)
		if err == nil {
			err = board.Apply(cell, tictactoe.MarkFor(role == protocol.RoleP1))
		}
		if err != nil {
			m.end(board, turns, lossFor(role), "Invalid move", p1Move, p2Move)
			return
		}
		if result, reason, done := board.Result(); done {
			m.end(board, turns, result, reason, p1Move, p2Move)
			return
		}
		m.broadcast(protocol.TypeNext, p1Move, p2Move)
	}
}

// readMove waits for the seat to move. The move is returned in its seat's
// slot.
func (m *Match) readMove(role protocol.Role) (p1Move, p2Move string, err error) {
	m.mu.Lock()
	p := m.seats[role]
	m.mu.Unlock()

	if m.moveTime > 0 {
		_ = p.SetDeadline(m.moveTime)
		defer p.SetDeadline(0)
	}
	msg, err := p.Expect(protocol.TypeMove)
	if err != nil {
		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			return "", "", fmt.Errorf("%s exceeded move time limit", role)
		case errors.Is(err, protocol.ErrUnexpectedMessage), errors.Is(err, protocol.ErrFormat):
			return "", "", fmt.Errorf("%s sent an invalid message", role)
		default:
			return "", "", fmt.Errorf("%s disconnected", role)
		}
	}
	if role == protocol.RoleP1 {
		return msg.Arg(0), "", nil
	}
	return "", msg.Arg(0), nil
}

func (m *Match) end(board tictactoe.Board, turns int, result, reason, p1Move, p2Move string) {
	m.broadcast(protocol.TypeEnd, result, reason, p1Move, p2Move)
	m.result = Result{Result: result, Reason: reason, Board: board, Turns: turns}
	close(m.done)
	_ = m.Close()
}

func (m *Match) broadcast(typ string, args ...string) {
	m.mu.Lock()
	peers := []*Peer{m.seats[protocol.RoleP1], m.seats[protocol.RoleP2]}
	peers = append(peers, m.watchers...)
	m.mu.Unlock()
	for _, p := range peers {
		if p == nil {
			continue
		}
		_ = p.Send(typ, args...)
	}
}

func lossFor(role protocol.Role) string {
	if role == protocol.RoleP1 {
		return tictactoe.ResultP2Win
	}
	return tictactoe.ResultP1Win
}
