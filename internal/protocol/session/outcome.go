package session

import (
	"fmt"
	"time"

	"github.com/danmuck/grebe/internal/game"
	"github.com/danmuck/grebe/internal/protocol"
)

// LoginResult is what the arbiter tells a player when the game starts.
type LoginResult[S any] struct {
	Role         protocol.Role
	InitialState S
	MoveTime     time.Duration
}

func (r LoginResult[S]) MoveTimeSeconds() float64 {
	return r.MoveTime.Seconds()
}

// GameOutcome is the terminal value carried by END.
type GameOutcome[M any] struct {
	Result     string
	Reason     string
	LastMoveP1 game.Move[M]
	LastMoveP2 game.Move[M]
}

func (o GameOutcome[M]) String() string {
	return fmt.Sprintf("%s (%s)", o.Result, o.Reason)
}

// Turn is the result of one turn exchange: either the last move of each
// seat, or the outcome when the arbiter ended the game.
type Turn[M any] struct {
	P1      game.Move[M]
	P2      game.Move[M]
	Outcome *GameOutcome[M]
}

func (t Turn[M]) Ended() bool {
	return t.Outcome != nil
}

// Opponent returns the other seat's last move as seen by role.
func (t Turn[M]) Opponent(role protocol.Role) game.Move[M] {
	if role == protocol.RoleP1 {
		return t.P2
	}
	return t.P1
}
