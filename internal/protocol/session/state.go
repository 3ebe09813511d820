package session

import "fmt"

// State is a position in the session lifecycle.
type State int32

const (
	StateNew State = iota
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateInTurn
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateInTurn:
		return "in_turn"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// InGame reports whether moves may be exchanged.
func (s State) InGame() bool {
	return s == StateAuthenticated || s == StateInTurn
}
