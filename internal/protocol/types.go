package protocol

// Message types seen on the wire.
const (
	TypeLogin        = "LOGIN"
	TypeLoginSuccess = "LOGIN/SUCCESS"
	TypeLoginFailure = "LOGIN/FAILURE"
	TypeStart        = "START"
	TypeMove         = "MOVE"
	TypeNext         = "NEXT"
	TypeEnd          = "END"
	TypeInvalid      = "INVALID"
)

// Role is the seat assigned to a session by the arbiter at login.
type Role string

const (
	RoleP1 Role = "P1"
	RoleP2 Role = "P2"
	// RoleSpectator is assigned to usernames that are neither player.
	RoleSpectator Role = "Spectator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleP1, RoleP2, RoleSpectator:
		return true
	}
	return false
}

// IsPlayer reports whether r takes part in the game.
func (r Role) IsPlayer() bool {
	return r == RoleP1 || r == RoleP2
}

func (r Role) String() string { return string(r) }
