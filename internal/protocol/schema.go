package protocol

import (
	"fmt"

	"github.com/danmuck/grebe/internal/protocol/message"
)

// Arity is the accepted argument count range for one message type.
// Max < 0 means unbounded.
type Arity struct {
	Min int
	Max int
}

func exactly(n int) Arity { return Arity{Min: n, Max: n} }

var arities = map[string]Arity{
	TypeLogin:        exactly(2),
	TypeLoginSuccess: {Min: 1, Max: -1},
	TypeLoginFailure: {Min: 0, Max: -1},
	TypeStart:        exactly(2),
	TypeMove:         exactly(1),
	TypeNext:         exactly(2),
	TypeEnd:          exactly(4),
	TypeInvalid:      {Min: 0, Max: -1},
}

// Validate checks msg against the argument schema for its type. Unknown
// types pass; interpreting them is the caller's decision.
func Validate(msg message.Message) error {
	a, ok := arities[msg.Type]
	if !ok {
		return nil
	}
	n := len(msg.Args)
	if n < a.Min || (a.Max >= 0 && n > a.Max) {
		return &message.FormatError{
			Reason: fmt.Sprintf("Incorrect number of arguments for %s", msg.Type),
		}
	}
	return nil
}
