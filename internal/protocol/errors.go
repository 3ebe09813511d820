package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/grebe/internal/protocol/frame"
	"github.com/danmuck/grebe/internal/protocol/message"
)

const (
	ReasonClientAlreadyLoggedIn = "Client already logged in"
	ReasonUserAlreadyLoggedIn   = "User already logged in"
)

var (
	ErrFraming          = frame.ErrFraming
	ErrConnectionClosed = frame.ErrConnectionClosed
	ErrFormat           = message.ErrFormat

	ErrGameEnded             = errors.New("protocol: game ended")
	ErrMessageRejected       = errors.New("protocol: message rejected by server")
	ErrLoginFailure          = errors.New("protocol: login failed")
	ErrClientAlreadyLoggedIn = errors.New("protocol: client already logged in")
	ErrUserAlreadyLoggedIn   = errors.New("protocol: user already logged in")
	ErrUnexpectedMessage     = errors.New("protocol: unexpected message")
)

// EndError carries a raw END message. It is a control signal, not a fault:
// the arbiter has finished the game and will close the connection.
type EndError struct {
	Result string
	Reason string
	P1Move string
	P2Move string
}

func (e *EndError) Error() string {
	return fmt.Sprintf("protocol: game ended %s (%s)", e.Result, e.Reason)
}

func (e *EndError) Is(target error) bool { return target == ErrGameEnded }

// RejectedError is an INVALID reply: the server refused the last message sent.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("protocol: server rejected message: %q", e.Reason)
}

func (e *RejectedError) Is(target error) bool { return target == ErrMessageRejected }

// LoginError is a LOGIN/FAILURE reply. The two well-known reasons also match
// their dedicated sentinels.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("protocol: login failed: %q", e.Reason)
}

func (e *LoginError) Is(target error) bool {
	switch target {
	case ErrLoginFailure:
		return true
	case ErrClientAlreadyLoggedIn:
		return e.Reason == ReasonClientAlreadyLoggedIn
	case ErrUserAlreadyLoggedIn:
		return e.Reason == ReasonUserAlreadyLoggedIn
	}
	return false
}

// UnexpectedMessageError reports a message that is valid on the wire but
// out of sequence for the current exchange.
type UnexpectedMessageError struct {
	Got  string
	Want []string
}

func (e *UnexpectedMessageError) Error() string {
	if len(e.Want) == 0 {
		return fmt.Sprintf("protocol: unexpected message %q", e.Got)
	}
	return fmt.Sprintf("protocol: unexpected message %q (want %s)", e.Got, strings.Join(e.Want, "|"))
}

func (e *UnexpectedMessageError) Is(target error) bool { return target == ErrUnexpectedMessage }

// ErrorKind names the taxonomy branch err falls into. Used for metrics and
// log fields.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrGameEnded):
		return "ended"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, ErrFraming):
		return "framing"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrMessageRejected):
		return "rejected"
	case errors.Is(err, ErrLoginFailure):
		return "login"
	case errors.Is(err, ErrUnexpectedMessage):
		return "unexpected"
	default:
		return "other"
	}
}
