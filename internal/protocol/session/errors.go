package session

import (
	"errors"
	"fmt"
)

// Local precondition failures. None of these touch the network.
var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrAlreadyLoggedIn  = errors.New("session: already logged in")
	ErrNotLoggedIn      = errors.New("session: not logged in")
	ErrSessionEnded     = errors.New("session: session ended")
	ErrNilAdapter       = errors.New("session: game adapter required")
)

// ErrConnection matches every dial failure.
var ErrConnection = errors.New("session: connection failed")

// ConnectError wraps a refused or timed out dial.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Is(target error) bool { return target == ErrConnection }

func (e *ConnectError) Unwrap() error { return e.Err }
