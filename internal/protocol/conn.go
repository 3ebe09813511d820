package protocol

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/grebe/internal/observability"
	"github.com/danmuck/grebe/internal/protocol/frame"
	"github.com/danmuck/grebe/internal/protocol/message"
	"github.com/rs/zerolog"
)

// Conn is a framed message stream over one exclusively owned socket.
//
// Send and Receive are not safe for concurrent use with themselves; Close
// may be called from any goroutine and unblocks a pending Receive.
type Conn struct {
	rwc    io.ReadWriteCloser
	log    zerolog.Logger
	closed atomic.Bool

	closeOnce sync.Once
}

func NewConn(rwc io.ReadWriteCloser, logger zerolog.Logger) *Conn {
	return &Conn{rwc: rwc, log: logger}
}

// Send encodes and writes one message as a single frame.
func (c *Conn) Send(typ string, args ...string) error {
	body, err := message.Encode(typ, args...)
	if err != nil {
		return err
	}
	if err := frame.WriteFrame(c.rwc, body); err != nil {
		observability.RecordWireError(ErrorKind(err))
		return fmt.Errorf("protocol: send %s: %w", typ, err)
	}
	observability.RecordFrame(observability.DirectionOut, len(body))
	observability.RecordMessage(observability.DirectionOut, typ)
	c.log.Debug().
		Str("dir", observability.DirectionOut).
		Str("type", typ).
		Strs("args", redact(typ, args)).
		Msg("protocol.Conn frame")
	return nil
}

// Receive reads and decodes one message without classifying it.
func (c *Conn) Receive() (message.Message, error) {
	body, err := frame.ReadFrame(c.rwc)
	if err != nil {
		observability.RecordWireError(ErrorKind(err))
		return message.Message{}, fmt.Errorf("protocol: receive: %w", err)
	}
	observability.RecordFrame(observability.DirectionIn, len(body))

	msg, err := message.Decode(body)
	if err != nil {
		observability.RecordWireError(ErrorKind(err))
		c.log.Warn().Err(err).Int("len", len(body)).Msg("protocol.Conn bad body")
		return message.Message{}, err
	}
	observability.RecordMessage(observability.DirectionIn, msg.Type)
	c.log.Debug().
		Str("dir", observability.DirectionIn).
		Str("type", msg.Type).
		Strs("args", msg.Args).
		Msg("protocol.Conn frame")
	return msg, nil
}

// Next receives one message, classifies it and checks its argument schema.
// END, INVALID and LOGIN/FAILURE come back as errors alongside the message.
func (c *Conn) Next() (message.Message, error) {
	msg, err := c.Receive()
	if err != nil {
		return message.Message{}, err
	}
	if err := Classify(msg); err != nil {
		return msg, err
	}
	if err := Validate(msg); err != nil {
		observability.RecordWireError(ErrorKind(err))
		return msg, err
	}
	return msg, nil
}

// Close closes the socket exactly once. Later calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.rwc.Close()
	})
	return err
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func redact(typ string, args []string) []string {
	if typ != TypeLogin || len(args) < 2 {
		return args
	}
	out := append([]string(nil), args...)
	out[1] = "***"
	return out
}
