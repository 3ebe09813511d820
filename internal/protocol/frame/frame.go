package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

const (
	PrefixLen  = 2
	MaxBodyLen = 510
	MaxLen     = PrefixLen + MaxBodyLen
)

var (
	ErrFraming          = errors.New("frame: framing violation")
	ErrConnectionClosed = errors.New("frame: connection closed")

	ErrZeroLength   = fmt.Errorf("%w: Length prefix is 0", ErrFraming)
	ErrTooLarge     = fmt.Errorf("%w: Length prefix is too large", ErrFraming)
	ErrEmptyBody    = fmt.Errorf("%w: empty body", ErrFraming)
	ErrBodyTooLarge = fmt.Errorf("%w: body exceeds %d bytes", ErrFraming, MaxBodyLen)
)

// ReadFrame reads one length-prefixed body from r. The prefix is validated
// before any body bytes are consumed.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [PrefixLen]byte
	if err := readExact(r, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(prefix[:])
	if err := checkLength(int(length)); err != nil {
		return nil, err
	}

	body := make([]byte, length)
	if err := readExact(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes prefix and body with a single Write call so the frame
// is never interleaved with another writer's bytes.
func WriteFrame(w io.Writer, body []byte) error {
	switch {
	case len(body) == 0:
		return ErrEmptyBody
	case len(body) > MaxBodyLen:
		return ErrBodyTooLarge
	}

	buf := make([]byte, PrefixLen+len(body))
	binary.BigEndian.PutUint16(buf[:PrefixLen], uint16(len(body)))
	copy(buf[PrefixLen:], body)

	n, err := w.Write(buf)
	if err != nil {
		return closedOr(err)
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func checkLength(n int) error {
	if n == 0 {
		return ErrZeroLength
	}
	if n > MaxBodyLen {
		return ErrTooLarge
	}
	return nil
}

// readExact loops until buf is full. A read that returns no bytes and no
// error is treated as a peer disconnect rather than retried.
func readExact(r io.Reader, buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			return closedOr(err)
		}
		if n == 0 {
			return fmt.Errorf("%w: zero-byte read", ErrConnectionClosed)
		}
	}
	return nil
}

func closedOr(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return err
}
