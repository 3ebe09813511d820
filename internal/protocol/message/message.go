// Package message converts frame bodies to and from typed messages.
//
// A body is "<TYPE>:<args>" where args is a single CSV row.
package message

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const typeSeparator = ":"

var ErrFormat = errors.New("message: invalid format")

// FormatError describes why a received body could not be decoded.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("message: %s: %v", e.Reason, e.Err)
	}
	return "message: " + e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() error { return e.Err }

// Message is one decoded (type, args) pair.
type Message struct {
	Type string
	Args []string
}

func New(typ string, args ...string) Message {
	return Message{Type: typ, Args: args}
}

// Arg returns args[i] or "" when the message is shorter.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

func (m Message) String() string {
	return m.Type + typeSeparator + strings.Join(m.Args, ",")
}

// Encode renders typ and args as a UTF-8 body.
func Encode(typ string, args ...string) ([]byte, error) {
	if typ == "" || strings.Contains(typ, typeSeparator) {
		return nil, fmt.Errorf("%w: bad message type %q", ErrFormat, typ)
	}
	row, err := encodeRow(args)
	if err != nil {
		return nil, err
	}
	body := make([]byte, 0, len(typ)+1+len(row))
	body = append(body, typ...)
	body = append(body, typeSeparator...)
	body = append(body, row...)
	return body, nil
}

// Decode parses a received body.
func Decode(body []byte) (Message, error) {
	if !utf8.Valid(body) {
		return Message{}, &FormatError{Reason: "Body is not valid UTF-8"}
	}
	text := string(body)
	typ, rest, ok := strings.Cut(text, typeSeparator)
	if !ok {
		return Message{}, &FormatError{Reason: "Body has invalid format - no colon"}
	}
	args, err := decodeRow(rest)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Args: args}, nil
}

func encodeRow(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	// csv.Writer writes a lone empty field as a blank line, which reads back
	// as zero fields.
	if len(args) == 1 && args[0] == "" {
		return []byte(`""`), nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// decodeRow reads exactly one CSV row. csv.Reader skips blank lines and
// consumes the terminator of the row it returns, so a blank line before the
// record or any input after it is an extra row.
func decodeRow(raw string) ([]string, error) {
	multiple := &FormatError{Reason: "Multiple CSV rows received in message body"}

	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if errors.Is(err, io.EOF) {
		if raw != "" && !isLineEnd(raw) {
			return nil, multiple
		}
		return []string{}, nil
	}
	if err != nil {
		return nil, &FormatError{Reason: "Invalid CSV in message body", Err: err}
	}
	if line, _ := r.FieldPos(0); line != 1 {
		return nil, multiple
	}
	if r.InputOffset() < int64(len(raw)) {
		if _, err := r.Read(); err != nil && !errors.Is(err, io.EOF) {
			return nil, &FormatError{Reason: "Invalid CSV in message body", Err: err}
		}
		return nil, multiple
	}
	return rec, nil
}

func isLineEnd(s string) bool {
	return s == "\n" || s == "\r\n" || s == "\r"
}
