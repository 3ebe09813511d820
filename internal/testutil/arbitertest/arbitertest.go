// Package arbitertest runs an in-process arbiter on a loopback listener so
// session and player code can be tested against a real socket.
package arbitertest

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/grebe/internal/protocol"
	"github.com/danmuck/grebe/internal/protocol/frame"
	"github.com/danmuck/grebe/internal/protocol/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Script drives the server side of one accepted connection.
type Script func(p *Peer) error

// Server is a loopback arbiter. Each accepted connection is handed to the
// next script in order.
type Server struct {
	ln  net.Listener
	log zerolog.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	errs  []error
	peers []*Peer
}

// Start listens on 127.0.0.1 and serves one connection per script.
func Start(t testing.TB, scripts ...Script) *Server {
	t.Helper()
	s := listen(t)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for i, script := range scripts {
			p, err := s.accept()
			if err != nil {
				s.record(fmt.Errorf("accept %d: %w", i, err))
				return
			}
			s.wg.Add(1)
			go func(i int, script Script) {
				defer s.wg.Done()
				defer p.Close()
				if err := script(p); err != nil {
					s.record(fmt.Errorf("script %d: %w", i, err))
				}
			}(i, script)
		}
	}()
	return s
}

func listen(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		ln:  ln,
		log: log.Logger.With().Str("component", "arbitertest").Logger(),
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func (s *Server) accept() (*Peer, error) {
	raw, err := s.ln.Accept()
	if err != nil {
		return nil, err
	}
	p := &Peer{raw: raw, conn: protocol.NewConn(raw, s.log)}
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()
	return p, nil
}

func (s *Server) record(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// Addr is the dialable listener address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Wait blocks until every script has returned and reports their errors.
func (s *Server) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// Close stops the listener and hangs up every peer.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	peers := append([]*Peer(nil), s.peers...)
	s.mu.Unlock()
	for _, p := range peers {
		_ = p.Close()
	}
	return err
}

// Peer is the arbiter's end of one client connection.
type Peer struct {
	raw  net.Conn
	conn *protocol.Conn
}

// Receive reads one message without any classification.
func (p *Peer) Receive() (message.Message, error) {
	return p.conn.Receive()
}

// Expect reads one message and requires its type to be typ.
func (p *Peer) Expect(typ string) (message.Message, error) {
	msg, err := p.conn.Receive()
	if err != nil {
		return message.Message{}, err
	}
	if msg.Type != typ {
		return msg, &protocol.UnexpectedMessageError{Got: msg.Type, Want: []string{typ}}
	}
	return msg, nil
}

func (p *Peer) Send(typ string, args ...string) error {
	return p.conn.Send(typ, args...)
}

// SendRaw writes b to the socket as is. Used for malformed frames.
func (p *Peer) SendRaw(b []byte) error {
	_, err := p.raw.Write(b)
	return err
}

// SendBody writes body inside a well-formed frame.
func (p *Peer) SendBody(body string) error {
	return frame.WriteFrame(p.raw, []byte(body))
}

// SetDeadline bounds the next reads and writes.
func (p *Peer) SetDeadline(d time.Duration) error {
	if d <= 0 {
		return p.raw.SetDeadline(time.Time{})
	}
	return p.raw.SetDeadline(time.Now().Add(d))
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

// Login reads LOGIN and answers LOGIN/SUCCESS with role. It returns the
// username the client sent.
func (p *Peer) Login(role protocol.Role) (string, error) {
	msg, err := p.Expect(protocol.TypeLogin)
	if err != nil {
		return "", err
	}
	if err := p.Send(protocol.TypeLoginSuccess, role.String()); err != nil {
		return "", err
	}
	return msg.Arg(0), nil
}
