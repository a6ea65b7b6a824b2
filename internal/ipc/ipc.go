package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	log "log/slog"
)

const (
	CmdSay  = "say"
	CmdPing = "ping"
)

// ControlMessage is one JSON object per connection.
type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Server struct {
	path string
	ln   net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds the unix socket at path, replacing a stale one.
func Listen(path string) (*Server, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Server{path: path, ln: ln, conns: make(map[net.Conn]struct{})}, nil
}

func (s *Server) Path() string { return s.path }

// Serve accepts until ctx is done, then removes the socket file. It returns
// only after every handler has returned, so handler never runs after Serve.
func (s *Server) Serve(ctx context.Context, handler func(ControlMessage)) error {
	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()
	defer os.Remove(s.path)
	defer s.wg.Wait()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("control accept failed", "err", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			handleConn(conn, handler)
		}()
	}
}

// shutdown stops accepting and unblocks handlers still reading.
func (s *Server) shutdown() {
	s.ln.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) Close() error {
	s.shutdown()
	return nil
}

func handleConn(conn net.Conn, handler func(ControlMessage)) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		log.Debug("bad control message", "err", err)
		return
	}
	handler(msg)
}

func SendCommand(path string, msg ControlMessage) error {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	return enc.Encode(msg)
}

// Say asks a running daemon to handle text as if it had been heard.
func Say(path, text string) error {
	return SendCommand(path, ControlMessage{Cmd: CmdSay, Text: text})
}
