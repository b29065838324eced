// Package servertest provides an in-process fake Otii server for tests.
//
// The server speaks the real wire protocol on a loopback TCP listener: a
// greeting on accept, then one CRLF-terminated JSON message per line.
// Handlers are scripted per command and return the raw messages to write
// back, which lets tests inject progress messages, mismatched transaction
// ids, or any other traffic shape a test needs. Every received request is
// recorded for assertions.
package servertest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"sync"

	oerrors "otii-client/errors"
	"otii-client/protocol"
)

// Handler produces the messages written back for one request, in order.
type Handler func(req *protocol.Request) []any

// Server is a scriptable fake Otii server.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	handlers map[string]Handler
	requests []protocol.Request
	greeting any
}

// Start listens on an ephemeral loopback port and begins accepting
// connections.
func Start() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:       ln,
		handlers: make(map[string]Handler),
		greeting: Info("Otii server", map[string]any{"otii_version": "3.5.6", "protocol_version": "1.1"}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the dialable address of the server.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener. Established connections end when their peer
// disconnects or the process exits; tests close the client first.
func (s *Server) Close() {
	_ = s.ln.Close()
}

// SetGreeting replaces the message written when a connection is accepted.
func (s *Server) SetGreeting(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = msg
}

// Handle scripts the messages returned for a command.
func (s *Server) Handle(cmd string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[cmd] = h
}

// Reply scripts a conventional request/response handler: fn receives the
// request's data object and returns the response data, or an error. A
// *errors.RemoteError becomes an error reply with its code and details; any
// other error becomes a "Command failure".
func (s *Server) Reply(cmd string, fn func(data map[string]any) (any, error)) {
	s.Handle(cmd, func(req *protocol.Request) []any {
		data, _ := req.Data.(map[string]any)
		result, err := fn(data)
		if err != nil {
			if re, ok := oerrors.AsRemote(err); ok {
				return []any{Error(req, re.Code, re.Detail)}
			}
			return []any{Error(req, oerrors.CodeCommandFailure, map[string]any{"message": err.Error()})}
		}
		return []any{OK(req, result)}
	})
}

// Requests returns a copy of every request received so far, in order.
func (s *Server) Requests() []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsFor returns the received requests for one command.
func (s *Server) RequestsFor(cmd string) []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Request
	for _, r := range s.requests {
		if r.Cmd == cmd {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	greeting := s.greeting
	s.mu.Unlock()
	if greeting != nil {
		if err := write(conn, greeting); err != nil {
			return
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	scanner.Split(scanCRLF)
	for scanner.Scan() {
		msg, err := protocol.Decode(scanner.Bytes())
		if err != nil {
			continue
		}
		req, ok := msg.(*protocol.Request)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.requests = append(s.requests, *req)
		h := s.handlers[req.Cmd]
		s.mu.Unlock()

		if h == nil {
			// Fire-and-forget requests get no reply, matching the server.
			if req.TransID != "" {
				if err := write(conn, Error(req, oerrors.CodeInvalidCommand, nil)); err != nil {
					return
				}
			}
			continue
		}
		for _, out := range h(req) {
			if err := write(conn, out); err != nil {
				return
			}
		}
	}
}

func write(conn net.Conn, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(b, protocol.Delimiter...))
	return err
}

// scanCRLF splits the incoming stream on the protocol delimiter.
func scanCRLF(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte(protocol.Delimiter)); i >= 0 {
		return i + len(protocol.Delimiter), data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// OK builds a success reply for req.
func OK(req *protocol.Request, data any) map[string]any {
	return map[string]any{
		"type":     "response",
		"trans_id": req.TransID,
		"cmd":      req.Cmd,
		"data":     data,
	}
}

// Error builds an error reply for req with the given errorcode.
func Error(req *protocol.Request, code string, detail any) map[string]any {
	return map[string]any{
		"type":      "error",
		"trans_id":  req.TransID,
		"errorcode": code,
		"cmd":       req.Cmd,
		"data":      detail,
	}
}

// Info builds an out-of-band information message.
func Info(info string, data any) map[string]any {
	return map[string]any{
		"type": "information",
		"info": info,
		"data": data,
	}
}

// Progress builds a progress message for a long-running command.
func Progress(cmd string, value float64) map[string]any {
	return map[string]any{
		"type":           "progress",
		"cmd":            cmd,
		"progress_value": value,
	}
}
