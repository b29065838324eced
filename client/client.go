// Package client implements synchronous request/response semantics over the
// asynchronous stream owned by the transport layer.
//
// The server multiplexes replies to client commands with unsolicited
// information and progress messages on the same stream. The client assigns a
// fresh transaction id to every request, then reads until the response
// carrying that id arrives, routing out-of-band messages to observer
// callbacks along the way. A response with any other transaction id is a
// protocol-integrity fault and fails the call: it must never resolve a
// different caller's request.
//
// Concurrency: at most one call is in flight per connection. A mutex
// serializes the write and the response-wait loop, so responses resolve in
// request order and the connection's read buffer has a single owner.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	oerrors "otii-client/errors"
	"otii-client/middleware"
	"otii-client/protocol"
	"otii-client/transport"
)

// DefaultTimeout is the response wait for ordinary control commands.
const DefaultTimeout = 3 * time.Second

// NoTimeout waits without bound; used for commands that legitimately run a
// long time, such as opening projects or fetching channel data.
const NoTimeout time.Duration = 0

// Option configures a Client.
type Option func(*Client)

// WithDefaultTimeout overrides the response wait used by Send.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithInformationHandler installs a callback for out-of-band information
// messages observed while waiting for a response.
func WithInformationHandler(fn func(*protocol.Information)) Option {
	return func(c *Client) { c.onInformation = fn }
}

// WithProgressHandler installs a callback for progress messages of
// long-running commands.
func WithProgressHandler(fn func(*protocol.Progress)) Option {
	return func(c *Client) { c.onProgress = fn }
}

// WithMiddleware wraps every Send with the given interceptors, applied in
// the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mws...) }
}

// Client correlates requests with responses over one connection.
type Client struct {
	conn           *transport.Conn
	seq            atomic.Uint64
	middlewares    []middleware.Middleware
	handler        middleware.HandlerFunc
	onInformation  func(*protocol.Information)
	onProgress     func(*protocol.Progress)
	defaultTimeout time.Duration
	log            zerolog.Logger

	// sending serializes in-flight calls: the wire carries correlation state
	// for exactly one outstanding request at a time.
	sending sync.Mutex
}

// New creates a client for an established connection.
func New(conn *transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:           conn,
		defaultTimeout: DefaultTimeout,
		log:            conn.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.handler = middleware.Chain(c.middlewares...)(c.exchange)
	return c
}

// Send issues a command and waits for its response with the default timeout.
// It returns the response payload, or a *errors.RemoteError when the server
// reports a failure.
func (c *Client) Send(cmd string, data any) (json.RawMessage, error) {
	return c.SendTimeout(cmd, data, c.defaultTimeout)
}

// SendTimeout issues a command with an explicit response wait. Pass
// NoTimeout to wait without bound.
func (c *Client) SendTimeout(cmd string, data any, timeout time.Duration) (json.RawMessage, error) {
	return c.handler(context.Background(), &middleware.Call{Cmd: cmd, Data: data, Timeout: timeout})
}

// FireAndForget writes a request without a transaction id and does not wait
// for a response.
func (c *Client) FireAndForget(cmd string, data any) error {
	c.sending.Lock()
	defer c.sending.Unlock()
	return c.conn.WriteMessage(&protocol.Request{Cmd: cmd, Data: data})
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// exchange performs one write followed by the response-wait loop. It is the
// innermost handler of the middleware chain.
func (c *Client) exchange(_ context.Context, call *middleware.Call) (json.RawMessage, error) {
	c.sending.Lock()
	defer c.sending.Unlock()

	transID := strconv.FormatUint(c.seq.Add(1), 10)
	req := &protocol.Request{Cmd: call.Cmd, Data: call.Data, TransID: transID}
	if err := c.conn.WriteMessage(req); err != nil {
		return nil, err
	}

	var deadline time.Time
	if call.Timeout > 0 {
		deadline = time.Now().Add(call.Timeout)
	}
	for {
		wait := NoTimeout
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return nil, oerrors.ErrTimeout
			}
		}
		msg, err := c.conn.ReadMessage(wait)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *protocol.Information:
			c.information(m)
		case *protocol.Progress:
			c.progress(m)
		case *protocol.Response:
			if m.TransID != transID {
				return nil, fmt.Errorf("%w: cmd %s: got %q, want %q",
					oerrors.ErrCorrelationMismatch, call.Cmd, m.TransID, transID)
			}
			return m.Data, nil
		case *protocol.ErrorResponse:
			// Errors the server could not attribute to a request (for
			// example a parse failure) carry no transaction id and are
			// delivered to the only outstanding call.
			if m.TransID != "" && m.TransID != transID {
				return nil, fmt.Errorf("%w: cmd %s: got %q, want %q",
					oerrors.ErrCorrelationMismatch, call.Cmd, m.TransID, transID)
			}
			cmd := m.Cmd
			if cmd == "" {
				cmd = call.Cmd
			}
			return nil, oerrors.NewRemoteError(m.ErrorCode, cmd, m.Data)
		default:
			c.log.Warn().Str("type", string(msg.MessageType())).Msg("unexpected message while waiting for response")
		}
	}
}

func (c *Client) information(m *protocol.Information) {
	if c.onInformation != nil {
		c.onInformation(m)
		return
	}
	c.log.Info().Str("info", m.Info).Msg("server information")
}

func (c *Client) progress(m *protocol.Progress) {
	if c.onProgress != nil {
		c.onProgress(m)
		return
	}
	c.log.Debug().Str("cmd", m.Cmd).Float64("value", m.Value).Msg("progress")
}
