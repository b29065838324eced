// Package transport owns the stream connection to an Otii server.
//
// A Conn wraps a single TCP connection and its partial-read buffer, turning
// the raw byte stream into discrete protocol messages. The connection and
// the buffer are exclusively owned by one logical caller: reads and writes
// are not safe for concurrent use, and the client layer serializes access.
package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	oerrors "otii-client/errors"
	"otii-client/logx"
	"otii-client/protocol"
)

const (
	// recvBufferSize matches the server's expectation of a generously sized
	// client receive buffer; channel data pages can approach 100 KiB.
	recvBufferSize = 128 * 1024

	// dialBackoff is the fixed wait between failed connection attempts.
	dialBackoff = 500 * time.Millisecond

	// greetingTimeout bounds the wait for the server's initial greeting.
	greetingTimeout = 3 * time.Second
)

// Conn is an established connection to an Otii server.
type Conn struct {
	conn      net.Conn
	buf       protocol.Buffer
	scratch   []byte
	sessionID string
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to the server at address, retrying every half second until a
// connection is established or tryFor has elapsed. On success it performs one
// blocking read to consume the server's greeting message and returns it.
//
// tryFor of zero allows a single attempt.
func Dial(address string, tryFor time.Duration) (*Conn, protocol.Message, error) {
	start := time.Now()
	var conn net.Conn
	for {
		var err error
		conn, err = net.DialTimeout("tcp", address, greetingTimeout)
		if err == nil {
			break
		}
		if time.Since(start) > tryFor {
			return nil, nil, fmt.Errorf("%w: %s: %v", oerrors.ErrConnectionFailed, address, err)
		}
		time.Sleep(dialBackoff)
	}

	c := &Conn{
		conn:      conn,
		scratch:   make([]byte, recvBufferSize),
		sessionID: uuid.NewString(),
	}
	c.log = logx.Log.With().
		Str("session_id", c.sessionID).
		Str("server", address).
		Logger()

	greeting, err := c.ReadMessage(greetingTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("reading server greeting: %w", err)
	}
	c.log.Info().Msg("connected")
	return c, greeting, nil
}

// WriteMessage serializes the request and writes the full byte sequence,
// looping on partial writes until all bytes are sent.
func (c *Conn) WriteMessage(req *protocol.Request) error {
	b, err := protocol.Encode(req)
	if err != nil {
		return err
	}
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		if err != nil {
			return fmt.Errorf("%w: %v", oerrors.ErrConnectionBroken, err)
		}
		if n == 0 {
			return oerrors.ErrConnectionBroken
		}
		b = b[n:]
	}
	return nil
}

// ReadMessage returns the next message from the stream, reading until at
// least one complete delimiter-terminated segment is buffered. Bytes after
// the last delimiter are retained for the next call, so messages split
// across reads and messages concatenated in one read are both handled.
//
// A timeout of zero or less blocks until a message arrives.
func (c *Conn) ReadMessage(timeout time.Duration) (protocol.Message, error) {
	if line, ok := c.buf.Next(); ok {
		return protocol.Decode(line)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("%w: %v", oerrors.ErrConnectionBroken, err)
		}
		n, err := c.conn.Read(c.scratch)
		if n > 0 {
			c.buf.Feed(c.scratch[:n])
			if line, ok := c.buf.Next(); ok {
				return protocol.Decode(line)
			}
		}
		if err != nil {
			return nil, c.mapReadError(err)
		}
	}
}

func (c *Conn) mapReadError(err error) error {
	var ne net.Error
	if oerrors.As(err, &ne) && ne.Timeout() {
		return oerrors.ErrTimeout
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return oerrors.ErrClosed
	}
	if oerrors.Is(err, io.EOF) {
		return oerrors.ErrPeerClosed
	}
	// Resets and other mid-session read failures count as the peer going away.
	return fmt.Errorf("%w: %v", oerrors.ErrPeerClosed, err)
}

// Close releases the connection. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.log.Info().Msg("disconnected")
	return c.conn.Close()
}

// SessionID identifies this connection in logs and discovery records.
func (c *Conn) SessionID() string {
	return c.sessionID
}

// RemoteAddr returns the server address of the connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Logger returns the connection-scoped logger.
func (c *Conn) Logger() zerolog.Logger {
	return c.log
}
