// Package echoclient provides a client for single-exchange echo servers:
// it connects, sends one message, and reads the reply until the server
// closes the connection.
package echoclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the echo client.
type Config struct {
	// Address is the "host:port" to connect to (e.g. "localhost:6000").
	Address string
	// ConnectionTimeout is the max duration for establishing a connection.
	ConnectionTimeout time.Duration
	// WriteTimeout is the max duration for sending the message; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the max duration to wait for the full reply and the
	// server's close; 0 means no timeout.
	ReadTimeout time.Duration
	// ReadBufferSize is the size of each read from the connection.
	ReadBufferSize int
	// MaxReplySize caps how many reply bytes are collected; 0 means no cap.
	MaxReplySize int
}

// DefaultConfig returns a Config with default values for the given address.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config with defaults: ConnectionTimeout 5s, WriteTimeout 5s,
//     ReadTimeout 10s, ReadBufferSize 4096, MaxReplySize 16 MiB.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		ReadBufferSize:    4096,
		MaxReplySize:      16 * 1024 * 1024,
	}
}

// ErrReplyTooLarge is returned when the reply exceeds MaxReplySize.
var ErrReplyTooLarge = errors.New("reply exceeds maximum size")

// Reply is the outcome of one exchange.
type Reply struct {
	// Data holds every byte received before the connection ended.
	Data []byte
	// ClosedByPeer is true when the server closed the connection cleanly.
	ClosedByPeer bool
	// Elapsed is the time from dial to end of stream.
	Elapsed time.Duration
}

// Client performs echo exchanges. It holds no connection between calls and
// is safe for concurrent use.
type Client struct {
	config Config
}

// New creates a client with the given config.
func New(config Config) *Client {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	return &Client{config: config}
}

// Dial opens a TCP connection to the configured address. Callers that need
// to drive the connection themselves (half-close, reset) use this directly.
func (c *Client) Dial(ctx context.Context) (*net.TCPConn, error) {
	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.Address, err)
	}

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("dial %s: not a TCP connection", c.config.Address)
	}

	return tcp, nil
}

// Exchange sends payload in a single write and collects the reply until the
// server closes the connection. An empty payload sends nothing and
// half-closes the write side, so the server sees end of stream.
//
// Parameters:
//   - ctx: Cancels the exchange; the connection is closed on cancellation
//   - payload: Bytes to send
//
// Returns:
//   - The Reply, with whatever was received even when err is non-nil
//   - An error if dialing, writing or reading fails
func (c *Client) Exchange(ctx context.Context, payload []byte) (Reply, error) {
	started := time.Now()
	conn, err := c.Dial(ctx)
	if err != nil {
		return Reply{}, err
	}
	defer func() {
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if len(payload) > 0 {
		if c.config.WriteTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
				return Reply{}, err
			}
		}
		if _, err := conn.Write(payload); err != nil {
			return Reply{}, fmt.Errorf("write: %w", err)
		}
	} else if err := conn.CloseWrite(); err != nil {
		return Reply{}, fmt.Errorf("close write: %w", err)
	}

	reply, err := c.readUntilClosed(conn)
	reply.Elapsed = time.Since(started)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	return reply, err
}

func (c *Client) readUntilClosed(conn net.Conn) (Reply, error) {
	if c.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			return Reply{}, err
		}
	}

	var reply Reply
	buffer := make([]byte, c.config.ReadBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			reply.Data = append(reply.Data, buffer[:n]...)
			if c.config.MaxReplySize > 0 && len(reply.Data) > c.config.MaxReplySize {
				return reply, ErrReplyTooLarge
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				reply.ClosedByPeer = true
				return reply, nil
			}

			return reply, fmt.Errorf("read: %w", err)
		}
	}
}

// ExchangeAll runs one exchange per payload concurrently and returns the
// replies in payload order. The first failure cancels the others.
func (c *Client) ExchangeAll(ctx context.Context, payloads [][]byte) ([]Reply, error) {
	replies := make([]Reply, len(payloads))
	g, gctx := errgroup.WithContext(ctx)
	for i, payload := range payloads {
		i, payload := i, payload // per-iteration copies; go.mod targets go1.21 for the local toolchain
		g.Go(func() error {
			reply, err := c.Exchange(gctx, payload)
			replies[i] = reply
			if err != nil {
				return fmt.Errorf("exchange %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return replies, err
	}

	return replies, nil
}
