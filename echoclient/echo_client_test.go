package echoclient

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPeer runs a one-shot TCP peer on loopback and returns its address.
// Each accepted connection is passed to serve and then closed.
func startPeer(t *testing.T, serve func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				serve(conn)
			}()
		}
	}()

	return ln.Addr().String()
}

func echoOnce(conn net.Conn) {
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	_, _ = conn.Write(buf[:n])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("localhost:6000")

	assert.Equal(t, "localhost:6000", cfg.Address)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 4096, cfg.ReadBufferSize)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
}

func TestExchange(t *testing.T) {
	t.Run("collects the reply until close", func(t *testing.T) {
		addr := startPeer(t, echoOnce)
		c := New(DefaultConfig(addr))

		reply, err := c.Exchange(context.Background(), []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, []byte("ping"), reply.Data)
		assert.True(t, reply.ClosedByPeer)
		assert.Greater(t, reply.Elapsed, time.Duration(0))
	})

	t.Run("empty payload half-closes", func(t *testing.T) {
		sawEOF := make(chan bool, 1)
		addr := startPeer(t, func(conn net.Conn) {
			n, err := conn.Read(make([]byte, 16))
			sawEOF <- n == 0 && err == io.EOF
		})
		c := New(DefaultConfig(addr))

		reply, err := c.Exchange(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, reply.Data)
		assert.True(t, reply.ClosedByPeer)
		assert.True(t, <-sawEOF)
	})

	t.Run("reply larger than the cap", func(t *testing.T) {
		addr := startPeer(t, func(conn net.Conn) {
			if _, err := conn.Read(make([]byte, 16)); err != nil {
				return
			}
			_, _ = conn.Write(make([]byte, 64))
		})
		cfg := DefaultConfig(addr)
		cfg.MaxReplySize = 8
		cfg.ReadBufferSize = 16

		reply, err := New(cfg).Exchange(context.Background(), []byte("x"))
		assert.ErrorIs(t, err, ErrReplyTooLarge)
		assert.Greater(t, len(reply.Data), 8)
	})

	t.Run("cancellation stops waiting for close", func(t *testing.T) {
		hold := make(chan struct{})
		t.Cleanup(func() { close(hold) })
		addr := startPeer(t, func(conn net.Conn) {
			<-hold
		})
		cfg := DefaultConfig(addr)
		cfg.ReadTimeout = 0

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := New(cfg).Exchange(ctx, []byte("ping"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("dial failure", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		_, err = New(DefaultConfig(addr)).Exchange(context.Background(), []byte("ping"))
		assert.Error(t, err)
	})
}

func TestExchangeAll(t *testing.T) {
	addr := startPeer(t, echoOnce)
	c := New(DefaultConfig(addr))

	payloads := [][]byte{[]byte("alpha"), []byte("bravo"), []byte("charlie")}
	replies, err := c.ExchangeAll(context.Background(), payloads)
	require.NoError(t, err)
	require.Len(t, replies, 3)
	for i, p := range payloads {
		assert.Equal(t, p, replies[i].Data)
	}
}
