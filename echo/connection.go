package echo

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/cyberinferno/go-echoserver/buffer"
	"github.com/cyberinferno/go-echoserver/logger"
)

// Phase is the lifecycle stage of a Connection.
type Phase int32

const (
	Accepting Phase = iota // Accepted by the reactor, not yet admitted
	Open                   // Admitted and waiting for its one message
	Closing                // Close requested; no further message is echoed
	Closed                 // Close callback ran; terminal
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case Accepting:
		return "Accepting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// next lists the phases reachable from each phase. Open -> Open (a
// zero-byte event) is not a transition and is not listed.
var next = map[Phase][]Phase{
	Accepting: {Open, Closing},
	Open:      {Closing},
	Closing:   {Closed},
}

// Connection is the state of one accepted TCP stream. Apart from the phase,
// which is atomic so other goroutines may observe it, fields are only
// touched by the event loop.
type Connection struct {
	ID       uint32
	Remote   string
	OpenedAt time.Time

	phase atomic.Int32
	// flushing is set while the echo sits in the reactor's outbound
	// buffer; OnTick reads it from the ticker goroutine.
	flushing atomic.Bool
	reactor  gnet.Conn
	echoed   int
	pending  *WriteRequest
	log      logger.Logger
}

func newConnection(id uint32, reactor gnet.Conn, remote string, log logger.Logger) *Connection {
	return &Connection{
		ID:       id,
		Remote:   remote,
		OpenedAt: time.Now(),
		reactor:  reactor,
		log:      log.With(logger.Field{Key: "conn", Value: id}, logger.Field{Key: "remote", Value: remote}),
	}
}

// Phase returns the current phase.
func (c *Connection) Phase() Phase {
	return Phase(c.phase.Load())
}

// Echoed returns the number of bytes written back on this connection.
func (c *Connection) Echoed() int {
	return c.echoed
}

func (c *Connection) transition(to Phase) error {
	from := c.Phase()
	for _, p := range next[from] {
		if p == to {
			c.phase.Store(int32(to))
			return nil
		}
	}

	return fmt.Errorf("connection %d: illegal transition %s -> %s", c.ID, from, to)
}

// WriteRequest pairs the buffer being echoed with its connection. The
// request owns the buffer from creation until it is released, either by
// the write-completion step or by the close step when the write never
// completed.
type WriteRequest struct {
	conn *Connection
	buf  *buffer.Buffer
}

func newWriteRequest(conn *Connection, buf *buffer.Buffer) *WriteRequest {
	req := &WriteRequest{conn: conn, buf: buf.Move()}
	conn.pending = req
	return req
}

// Bytes returns the payload to write.
func (r *WriteRequest) Bytes() []byte {
	return r.buf.Bytes()
}

// release frees the buffer and detaches the request from its connection.
// It reports false if the request had already been released.
func (r *WriteRequest) release() bool {
	if r.conn.pending == r {
		r.conn.pending = nil
	}

	return r.buf.Release() == nil
}
