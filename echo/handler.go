// Package echo implements the connection handler of a single-exchange TCP
// echo server on top of the gnet reactor.
//
// Each accepted connection reads one message (whatever bytes one readable
// event delivers), writes exactly those bytes back and is closed. All
// callbacks run on the reactor's single event loop goroutine.
package echo

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	gerrors "github.com/panjf2000/gnet/v2/pkg/errors"

	"github.com/cyberinferno/go-echoserver/buffer"
	"github.com/cyberinferno/go-echoserver/config"
	"github.com/cyberinferno/go-echoserver/logger"
	"github.com/cyberinferno/go-echoserver/registry"
	"github.com/cyberinferno/go-echoserver/stats"
)

var (
	// ErrDraining is the admission error once the server is stopping.
	ErrDraining = errors.New("server is draining")

	// ErrTooManyConnections is the admission error when MaxConnections is reached.
	ErrTooManyConnections = errors.New("maximum connections reached")
)

// FlushCheckInterval is how often OnTick wakes connections whose echo is
// still queued in the reactor's outbound buffer.
const FlushCheckInterval = 10 * time.Millisecond

// Handler implements gnet.EventHandler for the echo exchange.
type Handler struct {
	gnet.BuiltinEventEngine

	port           int
	maxConnections int
	log            logger.Logger
	stats          *stats.Recorder
	conns          *registry.Registry[*Connection]

	draining atomic.Bool
	engine   gnet.Engine
	booted   chan struct{}
	bootOnce sync.Once
}

// NewHandler creates a Handler for the given configuration. Connections are
// counted into rec.
//
// Parameters:
//   - cfg: Server configuration (port for the boot message, connection limit)
//   - log: Logger for lifecycle and error entries
//   - rec: Recorder for counters and the session journal
//
// Returns:
//   - A Handler ready to be passed to gnet.Run
func NewHandler(cfg config.Config, log logger.Logger, rec *stats.Recorder) *Handler {
	return &Handler{
		port:           cfg.Port,
		maxConnections: cfg.MaxConnections,
		log:            log,
		stats:          rec,
		conns:          registry.New[*Connection](0),
		booted:         make(chan struct{}),
	}
}

// Booted is closed once the reactor is listening. Engine is valid after it
// is closed.
func (h *Handler) Booted() <-chan struct{} {
	return h.booted
}

// Engine returns the engine captured at boot.
func (h *Handler) Engine() gnet.Engine {
	return h.engine
}

// Drain makes every later accept fail with ErrDraining.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

// ActiveConnections returns the number of connections not yet closed.
func (h *Handler) ActiveConnections() int {
	return h.conns.Len()
}

// Connection looks up a live connection by ID.
func (h *Handler) Connection(id uint32) (*Connection, bool) {
	return h.conns.Get(id)
}

// OnBoot records the engine and announces the listener.
func (h *Handler) OnBoot(eng gnet.Engine) gnet.Action {
	h.bootOnce.Do(func() {
		h.engine = eng
		close(h.booted)
	})
	h.log.Info(fmt.Sprintf("TCP server started on port %d", h.port), logger.Field{Key: "port", Value: h.port})
	return gnet.None
}

// OnShutdown logs the engine stop.
func (h *Handler) OnShutdown(_ gnet.Engine) {
	h.log.Info("TCP server stopped", logger.Field{Key: "open", Value: h.conns.Len()})
}

// OnOpen is the accept step. The connection is registered and attached to
// the reactor conn before admission so that a rejected connection still
// passes through OnClose and is released there.
func (h *Handler) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	id := h.conns.NextID()
	conn := newConnection(id, c, remoteAddr(c), h.log)
	h.conns.Put(id, conn)
	c.SetContext(conn)

	conn.log.Info("new connection")

	if err := h.admit(); err != nil {
		conn.log.Warn("connection rejected", logger.Field{Key: "error", Value: err.Error()})
		h.stats.Rejected()
		h.move(conn, Closing)
		return nil, gnet.Close
	}

	h.stats.Accepted()
	h.move(conn, Open)
	return nil, gnet.None
}

// OnTraffic is the read step. The first non-empty read becomes the one
// echoed message; bytes arriving after it are discarded.
func (h *Handler) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		h.log.Error("traffic on unregistered connection", logger.Field{Key: "remote", Value: remoteAddr(c)})
		return gnet.Close
	}

	data, err := c.Next(-1)
	if err != nil {
		conn.log.Error("read error", logger.Field{Key: "error", Value: err.Error()})
		h.stats.ReadError()
		if conn.Phase() == Open {
			h.move(conn, Closing)
		}
		return gnet.Close
	}

	if req := conn.pending; req != nil {
		if len(data) > 0 {
			conn.log.Debug("discarding bytes after message", logger.Field{Key: "bytes", Value: len(data)})
		}
		return h.awaitFlush(c, req)
	}

	if len(data) == 0 {
		return gnet.None
	}

	if conn.Phase() != Open {
		conn.log.Debug("discarding bytes after message", logger.Field{Key: "bytes", Value: len(data)})
		return gnet.None
	}

	conn.log.Info("incoming message", logger.Field{Key: "bytes", Value: len(data)})

	// data aliases the reactor's inbound buffer and is reused after this
	// callback returns.
	readBuf := buffer.Copy(data)
	req := newWriteRequest(conn, readBuf)
	h.move(conn, Closing)

	_, err = c.Write(req.Bytes())
	if conn.pending != req || err != nil {
		return h.completeWrite(req, err)
	}

	return h.awaitFlush(c, req)
}

// awaitFlush completes req once the reactor's outbound buffer for c is
// empty. Closing earlier would drop the unsent tail: the reactor stops
// flushing on the first EAGAIN when it tears a connection down.
func (h *Handler) awaitFlush(c gnet.Conn, req *WriteRequest) gnet.Action {
	conn := req.conn
	if queued := c.OutboundBuffered(); queued > 0 {
		if !conn.flushing.Swap(true) {
			conn.log.Debug("waiting for outbound flush", logger.Field{Key: "queued", Value: queued})
		}
		return gnet.None
	}

	conn.flushing.Store(false)
	return h.completeWrite(req, nil)
}

// OnTick wakes every connection that is waiting for its echo to flush so
// awaitFlush runs again on the event loop.
func (h *Handler) OnTick() (time.Duration, gnet.Action) {
	h.conns.Range(func(_ uint32, conn *Connection) bool {
		if conn.flushing.Load() {
			if err := conn.reactor.Wake(nil); err != nil {
				conn.log.Debug("wake failed", logger.Field{Key: "error", Value: err.Error()})
			}
		}
		return true
	})

	return FlushCheckInterval, gnet.None
}

// completeWrite is the write-completion step: the bytes have left the
// reactor's outbound buffer, or the write failed. Close is requested only
// here.
func (h *Handler) completeWrite(req *WriteRequest, err error) gnet.Action {
	conn := req.conn
	n := req.buf.Len()

	if conn.pending != req {
		// The reactor closed the connection while writing and OnClose
		// already released and accounted the request.
		return gnet.Close
	}

	if err != nil {
		conn.log.Error("write error", logger.Field{Key: "error", Value: err.Error()})
		h.stats.WriteError()
	} else {
		conn.echoed += n
		h.stats.Echoed(n)
		conn.log.Info("sent back the same message", logger.Field{Key: "bytes", Value: n})
	}

	if !req.release() {
		conn.log.Error("write request released twice")
	}

	return gnet.Close
}

// OnClose is the close step and the terminal state of a connection.
func (h *Handler) OnClose(c gnet.Conn, err error) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		h.log.Warn("close of unregistered connection", logger.Field{Key: "remote", Value: remoteAddr(c)})
		return gnet.None
	}
	c.SetContext(nil)

	from := conn.Phase()
	cause := ""
	switch {
	case err == nil || errors.Is(err, io.EOF):
	case errors.Is(err, gerrors.ErrEngineShutdown):
		conn.log.Debug("closed by engine shutdown")
	case conn.pending != nil:
		cause = err.Error()
		conn.log.Error("write error", logger.Field{Key: "error", Value: cause})
		h.stats.WriteError()
	default:
		cause = err.Error()
		conn.log.Error("read error", logger.Field{Key: "error", Value: cause})
		h.stats.ReadError()
	}

	if req := conn.pending; req != nil {
		conn.log.Warn("dropping unsent message", logger.Field{Key: "bytes", Value: req.buf.Len()})
		req.release()
		conn.flushing.Store(false)
	}

	if from != Closing {
		h.move(conn, Closing)
	}
	h.move(conn, Closed)

	h.stats.Closed(stats.Session{
		ID:       conn.ID,
		Remote:   conn.Remote,
		Bytes:    conn.echoed,
		Duration: time.Since(conn.OpenedAt),
		Err:      cause,
	})
	h.conns.Remove(conn.ID)

	conn.log.Info("connection closed",
		logger.Field{Key: "from", Value: from.String()},
		logger.Field{Key: "bytes", Value: conn.echoed},
	)
	return gnet.None
}

func (h *Handler) admit() error {
	if h.draining.Load() {
		return ErrDraining
	}
	if h.maxConnections > 0 && h.conns.Len() > h.maxConnections {
		return ErrTooManyConnections
	}
	return nil
}

func (h *Handler) move(conn *Connection, to Phase) {
	if err := conn.transition(to); err != nil {
		conn.log.Error("phase transition refused", logger.Field{Key: "error", Value: err.Error()})
	}
}

func remoteAddr(c gnet.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
