// Package tcpserver runs the echo handler on a gnet engine and manages its
// lifecycle: start, boot notification, draining stop.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/gnet/v2"

	"github.com/cyberinferno/go-echoserver/config"
	"github.com/cyberinferno/go-echoserver/echo"
	"github.com/cyberinferno/go-echoserver/logger"
	"github.com/cyberinferno/go-echoserver/stats"
)

var (
	// ErrAlreadyRunning is returned by Start on a running server.
	ErrAlreadyRunning = errors.New("server already running")

	// ErrNotRunning is returned by Stop on a server that is not running.
	ErrNotRunning = errors.New("server not running")

	errExitedBeforeBoot = errors.New("engine exited before boot")
)

// TCPServer accepts connections on Config.ProtoAddr and hands them to an
// echo.Handler running on a single event loop. A TCPServer may be started
// again after it has stopped.
type TCPServer struct {
	Logger logger.Logger
	Config config.Config
	Stats  *stats.Recorder

	running atomic.Bool
	mu      sync.Mutex
	handler *echo.Handler
	done    chan struct{}
	runErr  error
}

// New creates a stopped server.
//
// Parameters:
//   - cfg: Server configuration
//   - log: Logger shared by the server, the handler and the reactor
//
// Returns:
//   - A TCPServer; call Start to listen
func New(cfg config.Config, log logger.Logger) *TCPServer {
	return &TCPServer{
		Logger: log,
		Config: cfg,
		Stats:  stats.NewRecorder(cfg.SessionTTL),
	}
}

// Start binds Config.ProtoAddr and runs the engine in a goroutine. It
// returns once the engine has booted, or with the bind/listen error.
//
// Returns:
//   - An error if the server is already running or the engine fails to boot
func (s *TCPServer) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s: %w", s.Config.Name, ErrAlreadyRunning)
	}

	handler := echo.NewHandler(s.Config, s.Logger, s.Stats)
	done := make(chan struct{})

	s.mu.Lock()
	s.handler = handler
	s.done = done
	s.runErr = nil
	s.mu.Unlock()

	go s.run(handler, done)

	select {
	case <-handler.Booted():
		return nil
	case <-done:
		err := s.Err()
		if err == nil {
			err = errExitedBeforeBoot
		}
		s.running.Store(false)
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("server %s failed to start: %w", s.Config.Name, err)
	}
}

func (s *TCPServer) run(handler *echo.Handler, done chan struct{}) {
	err := gnet.Run(handler, s.Config.ProtoAddr(), s.options()...)

	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
	close(done)
}

func (s *TCPServer) options() []gnet.Option {
	opts := []gnet.Option{
		gnet.WithMulticore(false),
		gnet.WithReuseAddr(true),
		gnet.WithReadBufferCap(s.Config.ReadBufferCap),
		// OnTick wakes connections whose echo is still queued.
		gnet.WithTicker(true),
		gnet.WithLogger(logger.NewReactorLogger(s.Logger)),
	}
	if s.Config.SocketSendBuffer > 0 {
		opts = append(opts, gnet.WithSocketSendBuffer(s.Config.SocketSendBuffer))
	}

	return opts
}

// Stop rejects new connections and stops the engine, closing every open
// connection. It waits for the engine to exit or ctx to end.
//
// Returns:
//   - ErrNotRunning if the server is not running, the engine's stop error,
//     or ctx.Err() if the engine did not exit in time
func (s *TCPServer) Stop(ctx context.Context) error {
	if !s.running.Load() {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Config.Name))
		return ErrNotRunning
	}

	s.mu.Lock()
	handler, done := s.handler, s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.running.Store(false)
		s.Logger.Warn(fmt.Sprintf("%s server engine already exited", s.Config.Name))
		return fmt.Errorf("server %s engine already exited: %w", s.Config.Name, ErrNotRunning)
	default:
	}

	handler.Drain()
	<-handler.Booted()
	if err := handler.Engine().Stop(ctx); err != nil {
		s.Logger.Error("server failed to stop", logger.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("server %s failed to stop: %w", s.Config.Name, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.running.Store(false)
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Config.Name))
	return nil
}

// Running reports whether the engine is serving.
func (s *TCPServer) Running() bool {
	return s.running.Load()
}

// Done is closed when the engine of the current run exits. It is nil
// before the first Start.
func (s *TCPServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error the engine exited with, if any.
func (s *TCPServer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Handler returns the handler of the current run.
func (s *TCPServer) Handler() *echo.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}
