package logger

import (
	"fmt"
	"os"

	"github.com/panjf2000/gnet/v2/pkg/logging"
)

// reactorLogger adapts a Logger to gnet's printf-style logging interface.
type reactorLogger struct {
	log Logger
}

var _ logging.Logger = (*reactorLogger)(nil)

// NewReactorLogger wraps l so the reactor's internal diagnostics (accept
// errors, poller failures) are emitted as structured entries tagged with
// component=reactor.
//
// Parameters:
//   - l: The Logger to route reactor output into
//
// Returns:
//   - A gnet logging.Logger
func NewReactorLogger(l Logger) logging.Logger {
	return &reactorLogger{log: l.With(Field{Key: "component", Value: "reactor"})}
}

func (r *reactorLogger) Debugf(format string, args ...any) {
	r.log.Debug(fmt.Sprintf(format, args...))
}

func (r *reactorLogger) Infof(format string, args ...any) {
	r.log.Info(fmt.Sprintf(format, args...))
}

func (r *reactorLogger) Warnf(format string, args ...any) {
	r.log.Warn(fmt.Sprintf(format, args...))
}

func (r *reactorLogger) Errorf(format string, args ...any) {
	r.log.Error(fmt.Sprintf(format, args...))
}

// Fatalf logs at error level and exits, matching the contract gnet expects
// from its loggers.
func (r *reactorLogger) Fatalf(format string, args ...any) {
	r.log.Error(fmt.Sprintf(format, args...), Field{Key: "fatal", Value: true})
	_ = r.log.Close()
	os.Exit(1)
}
