// Package stats counts connection outcomes and keeps a short-lived journal
// of closed sessions for the shutdown summary.
package stats

import (
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// Session summarizes one closed connection.
type Session struct {
	ID       uint32
	Remote   string
	Bytes    int
	Duration time.Duration
	// Err is the close cause as text; empty for a clean close.
	Err string
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Accepted    uint64
	Rejected    uint64
	Echoed      uint64
	EchoedBytes uint64
	ReadErrors  uint64
	WriteErrors uint64
	Closed      uint64
}

// Recorder is safe for concurrent use. Counters are written from the event
// loop and read from any goroutine.
type Recorder struct {
	accepted    atomic.Uint64
	rejected    atomic.Uint64
	echoed      atomic.Uint64
	echoedBytes atomic.Uint64
	readErrors  atomic.Uint64
	writeErrors atomic.Uint64
	closed      atomic.Uint64

	journal *cache.Cache
}

// NewRecorder creates a Recorder whose journal keeps sessions for ttl.
// A ttl of zero or less keeps sessions until the process exits.
//
// Parameters:
//   - ttl: How long each closed session stays in the journal
//
// Returns:
//   - A new Recorder
func NewRecorder(ttl time.Duration) *Recorder {
	cleanup := ttl
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}

	return &Recorder{journal: cache.New(ttl, cleanup)}
}

// Accepted counts a connection admitted by the handler.
func (r *Recorder) Accepted() { r.accepted.Add(1) }

// Rejected counts a connection refused at admission.
func (r *Recorder) Rejected() { r.rejected.Add(1) }

// Echoed records one message of n bytes fully flushed back to the peer.
func (r *Recorder) Echoed(n int) {
	r.echoed.Add(1)
	r.echoedBytes.Add(uint64(n))
}

// ReadError counts a connection that failed while reading.
func (r *Recorder) ReadError() { r.readErrors.Add(1) }

// WriteError counts an echo that could not be written.
func (r *Recorder) WriteError() { r.writeErrors.Add(1) }

// Closed counts a closed connection and journals its summary.
func (r *Recorder) Closed(s Session) {
	r.closed.Add(1)
	r.journal.SetDefault(strconv.FormatUint(uint64(s.ID), 10), s)
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Accepted:    r.accepted.Load(),
		Rejected:    r.rejected.Load(),
		Echoed:      r.echoed.Load(),
		EchoedBytes: r.echoedBytes.Load(),
		ReadErrors:  r.readErrors.Load(),
		WriteErrors: r.writeErrors.Load(),
		Closed:      r.closed.Load(),
	}
}

// Recent returns the unexpired journal entries ordered by session ID.
func (r *Recorder) Recent() []Session {
	items := r.journal.Items()
	sessions := make([]Session, 0, len(items))
	for _, item := range items {
		if s, ok := item.Object.(Session); ok {
			sessions = append(sessions, s)
		}
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions
}

// Session looks up a journaled session by ID.
func (r *Recorder) Session(id uint32) (Session, bool) {
	v, ok := r.journal.Get(strconv.FormatUint(uint64(id), 10))
	if !ok {
		return Session{}, false
	}

	s, ok := v.(Session)
	return s, ok
}
