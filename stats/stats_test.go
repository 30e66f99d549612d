package stats

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_counters(t *testing.T) {
	r := NewRecorder(time.Minute)

	r.Accepted()
	r.Accepted()
	r.Rejected()
	r.Echoed(4)
	r.Echoed(6)
	r.ReadError()
	r.WriteError()
	r.Closed(Session{ID: 1})

	assert.Equal(t, Snapshot{
		Accepted:    2,
		Rejected:    1,
		Echoed:      2,
		EchoedBytes: 10,
		ReadErrors:  1,
		WriteErrors: 1,
		Closed:      1,
	}, r.Snapshot())
}

func TestRecorder_journal(t *testing.T) {
	t.Run("recent is ordered by id", func(t *testing.T) {
		r := NewRecorder(time.Minute)
		r.Closed(Session{ID: 3, Remote: "c"})
		r.Closed(Session{ID: 1, Remote: "a", Bytes: 4})
		r.Closed(Session{ID: 2, Remote: "b", Err: errors.New("reset").Error()})

		recent := r.Recent()
		require.Len(t, recent, 3)
		assert.Equal(t, uint32(1), recent[0].ID)
		assert.Equal(t, 4, recent[0].Bytes)
		assert.Equal(t, "reset", recent[1].Err)
		assert.Equal(t, "c", recent[2].Remote)
	})

	t.Run("lookup by id", func(t *testing.T) {
		r := NewRecorder(time.Minute)
		r.Closed(Session{ID: 9, Remote: "x"})

		s, ok := r.Session(9)
		assert.True(t, ok)
		assert.Equal(t, "x", s.Remote)

		_, ok = r.Session(10)
		assert.False(t, ok)
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		r := NewRecorder(20 * time.Millisecond)
		r.Closed(Session{ID: 1})

		assert.Eventually(t, func() bool {
			_, ok := r.Session(1)
			return !ok
		}, time.Second, 10*time.Millisecond)
		assert.Empty(t, r.Recent())
		assert.Equal(t, uint64(1), r.Snapshot().Closed)
	})

	t.Run("non-positive ttl keeps entries", func(t *testing.T) {
		r := NewRecorder(0)
		r.Closed(Session{ID: 1})
		_, ok := r.Session(1)
		assert.True(t, ok)
	})
}

func TestRecorder_concurrent(t *testing.T) {
	r := NewRecorder(time.Minute)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer wg.Done()
			r.Accepted()
			r.Echoed(1)
			r.Closed(Session{ID: uint32(id)})
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, uint64(n), snap.Accepted)
	assert.Equal(t, uint64(n), snap.EchoedBytes)
	assert.Len(t, r.Recent(), n)
}
