package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy(t *testing.T) {
	t.Run("copies exactly the given bytes", func(t *testing.T) {
		src := []byte("ping-and-more")
		b := Copy(src[:4])

		assert.True(t, b.Owned())
		assert.Equal(t, []byte("ping"), b.Bytes())
		assert.Equal(t, 4, b.Len())
	})

	t.Run("does not alias the source", func(t *testing.T) {
		src := []byte("ping")
		b := Copy(src)
		src[0] = 'x'

		assert.Equal(t, []byte("ping"), b.Bytes())
	})
}

func TestMove(t *testing.T) {
	t.Run("revokes the original holder", func(t *testing.T) {
		orig := Copy([]byte("hello"))
		moved := orig.Move()

		assert.False(t, orig.Owned())
		assert.Nil(t, orig.Bytes())
		assert.ErrorIs(t, orig.Release(), ErrNotOwned)

		assert.True(t, moved.Owned())
		assert.Equal(t, []byte("hello"), moved.Bytes())
		require.NoError(t, moved.Release())
	})

	t.Run("moving an empty buffer yields an empty buffer", func(t *testing.T) {
		var empty Buffer
		moved := empty.Move()
		assert.False(t, moved.Owned())

		var nilBuf *Buffer
		assert.False(t, nilBuf.Move().Owned())
	})
}

func TestRelease(t *testing.T) {
	t.Run("release exactly once", func(t *testing.T) {
		b := Copy([]byte("x"))
		require.NoError(t, b.Release())
		assert.False(t, b.Owned())
		assert.ErrorIs(t, b.Release(), ErrNotOwned)
	})

	t.Run("zero and nil buffers own nothing", func(t *testing.T) {
		var zero Buffer
		assert.ErrorIs(t, zero.Release(), ErrNotOwned)
		assert.Equal(t, 0, zero.Len())

		var nilBuf *Buffer
		assert.ErrorIs(t, nilBuf.Release(), ErrNotOwned)
		assert.Nil(t, nilBuf.Bytes())
	})

	t.Run("pooled regions come back clean", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			b := Copy([]byte("abc"))
			assert.Equal(t, []byte("abc"), b.Bytes())
			require.NoError(t, b.Release())
		}
	})
}
