package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBasics(t *testing.T) {
	s := NewMemoryStore()

	s.Set("k1", []byte("v1"), time.Minute)
	data, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), data)

	_, ok = s.Get("absent")
	assert.False(t, ok)

	assert.True(t, s.Delete("k1"))
	assert.False(t, s.Delete("k1"), "second delete of the same key is a no-op")
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()

	t.Run("Expires Lazily On Read", func(t *testing.T) {
		s.Set("short", []byte("v"), 20*time.Millisecond)
		time.Sleep(40 * time.Millisecond)
		_, ok := s.Get("short")
		assert.False(t, ok)
		assert.Equal(t, 0, s.Len(), "expired entry evicted on access")
	})

	t.Run("Zero TTL Never Expires", func(t *testing.T) {
		s.Set("forever", []byte("v"), 0)
		time.Sleep(30 * time.Millisecond)
		_, ok := s.Get("forever")
		assert.True(t, ok)
	})
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	s.Set("a", []byte("1"), 10*time.Millisecond)
	s.Set("b", []byte("2"), 10*time.Millisecond)
	s.Set("c", []byte("3"), time.Minute)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 0, s.Sweep(), "second sweep finds nothing")
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreSizeBytes(t *testing.T) {
	s := NewMemoryStore()
	s.Set("a", make([]byte, 100), 0)
	s.Set("b", make([]byte, 50), 0)
	assert.Equal(t, int64(150), s.SizeBytes())

	// Overwrite replaces, not accumulates.
	s.Set("a", make([]byte, 10), 0)
	assert.Equal(t, int64(60), s.SizeBytes())

	s.Delete("b")
	assert.Equal(t, int64(10), s.SizeBytes())
}

func TestMemoryStoreKeys(t *testing.T) {
	s := NewMemoryStore()
	s.Set("user:1:profile", []byte("a"), 0)
	s.Set("user:2:profile", []byte("b"), 0)
	s.Set("order:1", []byte("c"), 0)

	matched := s.Keys("user:*:profile")
	assert.ElementsMatch(t, []string{"user:1:profile", "user:2:profile"}, matched)

	assert.Empty(t, s.Keys("payment:*"))
}
