package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_SetGet(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("a", 1)
	val, found := cache.Get("a")
	assert.True(t, found)
	assert.Equal(t, 1, val)

	_, found = cache.Get("missing")
	assert.False(t, found)
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	cache := NewLRUCache(10, 20*time.Millisecond)

	cache.Set("a", 1)
	time.Sleep(40 * time.Millisecond)

	_, found := cache.Get("a")
	assert.False(t, found)
}

func TestLRUCache_CapacityEviction(t *testing.T) {
	cache := NewLRUCache(3, time.Minute)

	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), i)
	}

	// Oldest entry was evicted
	_, found := cache.Get("key-0")
	assert.False(t, found)
	assert.Equal(t, 3, cache.Len())

	for i := 1; i < 4; i++ {
		_, found := cache.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, found)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("a", 1)
	cache.Delete("a")

	_, found := cache.Get("a")
	assert.False(t, found)
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewLRUCache(10, 20*time.Millisecond)

	cache.Set("a", 1)
	cache.Set("b", 2)
	time.Sleep(40 * time.Millisecond)
	cache.Set("c", 3)

	removed := cache.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Len())
}
