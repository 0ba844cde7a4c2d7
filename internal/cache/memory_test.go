package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, NotFoundErr)

	require.NoError(t, c.Put("key", "value", 0))
	got, err := c.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	require.NoError(t, c.Delete("key"))
	_, err = c.Get("key")
	assert.ErrorIs(t, err, NotFoundErr)
}

func TestMemoryCacheNormalizesKeys(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Put("Reddit:Media: X", "v", 0))
	got, err := c.Get("reddit:media:x")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Put("short", "lived", 10*time.Millisecond))
	got, err := c.Get("short")
	require.NoError(t, err)
	assert.Equal(t, "lived", got)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Get("short")
	assert.ErrorIs(t, err, NotFoundErr)
}

func TestMemoryCacheSweeper(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Put("short", "lived", time.Millisecond))
	assert.Eventually(t, func() bool {
		c.lock.Lock()
		defer c.lock.Unlock()
		_, exists := c.cache["short"]
		return !exists
	}, time.Second, 5*time.Millisecond)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		Key      string
		Expected string
	}{
		{Key: "Reddit:Media:X", Expected: "reddit:media:x"},
		{Key: "proxy:https://I.Redd.It/a b.jpg", Expected: "proxy:https://i.redd.it/ab.jpg"},
		{Key: "already:normal", Expected: "already:normal"},
	}
	for _, test := range tests {
		t.Run(test.Key, func(t *testing.T) {
			assert.Equal(t, test.Expected, NormalizeKey(test.Key))
		})
	}
}
