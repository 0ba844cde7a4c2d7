package cache

import (
	"sync"
	"time"
)

var _ Interface = &MemoryCache{}

// memoryCacheElement is each element in the map of in memory cache.
// A zero expireAt means the entry never expires.
type memoryCacheElement struct {
	value    string
	expireAt time.Time
}

func (e memoryCacheElement) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryCache is an in memory cache. Expired entries are dropped lazily on
// the read that discovers them, plus by a periodic sweeper so abandoned
// keys do not leak forever.
type MemoryCache struct {
	cache map[string]memoryCacheElement
	lock  sync.Mutex
	// Close this channel to stop the sweeper
	cleanUpDoneChannel chan struct{}
}

// NewMemoryCache creates an in memory cache whose sweeper purges expired
// entries every cleanUpInterval
func NewMemoryCache(cleanUpInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		cache:              make(map[string]memoryCacheElement),
		cleanUpDoneChannel: make(chan struct{}),
	}
	go c.cleanUp(cleanUpInterval)
	return c
}

// cleanUp must be executed in another goroutine. It blocks until either
// the ticker fires or the cache is closed.
func (c *MemoryCache) cleanUp(cleanUpInterval time.Duration) {
	cleanUpWait := time.NewTicker(cleanUpInterval)
	for {
		select {
		case <-cleanUpWait.C:
			now := time.Now()
			c.lock.Lock()
			for key, element := range c.cache {
				if element.expired(now) {
					delete(c.cache, key)
				}
			}
			c.lock.Unlock()
		case <-c.cleanUpDoneChannel:
			cleanUpWait.Stop()
			return
		}
	}
}

func (c *MemoryCache) Get(key string) (string, error) {
	key = NormalizeKey(key)
	c.lock.Lock()
	defer c.lock.Unlock()
	element, exists := c.cache[key]
	if !exists {
		return "", NotFoundErr
	}
	if element.expired(time.Now()) {
		delete(c.cache, key)
		return "", NotFoundErr
	}
	return element.value, nil
}

func (c *MemoryCache) Put(key, value string, ttl time.Duration) error {
	element := memoryCacheElement{value: value}
	if ttl > 0 {
		element.expireAt = time.Now().Add(ttl)
	}
	c.lock.Lock()
	c.cache[NormalizeKey(key)] = element
	c.lock.Unlock()
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.lock.Lock()
	delete(c.cache, NormalizeKey(key))
	c.lock.Unlock()
	return nil
}

// Close will cancel the sweeper goroutine
func (c *MemoryCache) Close() error {
	close(c.cleanUpDoneChannel)
	return nil
}
