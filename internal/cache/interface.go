package cache

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// NotFoundErr will be returned if the key does not exist in the store
var NotFoundErr = errors.New("key not found")

// Interface is a key to string cache with per entry TTLs. Keys are
// normalized before use, so Get("Proxy:X") and Get("proxy:x") hit the
// same entry. Same key races are tolerated as last write wins.
type Interface interface {
	// Get returns the value of a key, or NotFoundErr when the key is
	// absent or has expired
	Get(key string) (string, error)
	// Put sets a key, overwriting any old entry. A zero ttl stores the
	// value without expiry.
	Put(key, value string, ttl time.Duration) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
	// Close must close the underlying store
	Close() error
}

// NormalizeKey lowercases a key and strips its whitespace
func NormalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, " ", ""))
}
