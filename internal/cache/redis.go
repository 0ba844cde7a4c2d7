package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ Interface = RedisCache{}

// RedisCache satisfies Interface backed by a Redis server. Expiry is
// delegated to redis itself through per key TTLs.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache will create a new redis cache
func NewRedisCache(address, password string) (RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
	})
	return RedisCache{client: rdb}, rdb.Ping(context.Background()).Err()
}

func (r RedisCache) Get(key string) (string, error) {
	value, err := r.client.Get(context.Background(), NormalizeKey(key)).Result()
	if err == redis.Nil {
		return "", NotFoundErr
	} else if err != nil {
		return "", errors.Wrap(err, "unable to fetch data from redis")
	}
	return value, nil
}

func (r RedisCache) Put(key, value string, ttl time.Duration) error {
	return r.client.
		Set(context.Background(), NormalizeKey(key), value, ttl).
		Err()
}

func (r RedisCache) Delete(key string) error {
	return r.client.Del(context.Background(), NormalizeKey(key)).Err()
}

func (r RedisCache) Close() error {
	return r.client.Close()
}
