// Package objectstore is the boundary to the raw-bytes object store.
// Objects are immutable once written; the Redis-backed implementation
// enforces that with NX writes.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Handle identifies a stored object.
type Handle struct {
	Key        string
	ByteLength int64
}

// Store is the object store collaborator interface. Put is idempotent for
// identical bytes at the same key and rejects attempts to overwrite an
// existing object with different content.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (Handle, error)
	Get(ctx context.Context, handle Handle) ([]byte, error)
}

// ErrImmutabilityViolation signals an attempt to overwrite an existing
// object with different bytes.
var ErrImmutabilityViolation = errors.New("objectstore: object exists with different content")

// RedisStore keeps raw object bytes in Redis strings under an "obj:" prefix.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates an object store on an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func objectKey(key string) string {
	return "novacat:obj:" + key
}

// putObjectScript writes the object only when absent; a re-put of identical
// bytes is a no-op, diverging bytes are an immutability violation.
const putObjectScript = `
local existing = redis.call('GET', KEYS[1])
if existing == false then
  redis.call('SET', KEYS[1], ARGV[1])
  return 1
end
if existing == ARGV[1] then
  return 0
end
return -1
`

// Put stores raw bytes at key. Safe to replay: identical content at the
// same key succeeds without a second write.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) (Handle, error) {
	if key == "" {
		return Handle{}, fmt.Errorf("object key cannot be empty")
	}

	res, err := s.rdb.Eval(ctx, putObjectScript, []string{objectKey(key)}, data).Int()
	if err != nil {
		return Handle{}, fmt.Errorf("failed to put object %s: %w", key, err)
	}
	if res == -1 {
		return Handle{}, fmt.Errorf("object %s: %w", key, ErrImmutabilityViolation)
	}
	return Handle{Key: key, ByteLength: int64(len(data))}, nil
}

// Get retrieves the bytes for a handle.
// Returns redis.Nil for a missing object.
func (s *RedisStore) Get(ctx context.Context, handle Handle) ([]byte, error) {
	data, err := s.rdb.Get(ctx, objectKey(handle.Key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", handle.Key, err)
	}
	return data, nil
}
