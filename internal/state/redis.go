package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"PreBurstSentinel/internal/model"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is the key the watermark is stored under when none is configured.
const DefaultRedisKey = "preburst:watermark"

// casScript replaces the value only when the stored revision equals ARGV[1]. A missing value,
// an undecodable one or one of another schema version (ARGV[3]) is overwritten.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and doc.version == tonumber(ARGV[3])
    and tonumber(doc.revision or 0) ~= tonumber(ARGV[1]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

// RedisStore keeps the watermark as a JSON value under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStoreWithClient(client, key), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (*model.Watermark, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decode(data)
}

// Save runs the revision check and the write atomically on the server.
func (s *RedisStore) Save(ctx context.Context, w *model.Watermark, prev int64) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}
	ok, err := s.client.Eval(ctx, casScript, []string{s.key}, prev, string(data), model.WatermarkVersion).Int64()
	if err != nil {
		return fmt.Errorf("redis save %s: %w", s.key, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: key %s", ErrConflict, s.key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
