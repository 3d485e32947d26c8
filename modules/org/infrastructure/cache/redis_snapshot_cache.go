package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Dr1DeX/orgtree/modules/org/services"
)

const DefaultSnapshotKey = "org:department_tree_structure:v1"

// setIfGeneration writes the snapshot only while the generation counter still
// holds the value the caller read before building it.
// KEYS: snapshot, generation. ARGV: expected generation, payload, ttl in ms.
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisSnapshotCache keeps the serialized tree under a single key so every
// instance of the service shares one snapshot. A counter next to it is bumped
// on every invalidation.
type RedisSnapshotCache struct {
	client redis.Cmdable
	key    string
	genKey string
}

func NewRedisSnapshotCache(client redis.Cmdable, key string) *RedisSnapshotCache {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshotCache{client: client, key: key, genKey: key + ":generation"}
}

func (c *RedisSnapshotCache) Name() string { return "redis" }

func (c *RedisSnapshotCache) Key() string { return c.key }

func (c *RedisSnapshotCache) GenerationKey() string { return c.genKey }

func (c *RedisSnapshotCache) Get(ctx context.Context) (*services.TreeSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, gerrors.Wrapf(err, "redis get %s", c.key)
	}
	var snapshot services.TreeSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// An unreadable entry is dropped and reported as a miss.
		_ = c.client.Del(ctx, c.key).Err()
		return nil, false, gerrors.Wrap(err, "decode tree snapshot")
	}
	if snapshot.Departments == nil {
		snapshot.Departments = map[int64]*services.TreeNode{}
	}
	return &snapshot, true, nil
}

func (c *RedisSnapshotCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, gerrors.Wrapf(err, "redis get %s", c.genKey)
	}
	return gen, nil
}

// Set stores snapshot for ttl if gen is still current; a zero ttl keeps it until
// the next invalidation.
func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot *services.TreeSnapshot, gen int64, ttl time.Duration) (bool, error) {
	if snapshot == nil {
		return false, nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return false, gerrors.Wrap(err, "encode tree snapshot")
	}
	stored, err := setIfGeneration.Run(ctx, c.client, []string{c.key, c.genKey},
		strconv.FormatInt(gen, 10), raw, ttl.Milliseconds()).Int()
	if err != nil {
		return false, gerrors.Wrapf(err, "redis set %s", c.key)
	}
	return stored == 1, nil
}

// Invalidate bumps the generation and drops the snapshot atomically.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return gerrors.Wrapf(err, "redis invalidate %s", c.key)
	}
	return nil
}
