package viewcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parking-reservation/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const scanBatch = 200

// putIfCurrent writes ARGV[2] under KEYS[2] for ARGV[3] milliseconds only
// while the generation in KEYS[1] equals ARGV[1].  A missing generation
// counts as 0.
var putIfCurrent = redis.NewScript(`
    local gen = redis.call('GET', KEYS[1]) or '0'
    if gen ~= ARGV[1] then
        return 0
    end
    redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
    return 1
`)

// RedisCache keeps JSON snapshots in Redis under cfg.Prefix.
type RedisCache struct {
	rdb *redis.Client
	cfg config.ViewCacheConfig
	log Logger
}

// New returns a Redis backed cache, or Nop when caching is disabled or
// rdb is nil.
func New(cfg config.ViewCacheConfig, rdb *redis.Client, log Logger) Cache {
	if !cfg.Enabled || rdb == nil {
		return Nop{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = config.MinViewTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	return &RedisCache{rdb: rdb, cfg: cfg, log: log}
}

func (c *RedisCache) key(k string) string { return c.cfg.Prefix + ":" + k }

// genKey lives outside the projection's key space so that Invalidate's
// SCAN never removes it.
func (c *RedisCache) genKey(projection string) string {
	return c.cfg.Prefix + ":gen:" + projection
}

// Stamp reads the projection's generation.  A failed read yields a
// Stamp that Put refuses.
func (c *RedisCache) Stamp(ctx context.Context, projection string) Stamp {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	s := Stamp{Projection: projection}
	gen, err := c.rdb.Get(ctx, c.genKey(projection)).Int64()
	switch {
	case err == nil:
		s.Gen, s.OK = gen, true
	case errors.Is(err, redis.Nil):
		s.OK = true
	default:
		c.log.Warnf("viewcache: generation %s: %v", projection, err)
	}
	return s
}

// Get treats any Redis or decoding failure as a miss.  Undecodable
// entries are dropped so the next read repopulates them.
func (c *RedisCache) Get(ctx context.Context, key string, dst any) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	bs, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnf("viewcache: get %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(bs, dst); err != nil {
		c.log.Warnf("viewcache: decode %s: %v", key, err)
		_ = c.rdb.Del(ctx, c.key(key)).Err()
		return false
	}
	return true
}

// Put is a compare-and-set against the projection generation, so a
// snapshot computed before an invalidation is never stored after it.
func (c *RedisCache) Put(ctx context.Context, s Stamp, key string, value any, ttl time.Duration) {
	if !s.OK {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	bs, err := json.Marshal(value)
	if err != nil {
		c.log.Warnf("viewcache: encode %s: %v", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	keys := []string{c.genKey(s.Projection), c.key(key)}
	args := []any{strconv.FormatInt(s.Gen, 10), bs, ttl.Milliseconds()}
	if err := putIfCurrent.Run(ctx, c.rdb, keys, args...).Err(); err != nil {
		c.log.Warnf("viewcache: put %s: %v", key, err)
	}
}

// Invalidate bumps the generation first, which fences off fills that
// started earlier, then walks the keyspace with SCAN so large keyspaces
// never block the server, and unlinks matches in batches.
func (c *RedisCache) Invalidate(ctx context.Context, projection string) {
	ctx, cancel := context.WithTimeout(ctx, 4*c.cfg.Timeout)
	defer cancel()

	if err := c.rdb.Incr(ctx, c.genKey(projection)).Err(); err != nil {
		c.log.Warnf("viewcache: bump generation %s: %v", projection, err)
	}
	pattern := Pattern(projection)
	iter := c.rdb.Scan(ctx, 0, c.key(pattern), scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.rdb.Unlink(ctx, batch...).Err(); err != nil {
			c.log.Warnf("viewcache: unlink %d keys for %s: %v", len(batch), pattern, err)
		}
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			flush()
		}
	}
	flush()
	if err := iter.Err(); err != nil {
		c.log.Warnf("viewcache: scan %s: %v", pattern, err)
	}
}
