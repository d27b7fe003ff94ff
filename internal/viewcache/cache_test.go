package viewcache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func Test_Key(t *testing.T) {
	assert.Equal(t, "lots", viewcache.Key(viewcache.Lots))
	assert.Equal(t, "spots:7", viewcache.Key(viewcache.Spots, uint64(7)))
	assert.Equal(t, "lots:3:page:2", viewcache.Key(viewcache.Lots, 3, "page", 2))
	assert.Equal(t, "spots*", viewcache.Pattern(viewcache.Spots))
}

func Test_New_ReturnsNopWhenDisabledOrWithoutClient(t *testing.T) {
	log := &recordingLogger{}

	disabled := viewcache.New(config.ViewCacheConfig{Enabled: false}, redis.NewClient(&redis.Options{}), log)
	assert.IsType(t, viewcache.Nop{}, disabled)

	noClient := viewcache.New(config.ViewCacheConfig{Enabled: true}, nil, log)
	assert.IsType(t, viewcache.Nop{}, noClient)
}

func Test_Nop_AlwaysMisses(t *testing.T) {
	var c viewcache.Cache = viewcache.Nop{}
	ctx := context.Background()

	s := c.Stamp(ctx, viewcache.Lots)
	assert.False(t, s.OK)
	c.Put(ctx, s, "lots", []int{1, 2, 3}, time.Minute)
	var out []int

	assert.False(t, c.Get(ctx, "lots", &out))
	assert.Nil(t, out)
	c.Invalidate(ctx, viewcache.Lots)
}

func Test_RedisCache_DegradesWhenServerUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	log := &recordingLogger{}
	c := viewcache.New(config.ViewCacheConfig{
		Enabled: true,
		TTL:     30 * time.Second,
		Prefix:  "test",
		Timeout: 100 * time.Millisecond,
	}, rdb, log)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		s := c.Stamp(ctx, viewcache.Lots)
		assert.False(t, s.OK)
		c.Put(ctx, s, "lots", map[string]int{"available": 3}, 0)
		c.Invalidate(ctx, viewcache.Lots)
	})
	var out map[string]int
	assert.False(t, c.Get(ctx, "lots", &out))
	assert.GreaterOrEqual(t, log.count(), 3)
}
