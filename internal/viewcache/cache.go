// Package viewcache stores derived, read-only projections of occupancy
// (lot availability lists, spot listings) under stable keys.  The cache
// is an optimisation only: every miss, error or disabled cache falls back
// to recomputing from the record store, and no method reports an error
// to its caller.
package viewcache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Projection names used as the first key segment.
const (
	Lots  = "lots"
	Spots = "spots"
)

// Cache is the projection store used by the HTTP layer and invalidated by
// the ledger after each committed mutation.
//
// Every projection carries a generation that Invalidate bumps.  A reader
// takes a Stamp before it reads the record store and hands it to Put; the
// snapshot is dropped when an invalidation ran in between, so a slow fill
// can never outlive the invalidation that followed a commit.
type Cache interface {
	// Get decodes the snapshot stored under key into dst and reports
	// whether a usable snapshot was found.
	Get(ctx context.Context, key string, dst any) bool
	// Stamp records the current generation of projection.
	Stamp(ctx context.Context, projection string) Stamp
	// Put stores value under key for ttl if the projection is still at
	// the generation recorded in s.  A non-positive ttl selects the cache
	// default.
	Put(ctx context.Context, s Stamp, key string, value any, ttl time.Duration)
	// Invalidate bumps the generation of projection and removes the
	// projection with all of its scoped variants.
	Invalidate(ctx context.Context, projection string)
}

// Stamp is the generation of a projection observed before a fill.  A
// Stamp with OK unset never allows a Put.
type Stamp struct {
	Projection string
	Gen        int64
	OK         bool
}

// Logger receives cache failures.  echo's logger satisfies it.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// Key builds a composite key from a projection name and optional scoping
// arguments: Key("spots", 7) == "spots:7".
func Key(name string, args ...any) string {
	if len(args) == 0 {
		return name
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

// Pattern returns the glob matching a projection and all of its scoped
// variants.
func Pattern(name string) string { return name + "*" }

// Nop is a cache that never stores anything.  It is used when caching is
// disabled or Redis is unavailable at startup.
type Nop struct{}

func (Nop) Get(context.Context, string, any) bool { return false }

func (Nop) Stamp(_ context.Context, projection string) Stamp { return Stamp{Projection: projection} }

func (Nop) Put(context.Context, Stamp, string, any, time.Duration) {}

func (Nop) Invalidate(context.Context, string) {}
