// Package ledger owns spot status transitions and the reservation
// lifecycle.  Every mutation runs as a single record store transaction;
// after it commits, the ledger invalidates the derived availability views
// and hands a lifecycle event to the configured Emitter.
package ledger

import (
	"context"
	"time"

	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

// DefaultInvalidationTimeout bounds the post-commit cache invalidation.
const DefaultInvalidationTimeout = 2 * time.Second

// Logger is the subset of echo's logger used by the ledger.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Ledger is safe for concurrent use.  It holds no occupancy state of its
// own; correctness under concurrency comes from the store transaction.
type Ledger struct {
	store             repository.Store
	cache             viewcache.Cache
	emitter           Emitter
	log               Logger
	now               func() time.Time
	invalidateTimeout time.Duration
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.  Tests use it to control billing.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithInvalidationTimeout sets how long post-commit cache invalidation
// may take before it is abandoned.
func WithInvalidationTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.invalidateTimeout = d
		}
	}
}

// New constructs a Ledger.  A nil cache disables view invalidation and a
// nil emitter discards events.
func New(store repository.Store, cache viewcache.Cache, emitter Emitter, logger Logger, opts ...Option) *Ledger {
	if store == nil {
		panic("nil store passed to ledger.New")
	}
	if cache == nil {
		cache = viewcache.Nop{}
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logger == nil {
		logger = nopLogger{}
	}
	l := &Ledger{
		store:             store,
		cache:             cache,
		emitter:           emitter,
		log:               logger,
		now:               time.Now,
		invalidateTimeout: DefaultInvalidationTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// clock returns the current time in UTC truncated to the millisecond
// precision of the record store.
func (l *Ledger) clock() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

// run executes work in a transaction and normalises the resulting error.
func (l *Ledger) run(ctx context.Context, op string, work func(repository.Tx) error) error {
	err := l.store.WithinTx(ctx, work)
	if err == nil || isLedgerError(err) {
		return err
	}
	return storeError(op, err, nil)
}

// afterCommit invalidates every availability projection and emits ev.
// The request context may already be cancelled by the time a mutation
// commits, so invalidation runs detached from it.
func (l *Ledger) afterCommit(ctx context.Context, ev *Event) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.invalidateTimeout)
	defer cancel()
	l.cache.Invalidate(ictx, viewcache.Lots)
	l.cache.Invalidate(ictx, viewcache.Spots)
	if ev != nil {
		l.emitter.Emit(*ev)
	}
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
