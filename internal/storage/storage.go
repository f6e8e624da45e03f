// Package storage provides a keyed cache that serves fresh records from an
// in-memory index, falls back to a persistent engine, and refreshes stale or
// missing records through caller-supplied sync functions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wjtools/tua-storage/internal/engine"
	"github.com/wjtools/tua-storage/internal/metrics"
)

const (
	// DefaultExpires is the lifetime used when a request does not choose one.
	DefaultExpires = 30 * time.Second
	// DefaultSweepInterval is how often expired records are evicted from the index.
	DefaultSweepInterval = time.Second
	// DefaultParallelism bounds the concurrent items of a batch.
	DefaultParallelism = 8
	// DefaultPurgeInterval is how often expired records are deleted from the engine.
	DefaultPurgeInterval = time.Minute

	// flightSeparator joins a key and an expiry into a singleflight key.
	flightSeparator = "\x00"
)

// Options configures a Storage. Zero fields take their defaults.
type Options struct {
	// Engine is the persistent backing store. Defaults to engine.NewMemory().
	Engine engine.Engine
	// DefaultExpires defaults to DefaultExpires.
	DefaultExpires time.Duration
	// SweepInterval defaults to DefaultSweepInterval. A negative value disables
	// the background sweeper; Sweep can still be called directly.
	SweepInterval time.Duration
	// PurgeInterval defaults to DefaultPurgeInterval. A negative value
	// disables the periodic engine purge; Purge can still be called directly.
	PurgeInterval time.Duration
	// Parallelism defaults to DefaultParallelism.
	Parallelism int
	// Logger defaults to a logger that discards everything.
	Logger *slog.Logger
	// Metrics defaults to metrics.Discard().
	Metrics *metrics.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Storage is safe for concurrent use.
type Storage struct {
	engine         engine.Engine
	defaultExpires time.Duration
	parallelism    int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	clock          func() time.Time

	mu    sync.RWMutex
	index map[string]*Record

	locks   keyLocks
	flights singleflight.Group
	// seq orders commits: a refresh never overwrites a record committed by
	// a refresh or save that started after it.
	seq atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closing   sync.Mutex // guards closed transitions against wg.Add
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Storage and starts its sweeper and purger.
// Close stops them; the engine stays owned by the caller.
func New(opts Options) *Storage {
	if opts.Engine == nil {
		opts.Engine = engine.NewMemory()
	}
	if opts.DefaultExpires <= 0 {
		opts.DefaultExpires = DefaultExpires
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.PurgeInterval == 0 {
		opts.PurgeInterval = DefaultPurgeInterval
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		engine:         opts.Engine,
		defaultExpires: opts.DefaultExpires,
		parallelism:    opts.Parallelism,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		clock:          opts.Clock,
		index:          make(map[string]*Record),
		ctx:            ctx,
		cancel:         cancel,
	}

	if opts.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(opts.SweepInterval)
	}
	if opts.PurgeInterval > 0 {
		s.wg.Add(1)
		go s.purgeLoop(opts.PurgeInterval)
	}
	return s
}

// now returns the clock reading truncated to milliseconds, the resolution
// records are persisted with.
func (s *Storage) now() time.Time {
	return time.UnixMilli(s.clock().UnixMilli())
}

// Load returns the fresh data for req.Key.
//
// Unless req.Force is set, a fresh record from the index or the engine is
// returned without calling req.Sync. Otherwise req.Sync is awaited and its
// result committed with req.Expires. Without a sync function a stale or
// missing key yields a *NoDataFoundError.
//
// Concurrent unforced refreshes of the same key and Expiry share one sync
// call: callers that join a running refresh receive its result and their own
// Sync is not called. Forced loads always call their own Sync. The refresh
// outlives a caller whose ctx is done, so a cancelled caller returns ctx.Err()
// while the others still receive the result, which is committed.
func (s *Storage) Load(ctx context.Context, req LoadRequest) (any, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	key, err := req.Key.Resolve()
	if err != nil {
		return nil, err
	}

	if !req.Force {
		now := s.now()
		rec, err := s.lookup(ctx, key, now)
		if err != nil {
			return nil, err
		}
		if Evaluate(rec, now) == Fresh {
			s.metrics.Hit(ctx)
			return rec.Data, nil
		}
	}
	s.metrics.Miss(ctx)

	if req.Sync == nil {
		return nil, &NoDataFoundError{Key: key}
	}

	return s.sync(ctx, key, req)
}

// LoadMany loads every request concurrently and returns the results in
// request order. Every item runs to completion; the first error is returned
// and items that succeeded stay committed.
func (s *Storage) LoadMany(ctx context.Context, reqs []LoadRequest) ([]any, error) {
	results := make([]any, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, req := range reqs {
		g.Go(func() error {
			data, err := s.Load(ctx, req)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Save writes req.Data under req.Key. A zero lifetime (ExpireNow) writes
// nothing and leaves an existing record untouched.
func (s *Storage) Save(ctx context.Context, req SaveRequest) error {
	if s.closed.Load() {
		return ErrClosed
	}

	key, err := req.Key.Resolve()
	if err != nil {
		return err
	}
	ttl, never, skip, err := req.Expires.resolve(s.defaultExpires)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	return s.commit(ctx, key, req.Data, ttl, never, s.seq.Add(1))
}

// SaveMany saves every request concurrently with the same error semantics as LoadMany.
func (s *Storage) SaveMany(ctx context.Context, reqs []SaveRequest) error {
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, req := range reqs {
		g.Go(func() error {
			return s.Save(ctx, req)
		})
	}
	return g.Wait()
}

// Remove deletes keys from the index and the engine. Missing keys are not an error.
// Returns ErrKeyMissing when called without keys or when any key does not resolve.
func (s *Storage) Remove(ctx context.Context, keys ...Key) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return ErrKeyMissing
	}

	resolved := make([]string, 0, len(keys))
	for _, k := range keys {
		key, err := k.Resolve()
		if err != nil {
			return err
		}
		resolved = append(resolved, key)
	}

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, key := range resolved {
		g.Go(func() error {
			return s.remove(ctx, key)
		})
	}
	return g.Wait()
}

// Clear empties the index and the engine.
func (s *Storage) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	unlock := s.locks.lockAll()
	defer unlock()

	s.mu.Lock()
	s.index = make(map[string]*Record)
	s.mu.Unlock()

	if err := s.engine.Clear(ctx); err != nil {
		return fmt.Errorf("storage: clear: %w", err)
	}
	return nil
}

// Keys lists the keys held by the engine. Engines that cannot enumerate
// return an error wrapping errors.ErrUnsupported.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	keys, err := s.engine.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: keys: %w", err)
	}
	return keys, nil
}

// Len returns the number of records in the index.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Contains reports whether the index holds a record for the resolved key.
func (s *Storage) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

// Close stops the sweeper and the purger and waits for pending purges.
// It is safe to call more than once.
func (s *Storage) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Lock()
		s.closed.Store(true)
		s.closing.Unlock()

		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// lookup returns the record for key from the index, falling back to the
// engine. A fresh record read from the engine is added to the index.
// A nil record means the key is absent.
func (s *Storage) lookup(ctx context.Context, key string, now time.Time) (*Record, error) {
	if rec, ok := s.indexed(key); ok {
		return rec, nil
	}

	unlock := s.locks.lock(key)
	defer unlock()

	// A writer may have committed while we waited for the stripe.
	if rec, ok := s.indexed(key); ok {
		return rec, nil
	}

	payload, err := s.engine.Get(ctx, key)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %q: %w", key, err)
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "ignoring undecodable record", "key", key, "error", err)
		return nil, nil
	}

	if Evaluate(rec, now) == Fresh {
		s.mu.Lock()
		s.index[key] = rec
		s.mu.Unlock()
	}
	return rec, nil
}

func (s *Storage) indexed(key string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.index[key]
	return rec, ok
}

// sync refreshes key through req.Sync and waits for the outcome or for ctx.
func (s *Storage) sync(ctx context.Context, key string, req LoadRequest) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Detached so one caller going away does not fail the others.
	detached := context.WithoutCancel(ctx)

	var results <-chan singleflight.Result
	if req.Force {
		ch := make(chan singleflight.Result, 1)
		go func() {
			data, err := s.refresh(detached, key, req)
			ch <- singleflight.Result{Val: data, Err: err}
		}()
		results = ch
	} else {
		flight := key + flightSeparator + req.Expires.String()
		results = s.flights.DoChan(flight, func() (any, error) {
			return s.refresh(detached, key, req)
		})
	}

	select {
	case res := <-results:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh awaits the sync function of req and commits its result.
func (s *Storage) refresh(ctx context.Context, key string, req LoadRequest) (any, error) {
	seq := s.seq.Add(1)

	ttl, never, skip, err := req.Expires.resolve(s.defaultExpires)
	if err != nil {
		return nil, err
	}

	data, err := await(ctx, req.Sync)
	s.metrics.Sync(ctx, err)
	if err != nil {
		return nil, err
	}

	if c, ok := data.(Coder); ok && c.ResultCode() != 0 {
		s.logger.DebugContext(ctx, "not caching coded result", "key", key, "code", c.ResultCode())
		return data, nil
	}
	if skip {
		return data, nil
	}
	if err := s.commit(ctx, key, data, ttl, never, seq); err != nil {
		return nil, err
	}
	return data, nil
}

// await waits for the single Result of fn or for ctx to be done.
func await(ctx context.Context, fn SyncFunc) (any, error) {
	ch := fn(ctx)
	if ch == nil {
		return nil, ErrSyncFnNotAwaitable
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, ErrSyncFnNotAwaitable
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// commit writes a record to the engine and, once that succeeds, to the index.
// A record whose seq is older than the indexed one is dropped.
func (s *Storage) commit(ctx context.Context, key string, data any, ttl time.Duration, never bool, seq uint64) error {
	rec := &Record{
		Data:      data,
		TTL:       ttl,
		Never:     never,
		CreatedAt: s.now(),
		seq:       seq,
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("storage: %q: %w", key, err)
	}

	unlock := s.locks.lock(key)
	defer unlock()

	if cur, ok := s.indexed(key); ok && cur.seq > seq {
		s.logger.DebugContext(ctx, "dropping superseded refresh", "key", key)
		return nil
	}

	if err := s.engine.Set(ctx, key, payload); err != nil {
		return fmt.Errorf("storage: write %q: %w", key, err)
	}

	s.mu.Lock()
	s.index[key] = rec
	s.mu.Unlock()
	return nil
}

// remove drops key from the index before the engine, so the index never
// holds a key the engine has lost.
func (s *Storage) remove(ctx context.Context, key string) error {
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()

	if err := s.engine.Remove(ctx, key); err != nil {
		return fmt.Errorf("storage: remove %q: %w", key, err)
	}
	return nil
}
