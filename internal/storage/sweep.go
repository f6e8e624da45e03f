package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wjtools/tua-storage/internal/engine"
)

// Sweep evicts expired records from the index and returns how many were
// evicted. Their engine copies are deleted in the background.
func (s *Storage) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var evicted []string
	for key, rec := range s.index {
		if Evaluate(rec, now) == Expired {
			delete(s.index, key)
			evicted = append(evicted, key)
		}
	}
	s.mu.Unlock()

	if len(evicted) == 0 {
		return 0
	}
	s.logger.Debug("swept expired records", "evicted", len(evicted))
	s.metrics.Evicted(context.Background(), len(evicted))

	s.goPurge(func(ctx context.Context) {
		for _, key := range evicted {
			if _, err := s.purgeKey(ctx, key, now); err != nil {
				s.logger.WarnContext(ctx, "failed to purge expired record", "key", key, "error", err)
			}
		}
	})
	return len(evicted)
}

// Purge deletes every expired or undecodable record from the engine and
// returns how many were deleted. Engines that cannot list keys are skipped.
func (s *Storage) Purge(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	keys, err := s.engine.Keys(ctx)
	if errors.Is(err, errors.ErrUnsupported) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: purge: %w", err)
	}

	now := s.now()
	purged := 0
	for _, key := range keys {
		ok, err := s.purgeKey(ctx, key, now)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}

	if purged > 0 {
		s.logger.DebugContext(ctx, "purged expired records", "purged", purged)
	}
	return purged, nil
}

// purgeKey deletes the engine record of key if it is expired or undecodable
// at now. Keys in the index hold a fresh commit and are left alone.
func (s *Storage) purgeKey(ctx context.Context, key string, now time.Time) (bool, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	if _, ok := s.indexed(key); ok {
		return false, nil
	}

	payload, err := s.engine.Get(ctx, key)
	if errors.Is(err, engine.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: purge %q: %w", key, err)
	}
	if rec, err := decodeRecord(payload); err == nil && Evaluate(rec, now) != Expired {
		return false, nil
	}

	if err := s.engine.Remove(ctx, key); err != nil {
		return false, fmt.Errorf("storage: purge %q: %w", key, err)
	}
	return true, nil
}

// goPurge runs fn in the background unless the Storage is closed.
// Close waits for it.
func (s *Storage) goPurge(fn func(ctx context.Context)) {
	s.closing.Lock()
	defer s.closing.Unlock()
	if s.closed.Load() {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(context.Background())
	}()
}

func (s *Storage) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Storage) purgeLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Purge(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("failed to purge expired records", "error", err)
			}
		}
	}
}
