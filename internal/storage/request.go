package storage

import "context"

// Result is the outcome delivered by a sync function.
type Result struct {
	Data any
	Err  error
}

// SyncFunc produces fresh data for a key. It must return a channel that
// delivers exactly one Result. A nil channel, or one closed without a value,
// is reported as ErrSyncFnNotAwaitable.
type SyncFunc func(ctx context.Context) <-chan Result

// Async adapts a blocking fetch into a SyncFunc by running it in its own goroutine.
func Async(fetch func(ctx context.Context) (any, error)) SyncFunc {
	return func(ctx context.Context) <-chan Result {
		ch := make(chan Result, 1)
		go func() {
			data, err := fetch(ctx)
			ch <- Result{Data: data, Err: err}
		}()
		return ch
	}
}

// Resolved returns a SyncFunc that immediately yields data.
func Resolved(data any) SyncFunc {
	return func(context.Context) <-chan Result {
		ch := make(chan Result, 1)
		ch <- Result{Data: data}
		return ch
	}
}

// Coder is implemented by sync results that carry an application status code.
// A non-zero code means the result is handed back to the caller but not cached.
type Coder interface {
	ResultCode() int
}

// LoadRequest describes a single Load.
type LoadRequest struct {
	Key Key
	// Expires applies when Sync runs and its result is committed.
	Expires Expiry
	// Sync refreshes the record when it is absent, expired or Force is set.
	Sync SyncFunc
	// Force skips the cached record and always calls Sync.
	Force bool
}

// SaveRequest describes a single Save.
type SaveRequest struct {
	Key     Key
	Data    any
	Expires Expiry
}
