package storage

import "errors"

var (
	// ErrKeyMissing is returned when a request names neither a base key nor a full key.
	ErrKeyMissing = errors.New("key or fullKey is required")
	// ErrSyncFnNotAwaitable is returned when a sync function does not hand back
	// a channel that delivers a Result.
	ErrSyncFnNotAwaitable = errors.New("sync function must return an awaitable result")
	// ErrNoDataFound matches every *NoDataFoundError via errors.Is.
	ErrNoDataFound = errors.New("no data found")
	// ErrInvalidParams is returned when sync params cannot be serialized into a key.
	ErrInvalidParams = errors.New("sync params must be JSON serializable")
	// ErrInvalidExpiry is returned for negative lifetimes.
	ErrInvalidExpiry = errors.New("expires must not be negative")
	// ErrClosed is returned when an operation is attempted on a closed Storage.
	ErrClosed = errors.New("storage is closed")
)

// NoDataFoundError is returned by Load when the record is absent or expired
// and the request carries no sync function.
type NoDataFoundError struct {
	// Key is the resolved key that was looked up.
	Key string
}

// Error returns the JSON text {"key":"<resolved key>"}.
func (e *NoDataFoundError) Error() string {
	msg, err := marshalText(struct {
		Key string `json:"key"`
	}{Key: e.Key})
	if err != nil {
		return ErrNoDataFound.Error()
	}
	return string(msg)
}

// Is reports whether target is ErrNoDataFound.
func (e *NoDataFoundError) Is(target error) bool {
	return target == ErrNoDataFound
}
