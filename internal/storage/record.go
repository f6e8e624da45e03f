package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// errMalformedRecord is returned when a stored payload is not a record.
var errMalformedRecord = errors.New("malformed record")

// Record is the value kept per key, both in the index and in the engine.
type Record struct {
	// Data is the cached value, returned to callers as-is.
	Data any
	// TTL is the lifetime counted from CreatedAt. Ignored when Never is set.
	TTL time.Duration
	// Never marks a record that does not expire.
	Never bool
	// CreatedAt is the write time, truncated to milliseconds.
	CreatedAt time.Time

	seq uint64 // commit order within one Storage; zero when read from an engine
}

// ExpiresAt returns the absolute expiry instant, or false for a record that never expires.
func (r *Record) ExpiresAt() (time.Time, bool) {
	if r.Never {
		return time.Time{}, false
	}
	return r.CreatedAt.Add(r.TTL), true
}

// wireRecord is the JSON form written to engines.
type wireRecord struct {
	RawData   any      `json:"rawData"`
	Expires   *float64 `json:"expires"` // seconds; null means never
	CreatedAt int64    `json:"createdAt"` // unix milliseconds
}

// encodeRecord serializes r for an engine.
func encodeRecord(r *Record) ([]byte, error) {
	w := wireRecord{
		RawData:   r.Data,
		CreatedAt: r.CreatedAt.UnixMilli(),
	}
	if !r.Never {
		seconds := r.TTL.Seconds()
		w.Expires = &seconds
	}

	payload, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return payload, nil
}

// decodeRecord parses an engine payload. Values come back in their generic
// JSON form (map[string]any, []any, float64, string, bool or nil).
func decodeRecord(payload []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedRecord, err)
	}
	if w.CreatedAt <= 0 {
		return nil, fmt.Errorf("%w: missing createdAt", errMalformedRecord)
	}

	r := &Record{
		Data:      w.RawData,
		CreatedAt: time.UnixMilli(w.CreatedAt),
	}
	if w.Expires == nil {
		r.Never = true
	} else {
		r.TTL = secondsToDuration(*w.Expires)
	}
	return r, nil
}
