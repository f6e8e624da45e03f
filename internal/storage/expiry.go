package storage

import (
	"math"
	"time"
)

type expiryMode uint8

const (
	expiryDefault expiryMode = iota
	expiryNever
	expiryAfter
)

// Expiry is the lifetime requested for a record.
// The zero value selects the storage default.
type Expiry struct {
	mode expiryMode
	ttl  time.Duration
}

// ExpireIn returns an Expiry of d. ExpireIn(0) is ExpireNow.
func ExpireIn(d time.Duration) Expiry {
	return Expiry{mode: expiryAfter, ttl: d}
}

// ExpireNow returns an Expiry for data that is already stale: it is never written.
func ExpireNow() Expiry {
	return Expiry{mode: expiryAfter}
}

// NeverExpire returns an Expiry for data that never goes stale.
func NeverExpire() Expiry {
	return Expiry{mode: expiryNever}
}

// IsDefault reports whether e defers to the storage default.
func (e Expiry) IsDefault() bool {
	return e.mode == expiryDefault
}

// String implements fmt.Stringer.
func (e Expiry) String() string {
	switch e.mode {
	case expiryNever:
		return "never"
	case expiryAfter:
		return e.ttl.String()
	default:
		return "default"
	}
}

// resolve applies fallback and reports whether the write must be skipped.
func (e Expiry) resolve(fallback time.Duration) (ttl time.Duration, never, skip bool, err error) {
	switch e.mode {
	case expiryNever:
		return 0, true, false, nil
	case expiryAfter:
		if e.ttl < 0 {
			return 0, false, false, ErrInvalidExpiry
		}
		return e.ttl, false, e.ttl == 0, nil
	default:
		return fallback, false, false, nil
	}
}

// Status classifies a record at a given instant.
type Status int

const (
	// Absent means there is no record.
	Absent Status = iota
	// Fresh means the record may be served.
	Fresh
	// Expired means the record exists but must be refreshed.
	Expired
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	default:
		return "absent"
	}
}

// Evaluate classifies rec at now. A record is fresh strictly before its
// expiry instant and expired from that instant on.
func Evaluate(rec *Record, now time.Time) Status {
	if rec == nil {
		return Absent
	}
	expiresAt, ok := rec.ExpiresAt()
	if !ok || now.Before(expiresAt) {
		return Fresh
	}
	return Expired
}

// ExpireAfterSeconds converts a lifetime in (possibly fractional) seconds.
// Lifetimes beyond the range of time.Duration are clamped to about 292 years.
func ExpireAfterSeconds(seconds float64) Expiry {
	return ExpireIn(secondsToDuration(seconds))
}

// secondsToDuration converts seconds to a Duration, saturating instead of
// overflowing.
func secondsToDuration(seconds float64) time.Duration {
	ns := seconds * float64(time.Second)
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}
