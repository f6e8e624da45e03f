package storage

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

// TestEncodeRecord tests the persisted JSON shape.
func TestEncodeRecord(t *testing.T) {
	t.Parallel()

	created := time.UnixMilli(1_700_000_000_123)

	tests := []struct {
		name string
		rec  *Record
		want string
	}{
		{
			name: "with lifetime",
			rec:  &Record{Data: map[string]any{"a": 1}, TTL: 10 * time.Second, CreatedAt: created},
			want: `{"rawData":{"a":1},"expires":10,"createdAt":1700000000123}`,
		},
		{
			name: "fractional lifetime",
			rec:  &Record{Data: "d", TTL: 1500 * time.Millisecond, CreatedAt: created},
			want: `{"rawData":"d","expires":1.5,"createdAt":1700000000123}`,
		},
		{
			name: "never expires",
			rec:  &Record{Data: []any{1, "x"}, Never: true, CreatedAt: created},
			want: `{"rawData":[1,"x"],"expires":null,"createdAt":1700000000123}`,
		},
		{
			name: "nil data",
			rec:  &Record{TTL: time.Second, CreatedAt: created},
			want: `{"rawData":null,"expires":1,"createdAt":1700000000123}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := encodeRecord(tt.rec)
			if err != nil {
				t.Fatalf("encodeRecord() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("encodeRecord() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestDecodeRecord tests that persisted records keep their expiry semantics.
func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	rec, err := decodeRecord([]byte(`{"rawData":{"a":1},"expires":2.5,"createdAt":1700000000123}`))
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if rec.Never {
		t.Error("Never = true, want false")
	}
	if rec.TTL != 2500*time.Millisecond {
		t.Errorf("TTL = %v, want %v", rec.TTL, 2500*time.Millisecond)
	}
	if !rec.CreatedAt.Equal(time.UnixMilli(1_700_000_000_123)) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, time.UnixMilli(1_700_000_000_123))
	}
	data, ok := rec.Data.(map[string]any)
	if !ok || data["a"] != float64(1) {
		t.Errorf("Data = %#v, want map with a=1", rec.Data)
	}

	never, err := decodeRecord([]byte(`{"rawData":"x","expires":null,"createdAt":1}`))
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if !never.Never {
		t.Error("Never = false, want true")
	}
	huge, err := decodeRecord([]byte(`{"rawData":"x","expires":1e12,"createdAt":1}`))
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if huge.TTL != time.Duration(math.MaxInt64) {
		t.Errorf("TTL = %v, want clamped to %v", huge.TTL, time.Duration(math.MaxInt64))
	}
}

// TestDecodeRecord_Malformed tests that foreign payloads are rejected.
func TestDecodeRecord_Malformed(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		``,
		`not json`,
		`"just a string"`,
		`{"foo":"bar"}`,
		`{"rawData":1,"expires":1}`,
	} {
		if _, err := decodeRecord([]byte(payload)); !errors.Is(err, errMalformedRecord) {
			t.Errorf("decodeRecord(%q) error = %v, want %v", payload, err, errMalformedRecord)
		}
	}
}

// TestRecord_RoundTrip tests that a record survives the engine encoding.
func TestRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	in := &Record{Data: "d", TTL: 30 * time.Second, CreatedAt: time.UnixMilli(42)}
	payload, err := encodeRecord(in)
	if err != nil {
		t.Fatalf("encodeRecord() error = %v", err)
	}
	if !json.Valid(payload) {
		t.Fatalf("encodeRecord() produced invalid JSON: %s", payload)
	}

	out, err := decodeRecord(payload)
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if out.Data != in.Data || out.TTL != in.TTL || out.Never != in.Never || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("decodeRecord() = %+v, want %+v", out, in)
	}
}
