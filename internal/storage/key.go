package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// paramsSeparator joins a base key to its serialized params.
const paramsSeparator = "?"

// DeriveKey builds the cache key for base scoped by params.
//
// Without params the base key is returned unchanged. Otherwise the params are
// appended as canonical JSON: encoding/json writes map keys in sorted order
// at every level, so equal parameter sets always derive the same key.
// Characters such as < > & are written verbatim.
func DeriveKey(base string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return base, nil
	}

	encoded, err := marshalText(params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return base + paramsSeparator + string(encoded), nil
}

// marshalText encodes v as JSON without escaping <, > and & for HTML.
func marshalText(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Key selects a record. Full, when set, is used verbatim; otherwise the key
// is derived from Base and Params.
type Key struct {
	// Base is the logical key before parameter derivation.
	Base string
	// Full is a pre-derived key that bypasses derivation.
	Full string
	// Params scope Base; see DeriveKey.
	Params map[string]any
}

// BaseKey returns a Key for base scoped by params (which may be nil).
func BaseKey(base string, params map[string]any) Key {
	return Key{Base: base, Params: params}
}

// FullKey returns a Key that is used verbatim.
func FullKey(full string) Key {
	return Key{Full: full}
}

// Resolve returns the effective key.
// Returns ErrKeyMissing if neither Full nor Base is set.
func (k Key) Resolve() (string, error) {
	if k.Full != "" {
		return k.Full, nil
	}
	if k.Base == "" {
		return "", ErrKeyMissing
	}
	return DeriveKey(k.Base, k.Params)
}
