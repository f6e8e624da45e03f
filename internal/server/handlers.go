package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/wjtools/tua-storage/internal/provider"
	"github.com/wjtools/tua-storage/internal/storage"
)

var (
	// errBadRequest marks request bodies that cannot be used.
	errBadRequest = errors.New("bad request")
	// errOrigin marks failures of the origin during a sync load.
	errOrigin = errors.New("origin fetch failed")
	// errNoOrigin is returned for sync loads when no origin is configured.
	errNoOrigin = errors.New("sync requested but no origin is configured")
)

// keyRequest names a record the way storage.Key does.
type keyRequest struct {
	Key        string         `json:"key,omitempty"`
	FullKey    string         `json:"fullKey,omitempty"`
	SyncParams map[string]any `json:"syncParams,omitempty"`
}

func (k keyRequest) storageKey() storage.Key {
	return storage.Key{Base: k.Key, Full: k.FullKey, Params: k.SyncParams}
}

// loadRequest is one item of POST /v1/load.
type loadRequest struct {
	keyRequest
	// Expires is seconds, null for never, or absent for the default.
	Expires json.RawMessage `json:"expires,omitempty"`
	// Sync refreshes stale data from the configured origin.
	Sync bool `json:"sync,omitempty"`
	// Force always refreshes from the origin.
	Force bool `json:"isForceUpdate,omitempty"`
}

// saveRequest is one item of POST /v1/save.
type saveRequest struct {
	keyRequest
	Data    json.RawMessage `json:"data"`
	Expires json.RawMessage `json:"expires,omitempty"`
}

// dataResponse is the response body for POST /v1/load.
type dataResponse struct {
	Data any `json:"data"`
}

// keysResponse is the response body for GET /v1/keys.
type keysResponse struct {
	Keys []string `json:"keys"`
}

// handleLoad handles POST /v1/load requests.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	items, many, err := decodeBody[loadRequest](w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	reqs := make([]storage.LoadRequest, 0, len(items))
	for _, item := range items {
		req, err := s.loadRequest(item)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		reqs = append(reqs, req)
	}

	if !many {
		data, err := s.storage.Load(r.Context(), reqs[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, dataResponse{Data: data})
		return
	}

	data, err := s.storage.LoadMany(r.Context(), reqs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, dataResponse{Data: data})
}

// loadRequest converts a wire item into a storage.LoadRequest.
func (s *Server) loadRequest(item loadRequest) (storage.LoadRequest, error) {
	expires, err := parseExpires(item.Expires)
	if err != nil {
		return storage.LoadRequest{}, err
	}

	req := storage.LoadRequest{
		Key:     item.storageKey(),
		Expires: expires,
		Force:   item.Force,
	}
	if item.Sync || item.Force {
		if s.origin == nil {
			return storage.LoadRequest{}, errNoOrigin
		}
		// The origin is addressed by the base key, or by the full key when only that is given.
		originKey, params := item.Key, item.SyncParams
		if originKey == "" {
			originKey, params = item.FullKey, nil
		}
		req.Sync = provider.SyncFunc(originProvider{s.origin}, originKey, params)
	}
	return req, nil
}

// handleSave handles POST /v1/save requests.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	items, _, err := decodeBody[saveRequest](w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	reqs := make([]storage.SaveRequest, 0, len(items))
	for _, item := range items {
		expires, err := parseExpires(item.Expires)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		var data any
		if len(item.Data) > 0 {
			data = item.Data
		}
		reqs = append(reqs, storage.SaveRequest{
			Key:     item.storageKey(),
			Data:    data,
			Expires: expires,
		})
	}

	if err := s.storage.SaveMany(r.Context(), reqs); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemove handles POST /v1/remove requests.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	items, _, err := decodeBody[keyRequest](w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	keys := make([]storage.Key, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.storageKey())
	}

	if err := s.storage.Remove(r.Context(), keys...); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClear handles POST /v1/clear requests.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Clear(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleKeys handles GET /v1/keys requests.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.storage.Keys(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	slices.Sort(keys)
	if keys == nil {
		keys = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, keysResponse{Keys: keys})
}

// statsResponse is the GET /v1/stats response body.
type statsResponse struct {
	Counters map[string]int64 `json:"counters"`
}

// handleStats handles GET /v1/stats requests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.fail(w, r, fmt.Errorf("stats: %w", errors.ErrUnsupported))
		return
	}
	counters, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, statsResponse{Counters: counters})
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "status", status, "error", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "status", status, "error", err)
	}
	s.writeError(w, r, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, errNoOrigin),
		errors.Is(err, storage.ErrKeyMissing),
		errors.Is(err, storage.ErrInvalidParams),
		errors.Is(err, storage.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNoDataFound), errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, errOrigin):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body holding either one T or an array of T.
// many reports whether the body was an array.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (items []T, many bool, err error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		return nil, false, fmt.Errorf("%w: read body: %w", errBadRequest, err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, fmt.Errorf("%w: request body is required", errBadRequest)
	}

	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, true, fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
		}
		return items, true, nil
	}

	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, false, fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}
	return []T{item}, false, nil
}

// parseExpires reads the wire lifetime: absent for the default, null for
// never, otherwise a number of seconds.
func parseExpires(raw json.RawMessage) (storage.Expiry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return storage.Expiry{}, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return storage.NeverExpire(), nil
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil {
		return storage.Expiry{}, fmt.Errorf("%w: expires must be a number of seconds or null", errBadRequest)
	}
	if seconds < 0 {
		return storage.Expiry{}, storage.ErrInvalidExpiry
	}
	return storage.ExpireAfterSeconds(seconds), nil
}

// originProvider tags origin failures so they map to 502.
type originProvider struct {
	provider.Provider
}

func (o originProvider) Fetch(ctx context.Context, key string, params map[string]any) (any, error) {
	data, err := o.Provider.Fetch(ctx, key, params)
	if err != nil && !errors.Is(err, provider.ErrNotFound) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: %w", errOrigin, err)
	}
	return data, err
}
