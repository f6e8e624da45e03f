package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wjtools/tua-storage/internal/version"
)

// defaultHTTPTimeout is the default timeout for HTTP requests.
const defaultHTTPTimeout = 30 * time.Second

// Origin fetches values from an HTTP service that serves JSON at {base}/{key}.
type Origin struct {
	baseURL string
	client  *http.Client
}

var _ Provider = (*Origin)(nil)

// OriginOptions are the options for the Origin.
type OriginOptions struct {
	// BaseURL is the origin root, e.g. https://api.example.com/v1. Required.
	BaseURL string
	// Client is the HTTP client to use.
	// If nil, defaults to a traced client with a 30s timeout.
	Client *http.Client
	// Timeout overrides the default client timeout. Ignored when Client is set.
	Timeout time.Duration
}

// NewOrigin creates a new Origin.
func NewOrigin(opts OriginOptions) (*Origin, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("origin base URL is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin base URL %q: scheme must be http or https", opts.BaseURL)
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Origin{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
	}, nil
}

// Fetch gets the value for key from the origin. Params are sent as query
// parameters: strings verbatim, everything else JSON-encoded.
func (o *Origin) Fetch(ctx context.Context, key string, params map[string]any) (any, error) {
	apiURL := o.baseURL + "/" + url.PathEscape(key)
	if len(params) > 0 {
		query, err := encodeParams(params)
		if err != nil {
			return nil, err
		}
		apiURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	response, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		switch response.StatusCode {
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s: HTTP 404", ErrNotFound, key)
		case http.StatusTooManyRequests:
			return nil, errors.New("rate limited by origin: HTTP 429")
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, fmt.Errorf("origin unavailable: HTTP %d", response.StatusCode)
		default:
			return nil, fmt.Errorf("origin error: HTTP %d", response.StatusCode)
		}
	}

	var value any
	if err := json.NewDecoder(response.Body).Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return value, nil
}

func encodeParams(params map[string]any) (string, error) {
	values := make(url.Values, len(params))
	for name, v := range params {
		if s, ok := v.(string); ok {
			values.Set(name, s)
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode param %q: %w", name, err)
		}
		values.Set(name, string(encoded))
	}
	return values.Encode(), nil
}
