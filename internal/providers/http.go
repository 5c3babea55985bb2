// Package providers contains thin HTTP clients for the upstream market
// data services. Every remote call is routed through the gateway so that
// caching, retry, and cooldown policy live in one place.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
)

const defaultUserAgent = "skel-crypto-agent/1.0"

// maxErrorBody bounds how much of an upstream error body is kept for
// error messages.
const maxErrorBody = 2048

// HTTPDoer is the subset of *http.Client the providers need. Tests swap
// in recording fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// statusClassifier maps a non-200 response onto the gateway error
// taxonomy. Providers with unusual status semantics supply their own.
type statusClassifier func(provider string, resp *http.Response) error

// getJSON performs a GET, classifies transport and status failures into
// gateway error categories, and decodes the body into out. The raw body
// is returned so callers can forward it verbatim in event payloads.
func getJSON(ctx context.Context, client HTTPDoer, provider, url string, headers map[string]string, out any) (json.RawMessage, error) {
	return getJSONClassify(ctx, client, provider, url, headers, out, classifyStatus)
}

// getJSONClassify is getJSON with a custom status classifier.
func getJSONClassify(ctx context.Context, client HTTPDoer, provider, url string, headers map[string]string, out any, classify statusClassifier) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, provider, req, out, classify)
}

// postJSON performs a POST with a JSON body and the same classification
// rules as getJSON.
func postJSON(ctx context.Context, client HTTPDoer, provider, url string, headers map[string]string, body, out any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, provider, req, out, classifyStatus)
}

func doJSON(client HTTPDoer, provider string, req *http.Request, out any, classify statusClassifier) (json.RawMessage, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(provider, resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w: %v", provider, gateway.ErrTransient, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", provider, err)
		}
	}
	return json.RawMessage(raw), nil
}

// classifyTransportError maps network failures onto gateway.ErrTransient
// so the gateway retries them. Context cancellation passes through
// untouched.
func classifyTransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", provider, gateway.ErrTransient, err)
}

// classifyStatus turns an HTTP error status into a gateway error:
// 429 and 403 become rate-limit errors that trigger a cooldown, 5xx is
// transient, anything else is a plain upstream failure.
func classifyStatus(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return &gateway.RateLimitError{
			Provider:   provider,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: status %d: %w: %s", provider, resp.StatusCode, gateway.ErrTransient, body)
	default:
		return fmt.Errorf("%s: status %d: %s", provider, resp.StatusCode, body)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
