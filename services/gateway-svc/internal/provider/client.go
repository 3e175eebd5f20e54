package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gateway/services/gateway-svc/internal/registry"
)

const defaultAttemptTimeout = 5 * time.Second

// Result is one Forward attempt's outcome: the raw response bytes (what
// gets returned to the client verbatim on success), its media
// type, the decoded JSON-RPC envelope (for Classify), latency, and the
// HTTP status observed (0 if the transport never produced one).
type Result struct {
	HTTPStatus int
	Body       []byte
	MediaType  string
	RPC        *Response
	Latency    time.Duration
}

// Client forwards admitted requests to upstream providers over HTTPS,
// bounding each attempt with its own deadline. Connection reuse is
// bounded per-destination via http.Transport.MaxConnsPerHost.
type Client struct {
	http *http.Client
}

// NewClient constructs a forwarding client. maxConnsPerHost bounds
// concurrent connections to any one provider destination.
func NewClient(maxConnsPerHost int) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// RenderURL interpolates a provider's URL template for chainID, expanding
// "{chainId}" and "${ENV_VAR}"-style credential placeholders from the
// process environment, so credentials never live in the seed file.
func RenderURL(tmpl, chainID string) string {
	out := strings.ReplaceAll(tmpl, "{chainId}", chainID)
	return expandEnv(out)
}

func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		return os.Getenv(name)
	})
}

// Forward issues the outbound HTTPS POST for one provider attempt,
// deriving a per-attempt deadline from the provider's configured timeout
// (falling back to defaultAttemptTimeout) within the caller's context,
// so the whole-request wall-clock budget and client disconnects propagate
// to in-flight attempts. On a transport-level failure (timeout, connection refused),
// Result.HTTPStatus is 0 and the error is returned for Classify to map.
func (c *Client) Forward(ctx context.Context, p *registry.Provider, chainID string, body []byte) (*Result, error) {
	timeout := defaultAttemptTimeout
	if p.TimeoutMS > 0 {
		timeout = time.Duration(p.TimeoutMS) * time.Millisecond
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := RenderURL(p.URLTemplate, chainID)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for provider %s: %w", p.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &Result{HTTPStatus: 0, Latency: latency}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{HTTPStatus: resp.StatusCode, Latency: latency}, err
	}

	result := &Result{
		HTTPStatus: resp.StatusCode,
		Body:       respBody,
		MediaType:  resp.Header.Get("Content-Type"),
		Latency:    latency,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var rpc Response
		if jsonErr := json.Unmarshal(respBody, &rpc); jsonErr == nil {
			result.RPC = &rpc
		}
	}

	return result, nil
}
