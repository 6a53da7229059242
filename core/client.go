package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName       = "github.com/wispberry-tech/medhelp-web/core"
	refreshPath      = "/auth/refresh"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "medhelp-web"
	maxErrorBody     = 1 << 20
)

// Credentials is the access-token owner the client reads from and reports
// to. The client never mutates session state itself.
type Credentials interface {
	// Get returns the current access token, if any
	Get() (string, bool)
	// Refreshed is called with the payload of a successful silent refresh
	Refreshed(payload *AuthPayload)
	// Expired is called once the refresh cookie is found to be unusable
	Expired(err error)
}

// ClientConfig contains the configuration for the API client
type ClientConfig struct {
	BaseURL     string        // API base URL, e.g. http://localhost:8080/api/v1 (required)
	HTTPClient  *http.Client  // Optional; copied, and given a cookie jar if it has none
	Credentials Credentials   // Defaults to a new TokenStore
	Metrics     *Metrics      // Optional
	UserAgent   string        // Defaults to "medhelp-web"
	Timeout     time.Duration // Used when HTTPClient has no timeout (default: 30s)
}

// Client is the uniform outbound path to the API. It attaches the bearer
// credential, carries the refresh cookie, and recovers once from an expired
// access token.
type Client struct {
	baseURL   string
	http      *http.Client
	creds     Credentials
	metrics   *Metrics
	userAgent string
	tracer    trace.Tracer
	refreshes singleflight.Group
}

// NewClient creates a new API client
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	httpClient, err := newHTTPClient(cfg.HTTPClient, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	creds := cfg.Credentials
	if creds == nil {
		creds = NewTokenStore()
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:   baseURL,
		http:      httpClient,
		creds:     creds,
		metrics:   cfg.Metrics,
		userAgent: userAgent,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

func newHTTPClient(base *http.Client, timeout time.Duration) (*http.Client, error) {
	var hc http.Client
	if base != nil {
		hc = *base
	}

	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	if hc.Timeout == 0 {
		hc.Timeout = timeout
		if hc.Timeout == 0 {
			hc.Timeout = defaultTimeout
		}
	}

	return &hc, nil
}

// BaseURL returns the API base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption adjusts a single call
type RequestOption func(*requestOptions)

type requestOptions struct {
	skipRefresh bool
	skipBearer  bool
}

// WithoutRefresh disables refresh-on-401 for the call. Credential exchange
// endpoints use it so that a rejected password surfaces as such.
func WithoutRefresh() RequestOption {
	return func(o *requestOptions) {
		o.skipRefresh = true
	}
}

// WithoutBearer sends the call with the cookie only
func WithoutBearer() RequestOption {
	return func(o *requestOptions) {
		o.skipBearer = true
	}
}

// Do sends a JSON request to path (relative to the base URL) and decodes a
// successful JSON response into out, which may be nil.
//
// A 401 answer triggers one silent refresh followed by one retry of the
// original request. If the refresh fails, the credentials are told the
// session expired and the returned error matches ErrSessionExpired. Other
// failures are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	route := stripQuery(path)
	ctx, span := c.tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", route),
		))
	defer span.End()

	retried := false
	for {
		resp, err := c.send(ctx, method, path, payload, o.skipBearer)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
			return err
		}
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

		if resp.StatusCode == http.StatusUnauthorized && !o.skipRefresh && !retried {
			discardBody(resp)
			retried = true
			span.AddEvent("refresh")

			slog.Debug("Access token rejected, attempting refresh", "method", method, "path", route)

			if err := c.refreshSession(ctx); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "session expired")
				return err
			}
			continue
		}

		if err := decodeResponse(resp, out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unsuccessful response")
			return err
		}
		return nil
	}
}

// Refresh exchanges the refresh cookie for a new access token and user. It
// carries the cookie only and is never itself refreshed. It does not notify
// the credentials.
func (c *Client) Refresh(ctx context.Context) (*AuthPayload, error) {
	var payload AuthPayload
	if err := c.Do(ctx, http.MethodPost, refreshPath, nil, &payload, WithoutRefresh(), WithoutBearer()); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" || payload.User == nil {
		return nil, malformedResponseError("refresh response without access token or user")
	}
	return &payload, nil
}

// refreshSession runs a silent refresh on behalf of a rejected request.
// Concurrent callers share one refresh call. The shared call is detached
// from the caller that started it, so a caller giving up only abandons its
// own wait; the refresh itself is bounded by the HTTP client timeout.
func (c *Client) refreshSession(ctx context.Context) error {
	refreshCtx := context.WithoutCancel(ctx)

	ch := c.refreshes.DoChan(refreshPath, func() (any, error) {
		payload, err := c.Refresh(refreshCtx)
		if err != nil {
			c.metrics.observeRefresh("failure")
			slog.Info("Session refresh failed, ending session", "error", err)
			c.creds.Expired(err)
			return nil, err
		}

		c.metrics.observeRefresh("success")
		c.creds.Refreshed(payload)
		return payload, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return sessionExpiredError(res.Err)
		}
		return nil
	case <-ctx.Done():
		slog.Debug("Caller stopped waiting for session refresh", "error", ctx.Err())
		return transportError(ctx.Err())
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, skipBearer bool) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	if !skipBearer {
		if token, ok := c.creds.Get(); ok {
			(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observeRequest(method, 0, time.Since(start))
		slog.Debug("API request failed", "method", method, "path", stripQuery(path), "error", err)
		return nil, transportError(err)
	}

	c.metrics.observeRequest(method, resp.StatusCode, time.Since(start))
	slog.Debug("API request completed",
		"method", method,
		"path", stripQuery(path),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	return resp, nil
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{
			Status: resp.StatusCode,
			kind:   ErrServer,
			err:    fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// errorFromResponse extracts the server's message from an error payload
func errorFromResponse(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &payload)

	return &APIError{
		Status:  resp.StatusCode,
		Message: payload.Message,
		kind:    kindForStatus(resp.StatusCode),
	}
}

func discardBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// stripQuery keeps tokens passed as query parameters out of logs and traces
func stripQuery(path string) string {
	p, _, _ := strings.Cut(path, "?")
	return p
}
