// Package xrpc is a minimal HTTP client for atproto XRPC endpoints
// (GET /xrpc/<nsid> for queries, POST /xrpc/<nsid> for procedures).
package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"skyprefs/pkg/clients"
)

// Error is a non-2xx XRPC response. Name carries the lexicon error name
// (e.g. "ExpiredToken", "InvalidRequest") when the server sent one.
type Error struct {
	StatusCode int    `json:"-"`
	Name       string `json:"error"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("xrpc: status %d", e.StatusCode)
	}
	if e.Message == "" {
		return fmt.Sprintf("xrpc: %s (status %d)", e.Name, e.StatusCode)
	}
	return fmt.Sprintf("xrpc: %s: %s (status %d)", e.Name, e.Message, e.StatusCode)
}

// IsErrorName reports whether err is an *Error with the given lexicon name.
func IsErrorName(err error, name string) bool {
	var xe *Error
	return errors.As(err, &xe) && xe.Name == name
}

// Call addresses one XRPC method. Host overrides the client's service URL
// (used to route authenticated calls to the account's PDS); Token is sent as
// a bearer credential when non-empty. Header values replace the client's
// fixed headers of the same name.
type Call struct {
	NSID   string
	Params url.Values
	Host   string
	Token  string
	Header http.Header
}

type Client struct {
	service      string
	headers      http.Header
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool

	// Queries are idempotent and may use their own, retrying executor.
	queryExecutor    failsafe.Executor[*http.Response]
	queryShouldRetry func(resp *http.Response, err error) bool
}

type Option func(*Client)

// NewClient builds a client for service. Headers given through WithHeader are
// fixed for the lifetime of the client.
func NewClient(service string, opts ...Option) *Client {
	c := &Client{
		service: strings.TrimRight(service, "/"),
		headers: make(http.Header),
		client:  &http.Client{Timeout: 10 * time.Second, Transport: clients.DefaultTransport()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
		c.shouldRetry = cfg.ShouldRetry
	}
}

// WithQueryExecutorConfig runs queries through an executor built from cfg.
// Procedures keep the client's main executor and are never retried by it.
func WithQueryExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.queryExecutor = clients.NewHTTPExecutor(cfg)
		c.queryShouldRetry = cfg.ShouldRetry
		if c.queryShouldRetry == nil {
			c.queryShouldRetry = clients.DefaultShouldRetry
		}
	}
}

func WithHTTPExecutor(executor failsafe.Executor[*http.Response], shouldRetry func(resp *http.Response, err error) bool) Option {
	return func(c *Client) {
		if executor != nil {
			c.httpExecutor = executor
			c.shouldRetry = shouldRetry
		}
	}
}

// WithHeader sets a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value == "" {
			c.headers.Del(key)
			return
		}
		c.headers.Set(key, value)
	}
}

// Service is the default host for calls that do not set Call.Host.
func (c *Client) Service() string {
	return c.service
}

// Header returns a fixed header value.
func (c *Client) Header(key string) string {
	return c.headers.Get(key)
}

// Query issues a GET and decodes the JSON body into out (if non-nil).
func (c *Client) Query(ctx context.Context, call Call, out any) error {
	return c.do(ctx, http.MethodGet, call, nil, out)
}

// Procedure issues a POST with in encoded as JSON (if non-nil) and decodes the
// response into out (if non-nil).
func (c *Client) Procedure(ctx context.Context, call Call, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s input: %w", call.NSID, err)
		}
	}
	return c.do(ctx, http.MethodPost, call, body, out)
}

func (c *Client) endpoint(call Call) string {
	host := call.Host
	if host == "" {
		host = c.service
	}
	u := strings.TrimRight(host, "/") + "/xrpc/" + call.NSID
	if len(call.Params) > 0 {
		u += "?" + call.Params.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method string, call Call, body []byte, out any) error {
	reqURL := c.endpoint(call)
	executor, shouldRetry := c.httpExecutor, c.shouldRetry
	if method == http.MethodGet && c.queryExecutor != nil {
		executor, shouldRetry = c.queryExecutor, c.queryShouldRetry
	}
	resp, err := c.doRequest(ctx, executor, shouldRetry, func(ctx context.Context) (*http.Request, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
		if err != nil {
			return nil, err
		}
		for k, vs := range c.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for k, vs := range call.Header {
			req.Header.Del(k)
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if call.Token != "" {
			req.Header.Set("Authorization", "Bearer "+call.Token)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", call.NSID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		xe := &Error{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, xe)
		return xe
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode %s response: %w", call.NSID, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, executor failsafe.Executor[*http.Response], shouldRetry func(*http.Response, error) bool, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if executor == nil {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	}

	return clients.ExecuteHTTP(ctx, executor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if shouldRetry != nil && shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}
