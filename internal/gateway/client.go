// Package gateway is the worker-side client of the file server. It owns
// the transport policy: bounded timeouts, bounded retries on transient
// failures, and translation of HTTP responses into the fault taxonomy so
// callers never see raw transport errors.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sharebridge/internal/fault"
)

// Wire types, mirroring the file server's JSON surface.

type FileDescriptor struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type TableSheet struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

type StructuredRows struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
	Shape   [2]int           `json:"shape"`
	Sheet   string           `json:"sheet"`
}

type Health struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	SharedPath string    `json:"shared_path"`
	PathExists bool      `json:"path_exists"`
}

type listResponse struct {
	Files []FileDescriptor `json:"files"`
	Count int              `json:"count"`
}

type sheetsResponse struct {
	Sheets []TableSheet `json:"sheets"`
}

type errorResponse struct {
	Error struct {
		Kind    fault.Kind `json:"kind"`
		Message string     `json:"message"`
	} `json:"error"`
}

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 3
	defaultBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Client is stateless apart from its configuration and is safe for
// concurrent use by multiple pipeline workers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxRetries bounds the number of retry attempts after the initial
// call; n=3 means at most 4 requests on the wire.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) List(ctx context.Context) ([]FileDescriptor, error) {
	var resp listResponse
	if err := c.getJSON(ctx, "/list", &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// ReadStructured fetches the named file parsed as tabular data. sheet
// empty selects the file's first sheet; maxRows 0 means no cap.
func (c *Client) ReadStructured(ctx context.Context, filename, sheet string, maxRows int) (*StructuredRows, error) {
	query := url.Values{}
	if sheet != "" {
		query.Set("sheet", sheet)
	}
	if maxRows > 0 {
		query.Set("rows", strconv.Itoa(maxRows))
	}
	path := "/read/" + url.PathEscape(filename)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var rows StructuredRows
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	return &rows, nil
}

func (c *Client) ListSheets(ctx context.Context, filename string) ([]TableSheet, error) {
	var resp sheetsResponse
	if err := c.getJSON(ctx, "/sheets/"+url.PathEscape(filename), &resp); err != nil {
		return nil, err
	}
	return resp.Sheets, nil
}

// Download fetches the raw file bytes and the content type the server
// reported.
func (c *Client) Download(ctx context.Context, filename string) ([]byte, string, error) {
	resp, err := c.do(ctx, "/download/"+url.PathEscape(filename))
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fault.Wrap(fault.Access, "download interrupted", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.Access, "invalid response from file server", err)
	}
	return nil
}

// do issues the GET with the retry policy: network errors and 5xx are
// retried up to maxRetries with jittered exponential backoff, 4xx are
// terminal and surface immediately as their mapped fault kind. A non-nil
// response is always a 2xx.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, jitteredBackoff(c.backoff, attempt)); err != nil {
				return nil, fault.Wrap(fault.Access, "gateway call canceled", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fault.Wrap(fault.Access, "invalid gateway request", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fault.Wrap(fault.Access, "file server unreachable", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := decodeError(resp)
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return nil, apiErr
	}
	return nil, lastErr
}

// decodeError maps an error response to a fault. The body's kind wins
// when present since one status can cover several kinds (422 is both
// unsupported-format and parse); the status code is the fallback.
func decodeError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Error.Kind != "" {
		return fault.New(body.Error.Kind, body.Error.Message)
	}
	return fault.Newf(fault.FromStatus(resp.StatusCode), "file server returned status %d", resp.StatusCode)
}

// jitteredBackoff doubles the base per attempt, caps it, and spreads the
// result uniformly over [d/2, d] so workers retrying together do not
// hammer the file server in lockstep.
func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half+1)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
