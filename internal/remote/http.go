package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
)

// DefaultTimeout bounds each request when the caller sets none.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4096

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTP pushes to the app data REST endpoint:
//
//	PUT    {base}/appdata/{appKey}/{collection}/{id}
//	DELETE {base}/appdata/{appKey}/{collection}/?query={filter}
type HTTP struct {
	base    string
	appKey  string
	headers http.Header
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTP target.
type HTTPOption func(*HTTP)

// WithTimeout sets the per-request timeout. This is the only cancellation
// surface a sync pass has besides ctx.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.client.Timeout = d
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		h.headers.Add(key, value)
	}
}

// WithHTTPClient replaces the client. Its Timeout is kept as is.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithLogger sets the logger for request traces.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = l
	}
}

// NewHTTP creates a REST target rooted at baseURL for appKey.
func NewHTTP(baseURL, appKey string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse remote url: unsupported scheme %q", u.Scheme)
	}
	if appKey == "" {
		return nil, fmt.Errorf("remote app key is required")
	}

	h := &HTTP{
		base:    strings.TrimRight(baseURL, "/"),
		appKey:  appKey,
		headers: http.Header{},
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTP) collectionURL(collection string) string {
	return h.base + "/appdata/" + url.PathEscape(h.appKey) + "/" + url.PathEscape(collection) + "/"
}

// Save PUTs the record and returns the decoded response body. An empty body
// echoes the pushed record.
func (h *HTTP) Save(ctx context.Context, collection string, d doc.Document) (doc.Document, error) {
	id := d.ID()
	if id == "" {
		return nil, fmt.Errorf("save %s: record has no %s", collection, doc.FieldID)
	}
	body, err := d.Encode()
	if err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, err)
	}

	resp, err := h.do(ctx, http.MethodPut, h.collectionURL(collection)+url.PathEscape(id), body)
	if err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return d, nil
	}
	echo, err := doc.Decode(resp)
	if err != nil {
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return echo, nil
}

// Delete removes every record matching q.
func (h *HTTP) Delete(ctx context.Context, collection string, q *query.Query) error {
	params, err := q.URLValues()
	if err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	if _, err := h.do(ctx, http.MethodDelete, h.collectionURL(collection)+"?"+params.Encode(), nil); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}

func (h *HTTP) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range h.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	h.logger.Debug("remote request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
