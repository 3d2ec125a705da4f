package aiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-playground/internal/domain"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds every request issued by the client.
	DefaultTimeout = 10 * time.Second

	maxErrorBody   = 4096
	maxSuccessBody = 1 << 20
)

// TransportError is returned when the AI service cannot be reached or answers
// with a non-2xx status.
type TransportError struct {
	Operation  string
	Path       string
	StatusCode int
	// Payload is the decoded error body when the server sent a JSON object.
	Payload domain.ResponseEnvelope
	Body    string
	Err     error
}

func (e *TransportError) Error() string {
	if e.StatusCode >= 200 && e.StatusCode < 300 {
		return fmt.Sprintf("aiservice: %s: invalid response from %s: %s", e.Operation, e.Path, e.Message())
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("aiservice: %s: unexpected status %d from %s: %s", e.Operation, e.StatusCode, e.Path, e.Message())
	}
	return fmt.Sprintf("aiservice: %s: request to %s failed: %s", e.Operation, e.Path, e.Message())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the upstream status, or 0 for network failures.
func (e *TransportError) HTTPStatusCode() int {
	return e.StatusCode
}

// Message returns the server-provided error text when present, otherwise the
// network error or a status description. It is never empty.
func (e *TransportError) Message() string {
	if msg := e.Payload.FirstString("message", "error", "detail", "details"); msg != "" {
		return msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	if e.StatusCode > 0 {
		if text := http.StatusText(e.StatusCode); text != "" {
			return text
		}
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return "request failed"
}

// Client talks to the AI service. It owns the single configured HTTP client
// used by every gateway operation.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	transport  http.RoundTripper
	logger     *slog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its transport is still
// wrapped with request logging and metrics.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client. Without options it targets DefaultBaseURL with
// DefaultTimeout.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	u, err := url.Parse(c.baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("aiservice: invalid base URL %q", c.baseURL)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	var hc http.Client
	if c.httpClient != nil {
		hc = *c.httpClient
	}
	if hc.Timeout == 0 {
		hc.Timeout = c.timeout
	}
	base := hc.Transport
	if c.transport != nil {
		base = c.transport
	}
	hc.Transport = instrument(base, c.logger)
	c.httpClient = &hc
	return c, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) postJSON(ctx context.Context, op, path string, body any) (domain.ResponseEnvelope, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("aiservice: marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(withOperation(ctx, op), http.MethodPost, c.endpoint(path), bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("aiservice: create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, op, path)
}

func (c *Client) postMultipart(ctx context.Context, op, path string, form *multipartBody) (domain.ResponseEnvelope, error) {
	req, err := http.NewRequestWithContext(withOperation(ctx, op), http.MethodPost, c.endpoint(path), bytes.NewReader(form.body))
	if err != nil {
		return nil, fmt.Errorf("aiservice: create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", form.contentType)
	req.Header.Set("Accept", "application/json")

	return c.do(req, op, path)
}

// do performs exactly one attempt and unwraps the JSON object body.
func (c *Client) do(req *http.Request, op, path string) (domain.ResponseEnvelope, error) {
	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, &TransportError{Operation: op, Path: path, Err: doErr}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &TransportError{
			Operation:  op,
			Path:       path,
			StatusCode: res.StatusCode,
			Payload:    decodeErrorPayload(buf),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxSuccessBody))
	if err != nil {
		return nil, &TransportError{Operation: op, Path: path, Err: fmt.Errorf("read response body: %w", err)}
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return domain.ResponseEnvelope{}, nil
	}

	env, err := decodeObject(buf)
	if err != nil {
		excerpt := buf
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return nil, &TransportError{
			Operation:  op,
			Path:       path,
			StatusCode: res.StatusCode,
			Body:       string(excerpt),
			Err:        fmt.Errorf("decode %s response: %w", op, err),
		}
	}
	return env, nil
}

// decodeObject decodes a single JSON object. Numbers stay json.Number so
// the body is passed on without loss.
func decodeObject(buf []byte) (domain.ResponseEnvelope, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var env domain.ResponseEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	if env == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return env, nil
}

func decodeErrorPayload(buf []byte) domain.ResponseEnvelope {
	env, err := decodeObject(buf)
	if err != nil {
		return nil
	}
	return env
}
