// Package transport performs the JSON request/response exchanges shared by
// the M5, Geotab and Routeware clients. It never retries; a failed exchange
// is reported once with its status code and raw body.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kingrea/fleetnote/internal/fault"
	"github.com/kingrea/fleetnote/internal/logging"
)

// maxBodyBytes bounds how much of a response is kept for display.
const maxBodyBytes = 1 << 20

// Request describes one exchange. Body is marshalled as JSON when non-nil.
type Request struct {
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      any
}

// Response is the raw outcome of an exchange that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client sends Requests for one named service.
type Client struct {
	service string
	http    *http.Client
	trace   *logging.Logger
}

// New creates a Client with its own http.Client bounded by timeout. trace
// may be nil.
func New(service string, timeout time.Duration, trace *logging.Logger) *Client {
	return NewWithHTTPClient(service, &http.Client{Timeout: timeout}, trace)
}

// NewWithHTTPClient wraps an existing http.Client.
func NewWithHTTPClient(service string, hc *http.Client, trace *logging.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{service: service, http: hc, trace: trace}
}

// Service returns the service name used in errors.
func (c *Client) Service() string {
	return c.service
}

// Do performs req. The error is non-nil only when no response was received;
// non-2xx statuses are returned as a Response for the caller to judge.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, fmt.Errorf("%s: marshal %s request: %w", c.service, req.Operation, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("%s: create %s request: %w", c.service, req.Operation, err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.trace.Printf("%s %s %s %s -> error after %s: %v", c.service, req.Operation, req.Method, req.URL, time.Since(started).Round(time.Millisecond), err)
		return Response{}, &fault.RemoteError{Service: c.service, Operation: req.Operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, &fault.RemoteError{Service: c.service, Operation: req.Operation, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.trace.Printf("%s %s %s %s -> %d (%d bytes, %s)", c.service, req.Operation, req.Method, req.URL, resp.StatusCode, len(raw), time.Since(started).Round(time.Millisecond))
	return Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// Failure builds the RemoteError for a response the caller rejected.
func (c *Client) Failure(operation string, resp Response) error {
	return &fault.RemoteError{
		Service:    c.service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}
}

// Decode unmarshals the response body into v. A body that is not valid JSON
// is a shape failure.
func (c *Client) Decode(resp Response, field string, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &fault.ShapeError{Service: c.service, Field: field, Detail: err.Error(), Body: string(resp.Body)}
	}
	return nil
}
