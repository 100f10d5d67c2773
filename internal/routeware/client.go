// Package routeware creates dispatch jobs in the Routeware API.
package routeware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kingrea/fleetnote/internal/transport"
)

// Client calls one Routeware deployment.
type Client struct {
	baseURL string
	http    *transport.Client
}

// New creates a Client for baseURL.
func New(baseURL string, tc *transport.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: tc}
}

// Result is the accepted response to a job-create request.
type Result struct {
	StatusCode int
	Body       string
}

// CreateJob submits job. Any 2xx status is success; anything else is a
// remote failure carrying the raw body.
func (c *Client) CreateJob(ctx context.Context, apiKey string, job Job) (Result, error) {
	resp, err := c.http.Do(ctx, transport.Request{
		Operation: "create job",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/api/job",
		Header:    http.Header{"x-api-key": []string{apiKey}},
		Body:      job,
	})
	if err != nil {
		return Result{}, err
	}
	if !resp.OK() {
		return Result{}, c.http.Failure("create job", resp)
	}
	return Result{StatusCode: resp.StatusCode, Body: string(resp.Body)}, nil
}
