// Package geotab is a minimal JSON-RPC client for the Geotab API covering
// authentication and reading/writing Device comments.
package geotab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/kingrea/fleetnote/internal/fault"
	"github.com/kingrea/fleetnote/internal/transport"
)

const (
	typeDevice = "Device"

	// thisServer is the path value meaning "keep using the endpoint you called".
	thisServer = "ThisServer"
)

// Credentials identify an authenticated Geotab session. Server is set when
// authentication redirected the session to a specific host.
type Credentials struct {
	Database  string `json:"database"`
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	Server    string `json:"-"`
}

// Valid reports whether the credentials carry a session.
func (c Credentials) Valid() bool {
	return c.SessionID != "" && c.UserName != ""
}

// Device is the subset of a Geotab Device record the workflow reads.
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

// Client calls one Geotab JSON-RPC endpoint.
type Client struct {
	endpoint string
	database string
	http     *transport.Client
	nextID   atomic.Int64
}

// New creates a Client for endpoint (e.g. https://my.geotab.com/apiv1/)
// against database.
func New(endpoint, database string, tc *transport.Client) *Client {
	return &Client{endpoint: endpoint, database: database, http: tc}
}

type rpcRequest struct {
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
}

type rpcError struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Code    int    `json:"code"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type authParams struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type getParams struct {
	TypeName    string         `json:"typeName"`
	Search      map[string]any `json:"search"`
	Credentials Credentials    `json:"credentials"`
}

type setParams struct {
	TypeName    string         `json:"typeName"`
	Entity      map[string]any `json:"entity"`
	Credentials Credentials    `json:"credentials"`
}

// Authenticate signs in and returns session credentials. Username and
// password are trimmed before sending.
func (c *Client) Authenticate(ctx context.Context, userName, password string) (Credentials, error) {
	params := authParams{
		UserName: strings.TrimSpace(userName),
		Password: strings.TrimSpace(password),
		Database: c.database,
	}
	result, body, err := c.call(ctx, c.endpoint, "authenticate", "Authenticate", params)
	if err != nil {
		return Credentials{}, err
	}

	var parsed struct {
		Credentials *Credentials `json:"credentials"`
		Path        string       `json:"path"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil || parsed.Credentials == nil || !parsed.Credentials.Valid() {
		return Credentials{}, &fault.ShapeError{Service: c.http.Service(), Field: "result.credentials", Body: body}
	}
	creds := *parsed.Credentials
	if creds.Database == "" {
		creds.Database = c.database
	}
	if path := strings.TrimSpace(parsed.Path); path != "" && !strings.EqualFold(path, thisServer) {
		creds.Server = path
	}
	return creds, nil
}

// FindDevicesByName returns devices whose name matches pattern. Geotab
// treats % as a wildcard, so "2140%" matches names starting with 2140.
func (c *Client) FindDevicesByName(ctx context.Context, creds Credentials, pattern string) ([]Device, error) {
	return c.getDevices(ctx, creds, "find device", map[string]any{"name": pattern})
}

// GetDevice reads a single device by id.
func (c *Client) GetDevice(ctx context.Context, creds Credentials, id string) (Device, error) {
	devices, err := c.getDevices(ctx, creds, "read device", map[string]any{"id": id})
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, &fault.ShapeError{Service: c.http.Service(), Field: "result[0]", Detail: fmt.Sprintf("device %s not returned", id)}
	}
	return devices[0], nil
}

// SetDeviceComment overwrites the comment field of device id.
func (c *Client) SetDeviceComment(ctx context.Context, creds Credentials, id, comment string) error {
	params := setParams{
		TypeName:    typeDevice,
		Entity:      map[string]any{"id": id, "comment": comment},
		Credentials: creds,
	}
	_, _, err := c.call(ctx, c.endpointFor(creds), "set device", "Set", params)
	return err
}

func (c *Client) getDevices(ctx context.Context, creds Credentials, operation string, search map[string]any) ([]Device, error) {
	params := getParams{TypeName: typeDevice, Search: search, Credentials: creds}
	result, body, err := c.call(ctx, c.endpointFor(creds), operation, "Get", params)
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := json.Unmarshal(result, &devices); err != nil {
		return nil, &fault.ShapeError{Service: c.http.Service(), Field: "result", Detail: err.Error(), Body: body}
	}
	return devices, nil
}

func (c *Client) endpointFor(creds Credentials) string {
	if creds.Server == "" {
		return c.endpoint
	}
	return fmt.Sprintf("https://%s/apiv1/", creds.Server)
}

// call sends one JSON-RPC request. A JSON-RPC error object is a remote
// failure even when the HTTP status is 200. Set returns a null result, so
// only a missing result key with no error is treated as normal there.
func (c *Client) call(ctx context.Context, endpoint, operation, method string, params any) (json.RawMessage, string, error) {
	resp, err := c.http.Do(ctx, transport.Request{
		Operation: operation,
		Method:    http.MethodPost,
		URL:       endpoint,
		Body: rpcRequest{
			Method:  method,
			Params:  params,
			ID:      c.nextID.Add(1),
			JSONRPC: "2.0",
		},
	})
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, string(resp.Body), c.http.Failure(operation, resp)
	}

	var envelope rpcResponse
	if err := c.http.Decode(resp, "result", &envelope); err != nil {
		return nil, string(resp.Body), err
	}
	if envelope.Error != nil {
		return nil, string(resp.Body), &fault.RemoteError{
			Service:    c.http.Service(),
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Err:        errors.New(envelope.Error.describe()),
		}
	}
	if method != "Set" && isNull(envelope.Result) {
		return nil, string(resp.Body), &fault.ShapeError{Service: c.http.Service(), Field: "result", Body: string(resp.Body)}
	}
	return envelope.Result, string(resp.Body), nil
}

func (e *rpcError) describe() string {
	switch {
	case e.Name != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	case e.Message != "":
		return e.Message
	case e.Name != "":
		return e.Name
	default:
		return "json-rpc error"
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
