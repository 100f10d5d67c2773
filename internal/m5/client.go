// Package m5 talks to the M5 asset-management API: it exchanges operator
// credentials for a bearer token and fetches asset records.
package m5

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kingrea/fleetnote/internal/fault"
	"github.com/kingrea/fleetnote/internal/transport"
)

// Client calls one M5 deployment.
type Client struct {
	baseURL string
	site    string
	http    *transport.Client
}

// New creates a Client. baseURL is the API root without a trailing slash,
// e.g. https://fleetfocustest.assetworks.com/APItest.
func New(baseURL, site string, tc *transport.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		site:    site,
		http:    tc,
	}
}

type tokenRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
	Site     string `json:"Site"`
}

// Token is a successful token exchange. Raw keeps the response body.
type Token struct {
	Value      string
	StatusCode int
	Raw        json.RawMessage
}

// Asset is a fetched asset record. Raw keeps the body exactly as received.
// Items entries that are not JSON objects decode as nil maps.
type Asset struct {
	ID         string
	StatusCode int
	Raw        json.RawMessage
	Items      []map[string]any
}

// NormalizeUsername upper-cases and trims a username the way M5 expects it.
func NormalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

// Authenticate exchanges credentials for a bearer token. The token is the
// first element of the response's items array, returned verbatim.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Token, error) {
	resp, err := c.http.Do(ctx, transport.Request{
		Operation: "token",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/api/token",
		Body: tokenRequest{
			Username: NormalizeUsername(username),
			Password: password,
			Site:     c.site,
		},
	})
	if err != nil {
		return Token{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, c.http.Failure("token", resp)
	}

	var body struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := c.http.Decode(resp, "items", &body); err != nil {
		return Token{}, err
	}
	if len(body.Items) == 0 {
		return Token{}, &fault.ShapeError{Service: c.http.Service(), Field: "items", Detail: "token not found in items array", Body: string(resp.Body)}
	}
	var token string
	if err := json.Unmarshal(body.Items[0], &token); err != nil || token == "" {
		return Token{}, &fault.ShapeError{Service: c.http.Service(), Field: "items[0]", Detail: "expected a non-empty token string", Body: string(resp.Body)}
	}
	return Token{Value: token, StatusCode: resp.StatusCode, Raw: json.RawMessage(resp.Body)}, nil
}

// GetAsset fetches one asset by id using a bearer token.
func (c *Client) GetAsset(ctx context.Context, token, id string) (Asset, error) {
	resp, err := c.http.Do(ctx, transport.Request{
		Operation: "get asset",
		Method:    http.MethodGet,
		URL:       fmt.Sprintf("%s/api/v1/assets/%s", c.baseURL, url.PathEscape(id)),
		Header:    http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return Asset{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Asset{}, c.http.Failure("get asset", resp)
	}

	var body struct {
		Items json.RawMessage `json:"items"`
	}
	if err := c.http.Decode(resp, "asset body", &body); err != nil {
		return Asset{}, err
	}
	return Asset{
		ID:         id,
		StatusCode: resp.StatusCode,
		Raw:        json.RawMessage(resp.Body),
		Items:      decodeItems(body.Items),
	}, nil
}

// decodeItems keeps whatever part of items is usable. A missing or non-array
// value yields no items and the comment falls back to the placeholder.
func decodeItems(raw json.RawMessage) []map[string]any {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	items := make([]map[string]any, len(elems))
	for i, elem := range elems {
		var item map[string]any
		if json.Unmarshal(elem, &item) == nil {
			items[i] = item
		}
	}
	return items
}
