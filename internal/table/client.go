// Package table provides a minimal client for a remote REST table API.
package table

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
)

// BasePath is the table API prefix on the record store.
const BasePath = "/api/now/table"

// ErrTransport marks failures reaching the record store (dial, TLS, reset, timeout).
var ErrTransport = errors.New("record store unreachable")

// Invoker issues one request against the table API.
type Invoker interface {
	Invoke(ctx context.Context, method, path string, body any, query string) (*Response, error)
}

// Credentials selects the outbound auth scheme. BearerToken wins when set.
type Credentials struct {
	Username    string
	Password    string
	BearerToken string
}

// Client is a minimal HTTP client for the table API. It holds no per-request state.
type Client struct {
	BaseURL string
	Creds   Credentials
	HTTP    *http.Client
}

// New returns a new client. If httpClient is nil, http.DefaultClient is used (no timeout).
func New(baseURL string, creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Creds: creds, HTTP: httpClient}
}

// Response is the store's reply. Body holds the decoded JSON document, or
// {"raw": <text>} when the body was not valid JSON.
type Response struct {
	StatusCode int
	Body       any
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Result returns the "result" member of an object body.
func (r *Response) Result() (any, bool) {
	m, ok := r.Body.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m["result"]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Path joins a table name and an optional record key into an escaped path segment.
func Path(table, sysID string) string {
	p := url.PathEscape(table)
	if sysID != "" {
		p += "/" + url.PathEscape(sysID)
	}
	return p
}

// Invoke performs method against BasePath/path with an optional JSON body and
// a pre-encoded query string. Transport failures wrap ErrTransport; any HTTP
// status is returned as a Response.
func (c *Client) Invoke(ctx context.Context, method, path string, body any, query string) (*Response, error) {
	reqURL := c.BaseURL + BasePath + "/" + strings.TrimLeft(path, "/")
	if query != "" {
		reqURL += "?" + query
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: decodeBody(data)}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Creds.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.Creds.BearerToken)
		return
	}
	if c.Creds.Username != "" || c.Creds.Password != "" {
		req.SetBasicAuth(c.Creds.Username, c.Creds.Password)
	}
}

// decodeBody parses a single JSON document. Numbers are kept as json.Number so
// values echo back exactly as the store sent them.
func decodeBody(data []byte) any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return map[string]any{"raw": string(data)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return map[string]any{"raw": string(data)}
	}
	return body
}
