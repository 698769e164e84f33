package table

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	ctype  string
	accept string
	body   string
}

func newStore(t *testing.T, status int, reply string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if got != nil {
			*got = captured{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.RawQuery,
				auth:   r.Header.Get("Authorization"),
				ctype:  r.Header.Get("Content-Type"),
				accept: r.Header.Get("Accept"),
				body:   string(b),
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInvokeBasicAuthAndHeaders(t *testing.T) {
	var got captured
	srv := newStore(t, http.StatusCreated, `{"result":{"sys_id":"abc123","number":"INC0010001"}}`, &got)
	c := New(srv.URL, Credentials{Username: "admin", Password: "secret"}, nil)

	resp, err := c.Invoke(context.Background(), http.MethodPost, Path("incident", ""), map[string]any{"short_description": "VPN down"}, "")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/now/table/incident", got.path)
	assert.Equal(t, "Basic YWRtaW46c2VjcmV0", got.auth)
	assert.Equal(t, "application/json", got.ctype)
	assert.Equal(t, "application/json", got.accept)
	assert.JSONEq(t, `{"short_description":"VPN down"}`, got.body)

	assert.True(t, resp.OK())
	res, ok := resp.Result()
	require.True(t, ok)
	assert.Equal(t, "abc123", res.(map[string]any)["sys_id"])
}

func TestInvokeBearerTokenWins(t *testing.T) {
	var got captured
	srv := newStore(t, http.StatusOK, `{"result":[]}`, &got)
	c := New(srv.URL+"/", Credentials{Username: "u", Password: "p", BearerToken: "tok"}, nil)

	_, err := c.Invoke(context.Background(), http.MethodGet, Path("incident", "abc"), nil, "sysparm_limit=10")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, "/api/now/table/incident/abc", got.path)
	assert.Equal(t, "sysparm_limit=10", got.query)
	assert.Empty(t, got.body)
}

func TestInvokeNonJSONBodyReturnsRaw(t *testing.T) {
	srv := newStore(t, http.StatusBadGateway, "<html>upstream down</html>", nil)
	c := New(srv.URL, Credentials{}, nil)

	resp, err := c.Invoke(context.Background(), http.MethodGet, "incident", nil, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, map[string]any{"raw": "<html>upstream down</html>"}, resp.Body)
	_, ok := resp.Result()
	assert.False(t, ok)
}

func TestInvokeTrailingGarbageIsRaw(t *testing.T) {
	srv := newStore(t, http.StatusOK, `{"result":{}} trailing`, nil)
	c := New(srv.URL, Credentials{}, nil)

	resp, err := c.Invoke(context.Background(), http.MethodGet, "incident", nil, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"raw": `{"result":{}} trailing`}, resp.Body)
}

func TestInvokeEmptyBody(t *testing.T) {
	srv := newStore(t, http.StatusNoContent, "", nil)
	c := New(srv.URL, Credentials{}, nil)

	resp, err := c.Invoke(context.Background(), http.MethodDelete, Path("incident", "abc"), nil, "")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, map[string]any{"raw": ""}, resp.Body)
}

func TestInvokeNumbersPreserved(t *testing.T) {
	srv := newStore(t, http.StatusOK, `{"result":{"count":12345678901234567890}}`, nil)
	c := New(srv.URL, Credentials{}, nil)

	resp, err := c.Invoke(context.Background(), http.MethodGet, "x", nil, "")
	require.NoError(t, err)
	res, _ := resp.Result()
	assert.Equal(t, json.Number("12345678901234567890"), res.(map[string]any)["count"])
}

func TestInvokeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, Credentials{}, nil)
	_, err := c.Invoke(context.Background(), http.MethodGet, "incident", nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestPathEscapes(t *testing.T) {
	assert.Equal(t, "incident", Path("incident", ""))
	assert.Equal(t, "incident/abc", Path("incident", "abc"))
	assert.Equal(t, "a%2Fb/c%20d", Path("a/b", "c d"))
}
