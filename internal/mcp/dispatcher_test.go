package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"record-mcp/internal/table"
	"record-mcp/internal/tools"
)

// countingStore implements table.Invoker and records every call.
type countingStore struct {
	mu    sync.Mutex
	calls []string
	reply *table.Response
}

func (c *countingStore) Invoke(_ context.Context, method, path string, _ any, query string) (*table.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, method+" "+path+"?"+query)
	if c.reply != nil {
		return c.reply, nil
	}
	return &table.Response{StatusCode: http.StatusOK, Body: map[string]any{"result": map[string]any{"sys_id": "abc123", "number": "INC0010001"}}}, nil
}

type memJournal struct {
	records []CallRecord
	err     error
}

func (m *memJournal) Record(_ context.Context, rec CallRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func setup(t *testing.T) (*Dispatcher, *countingStore, *memJournal) {
	t.Helper()
	reg, err := tools.NewRegistry()
	require.NoError(t, err)
	store := &countingStore{}
	journal := &memJournal{}
	d, err := NewDispatcher(Config{
		Registry: reg,
		Executor: tools.NewExecutor(store, nil, nil),
		Info:     ServerInfo{Name: "servicenow-generic", Version: "1.0.0"},
		Journal:  journal,
	})
	require.NoError(t, err)
	return d, store, journal
}

func call(t *testing.T, d *Dispatcher, raw string) Response {
	t.Helper()
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	resp, ok := d.Handle(context.Background(), req)
	require.True(t, ok)
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestNewDispatcherRequiresCollaborators(t *testing.T) {
	_, err := NewDispatcher(Config{})
	assert.Error(t, err)

	reg, _ := tools.NewRegistry()
	_, err = NewDispatcher(Config{Registry: reg})
	assert.Error(t, err)
}

func TestInitialize(t *testing.T) {
	d, store, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("1"), resp.ID)

	got, ok := resp.Result.(InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", got.ProtocolVersion)
	assert.Equal(t, "servicenow-generic", got.ServerInfo.Name)
	assert.Contains(t, got.Capabilities, "tools")
	assert.Empty(t, store.calls)
}

func TestToolsList(t *testing.T) {
	d, _, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":"list-1","method":"tools/list"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage(`"list-1"`), resp.ID)

	list := resp.Result.(ListToolsResult)
	require.Len(t, list.Tools, 6)
	assert.Equal(t, tools.CreateRecord, list.Tools[0].Name)
}

func TestToolsCallCreate(t *testing.T) {
	d, store, journal := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"create_record","arguments":{"table":"incident","fields":{"short_description":"VPN down"}}}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("7"), resp.ID)

	res := resp.Result.(tools.Result)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text(), "INC0010001")
	assert.Contains(t, res.Text(), "abc123")
	assert.Equal(t, []string{"POST incident?"}, store.calls)

	require.Len(t, journal.records, 1)
	rec := journal.records[0]
	assert.Equal(t, tools.CreateRecord, rec.Tool)
	assert.Equal(t, "incident", rec.Table)
	assert.True(t, rec.OK)
	assert.NotEmpty(t, rec.CallID)
}

func TestToolsCallUnknownToolMakesNoCall(t *testing.T) {
	d, store, journal := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"drop_table","arguments":{"table":"incident"}}}`)
	require.NotNil(t, resp.Error)
	assert.Nil(t, resp.Result)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "drop_table")
	assert.Equal(t, json.RawMessage("3"), resp.ID)
	assert.Empty(t, store.calls)
	assert.Empty(t, journal.records)
}

func TestToolsCallMissingRequiredMakesNoCall(t *testing.T) {
	d, store, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"create_record","arguments":{"table":"incident"}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "fields")
	assert.Equal(t, map[string]any{"missing": []string{"fields"}}, resp.Error.Data)
	assert.Empty(t, store.calls)
}

func TestToolsCallBadParams(t *testing.T) {
	d, store, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":"nope"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = call(t, d, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "tool name is required", resp.Error.Message)

	resp = call(t, d, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"get_record","arguments":[1]}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Empty(t, store.calls)
}

func TestToolsCallRemoteFailureIsAResult(t *testing.T) {
	d, store, journal := setup(t)
	store.reply = &table.Response{StatusCode: http.StatusForbidden, Body: map[string]any{"error": map[string]any{"message": "ACL"}}}

	resp := call(t, d, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"update_record","arguments":{"table":"incident","sys_id":"x","fields":{"state":"7"}}}}`)
	require.Nil(t, resp.Error)
	res := resp.Result.(tools.Result)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "ACL")
	require.Len(t, journal.records, 1)
	assert.False(t, journal.records[0].OK)
}

func TestJournalFailureDoesNotFailCall(t *testing.T) {
	d, _, journal := setup(t)
	journal.err = errors.New("disk full")

	resp := call(t, d, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"list_tables"}}`)
	require.Nil(t, resp.Error)
	assert.False(t, resp.Result.(tools.Result).IsError)
}

func TestUnknownMethod(t *testing.T) {
	d, _, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":{"nested":true},"method":"resources/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.JSONEq(t, `{"nested":true}`, string(resp.ID))
}

func TestInvalidEnvelope(t *testing.T) {
	d, _, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":1}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	resp = call(t, d, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestPingAndNotifications(t *testing.T) {
	d, _, _ := setup(t)

	resp := call(t, d, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{}, resp.Result)

	_, ok := d.Handle(context.Background(), Request{JSONRPC: "2.0", Method: "notifications/initialized"})
	assert.False(t, ok)
}

func TestResponseEncoding(t *testing.T) {
	data, err := json.Marshal(failure(nil, CodeMethodNotFound, "Unknown method: x", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32601,"message":"Unknown method: x"}}`, string(data))

	data, err = json.Marshal(result(json.RawMessage(`"a"`), tools.Result{Content: []tools.Content{{Type: "text", Text: "hi"}}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","result":{"content":[{"type":"text","text":"hi"}]}}`, string(data))
}
