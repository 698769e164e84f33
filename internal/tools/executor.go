package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"record-mcp/internal/table"
)

// ErrorMarker prefixes the text of every failed tool result.
const ErrorMarker = "❌ Error: "

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the tools/call reply. Store and transport failures are reported
// here, never as protocol errors.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins all text blocks.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

func textResult(s string) Result {
	return Result{Content: []Content{{Type: "text", Text: s}}}
}

func errorResult(format string, args ...any) Result {
	r := textResult(ErrorMarker + fmt.Sprintf(format, args...))
	r.IsError = true
	return r
}

// Executor performs Operations against the record store.
type Executor struct {
	store   table.Invoker
	catalog string
	logger  *slog.Logger
}

// NewExecutor returns an Executor. tables overrides the list_tables text.
func NewExecutor(store table.Invoker, tables []TableRef, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:   store,
		catalog: RenderCatalog(tables),
		logger:  logger.With("component", "executor"),
	}
}

// Execute runs op and always returns a well-formed Result.
func (e *Executor) Execute(ctx context.Context, op Operation) Result {
	if op.Verb == VerbCatalog {
		return textResult(e.catalog)
	}

	var body any
	if len(op.Payload) > 0 {
		body = op.Payload
	}
	resp, err := e.store.Invoke(ctx, op.Verb.Method(), table.Path(op.Table, op.SysID), body, op.Query())
	if err != nil {
		e.logger.Warn("record store call failed", "tool", op.Tool, "table", op.Table, "error", err)
		return errorResult("%v", err)
	}

	e.logger.Debug("record store replied", "tool", op.Tool, "table", op.Table, "status", resp.StatusCode)

	switch op.Verb {
	case VerbCreate:
		return renderCreate(op, resp)
	case VerbQuery:
		return renderQuery(op, resp)
	case VerbUpdate:
		return renderUpdate(op, resp)
	case VerbDelete:
		return renderDelete(op, resp)
	case VerbGet:
		return renderGet(resp)
	}
	return errorResult("unsupported operation %s", op.Verb)
}

func renderCreate(op Operation, resp *table.Response) Result {
	rec, ok := record(resp)
	if !ok {
		return errorResult("%s", compactJSON(resp.Body))
	}
	number := firstNonEmpty(field(rec, "number"), "N/A")
	return textResult(fmt.Sprintf("✅ Created %s record!\nNumber: %s\nSys ID: %s\n\nRecord details:\n%s",
		op.Table, number, field(rec, "sys_id"), prettyJSON(rec)))
}

func renderUpdate(op Operation, resp *table.Response) Result {
	rec, ok := record(resp)
	if !ok {
		return errorResult("%s", compactJSON(resp.Body))
	}
	return textResult(fmt.Sprintf("✅ Updated %s record: %s",
		op.Table, firstNonEmpty(field(rec, "number"), field(rec, "sys_id"), op.SysID)))
}

func renderDelete(op Operation, resp *table.Response) Result {
	if !resp.OK() {
		return errorResult("%s", compactJSON(resp.Body))
	}
	return textResult(fmt.Sprintf("✅ Deleted record from %s", op.Table))
}

func renderGet(resp *table.Response) Result {
	rec, ok := record(resp)
	if !ok {
		return errorResult("record not found: %s", compactJSON(resp.Body))
	}
	return textResult(prettyJSON(rec))
}

func renderQuery(op Operation, resp *table.Response) Result {
	res, ok := resp.Result()
	if !resp.OK() || !ok {
		return errorResult("%s", compactJSON(resp.Body))
	}
	rows, ok := res.([]any)
	if !ok {
		return errorResult("%s", compactJSON(resp.Body))
	}
	if op.Limit > 0 && len(rows) > op.Limit {
		rows = rows[:op.Limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s record(s):\n\n", len(rows), op.Table)
	for i, row := range rows {
		rec, _ := row.(map[string]any)
		id := field(rec, "sys_id")
		fmt.Fprintf(&b, "%d. %s\n", i+1, firstNonEmpty(field(rec, "number"), field(rec, "name"), id))
		fmt.Fprintf(&b, "   %s\n", firstNonEmpty(field(rec, "short_description"), field(rec, "description")))
		fmt.Fprintf(&b, "   sys_id: %s\n\n", id)
	}
	return textResult(b.String())
}

// record returns the single-record result of a 2xx response.
func record(resp *table.Response) (map[string]any, bool) {
	if !resp.OK() {
		return nil, false
	}
	res, ok := resp.Result()
	if !ok {
		return nil, false
	}
	rec, ok := res.(map[string]any)
	return rec, ok
}

// field reads a scalar field, unwrapping {"value","display_value"} reference objects.
func field(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case map[string]any:
		return firstNonEmpty(field(v, "display_value"), field(v, "value"))
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func prettyJSON(v any) string {
	return encodeJSON(v, "  ")
}

func compactJSON(v any) string {
	return encodeJSON(v, "")
}

func encodeJSON(v any, indent string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
