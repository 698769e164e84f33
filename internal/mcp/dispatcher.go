package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"record-mcp/internal/tools"
)

// Executor performs translated operations.
type Executor interface {
	Execute(ctx context.Context, op tools.Operation) tools.Result
}

// CallRecord summarizes one executed tools/call.
type CallRecord struct {
	CallID    string
	RequestID string
	Tool      string
	Table     string
	SysID     string
	OK        bool
	Duration  time.Duration
}

// Journal receives a CallRecord after every executed tool call.
type Journal interface {
	Record(ctx context.Context, rec CallRecord) error
}

// Config holds the Dispatcher's collaborators.
type Config struct {
	Registry *tools.Registry
	Executor Executor
	Info     ServerInfo
	Journal  Journal
	Logger   *slog.Logger
}

// Dispatcher routes JSON-RPC methods. It keeps no state between requests.
type Dispatcher struct {
	registry *tools.Registry
	executor Executor
	info     ServerInfo
	journal  Journal
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given configuration.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		executor: cfg.Executor,
		info:     cfg.Info,
		journal:  cfg.Journal,
		logger:   logger.With("component", "mcp"),
	}, nil
}

// Handle answers one request. The second return is false for notifications,
// which must not be answered.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Response, bool) {
	if req.IsNotification() {
		d.logger.Debug("accepted notification", "method", req.Method)
		return Response{}, false
	}
	if req.Method == "" {
		return failure(req.ID, CodeInvalidRequest, "missing method", nil), true
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return failure(req.ID, CodeInvalidRequest, "invalid JSON-RPC version", nil), true
	}

	d.logger.Debug("MCP request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      d.info,
			Capabilities:    map[string]any{"tools": map[string]any{}},
		}), true
	case "ping":
		return result(req.ID, map[string]any{}), true
	case "tools/list":
		return result(req.ID, ListToolsResult{Tools: d.registry.List()}), true
	case "tools/call":
		return d.handleToolsCall(ctx, req), true
	}
	return failure(req.ID, CodeMethodNotFound, "Unknown method: "+req.Method, nil), true
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request) Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return failure(req.ID, CodeInvalidParams, "invalid params", nil)
		}
	}
	if params.Name == "" {
		return failure(req.ID, CodeInvalidParams, "tool name is required", nil)
	}

	args, err := tools.ParseArguments(params.Arguments)
	if err != nil {
		return failure(req.ID, CodeInvalidParams, err.Error(), nil)
	}

	op, err := d.registry.Translate(params.Name, args)
	if err != nil {
		var verr *tools.ValidationError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			return failure(req.ID, CodeInvalidParams, "Unknown tool: "+params.Name, nil)
		case errors.As(err, &verr):
			return failure(req.ID, CodeInvalidParams, verr.Error(), map[string]any{"missing": verr.Missing})
		}
		return failure(req.ID, CodeInternalError, err.Error(), nil)
	}

	callID := uuid.New().String()
	start := time.Now()
	d.logger.Debug("tools/call", "tool_name", op.Tool, "call_id", callID, "table", op.Table)

	res := d.executor.Execute(ctx, op)

	rec := CallRecord{
		CallID:    callID,
		RequestID: middleware.GetReqID(ctx),
		Tool:      op.Tool,
		Table:     op.Table,
		SysID:     op.SysID,
		OK:        !res.IsError,
		Duration:  time.Since(start),
	}
	d.logger.Info("tools/call complete",
		"tool_name", rec.Tool,
		"call_id", rec.CallID,
		"is_error", res.IsError,
		"duration", rec.Duration,
	)
	if d.journal != nil {
		if err := d.journal.Record(ctx, rec); err != nil {
			d.logger.Warn("failed to journal tool call", "call_id", callID, "error", err)
		}
	}
	return result(req.ID, res)
}
