// Command record-mcp-http starts the MCP HTTP server in front of a ServiceNow
// table API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"record-mcp/internal/audit"
	"record-mcp/internal/auth"
	"record-mcp/internal/config"
	"record-mcp/internal/mcp"
	"record-mcp/internal/server"
	"record-mcp/internal/table"
	"record-mcp/internal/tools"
)

const banner = `
     ___ ___ ___ ___  ___ ___    __  __  ___ ___
    | _ \ __/ __/ _ \| _ \   \  |  \/  |/ __| _ \
    |   / _| (_| (_) |   / |) | | |\/| | (__|  _/
    |_|_\___\___\___/|_|_\___/  |_|  |_|\___|_|

`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("MCP_CONFIG")

	color.New(color.FgCyan).Print(banner)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	green.Print("    ▶ ")
	fmt.Printf("Instance:  %s\n", cfg.Remote.URL())
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.Addr)
	gray.Printf("    version: %s\n\n", cfg.Server.Version)

	verifier, err := buildVerifier(cfg.Server)
	if err != nil {
		return err
	}
	if verifier == nil {
		logger.Warn("MCP_TOKEN not set; endpoints will be open. Set MCP_TOKEN to secure.")
	}

	var store table.Invoker = table.New(cfg.Remote.URL(), table.Credentials{
		Username:    cfg.Remote.Username,
		Password:    cfg.Remote.Password,
		BearerToken: cfg.Remote.BearerToken,
	}, &http.Client{Timeout: cfg.Remote.Timeout})
	store = table.NewCachedClient(store, cfg.Cache.TTL)

	registry, err := tools.NewRegistry(cfg.Shortcuts...)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	mcpCfg := mcp.Config{
		Registry: registry,
		Executor: tools.NewExecutor(store, cfg.Tables, logger),
		Info:     mcp.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		Logger:   logger,
	}
	srvCfg := server.Config{
		Name:               cfg.Server.Name,
		Version:            cfg.Server.Version,
		Tools:              registry.List(),
		Verifier:           verifier,
		CancelOnDisconnect: cfg.Remote.CancelOnDisconnect,
		Logger:             logger,
	}

	if cfg.Audit.Path != "" {
		journal, err := audit.Open(cfg.Audit.Path, logger)
		if err != nil {
			return fmt.Errorf("opening audit journal: %w", err)
		}
		defer journal.Close()
		mcpCfg.Journal = journal
		srvCfg.Audit = journal
	}

	dispatcher, err := mcp.NewDispatcher(mcpCfg)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	srvCfg.Dispatcher = dispatcher

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("starting record-mcp",
		"addr", cfg.Server.Addr,
		"instance", cfg.Remote.URL(),
		"tools", strings.Join(registry.Names(), ","),
	)

	return serve(logger, &http.Server{Addr: cfg.Server.Addr, Handler: srv.Router()})
}

// serve runs httpSrv until it fails or a termination signal arrives. On a
// signal the listener and open connections are closed without draining.
func serve(logger *slog.Logger, httpSrv *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		certFile := os.Getenv("TLS_CERT_FILE")
		keyFile := os.Getenv("TLS_KEY_FILE")
		var err error
		if certFile != "" && keyFile != "" {
			logger.Info("TLS enabled: using provided certificate and key")
			err = httpSrv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return httpSrv.Close()
	})

	return g.Wait()
}

func buildVerifier(cfg config.ServerConfig) (auth.TokenVerifier, error) {
	var chain auth.Chain
	if cfg.Token != "" {
		chain = append(chain, auth.StaticToken(cfg.Token))
	}
	if cfg.JWTSecret != "" {
		jv, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("configuring jwt auth: %w", err)
		}
		chain = append(chain, jv)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{mu: &sync.Mutex{}, out: os.Stdout, level: level}
	}
	return slog.New(handler)
}

// colorHandler writes one colorized line per record. Open groups qualify the
// keys of attributes added after them, as in group.key=value.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch {
	case r.Level >= slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	case r.Level >= slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case r.Level >= slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	default:
		buf.WriteString(color.MagentaString("DBG "))
	}

	buf.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		return write(h.qualify(a))
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) > 0 {
		a.Key = strings.Join(h.groups, ".") + "." + a.Key
	}
	return a
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, h.qualify(a))
	}
	return &colorHandler{mu: h.mu, out: h.out, level: h.level, attrs: merged, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, len(h.groups), len(h.groups)+1)
	copy(groups, h.groups)
	groups = append(groups, name)
	return &colorHandler{mu: h.mu, out: h.out, level: h.level, attrs: h.attrs, groups: groups}
}
