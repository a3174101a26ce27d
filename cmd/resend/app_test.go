package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/resend/internal/config"
	"github.com/rickgao/resend/internal/handler"
	"github.com/rickgao/resend/internal/metrics"
	"github.com/rickgao/resend/internal/relay"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name: "text info drops debug",
			cfg:  config.LogConfig{Level: "info", Format: "text"},
			check: func(t *testing.T, out string) {
				if strings.Contains(out, "debug message") {
					t.Error("debug message should be filtered")
				}
				if !strings.Contains(out, "msg=\"info message\"") {
					t.Errorf("expected text output, got %q", out)
				}
			},
		},
		{
			name: "json debug",
			cfg:  config.LogConfig{Level: "debug", Format: "json"},
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, `"msg":"debug message"`) {
					t.Errorf("expected json debug output, got %q", out)
				}
			},
		},
		{
			name:    "bad level",
			cfg:     config.LogConfig{Level: "loud", Format: "text"},
			wantErr: true,
		},
		{
			name:    "bad format",
			cfg:     config.LogConfig{Level: "info", Format: "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(tt.cfg, &buf)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newLogger failed: %v", err)
			}

			logger.Debug("debug message")
			logger.Info("info message")
			tt.check(t, buf.String())
		})
	}
}

func TestBuildHandlers(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	script := "function handle(p) return p .. p end"
	if err := os.WriteFile(filepath.Join(dir, "scripts", "twice.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	bindings := map[string]config.HandlerConfig{
		"up":    {Builtin: "upper"},
		"twice": {Script: "scripts/twice.lua"},
	}

	table, closeHandlers, err := buildHandlers(bindings, dir)
	if err != nil {
		t.Fatalf("buildHandlers failed: %v", err)
	}
	defer closeHandlers()

	tests := []struct {
		route string
		in    string
		want  string
	}{
		{"up", "abc", "ABC"},
		{"twice", "ab", "abab"},
	}
	for _, tt := range tests {
		h, ok := table.Lookup(tt.route)
		if !ok {
			t.Fatalf("route %q not registered", tt.route)
		}
		got, err := h.Handle(context.Background(), tt.in)
		if err != nil {
			t.Fatalf("%s: Handle failed: %v", tt.route, err)
		}
		if got != tt.want {
			t.Errorf("%s(%q) = %q, want %q", tt.route, tt.in, got, tt.want)
		}
	}
}

func TestBuildHandlers_ScriptTimeout(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "spin.lua"), []byte("function handle(p) while true do end end"), 0o644); err != nil {
		t.Fatal(err)
	}

	bindings := map[string]config.HandlerConfig{
		"spin": {Script: "spin.lua", Timeout: 50 * time.Millisecond},
	}
	table, closeHandlers, err := buildHandlers(bindings, dir)
	if err != nil {
		t.Fatalf("buildHandlers failed: %v", err)
	}
	defer closeHandlers()

	h, _ := table.Lookup("spin")
	start := time.Now()
	if _, err := h.Handle(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed >= handler.DefaultScriptTimeout {
		t.Errorf("Handle took %v, want the configured 50ms limit to apply", elapsed)
	}
}

func TestBuildHandlers_Errors(t *testing.T) {
	tests := []struct {
		name     string
		bindings map[string]config.HandlerConfig
	}{
		{"unknown builtin", map[string]config.HandlerConfig{"x": {Builtin: "shuffle"}}},
		{"missing script", map[string]config.HandlerConfig{"x": {Script: "nope.lua"}}},
		{"empty binding", map[string]config.HandlerConfig{"x": {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildHandlers(tt.bindings, t.TempDir())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "handlers.x") {
				t.Errorf("error %q should name the route", err)
			}
		})
	}
}

func TestRelayConfig(t *testing.T) {
	cfg := config.Default()
	cfg.EnableLogs = true
	cfg.Server.FanoutConcurrency = 7

	rc := relayConfig(cfg)

	if rc.Conn.MaxMessageBytes != cfg.Server.MaxMessageBytes {
		t.Errorf("MaxMessageBytes = %d, want %d", rc.Conn.MaxMessageBytes, cfg.Server.MaxMessageBytes)
	}
	if rc.Conn.PingInterval != cfg.Server.PingInterval {
		t.Errorf("PingInterval = %v, want %v", rc.Conn.PingInterval, cfg.Server.PingInterval)
	}
	if rc.Registry.FanoutConcurrency != 7 {
		t.Errorf("FanoutConcurrency = %d, want 7", rc.Registry.FanoutConcurrency)
	}
	if !rc.SessionLogs {
		t.Error("SessionLogs should follow enable_logs")
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, cfg *config.Config, db pinger) (*relay.Relay, *httptest.Server) {
	t.Helper()

	reg := prometheus.NewRegistry()
	rel := relay.New(relay.DefaultConfig(), nil, relay.WithMetrics(metrics.New(reg)))
	server := httptest.NewServer(newRouter(cfg, routerDeps{
		Relay:    rel,
		Gatherer: reg,
		Database: db,
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rel.Shutdown(ctx)
		server.Close()
	})
	return rel, server
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         pinger
		wantStatus int
		wantHealth string
	}{
		{"no database", nil, http.StatusOK, "healthy"},
		{"database up", fakePinger{}, http.StatusOK, "healthy"},
		{"database down", fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, server := newTestServer(t, config.Default(), tt.db)

			resp, err := http.Get(server.URL + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body struct {
				Status     string         `json:"status"`
				Components map[string]any `json:"components"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if body.Status != tt.wantHealth {
				t.Errorf("health status = %q, want %q", body.Status, tt.wantHealth)
			}
			if _, ok := body.Components["relay"]; !ok {
				t.Error("missing relay component")
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	_, server := newTestServer(t, cfg, nil)

	resp, err := http.Get(server.URL + cfg.Metrics.Path)
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "resend_active_connections") {
		t.Error("metrics output missing resend_active_connections")
	}
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Server.WSPath = "/ws"
	_, server := newTestServer(t, cfg, nil)

	resp, err := http.Get(server.URL + cfg.Metrics.Path)
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_WebSocket(t *testing.T) {
	tests := []struct {
		name   string
		wsPath string
		dial   string
	}{
		{"root accepts any path", "/", "/anything"},
		{"custom path", "/ws", "/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.WSPath = tt.wsPath
			_, server := newTestServer(t, cfg, nil)

			url := "ws" + strings.TrimPrefix(server.URL, "http") + tt.dial
			ws, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("dial failed: %v", err)
			}
			defer ws.Close()

			if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"route":"r","data":"d"}`)); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			ws.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if string(msg) != `{"route":"r","data":"d"}` {
				t.Errorf("received %s, want pass-through envelope", msg)
			}
		})
	}
}

func TestCheckConfigCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resend.yaml")
	cfg := `
allow_connections_from: ["example.com"]
server:
  port: 9000
handlers:
  shout:
    builtin: upper
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--config", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("check-config failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"config ok", "localhost:9000/", "handlers: shout", "warning: allow_connections_from"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestCheckConfigCmd_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resend.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 70000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "--config", path})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Error("expected a version string")
	}
}
