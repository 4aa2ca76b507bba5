package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml inside a fresh temp dir and
// returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000

[relay]
enabled = true
port = 9443
dial_timeout_seconds = 5

[[routes]]
host = "app.example.com"
upstream = "10.0.0.5:8080"
mode = "http"

[[routes]]
host = "tls.example.com"
upstream = "10.0.0.6:443"
mode = "relay"

[reload]
enabled = true
debounce_ms = 500

[upstream]
idle_connections = 50
dial_timeout_seconds = 3

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if !cfg.Relay.Enabled {
		t.Error("Relay.Enabled = false, want true")
	}
	if cfg.Relay.Port != 9443 {
		t.Errorf("Relay.Port = %d, want %d", cfg.Relay.Port, 9443)
	}
	if cfg.Relay.DialTimeoutSeconds != 5 {
		t.Errorf("Relay.DialTimeoutSeconds = %d, want %d", cfg.Relay.DialTimeoutSeconds, 5)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("len(Routes) = %d, want 2", len(cfg.Routes))
	}
	if cfg.Routes[0].Host != "app.example.com" || cfg.Routes[0].Upstream != "10.0.0.5:8080" || cfg.Routes[0].Mode != "http" {
		t.Errorf("Routes[0] = %+v, want app.example.com -> 10.0.0.5:8080 (http)", cfg.Routes[0])
	}
	if cfg.Routes[1].Mode != "relay" {
		t.Errorf("Routes[1].Mode = %q, want %q", cfg.Routes[1].Mode, "relay")
	}
	if !cfg.Reload.Enabled || cfg.Reload.DebounceMS != 500 {
		t.Errorf("Reload = %+v, want enabled with debounce_ms=500", cfg.Reload)
	}
	if cfg.Upstream.IdleConnections != 50 {
		t.Errorf("Upstream.IdleConnections = %d, want %d", cfg.Upstream.IdleConnections, 50)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", cfg.FilePath(), path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "# empty config, all defaults\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.BodyMaxBytes != 0 {
		t.Errorf("default Server.BodyMaxBytes = %d, want 0 (cap disabled)", cfg.Server.BodyMaxBytes)
	}
	if cfg.Relay.Port != 8443 {
		t.Errorf("default Relay.Port = %d, want %d", cfg.Relay.Port, 8443)
	}
	if cfg.Relay.DialTimeoutSeconds != 10 {
		t.Errorf("default Relay.DialTimeoutSeconds = %d, want %d", cfg.Relay.DialTimeoutSeconds, 10)
	}
	if cfg.Reload.DebounceMS != 200 {
		t.Errorf("default Reload.DebounceMS = %d, want %d", cfg.Reload.DebounceMS, 200)
	}
	if cfg.Upstream.IdleConnections != 100 {
		t.Errorf("default Upstream.IdleConnections = %d, want %d", cfg.Upstream.IdleConnections, 100)
	}
	if cfg.Upstream.DialTimeoutSeconds != 10 {
		t.Errorf("default Upstream.DialTimeoutSeconds = %d, want %d", cfg.Upstream.DialTimeoutSeconds, 10)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[relay]
port = 8443

[log]
level = "info"
`)

	cli := &CLI{
		Config:    path,
		Host:      "127.0.0.1",
		Port:      3000,
		RelayPort: 9999,
		LogLevel:  "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Relay.Port != 9999 {
		t.Errorf("Relay.Port = %d, want %d (CLI override)", cfg.Relay.Port, 9999)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_NegativePort(t *testing.T) {
	path := writeConfig(t, `
[server]
port = -1
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative port, got nil")
	}
}

func TestLoad_RelayPortConflict(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[relay]
enabled = true
port = 9000
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for relay.port == server.port, got nil")
	}
	if !strings.Contains(err.Error(), "conflicts") {
		t.Errorf("error = %q, want mention of conflict", err)
	}
}

func TestLoad_RelayDisabledSkipsPortConflict(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[relay]
enabled = false
port = 9000
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled relay should skip port conflict check", err)
	}
}

func TestLoad_NegativeBodyMaxBytes(t *testing.T) {
	path := writeConfig(t, `
[server]
body_max_bytes = -1
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative body_max_bytes, got nil")
	}
}

func TestLoad_RouteMissingHost(t *testing.T) {
	path := writeConfig(t, `
[[routes]]
host = ""
upstream = "10.0.0.5:8080"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for route without host, got nil")
	}
	if !strings.Contains(err.Error(), "host is required") {
		t.Errorf("error = %q, want mention of missing host", err)
	}
}

func TestLoad_RouteUpstreamWithoutPort(t *testing.T) {
	path := writeConfig(t, `
[[routes]]
host = "app.example.com"
upstream = "10.0.0.5"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for upstream without port, got nil")
	}
	if !strings.Contains(err.Error(), "host:port") {
		t.Errorf("error = %q, want mention of host:port", err)
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_RateLimitConfig_Disabled(t *testing.T) {
	path := writeConfig(t, "# no rate limit section\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = false by default")
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate limit enabled with requests_per_second=0, got nil")
	}
	if !strings.Contains(err.Error(), "requests_per_second") {
		t.Errorf("error = %q, want mention of requests_per_second", err)
	}
}

func TestLoadRoutes(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[[routes]]
host = "a.example.com"
upstream = "10.0.0.1:80"

[[routes]]
host = "b.example.com"
upstream = "10.0.0.2:443"
mode = "relay"
`)

	routes, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("LoadRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("len(routes) = %d, want 2", len(routes))
	}
	if routes[0].Host != "a.example.com" || routes[0].Upstream != "10.0.0.1:80" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if routes[1].Mode != "relay" {
		t.Errorf("routes[1].Mode = %q, want %q", routes[1].Mode, "relay")
	}
}

func TestLoadRoutes_BadTOML(t *testing.T) {
	path := writeConfig(t, "[[routes]\nhost=\n")

	if _, err := LoadRoutes(path); err == nil {
		t.Fatal("LoadRoutes() expected parse error, got nil")
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	path1 := filepath.Join(dir1, "config.toml")
	path2 := filepath.Join(dir2, "config.toml")
	for _, p := range []string{path1, path2} {
		if err := os.WriteFile(p, []byte("# test\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPathDefault(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
path = "metrics"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflictsWithAdminRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"healthz exact", "/healthz"},
		{"healthz sub", "/healthz/metrics"},
		{"status exact", "/status"},
		{"status sub", "/status/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, `
[metrics]
enabled = true
path = "`+tt.path+`"
`)

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsPathValid(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
path = "/custom-metrics"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = false
path = "bad-no-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

func TestRelayConfig_Addr(t *testing.T) {
	rc := &RelayConfig{Host: "0.0.0.0", Port: 8443}
	want := "0.0.0.0:8443"
	if got := rc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
