package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testHome = "/home/user"

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rcguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", testHome, []string{t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("expected no config file, got %q", cfg.File)
	}
	if cfg.AuditPath() != "/home/user/.rcguard/audit/audit.jsonl" {
		t.Errorf("unexpected audit path %q", cfg.AuditPath())
	}
	if cfg.AlertsPath() != "/home/user/.rcguard/audit/alerts.jsonl" {
		t.Errorf("unexpected alerts path %q", cfg.AlertsPath())
	}
	if cfg.Server.Socket != "/home/user/.rcguard/rcguard.sock" || cfg.PIDPath() != "/home/user/.rcguard/rcguard.pid" {
		t.Errorf("unexpected socket %q / pid %q", cfg.Server.Socket, cfg.PIDPath())
	}
	if cfg.Audit.MaxSizeMB != 10 || cfg.Audit.MaxBackups != 5 || !cfg.Audit.Fsync || !cfg.Audit.Redact {
		t.Errorf("unexpected audit defaults %+v", cfg.Audit)
	}
	if cfg.Audit.RetryAttempts != 3 || cfg.Audit.RetryBackoff != 25*time.Millisecond {
		t.Errorf("unexpected retry defaults %+v", cfg.Audit)
	}
	if len(cfg.Engine.ShellTools) != 1 || cfg.Engine.ShellTools[0] != "Bash" {
		t.Errorf("expected shell_tools [Bash], got %v", cfg.Engine.ShellTools)
	}
	if cfg.Engine.MaxDepth != 4 || cfg.Engine.Timeout != 2*time.Second {
		t.Errorf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Server.IdleTimeout != 0 || !cfg.Server.Metrics {
		t.Errorf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.Catalog.Path != "" {
		t.Errorf("expected the embedded catalog by default, got %q", cfg.Catalog.Path)
	}
}

func TestLoad_SearchPath(t *testing.T) {
	empty, dir := t.TempDir(), t.TempDir()
	path := writeConfig(t, dir, `
audit:
  dir: /var/log/rcguard
  max_backups: 0
engine:
  shell_tools: [Bash, Shell]
  timeout: 500ms
log:
  level: debug
  format: json
`)
	cfg, err := load("", testHome, []string{empty, dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.File != path {
		t.Errorf("expected config file %q, got %q", path, cfg.File)
	}
	if cfg.AuditPath() != "/var/log/rcguard/audit.jsonl" || cfg.Audit.MaxBackups != 0 {
		t.Errorf("unexpected audit config %+v", cfg.Audit)
	}
	if strings.Join(cfg.Engine.ShellTools, ",") != "Bash,Shell" || cfg.Engine.Timeout != 500*time.Millisecond {
		t.Errorf("unexpected engine config %+v", cfg.Engine)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RCGUARD_AUDIT_DIR", "/srv/audit")
	t.Setenv("RCGUARD_AUDIT_MAX_SIZE_MB", "20")
	t.Setenv("RCGUARD_ENGINE_TIMEOUT", "3s")
	t.Setenv("RCGUARD_SERVER_IDLE_TIMEOUT", "10m")

	dir := t.TempDir()
	writeConfig(t, dir, "audit:\n  dir: /from/file\n")
	cfg, err := load("", testHome, []string{dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audit.Dir != "/srv/audit" {
		t.Errorf("expected env to override the file, got %q", cfg.Audit.Dir)
	}
	if cfg.Audit.MaxSizeMB != 20 || cfg.Engine.Timeout != 3*time.Second || cfg.Server.IdleTimeout != 10*time.Minute {
		t.Errorf("env overrides not applied: %+v %+v %+v", cfg.Audit, cfg.Engine, cfg.Server)
	}
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	if _, err := load(filepath.Join(t.TempDir(), "missing.yaml"), testHome, nil); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"relative audit dir", "audit:\n  dir: logs\n", "audit.dir must be an absolute path"},
		{"zero size", "audit:\n  max_size_mb: 0\n", "audit.max_size_mb must be at least 1"},
		{"file with slash", "audit:\n  file: a/b.jsonl\n", "audit.file must not contain"},
		{"bad level", "log:\n  level: verbose\n", "log.level must be one of"},
		{"bad format", "log:\n  format: xml\n", "log.format must be one of"},
		{"no shell tools", "engine:\n  shell_tools: []\n", "engine.shell_tools must be at least 1"},
		{"zero timeout", "engine:\n  timeout: 0s\n", "engine.timeout must be greater than"},
		{"deep nesting", "engine:\n  max_depth: 99\n", "engine.max_depth must be at most 16"},
		{"relative socket", "server:\n  socket: rcguard.sock\n", "server.socket must be an absolute path"},
		{"relative catalog", "catalog:\n  path: rules.yaml\n", "catalog.path must be an absolute path"},
	}
	for _, tt := range tests {
		path := writeConfig(t, t.TempDir(), tt.content)
		_, err := load(path, testHome, nil)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tt.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected error containing %q, got %q", tt.name, tt.want, err)
		}
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "audit: [unclosed\n")
	if _, err := load(path, testHome, nil); err == nil || errors.Is(err, ErrInvalid) {
		t.Errorf("expected a read error, got %v", err)
	}
}

func TestCatalogOptions_ProtectsOwnFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
catalog:
  path: /etc/rcguard/rules.yaml
  packs_dir: ~/.rcguard/packs
audit:
  dir: /var/log/rc[guard]
`)
	cfg, err := load(path, testHome, nil)
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.CatalogOptions()
	if opts.Path != "/etc/rcguard/rules.yaml" || opts.PacksDir != "/home/user/.rcguard/packs" || opts.Home != testHome {
		t.Errorf("unexpected load options %+v", opts)
	}
	want := []string{
		"/etc/rcguard/rules.yaml",
		"/home/user/.rcguard/packs",
		"/home/user/.rcguard/packs/**",
		path,
		`/var/log/rc\[guard\]`,
		`/var/log/rc\[guard\]/**`,
	}
	got := strings.Join(opts.Protect, "\n")
	for _, w := range want {
		if !strings.Contains("\n"+got+"\n", "\n"+w+"\n") {
			t.Errorf("expected %q in protected set, got:\n%s", w, got)
		}
	}
}

func TestEngineHomeOverride(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "engine:\n  home: /home/agent\n")
	cfg, err := load(path, testHome, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Home != "/home/agent" || cfg.AuditPath() != "/home/agent/.rcguard/audit/audit.jsonl" {
		t.Errorf("expected home override to apply to ~ paths, got home %q audit %q", cfg.Home, cfg.AuditPath())
	}
}
