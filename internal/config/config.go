// Package config loads rcguard settings from rcguard.yaml, RCGUARD_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/remote-claude/rcguard/internal/policy"
)

const (
	DefaultConfigDir = ".rcguard"
	ConfigName       = "rcguard"
	EnvPrefix        = "RCGUARD"
	SystemConfigDir  = "/etc/rcguard"
)

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`

	// File is the config file that was read; empty when defaults and
	// environment alone were used.
	File string `mapstructure:"-"`
	// Home is the directory "~" expands to.
	Home string `mapstructure:"-"`
}

type CatalogConfig struct {
	// Path of the rule catalog. Empty selects the embedded default.
	Path     string `mapstructure:"path" validate:"omitempty,abs_or_home"`
	PacksDir string `mapstructure:"packs_dir" validate:"omitempty,abs_or_home"`
}

type AuditConfig struct {
	Dir           string        `mapstructure:"dir" validate:"required,abs_or_home"`
	File          string        `mapstructure:"file" validate:"required,excludes=/"`
	MaxSizeMB     int           `mapstructure:"max_size_mb" validate:"min=1"`
	MaxBackups    int           `mapstructure:"max_backups" validate:"min=0"`
	Fsync         bool          `mapstructure:"fsync"`
	Redact        bool          `mapstructure:"redact"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"min=0,max=10"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" validate:"min=0"`
	AlertsFile    string        `mapstructure:"alerts_file" validate:"omitempty,abs_or_home"`
}

type EngineConfig struct {
	ShellTools []string      `mapstructure:"shell_tools" validate:"min=1,dive,required"`
	MaxDepth   int           `mapstructure:"max_depth" validate:"min=1,max=16"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Home       string        `mapstructure:"home" validate:"omitempty,abs_or_home"`
}

type ServerConfig struct {
	Socket      string        `mapstructure:"socket" validate:"required,abs_or_home"`
	PIDFile     string        `mapstructure:"pid_file" validate:"omitempty,abs_or_home"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`
	Metrics     bool          `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.packs_dir", "~/"+DefaultConfigDir+"/packs")

	v.SetDefault("audit.dir", "~/"+DefaultConfigDir+"/audit")
	v.SetDefault("audit.file", "audit.jsonl")
	v.SetDefault("audit.max_size_mb", 10)
	v.SetDefault("audit.max_backups", 5)
	v.SetDefault("audit.fsync", true)
	v.SetDefault("audit.redact", true)
	v.SetDefault("audit.retry_attempts", 3)
	v.SetDefault("audit.retry_backoff", 25*time.Millisecond)
	v.SetDefault("audit.alerts_file", "")

	v.SetDefault("engine.shell_tools", []string{"Bash"})
	v.SetDefault("engine.max_depth", 4)
	v.SetDefault("engine.timeout", 2*time.Second)
	v.SetDefault("engine.home", "")

	v.SetDefault("server.socket", "~/"+DefaultConfigDir+"/rcguard.sock")
	v.SetDefault("server.pid_file", "")
	v.SetDefault("server.idle_timeout", time.Duration(0))
	v.SetDefault("server.metrics", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. With an empty file it searches ".",
// "~/.rcguard" and "/etc/rcguard" for rcguard.yaml; finding none is not an
// error. An explicit file must exist. Environment variables such as
// RCGUARD_AUDIT_DIR override file values.
func Load(file string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return load(file, home, searchPaths(home))
}

func searchPaths(home string) []string {
	return []string{".", filepath.Join(home, DefaultConfigDir), SystemConfigDir}
}

func load(file, home string, paths []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file == "" {
		file = findConfigFile(paths)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Home = home

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.expand()
	return &cfg, nil
}

// findConfigFile returns the first rcguard.yaml or rcguard.yml found in
// paths. The extension is required so the binary itself never matches.
func findConfigFile(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			p := filepath.Join(dir, ConfigName+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// expand resolves "~" in every path setting.
func (c *Config) expand() {
	if c.Engine.Home != "" {
		c.Home = expandHome(c.Engine.Home, c.Home)
	}
	for _, p := range []*string{
		&c.Catalog.Path, &c.Catalog.PacksDir,
		&c.Audit.Dir, &c.Audit.AlertsFile,
		&c.Server.Socket, &c.Server.PIDFile,
	} {
		*p = expandHome(*p, c.Home)
	}
}

func expandHome(p, home string) string {
	switch {
	case p == "~":
		return home
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(home, p[2:])
	}
	return p
}

// AuditPath is the active audit log file.
func (c *Config) AuditPath() string {
	return filepath.Join(c.Audit.Dir, c.Audit.File)
}

// AlertsPath is the operational alerts file.
func (c *Config) AlertsPath() string {
	if c.Audit.AlertsFile != "" {
		return c.Audit.AlertsFile
	}
	return filepath.Join(c.Audit.Dir, "alerts.jsonl")
}

// PIDPath is the daemon PID file.
func (c *Config) PIDPath() string {
	if c.Server.PIDFile != "" {
		return c.Server.PIDFile
	}
	return strings.TrimSuffix(c.Server.Socket, filepath.Ext(c.Server.Socket)) + ".pid"
}

// CatalogOptions describes how to load the catalog. rcguard's own files
// (catalog, packs, config, audit trail and binary) are added to the
// protected set so commands cannot tamper with them.
func (c *Config) CatalogOptions() policy.LoadOptions {
	var protect []string
	addFile := func(p string) {
		if p != "" && filepath.IsAbs(p) {
			protect = append(protect, escapeGlob(filepath.Clean(p)))
		}
	}
	addDir := func(p string) {
		if p != "" && filepath.IsAbs(p) {
			p = escapeGlob(filepath.Clean(p))
			protect = append(protect, p, p+"/**")
		}
	}

	addFile(c.Catalog.Path)
	addDir(c.Catalog.PacksDir)
	if c.File != "" {
		if abs, err := filepath.Abs(c.File); err == nil {
			addFile(abs)
		}
	}
	addDir(c.Audit.Dir)
	addFile(c.Audit.AlertsFile)
	if exe, err := os.Executable(); err == nil {
		addFile(exe)
	}

	return policy.LoadOptions{
		Path:     c.Catalog.Path,
		PacksDir: c.Catalog.PacksDir,
		Home:     c.Home,
		Protect:  protect,
	}
}

func escapeGlob(p string) string {
	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
