package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/remote-claude/rcguard/internal/config"
	"github.com/remote-claude/rcguard/internal/engine"
	"github.com/remote-claude/rcguard/internal/logger"
	"github.com/remote-claude/rcguard/internal/metrics"
	"github.com/remote-claude/rcguard/internal/policy"
)

// runtime holds what a command needs to evaluate invocations.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	audit    *logger.AuditLogger
	engine   *engine.Engine
}

func (r *runtime) Close() {
	if r.audit != nil {
		_ = r.audit.Close()
	}
}

// loadConfig reads the configuration and applies the persistent flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// newLogger builds the operational logger. Alerts are also appended to the
// alerts file.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(logger.NewAlertHandler(h, cfg.AlertsPath()))
}

// unavailableAuditor stands in when the audit log cannot be opened, so
// every decision still raises an audit-failure alert.
type unavailableAuditor struct{ err error }

func (u unavailableAuditor) Append(logger.AuditRecord) error {
	return fmt.Errorf("%w: %v", logger.ErrAuditWrite, u.err)
}

// newRuntime loads the catalog and opens the audit log. A catalog failure
// is returned as an error wrapping policy.ErrCatalogLoad; callers must
// fail closed.
func newRuntime(cfg *config.Config, stderr io.Writer) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		log:      newLogger(cfg, stderr),
		registry: prometheus.NewRegistry(),
	}
	rt.metrics = metrics.New(rt.registry)

	cat, err := policy.Load(cfg.CatalogOptions())
	if err != nil {
		rt.metrics.Alert(logger.AlertCatalogLoad)
		rt.log.Error("rule catalog failed to load", logger.AlertKey, logger.AlertCatalogLoad, "error", err)
		return nil, err
	}
	rt.log.Debug("rule catalog loaded",
		"source", cat.Source(),
		"version", cat.Version(),
		"fingerprint", cat.Fingerprint(),
		"rules", len(cat.Rules()),
	)

	var audit engine.Auditor
	rt.audit, err = logger.New(logger.Config{
		Path:          cfg.AuditPath(),
		MaxSizeMB:     cfg.Audit.MaxSizeMB,
		MaxBackups:    cfg.Audit.MaxBackups,
		Fsync:         cfg.Audit.Fsync,
		Redact:        cfg.Audit.Redact,
		RetryAttempts: cfg.Audit.RetryAttempts,
		RetryBackoff:  cfg.Audit.RetryBackoff,
	}, rt.log.With("component", "audit"))
	if err != nil {
		rt.log.Error("audit log unavailable", logger.AlertKey, logger.AlertAuditWriteFailure, "path", cfg.AuditPath(), "error", err)
		audit = unavailableAuditor{err: err}
	} else {
		audit = rt.audit
	}

	rt.engine = engine.New(cat, engine.Options{
		Audit:    audit,
		Metrics:  rt.metrics,
		Log:      rt.log.With("component", "engine"),
		MaxDepth: cfg.Engine.MaxDepth,
		Home:     cfg.Home,
		Version:  Version,
	})
	return rt, nil
}
