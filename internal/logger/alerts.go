package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AlertKey is the attribute that marks an operational alert.
const AlertKey = "alert"

// Alert kinds.
const (
	AlertAuditWriteFailure = "audit_write_failure"
	AlertCatalogLoad       = "catalog_load_failure"
	AlertEngineTimeout     = "engine_timeout"
)

// AlertHandler passes every record to the wrapped handler and also appends
// records that carry an "alert" attribute, at WARN or above, to a JSON
// alerts file.
type AlertHandler struct {
	next  slog.Handler
	path  string
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
}

// NewAlertHandler wraps next. An empty path disables the alerts file.
func NewAlertHandler(next slog.Handler, path string) *AlertHandler {
	return &AlertHandler{next: next, path: path, mu: &sync.Mutex{}}
}

func (h *AlertHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || (h.path != "" && level >= slog.LevelWarn)
}

func (h *AlertHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if h.path == "" || r.Level < slog.LevelWarn || !h.isAlert(r) {
		return err
	}
	if werr := h.writeAlert(ctx, r); err == nil {
		err = werr
	}
	return err
}

func (h *AlertHandler) isAlert(r slog.Record) bool {
	for _, a := range h.attrs {
		if a.Key == AlertKey {
			return true
		}
	}
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == AlertKey {
			found = true
			return false
		}
		return true
	})
	return found
}

func (h *AlertHandler) writeAlert(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	var jh slog.Handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelWarn})
	if len(h.attrs) > 0 {
		jh = jh.WithAttrs(h.attrs)
	}
	if h.group != "" {
		jh = jh.WithGroup(h.group)
	}
	return jh.Handle(ctx, r)
}

func (h *AlertHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *AlertHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	if clone.group == "" {
		clone.group = name
	}
	return &clone
}
