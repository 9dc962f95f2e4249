package hook

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/remote-claude/rcguard/internal/analyzer"
	"github.com/remote-claude/rcguard/internal/engine"
	"github.com/remote-claude/rcguard/internal/logger"
	"github.com/remote-claude/rcguard/internal/metrics"
)

// DefaultTimeout bounds one evaluation.
const DefaultTimeout = 2 * time.Second

// Evaluator renders and audits decisions. *engine.Engine implements it.
type Evaluator interface {
	Decide(inv engine.Invocation) analyzer.Decision
	Record(ctx context.Context, inv engine.Invocation, d analyzer.Decision, elapsed time.Duration) engine.Result
}

// Config configures a Handler.
type Config struct {
	// ShellTools names the tools whose command is evaluated. Empty means
	// just "Bash".
	ShellTools []string
	Timeout    time.Duration
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

// Handler turns requests into responses and enforces the evaluation
// timeout. It is safe for concurrent use.
type Handler struct {
	eval       Evaluator
	shellTools map[string]bool
	timeout    time.Duration
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewHandler creates a handler around eval.
func NewHandler(eval Evaluator, cfg Config) *Handler {
	tools := cfg.ShellTools
	if len(tools) == 0 {
		tools = []string{"Bash"}
	}
	h := &Handler{
		eval:       eval,
		shellTools: make(map[string]bool, len(tools)),
		timeout:    cfg.Timeout,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
	}
	for _, t := range tools {
		h.shellTools[t] = true
	}
	if h.timeout <= 0 {
		h.timeout = DefaultTimeout
	}
	if h.log == nil {
		h.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Handle decides one request and audits the response it returns. Tools
// that do not run shell commands pass through without evaluation. An
// evaluation that outlives the timeout is answered and audited as a block.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	if !h.shellTools[req.ToolName] {
		return Allow()
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	inv := engine.Invocation{
		SessionID:  req.SessionID,
		ToolName:   req.ToolName,
		Command:    req.Command,
		WorkingDir: req.WorkingDirectory,
	}
	start := time.Now()
	done := make(chan analyzer.Decision, 1)
	go func() {
		done <- h.eval.Decide(inv)
	}()

	select {
	case d := <-done:
		h.eval.Record(ctx, inv, d, time.Since(start))
		return FromDecision(d)
	case <-ctx.Done():
		h.metrics.Timeout()
		h.metrics.Alert(logger.AlertEngineTimeout)
		h.log.ErrorContext(ctx, "evaluation timed out",
			logger.AlertKey, logger.AlertEngineTimeout,
			"timeout", h.timeout,
			"session_id", req.SessionID,
			"cause", ctx.Err(),
		)
		d := TimeoutDecision()
		h.eval.Record(ctx, inv, d, time.Since(start))
		return FromDecision(d)
	}
}
