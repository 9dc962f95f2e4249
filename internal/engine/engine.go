// Package engine drives one invocation through the decision pipeline:
// unicode pre-check, segmentation, normalization, classification,
// aggregation and the audit append.
package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/remote-claude/rcguard/internal/analyzer"
	"github.com/remote-claude/rcguard/internal/logger"
	"github.com/remote-claude/rcguard/internal/metrics"
	"github.com/remote-claude/rcguard/internal/normalize"
	"github.com/remote-claude/rcguard/internal/policy"
	"github.com/remote-claude/rcguard/internal/shell"
	"github.com/remote-claude/rcguard/internal/unicode"
)

// Invocation is one tool call the host asks about.
type Invocation struct {
	SessionID  string
	ToolName   string
	Command    string
	WorkingDir string
}

// Auditor persists decision records. *logger.AuditLogger implements it.
type Auditor interface {
	Append(rec logger.AuditRecord) error
}

// Options configures an Engine. Every field is optional.
type Options struct {
	Audit    Auditor
	Metrics  *metrics.Metrics
	Log      *slog.Logger
	MaxDepth int
	// Home resolves "~". Defaults to the current user's home directory.
	Home string
	// Version is recorded in every audit record.
	Version string
}

// Result is the outcome of one evaluation.
type Result struct {
	Decision analyzer.Decision
	Record   logger.AuditRecord
	// AuditErr is set when the record could not be written. The decision
	// stands regardless.
	AuditErr error
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	catalog    *policy.Catalog
	segmenter  *shell.Segmenter
	normalizer *normalize.Normalizer
	classifier *analyzer.Classifier

	audit    Auditor
	metrics  *metrics.Metrics
	log      *slog.Logger
	home     string
	version  string
	hostname string
	pid      int
}

// New builds an engine around a loaded catalog.
func New(cat *policy.Catalog, opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	hostname, _ := os.Hostname()

	e := &Engine{
		catalog:    cat,
		segmenter:  shell.NewSegmenter(opts.MaxDepth),
		normalizer: normalize.New(cat.NormalizerTables()),
		classifier: analyzer.NewClassifier(cat),
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		log:        opts.Log,
		home:       opts.Home,
		version:    opts.Version,
		hostname:   hostname,
		pid:        os.Getpid(),
	}

	byTier := make(map[string]int, len(policy.Tiers))
	for _, t := range policy.Tiers {
		byTier[string(t)] = len(cat.Tier(t))
	}
	e.metrics.SetCatalog(cat.Version(), cat.Fingerprint(), byTier)
	return e
}

// Catalog returns the catalog the engine evaluates against.
func (e *Engine) Catalog() *policy.Catalog { return e.catalog }

// Decide renders the decision for a command without auditing it.
func (e *Engine) Decide(inv Invocation) analyzer.Decision {
	var verdicts []analyzer.Verdict

	if scan := unicode.Scan(inv.Command); !scan.Clean {
		verdicts = append(verdicts, analyzer.Verdict{
			Segment:  -1,
			Category: analyzer.CategoryEscalate,
			RuleID:   analyzer.RuleUnicodeObfuscation,
			Reason:   "command contains characters that may display differently than they execute: " + scan.Summary(),
		})
	}

	segs, err := e.segmenter.Split(inv.Command)
	if err != nil {
		e.log.Debug("command rejected by segmenter", "error", err)
		return analyzer.Unparsable()
	}

	env := normalize.Env{Cwd: inv.WorkingDir, Home: e.home}
	cmds := make([]normalize.Command, 0, len(segs))
	for _, seg := range segs {
		cmds = append(cmds, e.normalizer.Normalize(seg, env))
	}
	verdicts = append(verdicts, e.classifier.Classify(cmds)...)
	return analyzer.Aggregate(verdicts)
}

// Evaluate decides inv and appends exactly one audit record for it.
func (e *Engine) Evaluate(ctx context.Context, inv Invocation) Result {
	start := time.Now()
	d := e.Decide(inv)
	return e.Record(ctx, inv, d, time.Since(start))
}

// Record appends the audit record of d, the decision returned to the host
// for inv. Callers that render their own decision, such as a timeout block,
// record it here so the audit trail matches the response.
func (e *Engine) Record(ctx context.Context, inv Invocation, d analyzer.Decision, elapsed time.Duration) Result {
	rec := logger.AuditRecord{
		SessionID:          inv.SessionID,
		ToolName:           inv.ToolName,
		WorkingDirectory:   inv.WorkingDir,
		Command:            inv.Command,
		Decision:           string(d.Outcome),
		Category:           string(d.Category),
		RuleID:             d.RuleID,
		Reason:             d.Reason,
		Segment:            d.Segment,
		CatalogVersion:     e.catalog.Version(),
		CatalogFingerprint: e.catalog.Fingerprint(),
		EngineVersion:      e.version,
		PID:                e.pid,
		Hostname:           e.hostname,
		DurationUS:         elapsed.Microseconds(),
	}
	res := Result{Decision: d, Record: rec}

	if e.audit != nil {
		if err := e.audit.Append(rec); err != nil {
			res.AuditErr = err
			e.metrics.AuditFailure()
			e.metrics.Alert(logger.AlertAuditWriteFailure)
			e.log.ErrorContext(ctx, "audit record lost",
				logger.AlertKey, logger.AlertAuditWriteFailure,
				"error", err,
				"decision", d.Outcome,
				"rule_id", d.RuleID,
				"session_id", inv.SessionID,
			)
		}
	}

	e.metrics.ObserveDecision(string(d.Outcome), d.RuleID, elapsed.Seconds())
	e.log.DebugContext(ctx, "decision",
		"decision", d.Outcome,
		"category", d.Category,
		"rule_id", d.RuleID,
		"segment", d.Segment,
		"duration_us", elapsed.Microseconds(),
	)
	return res
}
