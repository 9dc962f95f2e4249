package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/remote-claude/rcguard/internal/analyzer"
	"github.com/remote-claude/rcguard/internal/engine"
	"github.com/remote-claude/rcguard/internal/logger"
	"github.com/remote-claude/rcguard/internal/metrics"
	"github.com/remote-claude/rcguard/internal/policy"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Request
	}{
		{
			name:  "plain contract",
			input: `{"tool_name":"Bash","command":"ls","session_id":"s","working_directory":"/w"}`,
			want:  Request{ToolName: "Bash", Command: "ls", SessionID: "s", WorkingDirectory: "/w"},
		},
		{
			name:  "claude pre tool use",
			input: `{"hook_event_name":"PreToolUse","tool_name":"Bash","tool_input":{"command":"git status","description":"x"},"cwd":"/repo","session_id":"abc"}`,
			want:  Request{ToolName: "Bash", Command: "git status", SessionID: "abc", WorkingDirectory: "/repo", HookEventName: "PreToolUse"},
		},
		{
			name:  "non shell tool input",
			input: `{"tool_name":"Read","tool_input":{"file_path":"/etc/passwd"}}`,
			want:  Request{ToolName: "Read"},
		},
	}
	for _, tt := range tests {
		got, err := DecodeRequest(strings.NewReader(tt.input))
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}
}

func TestDecodeRequest_Rejects(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`{"command":"ls"}`,
		`{"tool_name":"Bash","tool_input":"rm -rf /"}`,
		`{"tool_name":"Bash","command":"` + strings.Repeat("a", maxRequestBytes) + `"}`,
	}
	for _, in := range inputs {
		short := in
		if len(short) > 40 {
			short = short[:40] + "..."
		}
		if _, err := DecodeRequest(strings.NewReader(in)); !errors.Is(err, ErrBadRequest) {
			t.Errorf("input %q: expected ErrBadRequest, got %v", short, err)
		}
	}
}

func TestEncode(t *testing.T) {
	rule := "forced-push"
	block := Response{Decision: "block", Reason: "[blocked] Force push", RuleID: &rule}

	var buf bytes.Buffer
	if err := Encode(&buf, block, FormatJSON); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"decision":"block","reason":"[blocked] Force push","rule_id":"forced-push"}` {
		t.Errorf("unexpected json output %s", got)
	}

	buf.Reset()
	if err := Encode(&buf, Allow(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"decision":"allow","reason":"","rule_id":null}` {
		t.Errorf("expected null rule_id for allow, got %s", got)
	}

	buf.Reset()
	if err := Encode(&buf, block, FormatClaude); err != nil {
		t.Fatal(err)
	}
	var out claudeOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.HookSpecificOutput.PermissionDecision != "deny" || out.HookSpecificOutput.HookEventName != "PreToolUse" {
		t.Errorf("unexpected claude output %+v", out)
	}
	if !strings.Contains(out.HookSpecificOutput.PermissionDecisionReason, "forced-push") {
		t.Errorf("expected the rule id in the reason, got %q", out.HookSpecificOutput.PermissionDecisionReason)
	}

	buf.Reset()
	ask := FromDecision(analyzer.Decision{Outcome: analyzer.OutcomeAsk, RuleID: "infra-destructive-apply", Reason: "[needs approval] x"})
	if err := Encode(&buf, ask, FormatClaude); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"permissionDecision":"ask"`) {
		t.Errorf("expected ask, got %s", buf.String())
	}

	buf.Reset()
	if err := Encode(&buf, Allow(), FormatClaude); err != nil || buf.Len() != 0 {
		t.Errorf("expected no claude output for allow, got %q (%v)", buf.String(), err)
	}

	if err := Encode(&buf, Allow(), "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cat, err := policy.Load(policy.LoadOptions{Home: "/home/user"})
	if err != nil {
		t.Fatal(err)
	}
	return engine.New(cat, engine.Options{Home: "/home/user"})
}

func TestHandler_Handle(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewHandler(newEngine(t), Config{ShellTools: []string{"Bash", "Shell"}})
	tests := []struct {
		req      Request
		decision string
		rule     string
	}{
		{Request{ToolName: "Bash", Command: "git push --force origin main"}, "block", "forced-push"},
		{Request{ToolName: "Shell", Command: "terraform destroy", WorkingDirectory: "/w"}, "ask", "infra-destructive-apply"},
		{Request{ToolName: "Bash", Command: "ls"}, "allow", ""},
		{Request{ToolName: "Bash", Command: "echo 'open"}, "ask", "unparsable"},
		{Request{ToolName: "Read", Command: "rm -rf /"}, "allow", ""},
	}
	for _, tt := range tests {
		resp := h.Handle(context.Background(), tt.req)
		rule := ""
		if resp.RuleID != nil {
			rule = *resp.RuleID
		}
		if resp.Decision != tt.decision || rule != tt.rule {
			t.Errorf("command %q (%s): expected %s/%q, got %s/%q", tt.req.Command, tt.req.ToolName, tt.decision, tt.rule, resp.Decision, rule)
		}
	}
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []logger.AuditRecord
}

func (a *recordingAuditor) Append(rec logger.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingAuditor) all() []logger.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]logger.AuditRecord(nil), a.records...)
}

func TestHandler_AuditsResponse(t *testing.T) {
	aud := &recordingAuditor{}
	cat, err := policy.Load(policy.LoadOptions{Home: "/home/user"})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(engine.New(cat, engine.Options{Home: "/home/user", Audit: aud}), Config{})

	resp := h.Handle(context.Background(), Request{ToolName: "Bash", Command: "rm -rf /", SessionID: "s-1"})
	recs := aud.all()
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	if recs[0].Decision != resp.Decision || resp.RuleID == nil || recs[0].RuleID != *resp.RuleID {
		t.Errorf("command %q: expected audit %s/%v, got %s/%s", "rm -rf /", resp.Decision, resp.RuleID, recs[0].Decision, recs[0].RuleID)
	}
}

// slowEvaluator decides only once release is closed and audits into an
// engine backed by aud.
type slowEvaluator struct {
	release chan struct{}
	eng     *engine.Engine
}

func (s slowEvaluator) Decide(inv engine.Invocation) analyzer.Decision {
	<-s.release
	return analyzer.Decision{Outcome: analyzer.OutcomeAllow, Category: analyzer.CategoryAllow}
}

func (s slowEvaluator) Record(ctx context.Context, inv engine.Invocation, d analyzer.Decision, elapsed time.Duration) engine.Result {
	return s.eng.Record(ctx, inv, d, elapsed)
}

func TestHandler_TimeoutFailsClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	aud := &recordingAuditor{}
	cat, err := policy.Load(policy.LoadOptions{Home: "/home/user"})
	if err != nil {
		t.Fatal(err)
	}
	release := make(chan struct{})
	defer close(release)

	m := metrics.New(prometheus.NewRegistry())
	eval := slowEvaluator{release: release, eng: engine.New(cat, engine.Options{Home: "/home/user", Audit: aud})}
	h := NewHandler(eval, Config{Timeout: 20 * time.Millisecond, Metrics: m})

	resp := h.Handle(context.Background(), Request{ToolName: "Bash", Command: "ls", SessionID: "s-2"})
	if resp.Decision != "block" || resp.RuleID == nil || *resp.RuleID != RuleEngineTimeout {
		t.Errorf("expected block %s, got %+v", RuleEngineTimeout, resp)
	}
	if got := testutil.ToFloat64(m.Timeouts); got != 1 {
		t.Errorf("expected 1 timeout, got %v", got)
	}

	recs := aud.all()
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	if recs[0].Decision != "block" || recs[0].RuleID != RuleEngineTimeout || recs[0].Command != "ls" || recs[0].SessionID != "s-2" {
		t.Errorf("expected the timeout block to be audited, got %+v", recs[0])
	}
}

func TestUnavailable(t *testing.T) {
	resp := Unavailable(errors.New("catalog load failed: bad tier"))
	if resp.Decision != "block" || resp.RuleID == nil || *resp.RuleID != RuleEngineUnavailable {
		t.Errorf("expected block %s, got %+v", RuleEngineUnavailable, resp)
	}
	if !strings.Contains(resp.Reason, "bad tier") {
		t.Errorf("expected the cause in the reason, got %q", resp.Reason)
	}
}

func TestClient_UnreachableFailsClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewClient("/nonexistent/rcguard.sock", 200*time.Millisecond)
	defer c.CloseIdleConnections()

	resp := c.Evaluate(context.Background(), Request{ToolName: "Bash", Command: "ls"})
	if resp.Decision != "block" {
		t.Errorf("expected block when the daemon is unreachable, got %+v", resp)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail")
	}
}
