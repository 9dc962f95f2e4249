// Package hook adapts host tool-call requests to the engine and renders
// its decision in the host's expected format.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/remote-claude/rcguard/internal/analyzer"
)

// Rule ids of responses the engine itself did not decide.
const (
	RuleEngineUnavailable = "engine-unavailable"
	RuleEngineTimeout     = "engine-timeout"
)

const maxRequestBytes = 1 << 20

// ErrBadRequest is returned for input that is not a tool-call request.
var ErrBadRequest = errors.New("invalid hook request")

// Request is one tool call.
type Request struct {
	ToolName         string `json:"tool_name"`
	Command          string `json:"command"`
	SessionID        string `json:"session_id"`
	WorkingDirectory string `json:"working_directory"`
	HookEventName    string `json:"hook_event_name,omitempty"`
}

// wireRequest accepts both the plain contract and the Claude Code
// PreToolUse shape:
//
//	{"hook_event_name": "PreToolUse", "tool_name": "Bash", "tool_input": {"command": "..."}, "cwd": "...", "session_id": "..."}
type wireRequest struct {
	Request
	Cwd       string          `json:"cwd"`
	ToolInput json.RawMessage `json:"tool_input"`
}

type toolInput struct {
	Command string `json:"command"`
}

// DecodeRequest reads one request from r.
func DecodeRequest(r io.Reader) (Request, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxRequestBytes+1))
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(data) > maxRequestBytes {
		return Request{}, fmt.Errorf("%w: request exceeds %d bytes", ErrBadRequest, maxRequestBytes)
	}

	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	req := w.Request
	if req.Command == "" && len(w.ToolInput) > 0 && string(w.ToolInput) != "null" {
		var in toolInput
		if err := json.Unmarshal(w.ToolInput, &in); err != nil {
			return Request{}, fmt.Errorf("%w: tool_input: %v", ErrBadRequest, err)
		}
		req.Command = in.Command
	}
	if req.WorkingDirectory == "" {
		req.WorkingDirectory = w.Cwd
	}
	if req.ToolName == "" {
		return Request{}, fmt.Errorf("%w: tool_name is required", ErrBadRequest)
	}
	return req, nil
}

// Response is the decision returned to the host. RuleID is null for allow.
type Response struct {
	Decision string  `json:"decision"`
	Reason   string  `json:"reason"`
	RuleID   *string `json:"rule_id"`
}

// Allow is the response for commands no rule objects to.
func Allow() Response {
	return Response{Decision: string(analyzer.OutcomeAllow)}
}

// FromDecision converts an engine decision.
func FromDecision(d analyzer.Decision) Response {
	resp := Response{Decision: string(d.Outcome), Reason: d.Reason}
	if d.RuleID != "" {
		id := d.RuleID
		resp.RuleID = &id
	}
	return resp
}

// Unavailable blocks everything while the engine cannot be built, for
// example because the catalog failed to load.
func Unavailable(err error) Response {
	return blocked(RuleEngineUnavailable, fmt.Sprintf("[blocked] policy engine unavailable: %v", err))
}

// Timeout blocks a command whose evaluation did not finish in time.
func Timeout() Response {
	return FromDecision(TimeoutDecision())
}

// TimeoutDecision is the decision audited and returned when an evaluation
// outlives its deadline.
func TimeoutDecision() analyzer.Decision {
	return analyzer.Decision{
		Outcome:  analyzer.OutcomeBlock,
		Category: analyzer.CategoryBlock,
		Segment:  -1,
		RuleID:   RuleEngineTimeout,
		Reason:   "[blocked] policy evaluation timed out",
	}
}

func blocked(rule, reason string) Response {
	return Response{Decision: string(analyzer.OutcomeBlock), Reason: reason, RuleID: &rule}
}

// Output formats.
const (
	FormatJSON   = "json"
	FormatClaude = "claude"
)

type claudeOutput struct {
	HookSpecificOutput claudeDecision `json:"hookSpecificOutput"`
}

type claudeDecision struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// Encode writes resp in the given format. The claude format writes
// nothing for allow so the host's own permission flow applies.
func Encode(w io.Writer, resp Response, format string) error {
	switch format {
	case "", FormatJSON:
		return json.NewEncoder(w).Encode(resp)
	case FormatClaude:
		var decision string
		switch resp.Decision {
		case string(analyzer.OutcomeAllow):
			return nil
		case string(analyzer.OutcomeAsk):
			decision = "ask"
		default:
			decision = "deny"
		}
		reason := resp.Reason
		if resp.RuleID != nil {
			reason = fmt.Sprintf("rcguard %s: %s", *resp.RuleID, resp.Reason)
		}
		return json.NewEncoder(w).Encode(claudeOutput{HookSpecificOutput: claudeDecision{
			HookEventName:            "PreToolUse",
			PermissionDecision:       decision,
			PermissionDecisionReason: reason,
		}})
	}
	return fmt.Errorf("unknown output format %q", format)
}
