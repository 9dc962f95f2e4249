package approval

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalApprover_Ask(t *testing.T) {
	tests := []struct {
		input    string
		approved bool
		action   string
	}{
		{"a\n", true, "approve_once"},
		{"YES\n", true, "approve_once"},
		{"d\n", false, "deny"},
		{"maybe\nn\n", false, "deny"},
		{"", false, "error_reading_input"},
		{"y", true, "approve_once"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		a := &TerminalApprover{In: strings.NewReader(tt.input), Out: &out, Interactive: func() bool { return true }}
		res := a.Ask(Prompt{Command: "terraform destroy", RuleID: "infra-destructive-apply", Reason: "[needs approval] x"})
		if res.Approved != tt.approved || res.UserAction != tt.action {
			t.Errorf("input %q: expected %v/%s, got %v/%s", tt.input, tt.approved, tt.action, res.Approved, res.UserAction)
		}
		if !strings.Contains(out.String(), "infra-destructive-apply") {
			t.Errorf("input %q: expected the rule id in the prompt", tt.input)
		}
	}
}

func TestTerminalApprover_NonInteractiveDenies(t *testing.T) {
	a := &TerminalApprover{In: strings.NewReader("a\n"), Out: &bytes.Buffer{}, Interactive: func() bool { return false }}
	res := a.Ask(Prompt{Command: "pulumi up"})
	if res.Approved || res.UserAction != "auto_deny_non_interactive" {
		t.Errorf("expected auto deny, got %+v", res)
	}
}
