package shell

import (
	"strings"
	"testing"

	"mvdan.cc/sh/v3/syntax"
)

func parseWord(t *testing.T, src string) *syntax.Word {
	t.Helper()
	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	f, err := p.Parse(strings.NewReader("x "+src), "")
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	call := f.Stmts[0].Cmd.(*syntax.CallExpr)
	return call.Args[1]
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		src         string
		wantValue   string
		wantDynamic bool
		wantGlob    bool
		wantTilde   bool
	}{
		{`plain`, "plain", false, false, false},
		{`'single quoted $HOME'`, "single quoted $HOME", false, false, false},
		{`"double \"quoted\""`, `double "quoted"`, false, false, false},
		{`"keep \n backslash"`, `keep \n backslash`, false, false, false},
		{`\rm`, "rm", false, false, false},
		{`r'm'`, "rm", false, false, false},
		{`$'a\tb\x41'`, "a\tbA", false, false, false},
		{`$HOME/x`, "$HOME/x", true, false, false},
		{`"$(pwd)/build"`, "$(pwd)/build", true, false, false},
		{`~/.claude`, "~/.claude", false, false, true},
		{`'~'/x`, "~/x", false, false, false},
		{`*.log`, "*.log", false, true, false},
		{`'*.log'`, "*.log", false, false, false},
		{`\*`, "*", false, false, false},
		{`/{etc,usr}`, "/{etc,usr}", false, true, false},
		{`{a}`, "{a}", false, false, false},
	}

	for _, tt := range tests {
		got := Unquote(parseWord(t, tt.src))
		if got.Value != tt.wantValue {
			t.Errorf("Unquote(%s): expected value %q, got %q", tt.src, tt.wantValue, got.Value)
		}
		if got.Dynamic != tt.wantDynamic {
			t.Errorf("Unquote(%s): expected dynamic=%v, got %v", tt.src, tt.wantDynamic, got.Dynamic)
		}
		if got.Glob != tt.wantGlob {
			t.Errorf("Unquote(%s): expected glob=%v, got %v", tt.src, tt.wantGlob, got.Glob)
		}
		if got.Tilde != tt.wantTilde {
			t.Errorf("Unquote(%s): expected tilde=%v, got %v", tt.src, tt.wantTilde, got.Tilde)
		}
	}
}
