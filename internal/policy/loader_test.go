package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testHome = "/home/user"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoad_EmbeddedDefault(t *testing.T) {
	cat, err := Load(LoadOptions{Home: testHome})
	if err != nil {
		t.Fatalf("embedded catalog failed to load: %v", err)
	}
	if cat.Source() != DefaultSource {
		t.Errorf("expected source %q, got %q", DefaultSource, cat.Source())
	}
	if cat.Version() == "" {
		t.Error("expected a catalog version")
	}
	if len(cat.Fingerprint()) != 16 {
		t.Errorf("expected 16 hex digit fingerprint, got %q", cat.Fingerprint())
	}

	for _, id := range []string{
		"protected-path-redirect-write",
		"forced-push",
		"recursive-delete-of-root",
		"recursive-delete-of-cwd",
		"database-destructive-statement",
		"database-destructive-via-pipe",
		"cloud-resource-deletion",
		"infra-destructive-apply",
		"pulumi-command",
		"schema-migration-django",
		"dynamic-command-name",
	} {
		if _, ok := cat.Rule(id); !ok {
			t.Errorf("expected default rule %q", id)
		}
	}

	// Tier partition preserves catalog order.
	total := 0
	for _, tier := range Tiers {
		rules := cat.Tier(tier)
		total += len(rules)
		for i := 1; i < len(rules); i++ {
			if rules[i].Position <= rules[i-1].Position {
				t.Errorf("tier %s: rule %q out of catalog order", tier, rules[i].ID)
			}
		}
		for _, r := range rules {
			if r.Tier != tier {
				t.Errorf("rule %q listed under tier %s", r.ID, tier)
			}
		}
	}
	if total != len(cat.Rules()) {
		t.Errorf("tiers hold %d rules, catalog has %d", total, len(cat.Rules()))
	}
}

func TestLoad_DefaultProtectedPaths(t *testing.T) {
	cat, err := Load(LoadOptions{Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	protected := []string{
		"/home/user/.claude/settings.json",
		"/home/user/.claude/hooks/pre-tool.sh",
		"/work/repo/.claude/settings.local.json",
		"/work/repo/.git/hooks/pre-commit",
		"/home/user/.rcguard/audit/audit.jsonl",
	}
	for _, p := range protected {
		if !cat.IsProtected(p) {
			t.Errorf("path %q: expected protected", p)
		}
	}
	unprotected := []string{
		"/home/user/project/main.go",
		"/work/repo/.git/config",
		"/home/user/.claudefile",
		"/",
	}
	for _, p := range unprotected {
		if cat.IsProtected(p) {
			t.Errorf("path %q: expected not protected", p)
		}
	}
}

func TestLoad_ExtraProtect(t *testing.T) {
	cat, err := Load(LoadOptions{Home: testHome, Protect: []string{"/opt/rcguard/rules.yaml"}})
	if err != nil {
		t.Fatal(err)
	}
	if !cat.IsProtected("/opt/rcguard/rules.yaml") {
		t.Error("expected extra protected path to be protected")
	}
	base, err := Load(LoadOptions{Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	if base.Fingerprint() == cat.Fingerprint() {
		t.Error("expected extra protected paths to change the fingerprint")
	}
}

func TestLoad_FingerprintStable(t *testing.T) {
	a, err := Load(LoadOptions{Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load(LoadOptions{Home: "/Users/someone"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("expected identical fingerprints, got %s and %s", a.Fingerprint(), b.Fingerprint())
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "nope.yaml"), Home: testHome})
	if !errors.Is(err, ErrCatalogLoad) {
		t.Fatalf("expected ErrCatalogLoad, got %v", err)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty document",
			doc:     "",
			wantErr: "empty document",
		},
		{
			name:    "malformed yaml",
			doc:     "version: [1\nrules: {",
			wantErr: "yaml",
		},
		{
			name: "unknown field",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {executable: rm}
    severity: high
`,
			wantErr: "severity",
		},
		{
			name: "unknown match predicate",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {executable: rm, args_all: [x]}
`,
			wantErr: "args_all",
		},
		{
			name: "missing version",
			doc: `rules:
  - id: a
    tier: block
    reason: r
    match: {executable: rm}
`,
			wantErr: "version is required",
		},
		{
			name:    "no rules",
			doc:     "version: \"1\"\nrules: []\n",
			wantErr: "rules",
		},
		{
			name: "bad tier",
			doc: `version: "1"
rules:
  - id: a
    tier: audit
    reason: r
    match: {executable: rm}
`,
			wantErr: "tier must be one of",
		},
		{
			name: "bad on_unresolved",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    on_unresolved: maybe
    match: {executable: rm, paths_any: [/]}
`,
			wantErr: "on_unresolved",
		},
		{
			name: "bad id",
			doc: `version: "1"
rules:
  - id: Bad_ID
    tier: block
    reason: r
    match: {executable: rm}
`,
			wantErr: "lowercase",
		},
		{
			name: "missing reason",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    match: {executable: rm}
`,
			wantErr: "reason is required",
		},
		{
			name: "duplicate id",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {executable: rm}
  - id: a
    tier: escalate
    reason: r
    match: {executable: mv}
`,
			wantErr: "duplicate rule id",
		},
		{
			name: "empty match",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {}
`,
			wantErr: "no predicates",
		},
		{
			name: "path_scope without paths",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {path_scope: redirects}
`,
			wantErr: "path_scope without paths_any",
		},
		{
			name: "bad regex",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {values_regex: "(unclosed"}
`,
			wantErr: "values_regex",
		},
		{
			name: "bad glob",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {args_any: ["[unclosed"]}
`,
			wantErr: "args_any",
		},
		{
			name: "relative path pattern",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {paths_any: [etc/passwd]}
`,
			wantErr: "not absolute",
		},
		{
			name: "bad cel",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {when: "args.exists(a, "}
`,
			wantErr: "when",
		},
		{
			name: "non-boolean cel",
			doc: `version: "1"
rules:
  - id: a
    tier: block
    reason: r
    match: {when: "name + subcommand"}
`,
			wantErr: "must be boolean",
		},
		{
			name: "relative protected path",
			doc: `version: "1"
protected_paths: [relative/path]
rules:
  - id: a
    tier: block
    reason: r
    match: {executable: rm}
`,
			wantErr: "protected_paths",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := Parse([]byte(tt.doc), "test.yaml", LoadOptions{Home: testHome})
			if err == nil {
				t.Fatalf("expected error, got catalog with %d rules", len(cat.Rules()))
			}
			if !errors.Is(err, ErrCatalogLoad) {
				t.Errorf("expected ErrCatalogLoad, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	doc := `version: "1"
protected_paths: ["~/.config/tool/**"]
rules:
  - id: protect
    tier: self_protect
    reason: r
    match:
      paths_any: ["@protected", /srv/data]
  - id: cel
    tier: escalate
    reason: r
    on_unresolved: ignore
    match:
      path_scope: last_arg
      paths_any: [/tmp/**]
      when: 'name == "cp"'
`
	cat, err := Parse([]byte(doc), "test.yaml", LoadOptions{Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	protect, _ := cat.Rule("protect")
	if protect.Unresolved() != UnresolvedMatch {
		t.Errorf("expected default on_unresolved match, got %s", protect.Unresolved())
	}
	if protect.Scope() != ScopeArgs {
		t.Errorf("expected default path_scope args, got %s", protect.Scope())
	}
	if len(protect.PathsAny) != 2 || protect.PathsAny[0].Expanded != "/home/user/.config/tool/**" {
		t.Errorf("expected @protected expanded before /srv/data, got %+v", protect.PathsAny)
	}

	celRule, _ := cat.Rule("cel")
	if celRule.Unresolved() != UnresolvedIgnore || celRule.Scope() != ScopeLastArg {
		t.Errorf("expected ignore/last_arg, got %s/%s", celRule.Unresolved(), celRule.Scope())
	}
	ok, err := celRule.When.Eval(Vars{Name: "cp"})
	if err != nil || !ok {
		t.Errorf("expected when to match cp, got %v, %v", ok, err)
	}
	ok, err = celRule.When.Eval(Vars{Name: "mv"})
	if err != nil || ok {
		t.Errorf("expected when not to match mv, got %v, %v", ok, err)
	}
}

func TestParse_NormalizerSection(t *testing.T) {
	doc := `version: "1"
normalizer:
  value_flags:
    mytool: [target, t]
  single_dash_long: [mytool]
rules:
  - id: a
    tier: block
    reason: r
    match: {executable: mytool}
`
	cat, err := Parse([]byte(doc), "test.yaml", LoadOptions{Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	tables := cat.NormalizerTables()
	if got := tables.ValueFlags["mytool"]; len(got) != 2 {
		t.Errorf("expected mytool value flags merged, got %v", got)
	}
	if len(tables.ValueFlags["git"]) == 0 {
		t.Error("expected built-in git value flags to survive the merge")
	}
}

func TestDefaultRulesYAML_IsACopy(t *testing.T) {
	a := DefaultRulesYAML()
	a[0] = 'X'
	if DefaultRulesYAML()[0] == 'X' {
		t.Error("expected DefaultRulesYAML to return a copy")
	}
}
