package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const baseCatalog = `version: "1"
protected_paths: [/etc/base/**]
rules:
  - id: base-rule
    tier: block
    reason: base
    match: {executable: rm}
`

func TestLoadPacks_Merge(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "rules.yaml", baseCatalog)
	packsDir := filepath.Join(dir, "packs")
	if err := os.Mkdir(packsDir, 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, packsDir, "20-team.yaml", `name: team
description: team overlay
version: "0.2"
author: platform
protected_paths: [/srv/team/**]
rules:
  - id: team-escalate
    tier: escalate
    reason: team rule
    match: {executable: make, args_any: [deploy]}
`)
	writeFile(t, packsDir, "10-infra.yml", `rules:
  - id: infra-block
    tier: block
    reason: infra rule
    match: {executable: nomad, subcommand: job stop}
`)
	writeFile(t, packsDir, "_disabled.yaml", "this is not: [valid yaml")
	writeFile(t, packsDir, "README.md", "ignored")

	cat, err := Load(LoadOptions{Path: catalogPath, PacksDir: packsDir, Home: testHome})
	if err != nil {
		t.Fatalf("load with packs: %v", err)
	}

	var ids []string
	for _, r := range cat.Rules() {
		ids = append(ids, r.ID)
	}
	want := []string{"base-rule", "infra-block", "team-escalate"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("expected rules %v in order, got %v", want, ids)
	}

	if !cat.IsProtected("/srv/team/deploy.sh") || !cat.IsProtected("/etc/base/x") {
		t.Error("expected base and pack protected paths to be unioned")
	}

	packs := cat.Packs()
	if len(packs) != 3 {
		t.Fatalf("expected 3 packs listed, got %d", len(packs))
	}
	if packs[0].Name != "disabled" || packs[0].Enabled {
		t.Errorf("expected disabled pack first, got %+v", packs[0])
	}
	if packs[1].Name != "10-infra" || !packs[1].Enabled || packs[1].RuleCount != 1 {
		t.Errorf("expected file-named infra pack, got %+v", packs[1])
	}
	if packs[2].Name != "team" || packs[2].Author != "platform" || packs[2].Version != "0.2" {
		t.Errorf("expected team pack metadata, got %+v", packs[2])
	}

	base, err := Load(LoadOptions{Path: catalogPath, Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	if base.Fingerprint() == cat.Fingerprint() {
		t.Error("expected packs to change the fingerprint")
	}
}

func TestLoadPacks_MissingDir(t *testing.T) {
	cat, err := Load(LoadOptions{PacksDir: filepath.Join(t.TempDir(), "absent"), Home: testHome})
	if err != nil {
		t.Fatalf("expected missing packs dir to be ignored, got %v", err)
	}
	if len(cat.Packs()) != 0 {
		t.Errorf("expected no packs, got %d", len(cat.Packs()))
	}
}

func TestLoadPacks_Failures(t *testing.T) {
	tests := []struct {
		name    string
		pack    string
		wantErr string
	}{
		{
			name:    "malformed",
			pack:    "rules: [",
			wantErr: "failed to parse pack",
		},
		{
			name:    "unknown field",
			pack:    "name: x\nenabled: true\n",
			wantErr: "enabled",
		},
		{
			name: "duplicate id across base and pack",
			pack: `rules:
  - id: base-rule
    tier: escalate
    reason: again
    match: {executable: rm}
`,
			wantErr: "duplicate rule id",
		},
		{
			name: "invalid rule",
			pack: `rules:
  - id: x
    tier: nope
    reason: r
    match: {executable: rm}
`,
			wantErr: "tier must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			catalogPath := writeFile(t, dir, "rules.yaml", baseCatalog)
			packsDir := filepath.Join(dir, "packs")
			if err := os.Mkdir(packsDir, 0700); err != nil {
				t.Fatal(err)
			}
			writeFile(t, packsDir, "pack.yaml", tt.pack)

			_, err := Load(LoadOptions{Path: catalogPath, PacksDir: packsDir, Home: testHome})
			if !errors.Is(err, ErrCatalogLoad) {
				t.Fatalf("expected ErrCatalogLoad, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadPacks_ProtectedOnlyPack(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "rules.yaml", baseCatalog)
	packsDir := filepath.Join(dir, "packs")
	if err := os.Mkdir(packsDir, 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, packsDir, "paths.yaml", "protected_paths: [\"~/.secrets/**\"]\n")

	cat, err := Load(LoadOptions{Path: catalogPath, PacksDir: packsDir, Home: testHome})
	if err != nil {
		t.Fatal(err)
	}
	if !cat.IsProtected("/home/user/.secrets/token") {
		t.Error("expected pack protected path with ~ expanded")
	}
}
