package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/remote-claude/rcguard/internal/normalize"
)

// ErrCatalogLoad is returned for any failure to read, parse, validate or
// compile the catalog. The engine must refuse to serve when it sees it.
var ErrCatalogLoad = errors.New("catalog load failed")

// DefaultSource names the embedded catalog in errors and audit records.
const DefaultSource = "embedded:default_rules.yaml"

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// DefaultRulesYAML returns the embedded default catalog document.
func DefaultRulesYAML() []byte {
	out := make([]byte, len(defaultRulesYAML))
	copy(out, defaultRulesYAML)
	return out
}

// LoadOptions controls catalog loading.
type LoadOptions struct {
	// Path of the catalog file. Empty selects the embedded default.
	Path string
	// PacksDir holds optional *.yaml overlays. A missing directory is
	// ignored; a malformed pack fails the load.
	PacksDir string
	// Home expands "~" in protected paths and path patterns.
	Home string
	// Protect lists additional absolute paths to add to the protected set,
	// typically the catalog, config and audit locations themselves.
	Protect []string
}

// Load reads, validates and compiles the catalog described by opts.
// There is no fallback: any failure returns an error wrapping
// ErrCatalogLoad and no catalog.
func Load(opts LoadOptions) (*Catalog, error) {
	data, source := defaultRulesYAML, DefaultSource
	if opts.Path != "" {
		b, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogLoad, err)
		}
		data, source = b, opts.Path
	}

	var packs []loadedPack
	var infos []PackInfo
	if opts.PacksDir != "" {
		var err error
		packs, infos, err = loadPacks(opts.PacksDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogLoad, err)
		}
	}
	return build(data, source, packs, infos, opts)
}

// Parse compiles a catalog document without packs. It is used to validate
// candidate catalog files.
func Parse(data []byte, source string, opts LoadOptions) (*Catalog, error) {
	return build(data, source, nil, nil, opts)
}

func build(data []byte, source string, packs []loadedPack, infos []PackInfo, opts LoadOptions) (*Catalog, error) {
	var file File
	if err := decodeStrict(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogLoad, source, err)
	}
	v := newValidator()
	if err := validateStruct(v, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogLoad, source, err)
	}
	seen := make(map[string]bool)
	if err := validateRules(file.Rules, seen); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogLoad, source, err)
	}

	rules := append([]Rule(nil), file.Rules...)
	protectedRaw := append([]string(nil), file.ProtectedPaths...)
	tables := normalize.DefaultTables().Merge(file.Normalizer)

	digest := xxhash.New()
	_, _ = digest.Write(data)

	for _, p := range packs {
		if err := validateStruct(v, p.pack); err != nil {
			return nil, fmt.Errorf("%w: pack %s: %v", ErrCatalogLoad, p.path, err)
		}
		if err := validateRules(p.pack.Rules, seen); err != nil {
			return nil, fmt.Errorf("%w: pack %s: %v", ErrCatalogLoad, p.path, err)
		}
		rules = append(rules, p.pack.Rules...)
		protectedRaw = append(protectedRaw, p.pack.ProtectedPaths...)
		tables = tables.Merge(p.pack.Normalizer)
		_, _ = digest.WriteString("\x00pack:" + p.path + "\x00")
		_, _ = digest.Write(p.data)
	}

	extra := append([]string(nil), opts.Protect...)
	sort.Strings(extra)
	for _, p := range extra {
		if p == "" {
			continue
		}
		protectedRaw = append(protectedRaw, p)
		_, _ = digest.WriteString("\x00protect:" + p)
	}

	protected, err := compileProtected(protectedRaw, opts.Home)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: protected_paths: %v", ErrCatalogLoad, source, err)
	}

	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogLoad, err)
	}

	cat := &Catalog{
		version:     file.Version,
		description: file.Description,
		source:      source,
		fingerprint: digest.Sum64(),
		protected:   protected,
		tables:      tables,
		packs:       infos,
		byTier:      make(map[Tier][]*CompiledRule, len(Tiers)),
	}
	for i, r := range rules {
		cr, err := compileRule(r, i, protected, opts.Home, env)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: rule %q: %v", ErrCatalogLoad, source, r.ID, err)
		}
		cat.rules = append(cat.rules, cr)
		cat.byTier[cr.Tier] = append(cat.byTier[cr.Tier], cr)
	}
	return cat, nil
}

// decodeStrict decodes a single YAML document, rejecting unknown fields.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

func compileProtected(raw []string, home string) ([]PathPattern, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]PathPattern, 0, len(raw))
	for _, r := range raw {
		if seen[r] {
			continue
		}
		seen[r] = true
		pp, err := compilePathPattern(r, home)
		if err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, nil
}
