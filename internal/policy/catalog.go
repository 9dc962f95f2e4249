package policy

import (
	"fmt"

	"github.com/remote-claude/rcguard/internal/normalize"
)

// Catalog is a loaded, compiled rule set. It is immutable after Load and
// safe for concurrent use.
type Catalog struct {
	version     string
	description string
	source      string
	fingerprint uint64
	protected   []PathPattern
	tables      normalize.Tables
	rules       []*CompiledRule
	byTier      map[Tier][]*CompiledRule
	packs       []PackInfo
}

// Version is the catalog's declared version.
func (c *Catalog) Version() string { return c.version }

// Description is the catalog's free-form description.
func (c *Catalog) Description() string { return c.description }

// Source is the file the catalog was loaded from, or DefaultSource.
func (c *Catalog) Source() string { return c.source }

// Fingerprint identifies the exact rule content, including packs and the
// extra protected paths, as 16 hex digits.
func (c *Catalog) Fingerprint() string { return fmt.Sprintf("%016x", c.fingerprint) }

// Rules returns every rule in catalog order.
func (c *Catalog) Rules() []*CompiledRule {
	return append([]*CompiledRule(nil), c.rules...)
}

// Tier returns the rules of one tier in catalog order.
func (c *Catalog) Tier(t Tier) []*CompiledRule {
	return append([]*CompiledRule(nil), c.byTier[t]...)
}

// Rule looks up a rule by id.
func (c *Catalog) Rule(id string) (*CompiledRule, bool) {
	for _, r := range c.rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// ProtectedPaths returns the expanded protected path patterns.
func (c *Catalog) ProtectedPaths() []string {
	out := make([]string, 0, len(c.protected))
	for _, p := range c.protected {
		out = append(out, p.Expanded)
	}
	return out
}

// IsProtected reports whether the absolute path matches the protected set.
func (c *Catalog) IsProtected(abs string) bool {
	for _, p := range c.protected {
		if p.Match(abs) {
			return true
		}
	}
	return false
}

// NormalizerTables returns the built-in normalizer tables merged with the
// catalog's and packs' normalizer sections.
func (c *Catalog) NormalizerTables() normalize.Tables { return c.tables }

// Packs lists the packs found in packs_dir, enabled or not.
func (c *Catalog) Packs() []PackInfo {
	return append([]PackInfo(nil), c.packs...)
}
