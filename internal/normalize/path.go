package normalize

import (
	"path"
	"strings"

	"github.com/remote-claude/rcguard/internal/shell"
)

// resolveToken resolves a dequoted word against env. It never guesses: a
// word whose value depends on run-time state is Unresolved.
func resolveToken(v shell.WordValue, env Env) PathInfo {
	info := PathInfo{Candidate: true}
	if v.Dynamic {
		info.Unresolved = true
		return info
	}
	p := v.Value
	if v.Glob {
		p = globBase(p)
	}

	if v.Tilde && strings.HasPrefix(p, "~") {
		rest := p[1:]
		if rest != "" && !strings.HasPrefix(rest, "/") {
			// ~user
			info.Unresolved = true
			return info
		}
		if env.Home == "" {
			info.Unresolved = true
			return info
		}
		p = env.Home + rest
	}

	if !path.IsAbs(p) {
		if env.Cwd == "" || !path.IsAbs(env.Cwd) {
			info.Unresolved = true
			return info
		}
		p = path.Join(env.Cwd, p)
	}
	info.Abs = path.Clean(p)
	return info
}

// globBase returns the static directory a glob pattern expands under:
// "/etc/*.conf" → "/etc", "*" → ".", "/{etc,usr}" → "/".
func globBase(p string) string {
	idx := strings.IndexAny(p, "*?[{")
	if idx < 0 {
		return p
	}
	prefix := p[:idx]
	slash := strings.LastIndex(prefix, "/")
	switch {
	case slash < 0:
		return "."
	case slash == 0:
		return "/"
	default:
		return prefix[:slash]
	}
}

// looksLikePath reports whether an argument is written like a filesystem
// path, as opposed to a subcommand, name or URL.
func looksLikePath(arg string) bool {
	if arg == "" || strings.HasPrefix(arg, "-") {
		return false
	}
	if strings.Contains(arg, "://") {
		return false
	}
	if arg == "." || arg == ".." || arg == "~" {
		return true
	}
	return strings.HasPrefix(arg, "/") ||
		strings.HasPrefix(arg, "./") ||
		strings.HasPrefix(arg, "../") ||
		strings.HasPrefix(arg, "~") ||
		strings.Contains(arg, "/")
}
