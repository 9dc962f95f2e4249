package normalize

import (
	"path"
	"strings"
)

// wrapperSpec describes a command that runs another command given on its own
// command line.
type wrapperSpec struct {
	// valueFlags are options that consume the following word.
	valueFlags []string
	// operands is the number of leading operands consumed before the
	// wrapped command (timeout's duration).
	operands int
	// assignments allows NAME=value words before the command (env).
	assignments bool
	// subcommand, when set, must follow the wrapper for it to wrap
	// anything ("poetry run").
	subcommand string
}

var wrappers = map[string]wrapperSpec{
	"sudo":    {valueFlags: []string{"-u", "--user", "-g", "--group", "-U", "--other-user", "-C", "--close-from", "-D", "--chdir", "-h", "--host", "-p", "--prompt", "-r", "--role", "-t", "--type", "-T", "--command-timeout"}},
	"doas":    {valueFlags: []string{"-u", "-C"}},
	"env":     {valueFlags: []string{"-u", "--unset", "-C", "--chdir", "-S", "--split-string"}, assignments: true},
	"nice":    {valueFlags: []string{"-n", "--adjustment"}},
	"nohup":   {},
	"time":    {valueFlags: []string{"-f", "--format", "-o", "--output"}},
	"command": {},
	"builtin": {},
	"exec":    {valueFlags: []string{"-a"}},
	"timeout": {valueFlags: []string{"-s", "--signal", "-k", "--kill-after"}, operands: 1},
	"stdbuf":  {valueFlags: []string{"-i", "--input", "-o", "--output", "-e", "--error"}},
	"ionice":  {valueFlags: []string{"-c", "--class", "-n", "--classdata", "-p", "--pid", "-P", "--pgid", "-u", "--uid"}},
	"xargs":   {valueFlags: []string{"-I", "-n", "--max-args", "-P", "--max-procs", "-L", "--max-lines", "-d", "--delimiter", "-E", "--eof", "-s", "--max-chars", "-a", "--arg-file"}},
	"npx":     {valueFlags: []string{"-p", "--package"}},
	"pnpx":    {valueFlags: []string{"-p", "--package"}},
	"bunx":    {valueFlags: []string{"-p", "--package"}},
	"poetry":  {subcommand: "run"},
	"pipenv":  {subcommand: "run"},
	"uv":      {subcommand: "run", valueFlags: []string{"--with", "--python", "-p", "--project", "--directory"}},
	"bundle":  {subcommand: "exec"},
	"pnpm":    {subcommand: "exec"},
}

// unwrap checks whether words[i] is a transparent wrapper. When it is, unwrap
// returns the index of the wrapped command word and the wrapper's name.
// A wrapper with nothing after its own options is not unwrapped.
func unwrap(words []word, i int) (int, string, bool) {
	head := words[i]
	if head.Dynamic {
		return 0, "", false
	}
	name := path.Base(head.Value)
	spec, ok := wrappers[name]
	if !ok {
		return 0, "", false
	}
	j := i + 1
	if spec.subcommand != "" {
		if j >= len(words) || words[j].Value != spec.subcommand {
			return 0, "", false
		}
		j++
	}

	valueFlags := make(map[string]bool, len(spec.valueFlags))
	for _, f := range spec.valueFlags {
		valueFlags[f] = true
	}
	operands := spec.operands

	for j < len(words) {
		w := words[j]
		v := w.Value
		switch {
		case w.Dynamic:
			// A computed option or operand hides where the command starts;
			// treat the computed word as the command itself.
			return j, name, true
		case v == "--":
			j++
			return j, name, j < len(words)
		case strings.HasPrefix(v, "-") && len(v) > 1:
			flag, _, hasValue := strings.Cut(v, "=")
			j++
			if valueFlags[flag] && !hasValue {
				j++
			}
		case spec.assignments && strings.Contains(v, "=") && isKey(strings.SplitN(v, "=", 2)[0]):
			j++
		case operands > 0:
			operands--
			j++
		default:
			return j, name, true
		}
	}
	return 0, "", false
}

// xargsReplace returns the replace string set by xargs -I, -i or --replace
// among the wrapper's own option words.
func xargsReplace(opts []word) (string, bool) {
	for k, w := range opts {
		v := w.Value
		switch {
		case v == "-I" && k+1 < len(opts):
			return opts[k+1].Value, opts[k+1].Value != ""
		case strings.HasPrefix(v, "-I") && len(v) > 2:
			return v[2:], true
		case v == "-i" || v == "--replace":
			return "{}", true
		case strings.HasPrefix(v, "-i") && len(v) > 2:
			return v[2:], true
		case strings.HasPrefix(v, "--replace="):
			return strings.TrimPrefix(v, "--replace="), v != "--replace="
		}
	}
	return "", false
}
