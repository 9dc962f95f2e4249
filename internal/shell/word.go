package shell

import (
	"bytes"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// WordValue is the syntactic value of a shell word: quotes removed and
// escapes resolved, with nothing expanded.
type WordValue struct {
	Value string
	// Dynamic is set when the word contains a parameter expansion, command
	// or process substitution, or arithmetic. Value then keeps the raw text
	// of those parts.
	Dynamic bool
	// Glob is set when an unquoted part contains pattern or brace
	// characters that the shell would expand.
	Glob bool
	// Tilde is set when the word starts with an unquoted "~".
	Tilde bool
}

// Unquote resolves quoting in w without performing any expansion.
func Unquote(w *syntax.Word) WordValue {
	var v WordValue
	if w == nil {
		return v
	}
	var buf strings.Builder
	for i, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			if i == 0 && strings.HasPrefix(p.Value, "~") {
				v.Tilde = true
			}
			s, glob := unescapeBare(p.Value)
			buf.WriteString(s)
			v.Glob = v.Glob || glob
		case *syntax.SglQuoted:
			if p.Dollar {
				buf.WriteString(ansiC(p.Value))
			} else {
				buf.WriteString(p.Value)
			}
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					buf.WriteString(unescapeDouble(lit.Value))
					continue
				}
				v.Dynamic = true
				buf.WriteString(printPart(inner))
			}
		case *syntax.ExtGlob:
			v.Glob = true
			buf.WriteString(printPart(p))
		default:
			v.Dynamic = true
			buf.WriteString(printPart(p))
		}
	}
	v.Value = buf.String()
	return v
}

// Literal returns the value of w when it is fully static.
func Literal(w *syntax.Word) (string, bool) {
	v := Unquote(w)
	return v.Value, !v.Dynamic
}

// unescapeBare drops unquoted backslashes and reports whether any
// unescaped glob or brace-expansion syntax is present.
func unescapeBare(s string) (string, bool) {
	var buf strings.Builder
	glob := false
	braceOpen := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			if i+1 < len(s) {
				if s[i+1] != '\n' {
					buf.WriteByte(s[i+1])
				}
				i++
			}
			continue
		}
		switch c {
		case '*', '?', '[':
			glob = true
		case '{':
			braceOpen = buf.Len()
		case '}':
			if braceOpen >= 0 {
				inner := buf.String()[braceOpen:]
				if strings.Contains(inner, ",") || strings.Contains(inner, "..") {
					glob = true
				}
			}
		}
		buf.WriteByte(c)
	}
	return buf.String(), glob
}

// unescapeDouble applies the backslash rules that hold inside double quotes.
func unescapeDouble(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '$', '`', '"', '\\':
				buf.WriteByte(s[i+1])
				i++
				continue
			case '\n':
				i++
				continue
			}
		}
		buf.WriteByte(c)
	}
	return buf.String()
}

// ansiC decodes the escapes of a $'...' string.
func ansiC(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			buf.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			buf.WriteByte('\n')
		case 't':
			buf.WriteByte('\t')
		case 'r':
			buf.WriteByte('\r')
		case 'a':
			buf.WriteByte('\a')
		case 'b':
			buf.WriteByte('\b')
		case 'f':
			buf.WriteByte('\f')
		case 'v':
			buf.WriteByte('\v')
		case 'e', 'E':
			buf.WriteByte(0x1b)
		case '\\', '\'', '"', '?':
			buf.WriteByte(e)
		case 'x':
			j := i + 1
			for j < len(s) && j < i+3 && isHex(s[j]) {
				j++
			}
			if n, err := strconv.ParseUint(s[i+1:j], 16, 8); err == nil && j > i+1 {
				buf.WriteByte(byte(n))
				i = j - 1
			} else {
				buf.WriteString(`\x`)
			}
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 8, 16)
			buf.WriteByte(byte(n))
			i = j - 1
		default:
			buf.WriteByte('\\')
			buf.WriteByte(e)
		}
	}
	return buf.String()
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func printPart(part syntax.WordPart) string {
	var buf bytes.Buffer
	word := &syntax.Word{Parts: []syntax.WordPart{part}}
	if err := syntax.NewPrinter().Print(&buf, word); err != nil {
		return ""
	}
	return buf.String()
}
