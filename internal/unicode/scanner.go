// Package unicode detects characters that make a command display
// differently from how the shell reads it.
package unicode

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Threat is one suspicious character.
type Threat struct {
	Category    string
	Description string
	Position    int    // byte offset in the input
	Codepoint   string // e.g. "U+200B"
}

// ScanResult holds the output of a Unicode scan.
type ScanResult struct {
	Clean   bool
	Threats []Threat
}

// Summary names the distinct threat categories in order of first
// appearance, for use in a decision reason.
func (r ScanResult) Summary() string {
	var cats []string
	seen := map[string]bool{}
	for _, t := range r.Threats {
		if !seen[t.Category] {
			seen[t.Category] = true
			cats = append(cats, t.Category)
		}
	}
	if len(cats) == 0 {
		return ""
	}
	return fmt.Sprintf("%s (first at byte %d, %s)", strings.Join(cats, ", "), r.Threats[0].Position, r.Threats[0].Codepoint)
}

// Threat categories.
const (
	CategoryZeroWidth     = "zero-width"
	CategoryBidi          = "bidi-override"
	CategoryTag           = "tag-char"
	CategoryControl       = "control-char"
	CategoryCompatibility = "compatibility-form"
	CategoryInvalidUTF8   = "invalid-utf8"
	CategoryCyrillic      = "homoglyph-cyrillic"
	CategoryGreek         = "homoglyph-greek"
)

// class is a set of code points that is always suspicious in a command.
type class struct {
	category string
	table    *unicode.RangeTable
	describe string // format verb receives the code point
}

var classes = []class{
	{
		category: CategoryZeroWidth,
		// ZWSP, ZWNJ, ZWJ, LRM, RLM, word joiner, Mongolian vowel separator, BOM.
		table: &unicode.RangeTable{R16: []unicode.Range16{
			{Lo: 0x180E, Hi: 0x180E, Stride: 1},
			{Lo: 0x200B, Hi: 0x200F, Stride: 1},
			{Lo: 0x2060, Hi: 0x2060, Stride: 1},
			{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1},
		}},
		describe: "zero-width character %s can hide content from display",
	},
	{
		category: CategoryBidi,
		// Embeddings, overrides and isolates.
		table: &unicode.RangeTable{R16: []unicode.Range16{
			{Lo: 0x202A, Hi: 0x202E, Stride: 1},
			{Lo: 0x2066, Hi: 0x2069, Stride: 1},
		}},
		describe: "bidirectional control %s can make displayed text differ from executed text",
	},
	{
		category: CategoryTag,
		table: &unicode.RangeTable{R32: []unicode.Range32{
			{Lo: 0xE0001, Hi: 0xE007F, Stride: 1},
		}},
		describe: "tag character %s can smuggle hidden text",
	},
	{
		category: CategoryControl,
		// C0 except tab, newline and carriage return; DEL; C1.
		table: &unicode.RangeTable{R16: []unicode.Range16{
			{Lo: 0x00, Hi: 0x08, Stride: 1},
			{Lo: 0x0B, Hi: 0x0C, Stride: 1},
			{Lo: 0x0E, Hi: 0x1F, Stride: 1},
			{Lo: 0x7F, Hi: 0x9F, Stride: 1},
		}},
		describe: "control character %s has no place in a command",
	},
}

// confusable is a non-Latin letter drawn like a Latin one.
type confusable struct {
	latin    rune
	category string
}

var confusables = buildConfusables(map[string]string{
	CategoryCyrillic: "аaАAВBсcСCеeЕEНHіiІIКKМMоoОOрpРPТTхxХXуyУY",
	CategoryGreek:    "ΑAΒBΕEΗHΙIΚKΜMΝNΟOοoΡPΤTΧXΥYΖZ",
})

// buildConfusables reads each string as pairs of (look-alike, Latin letter).
func buildConfusables(pairs map[string]string) map[rune]confusable {
	out := map[rune]confusable{}
	for cat, s := range pairs {
		rs := []rune(s)
		for i := 0; i+1 < len(rs); i += 2 {
			out[rs[i]] = confusable{latin: rs[i+1], category: cat}
		}
	}
	return out
}

func codepoint(r rune) string { return fmt.Sprintf("U+%04X", r) }

// Scan inspects a command string for Unicode smuggling indicators.
// Homoglyphs are reported only inside words that also contain Latin
// letters, so text written entirely in another script stays clean.
func Scan(input string) ScanResult {
	result := ScanResult{Clean: true}
	add := func(cat, desc string, pos int, cp string) {
		result.Clean = false
		result.Threats = append(result.Threats, Threat{Category: cat, Description: desc, Position: pos, Codepoint: cp})
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])
		if r == utf8.RuneError && size == 1 {
			add(CategoryInvalidUTF8, "invalid UTF-8 byte sequence", i, fmt.Sprintf("0x%02X", input[i]))
			i++
			continue
		}
		if cat, desc, ok := classify(r); ok {
			add(cat, desc, i, codepoint(r))
		}
		i += size
	}

	for start, end := range wordSpans(input) {
		w := input[start:end]
		if !strings.ContainsFunc(w, func(r rune) bool { return unicode.Is(unicode.Latin, r) }) {
			continue
		}
		for off, r := range w {
			if c, ok := confusables[r]; ok {
				add(c.category, fmt.Sprintf("%s looks like Latin %q", codepoint(r), c.latin), start+off, codepoint(r))
			}
		}
	}
	return result
}

// wordSpans yields the byte range of each whitespace-separated word.
func wordSpans(input string) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		start := -1
		for i, r := range input {
			switch {
			case !unicode.IsSpace(r) && start < 0:
				start = i
			case unicode.IsSpace(r) && start >= 0:
				if !yield(start, i) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(start, len(input))
		}
	}
}

func classify(r rune) (category, description string, ok bool) {
	for _, c := range classes {
		if unicode.Is(c.table, r) {
			return c.category, fmt.Sprintf(c.describe, codepoint(r)), true
		}
	}
	if folded, found := compatibilityFold(r); found {
		return CategoryCompatibility, fmt.Sprintf("%s is a compatibility form of %q", codepoint(r), folded), true
	}
	return "", "", false
}

// compatibilityFold reports runes whose NFKC form is an ASCII letter, digit
// or shell-significant symbol, such as fullwidth "ｒｍ" or "／".
func compatibilityFold(r rune) (string, bool) {
	if r < utf8.RuneSelf {
		return "", false
	}
	s := string(r)
	folded := norm.NFKC.String(s)
	if folded == s || len(folded) != 1 {
		return "", false
	}
	c := folded[0]
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return folded, true
	case strings.IndexByte("/-;|&$<>`'\"*~=", c) >= 0:
		return folded, true
	}
	return "", false
}
