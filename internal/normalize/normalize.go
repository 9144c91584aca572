// Package normalize holds the pure text transformations applied to scraped
// fields: author cleanup, filename sanitization and numeric parsing.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxStemBytes keeps generated filenames well below the common 255 byte
// filesystem limit once a collision suffix and extension are appended.
const maxStemBytes = 200

// fallbackStem names files whose title sanitizes to nothing.
const fallbackStem = "untitled"

var (
	parenthetical = regexp.MustCompile(`\([^()]*\)`)
	leadingDigits = regexp.MustCompile(`^\d+`)
	stray         = strings.NewReplacer("(", "", ")", "")
)

// StripParentheticals removes every "(...)" span and trims the result.
// "Jane Doe (Translator)" becomes "Jane Doe". Nested spans are peeled from
// the inside out and unmatched parentheses are dropped.
func StripParentheticals(s string) string {
	for {
		next := parenthetical.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(stray.Replace(s))
}

// SplitAuthors splits a comma separated author line, strips annotations from
// each fragment and drops empty and repeated names while keeping order.
func SplitAuthors(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name := CollapseSpace(StripParentheticals(part))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// CollapseSpace trims s and folds internal whitespace runs into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sanitize keeps letters, digits, space, period, underscore and hyphen and
// drops every other character. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keep(r rune) bool {
	switch r {
	case ' ', '.', '_', '-':
		return true
	}
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// FileStem turns a title into a usable file stem: sanitized, trimmed,
// bounded in length, and never empty.
func FileStem(title string) string {
	stem := strings.TrimSpace(Sanitize(title))
	if len(stem) > maxStemBytes {
		cut := maxStemBytes
		for cut > 0 && !utf8.RuneStart(stem[cut]) {
			cut--
		}
		stem = strings.TrimSpace(stem[:cut])
	}
	if strings.Trim(stem, ".") == "" {
		return fallbackStem
	}
	return stem
}

// LeadingInt parses the run of digits at the start of s ("320\n" -> 320,
// "2004-05" -> 2004). ok is false when s does not start with a digit.
func LeadingInt(s string) (int, bool) {
	digits := leadingDigits.FindString(strings.TrimSpace(s))
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
