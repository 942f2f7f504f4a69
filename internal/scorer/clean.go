package scorer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	fencePattern       = regexp.MustCompile("^```(?:json)?|```$")
	boilerplatePattern = regexp.MustCompile(`독자(들이|가)?`)
)

// CleanResponse normalizes a raw completion before it is persisted: code
// fences stripped, provider boilerplate wording removed, dollar signs
// escaped for the downstream renderer.
func CleanResponse(raw string) string {
	cleaned := fencePattern.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = stripBoilerplate(cleaned)
	if strings.Contains(cleaned, "$") {
		cleaned = strings.ReplaceAll(cleaned, "$", `\$`)
	}
	return cleaned
}

// stripBoilerplate removes standalone 독자/독자가/독자들이. The engine has
// no Unicode-aware \b, so word boundaries are checked on the runes around
// each candidate; occurrences embedded in longer words stay intact.
func stripBoilerplate(s string) string {
	matches := boilerplatePattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(before) || isWordRune(after) {
			continue
		}
		b.WriteString(s[last:start])
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
