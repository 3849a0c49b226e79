package validate

import "strings"

// StripControl removes ASCII control characters from s, keeping tab,
// newline and carriage return. IDs are never passed through sanitizers;
// they are validated, not rewritten.
func StripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeHTML escapes the characters that allow markup injection when a
// stored value is later rendered into HTML.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// EscapeSQL doubles single quotes for contexts that interpolate into SQL
// string literals. Repository code uses bound parameters and never needs
// this; it exists for operator-facing export paths.
func EscapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
