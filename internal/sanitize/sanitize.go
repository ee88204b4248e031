// Package sanitize repairs the near-JSON text the inference service returns
// and parses it into structured form. Models wrap payloads in markdown
// fences, cite sources as bracketed number lists, substitute smart quotes,
// leave raw newlines inside string literals, and emit trailing commas.
// Sanitize undoes all of that deterministically, and Parse turns the result
// into a document or a typed ParseError. Neither touches the network.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	citationRe      = regexp.MustCompile(`\[[0-9,\s]+\]`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", `"`,
	"’", `"`,
)

// Sanitize repairs common corruption of an intended JSON object and returns
// text ready for Parse. Steps, in order: strip markdown code fences, drop
// bracketed citation tokens like [12, 34], normalize smart quotes to plain
// double quotes, escape raw newlines occurring inside string literals,
// remove trailing commas before } or ], then keep only the span from the
// first { to the last }, falling back to the cleaned text unchanged when no
// object span exists. Never fails; output is a best effort.
func Sanitize(raw string) string {
	text := stripFences(raw)
	text = citationRe.ReplaceAllString(text, "")
	text = quoteReplacer.Replace(text)
	text = escapeNewlinesInStrings(text)
	text = trailingCommaRe.ReplaceAllString(text, "$1")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return repairTruncated(text[start : end+1])
}

// stripFences removes a leading markdown code fence (optionally tagged json)
// and everything after its closing fence. Idempotent: text without a leading
// fence passes through untouched.
func stripFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// escapeNewlinesInStrings rewrites raw newlines inside string literals to
// the two-character sequence \n, leaving structural newlines alone. It is a
// character-level scan with three states: outside a string, inside a string,
// and inside a string right after a backslash.
func escapeNewlinesInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escape {
			escape = false
			b.WriteByte(c)
			continue
		}

		switch {
		case inString && c == '\\':
			escape = true
			b.WriteByte(c)
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case inString && c == '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// repairTruncated closes any unclosed braces or brackets at the end of a
// payload cut off mid-document (max-token truncation). Balanced input passes
// through unchanged.
func repairTruncated(text string) string {
	if len(text) == 0 {
		return text
	}

	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// Close unclosed delimiters in reverse order, trimming any dangling
	// comma first.
	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}

	return text
}
