package bibliography

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	entryStartPattern = regexp.MustCompile(`@(\w+)\s*\{\s*([^,\s]+)\s*,`)
	authorSeparator   = regexp.MustCompile(`\s+and\s+`)
)

// bibEntry is one parsed @type{key, ...} record with lower-cased field names.
type bibEntry struct {
	Type   string
	Key    string
	Fields map[string]string
}

// parseBibTeX extracts entries from BibTeX source. Malformed trailing
// entries are dropped; @string, @comment and @preamble blocks are skipped.
func parseBibTeX(src string) []bibEntry {
	var entries []bibEntry
	rest := src
	for {
		loc := entryStartPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			return entries
		}
		kind := strings.ToLower(rest[loc[2]:loc[3]])
		key := strings.TrimSpace(rest[loc[4]:loc[5]])
		bodyStart := loc[1]

		end := matchingBrace(rest, strings.IndexByte(rest[loc[0]:], '{')+loc[0])
		if end < 0 {
			return entries
		}
		switch kind {
		case "string", "comment", "preamble":
		default:
			entries = append(entries, bibEntry{
				Type:   kind,
				Key:    key,
				Fields: parseFields(rest[bodyStart:end]),
			})
		}
		rest = rest[end+1:]
	}
}

// matchingBrace returns the index of the brace closing the one at open.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseFields(body string) map[string]string {
	fields := make(map[string]string)
	i := 0
	for i < len(body) {
		for i < len(body) && (unicode.IsSpace(rune(body[i])) || body[i] == ',') {
			i++
		}
		nameStart := i
		for i < len(body) && body[i] != '=' && body[i] != ',' {
			i++
		}
		if i >= len(body) || body[i] != '=' {
			return fields
		}
		name := strings.ToLower(strings.TrimSpace(body[nameStart:i]))
		i++
		for i < len(body) && unicode.IsSpace(rune(body[i])) {
			i++
		}
		if i >= len(body) {
			return fields
		}

		var value string
		switch body[i] {
		case '{':
			end := matchingBrace(body, i)
			if end < 0 {
				return fields
			}
			value = body[i+1 : end]
			i = end + 1
		case '"':
			end := i + 1
			depth := 0
			for end < len(body) {
				if body[end] == '{' {
					depth++
				} else if body[end] == '}' {
					depth--
				} else if body[end] == '"' && depth == 0 {
					break
				}
				end++
			}
			if end >= len(body) {
				return fields
			}
			value = body[i+1 : end]
			i = end + 1
		default:
			start := i
			for i < len(body) && body[i] != ',' {
				i++
			}
			value = body[start:i]
		}
		if name != "" {
			fields[name] = cleanValue(value)
		}
	}
	return fields
}

// cleanValue drops grouping braces and collapses whitespace.
func cleanValue(v string) string {
	v = strings.NewReplacer("{", "", "}", "").Replace(v)
	return strings.Join(strings.Fields(v), " ")
}

// displayAuthors turns "Doe, Jane and Smith, John" into "Doe, Jane; Smith, John".
func displayAuthors(raw string) string {
	if raw == "" {
		return ""
	}
	parts := authorSeparator.Split(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
