package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder represents a single {{VAR:...}} occurrence with parsed options.
type Placeholder struct {
	Raw     string
	Name    string
	Options map[string]string // e.g., join, default
}

var (
	// Matches {{VAR:name|key=value|key2="quoted value"}}
	// Capture 1 = name, Capture 2 = options (may be empty)
	varPattern = regexp.MustCompile(`\{\{VAR:([a-zA-Z0-9_\-]+)((?:\|[^}]+)?)}}`)
	optPattern = regexp.MustCompile(`\|([^=|]+)=([^|]+)`) // key=value segments
)

// ParsePlaceholders returns all placeholder occurrences in order of appearance.
func ParsePlaceholders(body string) []Placeholder {
	matches := varPattern.FindAllStringSubmatchIndex(body, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, idx := range matches {
		ph := Placeholder{
			Raw:     body[idx[0]:idx[1]],
			Name:    body[idx[2]:idx[3]],
			Options: map[string]string{},
		}
		// idx layout: [fullStart, fullEnd, nameStart, nameEnd, optsStart, optsEnd]
		if len(idx) >= 6 && idx[4] != -1 {
			ph.Options = parseOptions(body[idx[4]:idx[5]])
		}
		out = append(out, ph)
	}
	return out
}

func parseOptions(raw string) map[string]string {
	opts := map[string]string{}
	for _, seg := range optPattern.FindAllStringSubmatch(raw, -1) {
		key := strings.TrimSpace(seg[1])
		val := strings.TrimSpace(seg[2])
		// Trim surrounding quotes if present
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		opts[strings.ToLower(key)] = decodeEscapes(val)
	}
	return opts
}

// Render substitutes every placeholder in body. Values may be strings or
// string slices; slices are joined with the placeholder's join option
// (default a blank line). An empty value falls back to the default option.
// A variable that is neither provided nor defaulted is an error.
func Render(body string, vars map[string]any) (string, error) {
	var (
		b    strings.Builder
		last int
	)
	for _, m := range varPattern.FindAllStringSubmatchIndex(body, -1) {
		b.WriteString(body[last:m[0]])
		last = m[1]

		name := body[m[2]:m[3]]
		opts := map[string]string{}
		if m[4] != -1 {
			opts = parseOptions(body[m[4]:m[5]])
		}
		joinSep, ok := opts["join"]
		if !ok {
			joinSep = "\n\n"
		}
		def, hasDefault := opts["default"]

		var val string
		switch v := vars[name].(type) {
		case nil:
		case string:
			val = v
		case []string:
			val = strings.Join(v, joinSep)
		case fmt.Stringer:
			val = v.String()
		default:
			val = fmt.Sprint(v)
		}

		if val == "" {
			if _, provided := vars[name]; !provided && !hasDefault {
				return "", fmt.Errorf("prompt variable %q is not set", name)
			}
			val = def
		}
		b.WriteString(val)
	}
	b.WriteString(body[last:])
	return b.String(), nil
}

func decodeEscapes(s string) string {
	// Minimal decoding: \n, \t, \r, \\; leave others as-is
	b := strings.Builder{}
	b.Grow(len(s))
	esc := false
	for _, r := range s {
		if !esc {
			if r == '\\' {
				esc = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
		esc = false
	}
	if esc {
		b.WriteByte('\\')
	}
	return b.String()
}
