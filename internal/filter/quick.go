package filter

import "strings"

// ParseQuick turns filter-box text into rules.
//
//	error          include rows containing "error" in any field
//	+error         same
//	-health        exclude rows containing "health" in any field
//	level:warn     include rows whose level field contains "warn"
//	-level:debug   exclude rows whose level field contains "debug"
//	msg:"a b"      double quotes keep spaces in a pattern
func ParseQuick(text string) []Rule {
	var rules []Rule
	for _, tok := range splitTokens(text) {
		mode := Include
		switch {
		case strings.HasPrefix(tok, "+"):
			tok = tok[1:]
		case strings.HasPrefix(tok, "-"):
			mode = Exclude
			tok = tok[1:]
		}
		field := AnyField
		if name, pat, ok := strings.Cut(tok, ":"); ok && name != "" && pat != "" {
			field, tok = name, pat
		}
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		rules = append(rules, Rule{Field: field, Mode: mode, Pattern: tok})
	}
	return rules
}

func splitTokens(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuote && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ' ' || c == '\t' || c == '\n'):
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}
