package file

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Matcher is the part of a Logs Insights query a local file can honor:
// "filter ... like /re/" or "like 'text'" clauses and "limit N". A query
// without pipes or commands is a case-insensitive substring search; empty
// or "*" matches everything.
type Matcher struct {
	substr string
	res    []*regexp.Regexp
	limit  int
}

var (
	reLike     = regexp.MustCompile(`(?i)\blike\s+(/(?:[^/\\]|\\.)*/|"[^"]*"|'[^']*')`)
	reLimit    = regexp.MustCompile(`(?i)\|\s*limit\s+(\d+)`)
	reCommands = regexp.MustCompile(`(?i)^\s*(fields|filter|stats|sort|limit|parse|display|dedup|unmask|pattern)\b`)
)

func Compile(text string) (*Matcher, error) {
	text = strings.TrimSpace(text)
	m := &Matcher{}
	if text == "" || text == "*" {
		return m, nil
	}
	if !strings.Contains(text, "|") && !reCommands.MatchString(text) {
		m.substr = strings.ToLower(text)
		return m, nil
	}
	for _, g := range reLike.FindAllStringSubmatch(text, -1) {
		lit := g[1]
		body := lit[1 : len(lit)-1]
		var pattern string
		if lit[0] == '/' {
			pattern = "(?i)" + body
		} else {
			pattern = "(?i)" + regexp.QuoteMeta(body)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", lit, err)
		}
		m.res = append(m.res, re)
	}
	if g := reLimit.FindStringSubmatch(text); g != nil {
		m.limit, _ = strconv.Atoi(g[1])
	}
	return m, nil
}

func (m *Matcher) Match(line string) bool {
	if m.substr != "" && !strings.Contains(strings.ToLower(line), m.substr) {
		return false
	}
	for _, re := range m.res {
		if !re.MatchString(line) {
			return false
		}
	}
	return true
}

func (m *Matcher) LimitReached(n int) bool { return m.limit > 0 && n >= m.limit }
