package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"cwinsights/internal/model"
	"cwinsights/internal/store"
)

type Mode int

const (
	Include Mode = iota
	Exclude
)

func (m Mode) String() string {
	switch m {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "include", "+":
		return Include, nil
	case "exclude", "-":
		return Exclude, nil
	}
	return 0, fmt.Errorf("unknown filter mode %q", s)
}

var (
	ErrEmptyPattern = errors.New("filter pattern is empty")
	ErrInvalidMode  = errors.New("invalid filter mode")
	ErrBadPattern   = errors.New("filter pattern contains a NUL byte")
)

// AnyField makes a rule match against every value of the row.
const AnyField = ""

// Rule is one include/exclude predicate. Matching is a case-insensitive
// substring test.
type Rule struct {
	Field   string
	Mode    Mode
	Pattern string
}

func (r Rule) Validate() error {
	if r.Mode != Include && r.Mode != Exclude {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(r.Mode))
	}
	if r.Pattern == "" {
		return ErrEmptyPattern
	}
	if strings.Contains(r.Pattern, model.TextSep) {
		return ErrBadPattern
	}
	return nil
}

// Passes reports whether row survives the rule. A field missing from the row
// never matches: include rules hide the row, exclude rules keep it.
func (r Rule) Passes(row model.Row) bool {
	return passes(r, strings.ToLower(r.Pattern), row)
}

func passes(r Rule, lowered string, row model.Row) bool {
	var text string
	if r.Field == AnyField {
		text = row.Text()
	} else {
		v, ok := row.Get(r.Field)
		if !ok {
			return r.Mode == Exclude
		}
		text = strings.ToLower(v)
	}
	hit := strings.Contains(text, lowered)
	if r.Mode == Include {
		return hit
	}
	return !hit
}

func (r Rule) String() string {
	prefix := "+"
	if r.Mode == Exclude {
		prefix = "-"
	}
	pat := r.Pattern
	if strings.ContainsAny(pat, " \t\n\"") {
		pat = quote(pat)
	}
	if r.Field == AnyField {
		return prefix + pat
	}
	return prefix + r.Field + ":" + pat
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Engine computes the visible subsequence of a store snapshot. Rule and
// expression changes only bump a version; the work happens on the next call
// to Visible. An Engine is not safe for concurrent use.
type Engine struct {
	rules    []Rule
	lowered  []string
	exprText string
	expr     *govaluate.EvaluableExpression
	version  uint64

	cache cache
}

type cache struct {
	valid        bool
	storeID      uint64
	storeVersion uint64
	storeLen     int
	ruleVersion  uint64
	visible      []model.Row
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) AddRule(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.rules = append(e.rules, r)
	e.lowered = append(e.lowered, strings.ToLower(r.Pattern))
	e.version++
	return nil
}

// RemoveRule removes the first rule equal to r.
func (e *Engine) RemoveRule(r Rule) bool {
	for i := range e.rules {
		if e.rules[i] == r {
			e.rules = append(e.rules[:i:i], e.rules[i+1:]...)
			e.lowered = append(e.lowered[:i:i], e.lowered[i+1:]...)
			e.version++
			return true
		}
	}
	return false
}

// SetRules replaces the rule list. Invalid rules are rejected as a whole.
func (e *Engine) SetRules(rules []Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r, err)
		}
	}
	e.rules = append([]Rule(nil), rules...)
	e.lowered = make([]string, len(rules))
	for i, r := range rules {
		e.lowered[i] = strings.ToLower(r.Pattern)
	}
	e.version++
	return nil
}

func (e *Engine) Rules() []Rule { return append([]Rule(nil), e.rules...) }

// Clear drops every rule and the expression.
func (e *Engine) Clear() {
	e.rules, e.lowered = nil, nil
	e.expr, e.exprText = nil, ""
	e.version++
}

// SetExpression installs a govaluate boolean expression that rows must also
// satisfy. Field names that are not identifiers can be written as [@message].
// An empty expression removes it.
func (e *Engine) SetExpression(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		e.expr, e.exprText = nil, ""
		e.version++
		return nil
	}
	expr, err := govaluate.NewEvaluableExpression(text)
	if err != nil {
		return fmt.Errorf("filter expression: %w", err)
	}
	e.expr, e.exprText = expr, text
	e.version++
	return nil
}

func (e *Engine) Expression() string { return e.exprText }

// Version changes whenever the rule set or expression changes.
func (e *Engine) Version() uint64 { return e.version }

func (e *Engine) Active() bool { return len(e.rules) > 0 || e.expr != nil }

// Match reports whether row passes every rule and the expression.
func (e *Engine) Match(row model.Row) bool {
	for i, r := range e.rules {
		if !passes(r, e.lowered[i], row) {
			return false
		}
	}
	if e.expr != nil {
		return e.evalExpr(row)
	}
	return true
}

func (e *Engine) evalExpr(row model.Row) bool {
	params := make(map[string]any, len(row.Fields)+1)
	for _, f := range row.Fields {
		if _, dup := params[f.Name]; dup {
			continue
		}
		if n, err := strconv.ParseFloat(f.Value, 64); err == nil {
			params[f.Name] = n
		} else {
			params[f.Name] = f.Value
		}
	}
	params["seq"] = float64(row.Seq)
	result, err := e.expr.Evaluate(params)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

// Visible returns the rows of snap that pass the filter, in sequence order.
// The result is memoized; when only the store has grown since the last call
// just the new rows are evaluated. The returned slice must not be modified.
func (e *Engine) Visible(snap store.Snapshot) []model.Row {
	c := &e.cache
	if c.valid && c.storeID == snap.StoreID() && c.ruleVersion == e.version {
		if c.storeVersion == snap.Version() {
			return c.visible[:len(c.visible):len(c.visible)]
		}
		if snap.Len() >= c.storeLen {
			rows := snap.Rows()
			c.visible = e.appendMatching(c.visible, rows[c.storeLen:])
			c.storeVersion, c.storeLen = snap.Version(), snap.Len()
			return c.visible[:len(c.visible):len(c.visible)]
		}
	}
	rows := snap.Rows()
	var visible []model.Row
	if !e.Active() {
		visible = rows
	} else {
		visible = e.appendMatching(make([]model.Row, 0, len(rows)), rows)
	}
	*c = cache{
		valid:        true,
		storeID:      snap.StoreID(),
		storeVersion: snap.Version(),
		storeLen:     snap.Len(),
		ruleVersion:  e.version,
		visible:      visible,
	}
	return visible[:len(visible):len(visible)]
}

func (e *Engine) appendMatching(dst, rows []model.Row) []model.Row {
	if !e.Active() {
		return append(dst, rows...)
	}
	for _, r := range rows {
		if e.Match(r) {
			dst = append(dst, r)
		}
	}
	return dst
}
