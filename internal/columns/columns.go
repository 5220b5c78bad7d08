// Package columns tracks which row fields are displayed and in what order.
// It knows nothing about rows beyond their field names, so changing the
// projection never affects stored rows or the filter.
package columns

import (
	"errors"
	"fmt"

	"cwinsights/internal/model"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrLastColumn    = errors.New("at least one column must stay visible")
)

// Hidden fields are never offered as columns.
var skip = map[string]bool{"@ptr": true}

// Preferred columns are placed at the front when first discovered, in this order.
var preferred = []string{"@timestamp", "@logStream", "level", "@message"}

type Projector struct {
	order  []string
	hidden map[string]bool
	known  map[string]bool
}

func New() *Projector {
	return &Projector{hidden: map[string]bool{}, known: map[string]bool{}}
}

// Discover adds names that have not been seen before. New non-preferred
// names go to the end; a new preferred name is inserted after the leading run
// of preferred columns that rank before it. Existing columns never move, so a
// layout arranged with Move survives later discoveries. Returns true when the
// column set changed.
func (p *Projector) Discover(names []string) bool {
	changed := false
	for _, n := range names {
		if n == "" || skip[n] || p.known[n] {
			continue
		}
		p.known[n] = true
		p.insert(n)
		changed = true
	}
	return changed
}

func (p *Projector) insert(n string) {
	r := rank(n)
	if r == len(preferred) {
		p.order = append(p.order, n)
		return
	}
	at := 0
	for at < len(p.order) && rank(p.order[at]) < r {
		at++
	}
	p.order = append(p.order, "")
	copy(p.order[at+1:], p.order[at:])
	p.order[at] = n
}

func rank(n string) int {
	for i, pn := range preferred {
		if pn == n {
			return i
		}
	}
	return len(preferred)
}

// All returns every known column in display order, hidden ones included.
func (p *Projector) All() []string { return append([]string(nil), p.order...) }

func (p *Projector) Visible() []string {
	out := make([]string, 0, len(p.order))
	for _, n := range p.order {
		if !p.hidden[n] {
			out = append(out, n)
		}
	}
	return out
}

func (p *Projector) IsVisible(name string) bool { return p.known[name] && !p.hidden[name] }

func (p *Projector) Show(name string) error {
	if !p.known[name] {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	delete(p.hidden, name)
	return nil
}

func (p *Projector) Hide(name string) error {
	if !p.known[name] {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	if p.hidden[name] {
		return nil
	}
	if len(p.Visible()) <= 1 {
		return ErrLastColumn
	}
	p.hidden[name] = true
	return nil
}

func (p *Projector) Toggle(name string) error {
	if p.hidden[name] {
		return p.Show(name)
	}
	return p.Hide(name)
}

// Move shifts a column delta positions, clamped to the ends.
func (p *Projector) Move(name string, delta int) error {
	idx := -1
	for i, n := range p.order {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	to := idx + delta
	if to < 0 {
		to = 0
	}
	if to >= len(p.order) {
		to = len(p.order) - 1
	}
	if to == idx {
		return nil
	}
	n := p.order[idx]
	p.order = append(p.order[:idx], p.order[idx+1:]...)
	p.order = append(p.order[:to], append([]string{n}, p.order[to:]...)...)
	return nil
}

// Project returns the visible cells of row; missing fields are blank.
func (p *Projector) Project(row model.Row) []string {
	cols := p.Visible()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i], _ = row.Get(c)
	}
	return out
}

func (p *Projector) Reset() {
	p.order = nil
	p.hidden = map[string]bool{}
	p.known = map[string]bool{}
}
