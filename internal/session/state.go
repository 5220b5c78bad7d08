package session

import (
	"fmt"
	"strings"
)

type State int

const (
	Idle State = iota
	Submitting
	Running
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Active reports whether a query is in flight.
func (s State) Active() bool { return s == Submitting || s == Running }

// canMove lists the only transitions a session accepts.
func canMove(from, to State) bool {
	switch from {
	case Idle:
		return to == Submitting
	case Submitting:
		return to == Running || to == Failed || to == Cancelled
	case Running:
		return to.Terminal()
	}
	return false
}

// CarryOver decides what survives a new submission within the same profile.
// A profile switch always resets.
type CarryOver int

const (
	// CarryFiltersAndColumns keeps filter rules and the column layout, for
	// re-running the same search over another time range.
	CarryFiltersAndColumns CarryOver = iota
	// CarryNone starts every submission with no rules and discovered columns.
	CarryNone
)

func (c CarryOver) String() string {
	if c == CarryNone {
		return "reset"
	}
	return "keep"
}

func ParseCarryOver(s string) (CarryOver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep", "carry", "filters":
		return CarryFiltersAndColumns, nil
	case "reset", "none":
		return CarryNone, nil
	}
	return CarryFiltersAndColumns, fmt.Errorf("carry-over %q: want keep or reset", s)
}
