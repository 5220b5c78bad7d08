package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cwinsights/internal/ai"
	"cwinsights/internal/session"
)

// focus is the form field or pane receiving keys, in tab order.
type focus int

const (
	focusRegion focus = iota
	focusProfile
	focusLogGroup
	focusTimeMode
	focusRelative
	focusFrom
	focusTo
	focusQuery
	focusResults
	focusCount
)

func (f focus) label() string {
	switch f {
	case focusRegion:
		return "Region"
	case focusProfile:
		return "Profile"
	case focusLogGroup:
		return "Log groups"
	case focusTimeMode:
		return "Time"
	case focusRelative:
		return "Last"
	case focusFrom:
		return "From"
	case focusTo:
		return "To"
	case focusQuery:
		return "Query"
	}
	return "Results"
}

type modalKind int

const (
	modalNone modalKind = iota
	modalHelp
	modalDetail
	modalColumns
	modalProfiles
	modalLogs
)

type inlineMode int

const (
	inlineNone inlineMode = iota
	inlineFilter
	inlineExpr
	inlineAsk
)

// quickFilterDelay debounces filter-box typing.
const quickFilterDelay = 80 * time.Millisecond

type (
	eventMsg  session.Event
	eventsEnd struct{}
	tickMsg   struct{}
	// quickMsg fires after typing pauses; stale ones carry an old seq.
	quickMsg struct{ seq int }
	draftMsg struct {
		draft ai.Draft
		err   error
	}
)

type helpItem struct {
	group string
	text  string
	key   tea.Key
}

func waitEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsEnd{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}
