package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type KeyMap struct {
	Submit      tea.Key
	SubmitAlt   tea.Key
	Cancel      tea.Key
	Quit        tea.Key
	NextField   tea.Key
	PrevField   tea.Key
	Collapse    tea.Key
	Expand      tea.Key
	Profiles    tea.Key
	Help        tea.Key
	HelpAlt     tea.Key
	QuitResults tea.Key
	Detail      tea.Key
	Filter      tea.Key
	Expression  tea.Key
	ClearFilter tea.Key
	Columns     tea.Key
	Top         tea.Key
	Bottom      tea.Key
	AppLogs     tea.Key
	Ask         tea.Key
	Copy        tea.Key
	FocusQuery  tea.Key
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit:      tea.Key{Type: tea.KeyCtrlR},
		SubmitAlt:   tea.Key{Type: tea.KeyF5},
		Cancel:      tea.Key{Type: tea.KeyCtrlX},
		Quit:        tea.Key{Type: tea.KeyCtrlC},
		NextField:   tea.Key{Type: tea.KeyTab},
		PrevField:   tea.Key{Type: tea.KeyShiftTab},
		Collapse:    tea.Key{Type: tea.KeyCtrlUp},
		Expand:      tea.Key{Type: tea.KeyCtrlDown},
		Profiles:    tea.Key{Type: tea.KeyCtrlP},
		Help:        tea.Key{Type: tea.KeyF1},
		HelpAlt:     tea.Key{Type: tea.KeyRunes, Runes: []rune{'?'}},
		QuitResults: tea.Key{Type: tea.KeyRunes, Runes: []rune{'q'}},
		Detail:      tea.Key{Type: tea.KeyEnter},
		Filter:      tea.Key{Type: tea.KeyRunes, Runes: []rune{'/'}},
		Expression:  tea.Key{Type: tea.KeyRunes, Runes: []rune{'='}},
		ClearFilter: tea.Key{Type: tea.KeyRunes, Runes: []rune{'F'}},
		Columns:     tea.Key{Type: tea.KeyRunes, Runes: []rune{'h'}},
		Top:         tea.Key{Type: tea.KeyRunes, Runes: []rune{'g'}},
		Bottom:      tea.Key{Type: tea.KeyRunes, Runes: []rune{'G'}},
		AppLogs:     tea.Key{Type: tea.KeyRunes, Runes: []rune{'L'}},
		Ask:         tea.Key{Type: tea.KeyRunes, Runes: []rune{'i'}},
		Copy:        tea.Key{Type: tea.KeyRunes, Runes: []rune{'c'}},
		FocusQuery:  tea.Key{Type: tea.KeyRunes, Runes: []rune{'e'}},
	}
}

func keyMatches(msg tea.KeyMsg, k tea.Key) bool {
	if k.Type != tea.KeyRunes {
		return msg.Type == k.Type
	}
	if len(k.Runes) > 0 {
		return msg.String() == string(k.Runes)
	}
	return false
}

func keyLabel(k tea.Key) string {
	switch k.Type {
	case tea.KeyRunes:
		if len(k.Runes) == 1 && k.Runes[0] == ' ' {
			return "space"
		}
		return string(k.Runes)
	case tea.KeyEnter:
		return "enter"
	case tea.KeyEsc:
		return "esc"
	case tea.KeyTab:
		return "tab"
	case tea.KeyShiftTab:
		return "shift-tab"
	}
	return strings.ToLower(k.String())
}

func keyCmd(k tea.Key) tea.Cmd {
	return func() tea.Msg {
		if k.Type == tea.KeyRunes {
			return tea.KeyMsg{Type: k.Type, Runes: k.Runes}
		}
		return tea.KeyMsg{Type: k.Type}
	}
}
