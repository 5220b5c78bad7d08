package ui

import "github.com/charmbracelet/lipgloss"

type Styles struct {
	Base        lipgloss.Style
	Status      lipgloss.Style
	Error       lipgloss.Style
	Label       lipgloss.Style
	LabelActive lipgloss.Style
	Field       lipgloss.Style
	Help        lipgloss.Style
	State       map[string]lipgloss.Style
	TableStyles TableStyles
	PopupBox    lipgloss.Style
	PopupTitle  lipgloss.Style

	JSONKey    lipgloss.Style
	JSONString lipgloss.Style
	JSONNumber lipgloss.Style
	JSONBool   lipgloss.Style
	JSONNull   lipgloss.Style
	JSONPunct  lipgloss.Style
}

type TableStyles struct {
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Selected lipgloss.Style
}

func NewStyles(dark bool) Styles {
	s := Styles{}
	if dark {
		s.Base = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		s.Status = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		s.Label = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		s.LabelActive = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
		s.Help = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		s.PopupBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2)
		s.PopupTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
		s.JSONKey = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
		s.JSONString = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
		s.JSONNumber = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
		s.JSONBool = lipgloss.NewStyle().Foreground(lipgloss.Color("176"))
		s.JSONNull = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
		s.JSONPunct = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	} else {
		s.Base = lipgloss.NewStyle()
		s.Status = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		s.Label = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		s.LabelActive = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("27"))
		s.Help = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		s.PopupBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("12")).Padding(1, 2)
		s.PopupTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("27"))
		s.JSONKey = lipgloss.NewStyle().Foreground(lipgloss.Color("25"))
		s.JSONString = lipgloss.NewStyle().Foreground(lipgloss.Color("28"))
		s.JSONNumber = lipgloss.NewStyle().Foreground(lipgloss.Color("130"))
		s.JSONBool = lipgloss.NewStyle().Foreground(lipgloss.Color("90"))
		s.JSONNull = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		s.JSONPunct = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
	s.Error = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	s.Field = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).PaddingLeft(1)
	s.State = map[string]lipgloss.Style{
		"idle":       lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		"submitting": lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"running":    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"succeeded":  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"failed":     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		"cancelled":  lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}
	s.TableStyles = TableStyles{
		Header:   lipgloss.NewStyle().Bold(true).PaddingRight(1),
		Cell:     lipgloss.NewStyle().PaddingRight(1),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")),
	}
	return s
}
