package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cwinsights/internal/query"
)

// visible reports whether f is shown in the form right now.
func (m *Model) visible(f focus) bool {
	switch f {
	case focusRelative:
		return m.relative && !m.collapsed
	case focusFrom, focusTo:
		return !m.relative && !m.collapsed
	case focusResults:
		return true
	}
	return !m.collapsed
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.region.Blur()
	m.logGroups.Blur()
	m.from.Blur()
	m.to.Blur()
	m.queryText.Blur()
	m.tbl.Blur()
	switch f {
	case focusRegion:
		m.region.Focus()
	case focusLogGroup:
		m.logGroups.Focus()
	case focusFrom:
		m.from.Focus()
	case focusTo:
		m.to.Focus()
	case focusQuery:
		m.queryText.Focus()
	case focusResults:
		m.tbl.Focus()
	}
}

func (m *Model) cycleFocus(delta int) {
	f := m.focus
	for i := 0; i < int(focusCount); i++ {
		f = (f + focus(delta) + focusCount) % focusCount
		if m.visible(f) {
			m.setFocus(f)
			return
		}
	}
}

func (m *Model) setCollapsed(c bool) {
	m.collapsed = c
	if c && m.focus != focusResults {
		m.setFocus(focusResults)
	}
	m.refresh()
}

// typing reports whether printable keys go to a text field.
func (m *Model) typing() bool {
	if m.inlineMode != inlineNone {
		return true
	}
	switch m.focus {
	case focusRegion, focusLogGroup, focusFrom, focusTo, focusQuery:
		return true
	}
	return false
}

// buildInput reads the form. The range is resolved against now.
func (m *Model) buildInput() (query.Input, error) {
	in := query.Input{
		Text:      m.queryText.Value(),
		LogGroups: query.SplitLogGroups(m.logGroups.Value()),
	}
	if m.relative {
		in.Range = query.RelativeOptions[m.relIdx].Range(m.mgr.Now())
		return in, nil
	}
	rng, err := query.AbsoluteRange(m.from.Value(), m.to.Value(), nil)
	if err != nil {
		return in, err
	}
	in.Range = rng
	return in, nil
}

func (m *Model) submit() tea.Cmd {
	in, err := m.buildInput()
	if err != nil {
		m.lastErr = err.Error()
		return nil
	}
	if r := strings.TrimSpace(m.region.Value()); r != "" {
		m.mgr.SetRegion(r)
	}
	if _, err := m.mgr.Submit(m.ctx, in); err != nil {
		m.lastErr = err.Error()
		return nil
	}
	m.lastErr, m.lastMsg = "", ""
	m.autoCollapsed = ""
	if m.mgr.QuickFilter() == "" {
		m.quick.SetValue("")
	}
	m.refresh()
	return nil
}

// toggleRelative switches between a relative window and absolute from/to
// fields, prefilled with the window it replaces.
func (m *Model) toggleRelative() {
	if m.relative {
		rng := query.RelativeOptions[m.relIdx].Range(m.mgr.Now())
		m.from.SetValue(query.FormatTime(rng.Start, nil))
		m.to.SetValue(query.FormatTime(rng.End, nil))
	}
	m.relative = !m.relative
}

func (m *Model) moveRelative(delta int) {
	n := len(query.RelativeOptions)
	m.relIdx = (m.relIdx + delta + n) % n
}

func (m *Model) moveProfile(delta int) {
	if len(m.profiles) == 0 {
		return
	}
	n := len(m.profiles)
	m.profileIdx = (m.profileIdx + delta + n) % n
	m.switchProfile(m.profiles[m.profileIdx])
}

func (m *Model) switchProfile(name string) {
	if name == m.mgr.Profile() {
		return
	}
	m.mgr.SwitchProfile(name)
	m.quick.SetValue("")
	m.lastMsg = fmt.Sprintf("profile %s", name)
	m.refresh()
}

// updateForm handles keys while a form field has focus.
func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusProfile:
		switch msg.Type {
		case tea.KeyLeft, tea.KeyUp:
			m.moveProfile(-1)
		case tea.KeyRight, tea.KeyDown:
			m.moveProfile(1)
		case tea.KeyEnter:
			return m, m.submit()
		}
		return m, nil
	case focusTimeMode:
		switch msg.Type {
		case tea.KeyEnter, tea.KeySpace, tea.KeyLeft, tea.KeyRight, tea.KeyUp, tea.KeyDown:
			m.toggleRelative()
		}
		return m, nil
	case focusRelative:
		switch msg.Type {
		case tea.KeyLeft, tea.KeyUp:
			m.moveRelative(-1)
		case tea.KeyRight, tea.KeyDown:
			m.moveRelative(1)
		case tea.KeyEnter:
			return m, m.submit()
		}
		return m, nil
	case focusQuery:
		var cmd tea.Cmd
		m.queryText, cmd = m.queryText.Update(msg)
		return m, cmd
	}

	if msg.Type == tea.KeyEnter {
		return m, m.submit()
	}
	var cmd tea.Cmd
	switch m.focus {
	case focusRegion:
		m.region, cmd = m.region.Update(msg)
	case focusLogGroup:
		m.logGroups, cmd = m.logGroups.Update(msg)
	case focusFrom:
		m.from, cmd = m.from.Update(msg)
	case focusTo:
		m.to, cmd = m.to.Update(msg)
	}
	return m, cmd
}

func (m *Model) label(f focus) string {
	if m.focus == f {
		return m.styles.LabelActive.Render(f.label())
	}
	return m.styles.Label.Render(f.label())
}

func (m *Model) renderForm() string {
	if m.collapsed {
		q := strings.Join(strings.Fields(m.queryText.Value()), " ")
		line := fmt.Sprintf("%s  %s  %s  %s", m.mgr.Region(), m.profileName(), m.logGroups.Value(), m.rangeLabel())
		return m.styles.Help.Render(truncateRunes(line+"  | "+q, max(10, m.termWidth-1)))
	}
	w := max(20, m.termWidth-2)
	m.logGroups.Width = max(10, w/2)
	m.queryText.SetWidth(w - 2)

	profile := m.profileName()
	if m.focus == focusProfile {
		profile = "‹ " + profile + " ›"
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		m.label(focusRegion)+" "+m.region.View()+"  ",
		m.label(focusProfile)+" "+profile+"  ",
		m.label(focusLogGroup)+" "+m.logGroups.View(),
	)

	mode := "relative"
	if !m.relative {
		mode = "absolute"
	}
	timeLine := m.label(focusTimeMode) + " " + mode + "  "
	if m.relative {
		opt := query.RelativeOptions[m.relIdx].Label
		if m.focus == focusRelative {
			opt = "‹ " + opt + " ›"
		}
		timeLine += m.label(focusRelative) + " " + opt
	} else {
		timeLine += m.label(focusFrom) + " " + m.from.View() + "  " + m.label(focusTo) + " " + m.to.View()
	}

	q := m.label(focusQuery) + "\n" + m.styles.Field.Render(m.queryText.View())
	return lipgloss.JoinVertical(lipgloss.Left, top, timeLine, q)
}

func (m *Model) profileName() string {
	if p := m.mgr.Profile(); p != "" {
		return p
	}
	return "(default chain)"
}

func (m *Model) rangeLabel() string {
	if m.relative {
		return "last " + query.RelativeOptions[m.relIdx].Label
	}
	return m.from.Value() + " → " + m.to.Value()
}
