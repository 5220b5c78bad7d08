package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"cwinsights/internal/ai"
	"cwinsights/internal/query"
	"cwinsights/internal/session"
	"cwinsights/internal/util/logx"
)

// draftSamples caps how many visible rows go along with an AI request.
const draftSamples = 5

func (m *Model) buildHelpItems() []helpItem {
	km := m.keymap
	return []helpItem{
		{group: "Query", text: "Run query", key: km.Submit},
		{group: "Query", text: "Run query", key: km.SubmitAlt},
		{group: "Query", text: "Cancel running query", key: km.Cancel},
		{group: "Query", text: "Next field", key: km.NextField},
		{group: "Query", text: "Previous field", key: km.PrevField},
		{group: "Query", text: "Collapse form", key: km.Collapse},
		{group: "Query", text: "Expand form", key: km.Expand},
		{group: "Query", text: "Edit query", key: km.FocusQuery},
		{group: "Query", text: "Draft query with AI", key: km.Ask},

		{group: "Results", text: "Previous row", key: tea.Key{Type: tea.KeyUp}},
		{group: "Results", text: "Next row", key: tea.Key{Type: tea.KeyDown}},
		{group: "Results", text: "Page up", key: tea.Key{Type: tea.KeyPgUp}},
		{group: "Results", text: "Page down", key: tea.Key{Type: tea.KeyPgDown}},
		{group: "Results", text: "Go to top", key: km.Top},
		{group: "Results", text: "Go to bottom", key: km.Bottom},
		{group: "Results", text: "Row detail", key: km.Detail},
		{group: "Results", text: "Copy row as JSON", key: km.Copy},

		{group: "Filter", text: "Quick filter", key: km.Filter},
		{group: "Filter", text: "Expression filter", key: km.Expression},
		{group: "Filter", text: "Clear filters", key: km.ClearFilter},

		{group: "Views", text: "Columns", key: km.Columns},
		{group: "Views", text: "Profiles", key: km.Profiles},
		{group: "Views", text: "Application logs", key: km.AppLogs},

		{group: "Control", text: "Help", key: km.Help},
		{group: "Control", text: "Quit", key: km.QuitResults},
		{group: "Control", text: "Quit", key: km.Quit},
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.termWidth, m.termHeight = msg.Width, msg.Height
		m.tbl.SetWidth(msg.Width)
		m.refresh()
		if m.modalActive {
			m.resizeModal()
		}
		return m, nil
	case eventMsg:
		m.handleEvent(session.Event(msg))
		return m, waitEvent(m.mgr.Events())
	case eventsEnd:
		return m, nil
	case tickMsg:
		// elapsed time keeps moving while nothing else happens
		if m.view.State.Active() {
			m.refresh()
		}
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case quickMsg:
		if msg.seq == m.quickSeq {
			m.applyQuick()
		}
		return m, nil
	case draftMsg:
		m.drafting = false
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			return m, nil
		}
		m.queryText.SetValue(msg.draft.Query)
		m.lastErr, m.lastMsg = "", msg.draft.Explanation
		m.setCollapsed(false)
		m.setFocus(focusQuery)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	if m.focus == focusQuery {
		var cmd tea.Cmd
		m.queryText, cmd = m.queryText.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleEvent(ev session.Event) {
	cur := m.mgr.Current()
	stale := ev.SessionID != "" && (cur == nil || cur.ID() != ev.SessionID)
	switch ev.Kind {
	case session.EventTransition:
		if stale {
			return
		}
		switch ev.To {
		case session.Failed:
			if ev.Err != nil {
				m.lastErr = ev.Err.Error()
			}
		case session.Succeeded:
			m.lastMsg = "query complete"
		case session.Cancelled:
			m.lastMsg = "query cancelled"
		}
	case session.EventRowsAppended:
		if stale {
			return
		}
		if ev.Rows > 0 && m.autoCollapsed != ev.SessionID {
			m.autoCollapsed = ev.SessionID
			if m.inlineMode == inlineNone && !m.modalActive {
				m.setCollapsed(true)
			}
		}
	case session.EventProfileChanged:
		m.lastMsg = fmt.Sprintf("profile %s", ev.Profile)
	}
	m.refresh()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := m.keymap
	if keyMatches(msg, km.Quit) {
		return m, tea.Quit
	}
	if m.modalActive {
		return m.updateModal(msg)
	}
	if m.inlineMode != inlineNone {
		return m.updateInline(msg)
	}
	switch {
	case keyMatches(msg, km.Submit), keyMatches(msg, km.SubmitAlt):
		return m, m.submit()
	case keyMatches(msg, km.Cancel):
		if m.mgr.Cancel() {
			m.lastMsg = "cancelling"
		}
		return m, nil
	case keyMatches(msg, km.NextField):
		m.cycleFocus(1)
		return m, nil
	case keyMatches(msg, km.PrevField):
		m.cycleFocus(-1)
		return m, nil
	case keyMatches(msg, km.Collapse):
		m.setCollapsed(true)
		return m, nil
	case keyMatches(msg, km.Expand):
		m.setCollapsed(false)
		if m.focus == focusResults {
			m.setFocus(focusQuery)
		}
		return m, nil
	case keyMatches(msg, km.Profiles):
		m.openProfilesModal()
		return m, nil
	case keyMatches(msg, km.Help):
		m.openHelpModal()
		return m, nil
	}
	if m.focus == focusResults {
		return m.updateResults(msg)
	}
	if msg.Type == tea.KeyEsc {
		m.setFocus(focusResults)
		return m, nil
	}
	return m.updateForm(msg)
}

func (m *Model) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := m.keymap
	switch msg.Type {
	case tea.KeyUp:
		m.mgr.MoveSelection(-1)
	case tea.KeyDown:
		m.mgr.MoveSelection(1)
	case tea.KeyPgUp:
		m.mgr.PageSelection(-1)
	case tea.KeyPgDown:
		m.mgr.PageSelection(1)
	case tea.KeyHome:
		m.mgr.SelectFirst()
	case tea.KeyEnd:
		m.mgr.SelectLast()
	default:
		switch {
		case keyMatches(msg, km.QuitResults):
			return m, tea.Quit
		case keyMatches(msg, km.HelpAlt):
			m.openHelpModal()
		case keyMatches(msg, km.Detail):
			m.openDetailModal()
		case keyMatches(msg, km.Top):
			m.mgr.SelectFirst()
		case keyMatches(msg, km.Bottom):
			m.mgr.SelectLast()
		case msg.String() == "k":
			m.mgr.MoveSelection(-1)
		case msg.String() == "j":
			m.mgr.MoveSelection(1)
		case keyMatches(msg, km.Filter):
			m.openInline(inlineFilter)
			return m, nil
		case keyMatches(msg, km.Expression):
			m.openInline(inlineExpr)
			return m, nil
		case keyMatches(msg, km.Ask):
			if !m.ai.Enabled() {
				m.lastErr = "AI drafting is off: set OPENAI_API_KEY"
				return m, nil
			}
			m.openInline(inlineAsk)
			return m, nil
		case keyMatches(msg, km.ClearFilter):
			m.clearFilters()
		case keyMatches(msg, km.Columns):
			m.openColumnsModal()
		case keyMatches(msg, km.AppLogs):
			m.openAppLogsModal()
		case keyMatches(msg, km.Copy):
			if m.view.HasSelection {
				copyToClipboard(m.view.Selected.PrettyJSON())
				m.lastMsg = "row copied to clipboard"
			}
		case keyMatches(msg, km.FocusQuery):
			m.setCollapsed(false)
			m.setFocus(focusQuery)
		}
	}
	m.refresh()
	return m, nil
}

func (m *Model) clearFilters() {
	m.mgr.Filter().Clear()
	_ = m.mgr.SetQuickFilter("")
	m.quick.SetValue("")
	m.lastMsg = "filters cleared"
}

func (m *Model) openInline(mode inlineMode) {
	m.inlineMode = mode
	switch mode {
	case inlineFilter:
		m.quick.SetValue(m.mgr.QuickFilter())
		m.quick.CursorEnd()
		m.quick.Focus()
		return
	case inlineExpr:
		m.input.Placeholder = `status >= 500 && service == "api"`
		m.input.SetValue(m.mgr.Filter().Expression())
	case inlineAsk:
		m.input.Placeholder = "errors per minute for the checkout service"
		m.input.SetValue("")
	}
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) closeInline() {
	m.inlineMode = inlineNone
	m.quick.Blur()
	m.input.Blur()
}

func (m *Model) updateInline(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mode := m.inlineMode
	switch msg.Type {
	case tea.KeyEsc:
		if mode == inlineFilter {
			// typing applied live; esc drops the filter box contents
			m.quick.SetValue("")
			m.quickSeq++
			m.applyQuick()
		}
		m.closeInline()
		m.refresh()
		return m, nil
	case tea.KeyEnter:
		m.closeInline()
		switch mode {
		case inlineFilter:
			m.quickSeq++
			m.applyQuick()
		case inlineExpr:
			if err := m.mgr.Filter().SetExpression(m.input.Value()); err != nil {
				m.lastErr = err.Error()
			} else {
				m.lastErr = ""
			}
		case inlineAsk:
			if cmd := m.draftCmd(m.input.Value()); cmd != nil {
				return m, cmd
			}
		}
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	if mode == inlineFilter {
		before := m.quick.Value()
		m.quick, cmd = m.quick.Update(msg)
		if m.quick.Value() != before {
			m.quickSeq++
			return m, tea.Batch(cmd, debounceQuick(m.quickSeq))
		}
		return m, cmd
	}
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func debounceQuick(seq int) tea.Cmd {
	return tea.Tick(quickFilterDelay, func(time.Time) tea.Msg { return quickMsg{seq: seq} })
}

func (m *Model) applyQuick() {
	text := m.quick.Value()
	if text == m.mgr.QuickFilter() {
		return
	}
	if err := m.mgr.SetQuickFilter(text); err != nil {
		m.lastErr = err.Error()
		return
	}
	m.lastErr = ""
	m.refresh()
}

// draftCmd asks the model for a query in the background.
func (m *Model) draftCmd(ask string) tea.Cmd {
	if strings.TrimSpace(ask) == "" || m.drafting {
		return nil
	}
	req := ai.DraftRequest{
		Ask:       ask,
		Current:   m.queryText.Value(),
		LogGroups: query.SplitLogGroups(m.logGroups.Value()),
		Fields:    m.mgr.Columns().All(),
	}
	for i, r := range m.view.Rows {
		if i == draftSamples {
			break
		}
		req.Samples = append(req.Samples, sampleLine(r))
	}
	m.drafting = true
	m.lastMsg = "drafting query…"
	client, ctx := m.ai, m.ctx
	return func() tea.Msg {
		d, err := client.DraftQuery(ctx, req)
		if err != nil {
			logx.Warnf("ui: draft query: %v", err)
		}
		return draftMsg{draft: d, err: err}
	}
}

func (m *Model) closeModal() {
	m.modalActive = false
	m.modalKind = modalNone
}

func (m *Model) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.closeModal()
		return m, nil
	}
	switch m.modalKind {
	case modalHelp:
		switch {
		case msg.Type == tea.KeyUp:
			if m.helpSel > 0 {
				m.helpSel--
			}
		case msg.Type == tea.KeyDown:
			if m.helpSel+1 < len(m.helpItems) {
				m.helpSel++
			}
		case msg.Type == tea.KeyEnter:
			m.closeModal()
			if len(m.helpItems) > 0 {
				return m, keyCmd(m.helpItems[m.helpSel].key)
			}
		case keyMatches(msg, m.keymap.HelpAlt), keyMatches(msg, m.keymap.QuitResults):
			m.closeModal()
		}
		return m, nil
	case modalColumns:
		return m.updateColumnsModal(msg)
	case modalProfiles:
		switch msg.Type {
		case tea.KeyUp:
			if m.profileSel > 0 {
				m.profileSel--
			}
		case tea.KeyDown:
			if m.profileSel+1 < len(m.profiles) {
				m.profileSel++
			}
		case tea.KeyEnter:
			m.closeModal()
			if m.profileSel < len(m.profiles) {
				m.profileIdx = m.profileSel
				m.switchProfile(m.profiles[m.profileSel])
			}
			return m, nil
		}
		m.modalVP.SetContent(m.renderProfiles())
		return m, nil
	case modalDetail, modalLogs:
		if msg.Type == tea.KeyEnter {
			m.closeModal()
			return m, nil
		}
		if keyMatches(msg, m.keymap.Copy) {
			copyToClipboard(m.detailPlain)
			m.lastMsg = "copied to clipboard"
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.modalVP, cmd = m.modalVP.Update(msg)
	return m, cmd
}

func (m *Model) updateColumnsModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	all := m.mgr.Columns().All()
	if len(all) == 0 {
		if msg.Type == tea.KeyEnter {
			m.closeModal()
		}
		return m, nil
	}
	if m.colSel >= len(all) {
		m.colSel = len(all) - 1
	}
	name := all[m.colSel]
	var err error
	switch msg.String() {
	case "up", "k":
		if m.colSel > 0 {
			m.colSel--
		}
	case "down", "j":
		if m.colSel+1 < len(all) {
			m.colSel++
		}
	case " ", "enter", "x":
		err = m.mgr.Columns().Toggle(name)
	case "K", "shift+up":
		if err = m.mgr.Columns().Move(name, -1); err == nil && m.colSel > 0 {
			m.colSel--
		}
	case "J", "shift+down":
		if err = m.mgr.Columns().Move(name, 1); err == nil && m.colSel+1 < len(all) {
			m.colSel++
		}
	case "h", "q":
		m.closeModal()
	}
	if err != nil {
		m.lastErr = err.Error()
	}
	m.modalVP.SetContent(m.renderColumns())
	m.refresh()
	return m, nil
}
