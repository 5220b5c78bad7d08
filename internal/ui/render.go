package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"cwinsights/internal/model"
	"cwinsights/internal/util/logx"
)

const (
	maxColWidth = 48
	minColWidth = 4
)

var cellReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

func (m *Model) View() string {
	v := lipgloss.JoinVertical(lipgloss.Left,
		m.renderForm(),
		m.tbl.View(),
		m.renderBottom(),
		m.renderStatus(),
	)
	if m.modalActive {
		dimmed := lipgloss.NewStyle().Faint(true).Render(v)
		v = overlay(dimmed, m.renderModal())
	}
	return v
}

// tableHeight is the number of result rows that fit under the form.
func (m *Model) tableHeight() int {
	// header, inline line, status line
	h := m.termHeight - lipgloss.Height(m.renderForm()) - 3
	if h < 1 {
		h = 1
	}
	return h
}

// refresh pulls a new frame from the manager into the table.
func (m *Model) refresh() {
	h := m.tableHeight()
	m.view = m.mgr.View(h)

	widths := columnWidths(m.view.Columns, m.view.Cells, m.termWidth)
	cols := make([]table.Column, len(m.view.Columns))
	for i, c := range m.view.Columns {
		cols[i] = table.Column{Title: c, Width: widths[i]}
	}
	rows := make([]table.Row, len(m.view.Cells))
	for i, cells := range m.view.Cells {
		r := make(table.Row, len(cells))
		for j, c := range cells {
			r[j] = cellReplacer.Replace(c)
		}
		rows[i] = r
	}
	// columns may shrink: clear rows first so the table never indexes a
	// missing column
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(cols)
	m.tbl.SetRows(rows)
	m.tbl.SetHeight(h + 1)
	if m.view.HasSelection {
		m.tbl.SetCursor(m.view.Viewport.Selected - m.view.Viewport.Offset)
	}
}

// columnWidths sizes each column to its widest header or cell, capped, and
// gives the last column whatever width is left.
func columnWidths(cols []string, cells [][]string, total int) []int {
	out := make([]int, len(cols))
	for i, c := range cols {
		w := runeLen(c)
		for _, row := range cells {
			if i < len(row) {
				if n := runeLen(cellReplacer.Replace(row[i])); n > w {
					w = n
				}
			}
		}
		out[i] = clampInt(w, minColWidth, maxColWidth)
	}
	if len(out) == 0 {
		return out
	}
	// each cell carries one column of padding
	used := 0
	for _, w := range out[:len(out)-1] {
		used += w + 1
	}
	if rest := total - used - 1; rest > out[len(out)-1] {
		out[len(out)-1] = rest
	}
	return out
}

func (m *Model) renderBottom() string {
	var line string
	switch m.inlineMode {
	case inlineFilter:
		line = m.quick.View() + m.styles.Help.Render("    [enter]=keep [esc]=clear")
	case inlineExpr:
		line = "expr: " + m.input.View() + m.styles.Help.Render("    [enter]=apply [esc]=cancel")
	case inlineAsk:
		line = "ask: " + m.input.View() + m.styles.Help.Render("    [enter]=draft [esc]=cancel")
	default:
		var parts []string
		if q := m.mgr.QuickFilter(); q != "" {
			parts = append(parts, "filter: "+q)
		}
		if e := m.mgr.Filter().Expression(); e != "" {
			parts = append(parts, "expr: "+e)
		}
		if len(parts) > 0 {
			line = m.styles.Help.Render(strings.Join(parts, "  ") + "    [F]=clear")
		}
	}
	if line == "" {
		return strings.Repeat(" ", max(0, m.termWidth))
	}
	return line
}

func (m *Model) renderStatus() string {
	v := m.view
	state := v.State.String()
	if st, ok := m.styles.State[state]; ok {
		state = st.Render(state)
	}
	if v.State.Active() || m.drafting {
		state = m.spin.View() + " " + state
	}
	parts := []string{"[" + state + "]"}
	if v.SessionID != "" {
		parts = append(parts, formatElapsed(v.Elapsed))
		rows := fmt.Sprintf("rows %s", humanize.Comma(int64(v.Total)))
		if v.Filtered {
			rows = fmt.Sprintf("rows %s/%s", humanize.Comma(int64(v.Matched)), humanize.Comma(int64(v.Total)))
		}
		if v.Truncated {
			rows += " (truncated)"
		}
		parts = append(parts, rows)
		if v.Stats.RecordsScanned > 0 {
			parts = append(parts, fmt.Sprintf("scanned %s records, %s",
				humanize.Comma(int64(v.Stats.RecordsScanned)),
				humanize.Bytes(uint64(v.Stats.BytesScanned))))
		}
	}
	parts = append(parts, m.profileName()+"@"+m.mgr.Region(), "[F1]=help")
	status := m.styles.Status.Render(strings.Join(parts, " | "))
	if m.lastErr != "" {
		status += " " + m.styles.Error.Render(m.lastErr)
	} else if m.lastMsg != "" {
		status += " " + m.styles.Status.Render(m.lastMsg)
	}
	return status
}

func formatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Truncate(time.Second).String()
}

func (m *Model) openModal(kind modalKind, title, body string) {
	m.modalActive = true
	m.modalKind = kind
	m.modalTitle = title
	m.modalBody = body
	m.resizeModal()
}

func (m *Model) openHelpModal() {
	m.helpItems = m.buildHelpItems()
	m.helpSel = 0
	m.openModal(modalHelp, "Help", "")
}

func (m *Model) openDetailModal() {
	if !m.view.HasSelection {
		return
	}
	row, err := m.mgr.Row(m.view.Selected.Seq)
	if err != nil {
		m.lastErr = err.Error()
		return
	}
	m.detailPlain = row.PrettyJSON()
	m.openModal(modalDetail, fmt.Sprintf("Row %d", row.Seq), m.renderDetail(row))
}

func (m *Model) renderDetail(row model.Row) string {
	names := row.Names()
	w := 0
	for _, n := range names {
		w = max(w, runeLen(n))
	}
	var b strings.Builder
	var message string
	for _, n := range names {
		val, _ := row.Get(n)
		if n == "@message" {
			message = val
		}
		b.WriteString(m.styles.JSONKey.Render(padRight(n, w)))
		b.WriteString("  ")
		b.WriteString(strings.ReplaceAll(val, "\n", "\n"+strings.Repeat(" ", w+2)))
		b.WriteString("\n")
	}
	if pretty, ok := prettyJSON(message, m.styles); ok {
		b.WriteString("\n")
		b.WriteString(m.styles.Label.Render("@message"))
		b.WriteString("\n")
		b.WriteString(pretty)
	}
	return b.String()
}

func (m *Model) openColumnsModal() {
	m.colSel = 0
	m.openModal(modalColumns, "Columns", m.renderColumns())
}

func (m *Model) renderColumns() string {
	p := m.mgr.Columns()
	all := p.All()
	if len(all) == 0 {
		return "No columns yet: run a query first"
	}
	lines := make([]string, len(all))
	for i, c := range all {
		mark := "[ ]"
		if p.IsVisible(c) {
			mark = "[x]"
		}
		prefix := "  "
		if i == m.colSel {
			prefix = "> "
		}
		lines[i] = prefix + mark + " " + c
	}
	return strings.Join(lines, "\n")
}

func (m *Model) openProfilesModal() {
	m.profileSel = m.profileIdx
	m.openModal(modalProfiles, "Profiles", m.renderProfiles())
}

func (m *Model) renderProfiles() string {
	if len(m.profiles) == 0 {
		return "No profiles found in the shared AWS config files"
	}
	lines := make([]string, len(m.profiles))
	for i, p := range m.profiles {
		prefix := "  "
		if i == m.profileSel {
			prefix = "> "
		}
		if p == m.mgr.Profile() {
			p += " (active)"
		}
		lines[i] = prefix + p
	}
	return strings.Join(lines, "\n")
}

func (m *Model) openAppLogsModal() {
	m.detailPlain = logx.Dump()
	m.openModal(modalLogs, "Application Logs", m.detailPlain)
	m.modalVP.GotoBottom()
}

func (m *Model) resizeModal() {
	w := max(20, m.termWidth-6)
	h := max(5, m.termHeight-6)
	m.modalVP = viewport.New(w-4, h-4)
	switch m.modalKind {
	case modalHelp:
		m.modalVP.SetContent(m.renderHelp())
	case modalColumns:
		m.modalVP.SetContent(m.renderColumns())
	case modalProfiles:
		m.modalVP.SetContent(m.renderProfiles())
	default:
		m.modalVP.SetContent(m.modalBody)
	}
}

func (m *Model) renderHelp() string {
	if m.helpSel >= len(m.helpItems) {
		m.helpSel = len(m.helpItems) - 1
	}
	if m.helpSel < 0 {
		m.helpSel = 0
	}
	lines := []string{"Shortcuts:"}
	group := ""
	selLine := 0
	for i, it := range m.helpItems {
		if it.group != group {
			group = it.group
			lines = append(lines, "", group+":")
		}
		prefix := "  "
		if i == m.helpSel {
			prefix = "> "
			selLine = len(lines)
		}
		lines = append(lines, fmt.Sprintf("%s[%s] %s", prefix, keyLabel(it.key), it.text))
	}
	// keep the selection on screen
	if h := m.modalVP.Height; h > 0 {
		if selLine < m.modalVP.YOffset+1 {
			m.modalVP.YOffset = max(0, selLine-1)
		} else if selLine >= m.modalVP.YOffset+h-1 {
			m.modalVP.YOffset = max(0, selLine-h+2)
		}
	}
	return m.styles.Help.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderModal() string {
	var content string
	switch m.modalKind {
	case modalHelp:
		m.modalVP.SetContent(m.renderHelp())
		content = m.modalVP.View() + "\n[esc]=close  [enter]=run"
	case modalDetail:
		content = m.modalVP.View() + "\n[esc/enter]=close  [c]=copy JSON"
	case modalColumns:
		content = m.modalVP.View() + "\n[space]=show/hide  [K/J]=move  [esc]=close"
	case modalProfiles:
		content = m.modalVP.View() + "\n[enter]=switch  [esc]=close"
	case modalLogs:
		header := m.styles.Help.Render(m.sessionSummary())
		content = header + "\n" + m.modalVP.View() + "\n[esc/enter]=close  [c]=copy"
	default:
		content = m.modalVP.View() + "\n[esc]=close"
	}
	boxW := max(20, m.termWidth-6)
	title := m.styles.PopupTitle.Render(m.modalTitle)
	body := m.styles.PopupBox.Width(boxW).Render(title + "\n" + content)
	return lipgloss.Place(m.termWidth, m.termHeight, lipgloss.Center, lipgloss.Center, body)
}

func (m *Model) sessionSummary() string {
	v := m.view
	lines := []string{
		fmt.Sprintf("session: %s  state: %s", orDash(v.SessionID), v.State),
		fmt.Sprintf("profile: %s  region: %s  carry-over: %s", m.profileName(), m.mgr.Region(), m.mgr.CarryOver()),
	}
	if v.SessionID != "" {
		lines = append(lines,
			fmt.Sprintf("query: %s  log groups: %s", orDash(string(v.Query.ID)), strings.Join(v.Query.LogGroups, ",")),
			fmt.Sprintf("rows: %d  matched: %d  truncated: %v", v.Total, v.Matched, v.Truncated))
	}
	if v.Err != nil {
		lines = append(lines, "error: "+v.Err.Error())
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
