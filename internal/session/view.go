package session

import (
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"
)

// View is everything the results screen needs for one frame.
type View struct {
	SessionID string
	State     State
	Query     model.Query
	Err       error
	Stats     querier.Stats
	Elapsed   time.Duration
	Profile   string
	Region    string

	Columns []string
	// Rows holds the visible rows in the window [Viewport.Offset,
	// Viewport.Offset+height) and Cells their projected values.
	Rows  []model.Row
	Cells [][]string

	Total     int
	Matched   int
	Truncated bool
	Filtered  bool
	Viewport  Viewport
	// Selected is the highlighted row; HasSelection is false when no row
	// is visible.
	Selected     model.Row
	HasSelection bool
}

// View derives the current frame showing height rows. The selection follows
// its row across filter changes and falls to the next visible row when its
// row is filtered out.
func (m *Manager) View(height int) View {
	if height < 1 {
		height = 1
	}
	v := View{Profile: m.profile, Region: m.region}
	s := m.Current()
	if s == nil {
		v.State = Idle
		m.lastRows, m.lastHeight = nil, height
		return v
	}
	v.SessionID = s.id
	v.State = s.State()
	v.Query = s.Query()
	v.Err = s.Err()
	v.Stats = s.Stats()
	v.Elapsed = s.Elapsed(m.now())

	snap := s.store.Snapshot()
	m.cols.Discover(snap.Fields())
	visible := m.filter.Visible(snap)
	v.Columns = m.cols.Visible()
	v.Total = snap.Len()
	v.Matched = len(visible)
	v.Truncated = snap.Truncated()
	v.Filtered = m.filter.Active()

	m.place(visible, height)
	v.Viewport = m.vp
	if len(visible) > 0 {
		v.Selected = visible[m.vp.Selected]
		v.HasSelection = true
		end := m.vp.Offset + height
		if end > len(visible) {
			end = len(visible)
		}
		v.Rows = visible[m.vp.Offset:end:end]
		v.Cells = make([][]string, len(v.Rows))
		for i, r := range v.Rows {
			v.Cells[i] = m.cols.Project(r)
		}
	}
	return v
}

// place re-derives the selection index from the selected sequence number.
func (m *Manager) place(visible []model.Row, height int) {
	vp := m.vp
	if m.hasSel {
		vp.Selected = indexOfSeq(visible, m.selSeq)
	}
	m.setViewport(visible, height, vp)
}

func (m *Manager) setViewport(visible []model.Row, height int, vp Viewport) {
	m.vp = vp.Clamp(len(visible), height)
	m.lastRows, m.lastHeight = visible, height
	if len(visible) == 0 {
		// keep the old seq so the selection comes back when the filter
		// lets rows through again
		return
	}
	m.selSeq, m.hasSel = visible[m.vp.Selected].Seq, true
}

// MoveSelection moves the highlight by delta rows within the last View.
func (m *Manager) MoveSelection(delta int) {
	m.setViewport(m.lastRows, m.lastHeight, m.vp.Move(delta, len(m.lastRows), m.lastHeight))
}

// PageSelection moves by whole screens; negative is up.
func (m *Manager) PageSelection(pages int) {
	m.setViewport(m.lastRows, m.lastHeight, m.vp.Page(pages, len(m.lastRows), m.lastHeight))
}

func (m *Manager) SelectFirst() {
	m.setViewport(m.lastRows, m.lastHeight, Viewport{})
}

func (m *Manager) SelectLast() {
	m.setViewport(m.lastRows, m.lastHeight, Viewport{Selected: len(m.lastRows) - 1, Offset: len(m.lastRows)})
}
