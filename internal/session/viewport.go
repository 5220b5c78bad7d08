package session

import (
	"sort"

	"cwinsights/internal/model"
)

// Viewport is a selection index into the visible rows plus the index of the
// first row on screen.
type Viewport struct {
	Selected int
	Offset   int
}

// Clamp fits v to n visible rows shown height at a time. The selection
// always lands on a row when n > 0 and stays on screen.
func (v Viewport) Clamp(n, height int) Viewport {
	if height < 1 {
		height = 1
	}
	if n <= 0 {
		return Viewport{}
	}
	if v.Selected < 0 {
		v.Selected = 0
	}
	if v.Selected >= n {
		v.Selected = n - 1
	}
	if v.Offset > v.Selected {
		v.Offset = v.Selected
	}
	if v.Selected >= v.Offset+height {
		v.Offset = v.Selected - height + 1
	}
	maxOffset := n - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if v.Offset > maxOffset {
		v.Offset = maxOffset
	}
	if v.Offset < 0 {
		v.Offset = 0
	}
	return v
}

func (v Viewport) Move(delta, n, height int) Viewport {
	v.Selected += delta
	return v.Clamp(n, height)
}

// Page moves by a screenful; pages is negative for up.
func (v Viewport) Page(pages, n, height int) Viewport {
	if height < 1 {
		height = 1
	}
	v.Selected += pages * height
	v.Offset += pages * height
	return v.Clamp(n, height)
}

// indexOfSeq finds seq in rows (ordered by seq). When seq is gone it returns
// the index of the next row after it.
func indexOfSeq(rows []model.Row, seq uint64) int {
	return sort.Search(len(rows), func(i int) bool { return rows[i].Seq >= seq })
}
