// Package viewport computes windowed grid layouts for large result lists:
// which contiguous index range must be materialized for a given scroll
// position, and where that subset sits inside the full scrollable height.
package viewport

import "math"

// WindowThreshold is the total-item count at which rendering switches from
// full to windowed. Below it, materializing everything is cheaper than the
// windowing bookkeeping.
const WindowThreshold = 200

// BufferRows is the number of rows materialized beyond the geometrically
// visible range on each side, to avoid visible popping during fast scroll.
const BufferRows = 5

// Breakpoint maps a minimum container width to a column count and gap.
type Breakpoint struct {
	MinWidth float64
	Columns  int
	Gap      float64
}

// DefaultBreakpoints is the responsive column table, ordered by descending
// MinWidth. The first matching row wins.
var DefaultBreakpoints = []Breakpoint{
	{MinWidth: 1280, Columns: 5, Gap: 16},
	{MinWidth: 1024, Columns: 4, Gap: 16},
	{MinWidth: 768, Columns: 3, Gap: 16},
	{MinWidth: 640, Columns: 2, Gap: 16},
	{MinWidth: 0, Columns: 1, Gap: 16},
}

// Window is the materialized slice of a grid: item index range, grid
// geometry, and the offset transform placing the slice at the right scroll
// position.
type Window struct {
	StartIndex int
	EndIndex   int // exclusive
	Columns    int
	RowHeight  float64
	ItemWidth  float64
	Gap        float64
	// OffsetY absolutely positions the materialized subset.
	OffsetY float64
	// ContentHeight is the total scrollable height the container must
	// report so scrollbar proportions stay correct.
	ContentHeight float64
}

// Engine computes grid windows for a fixed row height and breakpoint table.
type Engine struct {
	rowHeight   float64
	breakpoints []Breakpoint
}

// NewEngine creates an Engine. A nil or empty breakpoint table falls back
// to DefaultBreakpoints.
func NewEngine(rowHeight float64, breakpoints []Breakpoint) *Engine {
	if rowHeight <= 0 {
		rowHeight = 280
	}
	if len(breakpoints) == 0 {
		breakpoints = DefaultBreakpoints
	}
	return &Engine{rowHeight: rowHeight, breakpoints: breakpoints}
}

// Windowed reports whether the list is large enough to window instead of
// rendering every item.
func (e *Engine) Windowed(totalItems int) bool {
	return totalItems > WindowThreshold
}

// Layout resolves the column count and gap for a container width from the
// breakpoint table, plus the derived per-item width.
func (e *Engine) Layout(containerWidth float64) (columns int, itemWidth, gap float64) {
	columns, gap = 1, 0
	for _, bp := range e.breakpoints {
		if containerWidth >= bp.MinWidth {
			columns, gap = bp.Columns, bp.Gap
			break
		}
	}
	if columns < 1 {
		columns = 1
	}
	itemWidth = (containerWidth - float64(columns-1)*gap) / float64(columns)
	return columns, itemWidth, gap
}

// ComputeWindow returns the minimal contiguous index range that must be
// materialized for the given viewport geometry, buffered by BufferRows on
// each side and clamped to [0, totalItems].
func (e *Engine) ComputeWindow(
	totalItems int, viewportHeight, scrollTop, containerWidth float64,
) Window {
	columns, itemWidth, gap := e.Layout(containerWidth)

	if totalItems < 0 {
		totalItems = 0
	}
	totalRows := (totalItems + columns - 1) / columns

	startRow := int(math.Floor(scrollTop/e.rowHeight)) - BufferRows
	if startRow < 0 {
		startRow = 0
	}
	endRow := int(math.Ceil((scrollTop+viewportHeight)/e.rowHeight)) + BufferRows
	if endRow > totalRows {
		endRow = totalRows
	}
	if startRow > endRow {
		startRow = endRow
	}

	start := startRow * columns
	if start > totalItems {
		start = totalItems
	}
	end := endRow * columns
	if end > totalItems {
		end = totalItems
	}

	contentHeight := 0.0
	if totalRows > 0 {
		contentHeight = float64(totalRows)*e.rowHeight + float64(totalRows-1)*gap
	}

	return Window{
		StartIndex:    start,
		EndIndex:      end,
		Columns:       columns,
		RowHeight:     e.rowHeight,
		ItemWidth:     itemWidth,
		Gap:           gap,
		OffsetY:       float64(startRow) * e.rowHeight,
		ContentHeight: contentHeight,
	}
}
