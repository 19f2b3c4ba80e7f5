package tui

import (
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/hylla/tavla/internal/engine"
)

// Canvas units per terminal cell at zoom 1. Rows cover twice the canvas
// distance of columns because terminal cells are roughly twice as tall as
// they are wide.
const (
	cellUnitX = 10.0
	cellUnitY = 20.0
)

// cellStyle indexes into the palette applied when the grid is flattened.
type cellStyle uint8

const (
	styleNone cellStyle = iota
	styleCard
	styleSelected
	styleLocked
	styleLine
	styleGhost
)

// cellGrid is a fixed-size character grid the board view is painted onto,
// back to front, before flattening into styled terminal lines.
type cellGrid struct {
	w, h   int
	runes  []rune
	styles []cellStyle
}

func newCellGrid(w, h int) *cellGrid {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	g := &cellGrid{w: w, h: h, runes: make([]rune, w*h), styles: make([]cellStyle, w*h)}
	for i := range g.runes {
		g.runes[i] = ' '
	}
	return g
}

func (g *cellGrid) set(x, y int, r rune, s cellStyle) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	i := y*g.w + x
	g.runes[i] = r
	g.styles[i] = s
}

// drawBox paints one card rectangle with its border, clipping at the grid
// edges. The title is truncated into the top border.
func (g *cellGrid) drawBox(x, y, w, h int, title string, style cellStyle) {
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	horiz, vert := '─', '│'
	tl, tr, bl, br := '╭', '╮', '╰', '╯'
	if style == styleSelected {
		horiz, vert = '═', '║'
		tl, tr, bl, br = '╔', '╗', '╚', '╝'
	}

	for cx := x + 1; cx < x+w-1; cx++ {
		g.set(cx, y, horiz, style)
		g.set(cx, y+h-1, horiz, style)
	}
	for cy := y + 1; cy < y+h-1; cy++ {
		g.set(x, cy, vert, style)
		g.set(x+w-1, cy, vert, style)
	}
	g.set(x, y, tl, style)
	g.set(x+w-1, y, tr, style)
	g.set(x, y+h-1, bl, style)
	g.set(x+w-1, y+h-1, br, style)

	// Interior is cleared so cards occlude whatever is behind them.
	for cy := y + 1; cy < y+h-1; cy++ {
		for cx := x + 1; cx < x+w-1; cx++ {
			g.set(cx, cy, ' ', styleNone)
		}
	}

	if title != "" {
		room := w - 4
		if room > 0 {
			runes := []rune(title)
			if len(runes) > room {
				runes = append(runes[:max(0, room-1)], '…')
			}
			for i, r := range runes {
				g.set(x+2+i, y, r, style)
			}
		}
	}
}

// drawText paints wrapped text lines inside a box interior.
func (g *cellGrid) drawText(x, y, w, h int, text string) {
	if w <= 0 || h <= 0 {
		return
	}
	row := 0
	for _, line := range strings.Split(text, "\n") {
		if row >= h {
			return
		}
		runes := []rune(line)
		if len(runes) > w {
			runes = runes[:w]
		}
		for i, r := range runes {
			g.set(x+i, y+row, r, styleCard)
		}
		row++
	}
}

// drawPath paints a routed line by sampling its cubic segments.
func (g *cellGrid) drawPath(path engine.Path, toCell func(engine.Point) (int, int), style cellStyle) {
	const samplesPerSegment = 24
	for _, seg := range path.Segments {
		for i := 0; i <= samplesPerSegment; i++ {
			t := float64(i) / samplesPerSegment
			cx, cy := toCell(engine.SampleSegment(seg, t))
			g.set(cx, cy, '·', style)
		}
	}
	// Waypoints and endpoints render as solid markers on top of the dots.
	for i, p := range path.Points {
		cx, cy := toCell(p)
		marker := '◆'
		if i == 0 || i == len(path.Points)-1 {
			marker = '●'
		}
		g.set(cx, cy, marker, style)
	}
}

// String flattens the grid into styled terminal lines.
func (g *cellGrid) String() string {
	palette := map[cellStyle]lipgloss.Style{
		styleCard:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		styleSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true),
		styleLocked:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		styleLine:     lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
		styleGhost:    lipgloss.NewStyle().Foreground(lipgloss.Color("239")),
	}

	var b strings.Builder
	for y := 0; y < g.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		x := 0
		for x < g.w {
			style := g.styles[y*g.w+x]
			start := x
			for x < g.w && g.styles[y*g.w+x] == style {
				x++
			}
			run := string(g.runes[y*g.w+start : y*g.w+x])
			if style == styleNone {
				b.WriteString(run)
				continue
			}
			b.WriteString(palette[style].Render(run))
		}
	}
	return b.String()
}
