// Package tui renders the board canvas in the terminal and translates key and
// mouse input into engine gestures.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textarea"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/hylla/tavla/internal/config"
	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
)

// frameInterval paces canvas redraws. The engine mutates between frames from
// both local gestures and remote snapshot merges; polling keeps the view loop
// simple and bounded.
const frameInterval = 80 * time.Millisecond

// defaultNoteWidth and defaultColumnWidth size freshly created cards in
// canvas units.
const (
	defaultNoteWidth   = 240.0
	defaultColumnWidth = 280.0
)

// tickMsg requests the next frame.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the bubbletea canvas model over one board engine.
type Model struct {
	eng     *engine.Engine
	keys    keyMap
	help    help.Model
	preview notePreview

	boardName string
	width     int
	height    int
	ready     bool

	editor    textarea.Model
	editingID string

	confirmIDs []string

	panning bool
	panLast engine.Point

	status string
}

// NewModel builds the canvas model. The engine must already be loaded.
func NewModel(eng *engine.Engine, boardName string, keyCfg config.KeyConfig) Model {
	editor := textarea.New()
	editor.Placeholder = "markdown…"
	return Model{
		eng:       eng,
		keys:      newKeyMap(keyCfg),
		help:      help.New(),
		boardName: boardName,
		editor:    editor,
		status:    "ready",
	}
}

// Init schedules the first frame.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update routes one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		if m.editingID != "" {
			return m.handleEditorKey(msg)
		}
		if len(m.confirmIDs) > 0 {
			return m.handleConfirmKey(msg)
		}
		return m.handleCanvasKey(msg)

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseMotionMsg:
		return m.handleMouseMotion(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	default:
		return m, nil
	}
}

// handleCanvasKey handles keys while no overlay is open.
func (m Model) handleCanvasKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.escape):
		if m.help.ShowAll {
			m.help.ShowAll = false
			return m, nil
		}
		m.eng.CancelGesture()
		m.eng.AbortConnection()
		m.eng.ClearSelection()
		m.panning = false
		m.status = "ready"
		return m, nil

	case key.Matches(msg, m.keys.panLeft):
		m.eng.Pan(-4*cellUnitX, 0)
		return m, nil
	case key.Matches(msg, m.keys.panRight):
		m.eng.Pan(4*cellUnitX, 0)
		return m, nil
	case key.Matches(msg, m.keys.panUp):
		m.eng.Pan(0, -2*cellUnitY)
		return m, nil
	case key.Matches(msg, m.keys.panDown):
		m.eng.Pan(0, 2*cellUnitY)
		return m, nil

	case key.Matches(msg, m.keys.zoomIn):
		m.zoomBy(1.25)
		return m, nil
	case key.Matches(msg, m.keys.zoomOut):
		m.zoomBy(0.8)
		return m, nil

	case key.Matches(msg, m.keys.undo):
		if m.eng.Undo() {
			m.status = "undone"
		} else {
			m.status = "nothing to undo"
		}
		return m, nil
	case key.Matches(msg, m.keys.redo):
		if m.eng.Redo() {
			m.status = "redone"
		} else {
			m.status = "nothing to redo"
		}
		return m, nil

	case key.Matches(msg, m.keys.selectAll):
		m.eng.SelectAll()
		m.status = fmt.Sprintf("%d cards selected", len(m.eng.SelectedIDs()))
		return m, nil

	case key.Matches(msg, m.keys.deleteSel):
		ids := m.eng.SelectedIDs()
		if len(ids) == 0 {
			m.status = "nothing selected"
			return m, nil
		}
		m.confirmIDs = ids
		return m, nil

	case key.Matches(msg, m.keys.newNote):
		id, err := m.eng.CreateCard(ctx, domain.KindNote, m.viewCenter(), defaultNoteWidth, nil)
		if err != nil {
			m.status = "new note failed: " + err.Error()
			return m, nil
		}
		m.status = "note created"
		return m.openEditor(id)

	case key.Matches(msg, m.keys.newColumn):
		if _, err := m.eng.CreateCard(ctx, domain.KindColumn, m.viewCenter(), defaultColumnWidth, nil); err != nil {
			m.status = "new column failed: " + err.Error()
			return m, nil
		}
		m.status = "column created"
		return m, nil

	case key.Matches(msg, m.keys.connect):
		ids := m.eng.SelectedIDs()
		if len(ids) != 1 {
			m.status = "select one card to connect from"
			return m, nil
		}
		if err := m.eng.StartConnection(ids[0], domain.SideRight); err != nil {
			m.status = "connect failed: " + err.Error()
			return m, nil
		}
		m.status = "click a target card or empty canvas"
		return m, nil

	case key.Matches(msg, m.keys.lock):
		for _, id := range m.eng.SelectedIDs() {
			locked := !m.cardLocked(id)
			if err := m.eng.LockPosition(id, locked); err == nil {
				if locked {
					m.status = "position locked"
				} else {
					m.status = "position unlocked"
				}
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.front):
		for _, id := range m.eng.SelectedIDs() {
			_ = m.eng.BringToFront(id)
		}
		return m, nil
	case key.Matches(msg, m.keys.back):
		for _, id := range m.eng.SelectedIDs() {
			_ = m.eng.SendToBack(id)
		}
		return m, nil

	case key.Matches(msg, m.keys.editNote):
		ids := m.eng.SelectedIDs()
		if len(ids) != 1 {
			m.status = "select one note to edit"
			return m, nil
		}
		return m.openEditor(ids[0])

	case key.Matches(msg, m.keys.copyText):
		ids := m.eng.SelectedIDs()
		if len(ids) != 1 {
			m.status = "select one note to copy"
			return m, nil
		}
		if text, ok := m.noteMarkdown(ids[0]); ok {
			if err := clipboard.WriteAll(text); err != nil {
				m.status = "copy failed: " + err.Error()
			} else {
				m.status = "copied to clipboard"
			}
		}
		return m, nil
	}
	return m, nil
}

// handleEditorKey handles keys while the note editor overlay is open. Esc
// commits; the engine debounces the resulting save.
func (m Model) handleEditorKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		id := m.editingID
		m.editingID = ""
		m.eng.SetEditingCard("")
		if np, ok := m.notePayload(id); ok {
			np.Markdown = m.editor.Value()
			if err := m.eng.UpdatePayload(id, np); err != nil {
				m.status = "save failed: " + err.Error()
				return m, nil
			}
			m.status = "note saved"
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

// handleConfirmKey handles the delete confirmation prompt.
func (m Model) handleConfirmKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		ctx := context.Background()
		deleted := 0
		for _, id := range m.confirmIDs {
			if err := m.eng.DeleteCard(ctx, id); err == nil {
				deleted++
			}
		}
		m.status = fmt.Sprintf("%d cards deleted", deleted)
		m.confirmIDs = nil
		return m, nil
	case "n", "esc":
		m.confirmIDs = nil
		m.status = "delete cancelled"
		return m, nil
	}
	return m, nil
}

func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if m.editingID != "" || len(m.confirmIDs) > 0 {
		return m, nil
	}
	if msg.Button != tea.MouseLeft {
		return m, nil
	}
	screen := m.cellToScreen(msg.X, msg.Y)
	view := m.eng.Snapshot()

	// A pending connection completes on the next click, wherever it lands.
	if view.PendingConn != nil {
		if _, err := m.eng.CompleteConnection(context.Background(), screen); err != nil {
			m.status = "connect failed: " + err.Error()
		} else {
			m.status = "connected"
		}
		return m, nil
	}

	additive := msg.Mod&tea.ModShift != 0
	if cv, ok := m.hitTest(view, msg.X, msg.Y); ok {
		if cv.Kind != domain.KindLine && cv.Selected && m.onResizeCorner(view, cv, msg.X, msg.Y) {
			if err := m.eng.PointerDownResize(cv.ID, engine.HandleCorner, screen); err != nil {
				m.status = err.Error()
			}
			return m, nil
		}
		if err := m.eng.PointerDownCard(cv.ID, screen, additive); err != nil {
			m.status = err.Error()
		}
		return m, nil
	}

	// Empty canvas: drop selection and start panning.
	if !additive {
		m.eng.ClearSelection()
	}
	m.panning = true
	m.panLast = screen
	return m, nil
}

func (m Model) handleMouseMotion(msg tea.MouseMotionMsg) (tea.Model, tea.Cmd) {
	screen := m.cellToScreen(msg.X, msg.Y)
	if m.panning {
		delta := m.panLast.Sub(screen)
		m.eng.Pan(delta.X, delta.Y)
		m.panLast = m.cellToScreen(msg.X, msg.Y)
		return m, nil
	}
	m.eng.MoveConnection(screen)
	m.eng.PointerMove(screen)
	return m, nil
}

func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	if m.panning {
		m.panning = false
		return m, nil
	}
	m.eng.PointerUp(m.cellToScreen(msg.X, msg.Y))
	return m, nil
}

func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	focal := m.cellToScreen(msg.X, msg.Y)
	zoom := m.eng.Viewport().Zoom
	switch msg.Button {
	case tea.MouseWheelUp:
		m.eng.ZoomAt(focal, zoom*1.1)
	case tea.MouseWheelDown:
		m.eng.ZoomAt(focal, zoom/1.1)
	}
	return m, nil
}

// View renders one frame.
func (m Model) View() tea.View {
	if !m.ready {
		return frame("loading…")
	}
	return frame(m.renderFrame())
}

// renderFrame paints the canvas, status bar, and help line into one string.
func (m Model) renderFrame() string {
	view := m.eng.Snapshot()
	if notice := strings.TrimSpace(view.Notice); notice != "" {
		m.status = notice
	}

	canvasHeight := max(1, m.height-2)
	grid := newCellGrid(m.width, canvasHeight)
	for _, cv := range view.Cards {
		m.drawCard(grid, view, cv)
	}
	if pc := view.PendingConn; pc != nil {
		path := engine.RoutePath(pc.From, pc.Cursor, nil, 0)
		grid.drawPath(path, func(p engine.Point) (int, int) {
			return m.canvasToCell(view.Viewport, p)
		}, styleGhost)
	}

	content := grid.String() + "\n" + m.statusBar(view) + "\n" + m.helpLine()
	if m.editingID != "" {
		content = m.overlayEditor(content)
	} else if len(m.confirmIDs) > 0 {
		content = m.overlayConfirm(content)
	}
	return content
}

// frame wraps content into the standard full-screen mouse-enabled view.
func frame(content string) tea.View {
	v := tea.NewView(content)
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// drawCard paints one card view onto the grid.
func (m Model) drawCard(grid *cellGrid, view engine.BoardView, cv engine.CardView) {
	if cv.Kind == domain.KindLine {
		if cv.Path == nil {
			return
		}
		style := styleLine
		if cv.Selected {
			style = styleSelected
		}
		grid.drawPath(*cv.Path, func(p engine.Point) (int, int) {
			return m.canvasToCell(view.Viewport, p)
		}, style)
		return
	}

	x, y := m.canvasToCell(view.Viewport, engine.Point{X: cv.Box.X, Y: cv.Box.Y})
	w := max(2, int(cv.Box.W*view.Viewport.Zoom/cellUnitX))
	h := max(2, int(cv.Box.H*view.Viewport.Zoom/cellUnitY))

	style := styleCard
	switch {
	case cv.Selected:
		style = styleSelected
	case cv.Locked:
		style = styleLocked
	}
	title := cardTitle(cv)
	if cv.Locked {
		title = "🔒 " + title
	}
	grid.drawBox(x, y, w, h, title, style)

	if body := cardBody(cv); body != "" && h > 2 && w > 4 {
		grid.drawText(x+2, y+1, w-4, h-2, body)
	}
	if cv.Selected && cv.Kind != domain.KindColumn {
		grid.set(x+w-1, y+h-1, '◢', styleSelected)
	}
	if target := view.SnapTarget; target != nil && target.CardID == cv.ID {
		tx, ty := m.canvasToCell(view.Viewport, target.Point)
		grid.set(tx, ty, '◎', styleSelected)
	}
}

// cardTitle picks the border label for one card.
func cardTitle(cv engine.CardView) string {
	switch p := cv.Payload.(type) {
	case domain.NotePayload:
		if first, _, _ := strings.Cut(strings.TrimSpace(p.Markdown), "\n"); first != "" {
			return strings.TrimLeft(first, "# ")
		}
		return "note"
	case domain.ColumnPayload:
		if p.Title != "" {
			return p.Title
		}
		return "column"
	case domain.TextPayload:
		if p.Text != "" {
			return p.Text
		}
		return "text"
	case domain.LinkPayload:
		if p.Title != "" {
			return p.Title
		}
		return p.URL
	case domain.TaskListPayload:
		if p.Title != "" {
			return p.Title
		}
		return "tasks"
	case domain.ImagePayload:
		return "image"
	case domain.FilePayload:
		return p.Filename
	case domain.BoardRefPayload:
		return p.Title
	default:
		return string(cv.Kind)
	}
}

// cardBody picks interior text for card kinds that carry some.
func cardBody(cv engine.CardView) string {
	switch p := cv.Payload.(type) {
	case domain.NotePayload:
		if _, rest, found := strings.Cut(strings.TrimSpace(p.Markdown), "\n"); found {
			return rest
		}
		return ""
	case domain.TaskListPayload:
		var b strings.Builder
		for i, item := range p.Items {
			if i > 0 {
				b.WriteByte('\n')
			}
			mark := "☐"
			if item.Done {
				mark = "☑"
			}
			b.WriteString(mark + " " + item.Text)
		}
		return b.String()
	default:
		return ""
	}
}

// statusBar renders the bottom status line.
func (m Model) statusBar(view engine.BoardView) string {
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	bold := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))

	parts := []string{bold.Render(m.boardName)}
	parts = append(parts, muted.Render(fmt.Sprintf("%d cards", len(view.Cards))))
	parts = append(parts, muted.Render(fmt.Sprintf("zoom %.0f%%", view.Viewport.Zoom*100)))
	if view.CanUndo {
		parts = append(parts, muted.Render("undo:"+m.keys.undo.Keys()[0]))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	return strings.Join(parts, "  ")
}

// helpLine renders the help bubble under the status bar.
func (m Model) helpLine() string {
	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	return helpBubble.View(m.keys)
}

// overlayEditor renders the note editor with a live markdown preview.
func (m Model) overlayEditor(content string) string {
	previewWidth := max(24, m.width/3)
	preview := m.preview.render(m.editor.Value(), previewWidth)
	body := m.editor.View()
	if preview != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, "  ", preview)
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Render("edit note (esc saves)\n\n" + body)
	return overlayOnContent(content, panel, max(1, m.width), max(1, m.height))
}

// overlayConfirm renders the delete confirmation prompt.
func (m Model) overlayConfirm(content string) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("203")).
		Padding(0, 1).
		Render(fmt.Sprintf("delete %d cards? (y/n)", len(m.confirmIDs)))
	return overlayOnContent(content, panel, max(1, m.width), max(1, m.height))
}

// overlayOnContent centers overlay on top of base within the given size.
func overlayOnContent(base, overlay string, width, height int) string {
	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centered := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centered).X(0).Y(0).Z(10)
	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// fitLines pads or clips content to exactly n lines.
func fitLines(content string, n int) string {
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > n:
		lines = lines[:n]
	case len(lines) < n:
		lines = append(lines, make([]string, n-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// openEditor enters note editing for cardID when it is a note card.
func (m Model) openEditor(cardID string) (tea.Model, tea.Cmd) {
	np, ok := m.notePayload(cardID)
	if !ok {
		m.status = "only notes are editable"
		return m, nil
	}
	m.editingID = cardID
	m.eng.SetEditingCard(cardID)
	m.editor.SetValue(np.Markdown)
	m.editor.SetWidth(max(24, m.width/2))
	m.editor.SetHeight(max(5, m.height/2))
	return m, m.editor.Focus()
}

// notePayload fetches a note payload from the current snapshot.
func (m Model) notePayload(cardID string) (domain.NotePayload, bool) {
	for _, cv := range m.eng.Snapshot().Cards {
		if cv.ID == cardID {
			np, ok := cv.Payload.(domain.NotePayload)
			return np, ok
		}
	}
	return domain.NotePayload{}, false
}

// noteMarkdown returns the markdown text of a note card.
func (m Model) noteMarkdown(cardID string) (string, bool) {
	np, ok := m.notePayload(cardID)
	return np.Markdown, ok
}

// cardLocked reports the lock flag of a card in the current snapshot.
func (m Model) cardLocked(cardID string) bool {
	for _, cv := range m.eng.Snapshot().Cards {
		if cv.ID == cardID {
			return cv.Locked
		}
	}
	return false
}

// hitTest finds the topmost non-line card under a cell.
func (m Model) hitTest(view engine.BoardView, cellX, cellY int) (engine.CardView, bool) {
	for i := len(view.Cards) - 1; i >= 0; i-- {
		cv := view.Cards[i]
		if cv.Kind == domain.KindLine {
			continue
		}
		x, y := m.canvasToCell(view.Viewport, engine.Point{X: cv.Box.X, Y: cv.Box.Y})
		w := max(2, int(cv.Box.W*view.Viewport.Zoom/cellUnitX))
		h := max(2, int(cv.Box.H*view.Viewport.Zoom/cellUnitY))
		if cellX >= x && cellX < x+w && cellY >= y && cellY < y+h {
			return cv, true
		}
	}
	return engine.CardView{}, false
}

// onResizeCorner reports whether a cell sits on the card's corner handle.
func (m Model) onResizeCorner(view engine.BoardView, cv engine.CardView, cellX, cellY int) bool {
	x, y := m.canvasToCell(view.Viewport, engine.Point{X: cv.Box.X, Y: cv.Box.Y})
	w := max(2, int(cv.Box.W*view.Viewport.Zoom/cellUnitX))
	h := max(2, int(cv.Box.H*view.Viewport.Zoom/cellUnitY))
	return cellX == x+w-1 && cellY == y+h-1
}

// cellToScreen converts a terminal cell to engine screen coordinates at the
// cell center.
func (m Model) cellToScreen(cellX, cellY int) engine.Point {
	return engine.Point{
		X: (float64(cellX) + 0.5) * cellUnitX,
		Y: (float64(cellY) + 0.5) * cellUnitY,
	}
}

// canvasToCell converts canvas coordinates to a terminal cell.
func (m Model) canvasToCell(vp engine.Viewport, p engine.Point) (int, int) {
	s := vp.CanvasToScreen(p)
	return int(s.X / cellUnitX), int(s.Y / cellUnitY)
}

// viewCenter is the canvas point at the middle of the visible area.
func (m Model) viewCenter() engine.Point {
	screen := engine.Point{
		X: float64(m.width) * cellUnitX / 2,
		Y: float64(m.height) * cellUnitY / 2,
	}
	return m.eng.Viewport().ScreenToCanvas(screen)
}

// zoomBy multiplies the zoom factor, keeping the view center fixed.
func (m *Model) zoomBy(factor float64) {
	screenCenter := engine.Point{
		X: float64(m.width) * cellUnitX / 2,
		Y: float64(m.height) * cellUnitY / 2,
	}
	m.eng.ZoomAt(screenCenter, m.eng.Viewport().Zoom*factor)
}
