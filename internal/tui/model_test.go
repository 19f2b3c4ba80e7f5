package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/tavla/internal/config"
	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
)

// memRepo is an in-memory engine.Repository for model tests.
type memRepo struct {
	mu     sync.Mutex
	cards  map[string]domain.Card
	stream chan []domain.Card
}

func newMemRepo() *memRepo {
	return &memRepo{cards: map[string]domain.Card{}, stream: make(chan []domain.Card, 8)}
}

func (r *memRepo) CreateCard(_ context.Context, c domain.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[c.ID] = c
	return nil
}

func (r *memRepo) GetCard(_ context.Context, _, cardID string) (domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[cardID]
	if !ok {
		return domain.Card{}, engine.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) ListCards(_ context.Context, boardID string) ([]domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Card, 0, len(r.cards))
	for _, c := range r.cards {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateCardTransform(_ context.Context, _, cardID string, patch engine.TransformPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[cardID]
	if !ok {
		return engine.ErrNotFound
	}
	if patch.X != nil {
		c.X = *patch.X
	}
	if patch.Y != nil {
		c.Y = *patch.Y
	}
	if patch.Width != nil {
		c.Width = *patch.Width
	}
	if patch.OrderKey != nil {
		c.OrderKey = *patch.OrderKey
	}
	if patch.PositionLocked != nil {
		c.PositionLocked = *patch.PositionLocked
	}
	r.cards[cardID] = c
	return nil
}

func (r *memRepo) UpdateCardPayload(_ context.Context, _, cardID string, _ domain.CardKind, payload domain.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[cardID]
	if !ok {
		return engine.ErrNotFound
	}
	c.Payload = payload
	r.cards[cardID] = c
	return nil
}

func (r *memRepo) DeleteCard(_ context.Context, _, cardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cards, cardID)
	return nil
}

func (r *memRepo) RemoveCardFromColumn(context.Context, string, string, string) error {
	return nil
}

func (r *memRepo) Subscribe(context.Context, string) (<-chan []domain.Card, error) {
	return r.stream, nil
}

// newTestModel builds a sized model over a deterministic engine.
func newTestModel(t *testing.T, cards ...domain.Card) (Model, *engine.Engine) {
	t.Helper()
	repo := newMemRepo()
	n := 0
	idGen := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	clock := func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	eng := engine.New(repo, "b1", engine.DefaultConfig(), nil, idGen, clock)
	t.Cleanup(eng.Close)
	if len(cards) > 0 {
		for _, c := range cards {
			if err := repo.CreateCard(context.Background(), c); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		eng.MergeRemote(cards)
	}

	m := NewModel(eng, "Test Board", config.Default("").Keys)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 35})
	return updated.(Model), eng
}

func testNote(t *testing.T, id string, x, y float64, markdown string) domain.Card {
	t.Helper()
	c, err := domain.NewCard(id, "b1", domain.KindNote, x, y, 200, "V", domain.NotePayload{Markdown: markdown}, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	return c
}

func keyPress(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func applyKey(t *testing.T, m Model, r rune) Model {
	t.Helper()
	updated, _ := m.Update(keyPress(r))
	return updated.(Model)
}

// cellFor locates the terminal cell covering a canvas point at the default
// viewport.
func cellFor(m Model, eng *engine.Engine, x, y float64) (int, int) {
	return m.canvasToCell(eng.Viewport(), engine.Point{X: x, Y: y})
}

func TestNewNoteOpensEditorAndSaves(t *testing.T) {
	m, eng := newTestModel(t)

	m = applyKey(t, m, 'n')
	if m.editingID == "" {
		t.Fatal("new note did not open the editor")
	}

	m.editor.SetValue("# Plan\nship it")
	updated, _ := m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	m = updated.(Model)
	if m.editingID != "" {
		t.Fatal("escape did not close the editor")
	}

	view := eng.Snapshot()
	if len(view.Cards) != 1 {
		t.Fatalf("cards = %d, want 1", len(view.Cards))
	}
	np, ok := view.Cards[0].Payload.(domain.NotePayload)
	if !ok || np.Markdown != "# Plan\nship it" {
		t.Fatalf("payload = %#v", view.Cards[0].Payload)
	}
}

func TestNewColumnCreatesAtViewCenter(t *testing.T) {
	m, eng := newTestModel(t)

	m = applyKey(t, m, 'c')
	view := eng.Snapshot()
	if len(view.Cards) != 1 || view.Cards[0].Kind != domain.KindColumn {
		t.Fatalf("snapshot = %#v", view.Cards)
	}
	_ = m
}

func TestMouseClickSelectsCard(t *testing.T) {
	m, eng := newTestModel(t, testNote(t, "a", 100, 100, "hello"))

	cx, cy := cellFor(m, eng, 150, 140)
	updated, _ := m.Update(tea.MouseClickMsg{X: cx, Y: cy, Button: tea.MouseLeft})
	m = updated.(Model)
	updated, _ = m.Update(tea.MouseReleaseMsg{X: cx, Y: cy, Button: tea.MouseLeft})
	m = updated.(Model)

	ids := eng.SelectedIDs()
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("selected = %v, want [a]", ids)
	}
}

func TestMouseDragMovesCard(t *testing.T) {
	m, eng := newTestModel(t, testNote(t, "a", 100, 100, "hello"))

	startX, startY := cellFor(m, eng, 150, 140)
	updated, _ := m.Update(tea.MouseClickMsg{X: startX, Y: startY, Button: tea.MouseLeft})
	m = updated.(Model)
	updated, _ = m.Update(tea.MouseMotionMsg{X: startX + 10, Y: startY + 3, Button: tea.MouseLeft})
	m = updated.(Model)
	updated, _ = m.Update(tea.MouseReleaseMsg{X: startX + 10, Y: startY + 3, Button: tea.MouseLeft})
	m = updated.(Model)

	view := eng.Snapshot()
	if view.Cards[0].Box.X <= 100 {
		t.Fatalf("card x = %v, want > 100 after drag", view.Cards[0].Box.X)
	}
	if view.Cards[0].Box.Y <= 100 {
		t.Fatalf("card y = %v, want > 100 after drag", view.Cards[0].Box.Y)
	}
}

func TestEmptyCanvasClickClearsSelectionAndPans(t *testing.T) {
	m, eng := newTestModel(t, testNote(t, "a", 100, 100, "hello"))
	eng.SelectCard("a", false)

	before := eng.Viewport()
	updated, _ := m.Update(tea.MouseClickMsg{X: 110, Y: 30, Button: tea.MouseLeft})
	m = updated.(Model)
	if len(eng.SelectedIDs()) != 0 {
		t.Fatal("selection should clear on empty canvas click")
	}
	if !m.panning {
		t.Fatal("empty canvas press should start panning")
	}

	updated, _ = m.Update(tea.MouseMotionMsg{X: 100, Y: 30, Button: tea.MouseLeft})
	m = updated.(Model)
	after := eng.Viewport()
	if after.X == before.X && after.Y == before.Y {
		t.Fatal("pan drag did not move the viewport")
	}

	updated, _ = m.Update(tea.MouseReleaseMsg{X: 100, Y: 30, Button: tea.MouseLeft})
	m = updated.(Model)
	if m.panning {
		t.Fatal("release should stop panning")
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	m, eng := newTestModel(t, testNote(t, "a", 100, 100, "hello"))

	m = applyKey(t, m, 'a') // select all
	m = applyKey(t, m, 'x')
	if len(m.confirmIDs) != 1 {
		t.Fatalf("confirmIDs = %v, want one id", m.confirmIDs)
	}
	if len(eng.Snapshot().Cards) != 1 {
		t.Fatal("card deleted before confirmation")
	}

	m = applyKey(t, m, 'y')
	if len(eng.Snapshot().Cards) != 0 {
		t.Fatal("confirmed delete did not remove the card")
	}
	if len(m.confirmIDs) != 0 {
		t.Fatal("confirmation state not cleared")
	}
}

func TestDeleteConfirmationCancel(t *testing.T) {
	m, eng := newTestModel(t, testNote(t, "a", 100, 100, "hello"))

	m = applyKey(t, m, 'a')
	m = applyKey(t, m, 'x')
	m = applyKey(t, m, 'p') // unrelated key leaves the prompt open
	if len(m.confirmIDs) == 0 {
		t.Fatal("unrelated key should not resolve the prompt")
	}
	m = applyKey(t, m, 'n')
	if len(m.confirmIDs) != 0 {
		t.Fatal("n should cancel the prompt")
	}
	if len(eng.Snapshot().Cards) != 1 {
		t.Fatal("cancelled delete removed the card")
	}
}

func TestLockToggleBlocksDrag(t *testing.T) {
	m, eng := newTestModel(t, testNote(t, "a", 100, 100, "hello"))

	m = applyKey(t, m, 'a')
	m = applyKey(t, m, 'L')
	view := eng.Snapshot()
	if !view.Cards[0].Locked {
		t.Fatal("lock key did not lock the card")
	}

	m = applyKey(t, m, 'L')
	if eng.Snapshot().Cards[0].Locked {
		t.Fatal("second press did not unlock")
	}
}

func TestConnectKeyStartsPendingConnection(t *testing.T) {
	m, eng := newTestModel(t,
		testNote(t, "a", 100, 100, "from"),
		testNote(t, "b", 600, 100, "to"),
	)
	eng.SelectCard("a", false)

	m = applyKey(t, m, 'l')
	if eng.Snapshot().PendingConn == nil {
		t.Fatal("connect key did not start a connection")
	}

	// Clicking the target card completes the line.
	cx, cy := cellFor(m, eng, 650, 140)
	updated, _ := m.Update(tea.MouseClickMsg{X: cx, Y: cy, Button: tea.MouseLeft})
	m = updated.(Model)

	view := eng.Snapshot()
	if view.PendingConn != nil {
		t.Fatal("connection still pending after click")
	}
	lines := 0
	for _, cv := range view.Cards {
		if cv.Kind == domain.KindLine {
			lines++
		}
	}
	if lines != 1 {
		t.Fatalf("lines = %d, want 1", lines)
	}
}

func TestUndoKeyRevertsCreate(t *testing.T) {
	m, eng := newTestModel(t)

	m = applyKey(t, m, 'c')
	if len(eng.Snapshot().Cards) != 1 {
		t.Fatal("column not created")
	}
	m = applyKey(t, m, 'z')
	if len(eng.Snapshot().Cards) != 0 {
		t.Fatal("undo did not remove the column")
	}
	m = applyKey(t, m, 'Z')
	if len(eng.Snapshot().Cards) != 1 {
		t.Fatal("redo did not restore the column")
	}
}

func TestZoomKeysAdjustViewport(t *testing.T) {
	m, eng := newTestModel(t)

	m = applyKey(t, m, '+')
	if z := eng.Viewport().Zoom; z <= 1 {
		t.Fatalf("zoom = %v, want > 1", z)
	}
	m = applyKey(t, m, '-')
	m = applyKey(t, m, '-')
	if z := eng.Viewport().Zoom; z >= 1 {
		t.Fatalf("zoom = %v, want < 1", z)
	}
}

func TestViewRendersCardsAndStatus(t *testing.T) {
	m, _ := newTestModel(t, testNote(t, "a", 100, 100, "# Hello\nworld"))

	v := m.View()
	if v.Content == nil || v.MouseMode != tea.MouseModeCellMotion || !v.AltScreen {
		t.Fatal("view is not a full-screen mouse-enabled frame")
	}

	out := stripANSI(m.renderFrame())
	for _, want := range []string{"Test Board", "Hello", "1 cards"} {
		if !strings.Contains(out, want) {
			t.Fatalf("frame missing %q", want)
		}
	}
}

func TestViewRendersDeletePrompt(t *testing.T) {
	m, _ := newTestModel(t, testNote(t, "a", 100, 100, "hello"))
	m = applyKey(t, m, 'a')
	m = applyKey(t, m, 'x')

	out := stripANSI(m.renderFrame())
	if !strings.Contains(out, "delete 1 cards?") {
		t.Fatal("frame missing the delete prompt")
	}
}

// stripANSI drops escape sequences so content assertions see plain text.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == 0x1b:
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
