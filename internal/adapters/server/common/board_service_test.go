package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
)

// memStore is an in-memory Store for exercising the service without SQLite.
type memStore struct {
	boards map[string]domain.Board
	cards  map[string]domain.Card
}

func newMemStore() *memStore {
	return &memStore{
		boards: map[string]domain.Board{},
		cards:  map[string]domain.Card{},
	}
}

func (m *memStore) CreateBoard(_ context.Context, b domain.Board) error {
	m.boards[b.ID] = b
	return nil
}

func (m *memStore) UpdateBoard(_ context.Context, b domain.Board) error {
	if _, ok := m.boards[b.ID]; !ok {
		return engine.ErrNotFound
	}
	m.boards[b.ID] = b
	return nil
}

func (m *memStore) GetBoard(_ context.Context, id string) (domain.Board, error) {
	b, ok := m.boards[id]
	if !ok {
		return domain.Board{}, engine.ErrNotFound
	}
	return b, nil
}

func (m *memStore) ListBoards(_ context.Context, includeArchived bool) ([]domain.Board, error) {
	var out []domain.Board
	for _, b := range m.boards {
		if !includeArchived && b.ArchivedAt != nil {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteBoard(_ context.Context, id string) error {
	if _, ok := m.boards[id]; !ok {
		return engine.ErrNotFound
	}
	delete(m.boards, id)
	for cid, c := range m.cards {
		if c.BoardID == id {
			delete(m.cards, cid)
		}
	}
	return nil
}

func (m *memStore) CreateCard(_ context.Context, c domain.Card) error {
	m.cards[c.ID] = c
	return nil
}

func (m *memStore) GetCard(_ context.Context, boardID, cardID string) (domain.Card, error) {
	c, ok := m.cards[cardID]
	if !ok || c.BoardID != boardID {
		return domain.Card{}, engine.ErrNotFound
	}
	return c, nil
}

func (m *memStore) ListCards(_ context.Context, boardID string) ([]domain.Card, error) {
	var out []domain.Card
	for _, c := range m.cards {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderKey < out[j].OrderKey })
	return out, nil
}

func (m *memStore) UpdateCardTransform(_ context.Context, boardID, cardID string, patch engine.TransformPatch) error {
	c, ok := m.cards[cardID]
	if !ok || c.BoardID != boardID {
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
	if patch.ClearHeight {
		c.Height = nil
	} else if patch.Height != nil {
		h := *patch.Height
		c.Height = &h
	}
	if patch.OrderKey != nil {
		c.OrderKey = *patch.OrderKey
	}
	m.cards[cardID] = c
	return nil
}

func (m *memStore) UpdateCardPayload(_ context.Context, boardID, cardID string, kind domain.CardKind, payload domain.Payload) error {
	c, ok := m.cards[cardID]
	if !ok || c.BoardID != boardID {
		return engine.ErrNotFound
	}
	if c.Kind != kind {
		return domain.ErrPayloadMismatch
	}
	c.Payload = payload
	m.cards[cardID] = c
	return nil
}

func (m *memStore) DeleteCard(_ context.Context, boardID, cardID string) error {
	c, ok := m.cards[cardID]
	if !ok || c.BoardID != boardID {
		return engine.ErrNotFound
	}
	delete(m.cards, cardID)
	return nil
}

func newTestService(t *testing.T) (*BoardService, *memStore) {
	t.Helper()
	store := newMemStore()
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	svc, err := NewBoardService(store, ids, clock, nil)
	if err != nil {
		t.Fatalf("NewBoardService: %v", err)
	}
	return svc, store
}

func TestBoardLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "sketches"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if b.Name != "sketches" || b.Archived {
		t.Fatalf("unexpected board: %+v", b)
	}

	name := "plans"
	archived := true
	b, err = svc.UpdateBoard(ctx, b.ID, UpdateBoardRequest{Name: &name, Archived: &archived})
	if err != nil {
		t.Fatalf("UpdateBoard: %v", err)
	}
	if b.Name != "plans" || !b.Archived {
		t.Fatalf("update not applied: %+v", b)
	}

	visible, err := svc.ListBoards(ctx, false)
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("archived board listed: %+v", visible)
	}
	all, err := svc.ListBoards(ctx, true)
	if err != nil {
		t.Fatalf("ListBoards all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one board, got %d", len(all))
	}
}

func TestCreateBoardRejectsEmptyName(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateBoard(context.Background(), CreateBoardRequest{Name: "   "})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUpdateBoardWithoutFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "b"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if _, err := svc.UpdateBoard(ctx, b.ID, UpdateBoardRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCreateCardAppendsOrderKeys(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "b"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	var keys []string
	for i := 0; i < 3; i++ {
		rec, err := svc.CreateCard(ctx, CreateCardRequest{
			BoardID: b.ID,
			Kind:    string(domain.KindNote),
			X:       float64(i * 10),
			Width:   200,
		})
		if err != nil {
			t.Fatalf("CreateCard %d: %v", i, err)
		}
		keys = append(keys, rec.OrderKey)
	}
	if keys[0] != engine.FirstOrderKey() {
		t.Fatalf("first key %q", keys[0])
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			t.Fatalf("keys not ascending: %v", keys)
		}
	}
}

func TestCreateCardDecodesPayload(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "b"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	rec, err := svc.CreateCard(ctx, CreateCardRequest{
		BoardID: b.ID,
		Kind:    string(domain.KindNote),
		Width:   240,
		Payload: json.RawMessage(`{"markdown":"hello"}`),
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	var np domain.NotePayload
	if err := json.Unmarshal(rec.Payload, &np); err != nil {
		t.Fatalf("decode record payload: %v", err)
	}
	if np.Markdown != "hello" {
		t.Fatalf("payload lost: %+v", np)
	}

	if _, err := svc.CreateCard(ctx, CreateCardRequest{BoardID: b.ID, Kind: "bogus"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("bogus kind must be rejected, got %v", err)
	}
}

func TestMoveCardRefusesLocked(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "b"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	rec, err := svc.CreateCard(ctx, CreateCardRequest{BoardID: b.ID, Kind: string(domain.KindNote), Width: 200})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	moved, err := svc.MoveCard(ctx, MoveCardRequest{BoardID: b.ID, CardID: rec.ID, X: 50, Y: 60})
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if moved.X != 50 || moved.Y != 60 {
		t.Fatalf("move not applied: %+v", moved)
	}

	c := store.cards[rec.ID]
	c.PositionLocked = true
	store.cards[rec.ID] = c
	if _, err := svc.MoveCard(ctx, MoveCardRequest{BoardID: b.ID, CardID: rec.ID, X: 1, Y: 1}); !errors.Is(err, engine.ErrCardLocked) {
		t.Fatalf("expected ErrCardLocked, got %v", err)
	}
}

func TestConnectCardsAttachesFacingSides(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "b"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	left, err := svc.CreateCard(ctx, CreateCardRequest{BoardID: b.ID, Kind: string(domain.KindNote), X: 0, Y: 0, Width: 200})
	if err != nil {
		t.Fatalf("create left: %v", err)
	}
	right, err := svc.CreateCard(ctx, CreateCardRequest{BoardID: b.ID, Kind: string(domain.KindNote), X: 600, Y: 0, Width: 200})
	if err != nil {
		t.Fatalf("create right: %v", err)
	}

	line, err := svc.ConnectCards(ctx, ConnectCardsRequest{BoardID: b.ID, FromID: left.ID, ToID: right.ID})
	if err != nil {
		t.Fatalf("ConnectCards: %v", err)
	}
	if line.Kind != string(domain.KindLine) {
		t.Fatalf("expected line card, got %q", line.Kind)
	}
	var lp domain.LinePayload
	if err := json.Unmarshal(line.Payload, &lp); err != nil {
		t.Fatalf("decode line payload: %v", err)
	}
	if lp.Start.AttachedCardID != left.ID || lp.Start.AttachedSide != domain.SideRight {
		t.Fatalf("start endpoint wrong: %+v", lp.Start)
	}
	if lp.End.AttachedCardID != right.ID || lp.End.AttachedSide != domain.SideLeft {
		t.Fatalf("end endpoint wrong: %+v", lp.End)
	}
	if lp.Start.Offset != 0.5 || lp.End.Offset != 0.5 {
		t.Fatalf("offsets must be midpoints: %+v", lp)
	}
}

func TestConnectCardsRefusals(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b, err := svc.CreateBoard(ctx, CreateBoardRequest{Name: "b"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	a, err := svc.CreateCard(ctx, CreateCardRequest{BoardID: b.ID, Kind: string(domain.KindNote), Width: 200})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	c, err := svc.CreateCard(ctx, CreateCardRequest{BoardID: b.ID, Kind: string(domain.KindNote), X: 300, Width: 200})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	line, err := svc.ConnectCards(ctx, ConnectCardsRequest{BoardID: b.ID, FromID: a.ID, ToID: c.ID})
	if err != nil {
		t.Fatalf("ConnectCards: %v", err)
	}

	if _, err := svc.ConnectCards(ctx, ConnectCardsRequest{BoardID: b.ID, FromID: a.ID, ToID: a.ID}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("self connection must be rejected, got %v", err)
	}
	if _, err := svc.ConnectCards(ctx, ConnectCardsRequest{BoardID: b.ID, FromID: a.ID, ToID: line.ID}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("line target must be rejected, got %v", err)
	}
	if _, err := svc.ConnectCards(ctx, ConnectCardsRequest{BoardID: b.ID, FromID: a.ID, ToID: "ghost"}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("missing target must be not found, got %v", err)
	}
}
