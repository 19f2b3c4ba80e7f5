package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(t.TempDir() + "/tavla.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testBoard(t *testing.T, repo *Repository, id string) domain.Board {
	t.Helper()
	b, err := domain.NewBoard(id, "Board "+id, time.Now())
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	if err := repo.CreateBoard(context.Background(), b); err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	return b
}

func testCard(t *testing.T, id, boardID string, kind domain.CardKind, key string, payload domain.Payload) domain.Card {
	t.Helper()
	c, err := domain.NewCard(id, boardID, kind, 10, 20, 200, key, payload, time.Now())
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	return c
}

func TestCardRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	testBoard(t, repo, "b1")

	card := testCard(t, "c1", "b1", domain.KindNote, "V", domain.NotePayload{Markdown: "# hello", Color: "amber"})
	h := 140.0
	card.Height = &h
	card.PositionLocked = true
	if err := repo.CreateCard(ctx, card); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	got, err := repo.GetCard(ctx, "b1", "c1")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Kind != domain.KindNote || got.X != 10 || got.Y != 20 || got.Width != 200 {
		t.Fatalf("geometry mismatch: %+v", got)
	}
	if got.Height == nil || *got.Height != 140 {
		t.Fatalf("height mismatch: %v", got.Height)
	}
	if !got.PositionLocked {
		t.Fatal("lock flag lost")
	}
	note, ok := got.Payload.(domain.NotePayload)
	if !ok || note.Markdown != "# hello" || note.Color != "amber" {
		t.Fatalf("payload mismatch: %#v", got.Payload)
	}
}

func TestLinePayloadRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	testBoard(t, repo, "b1")

	lp := domain.LinePayload{
		Start:     domain.Endpoint{X: 1, Y: 2},
		End:       domain.Endpoint{X: 3, Y: 4},
		Waypoints: []domain.Waypoint{{ID: "w1", X: 10, Y: -5}},
		Curvature: 12.5,
	}
	if err := lp.End.AttachTo("other", domain.SideLeft, 0.5); err != nil {
		t.Fatalf("AttachTo: %v", err)
	}
	line, err := domain.NewCard("l1", "b1", domain.KindLine, 1, 2, 0, "V", lp, time.Now())
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	if err := repo.CreateCard(ctx, line); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	got, err := repo.GetCard(ctx, "b1", "l1")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	decoded, ok := got.Line()
	if !ok {
		t.Fatalf("payload type %T", got.Payload)
	}
	if decoded.End.AttachedCardID != "other" || decoded.End.AttachedSide != domain.SideLeft {
		t.Fatalf("attachment lost: %+v", decoded.End)
	}
	if len(decoded.Waypoints) != 1 || decoded.Waypoints[0].ID != "w1" {
		t.Fatalf("waypoints lost: %+v", decoded.Waypoints)
	}
	if decoded.Curvature != 12.5 {
		t.Fatalf("curvature %v, want 12.5", decoded.Curvature)
	}
}

func TestUpdateCardTransformPartialPatch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	testBoard(t, repo, "b1")
	card := testCard(t, "c1", "b1", domain.KindNote, "V", nil)
	h := 100.0
	card.Height = &h
	if err := repo.CreateCard(ctx, card); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	x := 99.0
	if err := repo.UpdateCardTransform(ctx, "b1", "c1", engine.TransformPatch{X: &x}); err != nil {
		t.Fatalf("patch x: %v", err)
	}
	got, _ := repo.GetCard(ctx, "b1", "c1")
	if got.X != 99 || got.Y != 20 || got.Height == nil {
		t.Fatalf("partial patch touched other fields: %+v", got)
	}

	if err := repo.UpdateCardTransform(ctx, "b1", "c1", engine.TransformPatch{ClearHeight: true}); err != nil {
		t.Fatalf("clear height: %v", err)
	}
	got, _ = repo.GetCard(ctx, "b1", "c1")
	if got.Height != nil {
		t.Fatal("ClearHeight must null the stored height")
	}

	key := "W"
	if err := repo.UpdateCardTransform(ctx, "b1", "c1", engine.TransformPatch{OrderKey: &key}); err != nil {
		t.Fatalf("patch order key: %v", err)
	}
	got, _ = repo.GetCard(ctx, "b1", "c1")
	if got.OrderKey != "W" {
		t.Fatalf("order key %q, want W", got.OrderKey)
	}

	locked := true
	if err := repo.UpdateCardTransform(ctx, "b1", "c1", engine.TransformPatch{PositionLocked: &locked}); err != nil {
		t.Fatalf("patch lock: %v", err)
	}
	got, _ = repo.GetCard(ctx, "b1", "c1")
	if !got.PositionLocked {
		t.Fatal("lock patch not persisted")
	}

	if err := repo.UpdateCardTransform(ctx, "b1", "missing", engine.TransformPatch{X: &x}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("missing card: expected ErrNotFound, got %v", err)
	}
	// An empty patch is a no-op, not an error.
	if err := repo.UpdateCardTransform(ctx, "b1", "c1", engine.TransformPatch{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}
}

func TestUpdateCardPayloadGuardsKind(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	testBoard(t, repo, "b1")
	if err := repo.CreateCard(ctx, testCard(t, "c1", "b1", domain.KindNote, "V", nil)); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	err := repo.UpdateCardPayload(ctx, "b1", "c1", domain.KindNote, domain.TextPayload{Text: "x"})
	if !errors.Is(err, domain.ErrPayloadMismatch) {
		t.Fatalf("expected ErrPayloadMismatch, got %v", err)
	}
	if err := repo.UpdateCardPayload(ctx, "b1", "c1", domain.KindNote, domain.NotePayload{Markdown: "y"}); err != nil {
		t.Fatalf("UpdateCardPayload: %v", err)
	}
	got, _ := repo.GetCard(ctx, "b1", "c1")
	if got.Payload.(domain.NotePayload).Markdown != "y" {
		t.Fatalf("payload not replaced: %#v", got.Payload)
	}
}

func TestRemoveCardFromColumnIsIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	testBoard(t, repo, "b1")
	col := testCard(t, "col", "b1", domain.KindColumn, "V", domain.ColumnPayload{
		Items: []domain.ColumnItem{
			{CardID: "a", Position: 0},
			{CardID: "b", Position: 1},
		},
	})
	if err := repo.CreateCard(ctx, col); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	if err := repo.RemoveCardFromColumn(ctx, "b1", "col", "a"); err != nil {
		t.Fatalf("RemoveCardFromColumn: %v", err)
	}
	got, _ := repo.GetCard(ctx, "b1", "col")
	payload := got.Payload.(domain.ColumnPayload)
	if payload.Contains("a") {
		t.Fatal("card still referenced")
	}
	if payload.Items[0].CardID != "b" || payload.Items[0].Position != 0 {
		t.Fatalf("remaining items not renumbered: %+v", payload.Items)
	}

	// Removing again is a no-op.
	if err := repo.RemoveCardFromColumn(ctx, "b1", "col", "a"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	repo := openTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	testBoard(t, repo, "b1")
	if err := repo.CreateCard(ctx, testCard(t, "c1", "b1", domain.KindNote, "V", nil)); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	stream, err := repo.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	initial := <-stream
	if len(initial) != 1 || initial[0].ID != "c1" {
		t.Fatalf("initial snapshot %+v", initial)
	}

	if err := repo.CreateCard(ctx, testCard(t, "c2", "b1", domain.KindText, "W", nil)); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	select {
	case next := <-stream:
		if len(next) != 2 {
			t.Fatalf("snapshot after write has %d cards", len(next))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after write")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed after cancel")
		}
	}
}

func TestSubscribeCoalescesForSlowConsumers(t *testing.T) {
	repo := openTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	testBoard(t, repo, "b1")

	stream, err := repo.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// Do not read: several writes pile up while the consumer is away.
	for i, id := range []string{"c1", "c2", "c3"} {
		key := string(rune('M' + i))
		if err := repo.CreateCard(ctx, testCard(t, id, "b1", domain.KindNote, key, nil)); err != nil {
			t.Fatalf("CreateCard %s: %v", id, err)
		}
	}

	// The pending snapshot is the latest one, not a backlog of stale ones.
	got := <-stream
	if len(got) != 3 {
		t.Fatalf("coalesced snapshot has %d cards, want 3", len(got))
	}
}

func TestBoardLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	b := testBoard(t, repo, "b1")
	testBoard(t, repo, "b2")

	boards, err := repo.ListBoards(ctx, false)
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(boards) != 2 {
		t.Fatalf("expected 2 boards, got %d", len(boards))
	}

	b.Archive(time.Now())
	if err := repo.UpdateBoard(ctx, b); err != nil {
		t.Fatalf("UpdateBoard: %v", err)
	}
	boards, _ = repo.ListBoards(ctx, false)
	if len(boards) != 1 || boards[0].ID != "b2" {
		t.Fatalf("archived board still listed: %+v", boards)
	}
	boards, _ = repo.ListBoards(ctx, true)
	if len(boards) != 2 {
		t.Fatal("includeArchived must list archived boards")
	}

	if err := repo.DeleteBoard(ctx, "b2"); err != nil {
		t.Fatalf("DeleteBoard: %v", err)
	}
	if _, err := repo.GetBoard(ctx, "b2"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestEngineWiredToSQLite(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	testBoard(t, repo, "b1")

	e := engine.New(repo, "b1", engine.DefaultConfig(), nil, nil, nil)
	if err := e.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	id, err := e.CreateCard(ctx, domain.KindNote, engine.Point{X: 5, Y: 6}, 200, nil)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	got, err := repo.GetCard(ctx, "b1", id)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.X != 5 || got.Y != 6 {
		t.Fatalf("card at (%v,%v), want (5,6)", got.X, got.Y)
	}
}
