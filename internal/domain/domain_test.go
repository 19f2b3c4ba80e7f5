package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewCardValidates(t *testing.T) {
	now := time.Now()

	if _, err := NewCard("", "b1", KindNote, 0, 0, 200, "V", nil, now); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewCard("c1", "", KindNote, 0, 0, 200, "V", nil, now); !errors.Is(err, ErrInvalidBoardID) {
		t.Fatalf("expected ErrInvalidBoardID, got %v", err)
	}
	if _, err := NewCard("c1", "b1", CardKind("bogus"), 0, 0, 200, "V", nil, now); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if _, err := NewCard("c1", "b1", KindNote, 0, 0, 200, "", nil, now); !errors.Is(err, ErrInvalidOrderKey) {
		t.Fatalf("expected ErrInvalidOrderKey, got %v", err)
	}
	if _, err := NewCard("c1", "b1", KindNote, 0, 0, 200, "V", TextPayload{Text: "x"}, now); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("expected ErrPayloadMismatch, got %v", err)
	}

	card, err := NewCard("c1", "b1", KindNote, 10, 20, 200, "V", nil, now)
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	if _, ok := card.Payload.(NotePayload); !ok {
		t.Fatalf("expected default note payload, got %T", card.Payload)
	}
	if card.Height != nil {
		t.Fatalf("expected content-driven height for new card")
	}
}

func TestNewCardSanitizesGeometry(t *testing.T) {
	card, err := NewCard("c1", "b1", KindNote, math.NaN(), math.Inf(1), math.NaN(), "V", nil, time.Now())
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	if card.X != 0 || card.Y != 0 {
		t.Fatalf("expected degenerate coords clamped to 0, got (%v, %v)", card.X, card.Y)
	}
	if card.Width != CapabilityFor(KindNote).MinWidth {
		t.Fatalf("expected NaN width clamped to min, got %v", card.Width)
	}
}

func TestClampWidthBounds(t *testing.T) {
	c := CapabilityFor(KindNote)
	if got := ClampWidth(KindNote, c.MinWidth-50); got != c.MinWidth {
		t.Fatalf("below min: got %v want %v", got, c.MinWidth)
	}
	if got := ClampWidth(KindNote, c.MaxWidth+50); got != c.MaxWidth {
		t.Fatalf("above max: got %v want %v", got, c.MaxWidth)
	}
	if got := ClampWidth(KindNote, 300); got != 300 {
		t.Fatalf("in range: got %v want 300", got)
	}
}

func TestCapabilityTable(t *testing.T) {
	if CapabilityFor(KindLine).Connectable {
		t.Fatal("lines must not accept line attachments")
	}
	if CapabilityFor(KindLine).Columnable || CapabilityFor(KindColumn).Columnable {
		t.Fatal("lines and columns must not be insertable into columns")
	}
	if CapabilityFor(KindNote).Height != HeightHybrid {
		t.Fatal("note cards use hybrid height mode")
	}
	if CapabilityFor(KindText).Resize != ResizeWidthOnly {
		t.Fatal("text cards are width-only resizable")
	}
	if !CapabilityFor(KindImage).FixedAspect {
		t.Fatal("image cards keep a fixed aspect")
	}
	if got := CapabilityFor(CardKind("mystery")); got.Resize != ResizeNone || got.Connectable {
		t.Fatalf("unknown kinds get the conservative entry, got %+v", got)
	}
}

func TestColumnPayloadSplice(t *testing.T) {
	var col ColumnPayload
	col.Insert("a", 0)
	col.Insert("b", 1)
	col.Insert("c", 2)

	col.Insert("x", 1)
	want := []string{"a", "x", "b", "c"}
	got := col.OrderedIDs()
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	for i, item := range col.Items {
		if item.Position != i {
			t.Fatalf("positions not contiguous: %+v", col.Items)
		}
	}

	// Reinserting an existing member reorders it.
	col.Insert("a", 3)
	if col.Items[0].CardID != "x" || col.Items[len(col.Items)-1].CardID != "c" {
		t.Fatalf("unexpected order after reorder: %+v", col.Items)
	}
	if !col.Remove("x") {
		t.Fatal("Remove returned false for member")
	}
	if col.Remove("x") {
		t.Fatal("Remove returned true for non-member")
	}
	for i, item := range col.Items {
		if item.Position != i {
			t.Fatalf("positions not renumbered after remove: %+v", col.Items)
		}
	}
}

func TestEndpointAttachDetach(t *testing.T) {
	e := Endpoint{X: 5, Y: 6}
	if e.Attached() {
		t.Fatal("fresh endpoint must be free")
	}
	if err := e.AttachTo("", SideTop, 0.5); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := e.AttachTo("c1", Side("diagonal"), 0.5); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
	if err := e.AttachTo("c1", SideRight, 1.5); !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("expected ErrInvalidOffset, got %v", err)
	}
	if err := e.AttachTo("c1", SideRight, 0.5); err != nil {
		t.Fatalf("AttachTo: %v", err)
	}
	if !e.Attached() {
		t.Fatal("endpoint should be attached")
	}
	e.Detach()
	if e.Attached() {
		t.Fatal("endpoint should be free after Detach")
	}
	if e.X != 5 || e.Y != 6 {
		t.Fatal("Detach must keep the literal coordinate")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	p := LinePayload{
		Start:     Endpoint{X: 1, Y: 2},
		End:       Endpoint{AttachedCardID: "c2", AttachedSide: SideLeft, Offset: 0.5},
		Waypoints: []Waypoint{{ID: "w1", X: 10, Y: -4}},
		Curvature: 12,
	}
	raw, err := EncodePayload(KindLine, p)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	decoded, err := DecodePayload(KindLine, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	line, ok := decoded.(LinePayload)
	if !ok {
		t.Fatalf("decoded wrong type %T", decoded)
	}
	if !line.End.Attached() || line.End.AttachedSide != SideLeft {
		t.Fatalf("attachment lost in round trip: %+v", line.End)
	}
	if len(line.Waypoints) != 1 || line.Waypoints[0].ID != "w1" {
		t.Fatalf("waypoints lost in round trip: %+v", line.Waypoints)
	}

	if _, err := EncodePayload(KindNote, p); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("expected ErrPayloadMismatch, got %v", err)
	}
	if _, err := DecodePayload(CardKind("bogus"), raw); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
