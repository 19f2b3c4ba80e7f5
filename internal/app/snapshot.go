// Package app implements board-level application services that sit above the
// storage layer, currently snapshot export and import.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
)

// SnapshotVersion tags the on-disk snapshot format.
const SnapshotVersion = "tavla.snapshot.v1"

// Store is the persistence surface snapshots are read from and written to.
// The SQLite repository satisfies it.
type Store interface {
	CreateBoard(ctx context.Context, b domain.Board) error
	UpdateBoard(ctx context.Context, b domain.Board) error
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	ListBoards(ctx context.Context, includeArchived bool) ([]domain.Board, error)

	CreateCard(ctx context.Context, c domain.Card) error
	GetCard(ctx context.Context, boardID, cardID string) (domain.Card, error)
	ListCards(ctx context.Context, boardID string) ([]domain.Card, error)
	DeleteCard(ctx context.Context, boardID, cardID string) error
}

// Service exposes snapshot operations over a Store.
type Service struct {
	store Store
	clock engine.Clock
}

// NewService builds the snapshot service. A nil clock gets time.Now.
func NewService(store Store, clock engine.Clock) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, clock: clock}, nil
}

// Snapshot is the portable JSON dump of every board and card.
type Snapshot struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Boards     []SnapshotBoard `json:"boards"`
	Cards      []SnapshotCard  `json:"cards"`
}

// SnapshotBoard mirrors one board row.
type SnapshotBoard struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// SnapshotCard mirrors one card row. Payload is the kind-specific body as raw
// JSON; Height is absent for content-driven cards.
type SnapshotCard struct {
	ID             string          `json:"id"`
	BoardID        string          `json:"board_id"`
	Kind           string          `json:"kind"`
	X              float64         `json:"x"`
	Y              float64         `json:"y"`
	Width          float64         `json:"width"`
	Height         *float64        `json:"height,omitempty"`
	OrderKey       string          `json:"order_key"`
	PositionLocked bool            `json:"position_locked,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ExportSnapshot dumps all boards and their cards.
func (s *Service) ExportSnapshot(ctx context.Context, includeArchived bool) (Snapshot, error) {
	boards, err := s.store.ListBoards(ctx, includeArchived)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list boards: %w", err)
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Boards:     make([]SnapshotBoard, 0, len(boards)),
		Cards:      make([]SnapshotCard, 0),
	}
	for _, board := range boards {
		snap.Boards = append(snap.Boards, snapshotBoardFromDomain(board))

		cards, err := s.store.ListCards(ctx, board.ID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("list cards for board %s: %w", board.ID, err)
		}
		for _, card := range cards {
			sc, err := snapshotCardFromDomain(card)
			if err != nil {
				return Snapshot{}, err
			}
			snap.Cards = append(snap.Cards, sc)
		}
	}

	snap.sort()
	return snap, nil
}

// ImportSnapshot writes a snapshot into the store. Boards and cards already
// present under the same id are replaced; everything else is left alone.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, sb := range snap.Boards {
		board := sb.toDomain()
		if _, err := s.store.GetBoard(ctx, board.ID); err == nil {
			if err := s.store.UpdateBoard(ctx, board); err != nil {
				return fmt.Errorf("update board %s: %w", board.ID, err)
			}
			continue
		} else if !errors.Is(err, engine.ErrNotFound) {
			return err
		}
		if err := s.store.CreateBoard(ctx, board); err != nil {
			return fmt.Errorf("create board %s: %w", board.ID, err)
		}
	}

	for _, sc := range snap.Cards {
		card, err := sc.toDomain()
		if err != nil {
			return err
		}
		// Replace rather than patch so the imported row carries the
		// snapshot's timestamps and lock state verbatim.
		if _, err := s.store.GetCard(ctx, card.BoardID, card.ID); err == nil {
			if err := s.store.DeleteCard(ctx, card.BoardID, card.ID); err != nil {
				return fmt.Errorf("replace card %s: %w", card.ID, err)
			}
		} else if !errors.Is(err, engine.ErrNotFound) {
			return err
		}
		if err := s.store.CreateCard(ctx, card); err != nil {
			return fmt.Errorf("create card %s: %w", card.ID, err)
		}
	}
	return nil
}

// Validate checks version and referential integrity before import.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	boardIDs := make(map[string]struct{}, len(s.Boards))
	for _, b := range s.Boards {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return errors.New("snapshot board with empty id")
		}
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("snapshot board %s has empty name", id)
		}
		if _, ok := boardIDs[id]; ok {
			return fmt.Errorf("duplicate snapshot board id %s", id)
		}
		boardIDs[id] = struct{}{}
	}

	cardIDs := make(map[string]struct{}, len(s.Cards))
	for _, c := range s.Cards {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return errors.New("snapshot card with empty id")
		}
		if _, ok := cardIDs[id]; ok {
			return fmt.Errorf("duplicate snapshot card id %s", id)
		}
		cardIDs[id] = struct{}{}
		if _, ok := boardIDs[strings.TrimSpace(c.BoardID)]; !ok {
			return fmt.Errorf("snapshot card %s references unknown board %q", id, c.BoardID)
		}
		if !domain.ValidKind(domain.CardKind(c.Kind)) {
			return fmt.Errorf("snapshot card %s has unknown kind %q", id, c.Kind)
		}
		if strings.TrimSpace(c.OrderKey) == "" {
			return fmt.Errorf("snapshot card %s has empty order key", id)
		}
	}
	return nil
}

// sort orders boards by id and cards by board id then order key so exports
// are deterministic and diffs stay readable.
func (s *Snapshot) sort() {
	sort.Slice(s.Boards, func(i, j int) bool { return s.Boards[i].ID < s.Boards[j].ID })
	sort.Slice(s.Cards, func(i, j int) bool {
		a, b := s.Cards[i], s.Cards[j]
		if a.BoardID != b.BoardID {
			return a.BoardID < b.BoardID
		}
		if a.OrderKey != b.OrderKey {
			return a.OrderKey < b.OrderKey
		}
		return a.ID < b.ID
	})
}

func snapshotBoardFromDomain(b domain.Board) SnapshotBoard {
	return SnapshotBoard{
		ID:         b.ID,
		Name:       b.Name,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
		ArchivedAt: b.ArchivedAt,
	}
}

func (b SnapshotBoard) toDomain() domain.Board {
	return domain.Board{
		ID:         strings.TrimSpace(b.ID),
		Name:       strings.TrimSpace(b.Name),
		CreatedAt:  b.CreatedAt.UTC(),
		UpdatedAt:  b.UpdatedAt.UTC(),
		ArchivedAt: b.ArchivedAt,
	}
}

func snapshotCardFromDomain(c domain.Card) (SnapshotCard, error) {
	raw, err := domain.EncodePayload(c.Kind, c.Payload)
	if err != nil {
		return SnapshotCard{}, fmt.Errorf("encode payload for card %s: %w", c.ID, err)
	}
	return SnapshotCard{
		ID:             c.ID,
		BoardID:        c.BoardID,
		Kind:           string(c.Kind),
		X:              c.X,
		Y:              c.Y,
		Width:          c.Width,
		Height:         c.Height,
		OrderKey:       c.OrderKey,
		PositionLocked: c.PositionLocked,
		Payload:        raw,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}, nil
}

func (c SnapshotCard) toDomain() (domain.Card, error) {
	kind := domain.CardKind(strings.TrimSpace(c.Kind))
	payload, err := domain.DecodePayload(kind, c.Payload)
	if err != nil {
		return domain.Card{}, fmt.Errorf("decode payload for card %s: %w", c.ID, err)
	}
	card := domain.Card{
		ID:             strings.TrimSpace(c.ID),
		BoardID:        strings.TrimSpace(c.BoardID),
		Kind:           kind,
		X:              domain.SanitizeCoord(c.X),
		Y:              domain.SanitizeCoord(c.Y),
		Width:          domain.ClampWidth(kind, c.Width),
		OrderKey:       strings.TrimSpace(c.OrderKey),
		PositionLocked: c.PositionLocked,
		Payload:        payload,
		CreatedAt:      c.CreatedAt.UTC(),
		UpdatedAt:      c.UpdatedAt.UTC(),
	}
	if c.Height != nil {
		h := domain.ClampHeight(kind, *c.Height)
		card.Height = &h
	}
	return card, nil
}
