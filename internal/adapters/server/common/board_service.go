package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
)

// Store is the persistence surface the server adapters operate on. The SQLite
// repository satisfies it.
type Store interface {
	CreateBoard(ctx context.Context, b domain.Board) error
	UpdateBoard(ctx context.Context, b domain.Board) error
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	ListBoards(ctx context.Context, includeArchived bool) ([]domain.Board, error)
	DeleteBoard(ctx context.Context, id string) error

	CreateCard(ctx context.Context, c domain.Card) error
	GetCard(ctx context.Context, boardID, cardID string) (domain.Card, error)
	ListCards(ctx context.Context, boardID string) ([]domain.Card, error)
	UpdateCardTransform(ctx context.Context, boardID, cardID string, patch engine.TransformPatch) error
	UpdateCardPayload(ctx context.Context, boardID, cardID string, kind domain.CardKind, payload domain.Payload) error
	DeleteCard(ctx context.Context, boardID, cardID string) error
}

// BoardService exposes board and card operations over a Store for the REST and
// MCP transports. It performs the same validation the TUI engine performs so
// remote writes cannot bypass domain rules.
type BoardService struct {
	store  Store
	ids    engine.IDGenerator
	clock  engine.Clock
	logger *charmLog.Logger
}

// NewBoardService builds the shared transport service. Nil idGen and clock
// get uuid/time defaults; a nil logger discards output.
func NewBoardService(store Store, idGen engine.IDGenerator, clock engine.Clock, logger *charmLog.Logger) (*BoardService, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &BoardService{store: store, ids: idGen, clock: clock, logger: logger}, nil
}

// ListBoards returns board summaries, newest first per store ordering.
func (s *BoardService) ListBoards(ctx context.Context, includeArchived bool) ([]BoardSummary, error) {
	boards, err := s.store.ListBoards(ctx, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	out := make([]BoardSummary, 0, len(boards))
	for _, b := range boards {
		out = append(out, boardSummary(b))
	}
	return out, nil
}

// CreateBoard creates one named board.
func (s *BoardService) CreateBoard(ctx context.Context, req CreateBoardRequest) (BoardSummary, error) {
	b, err := domain.NewBoard(s.ids(), req.Name, s.clock())
	if err != nil {
		return BoardSummary{}, invalid(err)
	}
	if err := s.store.CreateBoard(ctx, b); err != nil {
		return BoardSummary{}, fmt.Errorf("create board: %w", err)
	}
	s.logger.Info("board created", "board", b.ID, "name", b.Name)
	return boardSummary(b), nil
}

// GetBoard returns one board summary.
func (s *BoardService) GetBoard(ctx context.Context, id string) (BoardSummary, error) {
	b, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return BoardSummary{}, err
	}
	return boardSummary(b), nil
}

// UpdateBoard renames and/or toggles the archived state of one board.
func (s *BoardService) UpdateBoard(ctx context.Context, id string, req UpdateBoardRequest) (BoardSummary, error) {
	if req.Name == nil && req.Archived == nil {
		return BoardSummary{}, invalid(errors.New("no fields to update"))
	}
	b, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return BoardSummary{}, err
	}
	now := s.clock()
	if req.Name != nil {
		if err := b.Rename(*req.Name, now); err != nil {
			return BoardSummary{}, invalid(err)
		}
	}
	if req.Archived != nil {
		if *req.Archived {
			b.Archive(now)
		} else {
			b.Restore(now)
		}
	}
	if err := s.store.UpdateBoard(ctx, b); err != nil {
		return BoardSummary{}, fmt.Errorf("update board: %w", err)
	}
	return boardSummary(b), nil
}

// DeleteBoard removes one board and, through the store, its cards.
func (s *BoardService) DeleteBoard(ctx context.Context, id string) error {
	return s.store.DeleteBoard(ctx, id)
}

// ListCards returns all cards of one board in order-key order.
func (s *BoardService) ListCards(ctx context.Context, boardID string) ([]CardRecord, error) {
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	out := make([]CardRecord, 0, len(cards))
	for _, c := range cards {
		rec, err := cardRecord(c)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetCard returns one card record.
func (s *BoardService) GetCard(ctx context.Context, boardID, cardID string) (CardRecord, error) {
	c, err := s.store.GetCard(ctx, boardID, cardID)
	if err != nil {
		return CardRecord{}, err
	}
	return cardRecord(c)
}

// CreateCard places one new card at the end of the board's stacking order.
func (s *BoardService) CreateCard(ctx context.Context, req CreateCardRequest) (CardRecord, error) {
	kind := domain.CardKind(strings.TrimSpace(req.Kind))
	if !domain.ValidKind(kind) {
		return CardRecord{}, invalid(domain.ErrInvalidKind)
	}
	if _, err := s.store.GetBoard(ctx, req.BoardID); err != nil {
		return CardRecord{}, err
	}

	var payload domain.Payload
	if len(req.Payload) > 0 {
		p, err := domain.DecodePayload(kind, req.Payload)
		if err != nil {
			return CardRecord{}, invalid(err)
		}
		payload = p
	}

	key, err := s.appendOrderKey(ctx, req.BoardID)
	if err != nil {
		return CardRecord{}, err
	}
	card, err := domain.NewCard(s.ids(), req.BoardID, kind, req.X, req.Y, req.Width, key, payload, s.clock())
	if err != nil {
		return CardRecord{}, invalid(err)
	}
	if err := s.store.CreateCard(ctx, card); err != nil {
		return CardRecord{}, fmt.Errorf("create card: %w", err)
	}
	s.logger.Info("card created", "board", req.BoardID, "card", card.ID, "kind", kind)
	return cardRecord(card)
}

// MoveCard repositions one card, refusing position-locked cards.
func (s *BoardService) MoveCard(ctx context.Context, req MoveCardRequest) (CardRecord, error) {
	c, err := s.store.GetCard(ctx, req.BoardID, req.CardID)
	if err != nil {
		return CardRecord{}, err
	}
	if c.PositionLocked {
		return CardRecord{}, engine.ErrCardLocked
	}
	c.MoveTo(req.X, req.Y, s.clock())
	patch := engine.TransformPatch{X: &c.X, Y: &c.Y}
	if err := s.store.UpdateCardTransform(ctx, req.BoardID, req.CardID, patch); err != nil {
		return CardRecord{}, fmt.Errorf("move card: %w", err)
	}
	return cardRecord(c)
}

// DeleteCard removes one card.
func (s *BoardService) DeleteCard(ctx context.Context, boardID, cardID string) error {
	return s.store.DeleteCard(ctx, boardID, cardID)
}

// ConnectCards creates a line card whose endpoints attach to the facing edges
// of two existing cards at their midpoints.
func (s *BoardService) ConnectCards(ctx context.Context, req ConnectCardsRequest) (CardRecord, error) {
	if req.FromID == req.ToID {
		return CardRecord{}, invalid(errors.New("cannot connect a card to itself"))
	}
	from, err := s.store.GetCard(ctx, req.BoardID, req.FromID)
	if err != nil {
		return CardRecord{}, err
	}
	to, err := s.store.GetCard(ctx, req.BoardID, req.ToID)
	if err != nil {
		return CardRecord{}, err
	}
	if !domain.CapabilityFor(from.Kind).Connectable || !domain.CapabilityFor(to.Kind).Connectable {
		return CardRecord{}, invalid(domain.ErrNotConnectable)
	}

	fromBox := cardBox(from)
	toBox := cardBox(to)
	fromSide, toSide := facingSides(fromBox, toBox)
	start := engine.Anchor(fromBox, fromSide, 0.5)
	end := engine.Anchor(toBox, toSide, 0.5)

	lp := domain.LinePayload{
		Start: domain.Endpoint{X: start.X, Y: start.Y},
		End:   domain.Endpoint{X: end.X, Y: end.Y},
	}
	if err := lp.Start.AttachTo(from.ID, fromSide, 0.5); err != nil {
		return CardRecord{}, invalid(err)
	}
	if err := lp.End.AttachTo(to.ID, toSide, 0.5); err != nil {
		return CardRecord{}, invalid(err)
	}

	key, err := s.appendOrderKey(ctx, req.BoardID)
	if err != nil {
		return CardRecord{}, err
	}
	line, err := domain.NewCard(s.ids(), req.BoardID, domain.KindLine, start.X, start.Y, 0, key, lp, s.clock())
	if err != nil {
		return CardRecord{}, invalid(err)
	}
	if err := s.store.CreateCard(ctx, line); err != nil {
		return CardRecord{}, fmt.Errorf("create line: %w", err)
	}
	s.logger.Info("cards connected", "board", req.BoardID, "from", from.ID, "to", to.ID, "line", line.ID)
	return cardRecord(line)
}

// appendOrderKey returns a key after every existing card on the board.
func (s *BoardService) appendOrderKey(ctx context.Context, boardID string) (string, error) {
	cards, err := s.store.ListCards(ctx, boardID)
	if err != nil {
		return "", fmt.Errorf("list cards: %w", err)
	}
	if len(cards) == 0 {
		return engine.FirstOrderKey(), nil
	}
	max := cards[0].OrderKey
	for _, c := range cards[1:] {
		if c.OrderKey > max {
			max = c.OrderKey
		}
	}
	key, err := engine.KeyBetween(max, "")
	if err != nil {
		return "", fmt.Errorf("order key: %w", err)
	}
	return key, nil
}

// facingSides picks the anchor sides on the dominant axis between two boxes.
func facingSides(from, to engine.CardBox) (domain.Side, domain.Side) {
	dx := (to.X + to.W/2) - (from.X + from.W/2)
	dy := (to.Y + to.H/2) - (from.Y + from.H/2)
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return domain.SideRight, domain.SideLeft
		}
		return domain.SideLeft, domain.SideRight
	}
	if dy >= 0 {
		return domain.SideBottom, domain.SideTop
	}
	return domain.SideTop, domain.SideBottom
}

func cardBox(c domain.Card) engine.CardBox {
	return engine.CardBox{ID: c.ID, Kind: c.Kind, X: c.X, Y: c.Y, W: c.Width, H: c.EffectiveHeight(0)}
}

func boardSummary(b domain.Board) BoardSummary {
	return BoardSummary{
		ID:        b.ID,
		Name:      b.Name,
		Archived:  b.ArchivedAt != nil,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func cardRecord(c domain.Card) (CardRecord, error) {
	raw, err := domain.EncodePayload(c.Kind, c.Payload)
	if err != nil {
		return CardRecord{}, fmt.Errorf("encode payload for card %s: %w", c.ID, err)
	}
	return CardRecord{
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

// invalid tags err as a request validation failure.
func invalid(err error) error {
	return errors.Join(ErrInvalidRequest, err)
}
