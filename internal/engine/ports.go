package engine

import (
	"context"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// TransformPatch carries a partial geometry update for one card. Nil fields
// are left untouched; ClearHeight switches the card back to content-driven
// height and wins over Height.
type TransformPatch struct {
	X              *float64
	Y              *float64
	Width          *float64
	Height         *float64
	ClearHeight    bool
	OrderKey       *string
	PositionLocked *bool
}

// Empty reports whether the patch changes nothing.
func (p TransformPatch) Empty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil && !p.ClearHeight && p.OrderKey == nil && p.PositionLocked == nil
}

// Repository is the card repository collaborator the engine persists through.
// Implementations deliver a stream of authoritative card collection snapshots
// on Subscribe, including echoes of the engine's own committed writes.
type Repository interface {
	CreateCard(context.Context, domain.Card) error
	GetCard(ctx context.Context, boardID, cardID string) (domain.Card, error)
	ListCards(ctx context.Context, boardID string) ([]domain.Card, error)
	UpdateCardTransform(ctx context.Context, boardID, cardID string, patch TransformPatch) error
	UpdateCardPayload(ctx context.Context, boardID, cardID string, kind domain.CardKind, payload domain.Payload) error
	DeleteCard(ctx context.Context, boardID, cardID string) error
	RemoveCardFromColumn(ctx context.Context, boardID, columnID, cardID string) error
	Subscribe(ctx context.Context, boardID string) (<-chan []domain.Card, error)
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time
