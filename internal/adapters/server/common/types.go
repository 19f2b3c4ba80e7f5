// Package common holds the transport-facing board service and its request and
// response shapes, shared by the REST and MCP adapters.
package common

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidRequest marks request validation failures. Transport adapters map
// it to their own bad-request representation.
var ErrInvalidRequest = errors.New("invalid request")

// BoardSummary is the transport representation of one board.
type BoardSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardRecord is the transport representation of one card. Payload carries the
// kind-specific body as raw JSON; Height is absent for content-driven cards.
type CardRecord struct {
	ID             string          `json:"id"`
	BoardID        string          `json:"board_id"`
	Kind           string          `json:"kind"`
	X              float64         `json:"x"`
	Y              float64         `json:"y"`
	Width          float64         `json:"width"`
	Height         *float64        `json:"height,omitempty"`
	OrderKey       string          `json:"order_key"`
	PositionLocked bool            `json:"position_locked"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateBoardRequest creates one named board.
type CreateBoardRequest struct {
	Name string `json:"name"`
}

// UpdateBoardRequest renames and/or archives one board. Nil fields are left
// untouched.
type UpdateBoardRequest struct {
	Name     *string `json:"name,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

// CreateCardRequest places one new card on a board. Payload is optional; when
// absent the kind's default payload is used.
type CreateCardRequest struct {
	BoardID string          `json:"board_id"`
	Kind    string          `json:"kind"`
	X       float64         `json:"x"`
	Y       float64         `json:"y"`
	Width   float64         `json:"width"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MoveCardRequest repositions one card.
type MoveCardRequest struct {
	BoardID string  `json:"board_id"`
	CardID  string  `json:"card_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// ConnectCardsRequest creates a line card attached to two existing cards.
type ConnectCardsRequest struct {
	BoardID string `json:"board_id"`
	FromID  string `json:"from_id"`
	ToID    string `json:"to_id"`
}
