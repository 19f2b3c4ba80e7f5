package domain

import (
	"encoding/json"
	"fmt"
)

// Payload is the closed sum of per-kind card data. Concrete payload types are
// plain data carriers; behavior lives in the capability table and the engine.
type Payload interface {
	PayloadKind() CardKind
}

// NotePayload stores markdown note content.
type NotePayload struct {
	Markdown string `json:"markdown"`
	Color    string `json:"color,omitempty"`
}

// ImagePayload stores an uploaded image reference.
type ImagePayload struct {
	URL         string  `json:"url"`
	AltText     string  `json:"alt_text,omitempty"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
}

// TextPayload stores a free-standing text label.
type TextPayload struct {
	Text string `json:"text"`
}

// TaskItem is one entry of a task-list card.
type TaskItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// TaskListPayload stores an ordered checklist.
type TaskListPayload struct {
	Title string     `json:"title,omitempty"`
	Items []TaskItem `json:"items"`
}

// LinkPayload stores an external URL bookmark.
type LinkPayload struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// FilePayload stores an uploaded file reference.
type FilePayload struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	SizeByte int64  `json:"size_bytes,omitempty"`
}

// ColorPalettePayload stores an ordered color swatch list.
type ColorPalettePayload struct {
	Colors []string `json:"colors"`
}

// ColumnItem references one child card inside a column at a contiguous position.
type ColumnItem struct {
	CardID   string `json:"card_id"`
	Position int    `json:"position"`
}

// ColumnPayload stores a column's title and ordered child references.
type ColumnPayload struct {
	Title string       `json:"title,omitempty"`
	Items []ColumnItem `json:"items"`
}

// BoardRefPayload stores a link to another board rendered as a card.
type BoardRefPayload struct {
	BoardID string `json:"board_id"`
	Title   string `json:"title,omitempty"`
}

// LinePayload stores a routed connection between two endpoints.
type LinePayload struct {
	Start     Endpoint   `json:"start"`
	End       Endpoint   `json:"end"`
	Waypoints []Waypoint `json:"waypoints,omitempty"`
	Curvature float64    `json:"curvature,omitempty"`
	Color     string     `json:"color,omitempty"`
}

// Stroke is one freehand polyline of a drawing card, relative to the card position.
type Stroke struct {
	Color  string    `json:"color,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Points []float64 `json:"points"`
}

// DrawingPayload stores freehand strokes.
type DrawingPayload struct {
	Strokes []Stroke `json:"strokes"`
}

// PresentationNodePayload stores a card's slot in a presentation sequence.
type PresentationNodePayload struct {
	TargetCardID string `json:"target_card_id,omitempty"`
	Sequence     int    `json:"sequence"`
}

// PayloadKind implementations bind each payload type to its kind tag.
func (NotePayload) PayloadKind() CardKind             { return KindNote }
func (ImagePayload) PayloadKind() CardKind            { return KindImage }
func (TextPayload) PayloadKind() CardKind             { return KindText }
func (TaskListPayload) PayloadKind() CardKind         { return KindTaskList }
func (LinkPayload) PayloadKind() CardKind             { return KindLink }
func (FilePayload) PayloadKind() CardKind             { return KindFile }
func (ColorPalettePayload) PayloadKind() CardKind     { return KindColorPalette }
func (ColumnPayload) PayloadKind() CardKind           { return KindColumn }
func (BoardRefPayload) PayloadKind() CardKind         { return KindBoard }
func (LinePayload) PayloadKind() CardKind             { return KindLine }
func (DrawingPayload) PayloadKind() CardKind          { return KindDrawing }
func (PresentationNodePayload) PayloadKind() CardKind { return KindPresentationNode }

// DefaultPayload returns the zero-value payload for kind.
func DefaultPayload(kind CardKind) (Payload, error) {
	switch kind {
	case KindNote:
		return NotePayload{}, nil
	case KindImage:
		return ImagePayload{}, nil
	case KindText:
		return TextPayload{}, nil
	case KindTaskList:
		return TaskListPayload{}, nil
	case KindLink:
		return LinkPayload{}, nil
	case KindFile:
		return FilePayload{}, nil
	case KindColorPalette:
		return ColorPalettePayload{}, nil
	case KindColumn:
		return ColumnPayload{}, nil
	case KindBoard:
		return BoardRefPayload{}, nil
	case KindLine:
		return LinePayload{Start: Endpoint{Offset: 0.5}, End: Endpoint{Offset: 0.5}}, nil
	case KindDrawing:
		return DrawingPayload{}, nil
	case KindPresentationNode:
		return PresentationNodePayload{}, nil
	default:
		return nil, ErrInvalidKind
	}
}

// EncodePayload serializes payload as JSON after checking the kind tag matches.
func EncodePayload(kind CardKind, payload Payload) ([]byte, error) {
	if payload == nil {
		payload, _ = DefaultPayload(kind)
		if payload == nil {
			return nil, ErrInvalidKind
		}
	}
	if payload.PayloadKind() != kind {
		return nil, fmt.Errorf("%w: kind %q payload %q", ErrPayloadMismatch, kind, payload.PayloadKind())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return raw, nil
}

// decodeAs unmarshals raw into the concrete payload type T.
func decodeAs[T Payload](kind CardKind, raw []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

// DecodePayload deserializes raw JSON into the concrete payload type for kind.
func DecodePayload(kind CardKind, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return DefaultPayload(kind)
	}
	switch kind {
	case KindNote:
		return decodeAs[NotePayload](kind, raw)
	case KindImage:
		return decodeAs[ImagePayload](kind, raw)
	case KindText:
		return decodeAs[TextPayload](kind, raw)
	case KindTaskList:
		return decodeAs[TaskListPayload](kind, raw)
	case KindLink:
		return decodeAs[LinkPayload](kind, raw)
	case KindFile:
		return decodeAs[FilePayload](kind, raw)
	case KindColorPalette:
		return decodeAs[ColorPalettePayload](kind, raw)
	case KindColumn:
		return decodeAs[ColumnPayload](kind, raw)
	case KindBoard:
		return decodeAs[BoardRefPayload](kind, raw)
	case KindLine:
		return decodeAs[LinePayload](kind, raw)
	case KindDrawing:
		return decodeAs[DrawingPayload](kind, raw)
	case KindPresentationNode:
		return decodeAs[PresentationNodePayload](kind, raw)
	default:
		return nil, ErrInvalidKind
	}
}
