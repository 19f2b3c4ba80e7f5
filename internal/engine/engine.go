// Package engine implements the canvas interaction engine: it turns pointer
// input into consistent, persisted spatial state for the cards of one board.
// It owns selection, drag/resize/connection gestures, stacking order, column
// membership, undo/redo, and the optimistic overlay that is reconciled
// against the card repository's subscription stream.
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/tavla/internal/domain"
)

// Config tunes the interaction engine.
type Config struct {
	SnapToGrid       bool
	GridSize         float64
	SnapRadius       float64
	DragThreshold    float64
	ZoomMin          float64
	ZoomMax          float64
	DebounceInterval time.Duration
	HistoryLimit     int
	ResizeTolerance  float64
}

// DefaultConfig returns the standard interaction tuning.
func DefaultConfig() Config {
	return Config{
		SnapToGrid:       false,
		GridSize:         20,
		SnapRadius:       DefaultSnapRadius,
		DragThreshold:    4,
		ZoomMin:          0.1,
		ZoomMax:          4,
		DebounceInterval: 400 * time.Millisecond,
		HistoryLimit:     200,
		ResizeTolerance:  5,
	}
}

// normalize fills unset fields with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.GridSize <= 0 {
		c.GridSize = def.GridSize
	}
	if c.SnapRadius <= 0 {
		c.SnapRadius = def.SnapRadius
	}
	if c.DragThreshold <= 0 {
		c.DragThreshold = def.DragThreshold
	}
	if c.ZoomMin <= 0 {
		c.ZoomMin = def.ZoomMin
	}
	if c.ZoomMax <= 0 {
		c.ZoomMax = def.ZoomMax
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = def.DebounceInterval
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.ResizeTolerance <= 0 {
		c.ResizeTolerance = def.ResizeTolerance
	}
	return c
}

// gestureKind tags which controller owns a card's geometry right now.
type gestureKind int

// gestureKind values.
const (
	gestureDrag gestureKind = iota + 1
	gestureResize
	gestureEndpoint
)

// gesturePhase is the pointer state machine phase.
type gesturePhase int

// gesturePhase values.
const (
	phaseIdle gesturePhase = iota
	phasePending
	phaseDragging
)

// size is a width/height pair used by the resize overlay.
type size struct {
	W float64
	H float64
}

// Engine owns the interaction state of one board. All exported methods are
// safe for concurrent use; internally the engine serializes on one mutex so
// pointer handlers, debounced saves, and subscription callbacks behave as
// discrete, non-overlapping tasks.
type Engine struct {
	mu     sync.Mutex
	repo   Repository
	logger *charmLog.Logger
	idGen  IDGenerator
	clock  Clock
	cfg    Config

	boardID  string
	cards    map[string]domain.Card
	columnOf map[string]string
	viewport Viewport

	selection *Selection
	history   *History
	saver     *Saver

	// Optimistic gesture overlays; they take precedence over persisted
	// geometry until the owning gesture releases.
	dragPositions map[string]Point
	sizeOverlay   map[string]size
	lineOverlay   map[string]domain.LinePayload

	measured    map[string]float64
	constrained map[string]bool

	owners   map[string]gestureKind
	drag     *dragState
	resize   *resizeState
	lineDrag *endpointDragState

	pendingConn *PendingConnection

	// notice has its own mutex: save failures surface it from inside a
	// flush that may already hold the engine lock.
	noticeMu sync.Mutex
	notice   string
}

// New constructs an engine for boardID backed by repo. A nil logger discards
// output; nil idGen and clock get uuid/time defaults like every service in
// this codebase.
func New(repo Repository, boardID string, cfg Config, logger *charmLog.Logger, idGen IDGenerator, clock Clock) *Engine {
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	cfg = cfg.normalize()

	e := &Engine{
		repo:          repo,
		logger:        logger,
		idGen:         idGen,
		clock:         clock,
		cfg:           cfg,
		boardID:       boardID,
		cards:         map[string]domain.Card{},
		columnOf:      map[string]string{},
		viewport:      NewViewport(),
		selection:     NewSelection(),
		history:       NewHistory(cfg.HistoryLimit),
		saver:         NewSaver(cfg.DebounceInterval, logger),
		dragPositions: map[string]Point{},
		sizeOverlay:   map[string]size{},
		lineOverlay:   map[string]domain.LinePayload{},
		measured:      map[string]float64{},
		constrained:   map[string]bool{},
		owners:        map[string]gestureKind{},
	}
	e.saver.SetErrorHandler(func(cardID string, err error) {
		e.surface("saving failed, changes kept locally")
	})
	return e
}

// Load replaces the in-memory card set from the repository.
func (e *Engine) Load(ctx context.Context) error {
	cards, err := e.repo.ListCards(ctx, e.boardID)
	if err != nil {
		return &PersistenceError{Op: "list", Err: err}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adoptRemote(cards)
	return nil
}

// Run subscribes to the repository's snapshot stream and merges every
// authoritative update until ctx is canceled. It blocks.
func (e *Engine) Run(ctx context.Context) error {
	stream, err := e.repo.Subscribe(ctx, e.boardID)
	if err != nil {
		return &PersistenceError{Op: "subscribe", Err: err}
	}
	for {
		select {
		case <-ctx.Done():
			e.saver.FlushAll()
			return ctx.Err()
		case cards, ok := <-stream:
			if !ok {
				return nil
			}
			e.MergeRemote(cards)
		}
	}
}

// Close flushes pending writes.
func (e *Engine) Close() {
	e.saver.FlushAll()
	e.saver.Wait()
}

// MergeRemote reconciles an authoritative card collection snapshot into local
// state. Geometry of cards owned by an active gesture is kept local; once the
// gesture releases, the next snapshot is trusted.
func (e *Engine) MergeRemote(remote []domain.Card) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.cards
	e.adoptRemote(remote)

	for id, kind := range e.owners {
		local, ok := prev[id]
		if !ok {
			continue
		}
		merged, ok := e.cards[id]
		if !ok {
			// Deleted remotely mid-gesture; nothing to protect.
			continue
		}
		switch kind {
		case gestureDrag:
			merged.X, merged.Y = local.X, local.Y
		case gestureResize:
			merged.Width, merged.Height = local.Width, local.Height
		case gestureEndpoint:
			merged.Payload = local.Payload
		}
		e.cards[id] = merged
	}
}

// adoptRemote installs remote as the card set and drops state tied to cards
// that no longer exist. Caller holds the lock.
func (e *Engine) adoptRemote(remote []domain.Card) {
	next := make(map[string]domain.Card, len(remote))
	for _, c := range remote {
		next[c.ID] = c
	}
	for id := range e.cards {
		if _, ok := next[id]; ok {
			continue
		}
		e.selection.Remove(id)
		e.saver.Cancel(id)
		delete(e.dragPositions, id)
		delete(e.sizeOverlay, id)
		delete(e.lineOverlay, id)
		delete(e.measured, id)
		delete(e.constrained, id)
	}
	e.cards = next
	e.recomputeMembership()
}

// recomputeMembership rebuilds the card-to-column index from column item
// lists. Membership is derived, never stored on the child. Caller holds the
// lock.
func (e *Engine) recomputeMembership() {
	e.columnOf = map[string]string{}
	for _, c := range e.cards {
		col, ok := c.Column()
		if !ok {
			continue
		}
		for _, item := range col.Items {
			if _, exists := e.cards[item.CardID]; exists {
				e.columnOf[item.CardID] = c.ID
			}
		}
	}
}

// own claims gesture ownership of cardID, refusing when another gesture
// already holds it. Caller holds the lock.
func (e *Engine) own(cardID string, kind gestureKind) error {
	if _, taken := e.owners[cardID]; taken {
		return ErrGestureActive
	}
	e.owners[cardID] = kind
	return nil
}

// release drops gesture ownership. Caller holds the lock.
func (e *Engine) release(cardID string) {
	delete(e.owners, cardID)
}

// card returns the card by id. Caller holds the lock.
func (e *Engine) card(id string) (domain.Card, bool) {
	c, ok := e.cards[id]
	return c, ok
}

// linePayloadOf returns the current line payload for a line card, preferring
// the gesture overlay. Caller holds the lock.
func (e *Engine) linePayloadOf(c domain.Card) (domain.LinePayload, bool) {
	if p, ok := e.lineOverlay[c.ID]; ok {
		return p, true
	}
	return c.Line()
}

// effectiveHeight resolves the display height of a card. Caller holds the lock.
func (e *Engine) effectiveHeight(c domain.Card) float64 {
	if s, ok := e.sizeOverlay[c.ID]; ok {
		return s.H
	}
	if col, ok := c.Column(); ok {
		box := e.effectiveBoxNoLayout(c)
		return columnContentHeight(e.childBoxes(box, col))
	}
	return c.EffectiveHeight(e.measured[c.ID])
}

// effectiveBoxNoLayout resolves a card's box from overlays and stored
// geometry, ignoring column-membership layout. Caller holds the lock.
func (e *Engine) effectiveBoxNoLayout(c domain.Card) CardBox {
	box := CardBox{ID: c.ID, Kind: c.Kind, X: c.X, Y: c.Y, W: c.Width}
	if p, ok := e.dragPositions[c.ID]; ok {
		box.X, box.Y = p.X, p.Y
	}
	if s, ok := e.sizeOverlay[c.ID]; ok {
		box.W, box.H = s.W, s.H
		return box
	}
	box.H = c.EffectiveHeight(e.measured[c.ID])
	return box
}

// childBoxes lays out a column's children. Caller holds the lock.
func (e *Engine) childBoxes(col CardBox, payload domain.ColumnPayload) []CardBox {
	boxes := columnChildBoxes(col, payload, func(cardID string) (float64, float64, bool) {
		child, ok := e.cards[cardID]
		if !ok {
			return 0, 0, false
		}
		return child.Width, child.EffectiveHeight(e.measured[cardID]), true
	})
	for i := range boxes {
		if child, ok := e.cards[boxes[i].ID]; ok {
			boxes[i].Kind = child.Kind
		}
	}
	return boxes
}

// EffectiveBox resolves the display geometry of a card: drag/resize overlays
// win, then column layout for column members, then persisted geometry. For
// line cards the box is the bounding box of the resolved endpoints.
func (e *Engine) EffectiveBox(cardID string) (CardBox, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cards[cardID]
	if !ok {
		return CardBox{}, false
	}
	return e.effectiveBox(c), true
}

// effectiveBox is the lock-held implementation of EffectiveBox.
func (e *Engine) effectiveBox(c domain.Card) CardBox {
	if c.Kind == domain.KindLine {
		return e.lineBounds(c)
	}
	// Column members take their slot in the column layout unless an active
	// drag overlay is pulling them out.
	if colID, member := e.columnOf[c.ID]; member {
		if _, dragging := e.dragPositions[c.ID]; !dragging {
			if col, ok := e.cards[colID]; ok {
				if payload, isCol := col.Column(); isCol {
					colBox := e.effectiveBoxNoLayout(col)
					for _, box := range e.childBoxes(colBox, payload) {
						if box.ID == c.ID {
							return box
						}
					}
				}
			}
		}
	}
	box := e.effectiveBoxNoLayout(c)
	if col, ok := c.Column(); ok {
		box.H = columnContentHeight(e.childBoxes(box, col))
	}
	return box
}

// lineBounds returns the bounding box of a line card's resolved endpoints.
// Caller holds the lock.
func (e *Engine) lineBounds(c domain.Card) CardBox {
	p, ok := e.linePayloadOf(c)
	if !ok {
		return CardBox{ID: c.ID, Kind: c.Kind, X: c.X, Y: c.Y}
	}
	start := e.resolveEndpoint(c, p.Start)
	end := e.resolveEndpoint(c, p.End)
	minX, maxX := start.X, end.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := start.Y, end.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return CardBox{ID: c.ID, Kind: c.Kind, X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// resolveEndpoint computes an endpoint's display position. Attached endpoints
// are always recomputed from the live position of the attached card,
// including any in-flight drag; a missing attached card falls back to the
// literal coordinate. Free endpoints follow the line card's own drag overlay.
// Caller holds the lock.
func (e *Engine) resolveEndpoint(line domain.Card, ep domain.Endpoint) Point {
	if ep.Attached() {
		if target, ok := e.cards[ep.AttachedCardID]; ok {
			return Anchor(e.effectiveBox(target), ep.AttachedSide, ep.Offset)
		}
		// Attached card deleted: fall back to the last literal coordinate;
		// the stale reference is cleared on the next save of this line.
		return Point{X: ep.X, Y: ep.Y}
	}
	p := Point{X: ep.X, Y: ep.Y}
	if overlay, ok := e.dragPositions[line.ID]; ok {
		p = p.Add(overlay.Sub(Point{X: line.X, Y: line.Y}))
	}
	return p
}

// boxes returns effective boxes of every card. Caller holds the lock.
func (e *Engine) boxes() []CardBox {
	out := make([]CardBox, 0, len(e.cards))
	for _, c := range e.cards {
		out = append(out, e.effectiveBox(c))
	}
	return out
}

// surface records a non-blocking user notice.
func (e *Engine) surface(msg string) {
	e.noticeMu.Lock()
	e.notice = msg
	e.noticeMu.Unlock()
}

// TakeNotice returns and clears the pending user notice, if any.
func (e *Engine) TakeNotice() string {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	msg := e.notice
	e.notice = ""
	return msg
}
