// Package sqlite persists boards and cards in a local SQLite database and
// fans out full board snapshots to subscribers after every committed write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Repository stores boards and cards and implements engine.Repository.
type Repository struct {
	db *sql.DB

	subMu   sync.Mutex
	subs    map[string]map[int]chan []domain.Card
	nextSub int
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a fresh in-memory database, used by tests and demos.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, subs: map[string]map[int]chan []domain.Card{}}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database. Subscribers keep their channels; they simply stop
// receiving snapshots.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			width REAL NOT NULL,
			height REAL,
			order_key TEXT NOT NULL,
			position_locked INTEGER NOT NULL DEFAULT 0,
			payload_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_board_order ON cards(board_id, order_key);`,
		`CREATE INDEX IF NOT EXISTS idx_boards_created_at ON boards(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateBoard inserts a new board.
func (r *Repository) CreateBoard(ctx context.Context, b domain.Board) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO boards(id, name, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.Name, ts(b.CreatedAt), ts(b.UpdatedAt), nullableTS(b.ArchivedAt))
	return err
}

// UpdateBoard rewrites a board's mutable fields.
func (r *Repository) UpdateBoard(ctx context.Context, b domain.Board) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE boards
		SET name = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, b.Name, ts(b.UpdatedAt), nullableTS(b.ArchivedAt), b.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetBoard returns one board by id.
func (r *Repository) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at, archived_at
		FROM boards
		WHERE id = ?
	`, id)
	return scanBoard(row)
}

// ListBoards returns boards ordered by creation time.
func (r *Repository) ListBoards(ctx context.Context, includeArchived bool) ([]domain.Board, error) {
	query := `
		SELECT id, name, created_at, updated_at, archived_at
		FROM boards
	`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBoard removes a board; its cards cascade.
func (r *Repository) DeleteBoard(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := translateNoRows(res); err != nil {
		return err
	}
	r.broadcast(ctx, id)
	return nil
}

// CreateCard inserts a card and broadcasts the board snapshot.
func (r *Repository) CreateCard(ctx context.Context, c domain.Card) error {
	payloadJSON, err := domain.EncodePayload(c.Kind, c.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cards(id, board_id, kind, x, y, width, height, order_key, position_locked, payload_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.BoardID,
		string(c.Kind),
		c.X,
		c.Y,
		c.Width,
		nullableFloat(c.Height),
		c.OrderKey,
		boolInt(c.PositionLocked),
		string(payloadJSON),
		ts(c.CreatedAt),
		ts(c.UpdatedAt),
	)
	if err != nil {
		return err
	}
	r.broadcast(ctx, c.BoardID)
	return nil
}

// GetCard returns one card of a board.
func (r *Repository) GetCard(ctx context.Context, boardID, cardID string) (domain.Card, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, board_id, kind, x, y, width, height, order_key, position_locked, payload_json, created_at, updated_at
		FROM cards
		WHERE board_id = ? AND id = ?
	`, boardID, cardID)
	return scanCard(row)
}

// ListCards returns every card of a board ordered by stacking key.
func (r *Repository) ListCards(ctx context.Context, boardID string) ([]domain.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, kind, x, y, width, height, order_key, position_locked, payload_json, created_at, updated_at
		FROM cards
		WHERE board_id = ?
		ORDER BY order_key ASC, id ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCardTransform applies a partial geometry patch to a card.
func (r *Repository) UpdateCardTransform(ctx context.Context, boardID, cardID string, patch engine.TransformPatch) error {
	if patch.Empty() {
		return nil
	}
	set := []string{}
	args := []any{}
	if patch.X != nil {
		set = append(set, "x = ?")
		args = append(args, *patch.X)
	}
	if patch.Y != nil {
		set = append(set, "y = ?")
		args = append(args, *patch.Y)
	}
	if patch.Width != nil {
		set = append(set, "width = ?")
		args = append(args, *patch.Width)
	}
	if patch.ClearHeight {
		set = append(set, "height = NULL")
	} else if patch.Height != nil {
		set = append(set, "height = ?")
		args = append(args, *patch.Height)
	}
	if patch.OrderKey != nil {
		set = append(set, "order_key = ?")
		args = append(args, *patch.OrderKey)
	}
	if patch.PositionLocked != nil {
		set = append(set, "position_locked = ?")
		args = append(args, boolInt(*patch.PositionLocked))
	}
	set = append(set, "updated_at = ?")
	args = append(args, ts(time.Now()), boardID, cardID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET `+strings.Join(set, ", ")+` WHERE board_id = ? AND id = ?`,
		args...)
	if err != nil {
		return err
	}
	if err := translateNoRows(res); err != nil {
		return err
	}
	r.broadcast(ctx, boardID)
	return nil
}

// UpdateCardPayload replaces a card's payload after checking the kind matches.
func (r *Repository) UpdateCardPayload(ctx context.Context, boardID, cardID string, kind domain.CardKind, payload domain.Payload) error {
	payloadJSON, err := domain.EncodePayload(kind, payload)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE cards
		SET payload_json = ?, updated_at = ?
		WHERE board_id = ? AND id = ? AND kind = ?
	`, string(payloadJSON), ts(time.Now()), boardID, cardID, string(kind))
	if err != nil {
		return err
	}
	if err := translateNoRows(res); err != nil {
		return err
	}
	r.broadcast(ctx, boardID)
	return nil
}

// DeleteCard removes a card.
func (r *Repository) DeleteCard(ctx context.Context, boardID, cardID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE board_id = ? AND id = ?`, boardID, cardID)
	if err != nil {
		return err
	}
	if err := translateNoRows(res); err != nil {
		return err
	}
	r.broadcast(ctx, boardID)
	return nil
}

// RemoveCardFromColumn splices cardID out of a column card's item list. Absent
// references are not an error, so the call is idempotent.
func (r *Repository) RemoveCardFromColumn(ctx context.Context, boardID, columnID, cardID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	col, err := scanCard(tx.QueryRowContext(ctx, `
		SELECT id, board_id, kind, x, y, width, height, order_key, position_locked, payload_json, created_at, updated_at
		FROM cards
		WHERE board_id = ? AND id = ?
	`, boardID, columnID))
	if err != nil {
		return err
	}
	payload, ok := col.Column()
	if !ok {
		err = domain.ErrPayloadMismatch
		return err
	}
	if !payload.Remove(cardID) {
		err = tx.Commit()
		return err
	}

	var payloadJSON []byte
	payloadJSON, err = domain.EncodePayload(domain.KindColumn, payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cards
		SET payload_json = ?, updated_at = ?
		WHERE board_id = ? AND id = ?
	`, string(payloadJSON), ts(time.Now()), boardID, columnID)
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	r.broadcast(ctx, boardID)
	return nil
}

// Subscribe registers a snapshot channel for a board. The current snapshot is
// delivered immediately; later writes to the board each deliver a fresh full
// snapshot. The channel closes when ctx is canceled.
func (r *Repository) Subscribe(ctx context.Context, boardID string) (<-chan []domain.Card, error) {
	cards, err := r.ListCards(ctx, boardID)
	if err != nil {
		return nil, err
	}

	ch := make(chan []domain.Card, 1)
	ch <- cards

	r.subMu.Lock()
	if r.subs[boardID] == nil {
		r.subs[boardID] = map[int]chan []domain.Card{}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[boardID][id] = ch
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if set, ok := r.subs[boardID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.subs, boardID)
			}
		}
		// Closed under the lock so broadcast never sends on a closed channel.
		close(ch)
	}()
	return ch, nil
}

// broadcast delivers the board's current snapshot to every subscriber. A slow
// subscriber's stale pending snapshot is replaced rather than queued behind.
func (r *Repository) broadcast(ctx context.Context, boardID string) {
	r.subMu.Lock()
	n := len(r.subs[boardID])
	r.subMu.Unlock()
	if n == 0 {
		return
	}

	cards, err := r.ListCards(ctx, boardID)
	if err != nil {
		return
	}
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs[boardID] {
		select {
		case ch <- cards:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cards:
			default:
			}
		}
	}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBoard(s scanner) (domain.Board, error) {
	var (
		b          domain.Board
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&b.ID, &b.Name, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Board{}, engine.ErrNotFound
		}
		return domain.Board{}, err
	}
	b.CreatedAt = parseTS(createdRaw)
	b.UpdatedAt = parseTS(updatedRaw)
	b.ArchivedAt = parseNullTS(archived)
	return b, nil
}

func scanCard(s scanner) (domain.Card, error) {
	var (
		c          domain.Card
		kind       string
		height     sql.NullFloat64
		locked     int
		payloadRaw string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(
		&c.ID,
		&c.BoardID,
		&kind,
		&c.X,
		&c.Y,
		&c.Width,
		&height,
		&c.OrderKey,
		&locked,
		&payloadRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, engine.ErrNotFound
		}
		return domain.Card{}, err
	}
	c.Kind = domain.CardKind(kind)
	if height.Valid {
		h := height.Float64
		c.Height = &h
	}
	c.PositionLocked = locked != 0
	payload, err := domain.DecodePayload(c.Kind, []byte(payloadRaw))
	if err != nil {
		return domain.Card{}, fmt.Errorf("decode payload_json for card %s: %w", c.ID, err)
	}
	c.Payload = payload
	c.CreatedAt = parseTS(createdRaw)
	c.UpdatedAt = parseTS(updatedRaw)
	return c, nil
}

func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseTS(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	t := parseTS(v.String)
	return &t
}
