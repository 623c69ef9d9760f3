// Package chronicle keeps a narrative log of every game in SQLite: the
// resolved turns and the raw model exchanges behind them.
package chronicle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	game_id     TEXT    NOT NULL,
	turn        INTEGER NOT NULL,
	choice      TEXT    NOT NULL,
	description TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (game_id, turn)
);
CREATE TABLE IF NOT EXISTS exchanges (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id    TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	prompt     TEXT    NOT NULL,
	response   TEXT    NOT NULL,
	tokens     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS exchanges_game ON exchanges (game_id, id);
`

// ErrNoTurns is returned when a game has nothing recorded.
var ErrNoTurns = errors.New("no turns recorded")

// Turn is one resolved turn.
type Turn struct {
	GameID      string
	Number      int
	Choice      string
	Description string
	CreatedAt   time.Time
}

// Usage totals the exchanges of one game.
type Usage struct {
	Exchanges int
	Tokens    int
}

// Store is the SQLite-backed chronicle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the chronicle database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("chronicle path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordTurn stores a resolved turn. Recording the same turn again
// replaces it.
func (s *Store) RecordTurn(ctx context.Context, gameID string, turn int, choice, description string) error {
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO turns (game_id, turn, choice, description, created_at)
VALUES (?, ?, ?, ?, ?)
`, gameID, turn, choice, description, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// RecordExchange stores one prompt and the raw response to it.
func (s *Store) RecordExchange(ctx context.Context, gameID, kind, prompt, response string, tokens int) error {
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO exchanges (game_id, kind, prompt, response, tokens, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, gameID, kind, prompt, response, tokens, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// Turns lists the turns of a game in order.
func (s *Store) Turns(ctx context.Context, gameID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT game_id, turn, choice, description, created_at
FROM turns
WHERE game_id = ?
ORDER BY turn
`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t         Turn
			createdAt int64
		)
		if err := rows.Scan(&t.GameID, &t.Number, &t.Choice, &t.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdAt).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// Usage totals the recorded exchanges of a game.
func (s *Store) Usage(ctx context.Context, gameID string) (Usage, error) {
	var u Usage
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(tokens), 0) FROM exchanges WHERE game_id = ?
`, gameID).Scan(&u.Exchanges, &u.Tokens)
	if err != nil {
		return Usage{}, fmt.Errorf("usage: %w", err)
	}
	return u, nil
}
