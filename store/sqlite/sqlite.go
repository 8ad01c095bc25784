// Package sqlite provides a persistent core.Store backed by SQLite, for
// deployments where conversation history must survive a process restart.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/roraos/roraos-go/core"
)

// Store implements core.Store using SQLite. Mutations are serialized by
// the database; cross-identity operations are independent.
type Store struct {
	db  *sql.DB
	max int
}

// Open opens (or creates) a SQLite database at the given path. maxMessages
// bounds the live window per identity; <= 0 selects core.DefaultMaxMessages.
func Open(dbPath string, maxMessages int) (*Store, error) {
	if maxMessages <= 0 {
		maxMessages = core.DefaultMaxMessages
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, max: maxMessages}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		role     TEXT NOT NULL,
		content  TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_identity ON messages(identity, id)`,
	`CREATE TABLE IF NOT EXISTS summaries (
		identity   TEXT PRIMARY KEY,
		summary    TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}

func (s *Store) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append adds a message to the end of the identity's sequence.
func (s *Store) Append(ctx context.Context, identity string, msg core.Message) error {
	if msg.Role == "" {
		return core.ErrEmptyRole
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (identity, role, content) VALUES (?, ?, ?)`,
		identity, string(msg.Role), msg.Content,
	)
	return err
}

// Messages returns the identity's live message sequence in insertion order.
func (s *Store) Messages(ctx context.Context, identity string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE identity = ? ORDER BY id ASC`,
		identity,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SetMessages replaces the identity's live message sequence.
func (s *Store) SetMessages(ctx context.Context, identity string, msgs []core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE identity = ?`, identity); err != nil {
		return err
	}
	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (identity, role, content) VALUES (?, ?, ?)`,
			identity, string(msg.Role), msg.Content,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Context returns the request view for the identity.
func (s *Store) Context(ctx context.Context, identity, systemPrompt string) ([]core.Message, error) {
	var view []core.Message
	if systemPrompt != "" {
		view = append(view, core.Message{Role: core.RoleSystem, Content: systemPrompt})
	}

	summary, err := s.Summary(ctx, identity)
	if err != nil {
		return nil, err
	}
	if summary != "" {
		view = append(view, core.Message{
			Role:    core.RoleSystem,
			Content: "Previous conversation summary:\n" + summary,
		})
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM (
			SELECT role, content, id FROM messages
			WHERE identity = ? ORDER BY id DESC LIMIT ?
		) sub ORDER BY id ASC`,
		identity, s.max,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	live, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return append(view, live...), nil
}

// Trim drops the oldest non-system messages until the live sequence is
// within the bound.
func (s *Store) Trim(ctx context.Context, identity string) error {
	n, err := s.Len(ctx, identity)
	if err != nil {
		return err
	}
	excess := n - s.max
	if excess <= 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id IN (
			SELECT id FROM messages
			WHERE identity = ? AND role != 'system'
			ORDER BY id ASC LIMIT ?
		)`,
		identity, excess,
	)
	return err
}

// Clear removes the identity's sequence and summary.
func (s *Store) Clear(ctx context.Context, identity string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE identity = ?`, identity); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE identity = ?`, identity); err != nil {
		return err
	}
	return tx.Commit()
}

// Len returns the number of live messages for the identity.
func (s *Store) Len(ctx context.Context, identity string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE identity = ?`, identity,
	).Scan(&n)
	return n, err
}

// Summary returns the accumulated summary text, or "".
func (s *Store) Summary(ctx context.Context, identity string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM summaries WHERE identity = ?`, identity,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return summary, err
}

// AppendSummary joins text onto the accumulated summary with a newline.
func (s *Store) AppendSummary(ctx context.Context, identity, text string) error {
	if text == "" {
		return nil
	}

	existing, err := s.Summary(ctx, identity)
	if err != nil {
		return err
	}
	if existing != "" {
		text = existing + "\n" + text
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summaries (identity, summary, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)`,
		identity, text,
	)
	return err
}

// DropOldest removes and returns all but the newest keep messages, leaving
// system messages in place.
func (s *Store) DropOldest(ctx context.Context, identity string, keep int) ([]core.Message, error) {
	n, err := s.Len(ctx, identity)
	if err != nil || n <= keep || keep < 0 {
		return nil, err
	}

	// Everything older than the keep-th newest message is eligible.
	var boundary int64
	if keep == 0 {
		boundary = int64(^uint64(0) >> 1)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM messages WHERE identity = ?
			 ORDER BY id DESC LIMIT 1 OFFSET ?`,
			identity, keep-1,
		).Scan(&boundary)
		if err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content FROM messages
		 WHERE identity = ? AND role != 'system' AND id < ?
		 ORDER BY id ASC`,
		identity, boundary,
	)
	if err != nil {
		return nil, err
	}

	var ids []any
	var removed []core.Message
	for rows.Next() {
		var id int64
		var role, content string
		if err := rows.Scan(&id, &role, &content); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		removed = append(removed, core.Message{Role: core.Role(role), Content: content})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := "?"
	for range ids[1:] {
		placeholders += ",?"
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id IN (`+placeholders+`)`, ids...,
	); err != nil {
		return nil, err
	}

	return removed, nil
}

func scanMessages(rows *sql.Rows) ([]core.Message, error) {
	var msgs []core.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		msgs = append(msgs, core.Message{Role: core.Role(role), Content: content})
	}
	return msgs, rows.Err()
}

// Compile-time check that Store implements core.Store.
var _ core.Store = (*Store)(nil)
