package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens dsn and applies pending migrations.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the conversation and its bookkeeping, or nils when absent.
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (*domain.ConversationState, *domain.ConversationMeta, error) {
	var meta domain.ConversationMeta
	var threadID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, title, path, thread_id, created_at, updated_at FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&meta.UserID, &meta.Title, &meta.Path, &threadID, &meta.CreatedAt, &meta.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	state := &domain.ConversationState{
		ConversationID:   conversationID,
		ExternalThreadID: threadID.String,
		Messages:         []domain.Message{},
	}
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, nil, err
		}
		state.Messages = append(state.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return state, &meta, nil
}

// Persist upserts the conversation row and appends messages not yet stored.
// Messages are append-only: an id already present is left untouched.
func (s *SQLiteStore) Persist(ctx context.Context, state domain.ConversationState, meta domain.ConversationMeta) error {
	if state.ConversationID == "" {
		return errors.New("conversation id is required")
	}
	now := time.Now().UTC()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = now
	}
	if meta.Title == "" {
		meta.Title = state.Title()
	}
	if meta.Path == "" {
		meta.Path = state.Path()
	}
	var threadID sql.NullString
	if state.ExternalThreadID != "" {
		threadID = sql.NullString{String: state.ExternalThreadID, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, user_id, title, path, thread_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		   thread_id = COALESCE(excluded.thread_id, conversations.thread_id),
		   updated_at = excluded.updated_at`,
		state.ConversationID, meta.UserID, meta.Title, meta.Path, threadID, meta.CreatedAt, meta.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO messages (message_id, conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, msg := range state.Messages {
		if _, err := stmt.ExecContext(ctx, msg.ID, state.ConversationID, i, msg.Role, msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// ListConversations returns the user's conversations, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	query := `SELECT c.conversation_id, c.title, c.path, c.created_at, c.updated_at,
	            (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.conversation_id)
	          FROM conversations c WHERE c.user_id = ? ORDER BY c.updated_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationSummary
	for rows.Next() {
		var c domain.ConversationSummary
		if err := rows.Scan(&c.ConversationID, &c.Title, &c.Path, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation owned by userID together with its
// messages and events. It reports whether anything was deleted.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID, userID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	// foreign_keys is per connection, so the cascade is not relied on.
	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM events WHERE conversation_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, conversationID); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	var payload sql.NullString
	if event.Payload != nil {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, conversation_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.ConversationID, event.TurnID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a conversation after afterTs.
func (s *SQLiteStore) GetEvents(ctx context.Context, conversationID string, afterTs int64, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, conversation_id, turn_id, ts, type, payload FROM events WHERE conversation_id = ?`
	args := []any{conversationID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.ConversationID, &event.TurnID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
