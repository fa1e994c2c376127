package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/chatsync/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ChatStore implementation ====

// CreateChat persists a chat with its members.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *store.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = chat.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO chats (id, name, is_group, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, chat.ID, chat.Name, chat.IsGroup, chat.CreatedAt, chat.UpdatedAt); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	memberQuery := `
		INSERT OR IGNORE INTO chat_members (chat_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	for _, userID := range chat.Members {
		if _, err := tx.ExecContext(ctx, memberQuery, chat.ID, userID, now); err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetChat retrieves a chat with its members.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	query := `
		SELECT id, name, is_group, unread_count, last_message_id, created_at, updated_at
		FROM chats
		WHERE id = ?
	`
	chat, err := scanChat(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	members, err := s.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	chat.Members = members
	return chat, nil
}

// ListChats lists chats the user is a member of, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]*store.Chat, error) {
	query := `
		SELECT c.id, c.name, c.is_group, c.unread_count, c.last_message_id, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_members cm ON c.id = cm.chat_id
		WHERE cm.user_id = ?
		ORDER BY c.updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var chats []*store.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	rows.Close()

	for _, chat := range chats {
		members, err := s.listMembers(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		chat.Members = members
	}
	return chats, nil
}

// ListMembers returns the member ids of a chat.
func (s *SQLiteStore) ListMembers(ctx context.Context, chatID string) ([]string, error) {
	exists, err := s.chatExists(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
	}
	return s.listMembers(ctx, chatID)
}

// AddMember adds a user to a chat.
func (s *SQLiteStore) AddMember(ctx context.Context, chatID, userID string) error {
	query := `
		INSERT OR IGNORE INTO chat_members (chat_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert chat member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a chat.
func (s *SQLiteStore) RemoveMember(ctx context.Context, chatID, userID string) error {
	query := `
		DELETE FROM chat_members
		WHERE chat_id = ? AND user_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, userID); err != nil {
		return fmt.Errorf("delete chat member: %w", err)
	}
	return nil
}

// IncrementUnread bumps the chat's shared unread counter once per message
// that has at least one recipient.
func (s *SQLiteStore) IncrementUnread(ctx context.Context, chatID string, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	query := `
		UPDATE chats SET unread_count = unread_count + 1
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
	}
	return nil
}

// ClearUnread resets the unread counter and marks unread messages read.
// A chat that is already fully read is left untouched.
func (s *SQLiteStore) ClearUnread(ctx context.Context, chatID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE id = ?`, chatID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
		}
		return false, fmt.Errorf("query chat: %w", err)
	}

	counter, err := tx.ExecContext(ctx, `UPDATE chats SET unread_count = 0 WHERE id = ? AND unread_count > 0`, chatID)
	if err != nil {
		return false, fmt.Errorf("reset unread count: %w", err)
	}
	counterRows, err := counter.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	marked, err := tx.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE chat_id = ? AND read = 0`, chatID)
	if err != nil {
		return false, fmt.Errorf("mark messages read: %w", err)
	}
	markedRows, err := marked.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return counterRows+markedRows > 0, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and updates the chat's last message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE chats SET last_message_id = ?, updated_at = ?
		WHERE id = ?
	`, msg.ID, msg.CreatedAt, msg.ChatID)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chat %s: %w", msg.ChatID, store.ErrNotFound)
	}

	query := `
		INSERT INTO messages (id, chat_id, sender_id, text, image, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`
	if _, err := tx.ExecContext(ctx, query, msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.Image, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	msg.Read = false
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, text, image, read, created_at
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves messages of a chat in send order. A beforeID that is
// not a message of the chat yields ErrNotFound.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string, limit int, beforeID *string) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if beforeID != nil {
		var cursor int64
		err = s.db.QueryRowContext(ctx,
			`SELECT seq FROM messages WHERE id = ? AND chat_id = ?`, *beforeID, chatID,
		).Scan(&cursor)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s in chat %s: %w", *beforeID, chatID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("query cursor: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, chat_id, sender_id, text, image, read, created_at
			FROM messages
			WHERE chat_id = ? AND seq < ?
			ORDER BY seq DESC
			LIMIT ?
		`, chatID, cursor, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, chat_id, sender_id, text, image, read, created_at
			FROM messages
			WHERE chat_id = ?
			ORDER BY seq DESC
			LIMIT ?
		`, chatID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Fetched newest first for the limit; return oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (*store.Chat, error) {
	var chat store.Chat
	var lastMessageID sql.NullString
	if err := row.Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.UnreadCount,
		&lastMessageID,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		chat.LastMessageID = &lastMessageID.String
	}
	return &chat, nil
}

func scanMessage(row scanner) (*store.Message, error) {
	var msg store.Message
	if err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Text,
		&msg.Image,
		&msg.Read,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SQLiteStore) chatExists(ctx context.Context, chatID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE id = ?`, chatID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query chat: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) listMembers(ctx context.Context, chatID string) ([]string, error) {
	query := `
		SELECT user_id FROM chat_members
		WHERE chat_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, userID)
	}
	return members, rows.Err()
}

var _ store.Store = (*SQLiteStore)(nil)
