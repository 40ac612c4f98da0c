package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PlaceholderTitle is assigned to conversations created without an
// explicit title, until automatic naming replaces it.
const PlaceholderTitle = "New Conversation"

// Conversation is one row of conversation metadata, keyed by
// (user_id, conversation_id).
type Conversation struct {
	UserID         string
	ConversationID string
	Title          string
	Untitled       bool
	FirstMessage   bool
	CreatedAt      int64
	UpdatedAt      int64
}

// NamingEligible reports whether this turn should attempt automatic naming:
// the conversation was created without an explicit title and this is its
// first message.
func (c *Conversation) NamingEligible() bool {
	return c.Untitled && c.FirstMessage
}

// Store handles persistence of conversation metadata.
type Store struct {
	db *sql.DB
}

// NewStore creates a new conversation Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure creates the conversation row if it does not exist and returns the
// current row either way. A conversation created with an empty title gets
// the placeholder title and is flagged for automatic naming.
// Uses INSERT OR IGNORE so concurrent first requests cannot duplicate rows.
func (s *Store) Ensure(ctx context.Context, userID, conversationID, title string) (*Conversation, error) {
	untitled := 0
	if title == "" {
		title = PlaceholderTitle
		untitled = 1
	}

	now := time.Now().Unix()
	query := sq.Insert("conversations").
		Columns("user_id", "conversation_id", "title", "untitled", "first_message", "created_at", "updated_at").
		Values(userID, conversationID, title, untitled, 1, now, now)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	// SQLite requires "OR IGNORE" to come after "INSERT", so we replace "INSERT INTO" with "INSERT OR IGNORE INTO"
	queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)

	if _, err = s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return nil, err
	}

	return s.Get(ctx, userID, conversationID)
}

// Get returns the conversation row, or an error if it does not exist.
func (s *Store) Get(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	query := sq.Select("user_id", "conversation_id", "title", "untitled", "first_message", "created_at", "updated_at").
		From("conversations").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"conversation_id": conversationID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var conv Conversation
	var untitled, firstMessage int
	err = s.db.QueryRowContext(ctx, queryStr, args...).Scan(
		&conv.UserID, &conv.ConversationID, &conv.Title,
		&untitled, &firstMessage, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Untitled = untitled != 0
	conv.FirstMessage = firstMessage != 0

	return &conv, nil
}

// SetTitle stores the extracted title and clears both naming flags.
func (s *Store) SetTitle(ctx context.Context, userID, conversationID, title string) error {
	now := time.Now().Unix()
	query := sq.Update("conversations").
		Set("title", title).
		Set("untitled", 0).
		Set("first_message", 0).
		Set("updated_at", now).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"conversation_id": conversationID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}

// ClearNamingFlags clears the naming flags without touching the title.
// Used when naming fails or is suppressed, so it is never retried.
func (s *Store) ClearNamingFlags(ctx context.Context, userID, conversationID string) error {
	now := time.Now().Unix()
	query := sq.Update("conversations").
		Set("untitled", 0).
		Set("first_message", 0).
		Set("updated_at", now).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"conversation_id": conversationID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}
