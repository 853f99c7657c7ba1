// Package chat persists conversations and their messages. A run stores the
// user's message and an empty assistant placeholder up front and fills the
// placeholder once the answer is complete.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/chat")

var (
	// ErrNotFound is returned for unknown chats or messages.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a chat belongs to another user.
	ErrForbidden = errors.New("chat belongs to another user")
)

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// MessageStatus tracks an assistant message through its run.
type MessageStatus string

// Message statuses.
const (
	StatusStreaming MessageStatus = "streaming"
	StatusFinal     MessageStatus = "final"
	StatusFailed    MessageStatus = "failed"
)

// ChatStatus is empty until the first message and going afterwards.
type ChatStatus string

// Chat statuses.
const (
	ChatEmpty ChatStatus = "empty"
	ChatGoing ChatStatus = "going"
)

// Chat is one conversation.
type Chat struct {
	ID      string     `json:"id"`
	UserID  string     `json:"user_id"`
	Title   string     `json:"title"`
	Status  ChatStatus `json:"status"`
	Created time.Time  `json:"created"`
}

// Message is one stored turn.
type Message struct {
	ID      string        `json:"id"`
	ChatID  string        `json:"chat_id"`
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Status  MessageStatus `json:"status"`
	Created time.Time     `json:"created"`
}

const schema = `
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'empty',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    chat_id TEXT NOT NULL REFERENCES chats(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, seq);
`

// Store persists chats in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the chat database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening chat database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating chat schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure returns the chat, creating it for userID when it does not exist.
func (s *Store) Ensure(ctx context.Context, userID, chatID string) (*Chat, error) {
	c, err := s.Get(ctx, chatID)
	if err == nil {
		if c.UserID != userID {
			return nil, fmt.Errorf("%w: %s", ErrForbidden, chatID)
		}
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c = &Chat{ID: chatID, UserID: userID, Status: ChatEmpty, Created: s.now()}
	if c.ID == "" {
		c.ID = "chat_" + uuid.New().String()[:12]
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, string(c.Status), c.Created.UnixNano()); err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}
	log.Info().Str("chat_id", c.ID).Str("user_id", userID).Msg("chat_created")
	return c, nil
}

// Get returns a chat by id.
func (s *Store) Get(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	var status string
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, title, status, created_at FROM chats WHERE id = ?`, chatID).
		Scan(&c.ID, &c.UserID, &c.Title, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat: %w", err)
	}
	c.Status = ChatStatus(status)
	c.Created = time.Unix(0, created).UTC()
	return &c, nil
}

// ListByUser returns the user's chats, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, status, created_at FROM chats WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()
	var out []Chat
	for rows.Next() {
		var c Chat
		var status string
		var created int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &status, &created); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		c.Status = ChatStatus(status)
		c.Created = time.Unix(0, created).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prepared is the pair of messages stored before a run.
type Prepared struct {
	User Message
	AI   Message
}

// PrepareMessages stores the user's query as a final message and an empty
// assistant placeholder in the streaming status.
func (s *Store) PrepareMessages(ctx context.Context, userID, chatID, query string) (*Prepared, error) {
	ctx, span := tracer.Start(ctx, "chat.prepare_messages", trace.WithAttributes(hsotel.ChatID.String(chatID)))
	defer span.End()

	c, err := s.Ensure(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.Status == ChatEmpty {
		title := query
		if r := []rune(title); len(r) > 60 {
			title = string(r[:60])
		}
		if _, err := tx.ExecContext(ctx, `UPDATE chats SET status = ?, title = ? WHERE id = ?`, string(ChatGoing), title, c.ID); err != nil {
			return nil, fmt.Errorf("updating chat status: %w", err)
		}
	}

	now := s.now()
	p := &Prepared{
		User: Message{ID: "msg_" + uuid.New().String()[:12], ChatID: c.ID, Role: RoleUser, Content: query, Status: StatusFinal, Created: now},
		AI:   Message{ID: "msg_" + uuid.New().String()[:12], ChatID: c.ID, Role: RoleAI, Status: StatusStreaming, Created: now},
	}
	for _, m := range []Message{p.User, p.AI} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, role, content, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.ChatID, string(m.Role), m.Content, string(m.Status), m.Created.UnixNano()); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("inserting message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing messages: %w", err)
	}
	return p, nil
}

// Finalize writes the assistant's text into the placeholder and sets its
// final status.
func (s *Store) Finalize(ctx context.Context, messageID, content string, status MessageStatus) error {
	ctx, span := tracer.Start(ctx, "chat.finalize", trace.WithAttributes(
		attribute.String("chat.message_id", messageID),
		attribute.String("chat.status", string(status)),
	))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `UPDATE messages SET content = ?, status = ? WHERE id = ?`, content, string(status), messageID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("finalizing message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return nil
}

// Messages returns the chat's messages in order.
func (s *Store) Messages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, status, created_at FROM messages WHERE chat_id = ? ORDER BY seq ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role, status string
		var created int64
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &status, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = Role(role)
		m.Status = MessageStatus(status)
		m.Created = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// History returns the chat as conversation turns: messages with content,
// chronological, the assistant's mapped to the assistant role.
func (s *Store) History(ctx context.Context, chatID string) ([]llm.Message, error) {
	msgs, err := s.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		role := llm.RoleAssistant
		if m.Role == RoleUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out, nil
}
