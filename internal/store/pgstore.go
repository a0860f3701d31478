// Package store persists conversations and their messages. The query pipeline
// only ever reads this data as history; writing is the transport layer's
// bookkeeping.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/avezek/docuchat/internal/model"
	"github.com/avezek/docuchat/internal/util"
)

var ErrNotFound = errors.New("store: conversation not found")

const titleRunes = 50

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type PgStore struct {
	db *sql.DB
}

func NewPgStore(conn string) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &PgStore{db: db}, nil
}

func (s *PgStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PgStore) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	if title == "" {
		title = "New Chat"
	}
	c := Conversation{ID: uuid.New().String(), Title: title}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, title)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`, c.ID, c.Title).Scan(&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PgStore) GetConversation(ctx context.Context, id string) (Conversation, []Message, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil, ErrNotFound
	}
	if err != nil {
		return c, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return c, nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return c, nil, err
		}
		msgs = append(msgs, m)
	}
	return c, msgs, rows.Err()
}

func (s *PgStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1
	`, id, title)
	if err != nil {
		return err
	}
	return checkFound(res)
}

func (s *PgStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// AppendMessage stores one turn. The first user message also becomes the
// conversation title, truncated.
func (s *PgStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM messages WHERE conversation_id = $1
	`, conversationID).Scan(&count)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
	`, uuid.New().String(), conversationID, role, content)
	if err != nil {
		return err
	}

	if role == "user" && count == 0 {
		title := util.TruncateRunes(content, titleRunes)
		if title != content {
			title += "..."
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1
		`, conversationID, title); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = now() WHERE id = $1
		`, conversationID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Turns returns the conversation history in the shape the generator consumes.
func (s *PgStore) Turns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
