package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Message roles. The set is closed; the schema rejects anything else.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// DefaultConversationTitle is used until the first user message backfills it.
const DefaultConversationTitle = "New Conversation"

type Conversation struct {
	ID           int64  `json:"id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	MessageCount int    `json:"message_count"`
}

type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	ExtraData      map[string]any `json:"extra_data,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// CreateConversation starts a new conversation owned by userID.
func (d *DB) CreateConversation(userID, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultConversationTitle
	}
	res, err := d.conn.Exec("INSERT INTO conversations (user_id, title) VALUES (?, ?)", userID, title)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return d.GetConversation(userID, id)
}

// GetConversation returns the conversation with id owned by userID, or
// ErrNotFound. A conversation owned by another user is indistinguishable
// from one that does not exist.
func (d *DB) GetConversation(userID string, id int64) (*Conversation, error) {
	var c Conversation
	err := d.conn.QueryRow(
		`SELECT c.id, c.user_id, c.title, c.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c WHERE c.id = ? AND c.user_id = ?`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns userID's conversations, newest first.
func (d *DB) ListConversations(userID string, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(
		`SELECT c.id, c.user_id, c.title, c.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c WHERE c.user_id = ?
		ORDER BY c.created_at DESC, c.id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()
	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// UpdateConversationTitle sets a conversation's display title.
func (d *DB) UpdateConversationTitle(userID string, id int64, title string) error {
	if len(title) > 255 {
		title = title[:255]
	}
	return d.updateOwnedRow("conversations", userID, id, map[string]any{"title": title})
}

// DeleteConversation removes a conversation owned by userID; its messages go
// with it via ON DELETE CASCADE.
func (d *DB) DeleteConversation(userID string, id int64) error {
	res, err := d.conn.Exec("DELETE FROM conversations WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage appends one message to a conversation's transcript. Messages
// are never updated or individually deleted.
func (d *DB) AppendMessage(conversationID int64, role, content string, extra map[string]any) (*Message, error) {
	var extraJSON any
	if len(extra) > 0 {
		b, err := json.Marshal(extra)
		if err != nil {
			return nil, fmt.Errorf("encoding message extra data: %w", err)
		}
		extraJSON = string(b)
	}
	res, err := d.conn.Exec(
		"INSERT INTO messages (conversation_id, role, content, extra_data) VALUES (?, ?, ?, ?)",
		conversationID, role, content, extraJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return d.getMessage(id)
}

// RecentMessages returns the last limit messages of a conversation in
// chronological order. Older history is truncated, not summarized.
func (d *DB) RecentMessages(conversationID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	msgs, err := d.scanMessages(
		`SELECT id, conversation_id, role, content, COALESCE(extra_data, ''), created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	// Scanned newest-first; flip to insertion order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (d *DB) getMessage(id int64) (*Message, error) {
	msgs, err := d.scanMessages(
		"SELECT id, conversation_id, role, content, COALESCE(extra_data, ''), created_at FROM messages WHERE id = ?",
		id,
	)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (d *DB) scanMessages(query string, args ...any) ([]Message, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var m Message
		var extraJSON string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &extraJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if extraJSON != "" {
			_ = json.Unmarshal([]byte(extraJSON), &m.ExtraData)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
