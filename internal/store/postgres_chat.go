package store

import (
	"context"
	"time"
)

const conversationCols = `id, task_id, publisher_id, acceptor_id, last_message_at, created_at`

func scanConversation(row interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.TaskID, &c.PublisherID, &c.AcceptorID, &c.LastMessageAt, &c.CreatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &c, nil
}

func (s *pgConversations) FindByKey(ctx context.Context, taskID, p1 string, p2 *string) (*Conversation, error) {
	if p2 == nil {
		row := s.pool.QueryRow(ctx,
			`SELECT `+conversationCols+` FROM conversations
             WHERE task_id = $1 AND publisher_id = $2 AND acceptor_id IS NULL`, taskID, p1)
		return scanConversation(row)
	}
	// Legacy or concurrent writes may have stored the pair reversed.
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations
         WHERE task_id = $1
           AND ((publisher_id = $2 AND acceptor_id = $3) OR (publisher_id = $3 AND acceptor_id = $2))
         LIMIT 1`, taskID, p1, *p2)
	return scanConversation(row)
}

func (s *pgConversations) FindOpenInquiry(ctx context.Context, taskID, ownerID string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations
         WHERE task_id = $1 AND publisher_id = $2 AND acceptor_id IS NULL`, taskID, ownerID)
	return scanConversation(row)
}

func (s *pgConversations) AssignPair(ctx context.Context, id, p1, p2 string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET publisher_id = $2, acceptor_id = $3 WHERE id = $1`, id, p1, p2)
	if err != nil {
		return mapInsertErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgConversations) Insert(ctx context.Context, c *Conversation) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, task_id, publisher_id, acceptor_id)
         VALUES ($1, $2, $3, $4) RETURNING last_message_at, created_at`,
		c.ID, c.TaskID, c.PublisherID, c.AcceptorID)
	if err := row.Scan(&c.LastMessageAt, &c.CreatedAt); err != nil {
		return mapInsertErr(err)
	}
	return nil
}

func (s *pgConversations) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *pgConversations) ListByParticipant(ctx context.Context, profileID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationCols+` FROM conversations
         WHERE publisher_id = $1 OR acceptor_id = $1
         ORDER BY last_message_at DESC`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.TaskID, &c.PublisherID, &c.AcceptorID, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgConversations) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`, id, at)
	return err
}

const messageCols = `id, conversation_id, sender_id, receiver_id, content, message_type,
    COALESCE(sys_template, ''), COALESCE(sys_actor_role, ''), is_read, created_at`

func (s *pgMessages) Insert(ctx context.Context, m *Message) error {
	var sysTemplate, sysActorRole *string
	if m.Type == "system" {
		sysTemplate, sysActorRole = &m.SysTemplate, &m.SysActorRole
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, message_type, sys_template, sys_actor_role)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.Type, sysTemplate, sysActorRole)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return mapInsertErr(err)
	}
	return nil
}

func (s *pgMessages) list(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content,
			&m.Type, &m.SysTemplate, &m.SysActorRole, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgMessages) List(ctx context.Context, conversationID string) ([]Message, error) {
	return s.list(ctx,
		`SELECT `+messageCols+` FROM messages
         WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`, conversationID)
}

func (s *pgMessages) ListSince(ctx context.Context, conversationID string, since time.Time) ([]Message, error) {
	return s.list(ctx,
		`SELECT `+messageCols+` FROM messages
         WHERE conversation_id = $1 AND created_at > $2 ORDER BY created_at ASC, id ASC`,
		conversationID, since)
}

func (s *pgMessages) Latest(ctx context.Context, conversationID string) (*Message, error) {
	msgs, err := s.list(ctx,
		`SELECT `+messageCols+` FROM messages
         WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (s *pgMessages) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET is_read = TRUE
         WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
		conversationID, receiverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgMessages) UnreadByReceiver(ctx context.Context, receiverID string) ([]Message, error) {
	return s.list(ctx,
		`SELECT `+messageCols+` FROM messages
         WHERE receiver_id = $1 AND sender_id <> $1 AND is_read = FALSE
         ORDER BY created_at ASC, id ASC`, receiverID)
}

func (s *pgMessages) HasSystem(ctx context.Context, conversationID, template string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM messages
            WHERE conversation_id = $1 AND message_type = 'system' AND sys_template = $2
        )`, conversationID, template).Scan(&exists)
	return exists, err
}
