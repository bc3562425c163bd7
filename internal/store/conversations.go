// ABOUTME: Conversation and message persistence for the SQLite store
// ABOUTME: Append-only message log with ordering guarantees and context summaries

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// contextSummaryInstruction is appended to every context summary so the model
// treats the transcript as background rather than as the current exchange.
const contextSummaryInstruction = "Use the conversation above as background and continue the dialogue naturally."

// contextSummaryHeader opens every context summary.
const contextSummaryHeader = "Summary of the previous conversation:"

// CreateConversation inserts a new conversation row
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (
			id, user_id, bot_id, remote_session_id, status, title,
			started_at, last_message_at, ended_at, created_at
		) VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.BotID,
		conv.RemoteSessionID,
		string(conv.Status),
		conv.Title,
		timeOrNull(conv.StartedAt),
		timeOrNull(conv.LastMessageAt),
		timeOrNull(conv.EndedAt),
		formatTime(conv.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateSession
	}
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by its id
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.queryConversation(ctx, "id = ?", id)
}

// GetConversationByRemoteSession is the reverse lookup from remote session id
// to the conversation bound to it. Returns ErrNotFound for sessions this
// system never created.
func (s *SQLiteStore) GetConversationByRemoteSession(ctx context.Context, remoteSessionID string) (*Conversation, error) {
	return s.queryConversation(ctx, "remote_session_id = ?", remoteSessionID)
}

func (s *SQLiteStore) queryConversation(ctx context.Context, where string, arg interface{}) (*Conversation, error) {
	query := `
		SELECT id, user_id, COALESCE(bot_id, ''), COALESCE(remote_session_id, ''),
		       status, title, started_at, last_message_at, ended_at, created_at
		FROM conversations WHERE ` + where

	var conv Conversation
	var status, createdAt string
	var startedAt, lastMessageAt, endedAt sql.NullString

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&conv.ID, &conv.UserID, &conv.BotID, &conv.RemoteSessionID,
		&status, &conv.Title, &startedAt, &lastMessageAt, &endedAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Status = ConversationStatus(status)
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.StartedAt, err = nullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if conv.LastMessageAt, err = nullTime(lastMessageAt); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	if conv.EndedAt, err = nullTime(endedAt); err != nil {
		return nil, fmt.Errorf("parsing ended_at: %w", err)
	}
	return &conv, nil
}

// BindRemoteSession points an existing conversation at a new remote session.
// Used when a conversation is resumed with a fresh platform session.
func (s *SQLiteStore) BindRemoteSession(ctx context.Context, conversationID, remoteSessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET remote_session_id = ? WHERE id = ?`,
		remoteSessionID, conversationID)
	if isUniqueViolation(err) {
		return ErrDuplicateSession
	}
	if err != nil {
		return fmt.Errorf("binding remote session: %w", err)
	}
	return requireRow(res)
}

// UpdateConversationStatus sets the lifecycle status and records the matching
// transition timestamp (started_at on ACTIVE, ended_at on ENDED).
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id string, status ConversationStatus) error {
	query := `UPDATE conversations SET status = ? WHERE id = ?`
	args := []interface{}{string(status), id}

	switch status {
	case StatusActive:
		query = `UPDATE conversations SET status = ?, started_at = ? WHERE id = ?`
		args = []interface{}{string(status), formatTime(time.Now()), id}
	case StatusEnded:
		query = `UPDATE conversations SET status = ?, ended_at = ? WHERE id = ?`
		args = []interface{}{string(status), formatTime(time.Now()), id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return requireRow(res)
}

// UpdateConversationTitle sets the display title
func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	return requireRow(res)
}

// TouchLastMessage records conversation activity
func (s *SQLiteStore) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching last_message_at: %w", err)
	}
	return requireRow(res)
}

// ListConversationsByUser returns a user's conversations, most recent activity first
func (s *SQLiteStore) ListConversationsByUser(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT id FROM conversations
		WHERE user_id = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	convs := make([]*Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// SaveMessage appends a message to a conversation's log. The created_at
// timestamp is clamped to be non-decreasing within the conversation so the
// log always replays in append order.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`,
		msg.ConversationID).Scan(&last)
	if err != nil {
		return fmt.Errorf("reading last message time: %w", err)
	}
	if last.Valid {
		if lastAt, perr := parseTime(last.String); perr == nil && msg.CreatedAt.Before(lastAt) {
			msg.CreatedAt = lastAt
		}
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message saved",
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"role", msg.Role)
	return nil
}

// ListMessages returns a conversation's messages in creation order. A positive
// limit keeps only the most recent limit messages, still oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	args := []interface{}{conversationID}
	if limit > 0 {
		query = `
			SELECT id, conversation_id, role, content, created_at
			FROM (
				SELECT id, conversation_id, role, content, created_at, seq
				FROM messages
				WHERE conversation_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of messages in a conversation
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// BuildContextSummary builds a bounded transcript of a prior conversation for
// seeding a new session. It takes the last maxMessages messages in their
// original order, labels each by role, and appends a fixed instruction. This
// is a truncation strategy, not semantic summarization.
func (s *SQLiteStore) BuildContextSummary(ctx context.Context, conversationID string, maxMessages int) (string, error) {
	recent, err := s.ListMessages(ctx, conversationID, maxMessages)
	if err != nil {
		return "", err
	}
	if len(recent) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(contextSummaryHeader)
	b.WriteString("\n")
	for _, msg := range recent {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(contextSummaryInstruction)

	s.logger.Debug("context summary built",
		"conversation_id", conversationID,
		"message_count", len(recent))
	return b.String(), nil
}

// requireRow converts a zero-row update into ErrNotFound
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
