package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notulis.app/bot/core/db"
	"notulis.app/bot/internal/model"
)

const messageColumns = `id, conversation_id, external_id, sender_id, sender_name, body, sent_at, from_me, quoted_id, created_at`

type messageStore struct {
	conn db.DBTX
}

func newMessageStore(conn db.DBTX) MessageStore {
	return &messageStore{conn: conn}
}

func (s *messageStore) Insert(ctx context.Context, msg *model.Message) (bool, error) {
	row := s.conn.QueryRow(ctx, `
		INSERT INTO chat_messages (id, conversation_id, external_id, sender_id, sender_name, body, sent_at, from_me, quoted_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id, external_id) DO NOTHING
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.ExternalID, msg.SenderID, msg.SenderName,
		msg.Body, msg.SentAt, msg.FromMe, msg.QuotedID,
	)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting message: %w", err)
	}
	return true, nil
}

func (s *messageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return collectOne(rows)
}

func (s *messageStore) GetByExternalID(ctx context.Context, conversationID, externalID string) (*model.Message, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE conversation_id = $1 AND external_id = $2`,
		conversationID, externalID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return collectOne(rows)
}

func (s *messageStore) ListBefore(ctx context.Context, conversationID string, beforeID int64, limit int) ([]model.Message, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+messageColumns+` FROM chat_messages m
		WHERE m.conversation_id = $1
		  AND (m.sent_at, m.id) < (SELECT sent_at, id FROM chat_messages WHERE id = $2)
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT $3`,
		conversationID, beforeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return collectMany(rows)
}

func (s *messageStore) ListSince(ctx context.Context, conversationID string, since int64, excludeID int64, limit int) ([]model.Message, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE conversation_id = $1 AND sent_at >= $2 AND id <> $3
		ORDER BY sent_at DESC, id DESC
		LIMIT $4`,
		conversationID, since, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return collectMany(rows)
}

func scanMessage(row pgx.CollectableRow) (model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.ExternalID, &m.SenderID, &m.SenderName,
		&m.Body, &m.SentAt, &m.FromMe, &m.QuotedID, &m.CreatedAt)
	return m, err
}

func collectOne(rows pgx.Rows) (*model.Message, error) {
	m, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return &m, nil
}

func collectMany(rows pgx.Rows) ([]model.Message, error) {
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}
	return msgs, nil
}
