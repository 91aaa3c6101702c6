package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notulis.app/bot/core/db"
	"notulis.app/bot/internal/model"
)

const archiveColumns = `id, category, conversation_id, source_message_id, body, degraded, local_time, created_at`

type archiveStore struct {
	conn db.DBTX
}

func newArchiveStore(conn db.DBTX) ArchiveStore {
	return &archiveStore{conn: conn}
}

func (s *archiveStore) Append(ctx context.Context, entry *model.ArchiveEntry) error {
	if !entry.Category.Valid() {
		return fmt.Errorf("invalid archive category %q", entry.Category)
	}
	var source *int64
	if entry.SourceMessageID != 0 {
		source = &entry.SourceMessageID
	}
	err := s.conn.QueryRow(ctx, `
		INSERT INTO archive_entries (id, category, conversation_id, source_message_id, body, degraded, local_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_message_id, category) DO NOTHING
		RETURNING created_at`,
		entry.ID, string(entry.Category), entry.ConversationID, source, entry.Body, entry.Degraded, entry.LocalTime,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("appending archive entry: %w", err)
	}
	return nil
}

func (s *archiveStore) GetBySource(ctx context.Context, sourceMessageID int64, category model.ArchiveCategory) (*model.ArchiveEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+archiveColumns+` FROM archive_entries
		WHERE source_message_id = $1 AND category = $2`,
		sourceMessageID, string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("querying archive entry: %w", err)
	}
	entry, err := pgx.CollectExactlyOneRow(rows, scanArchiveEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning archive entry: %w", err)
	}
	return &entry, nil
}

func (s *archiveStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.ArchiveEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+archiveColumns+` FROM archive_entries
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing archive entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanArchiveEntry)
	if err != nil {
		return nil, fmt.Errorf("scanning archive entries: %w", err)
	}
	return entries, nil
}

func scanArchiveEntry(row pgx.CollectableRow) (model.ArchiveEntry, error) {
	var e model.ArchiveEntry
	var category string
	var source *int64
	err := row.Scan(&e.ID, &category, &e.ConversationID, &source, &e.Body, &e.Degraded, &e.LocalTime, &e.CreatedAt)
	e.Category = model.ArchiveCategory(category)
	if source != nil {
		e.SourceMessageID = *source
	}
	return e, err
}
