package store

import (
	"context"
	"errors"

	"notulis.app/bot/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// MessageStore holds the chat history the bot reads back for commands.
// List methods return messages newest first, in the order the database
// hands them out; callers that need a timeline sort by SentAt.
type MessageStore interface {
	// Insert stores msg unless (conversation, external id) already exists.
	// Reports whether a new row was written.
	Insert(ctx context.Context, msg *model.Message) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	GetByExternalID(ctx context.Context, conversationID, externalID string) (*model.Message, error)
	// ListBefore returns up to limit messages sent before the message
	// identified by beforeID (exclusive).
	ListBefore(ctx context.Context, conversationID string, beforeID int64, limit int) ([]model.Message, error)
	// ListSince returns up to limit messages with SentAt >= since, excluding excludeID.
	ListSince(ctx context.Context, conversationID string, since int64, excludeID int64, limit int) ([]model.Message, error)
}

// UserStore defines the contract for the display-name registry.
type UserStore interface {
	Upsert(ctx context.Context, user *model.ChatUser) error
	List(ctx context.Context) ([]model.ChatUser, error)
}

// ArchiveStore appends generated summaries and task lists. Append is a
// no-op when the entry's source message already has one in its category.
type ArchiveStore interface {
	Append(ctx context.Context, entry *model.ArchiveEntry) error
	// GetBySource returns ErrNotFound when the command message has no entry.
	GetBySource(ctx context.Context, sourceMessageID int64, category model.ArchiveCategory) (*model.ArchiveEntry, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.ArchiveEntry, error)
}

// MarkerStore keeps at most one meeting start timestamp per conversation.
// Lock serializes meeting commands on one conversation; the returned
// unlock must be called exactly once.
type MarkerStore interface {
	Get(ctx context.Context, conversationID string) (int64, bool, error)
	Set(ctx context.Context, conversationID string, startTimestamp int64) error
	Delete(ctx context.Context, conversationID string) error
	Lock(ctx context.Context, conversationID string) (func(), error)
}
