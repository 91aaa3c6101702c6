package model

import "time"

type ArchiveCategory string

const (
	ArchiveCategorySummary ArchiveCategory = "summary"
	ArchiveCategoryTasks   ArchiveCategory = "tasks"
)

func (c ArchiveCategory) Valid() bool {
	return c == ArchiveCategorySummary || c == ArchiveCategoryTasks
}

// ArchiveEntry is an append-only record of a generated summary or task list.
// LocalTime is the human-readable timestamp in the archive's display zone.
// SourceMessageID is the chat message holding the command that produced
// the entry, or 0 when none did; a source has at most one entry per category.
type ArchiveEntry struct {
	ID              int64           `json:"id"`
	Category        ArchiveCategory `json:"category"`
	ConversationID  string          `json:"conversation_id"`
	SourceMessageID int64           `json:"source_message_id,omitempty"`
	Body            string          `json:"body"`
	Degraded        bool            `json:"degraded,omitempty"`
	LocalTime       string          `json:"local_time"`
	CreatedAt       time.Time       `json:"created_at"`
}
