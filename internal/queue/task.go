package queue

// TaskType distinguishes stream entries. Only chat commands are queued
// today; the field keeps older and newer producers readable.
type TaskType string

const TaskTypeCommand TaskType = "chat_command"

// Task is one command message waiting for a worker. The message itself
// lives in Postgres; the stream only carries its id.
type Task struct {
	ChatMessageID  int64
	ConversationID string
	Command        string
	TraceID        *string
	Attempt        int
}
