package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so a conversation or command only has to be
// attached once and every log line below it carries it.
type LogFields struct {
	ConversationID  *string // Chat conversation (group) identifier from the transport
	ChatMessageID   *string // Transport message ID that triggered the work
	StreamMessageID *string // Redis stream message ID
	SenderID        *string // Raw sender identifier
	Command         *string // Parsed command name, e.g. "rangkum"
	Component       string  // Component name (OTel semantic convention style, e.g., "notulis.brain.reducer")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ConversationID != nil {
		result.ConversationID = new.ConversationID
	}
	if new.ChatMessageID != nil {
		result.ChatMessageID = new.ChatMessageID
	}
	if new.StreamMessageID != nil {
		result.StreamMessageID = new.StreamMessageID
	}
	if new.SenderID != nil {
		result.SenderID = new.SenderID
	}
	if new.Command != nil {
		result.Command = new.Command
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ConversationID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Used for raw model output, which can be arbitrarily long.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
