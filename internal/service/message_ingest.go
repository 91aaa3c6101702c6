package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"notulis.app/bot/common/id"
	"notulis.app/bot/internal/command"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/queue"
	"notulis.app/bot/internal/store"
)

// ErrInvalidMessage is returned when the transport sent an incomplete message.
var ErrInvalidMessage = errors.New("invalid message")

type MessageIngestParams struct {
	ExternalID     string
	ConversationID string
	SenderID       string
	SenderName     *string
	Body           string
	SentAt         int64
	FromMe         bool
	IsGroup        bool
	QuotedID       *string
	TraceID        *string
}

type MessageIngestResult struct {
	Message    *model.Message
	Command    string
	Enqueued   bool
	Duplicated bool
}

type MessageIngestService interface {
	Ingest(ctx context.Context, params MessageIngestParams) (*MessageIngestResult, error)
}

type messageIngestService struct {
	messages store.MessageStore
	queue    queue.Producer
	botID    string
	now      func() time.Time
	logger   *slog.Logger
}

// NewMessageIngestService stores every inbound message and enqueues the
// ones that are group commands from someone other than the bot.
func NewMessageIngestService(messages store.MessageStore, queue queue.Producer, botID string, logger *slog.Logger) MessageIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &messageIngestService{
		messages: messages,
		queue:    queue,
		botID:    botID,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *messageIngestService) Ingest(ctx context.Context, params MessageIngestParams) (*MessageIngestResult, error) {
	if params.ExternalID == "" || params.ConversationID == "" || params.SenderID == "" {
		return nil, fmt.Errorf("%w: external_id, conversation_id, and sender_id are required", ErrInvalidMessage)
	}

	sentAt := params.SentAt
	if sentAt <= 0 {
		sentAt = s.now().Unix()
	}

	msg := &model.Message{
		ID:             id.New(),
		ConversationID: params.ConversationID,
		ExternalID:     params.ExternalID,
		SenderID:       params.SenderID,
		SenderName:     nonEmpty(params.SenderName),
		Body:           params.Body,
		SentAt:         sentAt,
		FromMe:         params.FromMe || (s.botID != "" && params.SenderID == s.botID),
		QuotedID:       nonEmpty(params.QuotedID),
	}

	created, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	if !created {
		s.logger.InfoContext(ctx, "duplicate message deduped",
			"external_id", params.ExternalID,
			"conversation_id", params.ConversationID)
		existing, err := s.messages.GetByExternalID(ctx, params.ConversationID, params.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("loading deduped message: %w", err)
		}
		return &MessageIngestResult{Message: existing, Duplicated: true}, nil
	}

	result := &MessageIngestResult{Message: msg}
	if !params.IsGroup || msg.FromMe {
		return result, nil
	}

	inv, ok := command.Parse(msg.Body)
	if !ok {
		return result, nil
	}
	result.Command = inv.Name

	if err := s.queue.Enqueue(ctx, queue.Task{
		ChatMessageID:  msg.ID,
		ConversationID: msg.ConversationID,
		Command:        inv.Name,
		TraceID:        params.TraceID,
		Attempt:        1,
	}); err != nil {
		return nil, fmt.Errorf("enqueueing command: %w", err)
	}
	result.Enqueued = true
	return result, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
