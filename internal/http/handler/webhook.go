package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/http/dto"
	"notulis.app/bot/internal/service"
)

const groupSuffix = "@g.us"

var messageEvents = map[string]bool{
	"message":     true,
	"message.any": true,
}

// WebhookRecorder receives one result label per request.
type WebhookRecorder interface {
	RecordWebhookMessage(result string)
}

type WebhookHandler struct {
	service     service.MessageIngestService
	recorder    WebhookRecorder
	traceHeader string
}

func NewWebhookHandler(service service.MessageIngestService, recorder WebhookRecorder, traceHeader string) *WebhookHandler {
	return &WebhookHandler{
		service:     service,
		recorder:    recorder,
		traceHeader: traceHeader,
	}
}

func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid webhook request", "error", err)
		h.recorder.RecordWebhookMessage("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !messageEvents[req.Event] || req.Payload == nil {
		h.recorder.RecordWebhookMessage("ignored")
		c.JSON(http.StatusOK, dto.WebhookResponse{Status: "ignored"})
		return
	}

	p := req.Payload
	sender := p.Participant
	if sender == "" {
		sender = p.From
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &p.From,
		ChatMessageID:  &p.ID,
		SenderID:       &sender,
		Component:      "notulis.http.webhook",
	})

	params := service.MessageIngestParams{
		ExternalID:     p.ID,
		ConversationID: p.From,
		SenderID:       sender,
		SenderName:     p.NotifyName,
		Body:           p.Body,
		SentAt:         p.Timestamp,
		FromMe:         p.FromMe,
		IsGroup:        strings.HasSuffix(p.From, groupSuffix),
		QuotedID:       p.QuotedMsgID,
	}
	if traceID := h.traceID(c); traceID != "" {
		params.TraceID = &traceID
	}

	result, err := h.service.Ingest(ctx, params)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			h.recorder.RecordWebhookMessage("invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to ingest message", "error", err)
		h.recorder.RecordWebhookMessage("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest message"})
		return
	}

	status := "stored"
	switch {
	case result.Duplicated:
		status = "duplicate"
	case result.Enqueued:
		status = "enqueued"
	}
	h.recorder.RecordWebhookMessage(status)

	c.JSON(http.StatusAccepted, dto.WebhookResponse{
		Status:     status,
		MessageID:  result.Message.ID,
		Command:    result.Command,
		Enqueued:   result.Enqueued,
		Duplicated: result.Duplicated,
	})
}

func (h *WebhookHandler) traceID(c *gin.Context) string {
	if h.traceHeader != "" {
		if traceID := c.GetHeader(h.traceHeader); traceID != "" {
			return traceID
		}
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}
