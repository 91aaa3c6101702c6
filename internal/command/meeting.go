package command

import (
	"context"
	"errors"
	"fmt"

	"notulis.app/bot/internal/store"
)

func (r *Router) handleStartMeeting(ctx context.Context, req *request) error {
	res, err := r.Tracker.Start(ctx, req.msg.ConversationID, req.msg.SentAt)
	if err != nil {
		return err
	}
	if !res.Started {
		return r.reply(ctx, req, fmt.Sprintf(replyMeetingRunning, r.clock(res.Previous.Start)))
	}
	return r.reply(ctx, req, fmt.Sprintf(replyMeetingStarted, r.clock(req.msg.SentAt)))
}

// handleStartFromReference starts the meeting at the quoted message.
// Any existing marker is replaced, with a warning in the reply.
func (r *Router) handleStartFromReference(ctx context.Context, req *request) error {
	if !req.msg.HasQuote() {
		return &InputValidationError{Command: StartFromRef, Usage: usageStartFromRef}
	}

	quoted, err := r.Messages.GetByExternalID(ctx, req.msg.ConversationID, *req.msg.QuotedID)
	if errors.Is(err, store.ErrNotFound) {
		return r.reply(ctx, req, replyQuotedNotFound)
	}
	if err != nil {
		return &TransportError{Op: opReadHistory, Err: err}
	}

	res, err := r.Tracker.StartFromReference(ctx, req.msg.ConversationID, quoted.SentAt)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(replyMeetingStarted, r.clock(quoted.SentAt))
	if res.Previous.Active {
		text = fmt.Sprintf(replyMeetingOverwrite, r.clock(res.Previous.Start)) + text
	}
	return r.reply(ctx, req, text)
}

func (r *Router) handleCancelMeeting(ctx context.Context, req *request) error {
	cancelled, err := r.Tracker.Cancel(ctx, req.msg.ConversationID)
	if err != nil {
		return err
	}
	if !cancelled {
		return r.reply(ctx, req, replyNoMeeting)
	}
	return r.reply(ctx, req, replyMeetingCancelled)
}
