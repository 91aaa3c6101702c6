package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"notulis.app/bot/internal/registry"
)

func (r *Router) handleHelp(ctx context.Context, req *request) error {
	return r.reply(ctx, req, helpText)
}

func (r *Router) handleRegister(ctx context.Context, req *request) error {
	name := registry.NormalizeName(req.inv.Arg)
	if name == "" {
		return &InputValidationError{Command: Register, Usage: usageRegister}
	}
	if !r.Registrar.Register(ctx, req.msg.SenderID, name) {
		return r.reply(ctx, req, replyRegisterFailed)
	}
	return r.reply(ctx, req, fmt.Sprintf(replyRegistered, name))
}

func (r *Router) handleAsk(ctx context.Context, req *request) error {
	question := strings.TrimSpace(req.inv.Arg)
	if question == "" {
		return &InputValidationError{Command: Ask, Usage: usageAsk}
	}
	if err := r.reply(ctx, req, ackAsk); err != nil {
		return err
	}

	answer, err := r.Pipeline.Ask(ctx, r.cfg.Prompts.AskSystem, question)
	if err != nil {
		return err
	}
	return r.reply(ctx, req, answer)
}

// handleDebugHistory echoes the transcript the pipeline would see for the
// last n messages.
func (r *Router) handleDebugHistory(ctx context.Context, req *request) error {
	n, err := parseCount(DebugHistory, req.inv.Arg, MaxDebugCount, usageDebugHistory)
	if err != nil {
		return err
	}

	msgs, err := r.Messages.ListBefore(ctx, req.msg.ConversationID, req.msg.ID, n)
	if err != nil {
		return &TransportError{Op: opReadHistory, Err: err}
	}
	if len(msgs) == 0 {
		return r.reply(ctx, req, replyNothingToSummarize)
	}

	// ListBefore is newest first.
	slices.Reverse(msgs)
	lines, err := r.Lines.Lines(ctx, msgs)
	if err != nil {
		return &TransportError{Op: opReadHistory, Err: err}
	}
	return r.reply(ctx, req, fmt.Sprintf(replyDebugHistoryTitle, len(lines))+strings.Join(lines, "\n"))
}

func (r *Router) handleTestPoll(ctx context.Context, req *request) error {
	if err := r.reply(ctx, req, ackTestPoll); err != nil {
		return err
	}
	if err := r.poll(ctx, req, testPollQuestion, testPollOptions); err != nil {
		slog.ErrorContext(ctx, "test poll failed", "error", err)
		return r.reply(ctx, req, replyTestPollFailed)
	}
	return nil
}
