// Package command maps inbound chat commands onto the meeting tracker and
// the reduction pipeline, and turns every outcome into a chat reply.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"notulis.app/bot/common/id"
	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/brain"
	"notulis.app/bot/internal/gateway"
	"notulis.app/bot/internal/meeting"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/store"
)

// Sender is the outbound side of the chat transport. gateway.Client
// satisfies it.
type Sender interface {
	SendText(ctx context.Context, chatID, text, replyTo string) error
	SendPoll(ctx context.Context, chatID, question string, options []string) error
}

// Pipeline is the slice of brain.Pipeline the handlers use.
type Pipeline interface {
	Run(ctx context.Context, task brain.Task, msgs []model.Message) (*brain.Outcome, error)
	Ask(ctx context.Context, system, question string) (string, error)
}

type Registrar interface {
	Register(ctx context.Context, senderID, name string) bool
}

type LineBuilder interface {
	Lines(ctx context.Context, msgs []model.Message) ([]string, error)
}

// Recorder receives command metrics. metrics.Metrics satisfies it.
type Recorder interface {
	RecordCommand(command, outcome string, seconds float64)
	RecordArchiveFailure()
	RecordPollParse(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(string, string, float64) {}
func (nopRecorder) RecordArchiveFailure()                 {}
func (nopRecorder) RecordPollParse(string)                {}

// TransportError is a failed history read or reply send.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Config struct {
	// Meeting-mode fetch ceilings.
	SummarizeWindow int
	TasksWindow     int
	Location        *time.Location
	Prompts         *brain.Prompts
	Now             func() time.Time
	NewID           func() int64
}

type Deps struct {
	Sender    Sender
	Messages  store.MessageStore
	Archive   store.ArchiveStore
	Tracker   *meeting.Tracker
	Pipeline  Pipeline
	Registrar Registrar
	Lines     LineBuilder
	Recorder  Recorder
}

type handlerFunc func(ctx context.Context, req *request) error

type request struct {
	msg model.Message
	inv Invocation
}

type Router struct {
	Deps
	cfg      Config
	handlers map[string]handlerFunc
}

func NewRouter(deps Deps, cfg Config) *Router {
	if cfg.SummarizeWindow <= 0 {
		cfg.SummarizeWindow = 1000
	}
	if cfg.TasksWindow <= 0 {
		cfg.TasksWindow = 500
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Prompts == nil {
		cfg.Prompts = brain.DefaultPrompts()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.New
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	r := &Router{Deps: deps, cfg: cfg}
	r.handlers = map[string]handlerFunc{
		Help:         r.handleHelp,
		Register:     r.handleRegister,
		StartMeeting: r.handleStartMeeting,
		StartFromRef: r.handleStartFromReference,
		CancelMeet:   r.handleCancelMeeting,
		Summarize:    r.handleSummarize,
		Tasks:        r.handleTasks,
		Voting:       r.handleVoting,
		Ask:          r.handleAsk,
		DebugHistory: r.handleDebugHistory,
		TestPoll:     r.handleTestPoll,
	}
	return r
}

// Dispatch runs the command in msg, if any. Handler failures and panics
// become fixed replies; the returned error is non-nil only when that
// final reply could not be delivered, so the caller may retry.
func (r *Router) Dispatch(ctx context.Context, msg model.Message) error {
	inv, ok := Parse(msg.Body)
	if !ok {
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &msg.ConversationID,
		ChatMessageID:  &msg.ExternalID,
		SenderID:       &msg.SenderID,
		Command:        &inv.Name,
		Component:      "notulis.command.router",
	})
	sc := logger.StartSpan(ctx, "command."+inv.Name)
	defer sc.End()
	ctx = sc.Context()

	start := time.Now()
	err := r.runSafe(ctx, &request{msg: msg, inv: inv})
	outcome := outcomeOf(err)
	r.Recorder.RecordCommand(inv.Name, outcome, time.Since(start).Seconds())

	if err == nil {
		slog.InfoContext(ctx, "command handled", "duration_ms", time.Since(start).Milliseconds())
		return nil
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Op == opSendReply {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "command reply not delivered", "error", err)
		return err
	}

	sc.RecordError(err)
	reply := failureReply(inv.Name, err)
	if outcome == outcomeInvalid {
		slog.InfoContext(ctx, "command rejected", "reason", err)
	} else {
		slog.ErrorContext(ctx, "command failed", "error", err)
	}
	sendCtx := withSendKey(ctx, msg, "text", reply)
	if sendErr := r.Sender.SendText(sendCtx, msg.ConversationID, reply, msg.ExternalID); sendErr != nil {
		return &TransportError{Op: opSendReply, Err: sendErr}
	}
	return nil
}

func (r *Router) runSafe(ctx context.Context, req *request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic recovered in command handler", "panic", rec)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.handlers[req.inv.Name](ctx, req)
}

const (
	opSendReply   = "send reply"
	opReadHistory = "read history"

	outcomeOK         = "ok"
	outcomeInvalid    = "invalid_input"
	outcomeGeneration = "generation_failed"
	outcomeTransport  = "transport_failed"
	outcomeError      = "error"
)

func outcomeOf(err error) string {
	var inputErr *InputValidationError
	var transportErr *TransportError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &inputErr):
		return outcomeInvalid
	case brain.IsGenerationFailure(err):
		return outcomeGeneration
	case errors.As(err, &transportErr):
		return outcomeTransport
	default:
		return outcomeError
	}
}

func failureReply(command string, err error) string {
	var inputErr *InputValidationError
	var transportErr *TransportError
	switch {
	case errors.As(err, &inputErr):
		return inputErr.Usage
	case brain.IsGenerationFailure(err):
		return replyGenerationFailed
	case errors.As(err, &transportErr) && transportErr.Op == opReadHistory:
		if command == Voting {
			return replyVotingHistory
		}
		return replyHistoryFailed
	default:
		return replyInternalError
	}
}

func (r *Router) reply(ctx context.Context, req *request, text string) error {
	ctx = withSendKey(ctx, req.msg, "text", text)
	if err := r.Sender.SendText(ctx, req.msg.ConversationID, text, req.msg.ExternalID); err != nil {
		return &TransportError{Op: opSendReply, Err: err}
	}
	return nil
}

func (r *Router) poll(ctx context.Context, req *request, question string, options []string) error {
	ctx = withSendKey(ctx, req.msg, append([]string{"poll", question}, options...)...)
	if err := r.Sender.SendPoll(ctx, req.msg.ConversationID, question, options); err != nil {
		return &TransportError{Op: opSendReply, Err: err}
	}
	return nil
}

// withSendKey derives the gateway idempotency key from the command message
// and the content sent, so a retried command repeats the keys of the sends
// it already made.
func withSendKey(ctx context.Context, msg model.Message, parts ...string) context.Context {
	name := msg.ConversationID + "\x00" + msg.ExternalID + "\x00" + strings.Join(parts, "\x00")
	return gateway.WithIdempotencyKey(ctx, uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String())
}

func (r *Router) clock(ts int64) string {
	return time.Unix(ts, 0).In(r.cfg.Location).Format("15:04")
}
