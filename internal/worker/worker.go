package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/queue"
	"notulis.app/bot/internal/store"
)

const (
	OutcomeDone     = "done"
	OutcomeSkipped  = "skipped"
	OutcomeRequeued = "requeued"
	OutcomeDLQ      = "dlq"
)

type Config struct {
	MaxAttempts int
	// Concurrency caps how many commands from one batch run at once.
	Concurrency int
}

type Worker struct {
	consumer   Consumer
	messages   MessageLoader
	dispatcher Dispatcher
	recorder   Recorder
	cfg        Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, messages MessageLoader, dispatcher Dispatcher, recorder Recorder, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Worker{
		consumer:   consumer,
		messages:   messages,
		dispatcher: dispatcher,
		recorder:   recorder,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notulis.worker"})
	slog.InfoContext(ctx, "worker started", "concurrency", w.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	// Commands for different conversations must not wait on each other.
	g := new(errgroup.Group)
	g.SetLimit(w.cfg.Concurrency)
	for _, msg := range messages {
		g.Go(func() error {
			w.Handle(ctx, msg)
			return nil
		})
	}
	return g.Wait()
}

// Handle processes msg and settles it: ack on success, requeue or DLQ on
// failure. The reclaimer uses it for stale entries too.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if err := w.processMessageSafe(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"message_id", msg.ID,
			"chat_message_id", msg.ChatMessageID)
		w.handleFailedMessage(ctx, msg, err)
	}
	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"chat_message_id", msg.ChatMessageID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage loads the stored command message and dispatches it.
// A non-nil error means the entry was not acked.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	streamID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		StreamMessageID: &streamID,
		ConversationID:  &msg.ConversationID,
	})
	if msg.Command != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{Command: &msg.Command})
	}

	var sc *logger.SpanContext
	if msg.TraceID != "" {
		sc = logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_command")
	} else {
		sc = logger.StartSpan(ctx, "worker.process_command")
	}
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "processing message",
		"chat_message_id", msg.ChatMessageID,
		"attempt", msg.Attempt)

	chatMsg, err := w.messages.GetByID(ctx, msg.ChatMessageID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "command message no longer stored, skipping",
			"chat_message_id", msg.ChatMessageID)
		w.ack(ctx, msg)
		w.recorder.RecordQueueOutcome(OutcomeSkipped)
		return nil
	}
	if err != nil {
		sc.RecordError(err)
		return fmt.Errorf("loading chat message: %w", err)
	}

	if err := w.dispatcher.Dispatch(ctx, *chatMsg); err != nil {
		sc.RecordError(err)
		return fmt.Errorf("dispatching command: %w", err)
	}

	w.ack(ctx, msg)
	w.recorder.RecordQueueOutcome(OutcomeDone)
	return nil
}

func (w *Worker) ack(ctx context.Context, msg queue.Message) {
	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer picks it up again; dispatch is safe to repeat.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"chat_message_id", msg.ChatMessageID,
			"attempts", msg.Attempt)
		w.recorder.RecordQueueOutcome(OutcomeDLQ)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"chat_message_id", msg.ChatMessageID,
		"attempt", msg.Attempt)
	w.recorder.RecordQueueOutcome(OutcomeRequeued)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
