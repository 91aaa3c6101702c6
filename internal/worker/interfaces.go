package worker

import (
	"context"

	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// MessageLoader reads the stored chat message a task points at.
type MessageLoader interface {
	GetByID(ctx context.Context, id int64) (*model.Message, error)
}

// Dispatcher runs one chat command. command.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.Message) error
}

// Recorder receives queue outcome metrics. metrics.Metrics satisfies it.
type Recorder interface {
	RecordQueueOutcome(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordQueueOutcome(string) {}
