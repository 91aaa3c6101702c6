// Package meeting tracks the explicitly marked "meeting" span of a
// conversation: at most one start marker per conversation, consumed by a
// successful meeting-scoped summary.
package meeting

import (
	"context"
	"fmt"
	"log/slog"

	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/store"
)

const (
	EventStarted          = "started"
	EventStartRejected    = "start_rejected"
	EventStartedFromQuote = "started_from_reference"
	EventOverwritten      = "overwritten"
	EventCancelled        = "cancelled"
	EventCancelNoop       = "cancel_noop"
	EventConsumed         = "consumed"
)

// EventRecorder receives tracker transitions. metrics.Metrics satisfies it.
type EventRecorder interface {
	RecordMeetingEvent(event string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMeetingEvent(string) {}

// Status is either NoActiveMeeting or an active meeting started at Start.
type Status struct {
	Active bool
	Start  int64
}

var NoActiveMeeting = Status{}

func MeetingActive(start int64) Status {
	return Status{Active: true, Start: start}
}

// StartResult reports what Start or StartFromReference did. Previous is
// the marker that blocked (Start) or was overwritten (StartFromReference).
type StartResult struct {
	Started  bool
	Previous Status
}

type Tracker struct {
	markers  store.MarkerStore
	recorder EventRecorder
}

func NewTracker(markers store.MarkerStore, recorder EventRecorder) *Tracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Tracker{markers: markers, recorder: recorder}
}

// Status reads the current marker without taking the conversation lock.
func (t *Tracker) Status(ctx context.Context, conversationID string) (Status, error) {
	ts, ok, err := t.markers.Get(ctx, conversationID)
	if err != nil {
		return NoActiveMeeting, fmt.Errorf("reading meeting marker: %w", err)
	}
	if !ok {
		return NoActiveMeeting, nil
	}
	return MeetingActive(ts), nil
}

// Start sets the marker to now unless a meeting is already active, in
// which case the existing marker is left untouched and returned.
func (t *Tracker) Start(ctx context.Context, conversationID string, now int64) (StartResult, error) {
	var res StartResult
	err := t.locked(ctx, conversationID, func(ctx context.Context) error {
		current, err := t.Status(ctx, conversationID)
		if err != nil {
			return err
		}
		if current.Active {
			res.Previous = current
			t.recorder.RecordMeetingEvent(EventStartRejected)
			return nil
		}
		if err := t.markers.Set(ctx, conversationID, now); err != nil {
			return fmt.Errorf("setting meeting marker: %w", err)
		}
		res.Started = true
		t.recorder.RecordMeetingEvent(EventStarted)
		slog.InfoContext(ctx, "meeting started", "start", now)
		return nil
	})
	return res, err
}

// StartFromReference always sets the marker to ts, the timestamp of a
// quoted message. An overwritten marker is reported in Previous.
func (t *Tracker) StartFromReference(ctx context.Context, conversationID string, ts int64) (StartResult, error) {
	var res StartResult
	err := t.locked(ctx, conversationID, func(ctx context.Context) error {
		current, err := t.Status(ctx, conversationID)
		if err != nil {
			return err
		}
		if err := t.markers.Set(ctx, conversationID, ts); err != nil {
			return fmt.Errorf("setting meeting marker: %w", err)
		}
		res.Started = true
		res.Previous = current
		if current.Active {
			t.recorder.RecordMeetingEvent(EventOverwritten)
			slog.WarnContext(ctx, "meeting marker overwritten", "previous_start", current.Start, "start", ts)
		}
		t.recorder.RecordMeetingEvent(EventStartedFromQuote)
		return nil
	})
	return res, err
}

// Cancel deletes the marker. It reports false when there was none.
func (t *Tracker) Cancel(ctx context.Context, conversationID string) (bool, error) {
	var cancelled bool
	err := t.locked(ctx, conversationID, func(ctx context.Context) error {
		current, err := t.Status(ctx, conversationID)
		if err != nil {
			return err
		}
		if !current.Active {
			t.recorder.RecordMeetingEvent(EventCancelNoop)
			return nil
		}
		if err := t.markers.Delete(ctx, conversationID); err != nil {
			return fmt.Errorf("deleting meeting marker: %w", err)
		}
		cancelled = true
		t.recorder.RecordMeetingEvent(EventCancelled)
		slog.InfoContext(ctx, "meeting cancelled", "start", current.Start)
		return nil
	})
	return cancelled, err
}

// Scope is handed to a WithScope callback. The marker it saw cannot
// change while the callback runs.
type Scope struct {
	Status
	consume bool
}

// Consume asks for the marker to be deleted once the callback returns
// nil. It is a no-op outside an active meeting.
func (s *Scope) Consume() {
	s.consume = s.Active
}

// WithScope runs fn with the conversation's meeting status while holding
// the conversation lock. The marker is deleted only when fn called
// Consume and returned nil.
func (t *Tracker) WithScope(ctx context.Context, conversationID string, fn func(ctx context.Context, scope *Scope) error) error {
	return t.locked(ctx, conversationID, func(ctx context.Context) error {
		current, err := t.Status(ctx, conversationID)
		if err != nil {
			return err
		}

		scope := &Scope{Status: current}
		if err := fn(ctx, scope); err != nil {
			return err
		}
		if !scope.consume {
			return nil
		}

		if err := t.markers.Delete(ctx, conversationID); err != nil {
			return fmt.Errorf("consuming meeting marker: %w", err)
		}
		t.recorder.RecordMeetingEvent(EventConsumed)
		slog.InfoContext(ctx, "meeting marker consumed", "start", current.Start)
		return nil
	})
}

func (t *Tracker) locked(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conversationID,
		Component:      "notulis.meeting.tracker",
	})

	unlock, err := t.markers.Lock(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("locking conversation %s: %w", conversationID, err)
	}
	defer unlock()

	return fn(ctx)
}
