package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"notulis.app/bot/internal/brain"
	"notulis.app/bot/internal/meeting"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/store"
)

// digest describes the text-producing commands (!rangkum, !tugas). They
// share the window selection, the pipeline run and the archive step.
type digest struct {
	command    string
	task       func(p *brain.Prompts) brain.Task
	category   model.ArchiveCategory
	maxCount   int
	usage      string
	ack        string
	ackMeeting string
	// consume deletes the meeting marker once the digest has been delivered.
	consume bool
}

var (
	summarizeDigest = digest{
		command:    Summarize,
		task:       func(p *brain.Prompts) brain.Task { return p.Summary },
		category:   model.ArchiveCategorySummary,
		maxCount:   MaxSummarizeCount,
		usage:      usageSummarize,
		ack:        ackSummarize,
		ackMeeting: ackSummarizeMeeting,
		consume:    true,
	}
	tasksDigest = digest{
		command:    Tasks,
		task:       func(p *brain.Prompts) brain.Task { return p.Tasks },
		category:   model.ArchiveCategoryTasks,
		maxCount:   MaxTasksCount,
		usage:      usageTasks,
		ack:        ackTasks,
		ackMeeting: ackTasksMeeting,
	}
)

func (r *Router) handleSummarize(ctx context.Context, req *request) error {
	return r.runDigest(ctx, req, summarizeDigest, r.cfg.SummarizeWindow)
}

func (r *Router) handleTasks(ctx context.Context, req *request) error {
	return r.runDigest(ctx, req, tasksDigest, r.cfg.TasksWindow)
}

func (r *Router) runDigest(ctx context.Context, req *request, d digest, window int) error {
	return r.Tracker.WithScope(ctx, req.msg.ConversationID, func(ctx context.Context, scope *meeting.Scope) error {
		// A retried command whose result was archived resends that result.
		if prior := r.archived(ctx, req, d.category); prior != nil {
			slog.InfoContext(ctx, "command already archived, resending its reply",
				"archive_id", prior.ID)
			return r.deliverDigest(ctx, req, scope, d, digestResult{
				body:     prior.Body,
				degraded: prior.Degraded,
				archived: true,
				meeting:  scope.Active && prior.CreatedAt.Unix() >= scope.Start,
			})
		}

		msgs, err := r.window(ctx, req, scope, d.command, d.maxCount, d.usage, window, d.ack, d.ackMeeting)
		if err != nil {
			return err
		}

		if len(msgs) == 0 {
			switch {
			case scope.Active && d.consume:
				scope.Consume()
				return r.reply(ctx, req, replyNothingInMeeting)
			case d.category == model.ArchiveCategoryTasks:
				return r.reply(ctx, req, replyNoTasks)
			default:
				return r.reply(ctx, req, replyNothingToSummarize)
			}
		}

		outcome, err := r.Pipeline.Run(ctx, d.task(r.cfg.Prompts), msgs)
		if err != nil {
			return err
		}
		if outcome.NotFound {
			if d.category == model.ArchiveCategoryTasks {
				return r.reply(ctx, req, replyNoTasks)
			}
			return r.reply(ctx, req, replyEmptySummary)
		}

		return r.deliverDigest(ctx, req, scope, d, digestResult{
			body:     outcome.Text,
			degraded: outcome.Degraded(),
			archived: r.archive(ctx, req, d.category, outcome.Text, outcome.Degraded()),
			meeting:  scope.Active,
		})
	})
}

type digestResult struct {
	body     string
	degraded bool
	archived bool
	meeting  bool
}

func (r *Router) deliverDigest(ctx context.Context, req *request, scope *meeting.Scope, d digest, res digestResult) error {
	text := res.body
	switch {
	case d.category == model.ArchiveCategoryTasks:
		text = headerTasks + text
	case res.meeting:
		text = fmt.Sprintf(headerMeetingSummary, r.clock(scope.Start)) + text
	}
	if res.degraded {
		text += replyDegraded
	}
	if !res.archived {
		text += replyNotArchived
	}

	if err := r.reply(ctx, req, text); err != nil {
		return err
	}
	if d.consume && res.meeting {
		scope.Consume()
	}
	return nil
}

// window picks the messages a command works on. In a meeting it is every
// message since the marker, up to the newest limit, and the count argument
// is ignored. Otherwise the argument is required and selects the last n
// messages before the command. An acknowledgement goes out before the read.
func (r *Router) window(ctx context.Context, req *request, scope *meeting.Scope,
	command string, maxCount int, usage string, limit int, ack, ackMeeting string,
) ([]model.Message, error) {
	var msgs []model.Message
	var err error

	if scope.Active {
		if err := r.reply(ctx, req, fmt.Sprintf(ackMeeting, r.clock(scope.Start))); err != nil {
			return nil, err
		}
		msgs, err = r.Messages.ListSince(ctx, req.msg.ConversationID, scope.Start, req.msg.ID, limit)
		if err == nil && len(msgs) == limit {
			slog.WarnContext(ctx, "meeting exceeds the command window, earliest messages left out",
				"meeting_start", scope.Start,
				"limit", limit)
		}
	} else {
		n, perr := parseCount(command, req.inv.Arg, maxCount, usage)
		if perr != nil {
			return nil, perr
		}
		if err := r.reply(ctx, req, fmt.Sprintf(ack, n)); err != nil {
			return nil, err
		}
		msgs, err = r.Messages.ListBefore(ctx, req.msg.ConversationID, req.msg.ID, n)
	}
	if err != nil {
		return nil, &TransportError{Op: opReadHistory, Err: err}
	}

	slog.DebugContext(ctx, "command window selected",
		"meeting", scope.Active,
		"messages", len(msgs))
	return msgs, nil
}

// archive appends text and reports success. Failures only change the
// reply suffix.
func (r *Router) archive(ctx context.Context, req *request, category model.ArchiveCategory, text string, degraded bool) bool {
	now := r.cfg.Now()
	entry := &model.ArchiveEntry{
		ID:              r.cfg.NewID(),
		Category:        category,
		ConversationID:  req.msg.ConversationID,
		SourceMessageID: req.msg.ID,
		Body:            text,
		Degraded:        degraded,
		LocalTime:       now.In(r.cfg.Location).Format("2006-01-02 15:04:05"),
	}
	if err := r.Archive.Append(ctx, entry); err != nil {
		r.Recorder.RecordArchiveFailure()
		slog.ErrorContext(ctx, "archive append failed",
			"category", category,
			"error", err)
		return false
	}
	return true
}

// archived returns the entry an earlier attempt of this command stored,
// or nil. A failed lookup is treated as a miss.
func (r *Router) archived(ctx context.Context, req *request, category model.ArchiveCategory) *model.ArchiveEntry {
	entry, err := r.Archive.GetBySource(ctx, req.msg.ID, category)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "archive lookup failed",
				"category", category,
				"error", err)
		}
		return nil
	}
	return entry
}
