package command

import (
	"context"
	"errors"
	"log/slog"

	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/brain"
	"notulis.app/bot/internal/meeting"
)

// minVotingMessages is the smallest last-N window worth turning into a poll.
const minVotingMessages = 3

func (r *Router) handleVoting(ctx context.Context, req *request) error {
	return r.Tracker.WithScope(ctx, req.msg.ConversationID, func(ctx context.Context, scope *meeting.Scope) error {
		msgs, err := r.window(ctx, req, scope, Voting, MaxVotingCount, usageVoting, r.cfg.TasksWindow, ackVoting, ackVotingMeeting)
		if err != nil {
			return err
		}

		if scope.Active && len(msgs) == 0 {
			return r.reply(ctx, req, brain.DefaultNoTopicMessage)
		}
		if !scope.Active && len(msgs) < minVotingMessages {
			return r.reply(ctx, req, replyNotEnoughToVote)
		}

		outcome, err := r.Pipeline.Run(ctx, r.cfg.Prompts.Voting, msgs)
		if err != nil {
			return err
		}
		if outcome.NotFound {
			r.Recorder.RecordPollParse("no_topic")
			return r.reply(ctx, req, brain.DefaultNoTopicMessage)
		}

		res, err := brain.ExtractPoll(outcome.Text)
		if err != nil {
			result := "schema_violation"
			if errors.Is(err, brain.ErrMalformedOutput) {
				result = "malformed"
			}
			r.Recorder.RecordPollParse(result)
			slog.WarnContext(ctx, "generated poll rejected",
				"error", err,
				"raw", logger.Truncate(outcome.Text, 500))
			return r.reply(ctx, req, replyPollFailed)
		}
		if res.Proposal == nil {
			r.Recorder.RecordPollParse("no_topic")
			return r.reply(ctx, req, res.ErrorMessage)
		}

		r.Recorder.RecordPollParse("ok")
		if err := r.poll(ctx, req, res.Proposal.Question, res.Proposal.Options); err != nil {
			return err
		}
		if outcome.Degraded() {
			return r.reply(ctx, req, replyPollDegraded)
		}
		return nil
	})
}
