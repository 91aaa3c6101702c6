// Package transcript flattens chat messages into "Speaker: text" lines.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"notulis.app/bot/internal/model"
)

// ErrEmptyTranscript is returned for an empty message batch. Callers branch
// on it instead of treating "" as "no content".
var ErrEmptyTranscript = errors.New("empty transcript")

type Builder struct {
	resolver    Resolver
	concurrency int
}

func NewBuilder(resolver Resolver, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Builder{resolver: resolver, concurrency: concurrency}
}

// Lines resolves every author concurrently and returns one line per
// message in input order.
func (b *Builder) Lines(ctx context.Context, msgs []model.Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyTranscript
	}

	names := make([]string, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			names[i] = b.resolver.Resolve(gctx, msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving names: %w", err)
	}

	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = Line(names[i], msg.Body)
	}
	return lines, nil
}

// Build returns the newline-joined transcript.
func (b *Builder) Build(ctx context.Context, msgs []model.Message) (string, error) {
	lines, err := b.Lines(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Line formats one transcript line. Line breaks inside the body are folded
// so a message never spans more than one line.
func Line(name, body string) string {
	body = strings.Join(strings.Fields(body), " ")
	return name + ": " + body
}
