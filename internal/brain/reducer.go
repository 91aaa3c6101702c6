package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"notulis.app/bot/common/llm"
	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/chunk"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/transcript"
)

// PartialSeparator sits between labelled partials in the reduce prompt.
const PartialSeparator = "\n\n---\n\n"

// Generator is the slice of llm.Client the pipeline needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// LineBuilder renders messages as transcript lines. transcript.Builder
// satisfies it.
type LineBuilder interface {
	Lines(ctx context.Context, msgs []model.Message) ([]string, error)
}

// Recorder receives pipeline metrics. metrics.Metrics satisfies it.
type Recorder interface {
	RecordGeneration(task, stage, status string, seconds float64, promptTokens, completionTokens int)
	RecordPartial(task, disposition string)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string, string, float64, int, int) {}
func (nopRecorder) RecordPartial(string, string)                              {}

type PipelineConfig struct {
	ChunkSize   int
	Concurrency int
	MaxTokens   int
	Temperature *float64
}

// Pipeline condenses a message sequence into one artifact: one generation
// call per chunk, then one reduce call when more than one partial survives.
type Pipeline struct {
	gen      Generator
	lines    LineBuilder
	cfg      PipelineConfig
	recorder Recorder
}

func NewPipeline(gen Generator, lines LineBuilder, cfg PipelineConfig, recorder Recorder) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{gen: gen, lines: lines, cfg: cfg, recorder: recorder}
}

// Partial is one retained chunk-level result.
type Partial struct {
	Index int
	Text  string
}

// Outcome is the result of a pipeline run. NotFound means every chunk was
// classified as empty; Text is unset in that case. FailedChunks lists
// chunk indexes whose generation call failed and were skipped.
type Outcome struct {
	Text         string
	NotFound     bool
	Chunks       int
	Partials     []Partial
	FailedChunks []int
	Reduced      bool
}

// Degraded reports whether some chunks were skipped after failing.
func (o *Outcome) Degraded() bool {
	return len(o.FailedChunks) > 0
}

type chunkResult struct {
	skipped bool
	failed  error
	class   Classification
}

// Run executes task over msgs. Messages are sorted by SentAt first, so the
// caller may pass them in any fetch order.
//
// A failed chunk call is logged and skipped; if every non-empty chunk
// fails, Run returns a *GenerationError. A failed reduce call is returned
// as a *GenerationError and never retried.
func (p *Pipeline) Run(ctx context.Context, task Task, msgs []model.Message) (*Outcome, error) {
	if len(msgs) == 0 {
		return nil, ErrNothingToReduce
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notulis.brain.pipeline"})
	sc := logger.StartSpan(ctx, "brain.pipeline."+task.Name)
	defer sc.End()
	ctx = sc.Context()

	ordered := slices.Clone(msgs)
	slices.SortStableFunc(ordered, func(a, b model.Message) int {
		switch {
		case a.SentAt < b.SentAt:
			return -1
		case a.SentAt > b.SentAt:
			return 1
		}
		return 0
	})

	count := chunk.Count(len(ordered), p.cfg.ChunkSize)
	sc.SetAttributes(
		attribute.String("task", task.Name),
		attribute.Int("messages", len(ordered)),
		attribute.Int("chunks", count),
	)

	results := make([]chunkResult, count)
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, c := range chunk.Seq(ordered, p.cfg.ChunkSize) {
		g.Go(func() error {
			results[i] = p.runChunk(ctx, task, i, count, c)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Outcome{Chunks: count}
	attempted := 0
	var firstErr error
	for i, r := range results {
		switch {
		case r.skipped:
			p.recorder.RecordPartial(task.Name, "skipped")
		case r.failed != nil:
			attempted++
			out.FailedChunks = append(out.FailedChunks, i)
			if firstErr == nil {
				firstErr = r.failed
			}
			p.recorder.RecordPartial(task.Name, "failed")
		case r.class.Found:
			attempted++
			out.Partials = append(out.Partials, Partial{Index: i, Text: r.class.Text})
			p.recorder.RecordPartial(task.Name, "kept")
		default:
			attempted++
			p.recorder.RecordPartial(task.Name, "dropped")
		}
	}

	if attempted > 0 && len(out.FailedChunks) == attempted {
		err := &GenerationError{Task: task.Name, Stage: StageChunk, Chunk: out.FailedChunks[0], Err: firstErr}
		sc.RecordError(err)
		return nil, err
	}

	switch len(out.Partials) {
	case 0:
		out.NotFound = true
	case 1:
		out.Text = out.Partials[0].Text
	default:
		text, err := p.reduce(ctx, task, out.Partials, count)
		if err != nil {
			sc.RecordError(err)
			return nil, err
		}
		out.Text = text
		out.Reduced = true
	}

	slog.InfoContext(ctx, "pipeline completed",
		"task", task.Name,
		"messages", len(ordered),
		"chunks", count,
		"partials", len(out.Partials),
		"failed_chunks", len(out.FailedChunks),
		"reduced", out.Reduced,
		"not_found", out.NotFound)

	return out, nil
}

func (p *Pipeline) runChunk(ctx context.Context, task Task, index, count int, msgs []model.Message) chunkResult {
	lines, err := p.lines.Lines(ctx, msgs)
	if errors.Is(err, transcript.ErrEmptyTranscript) {
		return chunkResult{skipped: true}
	}
	if err != nil {
		return chunkResult{failed: fmt.Errorf("building transcript: %w", err)}
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return chunkResult{skipped: true}
	}

	prompt, err := task.renderChunk(ChunkData{Index: index + 1, Count: count, Transcript: text})
	if err != nil {
		return chunkResult{failed: err}
	}

	out, err := p.generate(ctx, task, StageChunk, prompt)
	if err != nil {
		slog.WarnContext(ctx, "chunk generation failed, skipping chunk",
			"task", task.Name,
			"chunk", index,
			"error", err)
		return chunkResult{failed: err}
	}

	class := task.Classifier.Classify(out)
	if !class.Found {
		slog.DebugContext(ctx, "chunk classified as nothing found",
			"task", task.Name,
			"chunk", index,
			"output", logger.Truncate(out, 200))
	}
	return chunkResult{class: class}
}

func (p *Pipeline) reduce(ctx context.Context, task Task, partials []Partial, count int) (string, error) {
	blocks := make([]string, len(partials))
	for i, part := range partials {
		blocks[i] = fmt.Sprintf("[Bagian %d/%d]\n%s", part.Index+1, count, part.Text)
	}

	prompt, err := task.renderReduce(ReduceData{Count: len(partials), Partials: strings.Join(blocks, PartialSeparator)})
	if err != nil {
		return "", &GenerationError{Task: task.Name, Stage: StageReduce, Chunk: -1, Err: err}
	}

	text, err := p.generate(ctx, task, StageReduce, prompt)
	if err != nil {
		return "", &GenerationError{Task: task.Name, Stage: StageReduce, Chunk: -1, Err: err}
	}
	return strings.TrimSpace(text), nil
}

// Ask sends a free-form question straight to the backend.
func (p *Pipeline) Ask(ctx context.Context, system, question string) (string, error) {
	text, err := p.generate(ctx, Task{Name: "ask", System: system}, StageAsk, question)
	if err != nil {
		return "", &GenerationError{Task: "ask", Stage: StageAsk, Chunk: -1, Err: err}
	}
	return strings.TrimSpace(text), nil
}

func (p *Pipeline) generate(ctx context.Context, task Task, stage, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.gen.Generate(ctx, llm.Request{
		SystemPrompt: task.System,
		Prompt:       prompt,
		MaxTokens:    p.cfg.MaxTokens,
		Temperature:  p.cfg.Temperature,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		status := "error"
		if llm.IsRetryable(ctx, err) {
			status = "transient_error"
		}
		p.recorder.RecordGeneration(task.Name, stage, status, elapsed, 0, 0)
		return "", err
	}

	p.recorder.RecordGeneration(task.Name, stage, "ok", elapsed, resp.PromptTokens, resp.CompletionTokens)
	if resp.FinishReason == "length" {
		slog.WarnContext(ctx, "generation hit the token limit", "task", task.Name, "stage", stage)
	}
	return resp.Text, nil
}
