package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"notulis.app/bot/common/llm"
	"notulis.app/bot/common/logger"
	"notulis.app/bot/core/config"
	"notulis.app/bot/core/db"
	"notulis.app/bot/internal/brain"
	"notulis.app/bot/internal/model"
	"notulis.app/bot/internal/store"
	"notulis.app/bot/internal/transcript"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var taskAliases = map[string]string{
	brain.TaskSummary: brain.TaskSummary,
	"rangkum":         brain.TaskSummary,
	brain.TaskTasks:   brain.TaskTasks,
	"tugas":           brain.TaskTasks,
	brain.TaskVoting:  brain.TaskVoting,
}

type commandDeps struct {
	LoadConfig   func() (config.Config, error)
	NewGenerator func(cfg config.LLMConfig) (brain.Generator, error)
	OpenArchive  func(ctx context.Context, cfg config.Config) (store.ArchiveStore, func(), error)
}

func defaultDeps() *commandDeps {
	return &commandDeps{
		LoadConfig: func() (config.Config, error) {
			return config.Load(config.ServiceTypeCLI)
		},
		NewGenerator: func(cfg config.LLMConfig) (brain.Generator, error) {
			if !cfg.Enabled() {
				return nil, errors.New("LLM_API_KEY and a supported LLM_PROVIDER are required")
			}
			return llm.New(llm.Config{
				Provider:    cfg.Provider,
				APIKey:      cfg.APIKey,
				BaseURL:     cfg.BaseURL,
				Model:       cfg.Model,
				MaxTokens:   cfg.MaxTokens,
				Temperature: llm.Temp(cfg.Temperature),
				MaxRetries:  cfg.MaxRetries,
				Timeout:     cfg.Timeout,
			})
		},
		OpenArchive: func(ctx context.Context, cfg config.Config) (store.ArchiveStore, func(), error) {
			database, err := db.New(ctx, cfg.DB)
			if err != nil {
				return nil, nil, err
			}
			return store.NewStores(database.Conn()).Archive(), database.Close, nil
		},
	}
}

func newRootCommand(deps *commandDeps) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "digest",
		Short:         "Run chat minutes offline",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(logger.NewTraceHandler(
				slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}),
			)))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	cmd.AddCommand(newRunCommand(deps))
	cmd.AddCommand(newArchiveCommand(deps))
	return cmd
}

type runOptions struct {
	file        string
	output      string
	chunkSize   int
	concurrency int
	prompts     string
}

func newRunCommand(deps *commandDeps) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <summary|tasks|voting>",
		Short: "Condense a transcript file into a summary, task list, or poll",
		Long: `Run one of the pipelines against a JSON transcript.

The file holds an array of messages, oldest first:

  [{"sender": "62811@c.us", "name": "Budi", "body": "halo", "timestamp": 1700000000}]

Examples:
  digest run rangkum --file chat.json
  digest run tasks --file chat.json -o json
  cat chat.json | digest run voting --file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), deps, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Transcript JSON file, or - for stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputText, "Output format: text, json, yaml")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Messages per chunk (defaults to CHAT_CHUNK_SIZE)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Parallel chunk calls (defaults to PIPELINE_CONCURRENCY)")
	cmd.Flags().StringVar(&opts.prompts, "prompts", "", "Prompt override YAML (defaults to PROMPTS_FILE)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

type transcriptMessage struct {
	Sender    string `json:"sender"`
	Name      string `json:"name"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

type runResult struct {
	Task         string              `json:"task" yaml:"task"`
	Messages     int                 `json:"messages" yaml:"messages"`
	Chunks       int                 `json:"chunks" yaml:"chunks"`
	FailedChunks []int               `json:"failed_chunks,omitempty" yaml:"failed_chunks,omitempty"`
	NotFound     bool                `json:"not_found" yaml:"not_found"`
	Text         string              `json:"text,omitempty" yaml:"text,omitempty"`
	Poll         *brain.PollProposal `json:"poll,omitempty" yaml:"poll,omitempty"`
	PollError    string              `json:"poll_error,omitempty" yaml:"poll_error,omitempty"`
}

func runDigest(ctx context.Context, out io.Writer, in io.Reader, deps *commandDeps, taskArg string, opts runOptions) error {
	taskName, ok := taskAliases[strings.ToLower(taskArg)]
	if !ok {
		return fmt.Errorf("unknown task %q (want summary, tasks, or voting)", taskArg)
	}
	if err := validateOutput(opts.output); err != nil {
		return err
	}

	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	promptsPath := opts.prompts
	if promptsPath == "" {
		promptsPath = cfg.Chat.PromptsFile
	}
	prompts, err := brain.LoadPrompts(promptsPath)
	if err != nil {
		return err
	}
	task := map[string]brain.Task{
		brain.TaskSummary: prompts.Summary,
		brain.TaskTasks:   prompts.Tasks,
		brain.TaskVoting:  prompts.Voting,
	}[taskName]

	msgs, err := readTranscript(opts.file, in)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return errors.New("transcript is empty")
	}

	gen, err := deps.NewGenerator(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	pipelineCfg := brain.PipelineConfig{
		ChunkSize:   firstPositive(opts.chunkSize, cfg.Chat.ChunkSize),
		Concurrency: firstPositive(opts.concurrency, cfg.Chat.Concurrency),
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	lines := transcript.NewBuilder(transcript.NewChainResolver(nil, nil, 0), cfg.Chat.ResolveConcurrency)
	pipeline := brain.NewPipeline(gen, lines, pipelineCfg, nil)

	outcome, err := pipeline.Run(ctx, task, msgs)
	if err != nil {
		return err
	}

	result := runResult{
		Task:         taskName,
		Messages:     len(msgs),
		Chunks:       outcome.Chunks,
		FailedChunks: outcome.FailedChunks,
		NotFound:     outcome.NotFound,
		Text:         outcome.Text,
	}
	if taskName == brain.TaskVoting && !outcome.NotFound {
		poll, err := brain.ExtractPoll(outcome.Text)
		if err != nil {
			return fmt.Errorf("reading poll proposal: %w", err)
		}
		result.Poll = poll.Proposal
		result.PollError = poll.ErrorMessage
	}

	return writeResult(out, opts.output, result)
}

func readTranscript(path string, in io.Reader) ([]model.Message, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(in)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var entries []transcriptMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}

	msgs := make([]model.Message, 0, len(entries))
	for i, e := range entries {
		sender := e.Sender
		if sender == "" {
			sender = e.Name
		}
		msg := model.Message{
			ID:             int64(i + 1),
			ConversationID: "cli",
			SenderID:       sender,
			Body:           e.Body,
			SentAt:         e.Timestamp,
		}
		if e.Name != "" {
			name := e.Name
			msg.SenderName = &name
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func writeResult(out io.Writer, format string, result runResult) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case outputYAML:
		return yaml.NewEncoder(out).Encode(result)
	}

	if len(result.FailedChunks) > 0 {
		fmt.Fprintf(out, "(%d of %d chunks failed and were skipped)\n\n", len(result.FailedChunks), result.Chunks)
	}
	switch {
	case result.NotFound:
		fmt.Fprintln(out, "Nothing found.")
	case result.Poll != nil:
		fmt.Fprintln(out, result.Poll.Question)
		for i, opt := range result.Poll.Options {
			fmt.Fprintf(out, "  %d. %s\n", i+1, opt)
		}
	case result.PollError != "":
		fmt.Fprintln(out, result.PollError)
	default:
		fmt.Fprintln(out, result.Text)
	}
	return nil
}

func newArchiveCommand(deps *commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse archived minutes",
	}
	cmd.AddCommand(newArchiveListCommand(deps))
	return cmd
}

func newArchiveListCommand(deps *commandDeps) *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:     "list <conversation-id>",
		Short:   "List archived summaries and task lists, newest first",
		Aliases: []string{"ls"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			archive, closeFn, err := deps.OpenArchive(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer closeFn()

			entries, err := archive.ListByConversation(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("listing archive: %w", err)
			}
			return writeArchive(cmd.OutOrStdout(), output, entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of entries")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json, yaml")
	return cmd
}

func writeArchive(out io.Writer, format string, entries []model.ArchiveEntry) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case outputYAML:
		return yaml.NewEncoder(out).Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No archived minutes.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tLOCAL TIME\tPREVIEW")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Category, e.LocalTime, preview(e.Body))
	}
	return w.Flush()
}

func preview(body string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
	return logger.Truncate(line, 60)
}

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json, or yaml)", format)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
