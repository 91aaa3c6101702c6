package brain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"notulis.app/bot/common/llm"
)

const (
	MinPollOptions = 2
	MaxPollOptions = 5

	// DefaultNoTopicMessage is shown when the model signals "no votable topic"
	// without a message of its own.
	DefaultNoTopicMessage = "Tidak ada topik voting yang jelas ditemukan dalam diskusi."
)

// PollProposal is a validated poll ready to send.
type PollProposal struct {
	Question string   `json:"question" jsonschema:"minLength=1,description=The single question being debated"`
	Options  []string `json:"options" jsonschema:"minItems=2,maxItems=5,description=Answer options taken from the discussion"`
}

// PollResult holds exactly one of Proposal or ErrorMessage.
type PollResult struct {
	Proposal     *PollProposal
	ErrorMessage string
}

type pollEnvelope struct {
	Question string          `json:"question"`
	Options  []string        `json:"options"`
	Error    json.RawMessage `json:"error"`
}

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\\r?\\n?(.*?)\\r?\\n?```$")

// StripCodeFence removes one Markdown code fence wrapping the whole text.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractPoll interprets generated text as a poll proposal. Checks run in
// order: JSON syntax (ErrMalformedOutput), the error signal (returned as a
// user-facing message, not an error), then the poll shape (ErrSchemaViolation).
// Options that differ only in case or surrounding space count once, so
// ["Ya", "ya"] has a single distinct option and is rejected.
func ExtractPoll(raw string) (PollResult, error) {
	cleaned := StripCodeFence(raw)

	var env pollEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return PollResult{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if len(env.Error) > 0 && string(env.Error) != "null" {
		return PollResult{ErrorMessage: errorMessage(env.Error)}, nil
	}

	question := strings.TrimSpace(env.Question)
	if question == "" {
		return PollResult{}, fmt.Errorf("%w: empty question", ErrSchemaViolation)
	}

	options := make([]string, 0, len(env.Options))
	seen := make(map[string]struct{}, len(env.Options))
	for i, opt := range env.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return PollResult{}, fmt.Errorf("%w: option %d is empty", ErrSchemaViolation, i)
		}
		key := strings.ToLower(opt)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		options = append(options, opt)
	}
	if len(options) < MinPollOptions || len(options) > MaxPollOptions {
		return PollResult{}, fmt.Errorf("%w: need %d-%d distinct options, got %d",
			ErrSchemaViolation, MinPollOptions, MaxPollOptions, len(options))
	}

	return PollResult{Proposal: &PollProposal{Question: question, Options: options}}, nil
}

// errorMessage renders the error field for the user. Non-string values
// are shown as raw JSON; blank strings get the default message.
func errorMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = string(raw)
	}
	if msg = strings.TrimSpace(msg); msg == "" || msg == "true" {
		return DefaultNoTopicMessage
	}
	return msg
}

var (
	pollSchemaOnce sync.Once
	pollSchemaJSON string
)

// PollSchema is the JSON schema of PollProposal, embedded in voting prompts.
func PollSchema() string {
	pollSchemaOnce.Do(func() {
		raw, err := json.MarshalIndent(llm.GenerateSchema[PollProposal](), "", "  ")
		if err != nil {
			panic(fmt.Sprintf("marshal poll schema: %v", err))
		}
		pollSchemaJSON = string(raw)
	})
	return pollSchemaJSON
}
