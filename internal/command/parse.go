package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	Help         = "help"
	Register     = "register"
	StartMeeting = "mulairapat"
	StartFromRef = "mulaidarisini"
	CancelMeet   = "batalrapat"
	Summarize    = "rangkum"
	Tasks        = "tugas"
	Voting       = "voting"
	Ask          = "tanya"
	DebugHistory = "debug_history"
	TestPoll     = "testpoll"
)

const (
	MaxSummarizeCount = 100
	MaxTasksCount     = 100
	MaxVotingCount    = 50
	MaxDebugCount     = 50
)

var known = map[string]struct{}{
	Help: {}, Register: {}, StartMeeting: {}, StartFromRef: {}, CancelMeet: {},
	Summarize: {}, Tasks: {}, Voting: {}, Ask: {}, DebugHistory: {}, TestPoll: {},
}

// Invocation is a parsed "!name argument" message. Name is lower-cased
// without the bang; Arg is the trimmed remainder.
type Invocation struct {
	Name string
	Arg  string
}

// Parse recognizes a known command at the start of body.
func Parse(body string) (Invocation, bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "!") {
		return Invocation{}, false
	}
	body = body[1:]

	name, arg := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		name, arg = body[:i], strings.TrimSpace(body[i:])
	}
	name = strings.ToLower(name)
	if _, ok := known[name]; !ok {
		return Invocation{}, false
	}
	return Invocation{Name: name, Arg: arg}, true
}

// IsCommand reports whether body would be dispatched to a handler.
func IsCommand(body string) bool {
	_, ok := Parse(body)
	return ok
}

// InputValidationError carries the literal usage reply for a bad argument.
type InputValidationError struct {
	Command string
	Usage   string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.Command, e.Usage)
}

// parseCount accepts only a plain integer in (0, max]. Out-of-range
// values are rejected, never clamped.
func parseCount(command, arg string, max int, usage string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n <= 0 || n > max {
		return 0, &InputValidationError{Command: command, Usage: usage}
	}
	return n, nil
}
