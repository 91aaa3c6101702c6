package brain

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingToReduce is returned when the pipeline gets zero messages.
	ErrNothingToReduce = errors.New("nothing to reduce")

	// ErrMalformedOutput means the generated text is not a JSON object.
	ErrMalformedOutput = errors.New("malformed generation output")

	// ErrSchemaViolation means the JSON parsed but is not a usable poll.
	ErrSchemaViolation = errors.New("poll schema violation")
)

const (
	StageChunk  = "chunk"
	StageReduce = "reduce"
	StageAsk    = "ask"
)

// GenerationError wraps a failed text generation call. Chunk is the
// 0-based chunk index for StageChunk and -1 otherwise.
type GenerationError struct {
	Task  string
	Stage string
	Chunk int
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Stage == StageChunk {
		return fmt.Sprintf("%s %s generation failed (chunk %d): %v", e.Task, e.Stage, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s %s generation failed: %v", e.Task, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationFailure reports whether err came from the text backend.
func IsGenerationFailure(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
