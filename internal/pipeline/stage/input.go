package stage

import (
	"fmt"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// ErrInvalidInput reports a job whose context is missing fields the
// declared source_type requires.
type ErrInvalidInput struct {
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return "stage: invalid input: " + e.Reason
}

// Input validates that the context carries what its source_type requires
// before any other node runs. It writes no new context fields for the URL
// flow; for the local flow it copies local_input_path into the path key that
// local_input_type's graph reads first (subtitle_path, audio_path or
// video_path).
type Input struct{}

func NewInput(params map[string]any) (pipeline.Stage, error) {
	return &Input{}, nil
}

func (s *Input) Run(ctx *pipeline.Context, params map[string]any) error {
	sourceType, _ := ctx.Get(KeySourceType)
	switch sourceType {
	case "url":
		if url, ok := ctx.Get(KeySourceURL); !ok || url == "" {
			return &ErrInvalidInput{Reason: "source_url is required for source_type=url"}
		}
	case "local":
		path, ok := ctx.Get(KeyLocalInputPath)
		if !ok || path == "" {
			return &ErrInvalidInput{Reason: "local_input_path is required for source_type=local"}
		}
		inputType, ok := ctx.Get(KeyLocalInputType)
		if !ok {
			return &ErrInvalidInput{Reason: "local_input_type is required for source_type=local"}
		}
		switch inputType {
		case "subtitle":
			ctx.Set(KeySubtitlePath, path)
		case "audio":
			ctx.Set(KeyAudioPath, path)
		case "video":
			ctx.Set(KeyVideoPath, path)
		}
	default:
		return &ErrInvalidInput{Reason: fmt.Sprintf("unsupported source_type: %v", sourceType)}
	}
	return nil
}
