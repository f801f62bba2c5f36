package jobqueue

import (
	"fmt"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/stage"
)

// ErrUnsupportedLocalInputType reports a local job whose local_input_type
// has no matching DAG.
type ErrUnsupportedLocalInputType struct {
	Type string
}

func (e *ErrUnsupportedLocalInputType) Error() string {
	return "jobqueue: unsupported local_input_type: " + e.Type
}

// BuildGraph constructs the DAG for a job's source, per the dispatch rules:
// URL sources try the subtitle track first and fall back to
// download+transcribe only if the subtitle doesn't cover the video well
// enough; local sources are dispatched directly on their declared media
// kind.
func BuildGraph(job Job) (*pipeline.Graph, error) {
	switch job.SourceType {
	case "url":
		return pipeline.NewGraph(urlGraphConfig())
	case "local":
		switch job.LocalInputType {
		case "subtitle":
			return pipeline.NewGraph(localSubtitleGraphConfig())
		case "audio":
			return pipeline.NewGraph(localAudioGraphConfig())
		case "video":
			return pipeline.NewGraph(localVideoGraphConfig())
		default:
			return nil, &ErrUnsupportedLocalInputType{Type: job.LocalInputType}
		}
	default:
		return nil, fmt.Errorf("jobqueue: unsupported source_type: %s", job.SourceType)
	}
}

// urlGraphConfig realizes spec's URL flow: fetch_metadata runs in parallel
// with the subtitle branch; once both and validate_subtitle have settled,
// a valid subtitle routes straight to text_summarize, otherwise the job
// falls back to downloading and transcribing the video.
func urlGraphConfig() pipeline.GraphConfig {
	return pipeline.GraphConfig{
		Entrypoint: "input",
		Nodes: []pipeline.NodeConfig{
			{ID: "input", Type: stage.TypeInput},
			{ID: "fetch_metadata", Type: stage.TypeFetchMetadata},
			{ID: "download_subtitle", Type: stage.TypeDownloadSubtitle},
			{ID: "parse_subtitle", Type: stage.TypeParseSubtitle},
			{ID: "validate_subtitle", Type: stage.TypeValidateSubtitle},
			{ID: "download_video", Type: stage.TypeDownloadVideo},
			{ID: "extract_audio", Type: stage.TypeExtractAudio},
			{ID: "transcribe", Type: stage.TypeTranscribe},
			{ID: "detect_silence", Type: stage.TypeDetectSilence},
			{ID: "text_summarize", Type: stage.TypeTextSummarize},
		},
		Edges: []pipeline.EdgeConfig{
			{Source: "input", Target: "fetch_metadata"},
			{Source: "input", Target: "download_subtitle"},
			{Source: "download_subtitle", Target: "parse_subtitle"},
			{Source: "parse_subtitle", Target: "validate_subtitle"},
			{Source: "fetch_metadata", Target: "validate_subtitle"},

			{Source: "validate_subtitle", Target: "text_summarize", Condition: "subtitle_valid"},

			{Source: "validate_subtitle", Target: "download_video", Condition: "not subtitle_valid"},
			{Source: "download_video", Target: "extract_audio"},
			{Source: "extract_audio", Target: "transcribe"},
			{Source: "transcribe", Target: "detect_silence"},
			{Source: "detect_silence", Target: "text_summarize"},
		},
	}
}

// localSubtitleGraphConfig parses and validates an uploaded subtitle file.
// text_summarize only runs when the subtitle is valid — an invalid local
// subtitle has no transcription fallback and the job worker reports it as
// a terminal failure once it observes summary_text was never produced.
func localSubtitleGraphConfig() pipeline.GraphConfig {
	return pipeline.GraphConfig{
		Entrypoint: "input",
		Nodes: []pipeline.NodeConfig{
			{ID: "input", Type: stage.TypeInput},
			{ID: "parse_subtitle", Type: stage.TypeParseSubtitle},
			{ID: "validate_subtitle", Type: stage.TypeValidateSubtitle},
			{ID: "text_summarize", Type: stage.TypeTextSummarize},
		},
		Edges: []pipeline.EdgeConfig{
			{Source: "input", Target: "parse_subtitle"},
			{Source: "parse_subtitle", Target: "validate_subtitle"},
			{Source: "validate_subtitle", Target: "text_summarize", Condition: "subtitle_valid"},
		},
	}
}

func localAudioGraphConfig() pipeline.GraphConfig {
	return pipeline.GraphConfig{
		Entrypoint: "input",
		Nodes: []pipeline.NodeConfig{
			{ID: "input", Type: stage.TypeInput},
			{ID: "transcribe", Type: stage.TypeTranscribe},
			{ID: "detect_silence", Type: stage.TypeDetectSilence},
			{ID: "text_summarize", Type: stage.TypeTextSummarize},
		},
		Edges: []pipeline.EdgeConfig{
			{Source: "input", Target: "transcribe"},
			{Source: "transcribe", Target: "detect_silence"},
			{Source: "detect_silence", Target: "text_summarize"},
		},
	}
}

func localVideoGraphConfig() pipeline.GraphConfig {
	return pipeline.GraphConfig{
		Entrypoint: "input",
		Nodes: []pipeline.NodeConfig{
			{ID: "input", Type: stage.TypeInput},
			{ID: "fetch_metadata", Type: stage.TypeFetchMetadata},
			{ID: "extract_audio", Type: stage.TypeExtractAudio},
			{ID: "transcribe", Type: stage.TypeTranscribe},
			{ID: "detect_silence", Type: stage.TypeDetectSilence},
			{ID: "text_summarize", Type: stage.TypeTextSummarize},
		},
		Edges: []pipeline.EdgeConfig{
			{Source: "input", Target: "fetch_metadata"},
			{Source: "input", Target: "extract_audio"},
			{Source: "extract_audio", Target: "transcribe"},
			{Source: "transcribe", Target: "detect_silence"},
			{Source: "detect_silence", Target: "text_summarize"},
		},
	}
}
