package stage

import (
	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/asr"
)

// ValidateSubtitle scores a parsed subtitle against the video's duration to
// decide whether it is usable in place of transcription. Never fatal:
// absence or low coverage simply routes the job to the download/transcribe
// fallback.
type ValidateSubtitle struct {
	thresholds Thresholds
}

func NewValidateSubtitleFactory(thresholds Thresholds) pipeline.StageFactory {
	return func(params map[string]any) (pipeline.Stage, error) {
		return &ValidateSubtitle{thresholds: thresholds}, nil
	}
}

func (s *ValidateSubtitle) Run(ctx *pipeline.Context, params map[string]any) error {
	asrVal, _ := ctx.Get(KeyASRData)
	transcript, ok := asrVal.(asr.Transcript)
	if !ok || len(transcript.Segments) == 0 {
		ctx.Set(KeySubtitleValid, false)
		ctx.Set(KeySubtitleCoverage, 0.0)
		ctx.Set(KeySubtitleDensity, 0.0)
		return nil
	}

	durationVal, _ := ctx.Get(KeyVideoDuration)
	durationSec, _ := durationVal.(float64)

	coveredMS := int64(0)
	charCount := 0
	for _, seg := range transcript.Segments {
		if seg.EndTimeMS > seg.StartTimeMS {
			coveredMS += seg.EndTimeMS - seg.StartTimeMS
		}
		charCount += len([]rune(seg.Text))
	}

	var coverage float64
	if durationSec > 0 {
		coverage = (float64(coveredMS) / 1000.0) / durationSec
	}

	var density float64
	if durationSec > 0 {
		density = float64(charCount) / durationSec
	}

	valid := coverage >= s.thresholds.SubtitleCoverageMin
	ctx.Set(KeySubtitleValid, valid)
	ctx.Set(KeySubtitleCoverage, coverage)
	ctx.Set(KeySubtitleDensity, density)
	return nil
}
