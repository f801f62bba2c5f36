package stage

import (
	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// DetectSilence flags a transcription that produced too little text for the
// video's duration — usually a silent, music-only, or non-speech clip.
// Never fatal: it only sets is_silent and tokens_per_minute in the context;
// neither the job DAGs' edge conditions nor the job worker read them.
type DetectSilence struct {
	thresholds Thresholds
}

func NewDetectSilenceFactory(thresholds Thresholds) pipeline.StageFactory {
	return func(params map[string]any) (pipeline.Stage, error) {
		return &DetectSilence{thresholds: thresholds}, nil
	}
}

func (s *DetectSilence) Run(ctx *pipeline.Context, params map[string]any) error {
	tokenVal, _ := ctx.Get(KeyTranscriptTokenCount)
	tokenCount, _ := tokenVal.(int)

	durationVal, _ := ctx.Get(KeyVideoDuration)
	durationSec, _ := durationVal.(float64)
	durationMin := durationSec / 60.0

	var tokensPerMinute float64
	if durationMin > 0 {
		tokensPerMinute = float64(tokenCount) / durationMin
	}

	isSilent := durationMin > 0 && tokensPerMinute < s.thresholds.TranscriptTokenPerMin

	ctx.Set(KeyTokensPerMinute, tokensPerMinute)
	ctx.Set(KeyIsSilent, isSilent)
	// audio_rms requires decoding PCM samples, which ExtractAudio's ffmpeg
	// invocation does not expose, so audio_rms is left unset rather than
	// faked.
	return nil
}
