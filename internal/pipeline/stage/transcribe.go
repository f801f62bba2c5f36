package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/asr"
)

// Transcribe runs an ASR engine over audio_path and writes the canonical
// asr.json artifact to bundle_dir. Fatal on engine failure — there is no
// summarizable content without a transcript.
type Transcribe struct {
	engine          asr.Engine
	merger          *asr.ChunkMerger
	limiters        *Limiters
	chunkDurationMS int64
	overlapMS       int64
}

// TranscribeConfig wires a concrete ASR engine implementation into the stage.
type TranscribeConfig struct {
	Engine          asr.Engine
	Limiters        *Limiters
	ChunkDurationMS int64
	OverlapMS       int64
}

func NewTranscribeFactory(cfg TranscribeConfig) pipeline.StageFactory {
	overlap := cfg.OverlapMS
	if overlap <= 0 {
		overlap = 10000
	}
	return func(params map[string]any) (pipeline.Stage, error) {
		return &Transcribe{
			engine:          cfg.Engine,
			merger:          asr.NewChunkMerger(),
			limiters:        cfg.Limiters,
			chunkDurationMS: cfg.ChunkDurationMS,
			overlapMS:       overlap,
		}, nil
	}
}

type transcribedASRArtifact struct {
	Segments []asr.Segment `json:"segments"`
}

func (s *Transcribe) Run(ctx *pipeline.Context, params map[string]any) error {
	audioVal, ok := ctx.Get(KeyAudioPath)
	audioPath, _ := audioVal.(string)
	if !ok || audioPath == "" {
		return fmt.Errorf("transcribe: audio_path is required")
	}

	background := context.Background()
	if s.limiters != nil {
		release, err := s.limiters.Transcribe.Acquire(background, "transcribe")
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		defer release()
	}

	transcript, err := asr.TranscribeLong(background, s.engine, s.merger, audioPath, s.chunkDurationMS, s.overlapMS)
	if err != nil {
		return fmt.Errorf("transcribe: engine failed: %w", err)
	}

	if err := writeASRArtifact(ctx.WorkDir, transcript); err != nil {
		return fmt.Errorf("transcribe: writing asr.json: %w", err)
	}

	tokenCount := 0
	for _, seg := range transcript.Segments {
		tokenCount += len(strings.Fields(seg.Text))
	}

	ctx.Set(KeyASRData, transcript)
	ctx.Set(KeyTranscriptTokenCount, tokenCount)
	ctx.Set(KeyTranscriptSegmentCount, len(transcript.Segments))
	return nil
}

func writeASRArtifact(workDir string, transcript asr.Transcript) error {
	data, err := json.MarshalIndent(transcribedASRArtifact{Segments: transcript.Segments}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "asr.json"), data, 0o644)
}
