// Package asrengine implements pipeline/asr.Engine against a local
// whisper.cpp-style CLI binary, invoked as a subprocess per audio file.
package asrengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vidsum-dev/vidsum/internal/pipeline/asr"
)

// Config configures the whisper-cli subprocess invocation.
type Config struct {
	// BinaryPath is the path to the whisper CLI binary. Defaults to
	// "whisper-cli" (assumed to be on PATH).
	BinaryPath string

	// ModelPath is passed as the CLI's -m flag; required, since the binary
	// has no usable default model baked in.
	ModelPath string

	// Language is passed as -l; empty means auto-detect.
	Language string

	// Timeout is not read by NewWhisperEngine; an invocation is bounded
	// only by the ctx passed to Transcribe.
	Timeout string
}

// WhisperEngine runs a whisper.cpp-compatible binary over an audio file and
// parses its JSON segment output into an asr.Transcript.
type WhisperEngine struct {
	binaryPath string
	modelPath  string
	language   string
}

var _ asr.Engine = (*WhisperEngine)(nil)

func NewWhisperEngine(cfg Config) *WhisperEngine {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		binaryPath = "whisper-cli"
	}
	return &WhisperEngine{
		binaryPath: binaryPath,
		modelPath:  cfg.ModelPath,
		language:   cfg.Language,
	}
}

// whisperJSONOutput mirrors whisper.cpp's -oj output shape, trimmed to the
// fields this engine needs.
type whisperJSONOutput struct {
	Transcription []struct {
		Text    string `json:"text"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
	} `json:"transcription"`
}

// Transcribe runs the configured binary against audioPath and parses its
// JSON output into a Transcript. The binary is expected to write
// <audioPath>.json alongside the input when invoked with -oj.
func (e *WhisperEngine) Transcribe(ctx context.Context, audioPath string) (asr.Transcript, error) {
	args := []string{"-m", e.modelPath, "-f", audioPath, "-oj", "-of", audioPath}
	if e.language != "" {
		args = append(args, "-l", e.language)
	}

	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return asr.Transcript{}, fmt.Errorf("asrengine: transcription cancelled: %w", ctx.Err())
		}
		return asr.Transcript{}, fmt.Errorf("asrengine: whisper execution failed: %w", err)
	}

	outputPath := audioPath + ".json"
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return asr.Transcript{}, fmt.Errorf("asrengine: reading output %s: %w", filepath.Base(outputPath), err)
	}

	var parsed whisperJSONOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return asr.Transcript{}, fmt.Errorf("asrengine: parsing whisper output: %w", err)
	}

	segments := make([]asr.Segment, 0, len(parsed.Transcription))
	for _, t := range parsed.Transcription {
		segments = append(segments, asr.Segment{
			Text:        t.Text,
			StartTimeMS: t.Offsets.From,
			EndTimeMS:   t.Offsets.To,
		})
	}

	return asr.Transcript{Segments: segments}, nil
}
