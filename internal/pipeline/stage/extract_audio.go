package stage

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// ExtractAudio converts video_path to a mono 16kHz WAV via ffmpeg, the
// format ASR engines in this codebase expect. Gated by the transcode
// category limiter since it is CPU-bound like transcoding.
type ExtractAudio struct {
	ffmpegPath string
	limiters   *Limiters
}

func NewExtractAudioFactory(ffmpegPath string, limiters *Limiters) pipeline.StageFactory {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return func(params map[string]any) (pipeline.Stage, error) {
		return &ExtractAudio{ffmpegPath: ffmpegPath, limiters: limiters}, nil
	}
}

func (s *ExtractAudio) Run(ctx *pipeline.Context, params map[string]any) error {
	videoVal, ok := ctx.Get(KeyVideoPath)
	videoPath, _ := videoVal.(string)
	if !ok || videoPath == "" {
		return fmt.Errorf("extract_audio: video_path is required")
	}

	background := context.Background()
	if s.limiters != nil {
		release, err := s.limiters.Transcode.Acquire(background, "extract_audio")
		if err != nil {
			return fmt.Errorf("extract_audio: %w", err)
		}
		defer release()
	}

	trackIndex := "0"
	if idx, ok := ctx.Get(KeyAudioTrackIndex); ok {
		if n, ok := idx.(int); ok {
			trackIndex = fmt.Sprintf("%d", n)
		}
	}

	dest := filepath.Join(ctx.WorkDir, "audio.wav")
	cmd := exec.CommandContext(background, s.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-map", fmt.Sprintf("0:a:%s", trackIndex),
		"-ac", "1",
		"-ar", "16000",
		"-vn",
		dest,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extract_audio: ffmpeg failed: %w", err)
	}

	ctx.Set(KeyAudioPath, dest)
	return nil
}
