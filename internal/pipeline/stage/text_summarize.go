package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/asr"
)

// Summarizer generates a summary from transcript text. Implementations wrap
// whichever LLM HTTP API is configured.
type Summarizer interface {
	Summarize(ctx context.Context, model, prompt, transcriptText string, maxTokens int) (string, error)
}

// TextSummarize calls the configured LLM to produce summary_text and writes
// the authoritative summary.json artifact — the bundle-publication commit.
// Fatal on LLM failure; a non-empty but sentinel response ("无法生成摘要" and
// similar) is still written, and is caught by the worker's post-run check
// rather than by this stage.
type TextSummarize struct {
	summarizer     Summarizer
	llmModel       string
	prompt         string
	maxTokens      int
	maxInputChars  int
	profileVersion string
}

// TextSummarizeConfig wires the LLM client and its tunables into the stage.
type TextSummarizeConfig struct {
	Summarizer     Summarizer
	Model          string
	Prompt         string
	MaxTokens      int
	MaxInputChars  int
	ProfileVersion string
}

func NewTextSummarizeFactory(cfg TextSummarizeConfig) pipeline.StageFactory {
	return func(params map[string]any) (pipeline.Stage, error) {
		return &TextSummarize{
			summarizer:     cfg.Summarizer,
			llmModel:       cfg.Model,
			prompt:         cfg.Prompt,
			maxTokens:      cfg.MaxTokens,
			maxInputChars:  cfg.MaxInputChars,
			profileVersion: cfg.ProfileVersion,
		}, nil
	}
}

// summaryArtifact mirrors the spec's summary.json schema: summary_text,
// model, input_chars, and profile_version, all required for the worker's
// post-run validation.
type summaryArtifact struct {
	SummaryText    string `json:"summary_text"`
	Model          string `json:"model"`
	InputChars     int    `json:"input_chars"`
	ProfileVersion string `json:"profile_version"`
}

func (s *TextSummarize) Run(ctx *pipeline.Context, params map[string]any) error {
	asrVal, _ := ctx.Get(KeyASRData)
	transcript, _ := asrVal.(asr.Transcript)

	var b strings.Builder
	for i, seg := range transcript.Segments {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(seg.Text)
	}
	text := b.String()
	if runes := []rune(text); s.maxInputChars > 0 && len(runes) > s.maxInputChars {
		text = string(runes[:s.maxInputChars])
	}

	summaryText, err := s.summarizer.Summarize(context.Background(), s.llmModel, s.prompt, text, s.maxTokens)
	if err != nil {
		return fmt.Errorf("text_summarize: llm failed: %w", err)
	}

	artifact := summaryArtifact{
		SummaryText:    summaryText,
		Model:          s.llmModel,
		InputChars:     len([]rune(text)),
		ProfileVersion: s.profileVersion,
	}
	if err := writeSummaryArtifact(ctx.WorkDir, artifact); err != nil {
		return fmt.Errorf("text_summarize: writing summary.json: %w", err)
	}

	ctx.Set(KeySummaryText, summaryText)
	return nil
}

// ReadSummaryArtifact loads summary.json from workDir and validates it
// against expectedProfileVersion, returning the summary text. This is the
// job worker's post-run publication gate: a run is only successful once
// its summary.json exists, parses, and passes Validate.
func ReadSummaryArtifact(workDir, expectedProfileVersion string) (string, error) {
	data, err := os.ReadFile(filepath.Join(workDir, "summary.json"))
	if err != nil {
		return "", fmt.Errorf("summary.json missing: %w", err)
	}

	var artifact summaryArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return "", fmt.Errorf("summary.json malformed: %w", err)
	}
	if err := artifact.Validate(expectedProfileVersion); err != nil {
		return "", err
	}
	return artifact.SummaryText, nil
}

func writeSummaryArtifact(workDir string, artifact summaryArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "summary.json"), data, 0o644)
}

// Validate checks that text matches the expected schema and is not empty
// or a known failure sentinel — used by ReadSummaryArtifact, the job
// worker's post-summarization validation gate.
func (a summaryArtifact) Validate(expectedProfileVersion string) error {
	if a.ProfileVersion != expectedProfileVersion {
		return fmt.Errorf("summary.json profile_version %q does not match %q", a.ProfileVersion, expectedProfileVersion)
	}
	text := a.SummaryText
	if !model.IsSummaryTextValid(&text) {
		return fmt.Errorf("summary.json summary_text is empty or a known failure sentinel")
	}
	return nil
}
