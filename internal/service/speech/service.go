// Package speech wraps the transcription API: one finite audio clip in,
// plain text out.
package speech

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
)

const defaultTimeout = 30 * time.Second

// Config carries transcription credentials and model selection.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service is the transcription adapter.
type Service struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewService builds the adapter. An empty model defaults to whisper-1.
func NewService(cfg Config) *Service {
	// Failures are surfaced to the user immediately, never retried.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Service{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

// Transcribe submits the audio clip and returns the recognized text.
// Empty results are returned as-is; deciding what "no input" means is the
// caller's concern.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	const op = "speech.transcribe"

	if len(audio) == 0 {
		return "", fault.New(fault.Remote, op, "no audio data supplied")
	}
	if filename == "" {
		filename = "clip.wav"
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(s.model),
		File:  openai.File(bytes.NewReader(audio), filename, contentTypeFor(filename)),
	})
	if err != nil {
		return "", classify(op, err)
	}

	return result.Text, nil
}

// contentTypeFor guesses the upload content type from the clip extension.
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

// classify maps SDK errors onto the shared taxonomy.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fault.FromStatus(op, apiErr.StatusCode, "")
	}
	return fault.Wrap(fault.Remote, op, err)
}
