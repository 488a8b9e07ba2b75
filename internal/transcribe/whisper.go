package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperProvider implements Provider using OpenAI's Whisper API. Unlike
// AssemblyAI the transcription call is synchronous, so there is no job to
// poll.
type WhisperProvider struct {
	client *openai.Client
	model  string
}

// WhisperOption configures the Whisper provider.
type WhisperOption func(*openai.ClientConfig)

// WithWhisperBaseURL sets a custom API base URL (for testing or proxies).
func WithWhisperBaseURL(url string) WhisperOption {
	return func(cfg *openai.ClientConfig) {
		cfg.BaseURL = url
	}
}

// NewWhisper creates an OpenAI Whisper transcription provider
func NewWhisper(apiKey string, opts ...WhisperOption) *WhisperProvider {
	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &WhisperProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.Whisper1,
	}
}

// Name returns the provider name
func (p *WhisperProvider) Name() string {
	return "whisper"
}

// CheckCredential probes the models endpoint. Only an explicit 401 marks
// the key invalid; any other failure is logged and treated as valid.
func (p *WhisperProvider) CheckCredential(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	if err == nil {
		return true
	}

	if isUnauthorized(err) {
		return false
	}
	log.Printf("[Whisper] Credential probe failed ambiguously, treating key as valid: %v", err)
	return true
}

// isUnauthorized reports whether the OpenAI client error was an explicit 401.
func isUnauthorized(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized {
		return true
	}
	return false
}

// Transcribe sends the audio to the Whisper API and returns the transcript.
func (p *WhisperProvider) Transcribe(ctx context.Context, audio io.Reader) (*Result, error) {
	if !p.CheckCredential(ctx) {
		return nil, fmt.Errorf("credential rejected by provider: %w", ErrInvalidCredential)
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		Reader:   audio,
		FilePath: "audio.mp3",
	})
	if err != nil {
		if isUnauthorized(err) {
			return nil, fmt.Errorf("credential rejected by provider: %w", ErrInvalidCredential)
		}
		log.Printf("[Whisper] Transcription request failed: %v", err)
		return nil, fmt.Errorf("whisper transcription failed: %v: %w", err, ErrTranscriptionFailed)
	}

	return &Result{
		Transcript: resp.Text,
		Provider:   p.Name(),
	}, nil
}
