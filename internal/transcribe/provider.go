package transcribe

import (
	"context"
	"io"
)

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// CheckCredential probes the provider with the configured API key.
	// It returns false only when the provider explicitly rejects the
	// key; transient failures count as valid so a later step can still
	// fail and be classified on its own.
	CheckCredential(ctx context.Context) bool

	// Transcribe reads the audio stream, drives the provider's protocol
	// to completion and returns the result. Any error it returns wraps
	// ErrInvalidCredential, ErrTranscriptionFailed or ErrTimeout.
	Transcribe(ctx context.Context, audio io.Reader) (*Result, error)

	// Name returns the name of the provider (e.g., "assemblyai", "whisper")
	Name() string
}
