package transcribe

import "errors"

// Classification of everything that can go wrong past the provider
// boundary. No raw transport or JSON error escapes a Provider: whatever
// happens is wrapped in one of these sentinels.
var (
	// ErrInvalidCredential means the provider explicitly rejected the
	// API key. Never retried.
	ErrInvalidCredential = errors.New("invalid api credential")

	// ErrTranscriptionFailed covers every other failure: network error,
	// malformed response, provider-reported processing error.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrTimeout means the polling deadline expired before the job
	// reached a terminal state.
	ErrTimeout = errors.New("transcription timed out")
)

// Legacy error tags kept for callers that still match on the strings the
// original client returned in-band.
const (
	TagInvalidKey         = "invalid api key"
	TagTranscriptionError = "file transcription error"
)

// Classify collapses any pipeline error to the coarse two-way taxonomy:
// ErrInvalidCredential stays as is, everything else (timeouts included)
// becomes ErrTranscriptionFailed.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidCredential) {
		return ErrInvalidCredential
	}
	return ErrTranscriptionFailed
}

// ErrorTag returns the legacy sentinel string for a classified error.
func ErrorTag(err error) string {
	if errors.Is(err, ErrInvalidCredential) {
		return TagInvalidKey
	}
	return TagTranscriptionError
}
