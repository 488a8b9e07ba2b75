package transcribe

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// CreateProvider creates a transcription provider for the given API key,
// selected by environment configuration. The key comes from the caller,
// per request; nothing here persists it.
func CreateProvider(apiKey string) (Provider, error) {
	providerName := strings.ToLower(os.Getenv("SPEECHSCAN_PROVIDER"))

	// Default to AssemblyAI if not specified
	if providerName == "" {
		providerName = "assemblyai"
	}

	if apiKey == "" {
		return nil, fmt.Errorf("no API key supplied for provider %s", providerName)
	}

	switch providerName {
	case "assemblyai":
		return createAssemblyAIProvider(apiKey), nil
	case "whisper":
		return createWhisperProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s. Supported: assemblyai, whisper", providerName)
	}
}

// createAssemblyAIProvider creates an AssemblyAI provider, honoring
// optional base URL and poll deadline overrides from the environment.
func createAssemblyAIProvider(apiKey string) Provider {
	opts := []AssemblyAIOption{}

	if base := os.Getenv("ASSEMBLYAI_BASE_URL"); base != "" {
		log.Printf("[STT Factory] Using custom AssemblyAI base URL: %s", base)
		opts = append(opts, WithBaseURL(base))
	}

	if raw := os.Getenv("SPEECHSCAN_POLL_TIMEOUT"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 1 {
			log.Printf("[STT Factory] Ignoring invalid SPEECHSCAN_POLL_TIMEOUT=%q", raw)
		} else {
			opts = append(opts, WithPollDeadline(time.Duration(seconds)*time.Second))
		}
	}

	return NewAssemblyAI(apiKey, opts...)
}

// createWhisperProvider creates an OpenAI Whisper provider
func createWhisperProvider(apiKey string) Provider {
	opts := []WhisperOption{}

	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		log.Printf("[STT Factory] Using custom OpenAI base URL: %s", base)
		opts = append(opts, WithWhisperBaseURL(base))
	}

	return NewWhisper(apiKey, opts...)
}
