package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port          string
	Provider      string
	DefaultAPIKey string
	UploadDir     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		Provider:  getEnv("SPEECHSCAN_PROVIDER", "assemblyai"),
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
	}

	// The API key is normally supplied per request by the client; the
	// environment only provides an optional default.
	switch cfg.Provider {
	case "assemblyai":
		cfg.DefaultAPIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	case "whisper":
		cfg.DefaultAPIKey = os.Getenv("OPENAI_API_KEY")
	default:
		return nil, fmt.Errorf("unsupported SPEECHSCAN_PROVIDER %q (supported: assemblyai, whisper)", cfg.Provider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
