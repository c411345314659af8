package generator

import (
	"log"
	"os"
	"time"
)

const (
	// EnvFathomMode is the environment variable name for mode selection.
	EnvFathomMode = "FATHOM_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewGenerator creates a generator based on the FATHOM_MODE environment
// variable. If FATHOM_MODE=MOCK, returns a MockGenerator; otherwise returns
// an HTTP client with an optional fallback chain.
func NewGenerator(baseURL, fallbackURL, apiKey string, timeout time.Duration) Generator {
	if os.Getenv(EnvFathomMode) == ModeMock {
		log.Println("FATHOM_MODE=MOCK detected, using mock generator")
		return NewMockGenerator()
	}

	primary := NewClient(baseURL, apiKey, timeout)
	if fallbackURL == "" {
		return primary
	}
	return NewFallbackGenerator(primary, NewClient(fallbackURL, apiKey, timeout))
}
