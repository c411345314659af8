package search

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fathomlab/fathom/domain"
)

// MockProvider returns scripted records for offline runs and testing.
type MockProvider struct{}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Fetch returns two scripted records derived from the task query.
func (m *MockProvider) Fetch(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return []domain.Record{
		{
			Title:      fmt.Sprintf("Result A for %q", task.Query),
			Body:       "Scripted evidence body.",
			Source:     task.Capability,
			Confidence: 0.9,
			URL:        "https://example.com/a",
		},
		{
			Title:      fmt.Sprintf("Result B for %q", task.Query),
			Body:       "Second scripted evidence body.",
			Source:     task.Capability,
			Confidence: 0.7,
			URL:        "https://example.com/b",
		},
	}, nil
}

// NewProvider creates a provider based on the FATHOM_MODE environment
// variable, mirroring the generator factory.
func NewProvider(baseURL string, timeout time.Duration) Provider {
	if os.Getenv("FATHOM_MODE") == "MOCK" {
		log.Println("FATHOM_MODE=MOCK detected, using mock search provider")
		return NewMockProvider()
	}
	return NewClient(baseURL, timeout)
}
