package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/fathomlab/fathom/domain"
)

// MockGenerator is a scripted implementation of Generator for offline runs
// and testing.
type MockGenerator struct{}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Plan returns a fixed two-stage, three-section plan for any query.
func (m *MockGenerator) Plan(ctx context.Context, query string) (*domain.Plan, error) {
	return &domain.Plan{
		Stages: []domain.Stage{
			{
				Reasoning: "broad discovery on the original query",
				Tasks: []domain.TaskSpec{
					{Capability: "web.search", Query: query},
					{Capability: "news.search", Query: query + " latest"},
				},
			},
			{
				Reasoning: "deepen on what stage 0 surfaced",
				Tasks: []domain.TaskSpec{
					{Capability: "web.search", Query: "details on stage[0].result"},
				},
			},
		},
		Sections: []domain.SectionJob{
			{Index: 0, Title: "Overview", Brief: "High-level overview with a chart", RecordRefs: []int{0, 1, 2}},
			{Index: 1, Title: "Key findings", Brief: "Main findings in detail"},
			{Index: 2, Title: "Outlook", Brief: "Implications and open questions"},
		},
	}, nil
}

// Summarize concatenates record titles up to maxChars.
func (m *MockGenerator) Summarize(ctx context.Context, records []domain.Record, maxChars int) (string, error) {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(r.Title)
		if b.Len() >= maxChars {
			break
		}
	}
	s := b.String()
	if len(s) > maxChars {
		s = s[:maxChars]
	}
	return s, nil
}

// Produce emits scripted section text in small chunks. Section 0 embeds the
// chart marker mid-paragraph, split across two chunks to exercise reassembly.
func (m *MockGenerator) Produce(ctx context.Context, job domain.SectionJob, records []domain.Record, fn ChunkFunc) error {
	var chunks []string
	if job.Index == 0 {
		chunks = []string{
			fmt.Sprintf("## %s\n\nThe gathered evidence covers %d records. ", job.Title, len(records)),
			"The overall picture is summarized below.\n\n",
			"<<CH", "ART>>",
			" Confidence across sources is uneven but trends high. ",
			"Details follow in the next sections.\n",
		}
	} else {
		chunks = []string{
			fmt.Sprintf("## %s\n\n", job.Title),
			"This section expands on the brief: ",
			job.Brief,
			". Sources agree on the major points. ",
			"Remaining disagreements are noted inline.\n",
		}
	}

	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}
