// Package chart constructs derived artifacts requested in-band by section
// generators. Construction is synchronous: the multiplexer blocks on Build so
// the artifact lands at the exact stream position of its marker.
package chart

import (
	"fmt"
	"strings"

	"github.com/fathomlab/fathom/domain"
)

// Builder constructs a chart artifact from a section's citable records and
// the text produced so far in that section.
type Builder interface {
	Build(records []domain.Record, sectionText string) (*domain.Artifact, error)
}

// ConfidenceChartBuilder derives a bar chart of record confidence by source.
type ConfidenceChartBuilder struct{}

// NewBuilder creates the default chart builder.
func NewBuilder() *ConfidenceChartBuilder {
	return &ConfidenceChartBuilder{}
}

var _ Builder = (*ConfidenceChartBuilder)(nil)

// Build aggregates record confidence per source into a labeled series.
func (b *ConfidenceChartBuilder) Build(records []domain.Record, sectionText string) (*domain.Artifact, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to chart")
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		src := r.Source
		if src == "" {
			src = "unknown"
		}
		if _, seen := sums[src]; !seen {
			order = append(order, src)
		}
		sums[src] += r.Confidence
		counts[src]++
	}

	art := &domain.Artifact{
		Kind:  "bar",
		Title: chartTitle(sectionText),
	}
	for _, src := range order {
		art.Labels = append(art.Labels, src)
		art.Values = append(art.Values, sums[src]/float64(counts[src]))
	}
	return art, nil
}

// chartTitle derives a title from the first heading or sentence of the
// section text produced so far.
func chartTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			if len(line) > 80 {
				line = line[:80]
			}
			return line
		}
	}
	return "Source confidence"
}
