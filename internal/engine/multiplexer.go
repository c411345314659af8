package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/chart"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/registry"
)

// apologyText replaces the output of a section whose generator failed. The
// failure stays contained to that section.
const apologyText = "\n_This section could not be generated. The rest of the report is unaffected._\n"

// chartPlaceholder reserves the stream slot where the chart artifact lands.
const chartPlaceholder = "\n\n[chart]\n\n"

// chartDegradedText stands in for a chart whose construction failed.
const chartDegradedText = "\n\n_(chart unavailable)_\n\n"

// sectionSeparator is appended between sections in the delivered stream.
const sectionSeparator = "\n\n"

// sectionMsg is one message on a section's queue: a text chunk or the
// producer's terminal error. Queue close is the completion sentinel.
type sectionMsg struct {
	text string
	err  error
}

// Multiplexer runs every section's producer concurrently but drains their
// output strictly in section declaration order, so a slow early section
// never lets a fast later one leak ahead.
type Multiplexer struct {
	gen       generator.Generator
	charts    chart.Builder
	reg       *registry.Registry
	queueSize int
	threshold int
}

// NewMultiplexer creates a multiplexer. queueSize bounds each section's
// queue; a producer that outruns the consumer blocks on the full queue.
func NewMultiplexer(gen generator.Generator, charts chart.Builder, reg *registry.Registry, queueSize, threshold int) *Multiplexer {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Multiplexer{gen: gen, charts: charts, reg: reg, queueSize: queueSize, threshold: threshold}
}

// Run produces all sections concurrently and emits content and chart events
// in declaration order. records is a read-only snapshot: producers never
// observe later appends. Returns ErrAborted if the abort flag was observed
// at a section boundary.
func (m *Multiplexer) Run(ctx context.Context, run *domain.Run, jobs []domain.SectionJob, records []domain.Record, emitter EventEmitter) error {
	queues := make([]chan sectionMsg, len(jobs))
	for j, job := range jobs {
		queues[j] = make(chan sectionMsg, m.queueSize)
		go m.produce(ctx, job, citableRecords(records, job), queues[j])
	}

	for j, job := range jobs {
		if m.reg.IsAbortRequested(run.RunID) {
			return ErrAborted
		}
		if ctx.Err() != nil {
			return ErrAborted
		}
		m.consumeSection(ctx, j, job, citableRecords(records, job), queues[j], emitter)
	}

	return nil
}

// produce pulls chunks from the generator into the section's queue and
// terminates the queue with close. A generator error becomes the queue's
// final message.
func (m *Multiplexer) produce(ctx context.Context, job domain.SectionJob, records []domain.Record, queue chan<- sectionMsg) {
	defer close(queue)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("section producer panicked: %v", r)
			}
		}()
		return m.gen.Produce(ctx, job, records, func(text string) error {
			select {
			case queue <- sectionMsg{text: text}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	if err != nil && ctx.Err() == nil {
		select {
		case queue <- sectionMsg{err: err}:
		case <-ctx.Done():
		}
	}
}

// consumeSection drains one section's queue to the event stream, running
// chunk reassembly and marker-triggered chart construction. Section failures
// never propagate: the worst outcome is apologetic or degraded text.
func (m *Multiplexer) consumeSection(ctx context.Context, index int, job domain.SectionJob, records []domain.Record, queue <-chan sectionMsg, emitter EventEmitter) {
	asm := newChunkAssembler(domain.ChartMarker, m.threshold)
	var textSoFar string

	flush := func(text string) {
		if text == "" {
			return
		}
		textSoFar += text
		emitter.Emit(ctx, domain.EventTypeContent, domain.ContentPayload{Section: index, Text: text})
	}

	for msg := range queue {
		if msg.err != nil {
			log.Printf("ERROR: section %d generator failed: %v", index, msg.err)
			if rest, ok := asm.Finish(); ok {
				flush(rest)
			}
			flush(apologyText)
			continue
		}

		for _, seg := range asm.Feed(msg.text) {
			if !seg.Marker {
				flush(seg.Text)
				continue
			}

			// The marker slot gets a placeholder chunk, then the artifact,
			// built synchronously so it lands exactly here in the stream.
			flush(chartPlaceholder)
			artifact, err := m.charts.Build(records, textSoFar)
			if err != nil {
				log.Printf("WARN: chart construction for section %d failed: %v", index, err)
				flush(chartDegradedText)
				continue
			}
			emitter.Emit(ctx, domain.EventTypeChart, domain.ChartPayload{Section: index, Chart: *artifact})
		}
	}

	if rest, ok := asm.Finish(); ok {
		flush(rest)
	}
	flush(sectionSeparator)
}

// citableRecords resolves a job's citable subset. A job that declares no
// references may cite the whole snapshot.
func citableRecords(records []domain.Record, job domain.SectionJob) []domain.Record {
	if len(job.RecordRefs) == 0 {
		return records
	}
	subset := make([]domain.Record, 0, len(job.RecordRefs))
	for _, ref := range job.RecordRefs {
		if ref < 0 || ref >= len(records) {
			log.Printf("WARN: section %d cites unknown record %d", job.Index, ref)
			continue
		}
		subset = append(subset, records[ref])
	}
	return subset
}
