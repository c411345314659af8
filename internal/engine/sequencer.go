package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/registry"
)

// ErrAborted is returned when a cooperative abort was observed at a stage or
// section boundary. It is not an error condition: the caller terminates the
// run cleanly with an aborted status.
var ErrAborted = errors.New("run aborted")

// Sequencer runs the ordered stages of a plan. Stages are strictly
// sequential; the tasks inside one stage are the only intra-plan parallelism.
type Sequencer struct {
	dispatcher *Dispatcher
	gen        generator.Generator
	reg        *registry.Registry
	summaryMax int
}

// NewSequencer creates a sequencer.
func NewSequencer(dispatcher *Dispatcher, gen generator.Generator, reg *registry.Registry, summaryMax int) *Sequencer {
	return &Sequencer{dispatcher: dispatcher, gen: gen, reg: reg, summaryMax: summaryMax}
}

// Run executes every stage in order and returns the accumulated records.
// Task errors are surfaced as status events and skipped; a stage whose tasks
// all fail contributes zero records and the sequence continues. Returns
// ErrAborted if the run's abort flag was set at a stage boundary.
func (s *Sequencer) Run(ctx context.Context, run *domain.Run, stages []domain.Stage, emitter EventEmitter) ([]domain.Record, error) {
	var accumulated []domain.Record
	stageRecords := make(map[int][]domain.Record)

	for i, stage := range stages {
		if s.reg.IsAbortRequested(run.RunID) {
			return accumulated, ErrAborted
		}
		if ctx.Err() != nil {
			return accumulated, ErrAborted
		}

		if len(stage.Tasks) == 0 {
			log.Printf("INFO: run %s stage %d has no tasks, skipping", run.RunID, i)
			emitter.Emit(ctx, domain.EventTypeStatus, domain.StatusPayload{
				Phase: "stage_skipped", Stage: i, Message: "stage declared no tasks",
			})
			continue
		}

		s.reg.SetStage(ctx, run.RunID, i)
		emitter.Emit(ctx, domain.EventTypeStatus, domain.StatusPayload{
			Phase: "stage_started", Stage: i, Message: stage.Reasoning,
		})

		tasks := s.resolveTasks(ctx, stage.Tasks, stageRecords)

		// All of the stage's tasks run as one batch; the stream drains fully
		// before the next stage starts.
		outcomes := make([]TaskOutcome, 0, len(tasks))
		for outcome := range s.dispatcher.RunBatch(ctx, tasks) {
			if outcome.Err != nil {
				log.Printf("WARN: run %s stage %d task %d failed: %v", run.RunID, i, outcome.Index, outcome.Err)
				emitter.Emit(ctx, domain.EventTypeStatus, domain.StatusPayload{
					Phase: "task_failed", Stage: i,
					Message: fmt.Sprintf("task %d: %v", outcome.Index, outcome.Err),
				})
				continue
			}
			emitter.Emit(ctx, domain.EventTypeSearchResults, domain.SearchResultsPayload{
				Stage:   i,
				Task:    outcome.Index,
				Query:   tasks[outcome.Index].Query,
				Records: outcome.Records,
			})
			outcomes = append(outcomes, outcome)
		}

		// Restore submission order before appending so record indices are
		// deterministic regardless of completion order.
		sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].Index < outcomes[b].Index })
		var gained []domain.Record
		for _, o := range outcomes {
			gained = append(gained, o.Records...)
		}
		stageRecords[i] = gained
		accumulated = append(accumulated, gained...)
	}

	return accumulated, nil
}

// resolveTasks substitutes every "stage[k].result" placeholder with a
// bounded-length summary of stage k's records. Summary failures degrade to
// an empty substitution rather than failing the stage.
func (s *Sequencer) resolveTasks(ctx context.Context, tasks []domain.TaskSpec, stageRecords map[int][]domain.Record) []domain.TaskSpec {
	summaries := make(map[int]string)
	resolved := make([]domain.TaskSpec, len(tasks))
	for i, task := range tasks {
		resolved[i] = task.SubstitutePlaceholders(func(stage int) string {
			if summary, ok := summaries[stage]; ok {
				return summary
			}
			summary, err := s.gen.Summarize(ctx, stageRecords[stage], s.summaryMax)
			if err != nil {
				log.Printf("WARN: summarize stage %d failed: %v", stage, err)
				summary = ""
			}
			summaries[stage] = summary
			return summary
		})
	}
	return resolved
}
