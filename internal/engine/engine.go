// Package engine implements the concurrent streaming orchestration core: the
// parallel task dispatcher, the multi-stage sequencer, and the ordered
// section multiplexer, wrapped in a run lifecycle with cooperative abort.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/chart"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/adapter/search"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/policy"
)

// Options tunes the engine.
type Options struct {
	SearchTimeout    time.Duration
	SummaryMaxChars  int
	SectionQueueSize int
	FlushThreshold   int
	// AbortPollInterval controls how often an in-flight run re-checks the
	// abort flag to release outstanding capability calls.
	AbortPollInterval time.Duration
}

// Engine drives one run end to end.
type Engine struct {
	gen         generator.Generator
	sequencer   *Sequencer
	multiplexer *Multiplexer
	reg         *registry.Registry
	pollEvery   time.Duration
}

// New wires the engine from its collaborators.
func New(gen generator.Generator, provider search.Provider, charts chart.Builder, pol *policy.Engine, reg *registry.Registry, opts Options) *Engine {
	if opts.SummaryMaxChars <= 0 {
		opts.SummaryMaxChars = 2000
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = 160
	}
	if opts.AbortPollInterval <= 0 {
		opts.AbortPollInterval = 100 * time.Millisecond
	}
	dispatcher := NewDispatcher(provider, pol, opts.SearchTimeout)
	return &Engine{
		gen:         gen,
		sequencer:   NewSequencer(dispatcher, gen, reg, opts.SummaryMaxChars),
		multiplexer: NewMultiplexer(gen, charts, reg, opts.SectionQueueSize, opts.FlushThreshold),
		reg:         reg,
		pollEvery:   opts.AbortPollInterval,
	}
}

// Execute runs the full pipeline for one run: plan, staged gathering, record
// table, ordered section production, terminal event. The stream always ends
// with exactly one of {complete, error, aborted-status} followed by exactly
// one final_complete, whatever went wrong in between.
func (e *Engine) Execute(ctx context.Context, run *domain.Run, emitter EventEmitter) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Requesting abort also releases in-flight capability calls: the engine
	// only polls the flag at boundaries, but the run context is cancelled as
	// soon as the flag is seen.
	go e.watchAbort(ctx, run.RunID, cancel)

	done := false
	finish := func(status domain.RunStatus, reason string) {
		if done {
			return
		}
		done = true
		switch status {
		case domain.RunStatusCompleted:
			emitter.Emit(ctx, domain.EventTypeComplete, domain.CompletePayload{Status: status})
			e.reg.MarkTerminal(ctx, run.RunID, status, nil)
		case domain.RunStatusAborted:
			emitter.Emit(ctx, domain.EventTypeStatus, domain.StatusPayload{Phase: "aborted", Message: reason})
			e.reg.MarkTerminal(ctx, run.RunID, status, nil)
		default:
			emitter.Emit(ctx, domain.EventTypeError, domain.ErrorPayload{Code: "run_failed", Message: reason})
			errData, _ := json.Marshal(domain.ErrorPayload{Code: "run_failed", Message: reason})
			e.reg.MarkTerminal(ctx, run.RunID, domain.RunStatusError, errData)
		}
		emitter.Emit(ctx, domain.EventTypeFinalComplete, domain.CompletePayload{Status: status, Reason: reason})
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: run %s panicked: %v", run.RunID, r)
			finish(domain.RunStatusError, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	emitter.Emit(ctx, domain.EventTypeStatus, domain.StatusPayload{Phase: "started", Message: run.Query})

	plan := e.plan(ctx, run, emitter)
	emitter.Emit(ctx, domain.EventTypePlan, domain.PlanPayload{Plan: plan})

	records, err := e.sequencer.Run(ctx, run, plan.Stages, emitter)
	if err == ErrAborted {
		finish(domain.RunStatusAborted, e.reg.AbortReason(run.RunID))
		return
	}
	if err != nil {
		finish(domain.RunStatusError, err.Error())
		return
	}

	table := make(map[int]domain.Record, len(records))
	for i, rec := range records {
		table[i] = rec
	}
	emitter.Emit(ctx, domain.EventTypeFullDataDict, domain.FullDataDictPayload{Records: table})

	if err := e.multiplexer.Run(ctx, run, plan.Sections, records, emitter); err != nil {
		if err == ErrAborted {
			finish(domain.RunStatusAborted, e.reg.AbortReason(run.RunID))
			return
		}
		finish(domain.RunStatusError, err.Error())
		return
	}

	finish(domain.RunStatusCompleted, "")
}

// plan asks the generator for a plan and degrades to the fixed single-task
// fallback on any planning failure. Planning never kills a run.
func (e *Engine) plan(ctx context.Context, run *domain.Run, emitter EventEmitter) domain.Plan {
	planned, err := e.gen.Plan(ctx, run.Query)
	if err == nil {
		err = planned.Validate()
	}
	if err != nil {
		log.Printf("WARN: run %s plan degraded: %v", run.RunID, err)
		emitter.Emit(ctx, domain.EventTypeStatus, domain.StatusPayload{
			Phase: "plan_degraded", Message: err.Error(),
		})
		return domain.FallbackPlan(run.Query)
	}
	return *planned
}

func (e *Engine) watchAbort(ctx context.Context, runID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.reg.IsAbortRequested(runID) {
				cancel()
				return
			}
		}
	}
}
