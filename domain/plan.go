package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// Plan is the fixed two-level shape the pipeline executes: ordered stages of
// parallel gathering tasks, followed by the report sections.
type Plan struct {
	Stages   []Stage      `json:"stages"`
	Sections []SectionJob `json:"sections"`
}

// Stage is one sequential phase of the plan. Immutable once planned.
type Stage struct {
	Reasoning string     `json:"reasoning,omitempty"`
	Tasks     []TaskSpec `json:"tasks"`
}

// TaskSpec is one atomic call into a search provider. The query may embed a
// placeholder of the form "stage[k].result" which the sequencer resolves to a
// summary of stage k's records before dispatch.
type TaskSpec struct {
	Capability string `json:"capability"`
	Query      string `json:"query"`
}

// SectionJob is one unit of final-report content production. Index is the
// section's rank in the delivered report; RecordRefs are the indices of the
// accumulated records the section may cite.
type SectionJob struct {
	Index      int    `json:"index"`
	Title      string `json:"title"`
	Brief      string `json:"brief"`
	RecordRefs []int  `json:"record_refs,omitempty"`
}

// ChartMarker is the in-band literal a generator emits mid-section to request
// a chart at that exact position in the output stream. It can arrive split
// across arbitrary chunk boundaries.
const ChartMarker = "<<CHART>>"

var placeholderRe = regexp.MustCompile(`stage\[(\d+)\]\.result`)

// StageRefs returns the stage indices referenced by placeholders in the query.
func (t TaskSpec) StageRefs() []int {
	var refs []int
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Query, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		refs = append(refs, i)
	}
	return refs
}

// SubstitutePlaceholders replaces every "stage[k].result" placeholder in the
// query using the resolver, which maps a stage index to its summary text.
func (t TaskSpec) SubstitutePlaceholders(resolve func(stage int) string) TaskSpec {
	out := t
	out.Query = placeholderRe.ReplaceAllStringFunc(t.Query, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		i, err := strconv.Atoi(sub[1])
		if err != nil {
			return m
		}
		return resolve(i)
	})
	return out
}

// Validate checks structural soundness of a plan: at least one stage, every
// task naming a capability, and placeholders referencing earlier stages only.
func (p Plan) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("plan has no stages")
	}
	for i, st := range p.Stages {
		for j, task := range st.Tasks {
			if task.Capability == "" {
				return fmt.Errorf("stage %d task %d has no capability", i, j)
			}
			for _, ref := range task.StageRefs() {
				if ref >= i {
					return fmt.Errorf("stage %d task %d references stage %d result", i, j, ref)
				}
			}
		}
	}
	return nil
}

// FallbackPlan is the degraded single-task plan substituted when a planned
// request turns out to be malformed. The pipeline always has at least one
// stage to run.
func FallbackPlan(query string) Plan {
	return Plan{
		Stages: []Stage{{
			Reasoning: "fallback: direct search on the original query",
			Tasks:     []TaskSpec{{Capability: "web.search", Query: query}},
		}},
		Sections: []SectionJob{{
			Index: 0,
			Title: "Findings",
			Brief: "Summarize everything retrieved for: " + query,
		}},
	}
}
