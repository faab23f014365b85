package terminal

import (
	"github.com/backdoor-sh/termcore/internal/shared/id"
)

// OutputSink receives streamed output text. Error text is delivered
// through the same sink, prefixed with "Error: ".
type OutputSink func(text string)

// CodeBlock is one guest-language snippet extracted from a mixed
// script, in source order.
type CodeBlock struct {
	Language Language

	// Body is the raw user source, trimmed.
	Body string

	// ImportNames holds variable names this block expects from a
	// prior block's exports, in first-seen order. Duplicates are
	// kept as matched.
	ImportNames []string

	// DataFile is the JSON file this block both imports from and
	// exports to. Every block addresses its own file; the files are
	// not chained across blocks.
	DataFile string
}

// PlanState tracks an execution plan through its lifecycle. Terminal
// states are final.
type PlanState int

const (
	PlanPending PlanState = iota
	PlanRunning
	PlanSucceeded
	PlanFailed
)

func (s PlanState) String() string {
	switch s {
	case PlanPending:
		return "pending"
	case PlanRunning:
		return "running"
	case PlanSucceeded:
		return "succeeded"
	case PlanFailed:
		return "failed"
	}
	return "unknown"
}

// ExecutionPlan is the ordered block list derived from one mixed
// script, plus the data files allocated for it. A plan is owned by a
// single execution and is not shared across sessions.
type ExecutionPlan struct {
	ID        id.PlanID
	Blocks    []CodeBlock
	DataFiles []string

	// state is written only by the engine goroutine running the plan.
	state PlanState

	// failedBlock is the index of the block that failed, or -1.
	failedBlock int

	// exports accumulates the variables the plan's blocks exported,
	// read back from the data files before cleanup removes them.
	exports map[string]string
}

// State reports the plan's current lifecycle state.
func (p *ExecutionPlan) State() PlanState { return p.state }

// FailedBlock returns the index of the failing block, or -1 when no
// block has failed.
func (p *ExecutionPlan) FailedBlock() int { return p.failedBlock }

// Exports returns a copy of the variables exported by the plan's
// blocks. Later exports of the same name win.
func (p *ExecutionPlan) Exports() map[string]string {
	out := make(map[string]string, len(p.exports))
	for k, v := range p.exports {
		out[k] = v
	}
	return out
}

func (p *ExecutionPlan) addExports(values map[string]string) {
	if p.exports == nil {
		p.exports = make(map[string]string, len(values))
	}
	for k, v := range values {
		p.exports[k] = v
	}
}
