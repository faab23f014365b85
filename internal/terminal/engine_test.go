package terminal

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backdoor-sh/termcore/internal/shared/id"
)

// fakeRunner simulates processes deterministically. The optional
// script hook runs in place of the real toolchain and returns the
// exit code. With blocking set, every spawned handle's Wait blocks
// until Terminate, like a process that never exits on its own.
type fakeRunner struct {
	mu       sync.Mutex
	spawned  []Spec
	handles  []*fakeHandle
	script   func(spec Spec, sink OutputSink) int
	spawnErr error
	blocking bool
	notify   chan *fakeHandle // receives each handle as it spawns
}

func (r *fakeRunner) Spawn(_ context.Context, spec Spec, sink OutputSink) (Handle, error) {
	if r.spawnErr != nil {
		return nil, r.spawnErr
	}

	code := 0
	if r.script != nil {
		code = r.script(spec, sink)
	}
	h := &fakeHandle{code: code}
	if r.blocking {
		h.exited = make(chan struct{})
	}

	r.mu.Lock()
	r.spawned = append(r.spawned, spec)
	r.handles = append(r.handles, h)
	r.mu.Unlock()

	if r.notify != nil {
		r.notify <- h
	}
	return h, nil
}

func (r *fakeRunner) lastHandle() *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[len(r.handles)-1]
}

func (r *fakeRunner) specs() []Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Spec, len(r.spawned))
	copy(out, r.spawned)
	return out
}

type fakeHandle struct {
	mu         sync.Mutex
	code       int
	input      []byte
	terminated bool
	waited     bool
	exited     chan struct{} // when set, Wait blocks until Terminate
}

func (h *fakeHandle) Write(p []byte) error {
	h.mu.Lock()
	h.input = append(h.input, p...)
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Wait() (int, error) {
	if h.exited != nil {
		<-h.exited
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waited = true
	if h.terminated {
		return 143, nil // SIGTERM
	}
	return h.code, nil
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminated {
		return nil
	}
	h.terminated = true
	if h.exited != nil {
		close(h.exited)
	}
	return nil
}

func (h *fakeHandle) PID() int { return 4242 }

func newTestEngine(r Runner) *Engine {
	return NewEngine(r, DefaultRegistry(), nil, nil)
}

func testPlan(blocks ...CodeBlock) *ExecutionPlan {
	plan := &ExecutionPlan{ID: id.NewPlanID(), failedBlock: -1}
	for _, b := range blocks {
		if b.DataFile == "" {
			b.DataFile = newDataFile()
		}
		plan.Blocks = append(plan.Blocks, b)
		plan.DataFiles = append(plan.DataFiles, b.DataFile)
	}
	return plan
}

func TestEngineRunsBlocksInOrder(t *testing.T) {
	runner := &fakeRunner{}
	engine := newTestEngine(runner)

	plan := testPlan(
		CodeBlock{Language: Swift, Body: "print(1)"},
		CodeBlock{Language: Python, Body: "print(2)"},
		CodeBlock{Language: Swift, Body: "print(3)"},
	)
	err := engine.Run(context.Background(), plan, t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, PlanSucceeded, plan.State())

	specs := runner.specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "swift", specs[0].Executable)
	assert.Equal(t, "python3", specs[1].Executable)
	assert.Equal(t, "swift", specs[2].Executable)
	assert.True(t, strings.HasSuffix(specs[0].Args[len(specs[0].Args)-1], ".swift"))
	assert.True(t, strings.HasSuffix(specs[1].Args[len(specs[1].Args)-1], ".py"))
}

func TestEngineShortCircuitsOnFailure(t *testing.T) {
	runner := &fakeRunner{
		script: func(spec Spec, _ OutputSink) int {
			if spec.Executable == "python3" {
				return 3
			}
			return 0
		},
	}
	engine := newTestEngine(runner)

	plan := testPlan(
		CodeBlock{Language: Swift, Body: "print(1)"},
		CodeBlock{Language: Python, Body: "exit(3)"},
		CodeBlock{Language: Swift, Body: "print(3)"},
	)
	err := engine.Run(context.Background(), plan, t.TempDir(), nil, nil)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Block)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, PlanFailed, plan.State())
	assert.Equal(t, 1, plan.FailedBlock())

	// The third block never ran.
	assert.Len(t, runner.specs(), 2)
}

func TestEngineSpawnErrorAbortsPlan(t *testing.T) {
	runner := &fakeRunner{spawnErr: os.ErrPermission}
	engine := newTestEngine(runner)

	plan := testPlan(CodeBlock{Language: Swift, Body: "print(1)"})
	err := engine.Run(context.Background(), plan, t.TempDir(), nil, nil)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 0, spawnErr.Block)
	assert.Equal(t, PlanFailed, plan.State())
}

func TestEngineCleansUpTempFiles(t *testing.T) {
	var sources []string
	runner := &fakeRunner{
		script: func(spec Spec, _ OutputSink) int {
			src := spec.Args[len(spec.Args)-1]
			sources = append(sources, src)
			// The source file exists while the block runs.
			_, err := os.Stat(src)
			assert.NoError(t, err)
			return 0
		},
	}
	engine := newTestEngine(runner)

	plan := testPlan(
		CodeBlock{Language: Swift, Body: "print(1)"},
		CodeBlock{Language: Python, Body: "print(2)"},
	)
	// Pre-create the data files so cleanup is observable.
	for _, path := range plan.DataFiles {
		require.NoError(t, os.WriteFile(path, []byte(`{"k":"v"}`), 0o644))
	}

	err := engine.Run(context.Background(), plan, t.TempDir(), nil, nil)
	require.NoError(t, err)

	require.Len(t, sources, 2)
	for _, src := range sources {
		_, err := os.Stat(src)
		assert.True(t, os.IsNotExist(err), "source file %s not cleaned up", src)
	}
	for _, path := range plan.DataFiles {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "data file %s not cleaned up", path)
	}
}

func TestEngineCleansUpOnFailure(t *testing.T) {
	runner := &fakeRunner{
		script: func(Spec, OutputSink) int { return 1 },
	}
	engine := newTestEngine(runner)

	plan := testPlan(CodeBlock{Language: Python, Body: "exit(1)"})
	for _, path := range plan.DataFiles {
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	}

	err := engine.Run(context.Background(), plan, t.TempDir(), nil, nil)
	require.Error(t, err)

	for _, path := range plan.DataFiles {
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	}
}

func TestEngineDataFileRoundTrip(t *testing.T) {
	// Two blocks addressing the same data file instance: the first
	// exports, the second imports the exported value.
	shared := newDataFile()
	plan := testPlan(
		CodeBlock{Language: Swift, Body: `export("x", 1)`, DataFile: shared},
		CodeBlock{Language: Python, Body: "from swift import x\nprint(x)", ImportNames: []string{"x"}, DataFile: shared},
	)
	plan.DataFiles = []string{shared}

	var outputs []string
	runner := &fakeRunner{
		script: func(spec Spec, sink OutputSink) int {
			// Simulate the generated wrappers: the Swift block writes
			// its exports; the Python block reads its imports.
			if spec.Executable == "swift" {
				require.NoError(t, os.WriteFile(shared, []byte(`{"x":"1"}`), 0o644))
				return 0
			}
			values, err := ReadDataFile(shared)
			require.NoError(t, err)
			sink(values["x"] + "\n")
			return 0
		},
	}
	engine := newTestEngine(runner)

	err := engine.Run(context.Background(), plan, t.TempDir(), func(text string) {
		outputs = append(outputs, text)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1\n"}, outputs)
	assert.Equal(t, map[string]string{"x": "1"}, plan.Exports())
}

func TestEngineOutputStreamsThroughSink(t *testing.T) {
	runner := &fakeRunner{
		script: func(_ Spec, sink OutputSink) int {
			sink("chunk1")
			sink("chunk2")
			return 0
		},
	}
	engine := newTestEngine(runner)

	var got []string
	plan := testPlan(CodeBlock{Language: Python, Body: "print(1)"})
	err := engine.Run(context.Background(), plan, t.TempDir(), func(text string) {
		got = append(got, text)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk1", "chunk2"}, got)
}

// recordingOwner tracks the foreground slot the way a session does.
type recordingOwner struct {
	mu      sync.Mutex
	claimed []Handle
	active  Handle
}

func (o *recordingOwner) claimActive(h Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.claimed = append(o.claimed, h)
	o.active = h
	return true
}

func (o *recordingOwner) clearActive() {
	o.mu.Lock()
	o.active = nil
	o.mu.Unlock()
}

// terminatedOwner refuses every claim, like a session terminated
// while the plan was in flight.
type terminatedOwner struct{}

func (terminatedOwner) claimActive(Handle) bool { return false }
func (terminatedOwner) clearActive()            {}

func TestEngineRegistersEachBlockProcess(t *testing.T) {
	runner := &fakeRunner{}
	engine := newTestEngine(runner)
	owner := &recordingOwner{}

	plan := testPlan(
		CodeBlock{Language: Swift, Body: "print(1)"},
		CodeBlock{Language: Python, Body: "print(2)"},
	)
	err := engine.Run(context.Background(), plan, t.TempDir(), nil, owner)
	require.NoError(t, err)

	owner.mu.Lock()
	defer owner.mu.Unlock()
	assert.Len(t, owner.claimed, 2)
	assert.Nil(t, owner.active)
}

func TestEngineStopsWhenOwnerTerminated(t *testing.T) {
	runner := &fakeRunner{}
	engine := newTestEngine(runner)

	plan := testPlan(
		CodeBlock{Language: Swift, Body: "print(1)"},
		CodeBlock{Language: Python, Body: "print(2)"},
	)
	err := engine.Run(context.Background(), plan, t.TempDir(), nil, terminatedOwner{})
	require.ErrorIs(t, err, ErrSessionTerminated)
	assert.Equal(t, PlanFailed, plan.State())

	// The first block's orphan was killed and the second never spawned.
	require.Len(t, runner.specs(), 1)
	h := runner.lastHandle()
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.True(t, h.terminated)
}

func TestEngineCollectsExports(t *testing.T) {
	plan := testPlan(CodeBlock{Language: Swift, Body: `export("x", 1)`})
	runner := &fakeRunner{
		script: func(Spec, OutputSink) int {
			// The wrapper's trailer writes the export table on exit.
			require.NoError(t, os.WriteFile(plan.Blocks[0].DataFile, []byte(`{"x":"1"}`), 0o644))
			return 0
		},
	}
	engine := newTestEngine(runner)

	err := engine.Run(context.Background(), plan, t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1"}, plan.Exports())

	// Collection happens before cleanup removes the file.
	_, statErr := os.Stat(plan.Blocks[0].DataFile)
	assert.True(t, os.IsNotExist(statErr))
}
