package terminal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
	"github.com/backdoor-sh/termcore/internal/infrastructure/monitoring"
)

// procOwner tracks the foreground slot for the processes a plan
// spawns, so terminating the owner kills the in-flight block and
// aborts the remaining ones.
type procOwner interface {
	// claimActive installs the handle as the owner's foreground
	// process. Reports false when the owner has been terminated; the
	// caller must kill the handle itself in that case.
	claimActive(h Handle) bool
	clearActive()
}

// Engine executes the blocks of a plan sequentially, one process per
// block, short-circuiting on the first failure.
type Engine struct {
	runner   Runner
	registry *Registry
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewEngine creates an execution engine. metrics may be nil.
func NewEngine(runner Runner, registry *Registry, logger *logging.Logger, metrics *monitoring.Metrics) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		runner:   runner,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes every block of the plan in parse order, streaming
// output through sink, and stops at the first failure: a spawn error,
// a nonzero exit, or a source-file write error. Later blocks never
// run after a failure.
//
// Each block's process is registered with owner while it runs, so
// terminating the owner reaches the in-flight block; once the owner is
// terminated no further block spawns survive. owner may be nil.
//
// All temp source files and every allocated data file are removed on
// a best-effort basis before Run returns, on success and failure
// alike. Removal failures are logged, not surfaced.
func (e *Engine) Run(ctx context.Context, plan *ExecutionPlan, dir string, sink OutputSink, owner procOwner) error {
	plan.state = PlanRunning
	defer e.cleanupDataFiles(plan)

	for i, block := range plan.Blocks {
		if err := e.runBlock(ctx, plan, i, block, dir, sink, owner); err != nil {
			plan.state = PlanFailed
			plan.failedBlock = i
			if e.metrics != nil {
				e.metrics.BlocksFailed.Inc()
			}
			return err
		}
		if e.metrics != nil {
			e.metrics.BlocksExecuted.Inc()
		}
	}

	plan.state = PlanSucceeded
	return nil
}

func (e *Engine) runBlock(ctx context.Context, plan *ExecutionPlan, index int, block CodeBlock, dir string, sink OutputSink, owner procOwner) error {
	tc, ok := e.registry.Toolchain(block.Language)
	if !ok {
		return &SpawnError{Block: index, Err: fmt.Errorf("no toolchain for language %q", block.Language)}
	}

	source, err := GenerateSource(block)
	if err != nil {
		return &SpawnError{Block: index, Err: err}
	}

	srcPath := filepath.Join(os.TempDir(), "termcore-src-"+uuid.NewString()+tc.Extension)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return fmt.Errorf("block %d: failed to write source file: %w", index, err)
	}
	defer e.removeFile(srcPath)

	e.logger.Debug("executing block",
		zap.String("plan", plan.ID.String()),
		zap.Int("index", index),
		zap.String("language", string(block.Language)),
		zap.String("source", srcPath),
	)

	spec := Spec{
		Executable: tc.Command,
		Args:       append(append([]string{}, tc.Args...), srcPath),
		Dir:        dir,
	}
	handle, err := e.runner.Spawn(ctx, spec, sink)
	if err != nil {
		return &SpawnError{Block: index, Err: err}
	}
	if owner != nil {
		if !owner.claimActive(handle) {
			// The owner was terminated while this block spawned; kill
			// the orphan and stop the plan.
			_ = handle.Terminate()
			_, _ = handle.Wait()
			return ErrSessionTerminated
		}
		defer owner.clearActive()
	}

	code, err := handle.Wait()
	if err != nil {
		return &SpawnError{Block: index, Err: err}
	}
	if code != 0 {
		return &ExitError{Block: index, Code: code}
	}

	e.collectExports(plan, index, block)
	return nil
}

// collectExports reads the block's exported variables back from its
// data file before cleanup removes it. Read failures do not fail the
// block.
func (e *Engine) collectExports(plan *ExecutionPlan, index int, block CodeBlock) {
	exports, err := ReadDataFile(block.DataFile)
	if err != nil {
		e.logger.Warn("failed to read exports",
			zap.String("plan", plan.ID.String()),
			zap.Int("index", index),
			zap.Error(err))
		return
	}
	if len(exports) == 0 {
		return
	}
	plan.addExports(exports)

	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	e.logger.Debug("block exported values",
		zap.String("plan", plan.ID.String()),
		zap.Int("index", index),
		zap.Strings("names", names))
}

func (e *Engine) cleanupDataFiles(plan *ExecutionPlan) {
	for _, path := range plan.DataFiles {
		e.removeFile(path)
	}
}

func (e *Engine) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}
