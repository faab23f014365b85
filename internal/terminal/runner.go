package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
)

// Spec describes one process to spawn.
type Spec struct {
	Executable string
	Args       []string
	Dir        string
	Env        []string // appended to the inherited environment

	// Interactive allocates a PTY so the process sees a terminal and
	// input can be written to it mid-run.
	Interactive bool
}

// Handle is the exclusive owner of a spawned process and its file
// descriptors. Released on exit or Terminate; never shared between
// sessions.
type Handle interface {
	// Write sends input to the process (PTY or stdin pipe).
	Write(p []byte) error

	// Wait blocks until exit and returns the exit code. A nonzero
	// code is not an error at this layer.
	Wait() (int, error)

	// Terminate sends SIGTERM, escalating to SIGKILL if the signal
	// cannot be delivered.
	Terminate() error

	// PID returns the OS process ID.
	PID() int
}

// Runner spawns OS processes and streams their merged stdout/stderr
// to a sink chunk by chunk as it arrives.
type Runner interface {
	Spawn(ctx context.Context, spec Spec, sink OutputSink) (Handle, error)
}

// ExecRunner is the os/exec-backed Runner.
type ExecRunner struct {
	logger *logging.Logger
}

// NewExecRunner creates the production process runner.
func NewExecRunner(logger *logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ExecRunner{logger: logger}
}

// Spawn starts the process and begins streaming output. The returned
// handle's Wait drains the output streams before reporting the exit
// code, so no output is lost on fast-exiting processes.
func (r *ExecRunner) Spawn(ctx context.Context, spec Spec, sink OutputSink) (Handle, error) {
	cmd := exec.CommandContext(ctx, spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	if sink == nil {
		sink = func(string) {}
	}

	if spec.Interactive {
		return r.spawnPTY(cmd, sink)
	}
	return r.spawnPiped(cmd, sink)
}

func (r *ExecRunner) spawnPTY(cmd *exec.Cmd, sink OutputSink) (Handle, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start pty: %w", err)
	}

	h := &execHandle{cmd: cmd, stdin: ptmx, logger: r.logger}
	h.readers.Add(1)
	go func() {
		defer h.readers.Done()
		streamOutput(ptmx, sink)
		ptmx.Close()
	}()
	return h, nil
}

func (r *ExecRunner) spawnPiped(cmd *exec.Cmd, sink OutputSink) (Handle, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	h := &execHandle{cmd: cmd, stdin: stdin, logger: r.logger}

	// Stderr merges into the same stream the caller sees; the sink
	// must tolerate interleaved calls from both readers.
	serialized := h.serializeSink(sink)
	for _, stream := range []io.Reader{stdout, stderr} {
		h.readers.Add(1)
		go func(src io.Reader) {
			defer h.readers.Done()
			streamOutput(src, serialized)
		}(stream)
	}
	return h, nil
}

// streamOutput forwards chunks as they become available rather than
// buffering until exit.
func streamOutput(src io.Reader, sink OutputSink) {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			sink(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// execHandle implements Handle over exec.Cmd.
type execHandle struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	readers sync.WaitGroup
	logger  *logging.Logger

	sinkMu sync.Mutex

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func (h *execHandle) serializeSink(sink OutputSink) OutputSink {
	return func(text string) {
		h.sinkMu.Lock()
		defer h.sinkMu.Unlock()
		sink(text)
	}
}

func (h *execHandle) Write(p []byte) error {
	_, err := h.stdin.Write(p)
	return err
}

func (h *execHandle) Wait() (int, error) {
	h.waitOnce.Do(func() {
		h.readers.Wait()
		err := h.cmd.Wait()
		if err == nil {
			h.exitCode = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.exitCode = exitErr.ExitCode()
			return
		}
		h.waitErr = err
	})
	return h.exitCode, h.waitErr
}

func (h *execHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		h.logger.Debug("SIGTERM failed, killing process",
			zap.Int("pid", h.cmd.Process.Pid), zap.Error(err))
		return h.cmd.Process.Kill()
	}
	return nil
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}
