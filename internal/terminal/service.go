package terminal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/backdoor-sh/termcore/internal/infrastructure/config"
	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
	"github.com/backdoor-sh/termcore/internal/infrastructure/monitoring"
	"github.com/backdoor-sh/termcore/internal/shared/id"
)

// Service is the façade the outer layers call: session lifecycle,
// command execution, and input to running processes.
//
// Caller contract: a new foreground command must not be issued on a
// session until the previous command's done callback fires. Background
// commands and SendInput to the active process are exempt.
type Service struct {
	store    *Store
	runner   Runner
	engine   *Engine
	registry *Registry
	root     string
	shell    string
	histSize int
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewService wires the terminal service from configuration.
func NewService(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (*Service, error) {
	registry, err := LoadRegistry(cfg.Terminal.Languages)
	if err != nil {
		return nil, err
	}
	runner := NewExecRunner(logger)
	return newService(cfg, runner, registry, logger, metrics), nil
}

// NewServiceWithRunner wires the service against a caller-supplied
// runner. Tests use this to simulate processes deterministically.
func NewServiceWithRunner(cfg *config.Config, runner Runner, registry *Registry, logger *logging.Logger, metrics *monitoring.Metrics) *Service {
	return newService(cfg, runner, registry, logger, metrics)
}

func newService(cfg *config.Config, runner Runner, registry *Registry, logger *logging.Logger, metrics *monitoring.Metrics) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    NewStore(),
		runner:   runner,
		engine:   NewEngine(runner, registry, logger, metrics),
		registry: registry,
		root:     cfg.SessionRoot(),
		shell:    cfg.Terminal.Shell,
		histSize: cfg.Terminal.HistoryLimit,
		logger:   logger,
		metrics:  metrics,
	}
}

// CreateSession starts a new session rooted at the default directory.
func (s *Service) CreateSession() SessionInfo {
	sess := s.store.Create(s.root, s.histSize)
	if s.metrics != nil {
		s.metrics.SessionCreated()
	}
	s.logger.Info("session created",
		zap.String("session", sess.ID.String()),
		zap.String("working_dir", s.root))
	return sess.Info()
}

// TerminateSession forcibly ends the session's processes and releases
// its state. Idempotent: unknown or already-terminated ids are a
// no-op.
func (s *Service) TerminateSession(sid id.SessionID) {
	handles := s.store.Terminate(sid)
	if handles == nil {
		return
	}
	for _, h := range handles {
		if err := h.Terminate(); err != nil {
			s.logger.Warn("failed to terminate process",
				zap.String("session", sid.String()),
				zap.Int("pid", h.PID()),
				zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
	s.logger.Info("session terminated", zap.String("session", sid.String()))
}

// GetSession returns a session snapshot.
func (s *Service) GetSession(sid id.SessionID) (SessionInfo, error) {
	sess, ok := s.store.Get(sid)
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return sess.Info(), nil
}

// ListSessions snapshots every live session.
func (s *Service) ListSessions() []SessionInfo {
	return s.store.List()
}

// Shutdown terminates every live session.
func (s *Service) Shutdown() {
	for _, sid := range s.store.IDs() {
		s.TerminateSession(sid)
	}
}

// ExecuteCommand classifies and runs a command on a session. The call
// returns immediately; output streams through onOutput and onDone
// fires exactly once with the terminal result. onOutput replaces any
// previously registered sink.
func (s *Service) ExecuteCommand(text string, sid id.SessionID, onOutput OutputSink, onDone func(error)) {
	if onDone == nil {
		onDone = func(error) {}
	}
	sess, ok := s.store.Get(sid)
	if !ok {
		onDone(ErrSessionNotFound)
		return
	}
	sess.setSink(onOutput)
	sess.recordHistory(text)

	go s.execute(sess, text, onDone)
}

// SendInput writes text to the session's active foreground process.
func (s *Service) SendInput(text string, sid id.SessionID) error {
	sess, ok := s.store.Get(sid)
	if !ok {
		return ErrSessionNotFound
	}
	h := sess.activeHandle()
	if h == nil {
		return ErrNoActiveProcess
	}
	return h.Write([]byte(text))
}

func (s *Service) execute(sess *Session, text string, onDone func(error)) {
	start := time.Now()
	cmd := Classify(text)

	var err error
	switch cmd.Kind {
	case KindBuiltin:
		s.runBuiltin(sess, cmd)
	case KindShell:
		err = s.runShell(sess, cmd)
	case KindLanguage:
		err = s.runLanguage(sess, cmd)
	case KindMixed:
		err = s.runMixed(sess, cmd)
	}

	if s.metrics != nil {
		s.metrics.CommandExecuted(cmd.Kind.String(), time.Since(start), err)
	}
	if err != nil {
		sess.emit(fmt.Sprintf("Error: %v\n", err))
		s.logger.Debug("command failed",
			zap.String("session", sess.ID.String()),
			zap.String("kind", cmd.Kind.String()),
			zap.Error(err))
	}
	onDone(err)
}

// runBuiltin handles commands that never spawn a process.
func (s *Service) runBuiltin(sess *Session, cmd Command) {
	switch cmd.Builtin {
	case "pwd":
		sess.emit(sess.WorkingDir() + "\n")
	case "help":
		sess.emit(helpText)
	case "language":
		langs := make([]string, 0, 2)
		for _, l := range s.registry.Supported() {
			langs = append(langs, string(l))
		}
		sess.emit("Supported languages: " + strings.Join(langs, ", ") + "\n")
	case "history":
		for _, line := range sess.History() {
			sess.emit(line + "\n")
		}
	case "clear":
		// The presentation layer owns the screen; nothing to emit.
	}
}

// runShell executes a plain shell command via `shell -c`.
func (s *Service) runShell(sess *Session, cmd Command) error {
	spec := Spec{
		Executable:  s.shell,
		Args:        []string{"-c", cmd.Shell},
		Dir:         sess.WorkingDir(),
		Interactive: !cmd.Background,
	}

	handle, err := s.runner.Spawn(context.Background(), spec, sess.emit)
	if err != nil {
		return &SpawnError{Block: -1, Err: err}
	}

	if cmd.Background {
		if !sess.addBackground(handle) {
			_ = handle.Terminate()
			_, _ = handle.Wait()
			return ErrSessionTerminated
		}
		// Reap the child on exit so it never lingers as a zombie.
		go func() { _, _ = handle.Wait() }()
		return nil
	}

	if !sess.claimActive(handle) {
		_ = handle.Terminate()
		_, _ = handle.Wait()
		return ErrSessionTerminated
	}
	code, waitErr := handle.Wait()
	sess.clearActive()

	if isCd(cmd.Shell) {
		// cd never fails the command: an invalid target emits an
		// error line and leaves the working directory unchanged.
		s.applyCd(sess, cmd.Shell)
		return nil
	}
	if waitErr != nil {
		return &SpawnError{Block: -1, Err: waitErr}
	}
	if code != 0 {
		return &ExitError{Block: -1, Code: code}
	}
	return nil
}

// runLanguage executes a single-language command as a one-block plan.
func (s *Service) runLanguage(sess *Session, cmd Command) error {
	block := CodeBlock{
		Language:    cmd.Language,
		Body:        cmd.Code,
		ImportNames: ExtractImports(cmd.Language, cmd.Code),
		DataFile:    newDataFile(),
	}
	plan := &ExecutionPlan{
		ID:          id.NewPlanID(),
		Blocks:      []CodeBlock{block},
		DataFiles:   []string{block.DataFile},
		failedBlock: -1,
	}
	return s.engine.Run(context.Background(), plan, sess.WorkingDir(), sess.emit, sess)
}

// runMixed parses a shebang script and executes its plan.
func (s *Service) runMixed(sess *Session, cmd Command) error {
	plan, err := Parse(cmd.Code)
	if err != nil {
		return err
	}
	s.logger.Debug("mixed script parsed",
		zap.String("session", sess.ID.String()),
		zap.String("plan", plan.ID.String()),
		zap.Int("blocks", len(plan.Blocks)))
	if err := s.engine.Run(context.Background(), plan, sess.WorkingDir(), sess.emit, sess); err != nil {
		return err
	}
	s.logger.Debug("mixed script succeeded",
		zap.String("session", sess.ID.String()),
		zap.String("plan", plan.ID.String()),
		zap.Int("exports", len(plan.Exports())))
	return nil
}

func isCd(command string) bool {
	return command == "cd" || strings.HasPrefix(command, "cd ")
}

// applyCd resolves the cd target against the session and updates the
// working directory only when the target is an existing directory.
func (s *Service) applyCd(sess *Session, command string) {
	arg := strings.TrimSpace(strings.TrimPrefix(command, "cd"))

	var target string
	switch {
	case arg == "" || arg == "~":
		target = s.root
	case strings.HasPrefix(arg, "~/"):
		target = filepath.Join(s.root, arg[2:])
	case filepath.IsAbs(arg):
		target = arg
	default:
		target = filepath.Join(sess.WorkingDir(), arg)
	}
	target = filepath.Clean(target)

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		sess.emit(fmt.Sprintf("Error: cd: no such directory: %s\n", arg))
		return
	}
	sess.setWorkingDir(target)
}

const helpText = `Available commands:
  <command>            run a shell command
  cd <dir>             change the working directory
  pwd                  print the working directory
  clear | cls          clear the screen
  history              show command history
  language | lang      list supported guest languages
  help                 show this help

Guest languages:
  swift: <code>        run a Swift snippet
  python: <code>       run a Python snippet

Mixed scripts start with ` + ScriptShebang + ` and contain blocks:
  swift: { ... }  python: { ... }
Blocks run in order; export("name", value) passes values between
blocks via import python.<name> / from swift import <name>.
`
