package terminal

import (
	"sync"
	"time"

	"github.com/backdoor-sh/termcore/internal/shared/id"
)

// Session is one logical terminal conversation: a working directory,
// at most one foreground process, and a registered output sink.
type Session struct {
	ID        id.SessionID
	CreatedAt time.Time

	mu           sync.Mutex
	workingDir   string
	active       Handle
	background   []Handle
	sink         OutputSink
	history      []string
	historyLimit int
	closed       bool
}

// SessionInfo is the public representation of a session.
type SessionInfo struct {
	ID         string    `json:"id"`
	WorkingDir string    `json:"working_dir"`
	CreatedAt  time.Time `json:"created_at"`
	Active     bool      `json:"active"`
}

// Info snapshots the session for API consumers.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:         s.ID.String(),
		WorkingDir: s.workingDir,
		CreatedAt:  s.CreatedAt,
		Active:     s.active != nil,
	}
}

// WorkingDir returns the session's current directory.
func (s *Session) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

func (s *Session) setWorkingDir(dir string) {
	s.mu.Lock()
	s.workingDir = dir
	s.mu.Unlock()
}

// setSink replaces the registered output callback. Each execute call
// installs its own sink; sinks are replaced, never accumulated.
func (s *Session) setSink(sink OutputSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// emit delivers text through the currently registered sink.
func (s *Session) emit(text string) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(text)
	}
}

// claimActive installs the foreground process handle so termination
// can reach it. Reports false when the session has already been
// terminated; the caller must kill the handle itself in that case.
func (s *Session) claimActive(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.active = h
	return true
}

func (s *Session) clearActive() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

// activeHandle returns the current foreground process, if any.
func (s *Session) activeHandle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// addBackground registers a fire-and-forget process for cleanup on
// session termination. Reports false when the session has already been
// terminated; the caller must kill the handle itself in that case.
func (s *Session) addBackground(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.background = append(s.background, h)
	return true
}

// recordHistory appends a command to the bounded history ring.
func (s *Session) recordHistory(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, text)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

// History returns a copy of the command history, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// close marks the session terminated and returns every live process
// handle so the caller can kill them outside the lock.
func (s *Session) close() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	handles := make([]Handle, 0, 1+len(s.background))
	if s.active != nil {
		handles = append(handles, s.active)
		s.active = nil
	}
	handles = append(handles, s.background...)
	s.background = nil
	s.sink = nil
	return handles
}

// Store owns session lifetime. It is the only structure mutated from
// multiple concurrent callers; all mutation goes through its API.
type Store struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[id.SessionID]*Session)}
}

// Create registers a new session rooted at dir.
func (st *Store) Create(dir string, historyLimit int) *Session {
	s := &Session{
		ID:           id.NewSessionID(),
		CreatedAt:    time.Now(),
		workingDir:   dir,
		historyLimit: historyLimit,
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get looks up a session by id.
func (st *Store) Get(sid id.SessionID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[sid]
	return s, ok
}

// Terminate removes a session and returns its live process handles
// for the caller to kill. Terminating an unknown or already
// terminated session is a no-op.
func (st *Store) Terminate(sid id.SessionID) []Handle {
	st.mu.Lock()
	s, ok := st.sessions[sid]
	if ok {
		delete(st.sessions, sid)
	}
	st.mu.Unlock()

	if !ok {
		return nil
	}
	return s.close()
}

// List snapshots every session.
func (st *Store) List() []SessionInfo {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// IDs returns the ids of every live session.
func (st *Store) IDs() []id.SessionID {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]id.SessionID, 0, len(st.sessions))
	for sid := range st.sessions {
		ids = append(ids, sid)
	}
	return ids
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
