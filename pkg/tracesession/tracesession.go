// Package tracesession keeps the daemon's table of currently loaded
// traces: one trace.Db + dap.Dispatcher pair per canonical trace
// directory, opened at most once and evicted after an idle period.
package tracesession

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/codetracer/pkg/dap"
	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// Session is one loaded trace plus its backend handle. ClientRefs counts
// connections currently holding the session open; SweepIdle only
// considers a session for eviction once its last access passes the idle
// timeout regardless of ClientRefs (idle is measured by inactivity, not
// by reference count — a client that opens and never speaks again should
// still expire).
type Session struct {
	ID         string
	TraceDir   string
	Db         *trace.Db
	Dispatcher *dap.Dispatcher

	clientRefs int32

	cmd        *exec.Cmd
	lastAccess time.Time
	cancel     context.CancelFunc
}

// AddClientRef increments and returns the live client-reference count.
func (s *Session) AddClientRef() int32 { return atomic.AddInt32(&s.clientRefs, 1) }

// ClientRefs returns the current live client-reference count.
func (s *Session) ClientRefs() int32 { return atomic.LoadInt32(&s.clientRefs) }

// Touch records activity, resetting the idle-eviction clock.
func (s *Session) Touch() {
	s.lastAccess = time.Now()
}

// LastAccess returns the timestamp Touch last recorded.
func (s *Session) LastAccess() time.Time { return s.lastAccess }

// Manager is the canonical-path-keyed cache of open Sessions.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session // keyed by canonical trace dir
	byID        map[string]*Session
	idleTimeout time.Duration
}

// New creates an empty Manager. idleTimeout <= 0 disables eviction.
func New(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		byID:        make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

// OpenFunc loads a trace.Db from a canonical directory; callers inject
// trace.Load so this package stays independent of the wire format.
type OpenFunc func(dir string) (*trace.Db, error)

// Open returns the existing session for dir if one is already loaded
// (idempotent reopen), or loads it fresh via open and starts a dispatcher
// over it.
func (m *Manager) Open(ctx context.Context, dir string, open OpenFunc) (*Session, bool, error) {
	canon, err := filepath.Abs(dir)
	if err != nil {
		return nil, false, fmt.Errorf("canonicalize trace dir %s: %w", dir, err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[canon]; ok {
		existing.Touch()
		m.mu.Unlock()
		return existing, false, nil
	}
	m.mu.Unlock()

	db, err := open(canon)
	if err != nil {
		return nil, false, err
	}

	dispatcher := dap.New(db)
	dctx, cancel := context.WithCancel(ctx)
	dispatcher.Start(dctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[canon]; ok {
		// Lost a race with a concurrent Open for the same directory;
		// keep the winner, discard the session we just built.
		cancel()
		existing.Touch()
		return existing, false, nil
	}

	sess := &Session{
		ID:         "sess-" + uuid.NewString(),
		TraceDir:   canon,
		Db:         db,
		Dispatcher: dispatcher,
		lastAccess: time.Now(),
		cancel:     cancel,
	}
	m.sessions[canon] = sess
	m.byID[sess.ID] = sess
	return sess, true, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok
}

// List returns a snapshot of all open sessions sorted by ID, for the
// ct/list-sessions extension.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close evicts and tears down session id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
		delete(m.sessions, sess.TraceDir)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tracesession: unknown session %s", id)
	}
	sess.cancel()
	if sess.cmd != nil && sess.cmd.Process != nil {
		_ = sess.cmd.Process.Kill()
	}
	return nil
}

// SweepIdle evicts every session whose last access is older than the
// configured idle timeout. Intended to run on a ticker in the daemon's
// main loop.
func (m *Manager) SweepIdle() []string {
	if m.idleTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var stale []*Session
	for _, s := range m.byID {
		if s.lastAccess.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		delete(m.byID, s.ID)
		delete(m.sessions, s.TraceDir)
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		s.cancel()
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		ids = append(ids, s.ID)
	}
	return ids
}

// Len reports how many sessions are currently loaded.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
