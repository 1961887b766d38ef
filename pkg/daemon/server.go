// Package daemon implements the domain-socket server: it multiplexes
// clients, owns one session per loaded trace, and routes DAP / ct/py-* /
// ct/* commands to the backend dispatcher that owns the addressed trace.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/config"
	"github.com/ormasoftchile/codetracer/pkg/ctlog"
	"github.com/ormasoftchile/codetracer/pkg/trace"
	"github.com/ormasoftchile/codetracer/pkg/tracesession"
)

// Server is the daemon's domain-socket listener plus session manager.
type Server struct {
	cfg            config.Daemon
	log            *ctlog.Logger
	listener       net.Listener
	sessions       *tracesession.Manager
	scriptSessions *scriptSessionTable

	mu           sync.Mutex
	clients      map[int64]*clientConn
	nextClientID int64
	shuttingDown bool
	pumps        map[string]*sessionPump

	wg sync.WaitGroup
}

// New builds a Server from cfg; it does not start listening yet.
func New(cfg config.Daemon, log *ctlog.Logger) *Server {
	idle := time.Duration(cfg.IdleTimeout.AsSeconds()) * time.Second
	scriptTTL := time.Duration(cfg.ScriptSessionTTL.AsSeconds()) * time.Second
	return &Server{
		cfg:            cfg,
		log:            log,
		sessions:       tracesession.New(idle),
		scriptSessions: newScriptSessionTable(scriptTTL),
		clients:        make(map[int64]*clientConn),
		pumps:          make(map[string]*sessionPump),
	}
}

// pumpFor returns the fan-out pump for sess, creating it on first use.
func (s *Server) pumpFor(sess *tracesession.Session) *sessionPump {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pumps[sess.ID]
	if !ok {
		p = newSessionPump(sess.Dispatcher.Out())
		s.pumps[sess.ID] = p
	}
	return p
}

// Start ensures the socket directory exists, removes a stale socket file,
// binds the listener, and writes the PID file.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("daemon: create socket dir: %w", err)
	}
	if err := removeStaleSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("daemon: clean stale socket: %w", err)
	}

	l, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.listener = l

	if err := os.WriteFile(s.cfg.PidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		l.Close()
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	s.log.Info("listening on %s (pid %d)", s.cfg.SocketPath, os.Getpid())
	return nil
}

// removeStaleSocket deletes a pre-existing socket file left behind by a
// daemon that did not shut down cleanly. Any other kind of stat failure
// is surfaced (a permissions problem should not be silently papered over).
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Shutdown implements ct/daemon-shutdown: stop accepting, let in-flight
// connections drain, then remove the PID and socket files.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	os.Remove(s.cfg.PidFile)
	os.Remove(s.cfg.SocketPath)
	s.log.Info("shutdown complete")
}

// SweepIdle evicts sessions that have been idle past the configured
// timeout; the daemon-start command line drives this on a ticker. It also
// tombstones idle ct/exec-script sessions (see scriptSessionTable).
func (s *Server) SweepIdle() []string {
	evicted := s.sessions.SweepIdle()
	evicted = append(evicted, s.scriptSessions.sweepIdle()...)
	return evicted
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Server) registerClient(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClientID++
	c.id = s.nextClientID
	s.clients[c.id] = c
}

func (s *Server) unregisterClient(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

// openTrace loads (or reuses) the session for dir, per ct/open-trace.
// Failures here originate in the trace loader (ErrTraceNotFound,
// ErrInvalidTrace), not in a subprocess spawn, so the loader's own error
// kind is preserved with %w rather than relabeled.
func (s *Server) openTrace(ctx context.Context, dir string) (*tracesession.Session, bool, error) {
	sess, created, err := s.sessions.Open(ctx, dir, trace.Load)
	if err != nil {
		return nil, false, fmt.Errorf("open trace: %w", err)
	}
	return sess, created, nil
}
