package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os/exec"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/dap"
	"github.com/ormasoftchile/codetracer/pkg/tracesession"
)

// clientConn is one accepted connection: a monotonic id, the framed
// reader/writer pair, and the set of sessions it is currently attached to
// (for fan-out unsubscription on disconnect).
type clientConn struct {
	id      int64
	conn    net.Conn
	reader  *dap.Reader
	attached map[string]bool
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	c := &clientConn{conn: conn, reader: dap.NewReader(conn), attached: make(map[string]bool)}
	s.registerClient(c)
	defer func() {
		s.detachAll(c)
		s.unregisterClient(c)
		conn.Close()
	}()

	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			if err != io.EOF {
				s.log.Warn("client %d: read error: %v", c.id, err)
			}
			return
		}
		resp := s.dispatchClientMessage(ctx, c, msg)
		if resp != nil {
			if err := dap.WriteMessage(conn, resp); err != nil {
				s.log.Warn("client %d: write error: %v", c.id, err)
				return
			}
		}
	}
}

func (s *Server) detachAll(c *clientConn) {
	s.mu.Lock()
	pumps := make([]*sessionPump, 0, len(c.attached))
	for id := range c.attached {
		if p, ok := s.pumps[id]; ok {
			pumps = append(pumps, p)
		}
	}
	s.mu.Unlock()
	for _, p := range pumps {
		p.unsubscribe(c.id)
	}
}

// ctRequest is the envelope shared by every ct/* command: a trace path or
// session id identifies which backend owns the request.
type ctRequest struct {
	TracePath string `json:"tracePath,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Script    string `json:"script,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
	FilePath  string `json:"filePath,omitempty"`
}

func (s *Server) dispatchClientMessage(ctx context.Context, c *clientConn, msg *dap.Message) *dap.Message {
	if s.isShuttingDown() {
		return failure(msg, ErrShuttingDown)
	}

	switch msg.Command {
	case "ct/open-trace":
		return s.handleOpenTrace(ctx, c, msg)
	case "ct/trace-info":
		return s.handleTraceInfo(msg)
	case "ct/exec-script":
		return s.handleExecScript(ctx, msg)
	case "ct/daemon-shutdown":
		go s.Shutdown()
		return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true}
	case "ct/list-sessions":
		return s.handleListSessions(msg)
	case "ct/py-read-source":
		return s.handleReadSource(msg)
	case "ct/list-source-files":
		return s.handleListSourceFiles(msg)
	}

	return s.forwardToSession(c, msg)
}

func (s *Server) handleOpenTrace(ctx context.Context, c *clientConn, msg *dap.Message) *dap.Message {
	var req ctRequest
	_ = json.Unmarshal(msg.Arguments, &req)
	if req.TracePath == "" {
		return failureMsg(msg, "ct/open-trace requires tracePath")
	}

	sess, created, err := s.openTrace(ctx, req.TracePath)
	if err != nil {
		return failure(msg, err)
	}
	sess.AddClientRef()

	// The handshake must drain sess.Dispatcher.Out() directly, before any
	// fan-out pump is attached, since a pump subscriber and the handshake
	// would otherwise race to consume the same initialize/launch
	// responses from that single channel.
	if created {
		if err := s.performHandshake(sess); err != nil {
			return failure(msg, err)
		}
	}

	s.attach(c, sess)

	body, _ := json.Marshal(struct {
		SessionID string `json:"sessionId"`
		Created   bool   `json:"created"`
	}{sess.ID, created})
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true, Body: body}
}

func (s *Server) attach(c *clientConn, sess *tracesession.Session) {
	if c.attached[sess.ID] {
		return
	}
	c.attached[sess.ID] = true
	pump := s.pumpFor(sess)
	ch := pump.subscribe(c.id)
	go func() {
		for evt := range ch {
			_ = dap.WriteMessage(c.conn, evt)
		}
	}()
}

// performHandshake drives initialize -> initialized -> launch ->
// configurationDone against a freshly created session.
// Responses are drained directly from the dispatcher's own output
// channel rather than through the fan-out pump, since no client has
// subscribed yet at this point.
func (s *Server) performHandshake(sess *tracesession.Session) error {
	timeout := time.Duration(s.cfg.LaunchTimeout.AsSeconds()) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.After(timeout)

	sess.Dispatcher.Dispatch(&dap.Message{Seq: 1, Type: "request", Command: "initialize"})
	if _, err := recvWithTimeout(sess.Dispatcher.Out(), deadline); err != nil {
		return err
	}
	if _, err := recvWithTimeout(sess.Dispatcher.Out(), deadline); err != nil { // initialized event
		return err
	}

	sess.Dispatcher.Dispatch(&dap.Message{Seq: 2, Type: "request", Command: "launch"})
	if _, err := recvWithTimeout(sess.Dispatcher.Out(), deadline); err != nil {
		return err
	}

	sess.Dispatcher.Dispatch(&dap.Message{Seq: 3, Type: "request", Command: "configurationDone"})
	if _, err := recvWithTimeout(sess.Dispatcher.Out(), deadline); err != nil {
		return err
	}
	if _, err := recvWithTimeout(sess.Dispatcher.Out(), deadline); err != nil { // entry stopped event
		return err
	}
	if _, err := recvWithTimeout(sess.Dispatcher.Out(), deadline); err != nil { // entry complete-move event
		return err
	}
	return nil
}

func recvWithTimeout(out <-chan *dap.Message, deadline <-chan time.Time) (*dap.Message, error) {
	select {
	case m := <-out:
		return m, nil
	case <-deadline:
		return nil, ErrBackendHandshakeTimeout
	}
}

func (s *Server) handleTraceInfo(msg *dap.Message) *dap.Message {
	var req ctRequest
	_ = json.Unmarshal(msg.Arguments, &req)

	sess, ok := s.lookupSession(req)
	if !ok {
		return failure(msg, ErrUnknownSession)
	}

	body, _ := json.Marshal(struct {
		Language    string `json:"language"`
		TotalEvents int    `json:"totalEvents"`
		SourceFiles int    `json:"sourceFiles"`
		Program     string `json:"program"`
		Workdir     string `json:"workdir"`
		TracePath   string `json:"tracePath"`
	}{
		Language:    sess.Db.Metadata.Language,
		TotalEvents: len(sess.Db.Events),
		SourceFiles: len(sess.Db.Paths),
		Program:     sess.Db.Metadata.Program,
		Workdir:     sess.Db.Metadata.Workdir,
		TracePath:   sess.TraceDir,
	})
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true, Body: body}
}

func (s *Server) handleListSourceFiles(msg *dap.Message) *dap.Message {
	var req ctRequest
	_ = json.Unmarshal(msg.Arguments, &req)

	sess, ok := s.lookupSession(req)
	if !ok {
		return failure(msg, ErrUnknownSession)
	}

	paths := make([]string, 0, len(sess.Db.Paths))
	for _, p := range sess.Db.Paths {
		paths = append(paths, p.Raw)
	}
	body, _ := json.Marshal(struct {
		Paths []string `json:"paths"`
	}{paths})
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true, Body: body}
}

func (s *Server) lookupSession(req ctRequest) (*tracesession.Session, bool) {
	if req.SessionID != "" {
		return s.sessions.Get(req.SessionID)
	}
	for _, sess := range s.sessions.List() {
		if sess.TraceDir == req.TracePath {
			return sess, true
		}
	}
	return nil, false
}

func (s *Server) handleListSessions(msg *dap.Message) *dap.Message {
	type row struct {
		SessionID    string `json:"sessionId"`
		TracePath    string `json:"tracePath"`
		LastActivity string `json:"lastActivity"`
		ClientRefs   int32  `json:"clientRefs"`
	}
	var rows []row
	for _, sess := range s.sessions.List() {
		rows = append(rows, row{sess.ID, sess.TraceDir, sess.LastAccess().Format(time.RFC3339), sess.ClientRefs()})
	}
	body, _ := json.Marshal(rows)
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true, Body: body}
}

func (s *Server) forwardToSession(c *clientConn, msg *dap.Message) *dap.Message {
	var req ctRequest
	_ = json.Unmarshal(msg.Arguments, &req)

	sess, ok := s.lookupSession(req)
	if !ok {
		return failure(msg, ErrUnknownSession)
	}
	sess.Touch()
	s.attach(c, sess)
	sess.Dispatcher.Dispatch(msg)
	// The response itself arrives through the fan-out pump this client
	// just subscribed to; the synchronous handler path returns nothing.
	return nil
}

func (s *Server) execScriptTimeout(req ctRequest) time.Duration {
	if req.Timeout > 0 {
		return time.Duration(req.Timeout) * time.Second
	}
	t := s.cfg.ScriptTimeout.AsSeconds()
	if t <= 0 {
		t = 120
	}
	return time.Duration(t) * time.Second
}

func (s *Server) handleExecScript(ctx context.Context, msg *dap.Message) *dap.Message {
	var req ctRequest
	_ = json.Unmarshal(msg.Arguments, &req)
	if req.TracePath == "" && req.SessionID == "" {
		return failureMsg(msg, "ct/exec-script requires tracePath or sessionId")
	}

	traceDir := req.TracePath
	if req.SessionID != "" {
		resolved, ok := s.scriptSessions.use(req.SessionID, traceDir)
		if !ok {
			return failureMsg(msg, fmt.Sprintf("ct/exec-script: no session loaded for sessionId %q", req.SessionID))
		}
		traceDir = resolved
	}

	interpreter, ok := s.cfg.Interpreters["python"]
	if !ok || interpreter == "" {
		interpreter = "python3"
	}

	timeout := s.execScriptTimeout(req)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interpreter, "-c", req.Script)
	cmd.Env = scriptEnv(s.cfg, traceDir)
	stdout, stderr, runErr := runCaptured(cmd)

	timedOut := runCtx.Err() == context.DeadlineExceeded
	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil && !timedOut {
		return failure(msg, fmt.Errorf("ct/exec-script: %w", runErr))
	}

	body, _ := json.Marshal(struct {
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exitCode"`
		TimedOut bool   `json:"timedOut"`
	}{stdout, stderr, exitCode, timedOut})
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true, Body: body}
}

func failure(msg *dap.Message, err error) *dap.Message {
	return failureMsg(msg, err.Error())
}

func failureMsg(msg *dap.Message, text string) *dap.Message {
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: false, Message: text}
}
