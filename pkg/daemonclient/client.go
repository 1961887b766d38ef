// Package daemonclient is the shared client for speaking the daemon's
// length-prefixed DAP protocol over its domain socket. The MCP adapter
// and the backend-manager CLI tools (trace attach, trace status) dial
// through here rather than each re-implementing the wire protocol.
package daemonclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

// Client is one connection to the daemon's domain socket. It multiplexes
// request/response pairs by seq on a single read loop and fans unsolicited
// events (session pump traffic, stopped/initialized/ct/updated-*) out
// through Events.
type Client struct {
	conn net.Conn
	seq  int64

	mu      sync.Mutex
	pending map[int64]chan *dap.Message
	closed  bool

	events chan *dap.Message
}

// Dial connects to socketPath with no auto-start or retry behavior; see
// Connect for the daemon-auto-start path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemonclient: dial %s: %w", socketPath, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[int64]chan *dap.Message),
		events:  make(chan *dap.Message, 64),
	}
	go c.readLoop()
	return c, nil
}

// Events is the stream of messages that are not responses to a Request
// this client issued.
func (c *Client) Events() <-chan *dap.Message { return c.events }

func (c *Client) readLoop() {
	r := dap.NewReader(c.conn)
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			c.closeAll()
			return
		}
		if msg.Type == "response" {
			c.mu.Lock()
			ch, ok := c.pending[msg.RequestSeq]
			if ok {
				delete(c.pending, msg.RequestSeq)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
				close(ch)
			}
			continue
		}
		select {
		case c.events <- msg:
		default:
			// A client that stops draining Events must never block the
			// shared read loop or starve pending Request calls.
		}
	}
}

func (c *Client) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
	close(c.events)
}

func (c *Client) nextSeq() int64 { return atomic.AddInt64(&c.seq, 1) }

// Request sends command with args marshaled as the DAP arguments object
// and waits for its matching response, or ctx's cancellation.
func (c *Client) Request(ctx context.Context, command string, args any) (*dap.Message, error) {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("daemonclient: marshal args: %w", err)
		}
		raw = b
	}

	seq := c.nextSeq()
	ch := make(chan *dap.Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("daemonclient: connection closed")
	}
	c.pending[seq] = ch
	c.mu.Unlock()

	if err := dap.WriteMessage(c.conn, &dap.Message{Seq: seq, Type: "request", Command: command, Arguments: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("daemonclient: write: %w", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("daemonclient: connection closed while awaiting response")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying connection, which unblocks the read loop
// and drains any still-pending requests with an error.
func (c *Client) Close() error { return c.conn.Close() }

// Connect dials socketPath, and if that fails, starts the daemon via
// startCmd (argv, e.g. {"backend-manager", "daemon", "start"}) and polls
// with exponential backoff — 50ms doubling, capped at 500ms — up to a 5
// second total budget before giving up.
func Connect(ctx context.Context, socketPath string, startCmd []string) (*Client, error) {
	if c, err := Dial(socketPath); err == nil {
		return c, nil
	}
	if len(startCmd) == 0 {
		return nil, fmt.Errorf("daemonclient: daemon not running at %s", socketPath)
	}

	cmd := exec.Command(startCmd[0], startCmd[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("daemonclient: start daemon: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	delay := 50 * time.Millisecond
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if c, err := Dial(socketPath); err == nil {
			return c, nil
		}
		delay *= 2
		if delay > 500*time.Millisecond {
			delay = 500 * time.Millisecond
		}
	}
	return nil, fmt.Errorf("daemonclient: daemon at %s did not become ready within 5s", socketPath)
}
