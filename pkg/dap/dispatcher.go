package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ormasoftchile/codetracer/pkg/replay"
	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// Worker names one of the three backend worker threads: stable handles
// navigation/locals/callstack/breakpoints, flow handles load-flow
// exclusively so a slow flow reconstruction never blocks stepping, and
// tracepoint handles tracepoint registration and replay.
type Worker string

const (
	WorkerStable     Worker = "stable"
	WorkerFlow       Worker = "flow"
	WorkerTracepoint Worker = "tracepoint"
)

// commandTable routes each DAP/ct command to the worker that owns it.
// initialize/launch/configurationDone are handled by the dispatcher itself
// before any worker sees them.
var commandTable = map[string]Worker{
	"next":                 WorkerStable,
	"stepIn":               WorkerStable,
	"stepOut":              WorkerStable,
	"stepBack":             WorkerStable,
	"reverseContinue":      WorkerStable,
	"continue":             WorkerStable,
	"gotoTicks":            WorkerStable,
	"stackTrace":           WorkerStable,
	"ct/load-locals":       WorkerStable,
	"evaluate":             WorkerStable,
	"setBreakpoints":       WorkerStable,
	"ct/toggle-breakpoint": WorkerStable,
	"setDataBreakpoints":   WorkerStable,
	"ct/remove-watchpoint": WorkerStable,
	"ct/continue-to-watch": WorkerStable,
	"ct/load-history":      WorkerStable,

	"ct/load-calltrace-section": WorkerStable,
	"ct/search-calltrace":       WorkerStable,
	"ct/event-load":             WorkerStable,
	"ct/load-terminal":          WorkerStable,
	"ct/list-processes":         WorkerStable,
	"ct/select-replay":          WorkerStable,

	"ct/load-flow": WorkerFlow,

	"ct/add-tracepoint":    WorkerTracepoint,
	"ct/remove-tracepoint": WorkerTracepoint,
	"ct/run-tracepoints":   WorkerTracepoint,
	"ct/load-tracepoints":  WorkerTracepoint,
}

// dapRequest is what the dispatcher feeds to a worker goroutine.
type dapRequest struct {
	msg *Message
}

// Dispatcher is the per-backend-process DAP session: one dispatcher per
// loaded trace, fronting three workers that each own an independent
// replay.Engine over the same immutable trace.Db.
type Dispatcher struct {
	db *trace.Db

	seq int64 // atomically incremented; re-stamped onto every outbound message

	engines map[Worker]*replay.Engine
	in      map[Worker]chan dapRequest
	out     chan *Message

	mu                sync.Mutex
	launched          bool
	configurationDone bool

	wg sync.WaitGroup
}

// New creates a dispatcher over db. Each worker gets its own replay.Engine
// so a slow flow reconstruction on one thread never blocks stepping on
// another.
func New(db *trace.Db) *Dispatcher {
	d := &Dispatcher{
		db:  db,
		out: make(chan *Message, 64),
		engines: map[Worker]*replay.Engine{
			WorkerStable:     replay.New(db),
			WorkerFlow:       replay.New(db),
			WorkerTracepoint: replay.New(db),
		},
		in: map[Worker]chan dapRequest{
			WorkerStable:     make(chan dapRequest, 16),
			WorkerFlow:       make(chan dapRequest, 16),
			WorkerTracepoint: make(chan dapRequest, 16),
		},
	}
	return d
}

// Out is the single outbound stream; a connection-level writer goroutine
// drains it and frames each message with WriteMessage.
func (d *Dispatcher) Out() <-chan *Message { return d.out }

// Start launches the three worker goroutines. Cancelling ctx stops them;
// requests still queued on their inbound channels are not processed.
func (d *Dispatcher) Start(ctx context.Context) {
	for w, ch := range d.in {
		d.wg.Add(1)
		go d.runWorker(ctx, w, ch)
	}
}

// Wait blocks until all worker goroutines have exited (after ctx is done).
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) runWorker(ctx context.Context, w Worker, ch chan dapRequest) {
	defer d.wg.Done()
	engine := d.engines[w]
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-ch:
			resp, loc := d.handleCommand(w, engine, req.msg)
			if resp != nil {
				d.publish(resp)
			}
			if resp != nil && resp.Success {
				if evt, ok := eventAfterCommand[req.msg.Command]; ok {
					d.publish(&Message{Type: "event", Event: evt})
					if loc != nil {
						d.publishCompleteMove(*loc)
					}
				}
			}
		}
	}
}

// publish re-stamps seq atomically and pushes msg to the shared outbound
// channel, preserving single-writer discipline on the socket.
func (d *Dispatcher) publish(msg *Message) {
	msg.Seq = atomic.AddInt64(&d.seq, 1)
	d.out <- msg
}

// publishCompleteMove emits the complete-move extension event carrying
// the Location a navigation command just landed on. It always follows
// stopped for the same command, so clients that only understand DAP's
// stopped event still work; clients that want the new location without a
// follow-up stackTrace/evaluate round trip can read it straight off this
// event instead.
func (d *Dispatcher) publishCompleteMove(loc replay.Location) {
	body, err := json.Marshal(completeMoveBody{Location: loc})
	if err != nil {
		return
	}
	d.publish(&Message{Type: "event", Event: "complete-move", Body: body})
}

// Dispatch routes one inbound request. initialize/launch/configurationDone
// are handled inline and need no worker (each worker's Engine is built
// over the loaded trace in New); everything else goes to the worker the command table
// names. Unknown commands get an immediate failure response.
func (d *Dispatcher) Dispatch(msg *Message) {
	switch msg.Command {
	case "initialize":
		d.handleInitialize(msg)
		return
	case "launch":
		d.handleLaunch(msg)
		return
	case "configurationDone":
		d.handleConfigurationDone(msg)
		return
	}

	worker, ok := commandTable[msg.Command]
	if !ok {
		d.publish(&Message{
			Type:       "response",
			RequestSeq: msg.Seq,
			Success:    false,
			Message:    fmt.Sprintf("unknown command: %s", msg.Command),
		})
		return
	}
	d.in[worker] <- dapRequest{msg: msg}
}

func (d *Dispatcher) handleInitialize(msg *Message) {
	body, _ := json.Marshal(capabilities())
	d.publish(&Message{
		Type:       "response",
		RequestSeq: msg.Seq,
		Success:    true,
		Body:       body,
	})
	d.publish(&Message{Type: "event", Event: "initialized"})
}

func (d *Dispatcher) handleLaunch(msg *Message) {
	d.mu.Lock()
	d.launched = true
	d.mu.Unlock()

	d.publish(&Message{
		Type:       "response",
		RequestSeq: msg.Seq,
		Success:    true,
	})
}

func (d *Dispatcher) handleConfigurationDone(msg *Message) {
	d.mu.Lock()
	d.configurationDone = true
	d.mu.Unlock()
	d.publish(&Message{
		Type:       "response",
		RequestSeq: msg.Seq,
		Success:    true,
	})
	d.publish(&Message{
		Type:  "event",
		Event: "stopped",
	})
	d.publishCompleteMove(d.engines[WorkerStable].CurrentLocation())
}
