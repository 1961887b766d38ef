package daemon

import (
	"sync"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

// sessionPump fans a session's single Dispatcher.Out() stream out to every
// client connection currently routing requests to that session. The
// dispatcher itself has exactly one reader (this pump); a session can have
// many subscribers.
type sessionPump struct {
	mu          sync.Mutex
	subscribers map[int64]chan *dap.Message
}

func newSessionPump(out <-chan *dap.Message) *sessionPump {
	p := &sessionPump{subscribers: make(map[int64]chan *dap.Message)}
	go p.run(out)
	return p
}

func (p *sessionPump) run(out <-chan *dap.Message) {
	for msg := range out {
		p.mu.Lock()
		for _, ch := range p.subscribers {
			select {
			case ch <- msg:
			default:
				// A slow/disconnected client must never block the
				// shared backend stream for everyone else.
			}
		}
		p.mu.Unlock()
	}
}

func (p *sessionPump) subscribe(clientID int64) chan *dap.Message {
	ch := make(chan *dap.Message, 64)
	p.mu.Lock()
	p.subscribers[clientID] = ch
	p.mu.Unlock()
	return ch
}

func (p *sessionPump) unsubscribe(clientID int64) {
	p.mu.Lock()
	delete(p.subscribers, clientID)
	p.mu.Unlock()
}
