package voice

import (
	"sync"

	"go.aimuz.me/saathi/internal/types"
)

// Listener receives session events in order on a single goroutine.
// Callbacks may call back into the Orchestrator except for Close.
type Listener interface {
	StateChanged(types.StateChange)
	UserTranscript(text string)
	InterimTranscript(text string)
	AssistantReply(types.ChatResult)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnState   func(types.StateChange)
	OnUser    func(string)
	OnInterim func(string)
	OnReply   func(types.ChatResult)
}

func (f ListenerFuncs) StateChanged(c types.StateChange) {
	if f.OnState != nil {
		f.OnState(c)
	}
}

func (f ListenerFuncs) UserTranscript(text string) {
	if f.OnUser != nil {
		f.OnUser(text)
	}
}

func (f ListenerFuncs) InterimTranscript(text string) {
	if f.OnInterim != nil {
		f.OnInterim(text)
	}
}

func (f ListenerFuncs) AssistantReply(r types.ChatResult) {
	if f.OnReply != nil {
		f.OnReply(r)
	}
}

// dispatcher runs queued listener calls in order. post never blocks, so it
// may be used while holding other locks.
type dispatcher struct {
	l    Listener
	wake chan struct{}
	done chan struct{}

	mu     sync.Mutex
	queue  []func(Listener)
	closed bool
}

func newDispatcher(l Listener) *dispatcher {
	d := &dispatcher{
		l:    l,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) post(fn func(Listener)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		q, closed := d.queue, d.closed
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range q {
			fn(d.l)
		}
		if len(q) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

// close delivers everything already queued, then stops.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
