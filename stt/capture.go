package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultRestartDelay is the pause before listening resumes on its own.
const DefaultRestartDelay = time.Second

// State is the capture state.
type State int

const (
	Stopped State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "stopped"
}

// Gate reports session conditions that block capture. Implementations must
// not call back into Capture.
type Gate interface {
	// Speaking reports whether speech output is playing.
	Speaking() bool
	// KeepListening reports whether hands-free listening is wanted.
	KeepListening() bool
	// TurnInFlight reports whether a chat turn is being processed.
	TurnInFlight() bool
}

// Handler receives capture output. Callbacks run on capture goroutines and
// never while Capture holds its lock, so they may call Start or Stop.
type Handler interface {
	OnListening()
	OnInterim(text string)
	OnFinal(text string)
	OnError(err error)
	OnEnded()
}

// Config configures a Capture.
type Config struct {
	RestartDelay time.Duration
}

// Capture wraps a Recognizer with utterance assembly and the restart policy.
type Capture struct {
	rec     Recognizer
	gate    Gate
	handler Handler
	cfg     Config

	mu      sync.Mutex
	state   State
	locale  string
	gen     uint64 // bumped by every Start and Stop
	cancel  context.CancelFunc
	restart *time.Timer
}

// NewCapture creates a stopped Capture.
func NewCapture(rec Recognizer, gate Gate, handler Handler, cfg Config) *Capture {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	return &Capture{rec: rec, gate: gate, handler: handler, cfg: cfg}
}

// State returns the current capture state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins listening in locale. It is a no-op while already listening
// or while speech output is playing.
func (c *Capture) Start(locale string) error {
	if c.gate.Speaking() {
		slog.Debug("capture start skipped while speaking")
		return nil
	}

	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		return nil
	}
	c.stopRestartLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.gen++
	gen := c.gen
	c.state = Listening
	c.locale = locale
	c.cancel = cancel
	c.mu.Unlock()

	r, err := c.rec.Start(ctx, locale)
	if err != nil {
		cancel()
		c.mu.Lock()
		if c.gen == gen {
			c.state = Stopped
			c.cancel = nil
		}
		c.mu.Unlock()
		return fmt.Errorf("start recognition: %w", normalize(err))
	}

	go c.run(gen, r)

	if c.current(gen) {
		c.handler.OnListening()
	}
	return nil
}

// Stop ends listening and cancels any pending restart. Output of the
// stopped recognition is discarded.
func (c *Capture) Stop() {
	c.mu.Lock()
	c.gen++
	c.stopRestartLocked()
	cancel := c.cancel
	c.cancel = nil
	c.state = Stopped
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Capture) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Capture) stopRestartLocked() {
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
}

// run consumes one recognition until it ends.
func (c *Capture) run(gen uint64, r Recognition) {
	var final strings.Builder
	flush := func() {
		text := strings.TrimSpace(final.String())
		final.Reset()
		if text != "" && c.current(gen) {
			c.handler.OnFinal(text)
		}
	}

	for ev := range r.Events() {
		if !c.current(gen) {
			continue // drain
		}
		switch ev.Kind {
		case Partial:
			if ev.Text != "" {
				c.handler.OnInterim(ev.Text)
			}
		case FinalSegment:
			if final.Len() > 0 {
				final.WriteByte(' ')
			}
			final.WriteString(strings.TrimSpace(ev.Text))
		case UtteranceEnd:
			flush()
		}
	}

	err := r.Err()
	if err == nil {
		flush()
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = Stopped
	c.cancel = nil
	c.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		var re *RecognitionError
		if errors.As(err, &re) && re.Code == CodeAborted {
			slog.Debug("recognition aborted")
		} else {
			c.handler.OnError(normalize(err))
			return
		}
	}

	c.handler.OnEnded()
	c.scheduleRestart(gen)
}

func (c *Capture) shouldRestart() bool {
	return c.gate.KeepListening() && !c.gate.Speaking() && !c.gate.TurnInFlight()
}

// scheduleRestart re-arms listening after the restart delay when the gate
// allows it, both now and when the timer fires.
func (c *Capture) scheduleRestart(gen uint64) {
	if !c.shouldRestart() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != Stopped {
		return
	}
	locale := c.locale
	c.restart = time.AfterFunc(c.cfg.RestartDelay, func() {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.restart = nil
		c.mu.Unlock()

		if !c.shouldRestart() {
			return
		}
		if err := c.Start(locale); err != nil {
			c.handler.OnError(err)
		}
	})
}
