package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/stt"
	"go.aimuz.me/saathi/tts"
)

// Transport delivers messages to the client. Send must be safe for
// concurrent use.
type Transport interface {
	Send(msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(Message) error

func (f TransportFunc) Send(msg Message) error { return f(msg) }

// Synthesis error codes reported when speech was interrupted rather than
// failed.
var interruptCodes = map[string]bool{"interrupted": true, "canceled": true}

// Bridge implements stt.Recognizer, tts.Synthesizer and the microphone
// permission gate over a Transport, and forwards session events to the
// client. Client messages are fed in through Handle.
type Bridge struct {
	t Transport

	controls chan Message
	once     sync.Once

	mu          sync.Mutex
	closed      bool
	recognition *recognition
	speeches    map[string]chan error
	permissions map[string]chan bool
	voices      []tts.Voice
}

// New creates a Bridge over t.
func New(t Transport) *Bridge {
	return &Bridge{
		t:           t,
		controls:    make(chan Message, 16),
		speeches:    make(map[string]chan error),
		permissions: make(map[string]chan bool),
	}
}

// OnControl runs fn for each UI control message, in order, on its own
// goroutine so that a control may wait on later client messages. Only the
// first call has effect.
func (b *Bridge) OnControl(fn func(Message)) {
	b.once.Do(func() {
		go func() {
			for msg := range b.controls {
				fn(msg)
			}
		}()
	})
}

// Handle processes one message from the client.
func (b *Bridge) Handle(msg Message) error {
	switch msg.Type {
	case TypeRecognitionResult:
		if r := b.currentRecognition(msg.ID); r != nil {
			if msg.Interim != "" {
				r.push(stt.Event{Kind: stt.Partial, Text: msg.Interim})
			}
			if msg.Text != "" {
				r.push(stt.Event{Kind: stt.FinalSegment, Text: msg.Text})
				r.push(stt.Event{Kind: stt.UtteranceEnd})
			}
		}
	case TypeRecognitionError:
		if r := b.endRecognition(msg.ID); r != nil {
			r.finish(stt.ErrorFromCode(msg.Code))
		}
	case TypeRecognitionEnd:
		if r := b.endRecognition(msg.ID); r != nil {
			r.finish(nil)
		}

	case TypeSynthesisEnd:
		b.resolveSpeech(msg.ID, nil)
	case TypeSynthesisError:
		var err error = &tts.SynthesisError{Code: msg.Code}
		if interruptCodes[msg.Code] {
			err = tts.ErrCancelled
		}
		b.resolveSpeech(msg.ID, err)
	case TypeSynthesisVoices:
		b.mu.Lock()
		b.voices = msg.Voices
		b.mu.Unlock()

	case TypePermissionResult:
		b.mu.Lock()
		ch, ok := b.permissions[msg.ID]
		delete(b.permissions, msg.ID)
		b.mu.Unlock()
		if ok {
			ch <- msg.Granted
		}

	default:
		if !IsControl(msg.Type) {
			return fmt.Errorf("unknown message type %q", msg.Type)
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return errors.New("bridge closed")
		}
		select {
		case b.controls <- msg:
		default:
			return fmt.Errorf("control queue full, dropping %s", msg.Type)
		}
	}
	return nil
}

// Close ends any running recognition and fails pending requests.
func (b *Bridge) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.controls)
	}
	r := b.recognition
	b.recognition = nil
	speeches, permissions := b.speeches, b.permissions
	b.speeches = make(map[string]chan error)
	b.permissions = make(map[string]chan bool)
	b.mu.Unlock()

	if r != nil {
		r.finish(context.Canceled)
	}
	for _, ch := range speeches {
		ch <- tts.ErrCancelled
	}
	for _, ch := range permissions {
		ch <- false
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// stt.Recognizer
// ─────────────────────────────────────────────────────────────────────────────

type recognition struct {
	id     string
	events chan stt.Event
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

func (r *recognition) Events() <-chan stt.Event { return r.events }

func (r *recognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recognition) push(ev stt.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *recognition) finish(err error) {
	r.once.Do(func() {
		close(r.done)
		r.mu.Lock()
		r.err = err
		r.closed = true
		close(r.events)
		r.mu.Unlock()
	})
}

// Start asks the client to begin continuous recognition in locale. A
// recognition that is still running is ended first.
func (b *Bridge) Start(ctx context.Context, locale string) (stt.Recognition, error) {
	r := &recognition{
		id:     uuid.NewString(),
		events: make(chan stt.Event, 32),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	prev := b.recognition
	b.recognition = r
	b.mu.Unlock()
	if prev != nil {
		prev.finish(context.Canceled)
	}

	if err := b.t.Send(Message{Type: TypeRecognitionStart, ID: r.id, Locale: locale}); err != nil {
		b.endRecognition(r.id)
		return nil, fmt.Errorf("send recognition start: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			if b.endRecognition(r.id) != nil {
				if err := b.t.Send(Message{Type: TypeRecognitionStop, ID: r.id}); err != nil {
					slog.Debug("send recognition stop", "error", err)
				}
			}
			r.finish(ctx.Err())
		case <-r.done:
		}
	}()
	return r, nil
}

func (b *Bridge) currentRecognition(id string) *recognition {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recognition == nil || b.recognition.id != id {
		return nil
	}
	return b.recognition
}

// endRecognition detaches the recognition with id, if it is current.
func (b *Bridge) endRecognition(id string) *recognition {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.recognition
	if r == nil || r.id != id {
		return nil
	}
	b.recognition = nil
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// tts.Synthesizer
// ─────────────────────────────────────────────────────────────────────────────

// Voices returns the voices last reported by the client.
func (b *Bridge) Voices() []tts.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voices
}

// Speaking reports whether an utterance is outstanding on the client.
func (b *Bridge) Speaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.speeches) > 0
}

// Speak asks the client to say u.
func (b *Bridge) Speak(ctx context.Context, u tts.Utterance) <-chan error {
	id := uuid.NewString()
	done := make(chan error, 1)

	b.mu.Lock()
	b.speeches[id] = done
	b.mu.Unlock()

	if err := b.t.Send(Message{Type: TypeSynthesisSpeak, ID: id, Utterance: &u}); err != nil {
		b.resolveSpeech(id, fmt.Errorf("send synthesis request: %w", err))
		return done
	}

	// Releases the request only; the client keeps speaking until Cancel.
	go func() {
		<-ctx.Done()
		b.resolveSpeech(id, context.Cause(ctx))
	}()
	return done
}

// Cancel asks the client to stop all speech.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	speeches := b.speeches
	b.speeches = make(map[string]chan error)
	b.mu.Unlock()

	for _, ch := range speeches {
		ch <- tts.ErrCancelled
	}
	if err := b.t.Send(Message{Type: TypeSynthesisCancel}); err != nil {
		slog.Debug("send synthesis cancel", "error", err)
	}
}

func (b *Bridge) resolveSpeech(id string, err error) {
	b.mu.Lock()
	ch, ok := b.speeches[id]
	delete(b.speeches, id)
	b.mu.Unlock()
	if ok {
		ch <- err
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// voice.PermissionGate
// ─────────────────────────────────────────────────────────────────────────────

// RequestMicrophone asks the client for microphone access and waits for
// the answer.
func (b *Bridge) RequestMicrophone(ctx context.Context) (bool, error) {
	id := uuid.NewString()
	ch := make(chan bool, 1)

	b.mu.Lock()
	b.permissions[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.permissions, id)
		b.mu.Unlock()
	}()

	if err := b.t.Send(Message{Type: TypePermissionRequest, ID: id}); err != nil {
		return false, fmt.Errorf("send permission request: %w", err)
	}

	select {
	case granted := <-ch:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// voice.Listener
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bridge) StateChanged(c types.StateChange) {
	b.emit(Message{Type: TypeVoiceState, State: &c})
}

func (b *Bridge) UserTranscript(text string) {
	b.emit(Message{Type: TypeTranscriptUser, Text: text})
}

func (b *Bridge) InterimTranscript(text string) {
	b.emit(Message{Type: TypeTranscriptInterim, Text: text})
}

func (b *Bridge) AssistantReply(r types.ChatResult) {
	b.emit(Message{Type: TypeChatReply, Reply: &r})
}

// SendError reports a failed control request to the client.
func (b *Bridge) SendError(id string, err error) {
	code := err.Error()
	var re *stt.RecognitionError
	if errors.As(err, &re) {
		code = re.Code
	}
	b.emit(Message{Type: TypeError, ID: id, Code: code})
}

func (b *Bridge) emit(msg Message) {
	if err := b.t.Send(msg); err != nil {
		slog.Warn("bridge send failed", "type", msg.Type, "error", err)
	}
}
