// Package tts speaks assistant replies through a platform speech
// synthesizer.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	"go.aimuz.me/saathi/internal/types"
)

// Defaults for Config.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultCancelGrace = 100 * time.Millisecond
	DefaultRate        = 0.9
	DefaultPitch       = 1.0
	DefaultVolume      = 1.0
)

var (
	// ErrTimeout is returned when an utterance does not settle in time.
	// Callers treat it as settled.
	ErrTimeout = errors.New("speech synthesis timed out")
	// ErrCancelled is returned when Cancel interrupts an utterance.
	ErrCancelled = errors.New("speech synthesis cancelled")
)

// SynthesisError carries a raw synthesizer error code.
type SynthesisError struct {
	Code string
}

func (e *SynthesisError) Error() string {
	return "synthesis error: " + e.Code
}

// Voice is a synthesizer voice.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// Utterance is one speak request. An empty Voice selects the synthesizer
// default.
type Utterance struct {
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Synthesizer is the platform speech engine.
type Synthesizer interface {
	// Voices lists installed voices; it may be empty until the engine has
	// loaded them.
	Voices() []Voice
	// Speaking reports whether the engine is producing audio.
	Speaking() bool
	// Speak queues u. The returned channel yields exactly one value when the
	// utterance ends: nil on completion or the engine error. ctx ending
	// releases the request without silencing the engine; Cancel does that.
	Speak(ctx context.Context, u Utterance) <-chan error
	// Cancel stops all speech.
	Cancel()
}

// Config configures a Speaker. Zero fields take the package defaults.
type Config struct {
	Timeout     time.Duration
	CancelGrace time.Duration
	Rate        float64
	Pitch       float64
	Volume      float64
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = DefaultCancelGrace
	}
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.Pitch <= 0 {
		c.Pitch = DefaultPitch
	}
	if c.Volume <= 0 {
		c.Volume = DefaultVolume
	}
}

// Speaker speaks one utterance at a time.
type Speaker struct {
	synth Synthesizer
	cfg   Config

	speaking atomic.Bool

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// NewSpeaker creates a Speaker over synth.
func NewSpeaker(synth Synthesizer, cfg Config) *Speaker {
	cfg.applyDefaults()
	return &Speaker{synth: synth, cfg: cfg}
}

// Speaking reports whether an utterance is in progress.
func (s *Speaker) Speaking() bool {
	return s.speaking.Load()
}

// Speak says text in lang and blocks until it settles. Blank text, or a
// call while already speaking, returns nil without speaking. On ErrTimeout
// the utterance keeps playing.
func (s *Speaker) Speak(ctx context.Context, text string, lang types.Language) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !s.speaking.CompareAndSwap(false, true) {
		slog.Debug("speak skipped, already speaking")
		return nil
	}
	defer s.speaking.Store(false)

	// ctx ends on Cancel or when the caller gives up; wait also ends when the
	// timeout fires, which only stops the waiting.
	ctx, cancel := context.WithCancelCause(ctx)
	wait, stop := context.WithTimeoutCause(ctx, s.cfg.Timeout, ErrTimeout)
	defer stop()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel(nil)
	}()

	if s.synth.Speaking() {
		s.synth.Cancel()
		select {
		case <-time.After(s.cfg.CancelGrace):
		case <-wait.Done():
			return settleErr(wait)
		}
	}

	u := Utterance{
		Text:   text,
		Lang:   lang.Locale(),
		Voice:  PickVoice(s.synth.Voices(), lang).Name,
		Rate:   s.cfg.Rate,
		Pitch:  s.cfg.Pitch,
		Volume: s.cfg.Volume,
	}

	select {
	case err := <-s.synth.Speak(ctx, u):
		if err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		return nil
	case <-wait.Done():
		err := settleErr(wait)
		if !errors.Is(err, ErrTimeout) {
			s.synth.Cancel()
		}
		return err
	}
}

// Cancel interrupts the utterance in progress, if any, and silences the
// synthesizer.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel(ErrCancelled)
	}
	s.synth.Cancel()
}

func settleErr(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

// PickVoice returns the first voice whose primary language subtag matches
// lang, or the zero Voice when none does.
func PickVoice(voices []Voice, lang types.Language) Voice {
	want, _ := lang.Tag().Base()
	for _, v := range voices {
		if primary(v.Lang) == want {
			return v
		}
	}
	return Voice{}
}

func primary(tag string) language.Base {
	t, err := language.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil {
		b, _ := language.ParseBase(strings.SplitN(tag, "-", 2)[0])
		return b
	}
	b, _ := t.Base()
	return b
}
