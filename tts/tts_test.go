package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.aimuz.me/saathi/internal/types"
)

// fakeSynth finishes utterances according to mode.
type fakeSynth struct {
	voices []Voice
	mode   string // "ok", "error", "hang"

	busy    atomic.Bool
	cancels atomic.Int32

	mu     sync.Mutex
	spoken []Utterance
	begun  chan struct{}
}

func (f *fakeSynth) Voices() []Voice { return f.voices }
func (f *fakeSynth) Speaking() bool  { return f.busy.Load() }

func (f *fakeSynth) Speak(ctx context.Context, u Utterance) <-chan error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()

	done := make(chan error, 1)
	switch f.mode {
	case "error":
		done <- &SynthesisError{Code: "synthesis-failed"}
	case "hang":
		f.busy.Store(true)
		if f.begun != nil {
			close(f.begun)
		}
	default:
		done <- nil
	}
	return done
}

func (f *fakeSynth) Cancel() {
	f.cancels.Add(1)
	f.busy.Store(false)
}

func (f *fakeSynth) utterances() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}

func TestSpeakUtterance(t *testing.T) {
	synth := &fakeSynth{voices: []Voice{
		{Name: "Samantha", Lang: "en-US", Default: true},
		{Name: "Lekha", Lang: "hi-IN"},
		{Name: "Lekha Enhanced", Lang: "hi_IN"},
	}}
	s := NewSpeaker(synth, Config{})

	if err := s.Speak(context.Background(), "  नमस्ते  ", types.Hindi); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	want := []Utterance{{Text: "नमस्ते", Lang: "hi-IN", Voice: "Lekha", Rate: 0.9, Pitch: 1, Volume: 1}}
	if diff := cmp.Diff(want, synth.utterances()); diff != "" {
		t.Errorf("utterances mismatch (-want +got):\n%s", diff)
	}
	if s.Speaking() {
		t.Error("speaking flag not cleared")
	}
}

func TestPickVoice(t *testing.T) {
	voices := []Voice{
		{Name: "Rishi", Lang: "en-IN"},
		{Name: "Vani", Lang: "ta-IN"},
		{Name: "Odd", Lang: "not a tag"},
	}
	tests := []struct {
		lang types.Language
		want string
	}{
		{types.English, "Rishi"},
		{types.Tamil, "Vani"},
		{types.Bengali, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			if got := PickVoice(voices, tt.lang).Name; got != tt.want {
				t.Errorf("PickVoice = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpeakNoops(t *testing.T) {
	synth := &fakeSynth{}
	s := NewSpeaker(synth, Config{})

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := s.Speak(context.Background(), text, types.English); err != nil {
			t.Errorf("Speak(%q) = %v", text, err)
		}
	}
	if n := len(synth.utterances()); n != 0 {
		t.Errorf("blank text produced %d utterances", n)
	}
}

func TestSpeakWhileSpeakingIsNoop(t *testing.T) {
	synth := &fakeSynth{mode: "hang", begun: make(chan struct{})}
	s := NewSpeaker(synth, Config{Timeout: time.Second})

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "first", types.English) }()
	<-synth.begun

	if err := s.Speak(context.Background(), "second", types.English); err != nil {
		t.Errorf("second Speak = %v", err)
	}
	if n := len(synth.utterances()); n != 1 {
		t.Errorf("utterances = %d, want 1", n)
	}

	s.Cancel()
	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Errorf("first Speak = %v, want ErrCancelled", err)
	}
}

func TestSpeakTimeout(t *testing.T) {
	synth := &fakeSynth{mode: "hang"}
	s := NewSpeaker(synth, Config{Timeout: 20 * time.Millisecond})

	err := s.Speak(context.Background(), "hello", types.English)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Speak = %v, want ErrTimeout", err)
	}
	if s.Speaking() {
		t.Error("speaking flag stuck after timeout")
	}
	if n := synth.cancels.Load(); n != 0 {
		t.Errorf("cancels = %d, want 0: timeout must not silence the utterance", n)
	}
	if !synth.Speaking() {
		t.Error("utterance stopped on timeout")
	}
}

func TestSpeakError(t *testing.T) {
	s := NewSpeaker(&fakeSynth{mode: "error"}, Config{})

	err := s.Speak(context.Background(), "hello", types.English)
	var se *SynthesisError
	if !errors.As(err, &se) || se.Code != "synthesis-failed" {
		t.Fatalf("Speak = %v", err)
	}
	if s.Speaking() {
		t.Error("speaking flag stuck after error")
	}
}

func TestSpeakCancelsBusySynthesizer(t *testing.T) {
	synth := &fakeSynth{}
	synth.busy.Store(true)
	s := NewSpeaker(synth, Config{CancelGrace: 5 * time.Millisecond})

	if err := s.Speak(context.Background(), "hello", types.English); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if synth.cancels.Load() != 1 {
		t.Errorf("cancels = %d, want 1", synth.cancels.Load())
	}
}

func TestSpeakContextCancelled(t *testing.T) {
	synth := &fakeSynth{mode: "hang"}
	s := NewSpeaker(synth, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := s.Speak(ctx, "hello", types.English); !errors.Is(err, context.Canceled) {
		t.Errorf("Speak = %v, want context.Canceled", err)
	}
	if n := synth.cancels.Load(); n != 1 {
		t.Errorf("cancels = %d, want 1", n)
	}
}
