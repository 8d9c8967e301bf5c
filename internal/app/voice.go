package app

import (
	"context"
	"errors"
	"sync"

	"go.aimuz.me/saathi/bridge"
	"go.aimuz.me/saathi/chat"
	"go.aimuz.me/saathi/internal/assistant"
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/voice"
)

// ErrVoiceNotReady is returned before Init has run.
var ErrVoiceNotReady = errors.New("voice session not initialized")

// VoiceAdapter owns the desktop's single voice session with proper
// synchronization. The webview runs the speech engines, so every capability
// goes over a bridge carried by Wails events.
type VoiceAdapter struct {
	mu      sync.RWMutex
	session *bridge.Session
	chat    *chat.Session
}

// Init creates the session, replacing any existing one. Messages for the
// webview are passed to send.
func (va *VoiceAdapter) Init(a *assistant.Assistant, send func(bridge.Message) error) {
	va.mu.Lock()
	defer va.mu.Unlock()

	if va.session != nil {
		va.session.Close()
	}

	cs := a.NewSession()
	va.chat = cs
	va.session = bridge.NewSession(bridge.TransportFunc(send), func(d voice.Deps) *voice.Orchestrator {
		d.Chat = cs
		return a.NewVoice(d, a.Config().Voice.DefaultLanguage)
	})
}

func (va *VoiceAdapter) current() (*bridge.Session, *chat.Session) {
	va.mu.RLock()
	defer va.mu.RUnlock()
	return va.session, va.chat
}

// Handle delivers a message from the webview.
func (va *VoiceAdapter) Handle(msg bridge.Message) error {
	s, _ := va.current()
	if s == nil {
		return ErrVoiceNotReady
	}
	return s.Handle(msg)
}

// Start begins a hands-free voice chat.
func (va *VoiceAdapter) Start(ctx context.Context) error {
	s, _ := va.current()
	if s == nil {
		return ErrVoiceNotReady
	}
	return s.Voice().StartVoiceChat(ctx)
}

// End stops the voice chat. Safe to call at any time.
func (va *VoiceAdapter) End() {
	if s, _ := va.current(); s != nil {
		s.Voice().EndVoiceChat()
	}
}

// State returns the current state, Ready when there is no session.
func (va *VoiceAdapter) State() types.VoiceState {
	s, _ := va.current()
	if s == nil {
		return types.VoiceReady
	}
	return s.Voice().State()
}

// Starting reports whether a start is waiting for microphone permission.
func (va *VoiceAdapter) Starting() bool {
	s, _ := va.current()
	return s != nil && s.Voice().Starting()
}

// SendText runs a typed message through the shared conversation.
func (va *VoiceAdapter) SendText(ctx context.Context, text string) types.ChatResult {
	s, _ := va.current()
	if s == nil {
		return types.ChatResult{IsError: true, Reply: ErrVoiceNotReady.Error()}
	}
	return s.Voice().SendText(ctx, text)
}

// SetLanguage switches the session language.
func (va *VoiceAdapter) SetLanguage(lang types.Language) error {
	s, _ := va.current()
	if s == nil {
		return ErrVoiceNotReady
	}
	return s.Voice().SetLanguage(lang)
}

// History returns the conversation so far.
func (va *VoiceAdapter) History() []types.Turn {
	if _, cs := va.current(); cs != nil {
		return cs.History()
	}
	return nil
}

// Reset forgets the conversation.
func (va *VoiceAdapter) Reset() {
	if _, cs := va.current(); cs != nil {
		cs.Reset()
	}
}

// Close ends the session.
func (va *VoiceAdapter) Close() {
	va.mu.Lock()
	defer va.mu.Unlock()
	if va.session != nil {
		va.session.Close()
		va.session = nil
		va.chat = nil
	}
}
