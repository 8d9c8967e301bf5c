package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/voice"
)

// Session couples a Bridge with the orchestrator it serves and answers the
// client's UI controls.
type Session struct {
	*Bridge
	voice *voice.Orchestrator
}

// NewSession creates a bridge over t. newVoice receives deps with the bridge
// filled in as recognizer, synthesizer, permission gate and listener.
func NewSession(t Transport, newVoice func(voice.Deps) *voice.Orchestrator) *Session {
	b := New(t)
	s := &Session{
		Bridge: b,
		voice: newVoice(voice.Deps{
			Recognizer:  b,
			Synthesizer: b,
			Permission:  b,
			Listener:    b,
		}),
	}
	b.OnControl(s.control)
	return s
}

// Voice returns the orchestrator.
func (s *Session) Voice() *voice.Orchestrator {
	return s.voice
}

// Handle processes one client message. voice.end skips the control queue
// so it takes effect while an earlier control waits on the client.
func (s *Session) Handle(msg Message) error {
	if msg.Type == TypeVoiceEnd {
		s.voice.EndVoiceChat()
		return nil
	}
	return s.Bridge.Handle(msg)
}

// Close releases pending client requests, then ends the voice session.
func (s *Session) Close() {
	s.Bridge.Close()
	s.voice.Close()
}

func (s *Session) control(msg Message) {
	ctx := context.Background()
	var err error

	switch msg.Type {
	case TypeVoiceStart:
		err = s.voice.StartVoiceChat(ctx)
		if errors.Is(err, voice.ErrStartAborted) {
			return
		}
	case TypeVoiceEnd:
		s.voice.EndVoiceChat()
	case TypeChatSend:
		s.voice.SendText(ctx, msg.Text)
	case TypeLanguageSelect:
		lang, ok := types.ParseLanguage(msg.Language)
		if !ok {
			err = fmt.Errorf("unsupported language %q", msg.Language)
			break
		}
		err = s.voice.SetLanguage(lang)
	}
	if err == nil {
		return
	}

	// Denial is already reported through voice.state.
	if !errors.Is(err, voice.ErrPermissionDenied) {
		slog.Warn("voice control failed", "type", msg.Type, "error", err)
	}
	s.SendError(msg.ID, err)
}
