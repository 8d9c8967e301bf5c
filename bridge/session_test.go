package bridge

import (
	"context"
	"testing"
	"time"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/voice"
)

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	chat := chatFunc(func(_ context.Context, m string, l types.Language) types.ChatResult {
		return types.ChatResult{Reply: "re: " + m, Language: l}
	})
	s := NewSession(ft, func(d voice.Deps) *voice.Orchestrator {
		d.Chat = chat
		return voice.New(d, voice.Config{Language: types.Hindi})
	})
	t.Cleanup(s.Close)
	return s, ft
}

func TestSessionVoiceControls(t *testing.T) {
	s, ft := newTestSession(t)

	if err := s.Handle(Message{Type: TypeVoiceStart, ID: "c1"}); err != nil {
		t.Fatal(err)
	}
	req := ft.next(t, TypePermissionRequest)
	if err := s.Handle(Message{Type: TypePermissionResult, ID: req.ID, Granted: true}); err != nil {
		t.Fatal(err)
	}
	if start := ft.next(t, TypeRecognitionStart); start.Locale != "hi-IN" {
		t.Errorf("locale = %q", start.Locale)
	}

	if err := s.Handle(Message{Type: TypeLanguageSelect, ID: "c2", Language: "ta"}); err != nil {
		t.Fatal(err)
	}
	if start := ft.next(t, TypeRecognitionStart); start.Locale != "ta-IN" {
		t.Errorf("locale after select = %q", start.Locale)
	}
	if got := s.Voice().Language(); got != types.Tamil {
		t.Errorf("language = %q", got)
	}

	if err := s.Handle(Message{Type: TypeVoiceEnd, ID: "c3"}); err != nil {
		t.Fatal(err)
	}
	ft.next(t, TypeRecognitionStop)
}

func TestSessionChatSend(t *testing.T) {
	s, ft := newTestSession(t)

	if err := s.Handle(Message{Type: TypeChatSend, ID: "c1", Text: "budget"}); err != nil {
		t.Fatal(err)
	}
	got := ft.await(t, TypeTranscriptUser, TypeChatReply)
	if got[TypeTranscriptUser].Text != "budget" {
		t.Errorf("user transcript = %q", got[TypeTranscriptUser].Text)
	}
	if r := got[TypeChatReply].Reply; r == nil || r.Reply != "re: budget" {
		t.Errorf("reply = %+v", r)
	}
}

func TestSessionControlErrors(t *testing.T) {
	s, ft := newTestSession(t)

	if err := s.Handle(Message{Type: TypeLanguageSelect, ID: "bad", Language: "fr"}); err != nil {
		t.Fatal(err)
	}
	if msg := ft.next(t, TypeError); msg.ID != "bad" {
		t.Errorf("error id = %q", msg.ID)
	}

	if err := s.Handle(Message{Type: TypeVoiceStart, ID: "denied"}); err != nil {
		t.Fatal(err)
	}
	req := ft.next(t, TypePermissionRequest)
	if err := s.Handle(Message{Type: TypePermissionResult, ID: req.ID, Granted: false}); err != nil {
		t.Fatal(err)
	}
	if msg := ft.next(t, TypeError); msg.ID != "denied" {
		t.Errorf("error id = %q", msg.ID)
	}
	if st := s.Voice().State(); st != voice.Ready {
		t.Errorf("state after denial = %s", st)
	}
}

func TestSessionEndAbandonsUnansweredStart(t *testing.T) {
	s, ft := newTestSession(t)

	if err := s.Handle(Message{Type: TypeVoiceStart, ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	ft.next(t, TypePermissionRequest)

	// The client never answers; end and a typed message still go through.
	if err := s.Handle(Message{Type: TypeVoiceEnd, ID: "e1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Handle(Message{Type: TypeChatSend, ID: "c1", Text: "savings"}); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(time.Second)
	for {
		var msg Message
		select {
		case msg = <-ft.sent:
		case <-timeout:
			t.Fatal("no chat reply while start was unanswered")
		}
		if msg.Type == TypeError {
			t.Fatalf("unexpected error message %+v", msg)
		}
		if msg.Type == TypeChatReply {
			if msg.Reply == nil || msg.Reply.Reply != "re: savings" {
				t.Errorf("reply = %+v", msg.Reply)
			}
			break
		}
	}
	if s.Voice().Starting() {
		t.Error("start still pending after voice.end")
	}

	if err := s.Handle(Message{Type: TypeVoiceStart, ID: "s2"}); err != nil {
		t.Fatal(err)
	}
	req := ft.next(t, TypePermissionRequest)
	if err := s.Handle(Message{Type: TypePermissionResult, ID: req.ID, Granted: true}); err != nil {
		t.Fatal(err)
	}
	ft.next(t, TypeRecognitionStart)
}
