// Package bridge carries the voice capabilities (recognition, synthesis and
// microphone permission) and UI events between the core and a client that
// owns the platform speech engines, such as a browser or a webview.
package bridge

import (
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/tts"
)

// Message types. Requests flow core to client, results client to core.
const (
	TypeRecognitionStart  = "recognition.start"
	TypeRecognitionStop   = "recognition.stop"
	TypeRecognitionResult = "recognition.result"
	TypeRecognitionError  = "recognition.error"
	TypeRecognitionEnd    = "recognition.end"

	TypeSynthesisSpeak  = "synthesis.speak"
	TypeSynthesisCancel = "synthesis.cancel"
	TypeSynthesisEnd    = "synthesis.end"
	TypeSynthesisError  = "synthesis.error"
	TypeSynthesisVoices = "synthesis.voices"

	TypePermissionRequest = "permission.request"
	TypePermissionResult  = "permission.result"

	// UI controls, client to core.
	TypeVoiceStart     = "voice.start"
	TypeVoiceEnd       = "voice.end"
	TypeChatSend       = "chat.send"
	TypeLanguageSelect = "language.select"

	// Session events, core to client.
	TypeVoiceState        = "voice.state"
	TypeTranscriptUser    = "transcript.user"
	TypeTranscriptInterim = "transcript.interim"
	TypeChatReply         = "chat.reply"
	TypeError             = "error"
)

// Message is the bridge envelope. Only the fields relevant to Type are set.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// recognition.start, language.select
	Locale   string `json:"locale,omitempty"`
	Language string `json:"language,omitempty"`

	// recognition.result carries the committed text of a finished utterance
	// in Text and the provisional transcript in Interim. chat.send and the
	// transcript events use Text.
	Text    string `json:"text,omitempty"`
	Interim string `json:"interim,omitempty"`

	// recognition.error, synthesis.error, error
	Code string `json:"code,omitempty"`

	// permission.result
	Granted bool `json:"granted,omitempty"`

	Utterance *tts.Utterance     `json:"utterance,omitempty"`
	Voices    []tts.Voice        `json:"voices,omitempty"`
	State     *types.StateChange `json:"state,omitempty"`
	Reply     *types.ChatResult  `json:"reply,omitempty"`
}

// IsControl reports whether t is a UI control message.
func IsControl(t string) bool {
	switch t {
	case TypeVoiceStart, TypeVoiceEnd, TypeChatSend, TypeLanguageSelect:
		return true
	}
	return false
}
