// Package voice coordinates speech capture, the chat session and speech
// output into a hands-free voice conversation.
package voice

import "go.aimuz.me/saathi/internal/types"

// State is the voice session state.
type State = types.VoiceState

const (
	Ready      = types.VoiceReady
	Listening  = types.VoiceListening
	Processing = types.VoiceProcessing
	Speaking   = types.VoiceSpeaking
	Error      = types.VoiceError
)

// Event drives a state transition.
type Event int

const (
	Listen Event = iota
	PermissionDenied
	FinalTranscript
	CaptureEnded
	Reply
	SpeechSettled
	Failure
	Recover
	End
)

var eventNames = [...]string{
	Listen:           "listen",
	PermissionDenied: "permission-denied",
	FinalTranscript:  "final-transcript",
	CaptureEnded:     "capture-ended",
	Reply:            "reply",
	SpeechSettled:    "speech-settled",
	Failure:          "failure",
	Recover:          "recover",
	End:              "end",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// Transition returns the state that follows s on e, and false when e is
// not accepted in s.
func Transition(s State, e Event) (State, bool) {
	switch e {
	case Failure:
		return Error, true
	case End:
		return Ready, true
	}

	switch s {
	case Ready:
		switch e {
		case Listen:
			return Listening, true
		case PermissionDenied:
			return Error, true
		}
	case Listening:
		switch e {
		case FinalTranscript:
			return Processing, true
		case CaptureEnded:
			return Ready, true
		}
	case Processing:
		if e == Reply {
			return Speaking, true
		}
	case Speaking:
		if e == SpeechSettled {
			return Ready, true
		}
	case Error:
		if e == Recover {
			return Ready, true
		}
	}
	return s, false
}
