// Package stt provides continuous speech capture over a platform speech
// recognizer.
//
// The recognizer itself (browser Web Speech, OS dictation) lives outside the
// process and is reached through the Recognizer interface; Capture adds the
// utterance assembly, error mapping and hands-free restart policy on top.
package stt

import (
	"context"
	"errors"
)

// EventKind classifies a recognizer event.
type EventKind int

const (
	// Partial is a provisional transcript that supersedes the previous one.
	Partial EventKind = iota
	// FinalSegment is committed text for part of the current utterance.
	FinalSegment
	// UtteranceEnd marks the end of the current utterance.
	UtteranceEnd
)

func (k EventKind) String() string {
	switch k {
	case Partial:
		return "partial"
	case FinalSegment:
		return "final"
	case UtteranceEnd:
		return "utterance-end"
	default:
		return "unknown"
	}
}

// Event is one recognizer callback.
type Event struct {
	Kind EventKind
	Text string
}

// Recognition is one running recognition session.
type Recognition interface {
	// Events yields recognizer events and is closed when recognition ends.
	Events() <-chan Event
	// Err reports the terminal outcome once Events is closed. Nil means the
	// recognizer ended on its own.
	Err() error
}

// Recognizer starts continuous recognition with interim results in the given
// BCP-47 locale. Cancelling ctx stops recognition.
type Recognizer interface {
	Start(ctx context.Context, locale string) (Recognition, error)
}

// ErrPermissionDenied is reported when the user has not granted microphone
// access.
var ErrPermissionDenied = errors.New("microphone permission denied")

// Recognizer error codes with special meaning. Other codes pass through.
const (
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
	CodeAborted           = "aborted"
)

// RecognitionError carries a raw recognizer error code.
type RecognitionError struct {
	Code string
}

func (e *RecognitionError) Error() string {
	return "recognition error: " + e.Code
}

// ErrorFromCode maps a recognizer error code to an error value.
func ErrorFromCode(code string) error {
	switch code {
	case CodeNotAllowed, CodeServiceNotAllowed:
		return ErrPermissionDenied
	default:
		return &RecognitionError{Code: code}
	}
}

// normalize folds permission codes carried in a RecognitionError into
// ErrPermissionDenied.
func normalize(err error) error {
	var re *RecognitionError
	if errors.As(err, &re) {
		if mapped := ErrorFromCode(re.Code); errors.Is(mapped, ErrPermissionDenied) {
			return mapped
		}
	}
	return err
}
