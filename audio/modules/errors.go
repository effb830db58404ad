package modules

import (
	"errors"
	"fmt"
)

// Kind classifies a session failure.
type Kind string

const (
	KindCaptureDevice  Kind = "capture_device"
	KindTranscription  Kind = "transcription"
	KindGeneration     Kind = "generation"
	KindSynthesis      Kind = "synthesis"
	KindPlaybackDevice Kind = "playback_device"
)

// ErrShutdown is returned by an utterance handler to end capture cleanly.
var ErrShutdown = errors.New("session shutdown requested")

type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap tags err with kind. An error that already carries a kind keeps it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: kind, Op: op, Cause: err}
}

// KindOf returns the kind of the first tagged error in the chain, or "".
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err ends the session: device failures do,
// collaborator failures degrade to silence.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindCaptureDevice, KindPlaybackDevice:
		return true
	}
	return false
}
