package modules

import (
	"strings"
	"sync"
	"time"
)

// Classification is the SilenceGate verdict for one block.
type Classification int

const (
	Silence Classification = iota
	Speech
)

func (c Classification) String() string {
	if c == Speech {
		return "speech"
	}
	return "silence"
}

// SessionState is the controller's position in the conversation loop.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateCapturing
	StateTranscribing
	StateSpeaking
	StateShutdown
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateSpeaking:
		return "speaking"
	case StateShutdown:
		return "shutdown"
	}
	return "unknown"
}

type StateTransition struct {
	From      SessionState
	To        SessionState
	Reason    string
	Timestamp time.Time
}

// Outcome is how a playback run ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeInterrupted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Utterance is one span of speech closed by a silence run.
type Utterance struct {
	ID      string
	Samples []float32
	Blocks  int
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

// History is the ordered conversation. Only the last assistant turn ever
// changes after it is appended.
type History struct {
	mu    sync.Mutex
	turns []Turn
}

func (h *History) Append(role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{Role: role, Content: content})
}

// Extend appends fragment to the most recent turn if it belongs to the
// assistant. It reports whether anything was appended.
func (h *History) Extend(fragment string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.turns)
	if n == 0 || h.turns[n-1].Role != RoleAssistant {
		return false
	}
	h.turns[n-1].Content += fragment
	return true
}

// Turns returns a copy of the conversation so far.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// MatchesExitPhrase reports whether text contains phrase, ignoring case.
// This is a plain substring test: with phrase "bye", "goodbye" matches too.
func MatchesExitPhrase(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), phrase)
}
