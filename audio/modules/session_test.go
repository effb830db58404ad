package modules

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	src         *fakeSource
	stt         *fakeTranscriber
	dialogue    *fakeDialogue
	synth       *fakeSynth
	sink        *fakeSink
	console     *bytes.Buffer
	transitions []StateTransition
	ctrl        *Controller
}

func newHarness(t *testing.T, script [][]float32, prober Prober) (*harness, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	h := &harness{
		src:      &fakeSource{blocks: script, onEmpty: cancel},
		stt:      &fakeTranscriber{},
		dialogue: &fakeDialogue{},
		synth:    &fakeSynth{rate: 24000, chunksPer: 2},
		sink:     &fakeSink{},
		console:  &bytes.Buffer{},
	}
	log := zaptest.NewLogger(t).Sugar()
	player := NewPlaybackSession(&fakeSinkOpener{sink: h.sink}, h.synth, prober, log)
	h.ctrl = NewController(ControllerConfig{
		Capture:      testCaptureConfig(),
		ExitPhrase:   "bye",
		PollInterval: 5 * time.Millisecond,
		Segmenter:    SegmenterConfig{MinLength: 1},
	}, Dependencies{
		Source:      h.src,
		Transcriber: h.stt,
		Dialogue:    h.dialogue,
		Player:      player,
		Console:     h.console,
	}, log)
	h.ctrl.OnTransition(func(tr StateTransition) {
		h.transitions = append(h.transitions, tr)
	})
	return h, ctx
}

func (h *harness) states() []SessionState {
	out := []SessionState{}
	for _, tr := range h.transitions {
		out = append(out, tr.To)
	}
	return out
}

func oneUtterance() [][]float32 { return blocks(4, 3, true, 3, false) }

func TestControllerFullTurn(t *testing.T) {
	h, ctx := newHarness(t, oneUtterance(), nil)
	h.stt.texts = []string{" What time is it? "}
	h.dialogue.fragments = []string{"It is ", "noon. ", "Anything else?"}

	require.NoError(t, h.ctrl.Run(ctx))

	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "What time is it?"},
		{Role: RoleAssistant, Content: "It is noon. Anything else?"},
	}, h.ctrl.History())
	assert.Equal(t, []string{"It is noon.", "Anything else?"}, h.synth.synthesized)
	assert.Len(t, h.sink.chunks, 4)
	assert.Equal(t, []SessionState{StateCapturing, StateTranscribing, StateSpeaking, StateCapturing, StateShutdown}, h.states())
	assert.Equal(t, StateShutdown, h.ctrl.State())
	assert.False(t, h.ctrl.Running())

	out := h.console.String()
	assert.Contains(t, out, "Listening for audio input...")
	assert.Contains(t, out, "User: What time is it?")
	assert.Contains(t, out, "Assistant: It is noon. Anything else?")

	require.Len(t, h.dialogue.seen, 1)
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "What time is it?"}, {Role: RoleAssistant}}, h.dialogue.seen[0])
}

func TestControllerEmptyTranscriptionSkipsDialogue(t *testing.T) {
	h, ctx := newHarness(t, oneUtterance(), nil)
	h.stt.texts = []string{"   "}

	require.NoError(t, h.ctrl.Run(ctx))

	assert.Equal(t, 1, h.stt.calls)
	assert.Equal(t, 0, h.dialogue.calls)
	assert.Empty(t, h.ctrl.History())
	assert.Equal(t, []SessionState{StateCapturing, StateTranscribing, StateCapturing, StateShutdown}, h.states())
}

func TestControllerTranscriptionErrorDegradesToSilence(t *testing.T) {
	h, ctx := newHarness(t, blocks(4, 3, true, 3, false, 3, true, 3, false), nil)
	h.stt.err = Wrap(KindTranscription, "stt", errors.New("quota"))

	require.NoError(t, h.ctrl.Run(ctx))

	assert.Equal(t, 2, h.stt.calls)
	assert.Equal(t, 0, h.dialogue.calls)
	assert.Empty(t, h.sink.chunks)
}

func TestControllerExitPhraseRepliesThenStops(t *testing.T) {
	h, ctx := newHarness(t, blocks(4, 3, true, 3, false, 3, true, 3, false), nil)
	h.stt.texts = []string{"Okay, Bye now"}
	h.dialogue.fragments = []string{"See you."}

	require.NoError(t, h.ctrl.Run(ctx))

	assert.Equal(t, 1, h.stt.calls, "capture ends after the exit phrase")
	assert.Equal(t, []string{"See you."}, h.synth.synthesized)
	assert.Len(t, h.ctrl.History(), 2)
	assert.False(t, h.ctrl.Running())
	assert.Equal(t, StateShutdown, h.ctrl.State())
	assert.Equal(t, []SessionState{StateCapturing, StateTranscribing, StateSpeaking, StateShutdown}, h.states())
}

func TestControllerGoodbyeMatchesByeSubstring(t *testing.T) {
	h, ctx := newHarness(t, blocks(4, 3, true, 3, false, 3, true, 3, false), nil)
	h.stt.texts = []string{"goodbye"}
	h.dialogue.fragments = []string{"Take care."}

	require.NoError(t, h.ctrl.Run(ctx))
	assert.Equal(t, 1, h.stt.calls)
}

func TestControllerGenerationErrorKeepsPartialReply(t *testing.T) {
	h, ctx := newHarness(t, oneUtterance(), nil)
	h.stt.texts = []string{"Tell me a story"}
	h.dialogue.fragments = []string{"Once upon ", "a time. There"}
	h.dialogue.err = Wrap(KindGeneration, "chat.recv", errors.New("stream reset"))

	require.NoError(t, h.ctrl.Run(ctx))

	turns := h.ctrl.History()
	require.Len(t, turns, 2)
	assert.Equal(t, "Once upon a time. There", turns[1].Content)
	assert.Equal(t, []string{"Once upon a time.", "There"}, h.synth.synthesized)
}

func TestControllerBargeIn(t *testing.T) {
	prober := &scriptedProber{hitOn: map[int]bool{4: true}}
	h, ctx := newHarness(t, oneUtterance(), prober)
	h.stt.texts = []string{"Read me the news"}
	h.dialogue.fragments = []string{"First item. ", "Second item. ", "Third item."}

	require.NoError(t, h.ctrl.Run(ctx))

	assert.Len(t, h.sink.chunks, 3)
	assert.Equal(t, []string{"First item.", "Second item."}, h.synth.synthesized)
	assert.Contains(t, h.console.String(), "User interruption detected. Stopping playback.")
	assert.Equal(t, []SessionState{StateCapturing, StateTranscribing, StateSpeaking, StateCapturing, StateShutdown}, h.states())
}

func TestControllerPlaybackDeviceFailureIsFatal(t *testing.T) {
	h, ctx := newHarness(t, blocks(4, 3, true, 3, false, 3, true, 3, false), nil)
	h.sink.writeErr = errors.New("device removed")
	h.stt.texts = []string{"hello"}
	h.dialogue.fragments = []string{"Hi."}

	err := h.ctrl.Run(ctx)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPlaybackDevice))
	assert.Equal(t, 1, h.stt.calls)
	assert.Equal(t, StateShutdown, h.ctrl.State())
}

func TestControllerShutdownIsPolled(t *testing.T) {
	h, ctx := newHarness(t, nil, nil)
	h.src.loop = true

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	require.Eventually(t, h.ctrl.Running, time.Second, time.Millisecond)
	h.ctrl.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}
	assert.Equal(t, StateShutdown, h.ctrl.State())
}

func TestControllerRejectsInvalidTransitions(t *testing.T) {
	c := NewController(ControllerConfig{}, Dependencies{}, nil)
	err := c.transition(StateSpeaking, "test")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateIdle, invalid.From)
	assert.Equal(t, StateSpeaking, invalid.To)

	require.NoError(t, c.transition(StateShutdown, "test"))
	assert.Error(t, c.transition(StateCapturing, "test"))
}
