package modules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPlaybackCompletes(t *testing.T) {
	sink := &fakeSink{}
	opener := &fakeSinkOpener{sink: sink}
	synth := &fakeSynth{rate: 24000, chunksPer: 2}
	p := NewPlaybackSession(opener, synth, &scriptedProber{}, zaptest.NewLogger(t).Sugar())

	outcome, err := p.Play(context.Background(), seqOf("One.", "  ", "Two."))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, 24000, opener.rate)
	assert.Equal(t, []string{"One.", "Two."}, synth.synthesized)
	assert.Equal(t, [][]int16{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, sink.chunks)
	assert.True(t, sink.closed)
}

func TestPlaybackBargeInStopsBeforeNextChunk(t *testing.T) {
	sink := &fakeSink{}
	synth := &fakeSynth{rate: 24000, chunksPer: 2}
	// Fourth probe is the second chunk of the second sentence.
	prober := &scriptedProber{hitOn: map[int]bool{4: true}}
	p := NewPlaybackSession(&fakeSinkOpener{sink: sink}, synth, prober, nil)

	outcome, err := p.Play(context.Background(), seqOf("One.", "Two.", "Three."))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.Equal(t, [][]int16{{1, 0}, {1, 1}, {2, 0}}, sink.chunks)
	assert.Equal(t, []string{"One.", "Two."}, synth.synthesized, "third sentence never synthesized")
	assert.True(t, sink.closed)
}

func TestPlaybackPlaysCueAfterBargeIn(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlaybackSession(&fakeSinkOpener{sink: sink}, &fakeSynth{rate: 16000, chunksPer: 1}, &scriptedProber{hitOn: map[int]bool{1: true}}, nil)
	p.SetCue([]int16{7, 7, 7})

	outcome, err := p.Play(context.Background(), seqOf("Hello there."))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.Equal(t, [][]int16{{7, 7, 7}}, sink.chunks)
}

func TestPlaybackSynthesisFailureSkipsRest(t *testing.T) {
	sink := &fakeSink{}
	synth := &fakeSynth{rate: 24000, chunksPer: 1, failOn: "Two."}
	p := NewPlaybackSession(&fakeSinkOpener{sink: sink}, synth, &scriptedProber{}, nil)

	outcome, err := p.Play(context.Background(), seqOf("One.", "Two.", "Three."))
	assert.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSynthesis))
	assert.False(t, IsFatal(err))
	assert.Equal(t, []string{"One.", "Two."}, synth.synthesized)
	assert.Len(t, sink.chunks, 1)
}

func TestPlaybackDeviceErrorsAreFatal(t *testing.T) {
	synth := &fakeSynth{rate: 24000, chunksPer: 1}

	p := NewPlaybackSession(&fakeSinkOpener{openErr: errors.New("no device")}, synth, nil, nil)
	outcome, err := p.Play(context.Background(), seqOf("One."))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, IsKind(err, KindPlaybackDevice))
	assert.True(t, IsFatal(err))

	sink := &fakeSink{writeErr: errors.New("xrun")}
	p = NewPlaybackSession(&fakeSinkOpener{sink: sink}, synth, nil, nil)
	_, err = p.Play(context.Background(), seqOf("One."))
	assert.True(t, IsKind(err, KindPlaybackDevice))
	assert.True(t, sink.closed)
}

func TestPlaybackProbeErrorIsReturned(t *testing.T) {
	sink := &fakeSink{}
	probeErr := Wrap(KindCaptureDevice, "probe.open", errors.New("busy"))
	p := NewPlaybackSession(&fakeSinkOpener{sink: sink}, &fakeSynth{rate: 24000, chunksPer: 2}, &scriptedProber{err: probeErr, errOn: 2}, nil)

	outcome, err := p.Play(context.Background(), seqOf("One."))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, IsFatal(err))
	assert.Len(t, sink.chunks, 1)
}

func TestPlaybackCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &fakeSink{}
	synth := &fakeSynth{rate: 24000, chunksPer: 1}
	p := NewPlaybackSession(&fakeSinkOpener{sink: sink}, synth, nil, nil)
	p.SetCue([]int16{1})

	outcome, err := p.Play(ctx, seqOf("One."))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.Empty(t, sink.chunks, "no cue on shutdown")
	assert.Empty(t, synth.synthesized)
}
