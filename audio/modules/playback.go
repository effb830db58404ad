package modules

import (
	"context"
	"iter"
	"strings"

	"go.uber.org/zap"

	"voiceloop/audio/logging"
)

// Synthesizer turns one sentence into a lazy sequence of 16-bit mono PCM
// chunks at SampleRate.
type Synthesizer interface {
	SampleRate() int
	Synthesize(ctx context.Context, sentence string) iter.Seq2[[]int16, error]
}

// PlaybackSession writes synthesized sentences to one output stream,
// probing for barge-in before every chunk.
type PlaybackSession struct {
	opener SinkOpener
	synth  Synthesizer
	prober Prober
	cue    []int16
	log    *zap.SugaredLogger
}

func NewPlaybackSession(opener SinkOpener, synth Synthesizer, prober Prober, log *zap.SugaredLogger) *PlaybackSession {
	if prober == nil {
		prober = AnyProber(nil)
	}
	return &PlaybackSession{
		opener: opener,
		synth:  synth,
		prober: prober,
		log:    logging.OrNop(log),
	}
}

// SetCue sets the acknowledgment played after a barge-in. The samples must
// be at the synthesizer's rate.
func (p *PlaybackSession) SetCue(samples []int16) {
	p.cue = samples
}

// Play consumes sentences until they run out, the user barges in, ctx is
// cancelled or something fails. Synthesis errors yield OutcomeFailed with a
// non-fatal error; device errors are fatal.
func (p *PlaybackSession) Play(ctx context.Context, sentences iter.Seq[string]) (Outcome, error) {
	sink, err := p.opener.OpenSink(p.synth.SampleRate())
	if err != nil {
		return OutcomeFailed, Wrap(KindPlaybackDevice, "playback.open", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			p.log.Warnw("close output stream", "error", err)
		}
	}()

	outcome, err := p.play(ctx, sink, sentences)
	if outcome == OutcomeInterrupted && err == nil && ctx.Err() == nil && len(p.cue) > 0 {
		if werr := sink.Write(p.cue); werr != nil {
			return outcome, Wrap(KindPlaybackDevice, "playback.cue", werr)
		}
	}
	return outcome, err
}

func (p *PlaybackSession) play(ctx context.Context, sink Sink, sentences iter.Seq[string]) (Outcome, error) {
	for sentence := range sentences {
		if ctx.Err() != nil {
			return OutcomeInterrupted, nil
		}
		if strings.TrimSpace(sentence) == "" {
			continue
		}

		chunks := 0
		for chunk, err := range p.synth.Synthesize(ctx, sentence) {
			if err != nil {
				return OutcomeFailed, Wrap(KindSynthesis, "playback.synthesize", err)
			}
			if len(chunk) == 0 {
				continue
			}
			if ctx.Err() != nil {
				return OutcomeInterrupted, nil
			}

			hit, err := p.prober.Probe(ctx)
			if err != nil {
				return OutcomeFailed, err
			}
			if hit {
				p.log.Infow("playback interrupted", "chunks_written", chunks)
				return OutcomeInterrupted, nil
			}

			if err := sink.Write(chunk); err != nil {
				return OutcomeFailed, Wrap(KindPlaybackDevice, "playback.write", err)
			}
			chunks++
		}
		p.log.Debugw("sentence played", "chunks", chunks, "chars", len(sentence))
	}
	return OutcomeCompleted, nil
}
