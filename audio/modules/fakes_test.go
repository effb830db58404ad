package modules

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"
)

var errExhausted = errors.New("source exhausted")

func speechBlock(n int) []float32  { return constBlock(n, 0.3) }
func silenceBlock(n int) []float32 { return make([]float32, n) }

// blocks builds a block script from (count, speech) pairs.
func blocks(size int, parts ...any) [][]float32 {
	var out [][]float32
	for i := 0; i+1 < len(parts); i += 2 {
		count := parts[i].(int)
		speech := parts[i+1].(bool)
		for j := 0; j < count; j++ {
			if speech {
				out = append(out, speechBlock(size))
			} else {
				out = append(out, silenceBlock(size))
			}
		}
	}
	return out
}

type fakeSource struct {
	mu       sync.Mutex
	blocks   [][]float32
	next     int
	loop     bool // keep yielding silence after the script
	onEmpty  func()
	startErr error
	readErr  error
	starts   int
	stops    int
	closed   bool
	running  bool
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.running = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeSource) ReadBlock() ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.next < len(f.blocks) {
		b := f.blocks[f.next]
		f.next++
		return b, nil
	}
	if f.loop {
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
		f.mu.Lock()
		return silenceBlock(4), nil
	}
	if f.onEmpty != nil {
		f.onEmpty()
	}
	return nil, errExhausted
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.running = false
	return nil
}

type fakeProbeOpener struct {
	mu      sync.Mutex
	results []bool
	openErr error
	readErr error
	opens   int
	closes  int
}

func (f *fakeProbeOpener) OpenProbe(blockSize int) (BlockSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	var script [][]float32
	for _, speech := range f.results {
		if speech {
			script = append(script, speechBlock(blockSize))
		} else {
			script = append(script, silenceBlock(blockSize))
		}
	}
	f.results = nil
	return &probeStream{owner: f, src: &fakeSource{blocks: script, readErr: f.readErr}}, nil
}

type probeStream struct {
	owner *fakeProbeOpener
	src   *fakeSource
}

func (p *probeStream) Start() error                  { return p.src.Start() }
func (p *probeStream) Stop() error                   { return p.src.Stop() }
func (p *probeStream) ReadBlock() ([]float32, error) { return p.src.ReadBlock() }
func (p *probeStream) Close() error {
	p.owner.mu.Lock()
	p.owner.closes++
	p.owner.mu.Unlock()
	return p.src.Close()
}

// scriptedProber returns true on the listed (1-based) calls.
type scriptedProber struct {
	calls int
	hitOn map[int]bool
	err   error
	errOn int
}

func (s *scriptedProber) Probe(context.Context) (bool, error) {
	s.calls++
	if s.err != nil && s.calls == s.errOn {
		return false, s.err
	}
	return s.hitOn[s.calls], nil
}

type fakeSink struct {
	chunks   [][]int16
	writeErr error
	closed   bool
}

func (f *fakeSink) Write(chunk []int16) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.chunks = append(f.chunks, append([]int16(nil), chunk...))
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

type fakeSinkOpener struct {
	sink    *fakeSink
	openErr error
	rate    int
	opens   int
}

func (f *fakeSinkOpener) OpenSink(sampleRate int) (Sink, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.rate = sampleRate
	return f.sink, nil
}

// fakeSynth yields chunksPer chunks per sentence, each tagged with the
// sentence's ordinal so tests can tell them apart.
type fakeSynth struct {
	rate        int
	chunksPer   int
	failOn      string
	synthesized []string
}

func (f *fakeSynth) SampleRate() int { return f.rate }

func (f *fakeSynth) Synthesize(_ context.Context, sentence string) iter.Seq2[[]int16, error] {
	return func(yield func([]int16, error) bool) {
		f.synthesized = append(f.synthesized, sentence)
		if sentence == f.failOn {
			yield(nil, errors.New("voice unavailable"))
			return
		}
		tag := int16(len(f.synthesized))
		for i := 0; i < f.chunksPer; i++ {
			if !yield([]int16{tag, int16(i)}, nil) {
				return
			}
		}
	}
}

type fakeTranscriber struct {
	texts []string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, samples []float32, _ int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	text := f.texts[0]
	if len(f.texts) > 1 {
		f.texts = f.texts[1:]
	}
	return text, nil
}

type fakeDialogue struct {
	fragments []string
	err       error
	calls     int
	seen      [][]Turn
}

func (f *fakeDialogue) Generate(_ context.Context, history []Turn) iter.Seq2[string, error] {
	f.calls++
	f.seen = append(f.seen, history)
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func seqOf(items ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, s := range items {
			if !yield(s) {
				return
			}
		}
	}
}
