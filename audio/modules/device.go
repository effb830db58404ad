package modules

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// BlockSource is a microphone stream delivering fixed-size mono blocks.
type BlockSource interface {
	Start() error
	Stop() error
	// ReadBlock blocks until the next block is available. The returned slice
	// is reused by the following call.
	ReadBlock() ([]float32, error)
	Close() error
}

// ProbeOpener opens a short-lived input stream for barge-in probing.
type ProbeOpener interface {
	OpenProbe(blockSize int) (BlockSource, error)
}

// Sink is an output stream accepting 16-bit mono PCM.
type Sink interface {
	Write(chunk []int16) error
	Close() error
}

type SinkOpener interface {
	OpenSink(sampleRate int) (Sink, error)
}

// PortAudioDevice opens default-device streams. portaudio.Initialize must
// have been called by the owner of the process.
type PortAudioDevice struct {
	SampleRate      int
	FramesPerBuffer int
}

func NewPortAudioDevice(sampleRate, framesPerBuffer int) *PortAudioDevice {
	return &PortAudioDevice{SampleRate: sampleRate, FramesPerBuffer: framesPerBuffer}
}

// OpenInput opens (but does not start) a mono input stream reading blockSize
// frames per call.
func (d *PortAudioDevice) OpenInput(blockSize int) (BlockSource, error) {
	buf := make([]float32, blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(d.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	return &paInput{stream: stream, buf: buf}, nil
}

// OpenProbe opens and starts an independent input stream.
func (d *PortAudioDevice) OpenProbe(blockSize int) (BlockSource, error) {
	src, err := d.OpenInput(blockSize)
	if err != nil {
		return nil, err
	}
	if err := src.Start(); err != nil {
		_ = src.Close()
		return nil, err
	}
	return src, nil
}

func (d *PortAudioDevice) OpenSink(sampleRate int) (Sink, error) {
	frames := d.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	out := make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return &paSink{stream: stream, out: out}, nil
}

type paInput struct {
	stream  *portaudio.Stream
	buf     []float32
	started bool
}

func (p *paInput) Start() error {
	if p.started {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	p.started = true
	return nil
}

func (p *paInput) Stop() error {
	if !p.started {
		return nil
	}
	p.started = false
	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("stop input stream: %w", err)
	}
	return nil
}

// ReadBlock tolerates input overflow: the buffer still holds the latest frames.
func (p *paInput) ReadBlock() ([]float32, error) {
	if err := p.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	return p.buf, nil
}

func (p *paInput) Close() error {
	_ = p.Stop()
	return p.stream.Close()
}

type paSink struct {
	stream *portaudio.Stream
	out    []int16
}

// Write copies chunk into the stream buffer one buffer at a time; a partial
// final buffer is padded with zeros.
func (p *paSink) Write(chunk []int16) error {
	for len(chunk) > 0 {
		n := copy(p.out, chunk)
		for i := n; i < len(p.out); i++ {
			p.out[i] = 0
		}
		if err := p.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("write output stream: %w", err)
		}
		chunk = chunk[n:]
	}
	return nil
}

func (p *paSink) Close() error {
	_ = p.stream.Stop()
	return p.stream.Close()
}
