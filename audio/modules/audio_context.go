package modules

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// SpeakerDevice plays through the beep speaker. The speaker is
// re-initialised only when the requested rate changes.
type SpeakerDevice struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	inited bool
}

func (d *SpeakerDevice) OpenSink(sampleRate int) (Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sr := beep.SampleRate(sampleRate)
	if !d.inited || d.rate != sr {
		if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
			return nil, fmt.Errorf("error initializing speaker: %w", err)
		}
		d.rate = sr
		d.inited = true
	}
	return speakerSink{}, nil
}

type speakerSink struct{}

// Write blocks until the speaker has consumed chunk.
func (speakerSink) Write(chunk []int16) error {
	done := make(chan struct{})
	speaker.Play(beep.Seq(pcmStreamer(chunk), beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

func (speakerSink) Close() error {
	speaker.Clear()
	return nil
}

// pcmStreamer plays mono 16-bit samples on both channels.
func pcmStreamer(chunk []int16) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(chunk) {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < len(chunk) {
			v := float64(chunk[pos]) / 32768
			samples[n][0], samples[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})
}

// LoadCue decodes an MP3 file into mono 16-bit samples at sampleRate.
func LoadCue(path string, sampleRate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening audio file: %w", err)
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error decoding MP3: %w", err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if target := beep.SampleRate(sampleRate); target != format.SampleRate {
		s = beep.Resample(4, format.SampleRate, target, streamer)
	}
	return drainMono(s), nil
}

func drainMono(s beep.Streamer) []int16 {
	var out []int16
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			v := (frame[0] + frame[1]) / 2
			out = append(out, floatToInt16(v))
		}
		if !ok {
			return out
		}
	}
}

func floatToInt16(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	}
	return int16(v * 32767)
}
