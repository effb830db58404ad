package modules

import (
	"math"
	"time"
)

// CloseAfterBlocks converts a silence duration into a count of consecutive
// silent blocks, rounded to the nearest block and never below one.
func CloseAfterBlocks(silence time.Duration, sampleRate, blockSize int) int {
	if sampleRate <= 0 || blockSize <= 0 {
		return 1
	}
	blockDur := float64(blockSize) / float64(sampleRate)
	n := int(math.Round(silence.Seconds() / blockDur))
	if n < 1 {
		return 1
	}
	return n
}

// UtteranceAccumulator buffers blocks until a run of closeAfter silent
// blocks closes the utterance. It is not safe for concurrent use; the
// capture loop owns it.
//
// The silence counter starts saturated, so silence heard before the first
// speech block is dropped rather than buffered.
type UtteranceAccumulator struct {
	closeAfter int
	silenceRun int
	buffer     []float32
}

func NewUtteranceAccumulator(closeAfterBlocks int) *UtteranceAccumulator {
	if closeAfterBlocks < 1 {
		closeAfterBlocks = 1
	}
	return &UtteranceAccumulator{closeAfter: closeAfterBlocks, silenceRun: closeAfterBlocks}
}

// OnBlock feeds one classified block. It returns the finished utterance and
// true exactly once per silence run, and only when something was buffered.
// The block that completes the run is not kept.
func (a *UtteranceAccumulator) OnBlock(block []float32, class Classification) ([]float32, bool) {
	if class == Speech {
		a.silenceRun = 0
		a.buffer = append(a.buffer, block...)
		return nil, false
	}

	if a.silenceRun >= a.closeAfter {
		return nil, false
	}
	a.silenceRun++
	if a.silenceRun < a.closeAfter {
		a.buffer = append(a.buffer, block...)
		return nil, false
	}

	if len(a.buffer) == 0 {
		return nil, false
	}
	out := a.buffer
	a.buffer = nil
	return out, true
}

// Reset drops buffered audio and returns to the idle state.
func (a *UtteranceAccumulator) Reset() {
	a.buffer = nil
	a.silenceRun = a.closeAfter
}

// Buffered returns the number of samples held.
func (a *UtteranceAccumulator) Buffered() int { return len(a.buffer) }

func (a *UtteranceAccumulator) SilenceRun() int { return a.silenceRun }
