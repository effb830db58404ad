package modules

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/eiannone/keyboard"
	"go.uber.org/zap"

	"voiceloop/audio/logging"
)

// InterruptKeyChar forces a barge-in from the keyboard.
const InterruptKeyChar = '`'

// Prober reports whether playback should stop before the next chunk.
type Prober interface {
	Probe(ctx context.Context) (bool, error)
}

// InterruptMonitor listens briefly on a fresh input stream, never the
// capture stream, and reports whether the user has started speaking.
type InterruptMonitor struct {
	opener      ProbeOpener
	threshold   float64
	blockSize   int
	probeBlocks int
	log         *zap.SugaredLogger
}

func NewInterruptMonitor(opener ProbeOpener, threshold float64, blockSize, probeBlocks int, log *zap.SugaredLogger) *InterruptMonitor {
	if probeBlocks < 1 {
		probeBlocks = 1
	}
	return &InterruptMonitor{
		opener:      opener,
		threshold:   threshold,
		blockSize:   blockSize,
		probeBlocks: probeBlocks,
		log:         logging.OrNop(log),
	}
}

// Probe reads up to probeBlocks blocks and returns true as soon as one is
// classified as speech. The probe stream is closed before returning.
func (m *InterruptMonitor) Probe(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	src, err := m.opener.OpenProbe(m.blockSize)
	if err != nil {
		return false, Wrap(KindCaptureDevice, "probe.open", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.log.Debugw("close probe stream", "error", err)
		}
	}()

	for i := 0; i < m.probeBlocks; i++ {
		block, err := src.ReadBlock()
		if err != nil {
			return false, Wrap(KindCaptureDevice, "probe.read", err)
		}
		if Classify(block, m.threshold) == Speech {
			m.log.Debugw("barge-in detected", "rms", RMS(block), "block", i)
			return true, nil
		}
	}
	return false, nil
}

// ManualTrigger is a Prober fired from outside the audio path, such as the
// interrupt key. A fire is consumed by the next Probe.
type ManualTrigger struct {
	pending atomic.Bool
}

func (t *ManualTrigger) Fire() { t.pending.Store(true) }

// Clear drops a fire that arrived while nothing was playing.
func (t *ManualTrigger) Clear() { t.pending.Store(false) }

func (t *ManualTrigger) Probe(context.Context) (bool, error) {
	return t.pending.Swap(false), nil
}

// AnyProber asks each prober in order and stops at the first true or error,
// so put cheap probers first.
type AnyProber []Prober

func (a AnyProber) Probe(ctx context.Context) (bool, error) {
	for _, p := range a {
		if p == nil {
			continue
		}
		hit, err := p.Probe(ctx)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

type KeyAction int

const (
	KeyIgnored KeyAction = iota
	KeyInterrupt
	KeyQuit
)

// ActionFor maps a key press: Esc or Ctrl-C quits, backtick interrupts.
func ActionFor(char rune, key keyboard.Key) KeyAction {
	switch {
	case key == keyboard.KeyEsc, key == keyboard.KeyCtrlC:
		return KeyQuit
	case char == InterruptKeyChar:
		return KeyInterrupt
	}
	return KeyIgnored
}

// HandleInterrupts reads the keyboard until ctx is done. The interrupt key
// fires trigger; the quit keys call quit and return.
func HandleInterrupts(ctx context.Context, trigger *ManualTrigger, quit func(), log *zap.SugaredLogger) error {
	log = logging.OrNop(log)
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return fmt.Errorf("open keyboard: %w", err)
	}
	defer keyboard.Close()

	log.Infof("Press %q to interrupt, Esc to quit.", InterruptKeyChar)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				log.Warnw("keyboard read failed", "error", ev.Err)
				continue
			}
			switch ActionFor(ev.Rune, ev.Key) {
			case KeyQuit:
				log.Infow("quit key pressed")
				quit()
				return nil
			case KeyInterrupt:
				log.Infow("interrupt key pressed")
				trigger.Fire()
			}
		}
	}
}
