package modules

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voiceloop/audio/logging"
)

// Player speaks a lazy sequence of sentences.
type Player interface {
	Play(ctx context.Context, sentences iter.Seq[string]) (Outcome, error)
}

var validTransitions = map[SessionState][]SessionState{
	StateIdle:         {StateCapturing, StateShutdown},
	StateCapturing:    {StateTranscribing, StateShutdown},
	StateTranscribing: {StateCapturing, StateSpeaking, StateShutdown},
	StateSpeaking:     {StateCapturing, StateShutdown},
	StateShutdown:     {},
}

type InvalidTransitionError struct {
	From SessionState
	To   SessionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

type ControllerConfig struct {
	Capture      CaptureConfig
	ExitPhrase   string
	PollInterval time.Duration
	Segmenter    SegmenterConfig
	// Keyboard enables Esc to quit and the interrupt key.
	Keyboard bool
}

// Dependencies are the collaborators a Controller drives. Trigger and
// Console are optional.
type Dependencies struct {
	Source      BlockSource
	Transcriber Transcriber
	Dialogue    DialogueEngine
	Player      Player
	Trigger     *ManualTrigger
	Console     io.Writer
}

// Controller runs the listen, transcribe, reply loop until the exit phrase
// is heard, Shutdown is called, the context ends or a device fails.
type Controller struct {
	cfg     ControllerConfig
	deps    Dependencies
	history History
	running atomic.Bool
	log     *zap.SugaredLogger

	mu       sync.Mutex
	state    SessionState
	listener func(StateTransition)
}

func NewController(cfg ControllerConfig, deps Dependencies, log *zap.SugaredLogger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	return &Controller{cfg: cfg, deps: deps, log: logging.OrNop(log)}
}

// OnTransition registers fn to observe every state change. Call before Run.
func (c *Controller) OnTransition(fn func(StateTransition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) History() []Turn { return c.history.Turns() }

func (c *Controller) Running() bool { return c.running.Load() }

// Shutdown asks the loop to stop; it is noticed at the next poll.
func (c *Controller) Shutdown() {
	if c.running.CompareAndSwap(true, false) {
		c.log.Infow("shutdown requested")
	}
}

func (c *Controller) transition(to SessionState, reason string) error {
	c.mu.Lock()
	from := c.state
	allowed := false
	for _, s := range validTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	c.state = to
	listener := c.listener
	c.mu.Unlock()

	c.log.Infow("State transition", "from", from.String(), "to", to.String(), "reason", reason)
	if listener != nil {
		listener(StateTransition{From: from, To: to, Reason: reason, Timestamp: time.Now()})
	}
	return nil
}

// Run blocks until the session ends. It returns nil on a clean shutdown and
// the device error otherwise.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.transition(StateCapturing, "run"); err != nil {
		return err
	}
	c.running.Store(true)
	fmt.Fprintln(c.deps.Console, "Listening for audio input...")

	g, gctx := errgroup.WithContext(ctx)
	capture := NewCaptureSession(c.deps.Source, c.cfg.Capture, c.log)
	g.Go(func() error {
		defer cancel()
		return capture.Run(gctx, c.handleUtterance)
	})
	if c.cfg.Keyboard && c.deps.Trigger != nil {
		g.Go(func() error {
			if err := HandleInterrupts(gctx, c.deps.Trigger, c.Shutdown, c.log); err != nil {
				c.log.Warnw("keyboard control unavailable", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if !c.running.Load() {
					cancel()
					return nil
				}
			}
		}
	})

	err := g.Wait()
	c.running.Store(false)
	reason := "stopped"
	if err != nil {
		reason = err.Error()
	}
	_ = c.transition(StateShutdown, reason)
	return err
}

func (c *Controller) handleUtterance(ctx context.Context, utt Utterance) error {
	fields := logging.UtteranceFields(utt.ID, len(utt.Samples), c.cfg.Capture.SampleRate)
	if err := c.transition(StateTranscribing, "utterance"); err != nil {
		return err
	}

	text, err := c.deps.Transcriber.Transcribe(ctx, utt.Samples, c.cfg.Capture.SampleRate)
	if err != nil {
		c.log.Warnw("transcription failed", append(fields, "error", err)...)
		return c.transition(StateCapturing, "transcription failed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.log.Debugw("empty transcription", fields...)
		return c.transition(StateCapturing, "empty transcription")
	}

	fmt.Fprintf(c.deps.Console, "User: %s\n", text)
	c.log.Infow("transcribed", append(fields, "chars", len(text), "complete_sentence", IsComplete(text))...)
	exit := MatchesExitPhrase(text, c.cfg.ExitPhrase)

	c.history.Append(RoleUser, text)
	c.history.Append(RoleAssistant, "")
	if err := c.transition(StateSpeaking, "reply"); err != nil {
		return err
	}
	if c.deps.Trigger != nil {
		c.deps.Trigger.Clear()
	}

	fmt.Fprint(c.deps.Console, "Assistant: ")
	outcome, err := c.deps.Player.Play(ctx, Segment(c.replyFragments(ctx), c.cfg.Segmenter))
	fmt.Fprintln(c.deps.Console)
	if outcome == OutcomeInterrupted && ctx.Err() == nil {
		fmt.Fprintln(c.deps.Console, "User interruption detected. Stopping playback.")
	}
	switch {
	case IsFatal(err):
		return err
	case err != nil:
		c.log.Warnw("playback failed", append(fields, "error", err)...)
	}
	c.log.Infow("reply finished", append(fields, "outcome", outcome.String())...)

	if exit {
		c.log.Infow("exit phrase heard", "phrase", c.cfg.ExitPhrase)
		c.running.Store(false)
		return ErrShutdown
	}
	return c.transition(StateCapturing, outcome.String())
}

// replyFragments streams the dialogue reply into the pending assistant turn
// and the console. A generation error ends the reply early; what arrived
// so far is kept.
func (c *Controller) replyFragments(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for frag, err := range c.deps.Dialogue.Generate(ctx, c.history.Turns()) {
			if err != nil {
				c.log.Warnw("generation failed", "error", err)
				return
			}
			c.history.Extend(frag)
			fmt.Fprint(c.deps.Console, frag)
			if !yield(frag) {
				return
			}
		}
	}
}
