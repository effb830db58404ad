package modules

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voiceloop/audio/logging"
)

type CaptureConfig struct {
	SampleRate int
	BlockSize  int
	Threshold  float64
	// CloseAfterBlocks is the silence run that closes an utterance.
	CloseAfterBlocks int
}

// UtteranceHandler receives each finished utterance on the capture
// goroutine. Returning ErrShutdown ends capture without error.
type UtteranceHandler func(ctx context.Context, utt Utterance) error

// CaptureSession turns a microphone stream into utterances. A single
// goroutine reads, classifies and accumulates, so the handler is never
// invoked concurrently with itself.
type CaptureSession struct {
	source BlockSource
	cfg    CaptureConfig
	acc    *UtteranceAccumulator
	log    *zap.SugaredLogger
}

func NewCaptureSession(source BlockSource, cfg CaptureConfig, log *zap.SugaredLogger) *CaptureSession {
	return &CaptureSession{
		source: source,
		cfg:    cfg,
		acc:    NewUtteranceAccumulator(cfg.CloseAfterBlocks),
		log:    logging.OrNop(log),
	}
}

// Run captures until ctx is cancelled, the handler returns ErrShutdown or a
// fatal error occurs. The source is closed on return.
func (c *CaptureSession) Run(ctx context.Context, handle UtteranceHandler) error {
	defer func() {
		if err := c.source.Close(); err != nil {
			c.log.Warnw("close capture stream", "error", err)
		}
	}()

	if err := c.source.Start(); err != nil {
		return Wrap(KindCaptureDevice, "capture.start", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		block, err := c.source.ReadBlock()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return Wrap(KindCaptureDevice, "capture.read", err)
		}

		samples, ok := c.acc.OnBlock(block, Classify(block, c.cfg.Threshold))
		if !ok {
			continue
		}

		// Feeding halts until the handler is done.
		if err := c.source.Stop(); err != nil {
			return Wrap(KindCaptureDevice, "capture.stop", err)
		}

		utt := Utterance{ID: uuid.NewString(), Samples: samples}
		if c.cfg.BlockSize > 0 {
			utt.Blocks = len(samples) / c.cfg.BlockSize
		}
		c.log.Infow("utterance captured", logging.UtteranceFields(utt.ID, len(samples), c.cfg.SampleRate)...)

		herr := handle(ctx, utt)
		switch {
		case herr == nil:
		case errors.Is(herr, ErrShutdown):
			return nil
		case IsFatal(herr):
			return herr
		default:
			c.log.Warnw("utterance handler failed", "utterance_id", utt.ID, "error", herr)
		}

		if ctx.Err() != nil {
			return nil
		}
		if err := c.source.Start(); err != nil {
			return Wrap(KindCaptureDevice, "capture.resume", err)
		}
	}
}
