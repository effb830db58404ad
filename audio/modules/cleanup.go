package modules

import (
	"sync"

	"go.uber.org/zap"

	"voiceloop/audio/logging"
)

// Cleanup releases registered resources in reverse order, once.
type Cleanup struct {
	once  sync.Once
	mu    sync.Mutex
	steps []cleanupStep
	log   *zap.SugaredLogger
}

type cleanupStep struct {
	name string
	fn   func() error
}

func NewCleanup(log *zap.SugaredLogger) *Cleanup {
	return &Cleanup{log: logging.OrNop(log)}
}

func (c *Cleanup) Add(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, cleanupStep{name: name, fn: fn})
}

// Run executes every step; failures are logged and do not stop later steps.
func (c *Cleanup) Run() {
	c.once.Do(func() {
		c.mu.Lock()
		steps := c.steps
		c.steps = nil
		c.mu.Unlock()

		for i := len(steps) - 1; i >= 0; i-- {
			if err := steps[i].fn(); err != nil {
				c.log.Warnw("cleanup step failed", "step", steps[i].name, "error", err)
				continue
			}
			c.log.Debugw("cleaned up", "step", steps[i].name)
		}
	})
}
