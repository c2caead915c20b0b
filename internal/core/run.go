package core

import (
	"context"
	"errors"
	"time"
)

// RunOnce performs one loop iteration:
//
//  1. handle every queued display event, in arrival order;
//  2. paint each damaged screen whose pacing window is open;
//  3. wait on the descriptor set until the next timer or redraw is due;
//  4. fire expired timers.
//
// Events delivered while waiting are handled at the start of the next
// iteration, before any screen paints.
func (c *Core) RunOnce() error {
	if c.closed {
		return ErrClosed
	}
	c.iterations++
	c.display.ProcessEvents()

	painted, wait := c.paintDue(c.clock.Now())
	if painted || c.quit {
		wait = 0
	}
	if d, ok := c.sched.NextTimeout(); ok && (wait < 0 || d < wait) {
		wait = d
	}

	if _, err := c.sched.Wait(wait); err != nil {
		return err
	}
	c.sched.HandleTimeouts()
	return nil
}

// paintDue paints every screen that is due and returns how long until the
// next damaged screen will be, or -1 when none is waiting.
func (c *Core) paintDue(now time.Time) (painted bool, wait time.Duration) {
	wait = -1
	for _, s := range c.display.screens {
		if !s.damage.Damaged() {
			s.pacer.SetIdle(true)
			continue
		}
		s.pacer.MarkDamaged()
		d := s.pacer.NextDelay(now)
		if d > 0 {
			s.pacer.Skip()
			if wait < 0 || d < wait {
				wait = d
			}
			continue
		}
		s.paint(now)
		painted = true
	}
	return painted, wait
}

// Run iterates the loop until Quit is called or ctx is done.
func (c *Core) Run(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.running {
		return errors.New("core: already running")
	}
	c.running = true
	c.quit = false
	defer func() { c.running = false }()

	stop := context.AfterFunc(ctx, func() {
		_ = c.notifier.Post(c.Quit)
	})
	defer stop()

	for !c.quit {
		if err := c.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Quit makes Run return after the current iteration. It must be called on
// the loop goroutine; other goroutines post it through the Notifier.
func (c *Core) Quit() {
	c.quit = true
}
