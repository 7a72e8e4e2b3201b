// Package lifecycle owns the process-wide shutdown flag.
package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Signals that stop the decode loop. The fault signals are included so a
// crash still releases the capture device; Go only delivers them here when
// they are sent by another process.
var Signals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGILL,
	syscall.SIGFPE,
	syscall.SIGSEGV,
	syscall.SIGABRT,
}

// Controller flips once from running to stopping. Readers poll Stopping.
type Controller struct {
	stopping atomic.Bool

	mu   sync.Mutex
	ch   chan os.Signal
	done chan struct{}
}

func New() *Controller {
	return &Controller{}
}

// Notify starts listening for Signals. Safe to call once.
func (c *Controller) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return
	}
	c.ch = make(chan os.Signal, 1)
	c.done = make(chan struct{})
	signal.Notify(c.ch, Signals...)

	go func(ch <-chan os.Signal, done <-chan struct{}) {
		for {
			select {
			case sig := <-ch:
				slog.Warn("caught signal", "signal", sig.String())
				c.stopping.Store(true)
			case <-done:
				return
			}
		}
	}(c.ch, c.done)
}

// Stopping reports whether shutdown was requested.
func (c *Controller) Stopping() bool { return c.stopping.Load() }

// Stop requests shutdown without a signal.
func (c *Controller) Stop() { c.stopping.Store(true) }

// Release restores default signal handling.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return
	}
	signal.Stop(c.ch)
	close(c.done)
	c.ch = nil
}
