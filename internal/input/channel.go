package input

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/lucasnoah/autobuilder/internal/logger"
)

// Channel reads operator lines on its own goroutine and hands them to the
// orchestrator one at a time. It holds at most one line. Taking a line
// pauses the channel: nothing further is read from the source until Resume,
// so a second keystroke cannot race the handler acting on the first.
type Channel struct {
	mu      sync.Mutex
	cond    *sync.Cond
	slot    string
	full    bool
	paused  bool
	prompts int
	eof     bool
	closed  bool
}

// NewChannel starts reading lines from r.
func NewChannel(r io.Reader) *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop(r)
	return c
}

func (c *Channel) readLoop(r io.Reader) {
	log := logger.WithComponent("input")
	sc := bufio.NewScanner(r)

	for {
		c.mu.Lock()
		for !c.closed && (c.full || (c.paused && c.prompts == 0)) {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				log.Error().Err(err).Msg("read operator input")
			}
			c.mu.Lock()
			c.eof = true
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		line := strings.TrimRight(sc.Text(), "\r")

		c.mu.Lock()
		c.slot = line
		c.full = true
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

// HasCommand reports whether a line is waiting and the channel is not paused.
func (c *Channel) HasCommand() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.full && !c.paused
}

// TakeCommand returns the waiting line, or "" if there is none, and pauses
// the channel. A line read while paused stays queued until Resume.
func (c *Channel) TakeCommand() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.full || c.paused {
		return ""
	}
	line := c.slot
	c.slot, c.full = "", false
	c.paused = true
	c.cond.Broadcast()
	return line
}

// Peek returns the waiting line without taking it.
func (c *Channel) Peek() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full || c.paused {
		return "", false
	}
	return c.slot, true
}

// Pause stops the channel from reading or offering further lines.
func (c *Channel) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume lets the channel read and offer lines again.
func (c *Channel) Resume() {
	c.mu.Lock()
	c.paused = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// ReadLine blocks for the next line regardless of pause state. It serves
// interactive prompts issued while a command is being handled. The boolean
// is false once the source is exhausted or the channel is closed.
func (c *Channel) ReadLine() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prompts++
	c.cond.Broadcast()
	defer func() { c.prompts-- }()

	for !c.full && !c.eof && !c.closed {
		c.cond.Wait()
	}
	if !c.full {
		return "", false
	}
	line := c.slot
	c.slot, c.full = "", false
	c.cond.Broadcast()
	return line, true
}

// Done reports whether the source reached EOF and no line is waiting.
func (c *Channel) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eof && !c.full
}

// Close stops the read loop. A read already blocked on the source ends with
// the process.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}
