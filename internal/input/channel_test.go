package input

import (
	"io"
	"strings"
	"testing"
	"time"
)

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChannelTakeCommand(t *testing.T) {
	c := NewChannel(strings.NewReader("b\n"))
	defer c.Close()

	waitUntil(t, "command", c.HasCommand)
	if line, ok := c.Peek(); !ok || line != "b" {
		t.Errorf("Peek() = (%q, %v), want (\"b\", true)", line, ok)
	}
	if !c.HasCommand() {
		t.Error("Peek() consumed the command")
	}
	if got := c.TakeCommand(); got != "b" {
		t.Errorf("TakeCommand() = %q, want %q", got, "b")
	}
	if c.HasCommand() {
		t.Error("HasCommand() true right after take")
	}
}

func TestChannelTakeWithoutCommand(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewChannel(r)
	defer c.Close()

	if got := c.TakeCommand(); got != "" {
		t.Errorf("TakeCommand() = %q, want empty", got)
	}
}

func TestChannelSecondCommandQueuedUntilResume(t *testing.T) {
	c := NewChannel(strings.NewReader("first\nsecond\n"))
	defer c.Close()

	waitUntil(t, "first command", c.HasCommand)
	if got := c.TakeCommand(); got != "first" {
		t.Fatalf("TakeCommand() = %q, want %q", got, "first")
	}

	// Without Resume the second line must not be offered.
	time.Sleep(100 * time.Millisecond)
	if c.HasCommand() {
		t.Fatal("second command offered before Resume")
	}
	if got := c.TakeCommand(); got != "" {
		t.Fatalf("TakeCommand() while paused = %q, want empty", got)
	}

	c.Resume()
	waitUntil(t, "second command", c.HasCommand)
	if got := c.TakeCommand(); got != "second" {
		t.Errorf("TakeCommand() = %q, want %q", got, "second")
	}

	c.Resume()
	time.Sleep(50 * time.Millisecond)
	if c.HasCommand() {
		t.Error("a command was duplicated")
	}
}

func TestChannelPauseHoldsLine(t *testing.T) {
	r, w := io.Pipe()
	c := NewChannel(r)
	defer c.Close()

	c.Pause()
	go func() {
		_, _ = io.WriteString(w, "late\n")
	}()
	time.Sleep(100 * time.Millisecond)
	if c.HasCommand() {
		t.Fatal("command offered while paused")
	}

	c.Resume()
	waitUntil(t, "queued command", c.HasCommand)
	if got := c.TakeCommand(); got != "late" {
		t.Errorf("TakeCommand() = %q, want %q", got, "late")
	}
	w.Close()
}

func TestChannelReadLineWhilePaused(t *testing.T) {
	c := NewChannel(strings.NewReader("cf\n7\nnext\n"))
	defer c.Close()

	waitUntil(t, "command", c.HasCommand)
	if got := c.TakeCommand(); got != "cf" {
		t.Fatalf("TakeCommand() = %q, want cf", got)
	}

	line, ok := c.ReadLine()
	if !ok || line != "7" {
		t.Fatalf("ReadLine() = (%q, %v), want (\"7\", true)", line, ok)
	}
	if c.HasCommand() {
		t.Error("prompt response leaked as a command")
	}

	c.Resume()
	waitUntil(t, "next command", c.HasCommand)
	if got := c.TakeCommand(); got != "next" {
		t.Errorf("TakeCommand() = %q, want next", got)
	}
}

func TestChannelReadLineEOF(t *testing.T) {
	c := NewChannel(strings.NewReader(""))
	defer c.Close()

	if _, ok := c.ReadLine(); ok {
		t.Error("ReadLine() ok at EOF")
	}
	waitUntil(t, "done", c.Done)
}

func TestChannelEmptyLine(t *testing.T) {
	c := NewChannel(strings.NewReader("\r\n"))
	defer c.Close()

	waitUntil(t, "command", c.HasCommand)
	if got := c.TakeCommand(); got != "" {
		t.Errorf("TakeCommand() = %q, want empty line", got)
	}
}
