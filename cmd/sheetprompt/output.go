package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kalambet/sheetprompt/internal/progress"
	"github.com/kalambet/sheetprompt/internal/scheduler"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	clearLine   = "\r\033[K"
)

// stderr receives all status output; tests swap it for a buffer.
var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorCyan, "→ "+msg))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// console prints run events line by line and keeps a single live line with
// the time-left estimate underneath them. With color disabled the estimate
// is printed only when the done count changes.
type console struct {
	mu       sync.Mutex
	live     bool
	lastDone int
}

func newConsole() *console {
	return &console{lastDone: -1}
}

// OnEvent implements scheduler.Observer.
func (c *console) OnEvent(e scheduler.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()

	switch e.Kind {
	case scheduler.EventStarted:
		printStep("Sending %d requests to %s (%s mode, one every %s)",
			e.Total, e.Options.Model, e.Options.Mode, e.Options.Interval())
	case scheduler.EventResult:
		printSuccess("[%d/%d] %s", e.Index+1, e.Total, truncate(e.Prompt, 60))
	case scheduler.EventFinished:
		printSuccess("Completed %d of %d requests", e.Index, e.Total)
	case scheduler.EventFailed:
		printError("Run stopped at request %d of %d: %v", e.Index+1, e.Total, e.Err)
	}
}

// Estimate redraws the live progress line.
func (c *console) Estimate(e progress.Estimate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("%d/%d requests, elapsed %s, %s", e.Done, e.Total, progress.Format(e.Elapsed), e)
	if noColor {
		if e.Done != c.lastDone {
			fmt.Fprintln(stderr, "  "+line)
			c.lastDone = e.Done
		}
		return
	}
	fmt.Fprint(stderr, clearLine+colorize(colorCyan, "  "+line))
	c.live = true
}

// Close terminates the live line.
func (c *console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *console) clear() {
	if c.live {
		fmt.Fprint(stderr, clearLine)
		c.live = false
	}
}
