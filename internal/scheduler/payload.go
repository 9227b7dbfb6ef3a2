package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/sheetprompt/internal/generation"
)

// Mode selects the request shape sent for each prompt.
type Mode string

const (
	// ModeSingle sends each prompt alone.
	ModeSingle Mode = "single"
	// ModeConversation resends a system instruction plus every prompt up to
	// and including the current one as user turns. Earlier responses are not
	// included.
	ModeConversation Mode = "conversation"
)

// DefaultSystemPrompt opens every conversational transcript when no other
// instruction is configured.
const DefaultSystemPrompt = "You are a helpful assistant."

var errInvalidOptions = errors.New("invalid run options")

// Options are captured once when a run starts; later changes to the
// caller's settings do not affect a run in progress.
type Options struct {
	RateLimit     int
	ResponseLimit int
	Mode          Mode
	Model         string
	SystemPrompt  string
	// Source names where the queue came from; recorded only.
	Source string
}

// Validate checks that the options can drive a run.
func (o Options) Validate() error {
	if o.RateLimit <= 0 {
		return fmt.Errorf("%w: rate limit must be a positive integer, got %d", errInvalidOptions, o.RateLimit)
	}
	if o.ResponseLimit <= 0 {
		return fmt.Errorf("%w: response limit must be a positive integer, got %d", errInvalidOptions, o.ResponseLimit)
	}
	switch o.Mode {
	case "", ModeSingle, ModeConversation:
	default:
		return fmt.Errorf("%w: unknown mode %q", errInvalidOptions, o.Mode)
	}
	return nil
}

// Interval is the pause between the completion of one call and the dispatch
// of the next: 60s divided by the requests-per-minute limit.
func (o Options) Interval() time.Duration {
	if o.RateLimit <= 0 {
		return 0
	}
	return time.Minute / time.Duration(o.RateLimit)
}

// BuildRequest returns the generation request for prompt i of queue.
func BuildRequest(o Options, queue []string, i int) generation.Request {
	if o.Mode == ModeConversation {
		system := o.SystemPrompt
		if system == "" {
			system = DefaultSystemPrompt
		}
		msgs := make([]generation.Message, 0, i+2)
		msgs = append(msgs, generation.Message{Role: generation.RoleSystem, Content: system})
		for _, p := range queue[:i+1] {
			msgs = append(msgs, generation.Message{Role: generation.RoleUser, Content: p})
		}
		return generation.Request{Model: o.Model, Messages: msgs}
	}
	return generation.Request{
		Model:     o.Model,
		Prompt:    queue[i],
		MaxTokens: o.ResponseLimit,
	}
}
