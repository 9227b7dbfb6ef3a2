package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidValue is wrapped by every ValidationError.
var ErrInvalidValue = errors.New("invalid value")

// ValidationError reports a rejected configuration value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %q %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidValue }

// ParsePositiveInt parses raw as a base-10 integer greater than zero.
func ParsePositiveInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: field, Value: raw, Reason: "must be a positive integer"}
	}
	return n, nil
}

// Limits holds the rate limit (requests per minute) and the response limit
// (max tokens per call) that the next run will use. A rejected update keeps
// the previous value.
type Limits struct {
	mu       sync.Mutex
	rate     int
	response int
}

// NewLimits returns Limits seeded from already-validated values.
func NewLimits(rate, response int) *Limits {
	return &Limits{rate: rate, response: response}
}

// SetRateLimit validates raw and commits it, returning the value now in effect.
func (l *Limits) SetRateLimit(raw string) (int, error) {
	n, err := ParsePositiveInt("rate_limit", raw)
	if err != nil {
		return l.RateLimit(), err
	}
	l.mu.Lock()
	l.rate = n
	l.mu.Unlock()
	return n, nil
}

// SetResponseLimit validates raw and commits it, returning the value now in effect.
func (l *Limits) SetResponseLimit(raw string) (int, error) {
	n, err := ParsePositiveInt("response_limit", raw)
	if err != nil {
		return l.ResponseLimit(), err
	}
	l.mu.Lock()
	l.response = n
	l.mu.Unlock()
	return n, nil
}

func (l *Limits) RateLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

func (l *Limits) ResponseLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.response
}
