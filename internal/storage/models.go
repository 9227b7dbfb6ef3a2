package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses as stored in the runs table.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Run struct {
	ID            string
	Source        string // input workbook path, if any
	Mode          string
	Model         string
	RateLimit     int
	ResponseLimit int
	Total         int
	Completed     int // number of stored results; filled by reads
	Status        string
	Error         string
	OutputPath    string
	StartedAt     time.Time
	FinishedAt    time.Time // zero while running
}

type Result struct {
	RunID     string
	Index     int
	Request   string
	Response  string
	CreatedAt time.Time
}
