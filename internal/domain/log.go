package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LogCategory string

const (
	LogChallenge    LogCategory = "challenge"
	LogStatusUpdate LogCategory = "status_update"
	LogError        LogCategory = "error"
)

// LogEntry is an append-only journal record surfaced through the logs endpoint.
type LogEntry struct {
	ID          uuid.UUID   `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Category    LogCategory `json:"category"`
	Description string      `json:"description"`
	Detail      string      `json:"detail,omitempty"`
}

type LogRepository interface {
	Append(ctx context.Context, entry *LogEntry) error
	// ListRecent returns at most limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*LogEntry, error)
}
