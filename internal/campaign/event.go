package campaign

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/parley/internal/domain"
)

type EventType string

const (
	EventStarted  EventType = "campaign_started"
	EventSent     EventType = "message_sent"
	EventFailed   EventType = "message_failed"
	EventFinished EventType = "campaign_finished"
)

// Event is published on the campaign's pub/sub channel.
type Event struct {
	Type       EventType             `json:"type"`
	CampaignID uuid.UUID             `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status,omitempty"`
	Kind       domain.ErrorKind      `json:"kind,omitempty"`
	Target     string                `json:"target,omitempty"`
	Iteration  int                   `json:"iteration,omitempty"`
	Total      int                   `json:"total,omitempty"`
	Sent       int                   `json:"sent,omitempty"`
	Failed     int                   `json:"failed,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}
