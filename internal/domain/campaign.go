package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignAborted   CampaignStatus = "aborted"
)

// Terminal reports whether the status can no longer change.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled || s == CampaignAborted
}

type Campaign struct {
	ID          uuid.UUID      `json:"id"`
	AccountID   string         `json:"account_id"`
	Targets     []string       `json:"targets"`
	Templates   []string       `json:"message_templates"`
	Count       int            `json:"count"`
	MinDelay    time.Duration  `json:"min_delay"`
	MaxDelay    time.Duration  `json:"max_delay"`
	Status      CampaignStatus `json:"status"`
	Sent        int            `json:"sent"`
	Failed      int            `json:"failed"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Iterations is the total number of sends the campaign will attempt.
func (c *Campaign) Iterations() int {
	return len(c.Targets) * c.Count
}

type CampaignRepository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)
	List(ctx context.Context, limit, offset int) ([]*Campaign, error)
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	RecordProgress(ctx context.Context, id uuid.UUID, sent, failed int) error
	Finish(ctx context.Context, id uuid.UUID, status CampaignStatus, kind ErrorKind, errMsg string, completedAt time.Time) error
}
