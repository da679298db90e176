package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/parley/internal/action"
	"github.com/gosuda/parley/internal/campaign"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/session"
	"github.com/gosuda/parley/internal/surface"
)

// SessionService abstracts session lifecycle operations for handler testing.
// *session.Manager satisfies this interface.
type SessionService interface {
	Login(ctx context.Context, cred domain.Credential) (session.LoginResult, error)
	SubmitChallenge(ctx context.Context, accountID, code string) (session.ChallengeResult, error)
	Check(ctx context.Context, accountID string) (session.Validity, error)
	Reauthenticate(ctx context.Context, accountID string) (session.LoginResult, error)
	Logout(ctx context.Context, accountID string) error
}

// ActionExecutor abstracts single operations for handler testing.
// *action.Executor satisfies this interface.
type ActionExecutor interface {
	Execute(ctx context.Context, accountID string, op surface.Operation) (action.Result, error)
}

// CampaignRunner abstracts campaign lifecycle operations for handler testing.
// *campaign.Runner satisfies this interface.
type CampaignRunner interface {
	Start(ctx context.Context, spec campaign.Spec) (*domain.Campaign, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error)
}

// LogReader abstracts journal reads. domain.LogRepository satisfies this interface.
type LogReader interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.LogEntry, error)
}
