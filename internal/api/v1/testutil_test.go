package v1_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/parley/internal/action"
	"github.com/gosuda/parley/internal/auth"
	"github.com/gosuda/parley/internal/campaign"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/server/middleware"
	"github.com/gosuda/parley/internal/session"
	"github.com/gosuda/parley/internal/surface"
)

// ---------------------------------------------------------------------------
// Context helpers: inject operator and role into context for DoCtx
// ---------------------------------------------------------------------------

func roleCtx(role string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, middleware.ContextKeyOperator, "alice")
	ctx = context.WithValue(ctx, middleware.ContextKeyRole, role)
	return ctx
}

func operatorCtx() context.Context { return roleCtx(auth.RoleOperator) }

func viewerCtx() context.Context { return roleCtx(auth.RoleViewer) }

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// ---------------------------------------------------------------------------
// Mock SessionService
// ---------------------------------------------------------------------------

type mockSessions struct {
	loginFunc     func(ctx context.Context, cred domain.Credential) (session.LoginResult, error)
	challengeFunc func(ctx context.Context, accountID, code string) (session.ChallengeResult, error)
	checkFunc     func(ctx context.Context, accountID string) (session.Validity, error)
	reauthFunc    func(ctx context.Context, accountID string) (session.LoginResult, error)
	logoutFunc    func(ctx context.Context, accountID string) error
}

func (m *mockSessions) Login(ctx context.Context, cred domain.Credential) (session.LoginResult, error) {
	return m.loginFunc(ctx, cred)
}

func (m *mockSessions) SubmitChallenge(ctx context.Context, accountID, code string) (session.ChallengeResult, error) {
	return m.challengeFunc(ctx, accountID, code)
}

func (m *mockSessions) Check(ctx context.Context, accountID string) (session.Validity, error) {
	return m.checkFunc(ctx, accountID)
}

func (m *mockSessions) Reauthenticate(ctx context.Context, accountID string) (session.LoginResult, error) {
	return m.reauthFunc(ctx, accountID)
}

func (m *mockSessions) Logout(ctx context.Context, accountID string) error {
	return m.logoutFunc(ctx, accountID)
}

// ---------------------------------------------------------------------------
// Mock ActionExecutor
// ---------------------------------------------------------------------------

type mockExecutor struct {
	executeFunc func(ctx context.Context, accountID string, op surface.Operation) (action.Result, error)
}

func (m *mockExecutor) Execute(ctx context.Context, accountID string, op surface.Operation) (action.Result, error) {
	return m.executeFunc(ctx, accountID, op)
}

// ---------------------------------------------------------------------------
// Mock CampaignRunner
// ---------------------------------------------------------------------------

type mockRunner struct {
	startFunc  func(ctx context.Context, spec campaign.Spec) (*domain.Campaign, error)
	cancelFunc func(ctx context.Context, id uuid.UUID) error
	getFunc    func(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	listFunc   func(ctx context.Context, limit, offset int) ([]*domain.Campaign, error)
}

func (m *mockRunner) Start(ctx context.Context, spec campaign.Spec) (*domain.Campaign, error) {
	return m.startFunc(ctx, spec)
}

func (m *mockRunner) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.cancelFunc(ctx, id)
}

func (m *mockRunner) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return m.getFunc(ctx, id)
}

func (m *mockRunner) List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error) {
	return m.listFunc(ctx, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock LogReader
// ---------------------------------------------------------------------------

type mockLogs struct {
	listRecentFunc func(ctx context.Context, limit int) ([]*domain.LogEntry, error)
}

func (m *mockLogs) ListRecent(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	return m.listRecentFunc(ctx, limit)
}
