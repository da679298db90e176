package v1_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/parley/internal/api/v1"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/session"
)

type loginBody struct {
	Status      string           `json:"status"`
	Kind        domain.ErrorKind `json:"kind"`
	Message     string           `json:"message"`
	ChallengeID *uuid.UUID       `json:"challenge_id"`
}

// ---------------------------------------------------------------------------
// POST /session/login
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	t.Parallel()

	challengeID := uuid.New()

	tests := []struct {
		name       string
		result     session.LoginResult
		err        error
		wantCode   int
		wantStatus string
		wantKind   domain.ErrorKind
	}{
		{
			name:       "authenticated",
			result:     session.LoginResult{Outcome: session.LoginAuthenticated},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusSuccess,
		},
		{
			name: "challenge",
			result: session.LoginResult{
				Outcome:   session.LoginChallengeRequired,
				Challenge: &domain.ChallengeContext{ID: challengeID, AccountID: "acct"},
			},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusChallenge,
			wantKind:   domain.KindChallengeRequired,
		},
		{
			name:       "invalid_credentials",
			result:     session.LoginResult{Outcome: session.LoginInvalidCredentials, Reason: "rejected"},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusInvalidCredentials,
			wantKind:   domain.KindInvalidCredentials,
		},
		{
			name:       "transient",
			result:     session.LoginResult{Outcome: session.LoginTransientFailure, Reason: "timeout"},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusError,
			wantKind:   domain.KindTransient,
		},
		{
			name:     "invalid_input",
			err:      fmt.Errorf("session.Manager.Login: %w", domain.ErrInvalidInput),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "store_error",
			err:      errors.New("db: connection refused"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			var got domain.Credential
			v1.RegisterSessionRoutes(api, &mockSessions{
				loginFunc: func(_ context.Context, cred domain.Credential) (session.LoginResult, error) {
					got = cred
					return tt.result, tt.err
				},
			})

			resp := api.PostCtx(operatorCtx(), "/session/login", map[string]any{
				"account_id": "acct",
				"secret":     "hunter2",
			})

			require.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, domain.Credential{AccountID: "acct", Secret: "hunter2"}, got)
			if tt.wantCode != http.StatusOK {
				return
			}

			body := decode[loginBody](t, resp.Body.Bytes())
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantKind, body.Kind)
			if tt.result.Challenge != nil {
				require.NotNil(t, body.ChallengeID)
				assert.Equal(t, challengeID, *body.ChallengeID)
			} else {
				assert.Nil(t, body.ChallengeID)
			}
		})
	}

	t.Run("viewer_forbidden", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterSessionRoutes(api, &mockSessions{})

		resp := api.PostCtx(viewerCtx(), "/session/login", map[string]any{
			"account_id": "acct",
			"secret":     "hunter2",
		})

		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("missing_secret", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterSessionRoutes(api, &mockSessions{})

		resp := api.PostCtx(operatorCtx(), "/session/login", map[string]any{
			"account_id": "acct",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /session/challenge
// ---------------------------------------------------------------------------

func TestSubmitChallenge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     session.ChallengeResult
		err        error
		wantCode   int
		wantStatus string
		wantKind   domain.ErrorKind
	}{
		{
			name:       "resolved",
			result:     session.ChallengeResult{Outcome: session.ChallengeResolved},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusSuccess,
		},
		{
			name:       "still_pending",
			result:     session.ChallengeResult{Outcome: session.ChallengeStillPending},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusError,
			wantKind:   domain.KindChallengeRequired,
		},
		{
			name:       "failed_invalid_credentials",
			result:     session.ChallengeResult{Outcome: session.ChallengeFailed, FailureKind: domain.KindInvalidCredentials},
			wantCode:   http.StatusOK,
			wantStatus: v1.StatusError,
			wantKind:   domain.KindInvalidCredentials,
		},
		{
			name:     "no_pending_challenge",
			err:      fmt.Errorf("session.Manager.SubmitChallenge: %w", session.ErrNoPendingChallenge),
			wantCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			v1.RegisterSessionRoutes(api, &mockSessions{
				challengeFunc: func(_ context.Context, accountID, code string) (session.ChallengeResult, error) {
					assert.Equal(t, "acct", accountID)
					assert.Equal(t, "123456", code)
					return tt.result, tt.err
				},
			})

			resp := api.PostCtx(operatorCtx(), "/session/challenge", map[string]any{
				"account_id": "acct",
				"code":       "123456",
			})

			require.Equal(t, tt.wantCode, resp.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			body := decode[v1.Outcome](t, resp.Body.Bytes())
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantKind, body.Kind)
		})
	}
}

// ---------------------------------------------------------------------------
// GET /session/status
// ---------------------------------------------------------------------------

func TestSessionStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		validity   session.Validity
		wantStatus string
	}{
		{name: "valid", validity: session.Valid, wantStatus: v1.StatusLoggedIn},
		{name: "invalid", validity: session.Invalid, wantStatus: v1.StatusLoggedOut},
		{name: "unknown", validity: session.Unknown, wantStatus: v1.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			v1.RegisterSessionRoutes(api, &mockSessions{
				checkFunc: func(_ context.Context, accountID string) (session.Validity, error) {
					assert.Equal(t, "acct", accountID)
					return tt.validity, nil
				},
			})

			resp := api.GetCtx(viewerCtx(), "/session/status?account_id=acct")

			require.Equal(t, http.StatusOK, resp.Code)
			body := decode[v1.Outcome](t, resp.Body.Bytes())
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}

	t.Run("missing_account_id", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterSessionRoutes(api, &mockSessions{})

		resp := api.GetCtx(viewerCtx(), "/session/status")

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /session/logout
// ---------------------------------------------------------------------------

func TestLogout(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		var called string
		v1.RegisterSessionRoutes(api, &mockSessions{
			logoutFunc: func(_ context.Context, accountID string) error {
				called = accountID
				return nil
			},
		})

		resp := api.PostCtx(operatorCtx(), "/session/logout", map[string]any{"account_id": "acct"})

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "acct", called)
		assert.Equal(t, v1.StatusSuccess, decode[v1.Outcome](t, resp.Body.Bytes()).Status)
	})

	t.Run("viewer_forbidden", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterSessionRoutes(api, &mockSessions{})

		resp := api.PostCtx(viewerCtx(), "/session/logout", map[string]any{"account_id": "acct"})

		assert.Equal(t, http.StatusForbidden, resp.Code)
	})
}
