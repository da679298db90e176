package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/session"
)

type LoginInput struct {
	Body struct {
		AccountID string `json:"account_id" minLength:"1" maxLength:"255" doc:"External account identifier"`
		Secret    string `json:"secret" minLength:"1" doc:"Account secret, held in memory only"` //nolint:gosec // G117: request field
	}
}

type LoginOutput struct {
	Body struct {
		Outcome
		ChallengeID *uuid.UUID `json:"challenge_id,omitempty" doc:"Pending challenge when status is challenge"`
	}
}

type ChallengeInput struct {
	Body struct {
		AccountID string `json:"account_id" minLength:"1" maxLength:"255" doc:"External account identifier"`
		Code      string `json:"code" minLength:"1" maxLength:"64" doc:"Verification code"`
	}
}

type ChallengeOutput struct {
	Body Outcome
}

type SessionStatusInput struct {
	AccountID string `query:"account_id" required:"true" minLength:"1" doc:"External account identifier"`
}

type SessionStatusOutput struct {
	Body Outcome
}

type LogoutInput struct {
	Body struct {
		AccountID string `json:"account_id" minLength:"1" maxLength:"255" doc:"External account identifier"`
	}
}

type LogoutOutput struct {
	Body Outcome
}

func RegisterSessionRoutes(api huma.API, sessions SessionService) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/session/login",
		Summary:     "Log an account in",
		Tags:        []string{"Session"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		res, err := sessions.Login(ctx, domain.Credential{AccountID: input.Body.AccountID, Secret: input.Body.Secret})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return nil, huma.Error400BadRequest("account_id and secret are required")
			}
			return nil, huma.Error500InternalServerError("login failed", err)
		}

		out := &LoginOutput{}
		switch res.Outcome {
		case session.LoginAuthenticated:
			out.Body.Outcome = success()
		case session.LoginChallengeRequired:
			out.Body.Outcome = Outcome{Status: StatusChallenge, Kind: res.Kind(), Message: "interactive verification required"}
			if res.Challenge != nil {
				id := res.Challenge.ID
				out.Body.ChallengeID = &id
			}
		case session.LoginInvalidCredentials:
			out.Body.Outcome = Outcome{Status: StatusInvalidCredentials, Kind: res.Kind(), Message: res.Reason}
		default:
			out.Body.Outcome = failure(res.Kind(), res.Reason)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-challenge",
		Method:      http.MethodPost,
		Path:        "/session/challenge",
		Summary:     "Submit a verification code for a pending challenge",
		Tags:        []string{"Session"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *ChallengeInput) (*ChallengeOutput, error) {
		res, err := sessions.SubmitChallenge(ctx, input.Body.AccountID, input.Body.Code)
		if err != nil {
			if errors.Is(err, session.ErrNoPendingChallenge) {
				return nil, huma.Error409Conflict("no pending challenge for account")
			}
			return nil, huma.Error500InternalServerError("challenge submission failed", err)
		}

		switch res.Outcome {
		case session.ChallengeResolved:
			return &ChallengeOutput{Body: success()}, nil
		case session.ChallengeStillPending:
			return &ChallengeOutput{Body: failure(res.Kind(), "code rejected, challenge still pending")}, nil
		default:
			return &ChallengeOutput{Body: failure(res.Kind(), res.Reason)}, nil
		}
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-status",
		Method:      http.MethodGet,
		Path:        "/session/status",
		Summary:     "Check whether the stored session is still valid",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *SessionStatusInput) (*SessionStatusOutput, error) {
		v, err := sessions.Check(ctx, input.AccountID)
		if err != nil {
			return nil, huma.Error500InternalServerError("session check failed", err)
		}

		switch v {
		case session.Valid:
			return &SessionStatusOutput{Body: Outcome{Status: StatusLoggedIn}}, nil
		case session.Invalid:
			return &SessionStatusOutput{Body: Outcome{Status: StatusLoggedOut}}, nil
		default:
			return &SessionStatusOutput{Body: Outcome{Status: StatusUnknown, Kind: domain.KindTransient, Message: "session check inconclusive"}}, nil
		}
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/session/logout",
		Summary:     "Forget the stored session and credential",
		Tags:        []string{"Session"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *LogoutInput) (*LogoutOutput, error) {
		if err := sessions.Logout(ctx, input.Body.AccountID); err != nil {
			return nil, huma.Error500InternalServerError("logout failed", err)
		}
		return &LogoutOutput{Body: success()}, nil
	})
}
