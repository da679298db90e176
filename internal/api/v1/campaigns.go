package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/campaign"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/session"
)

// CampaignRecord is the API view of a campaign. Delays are in seconds.
type CampaignRecord struct {
	ID          uuid.UUID             `json:"id"`
	AccountID   string                `json:"account_id"`
	Targets     []string              `json:"targets"`
	Templates   []string              `json:"message_templates"`
	Count       int                   `json:"count"`
	MinDelay    float64               `json:"min_delay"`
	MaxDelay    float64               `json:"max_delay"`
	Status      domain.CampaignStatus `json:"status"`
	Sent        int                   `json:"sent"`
	Failed      int                   `json:"failed"`
	ErrorKind   domain.ErrorKind      `json:"error_kind,omitempty"`
	Error       string                `json:"error,omitempty"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toRecord(c *domain.Campaign) *CampaignRecord {
	return &CampaignRecord{
		ID:          c.ID,
		AccountID:   c.AccountID,
		Targets:     c.Targets,
		Templates:   c.Templates,
		Count:       c.Count,
		MinDelay:    c.MinDelay.Seconds(),
		MaxDelay:    c.MaxDelay.Seconds(),
		Status:      c.Status,
		Sent:        c.Sent,
		Failed:      c.Failed,
		ErrorKind:   c.ErrorKind,
		Error:       c.Error,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		CreatedAt:   c.CreatedAt,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type StartCampaignInput struct {
	Body struct {
		AccountID string   `json:"account_id" minLength:"1" maxLength:"255" doc:"Account to send from"`
		Targets   []string `json:"targets" minItems:"1" doc:"Recipients or group identifiers"`
		Templates []string `json:"message_templates" minItems:"1" doc:"Message templates, one picked per send"`
		Count     int      `json:"count" minimum:"1" doc:"Messages per target"`
		MinDelay  float64  `json:"min_delay" minimum:"0" doc:"Minimum delay between sends, in seconds"`
		MaxDelay  float64  `json:"max_delay" minimum:"0" doc:"Maximum delay between sends, in seconds"`
	}
}

type StartCampaignOutput struct {
	Body struct {
		Outcome
		CampaignID *uuid.UUID `json:"campaign_id,omitempty" doc:"Campaign ID when status is success"`
	}
}

type ListCampaignsInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListCampaignsOutput struct {
	Body struct {
		Outcome
		Campaigns []*CampaignRecord `json:"campaigns"`
	}
}

type GetCampaignInput struct {
	ID uuid.UUID `path:"id" doc:"Campaign ID"`
}

type GetCampaignOutput struct {
	Body struct {
		Outcome
		Campaign *CampaignRecord `json:"campaign"`
	}
}

type CancelCampaignInput struct {
	ID uuid.UUID `path:"id" doc:"Campaign ID"`
}

type CancelCampaignOutput struct {
	Body struct {
		Outcome
		Campaign *CampaignRecord `json:"campaign"`
	}
}

func RegisterCampaignRoutes(api huma.API, runner CampaignRunner, sessions SessionService) {
	huma.Register(api, huma.Operation{
		OperationID: "start-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns",
		Summary:     "Start a background campaign",
		Tags:        []string{"Campaigns"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *StartCampaignInput) (*StartCampaignOutput, error) {
		out := &StartCampaignOutput{}

		if outcome, ok := ensureSession(ctx, sessions, input.Body.AccountID); !ok {
			out.Body.Outcome = outcome
			return out, nil
		}

		c, err := runner.Start(ctx, campaign.Spec{
			AccountID: input.Body.AccountID,
			Targets:   input.Body.Targets,
			Templates: input.Body.Templates,
			Count:     input.Body.Count,
			MinDelay:  seconds(input.Body.MinDelay),
			MaxDelay:  seconds(input.Body.MaxDelay),
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return nil, huma.Error400BadRequest(err.Error())
			}
			if errors.Is(err, campaign.ErrShuttingDown) {
				return nil, huma.Error503ServiceUnavailable("server is shutting down")
			}
			return nil, huma.Error500InternalServerError("failed to start campaign", err)
		}

		out.Body.Outcome = success()
		out.Body.CampaignID = &c.ID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns, newest first",
		Tags:        []string{"Campaigns"},
	}, func(ctx context.Context, input *ListCampaignsInput) (*ListCampaignsOutput, error) {
		cs, err := runner.List(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list campaigns", err)
		}

		out := &ListCampaignsOutput{}
		out.Body.Outcome = success()
		out.Body.Campaigns = make([]*CampaignRecord, 0, len(cs))
		for _, c := range cs {
			out.Body.Campaigns = append(out.Body.Campaigns, toRecord(c))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{id}",
		Summary:     "Get a campaign by ID",
		Tags:        []string{"Campaigns"},
	}, func(ctx context.Context, input *GetCampaignInput) (*GetCampaignOutput, error) {
		c, err := runner.Get(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("campaign not found")
			}
			return nil, huma.Error500InternalServerError("failed to get campaign", err)
		}

		out := &GetCampaignOutput{}
		out.Body.Outcome = success()
		out.Body.Campaign = toRecord(c)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns/{id}/cancel",
		Summary:     "Cancel a running campaign",
		Tags:        []string{"Campaigns"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *CancelCampaignInput) (*CancelCampaignOutput, error) {
		err := runner.Cancel(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("campaign not found")
			}
			if errors.Is(err, campaign.ErrNotRunning) {
				return nil, huma.Error409Conflict("campaign is not running")
			}
			return nil, huma.Error500InternalServerError("failed to cancel campaign", err)
		}

		c, err := runner.Get(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get cancelled campaign", err)
		}

		out := &CancelCampaignOutput{}
		out.Body.Outcome = success()
		out.Body.Campaign = toRecord(c)
		return out, nil
	})
}

// ensureSession checks the stored session and, when it is gone, logs in again
// with the held credential. An inconclusive check lets the campaign start;
// the runner recovers from a stale session on its own.
func ensureSession(ctx context.Context, sessions SessionService, accountID string) (Outcome, bool) {
	v, err := sessions.Check(ctx, accountID)
	if err != nil {
		return failure(domain.KindTransient, "session check failed"), false
	}
	if v != session.Invalid {
		return Outcome{}, true
	}

	res, err := sessions.Reauthenticate(ctx, accountID)
	if err != nil {
		if errors.Is(err, session.ErrNoCredential) {
			return failure(domain.KindSessionInvalid, "no valid session and no credential held; log in first"), false
		}
		log.Error().Err(err).Str("account_id", accountID).Msg("v1.ensureSession: reauthentication failed")
		return failure(domain.KindTransient, "reauthentication failed"), false
	}

	switch res.Outcome {
	case session.LoginAuthenticated:
		return Outcome{}, true
	case session.LoginChallengeRequired:
		return Outcome{Status: StatusChallenge, Kind: res.Kind(), Message: "interactive verification required before the campaign can start"}, false
	default:
		return failure(res.Kind(), res.Reason), false
	}
}
