package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/parley/internal/action"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/surface"
)

type SendMessageInput struct {
	Body struct {
		AccountID string `json:"account_id" minLength:"1" maxLength:"255" doc:"Account to send from"`
		Target    string `json:"target" minLength:"1" doc:"Recipient or group identifier"`
		Text      string `json:"text" minLength:"1" doc:"Message text"`
	}
}

type RenameGroupInput struct {
	Body struct {
		AccountID string `json:"account_id" minLength:"1" maxLength:"255" doc:"Account that owns the group"`
		Target    string `json:"target" minLength:"1" doc:"Group identifier"`
		Name      string `json:"name" minLength:"1" doc:"New group name"`
	}
}

type ActionOutput struct {
	Body Outcome
}

type ListThreadsInput struct {
	AccountID string `query:"account_id" required:"true" minLength:"1" doc:"Account to list threads for"`
}

type ListThreadsOutput struct {
	Body struct {
		Outcome
		Threads json.RawMessage `json:"threads,omitempty" doc:"Thread list as returned by the surface"`
	}
}

func RegisterActionRoutes(api huma.API, exec ActionExecutor) {
	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/actions/send-message",
		Summary:     "Send one message",
		Tags:        []string{"Actions"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *SendMessageInput) (*ActionOutput, error) {
		res, err := exec.Execute(ctx, input.Body.AccountID, surface.Operation{
			Kind:   surface.OpSendMessage,
			Target: input.Body.Target,
			Text:   input.Body.Text,
		})
		if err != nil {
			return nil, actionError(err)
		}
		return &ActionOutput{Body: actionOutcome(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-group",
		Method:      http.MethodPost,
		Path:        "/actions/rename-group",
		Summary:     "Rename a group conversation",
		Tags:        []string{"Actions"},
		Middlewares: operatorOnly(api),
	}, func(ctx context.Context, input *RenameGroupInput) (*ActionOutput, error) {
		res, err := exec.Execute(ctx, input.Body.AccountID, surface.Operation{
			Kind:   surface.OpRenameGroup,
			Target: input.Body.Target,
			Text:   input.Body.Name,
		})
		if err != nil {
			return nil, actionError(err)
		}
		return &ActionOutput{Body: actionOutcome(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-threads",
		Method:      http.MethodGet,
		Path:        "/actions/threads",
		Summary:     "List conversation threads",
		Tags:        []string{"Actions"},
	}, func(ctx context.Context, input *ListThreadsInput) (*ListThreadsOutput, error) {
		res, err := exec.Execute(ctx, input.AccountID, surface.Operation{Kind: surface.OpListThreads})
		if err != nil {
			return nil, actionError(err)
		}

		out := &ListThreadsOutput{}
		out.Body.Outcome = actionOutcome(res)
		if res.Status == action.StatusSuccess && json.Valid(res.Output) {
			out.Body.Threads = res.Output
		}
		return out, nil
	})
}

func actionOutcome(res action.Result) Outcome {
	if res.Status == action.StatusSuccess {
		return success()
	}
	return failure(res.Kind(), res.Reason)
}

func actionError(err error) error {
	if errors.Is(err, domain.ErrInvalidInput) {
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError("action failed", err)
}
