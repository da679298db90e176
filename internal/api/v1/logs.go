package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/parley/internal/domain"
)

type ListLogsInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max entries, newest first"`
}

type ListLogsOutput struct {
	Body struct {
		Outcome
		Logs []*domain.LogEntry `json:"logs"`
	}
}

func RegisterLogRoutes(api huma.API, logs LogReader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "List recent journal entries",
		Tags:        []string{"Logs"},
	}, func(ctx context.Context, input *ListLogsInput) (*ListLogsOutput, error) {
		entries, err := logs.ListRecent(ctx, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list logs", err)
		}

		out := &ListLogsOutput{}
		out.Body.Outcome = success()
		out.Body.Logs = entries
		if out.Body.Logs == nil {
			out.Body.Logs = []*domain.LogEntry{}
		}
		return out, nil
	})
}
