package v1

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/parley/internal/auth"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/server/middleware"
)

// Values of the status field carried by every response body.
const (
	StatusSuccess            = "success"
	StatusChallenge          = "challenge"
	StatusInvalidCredentials = "invalid_credentials"
	StatusError              = "error"
	StatusLoggedIn           = "logged_in"
	StatusLoggedOut          = "logged_out"
	StatusUnknown            = "unknown"
)

// Outcome is embedded in every response body. Kind and Message are set
// together on classified failures.
type Outcome struct {
	Status  string           `json:"status" doc:"Result status"`
	Kind    domain.ErrorKind `json:"kind,omitempty" doc:"Classified failure kind"`
	Message string           `json:"message,omitempty" doc:"Human-readable detail"`
}

func success() Outcome {
	return Outcome{Status: StatusSuccess}
}

func failure(kind domain.ErrorKind, msg string) Outcome {
	if msg == "" {
		msg = string(kind)
	}
	return Outcome{Status: StatusError, Kind: kind, Message: msg}
}

// operatorOnly rejects callers whose token does not carry the operator role.
func operatorOnly(api huma.API) huma.Middlewares {
	return huma.Middlewares{func(ctx huma.Context, next func(huma.Context)) {
		role, _ := middleware.RoleFromContext(ctx.Context())
		if role != auth.RoleOperator {
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "operator role required")
			return
		}
		next(ctx)
	}}
}
