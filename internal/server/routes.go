package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/parley/internal/api/v1"
	"github.com/gosuda/parley/internal/api/ws"
	"github.com/gosuda/parley/internal/auth"
	"github.com/gosuda/parley/internal/server/middleware"
)

func registerAPIRoutes(api huma.API, svc Services) {
	v1.RegisterSessionRoutes(api, svc.Sessions)
	v1.RegisterActionRoutes(api, svc.Actions)
	v1.RegisterCampaignRoutes(api, svc.Campaigns, svc.Sessions)
	v1.RegisterLogRoutes(api, svc.Logs)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.With(middleware.RequireRole(auth.RoleOperator, auth.RoleViewer)).
		Get("/campaigns/{campaignID}", hub.ServeCampaign)
}
