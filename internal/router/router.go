// Package router sets up the HTTP router and middleware chain.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/auth"
	"github.com/newapi-sidecar/sidecar/internal/config"
	"github.com/newapi-sidecar/sidecar/internal/handler"
	"github.com/newapi-sidecar/sidecar/internal/middleware"
)

// Dependencies holds every handler the router wires into routes
// (spec.md §6.4).
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	AuthService  *auth.Service
	Health       *handler.HealthHandler
	AuthHandler  *handler.AuthHandler
	Dashboard    *handler.DashboardHandler
	Risk         *handler.RiskHandler
	IP           *handler.IPHandler
	ModelStatus  *handler.ModelStatusHandler
	AIBan        *handler.AIBanHandler
	System       *handler.SystemHandler
	Admin        *handler.AdminHandler
}

// New creates the side-car's HTTP router with the full middleware chain and
// route table.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID", "X-Span-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Trace())
	r.Use(chimiddleware.Timeout(deps.Config.Server.WriteTimeout))
	r.Use(middleware.Auth(deps.AuthService, deps.Config.Auth.APIKey))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", deps.Health.Health)
		api.Get("/health/db", deps.Health.DB)

		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", deps.AuthHandler.Login)
			ar.Post("/logout", deps.AuthHandler.Logout)
		})

		api.Route("/dashboard", func(dr chi.Router) {
			dr.Get("/overview", deps.Dashboard.Overview)
			dr.Get("/usage", deps.Dashboard.Usage)
			dr.Get("/models", deps.Dashboard.Models)
			dr.Get("/trends/daily", deps.Dashboard.TrendsDaily)
			dr.Get("/trends/hourly", deps.Dashboard.TrendsHourly)
			dr.Get("/top-users", deps.Dashboard.TopUsers)
			dr.Get("/channels", deps.Dashboard.Channels)
			dr.Get("/ip-distribution", deps.Dashboard.IPDistribution)
			dr.Post("/cache/invalidate", deps.Dashboard.CacheInvalidate)
		})

		api.Route("/risk", func(rr chi.Router) {
			rr.Get("/leaderboards", deps.Risk.Leaderboards)
			rr.Get("/users/{user_id}/analysis", deps.Risk.UserAnalysis)
			rr.Get("/ban-records", deps.Risk.BanRecords)
			rr.Get("/token-rotation", deps.Risk.TokenRotation)
			rr.Get("/affiliated-accounts", deps.Risk.AffiliatedAccounts)
			rr.Get("/same-ip-registrations", deps.Risk.SameIPRegistrations)
		})

		api.Route("/ip", func(ir chi.Router) {
			ir.Get("/stats", deps.IP.Stats)
			ir.Get("/shared", deps.IP.Shared)
			ir.Get("/multi-ip-tokens", deps.IP.MultiIPTokens)
			ir.Get("/multi-ip-users", deps.IP.MultiIPUsers)
			ir.Get("/lookup/{ip}", deps.IP.Lookup)
			ir.Get("/users/{user_id}/ips", deps.IP.UserIPs)
			ir.Get("/geo/{ip}", deps.IP.Geo)
			ir.Post("/geo/batch", deps.IP.GeoBatch)
			ir.Post("/enable-all-recording", deps.IP.EnableAllRecording)
		})

		api.Route("/model-status", func(mr chi.Router) {
			mr.Get("/time-windows", deps.ModelStatus.TimeWindows)
			mr.Get("/models", deps.ModelStatus.Models)
			mr.Get("/status/all", deps.ModelStatus.StatusAll)
			mr.Post("/status/multiple", deps.ModelStatus.StatusMultiple)
			mr.Get("/status/{model_name}", deps.ModelStatus.Status)
			mr.Get("/config/{key}", deps.ModelStatus.GetConfig)
			mr.Post("/config/{key}", deps.ModelStatus.SetConfig)
			mr.Route("/embed", func(er chi.Router) {
				er.Get("/time-windows", deps.ModelStatus.TimeWindows)
				er.Get("/models", deps.ModelStatus.Models)
				er.Get("/status/all", deps.ModelStatus.StatusAll)
				er.Get("/status/{model_name}", deps.ModelStatus.Status)
			})
		})

		api.Route("/embed/model-status", func(er chi.Router) {
			er.Get("/time-windows", deps.ModelStatus.TimeWindows)
			er.Get("/models", deps.ModelStatus.Models)
			er.Get("/status/all", deps.ModelStatus.StatusAll)
			er.Get("/status/{model_name}", deps.ModelStatus.Status)
		})

		api.Route("/ai-ban", func(br chi.Router) {
			br.Get("/config", deps.AIBan.GetConfig)
			br.Post("/config", deps.AIBan.SetConfig)
			br.Post("/reset-api-health", deps.AIBan.ResetAPIHealth)
			br.Get("/audit-logs", deps.AIBan.AuditLogs)
			br.Delete("/audit-logs", deps.AIBan.DeleteAuditLogs)
			br.Get("/suspicious", deps.AIBan.Suspicious)
			br.Post("/assess", deps.AIBan.Assess)
			br.Post("/scan", deps.AIBan.Scan)
			br.Post("/test-connection", deps.AIBan.TestConnection)
			br.Get("/models", deps.AIBan.Models)
			br.Post("/test-model", deps.AIBan.TestModel)
			br.Get("/whitelist", deps.AIBan.WhitelistList)
			br.Post("/whitelist", deps.AIBan.WhitelistAdd)
			br.Delete("/whitelist/{user_id}", deps.AIBan.WhitelistRemove)
			br.Post("/users/{user_id}/ban", deps.AIBan.Ban)
			br.Post("/users/{user_id}/unban", deps.AIBan.Unban)
		})

		api.Route("/system", func(sr chi.Router) {
			sr.Get("/scale", deps.System.Scale)
			sr.Post("/scale/refresh", deps.System.ScaleRefresh)
			sr.Get("/warmup-status", deps.System.WarmupStatus)
			sr.Get("/indexes", deps.System.Indexes)
			sr.Post("/indexes/ensure", deps.System.IndexesEnsure)
		})

		api.Route("/top-ups", func(tr chi.Router) {
			tr.Get("/", deps.Admin.TopUpsList)
			tr.Get("/statistics", deps.Admin.TopUpsStatistics)
			tr.Post("/{id}/refund", deps.Admin.TopUpsRefund)
			tr.Delete("/{id}", deps.Admin.TopUpsDelete)
		})

		api.Route("/redemptions", func(rr chi.Router) {
			rr.Get("/", deps.Admin.RedemptionsList)
			rr.Post("/generate", deps.Admin.RedemptionsGenerate)
			rr.Delete("/{id}", deps.Admin.RedemptionsDelete)
		})

		api.Route("/tokens", func(tr chi.Router) {
			tr.Get("/", deps.Admin.TokensList)
			tr.Delete("/{id}", deps.Admin.TokensDelete)
		})

		api.Route("/users", func(ur chi.Router) {
			ur.Get("/", deps.Admin.UsersList)
			ur.Post("/{id}/ban", deps.Admin.UsersBan)
			ur.Post("/{id}/unban", deps.Admin.UsersUnban)
			ur.Delete("/{id}", deps.Admin.UsersDelete)
		})

		api.Route("/status-page", func(kr chi.Router) {
			kr.Get("/{slug}", deps.ModelStatus.StatusPage)
			kr.Get("/{slug}/badge", deps.ModelStatus.StatusPageBadge)
			kr.Get("/{slug}/summary", deps.ModelStatus.StatusPageSummary)
		})
	})

	// Uptime-kuma's own client expects these three unprefixed (no /api) paths.
	r.Get("/status-page/heartbeat/{slug}", deps.ModelStatus.StatusPageHeartbeat)
	r.Get("/status-page/{slug}/badge", deps.ModelStatus.StatusPageBadge)
	r.Get("/status-page/{slug}/summary", deps.ModelStatus.StatusPageSummary)

	return r
}
