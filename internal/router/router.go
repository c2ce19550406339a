package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uwcs/warwickgg/internal/handler"
	"github.com/uwcs/warwickgg/internal/middleware"
)

// RegisterRoutes registers probes and the prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers authentication routes.  Register, login and
// refresh need no session; logout accepts either a refresh token or a
// bearer token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.OptionalAuth(jwtSecret))

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the catalog reads.  Anonymous responses go
// through the shared response cache.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, tr *handler.TournamentHandler, st *handler.SeatingHandler, cache *middleware.ResponseCache) {
	g := e.Group("/v1", cache.Middleware())
	g.GET("/events", ev.List)
	g.GET("/events/:id", ev.Get)
	g.GET("/events/:id/seating", st.Seats)
	g.GET("/tournaments/:id", tr.Get)
}

// RegisterWebhooks registers the payment processor callback.  It is
// authenticated by its signature, not by a session.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/webhooks/payment", w.Payment)
}
