package router

import (
	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/handler"
	"github.com/uwcs/warwickgg/internal/middleware"
)

// RegisterMember registers the signed-in user's endpoints.  Every write
// goes through the strict signup rate limit.
func RegisterMember(e *echo.Echo, ev *handler.EventHandler, tr *handler.TournamentHandler, st *handler.SeatingHandler, jwtSecret string, writeLimit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.GET("/events/:id/quote", ev.Quote)
	g.GET("/events/:id/signups", ev.ListSignups)
	g.POST("/events/:id/signup", ev.Signup, writeLimit)
	g.POST("/events/:id/checkout", ev.Checkout, writeLimit)
	g.DELETE("/events/:id/signup", ev.Cancel, writeLimit)

	g.POST("/tournaments/:id/signup", tr.Signup, writeLimit)
	g.DELETE("/tournaments/:id/signup", tr.Cancel, writeLimit)

	g.POST("/events/:id/seating", st.Submit, writeLimit)
}
