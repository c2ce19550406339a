package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/handler"
	"github.com/uwcs/warwickgg/internal/middleware"
)

// RegisterExec registers exec-only endpoints.  The services repeat the
// exec check, so this group only turns non-exec callers away early.
func RegisterExec(e *echo.Echo, st *handler.SeatingHandler, jwtSecret string, exec middleware.ExecChecker, log *slog.Logger) {
	g := e.Group("/v1/exec",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireExec(exec, log),
	)
	g.GET("/events/:id/seating/revisions", st.Revisions)
	g.GET("/events/:id/seating/revisions/:number/diff", st.Diff)
}
