package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/model"
)

type tournamentResp struct {
	ID                 uint64    `json:"id"`
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Platform           string    `json:"platform,omitempty"`
	EventID            *uint64   `json:"event_id,omitempty"`
	RequiresAttendance bool      `json:"requires_attendance"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	SignupStart        time.Time `json:"signup_start"`
	SignupEnd          time.Time `json:"signup_end"`
	SignupLimit        int       `json:"signup_limit"`
}

type tournamentDetailResp struct {
	tournamentResp
	SignupsLeft int `json:"signups_left"`
}

type tournamentSignupReq struct {
	Comment string `json:"comment"`
}

type tournamentSignupResp struct {
	ID           uint64    `json:"id"`
	TournamentID uint64    `json:"tournament_id"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toTournamentResp(t model.Tournament) tournamentResp {
	return tournamentResp{
		ID:                 t.ID,
		Slug:               t.Slug,
		Title:              t.Title,
		Description:        t.Description,
		Platform:           t.Platform,
		EventID:            t.EventID,
		RequiresAttendance: t.RequiresAttendance,
		Start:              t.Start,
		End:                t.End,
		SignupStart:        t.SignupStart,
		SignupEnd:          t.SignupEnd,
		SignupLimit:        t.SignupLimit,
	}
}

// TournamentHandler serves /v1/tournaments.  It shares the catalog and
// signup services with EventHandler.
type TournamentHandler struct {
	*EventHandler
}

func NewTournamentHandler(events *EventHandler) *TournamentHandler {
	return &TournamentHandler{EventHandler: events}
}

// Get returns a tournament and its remaining capacity.
func (h *TournamentHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	d, err := h.Catalog.Tournament(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tournamentDetailResp{
		tournamentResp: toTournamentResp(d.Tournament),
		SignupsLeft:    d.SignupsLeft,
	})
}

// Signup registers the caller for a tournament.
func (h *TournamentHandler) Signup(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req tournamentSignupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	su, err := h.Signups.SignupTournament(ctx, uid, id, req.Comment)
	if err != nil {
		return err
	}
	h.invalidate(ctx)
	return c.JSON(http.StatusCreated, tournamentSignupResp{
		ID:           su.ID,
		TournamentID: su.TournamentID,
		Comment:      su.Comment,
		CreatedAt:    su.CreatedAt,
	})
}

// Cancel withdraws the caller's tournament signup.
func (h *TournamentHandler) Cancel(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	if err := h.Signups.CancelTournamentSignup(ctx, uid, id); err != nil {
		return err
	}
	h.invalidate(ctx)
	return c.NoContent(http.StatusNoContent)
}
