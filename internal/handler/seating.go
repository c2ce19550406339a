package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/service"
)

// Seating is the seating plan service as seen by the HTTP layer.
type Seating interface {
	CurrentOccupancy(ctx context.Context, eventID uint64, number *int) (*service.Occupancy, error)
	SubmitRevision(ctx context.Context, actorID, eventID uint64, seats []service.SeatAssignment) (*model.SeatingRevision, error)
	ListRevisions(ctx context.Context, actorID, eventID uint64) ([]service.RevisionSummary, error)
	DiffAdjacent(ctx context.Context, actorID, eventID uint64, number int) (*service.RevisionDiff, error)
}

// SeatingHandler serves /v1/events/:id/seating.
type SeatingHandler struct {
	Seating Seating
}

func NewSeatingHandler(s Seating) *SeatingHandler { return &SeatingHandler{Seating: s} }

// ----- DTOs -----

type attendeeResp struct {
	UserID    uint64 `json:"user_id"`
	Nickname  string `json:"nickname,omitempty"`
	LongName  string `json:"long_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type seatResp struct {
	attendeeResp
	SeatID   int  `json:"seat_id"`
	Table    int  `json:"table"`
	Seat     int  `json:"seat"`
	Reserved bool `json:"reserved"`
}

type occupancyResp struct {
	Revision *int           `json:"revision"`
	Seated   []seatResp     `json:"seated"`
	Unseated []attendeeResp `json:"unseated"`
}

type seatAssignmentReq struct {
	SeatID   int    `json:"seat_id"`
	UserID   uint64 `json:"user_id"`
	Reserved bool   `json:"reserved"`
}

type submitSeatingReq struct {
	Seats []seatAssignmentReq `json:"seats"`
}

type revisionResp struct {
	Number    int       `json:"number"`
	Name      string    `json:"name,omitempty"`
	CreatorID uint64    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

type seatingEntry struct {
	UserID   uint64 `json:"user_id"`
	SeatID   int    `json:"seat_id"`
	Reserved bool   `json:"reserved"`
}

type seatMoveResp struct {
	UserID uint64 `json:"user_id"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

type diffResp struct {
	Number  int            `json:"number"`
	Added   []seatingEntry `json:"added"`
	Removed []seatingEntry `json:"removed"`
	Moved   []seatMoveResp `json:"moved"`
}

func toAttendeeResp(a service.Attendee) attendeeResp {
	return attendeeResp{UserID: a.UserID, Nickname: a.Nickname, LongName: a.LongName, AvatarURL: a.AvatarURL}
}

func toSeatingEntries(seats []model.Seating) []seatingEntry {
	out := make([]seatingEntry, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatingEntry{UserID: s.UserID, SeatID: s.SeatID, Reserved: s.Reserved})
	}
	return out
}

// Seats returns the plan at ?revision=N, or the latest one.
func (h *SeatingHandler) Seats(c echo.Context) error {
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var number *int
	if raw := c.QueryParam("revision"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid revision"})
		}
		number = &n
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	occ, err := h.Seating.CurrentOccupancy(ctx, eventID, number)
	if err != nil {
		return err
	}
	out := occupancyResp{
		Revision: occ.Revision,
		Seated:   make([]seatResp, 0, len(occ.Seated)),
		Unseated: make([]attendeeResp, 0, len(occ.Unseated)),
	}
	for _, s := range occ.Seated {
		out.Seated = append(out.Seated, seatResp{
			attendeeResp: toAttendeeResp(s.Attendee),
			SeatID:       s.SeatID,
			Table:        s.Table,
			Seat:         s.Seat,
			Reserved:     s.Reserved,
		})
	}
	for _, a := range occ.Unseated {
		out.Unseated = append(out.Unseated, toAttendeeResp(a))
	}
	return c.JSON(http.StatusOK, out)
}

// Submit stores a complete new plan as the next revision.
func (h *SeatingHandler) Submit(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req submitSeatingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	seats := make([]service.SeatAssignment, 0, len(req.Seats))
	for _, s := range req.Seats {
		seats = append(seats, service.SeatAssignment{SeatID: s.SeatID, UserID: s.UserID, Reserved: s.Reserved})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	rev, err := h.Seating.SubmitRevision(ctx, uid, eventID, seats)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, revisionResp{
		Number:    rev.Number,
		CreatorID: rev.CreatorID,
		CreatedAt: rev.CreatedAt,
	})
}

// Revisions lists the plan history, newest first.
func (h *SeatingHandler) Revisions(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	revs, err := h.Seating.ListRevisions(ctx, uid, eventID)
	if err != nil {
		return err
	}
	out := make([]revisionResp, 0, len(revs))
	for _, r := range revs {
		out = append(out, revisionResp{Number: r.Number, Name: r.Name, CreatorID: r.CreatorID, CreatedAt: r.CreatedAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"revisions": out})
}

// Diff compares revision :number with the one before it.
func (h *SeatingHandler) Diff(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid revision"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	d, err := h.Seating.DiffAdjacent(ctx, uid, eventID, number)
	if err != nil {
		return err
	}
	out := diffResp{
		Number:  d.Number,
		Added:   toSeatingEntries(d.Added),
		Removed: toSeatingEntries(d.Removed),
		Moved:   make([]seatMoveResp, 0, len(d.Moved)),
	}
	for _, m := range d.Moved {
		out.Moved = append(out.Moved, seatMoveResp{UserID: m.UserID, From: m.From, To: m.To})
	}
	return c.JSON(http.StatusOK, out)
}
