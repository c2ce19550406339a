package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/middleware"
	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/service"
)

const (
	readTimeout = 5 * time.Second
	// writes may call the payment gateway and the membership API
	writeTimeout = 20 * time.Second
)

// Catalog is the read side of events and tournaments.
type Catalog interface {
	UpcomingEvents(ctx context.Context) ([]model.Event, error)
	Event(ctx context.Context, id uint64) (*service.EventDetail, error)
	EventBySlug(ctx context.Context, slug string) (*service.EventDetail, error)
	Tournament(ctx context.Context, id uint64) (*service.TournamentDetail, error)
}

// Signups is the signup state machine as seen by the HTTP layer.
type Signups interface {
	Quote(ctx context.Context, userID, eventID uint64) (*service.Quote, error)
	SignupComments(ctx context.Context, eventID uint64) ([]service.SignupComment, error)
	CreateFreeSignup(ctx context.Context, userID, eventID uint64, form service.SignupForm) (*service.SignupResult, error)
	InitiatePaidSignup(ctx context.Context, userID, eventID uint64, form service.SignupForm) (*service.Checkout, error)
	CancelSignup(ctx context.Context, userID, eventID uint64) (*service.CancelResult, error)
	SignupTournament(ctx context.Context, userID, tournamentID uint64, comment string) (*model.TournamentSignup, error)
	CancelTournamentSignup(ctx context.Context, userID, tournamentID uint64) error
}

// CacheInvalidator drops cached catalog responses after a write changes
// remaining capacity.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// EventHandler serves /v1/events.
type EventHandler struct {
	Catalog Catalog
	Signups Signups
	Cache   CacheInvalidator // optional
	Log     *slog.Logger
}

func NewEventHandler(cat Catalog, su Signups, cache CacheInvalidator, log *slog.Logger) *EventHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EventHandler{Catalog: cat, Signups: su, Cache: cache, Log: log}
}

// ----- DTOs -----

type eventResp struct {
	ID                 uint64     `json:"id"`
	Slug               string     `json:"slug"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Location           string     `json:"location,omitempty"`
	Start              time.Time  `json:"start"`
	End                time.Time  `json:"end"`
	SignupStart        time.Time  `json:"signup_start"`
	SignupEnd          time.Time  `json:"signup_end"`
	SignupStartFresher *time.Time `json:"signup_start_fresher,omitempty"`
	SignupLimit        int        `json:"signup_limit"`
	HostedBy           []string   `json:"hosted_by"`
	CostMember         int64      `json:"cost_member_pence"`
	CostNonMember      int64      `json:"cost_non_member_pence"`
	HasSeating         bool       `json:"has_seating"`
	SeatingLockAt      *time.Time `json:"seating_lock_at,omitempty"`
	HasPhotography     bool       `json:"has_photography"`
	HasLivestream      bool       `json:"has_livestream"`
}

type roomResp struct {
	Name     string `json:"name"`
	Tables   []int  `json:"tables"`
	Capacity int    `json:"capacity"`
}

type eventDetailResp struct {
	eventResp
	SignupsLeft int              `json:"signups_left"`
	Room        *roomResp        `json:"room,omitempty"`
	Tournaments []tournamentResp `json:"tournaments"`
}

type quoteResp struct {
	EventID     uint64    `json:"event_id"`
	CostPence   int64     `json:"cost_pence"`
	IsMember    bool      `json:"is_member"`
	SignupStart time.Time `json:"signup_start"`
	Open        bool      `json:"open"`
	SignupsLeft int       `json:"signups_left"`
	HasSignedUp bool      `json:"has_signed_up"`
	Notices     []string  `json:"notices,omitempty"`
}

type signupCommentResp struct {
	UserID      uint64    `json:"user_id"`
	Nickname    string    `json:"nickname,omitempty"`
	LongName    string    `json:"long_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Comment     string    `json:"comment"`
	CommentedAt time.Time `json:"commented_at"`
}

type signupReq struct {
	Comment            string `json:"comment"`
	PhotographyConsent bool   `json:"photography_consent"`
}

type signupResp struct {
	ID                 uint64    `json:"id"`
	EventID            uint64    `json:"event_id"`
	Comment            string    `json:"comment,omitempty"`
	PhotographyConsent bool      `json:"photography_consent"`
	TicketID           *uint64   `json:"ticket_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Notices            []string  `json:"notices,omitempty"`
}

type checkoutResp struct {
	TicketID    uint64   `json:"ticket_id"`
	Reference   string   `json:"reference"`
	SessionID   string   `json:"session_id"`
	URL         string   `json:"url"`
	AmountPence int64    `json:"amount_pence"`
	Notices     []string `json:"notices,omitempty"`
}

type cancelResp struct {
	Cancelled   bool   `json:"cancelled"`
	Refunded    bool   `json:"refunded"`
	RefundError string `json:"refund_error,omitempty"`
	RefundCode  string `json:"refund_code,omitempty"`
}

func toEventResp(e model.Event) eventResp {
	hosted := e.HostedBy
	if hosted == nil {
		hosted = []string{}
	}
	return eventResp{
		ID:                 e.ID,
		Slug:               e.Slug,
		Title:              e.Title,
		Description:        e.Description,
		Location:           e.Location,
		Start:              e.Start,
		End:                e.End,
		SignupStart:        e.SignupStart,
		SignupEnd:          e.SignupEnd,
		SignupStartFresher: e.SignupStartFresher,
		SignupLimit:        e.SignupLimit,
		HostedBy:           hosted,
		CostMember:         e.CostMember,
		CostNonMember:      e.CostNonMember,
		HasSeating:         e.HasSeating(),
		SeatingLockAt:      e.SeatingLockAt,
		HasPhotography:     e.HasPhotography,
		HasLivestream:      e.HasLivestream,
	}
}

func toEventDetailResp(d *service.EventDetail) eventDetailResp {
	out := eventDetailResp{
		eventResp:   toEventResp(d.Event),
		SignupsLeft: d.SignupsLeft,
		Tournaments: make([]tournamentResp, 0, len(d.Tournaments)),
	}
	if d.Room != nil {
		out.Room = &roomResp{Name: d.Room.Name, Tables: d.Room.Tables, Capacity: d.Room.MaxCapacity()}
	}
	for _, t := range d.Tournaments {
		out.Tournaments = append(out.Tournaments, toTournamentResp(t))
	}
	return out
}

func toSignupResp(su *model.EventSignup, notices []string) signupResp {
	return signupResp{
		ID:                 su.ID,
		EventID:            su.EventID,
		Comment:            su.Comment,
		PhotographyConsent: su.PhotographyConsent,
		TicketID:           su.TicketID,
		CreatedAt:          su.CreatedAt,
		Notices:            notices,
	}
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func requireUser(c echo.Context) (uint64, error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

func (h *EventHandler) invalidate(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx); err != nil {
		h.Log.Warn("cache invalidate failed", slog.Any("error", err))
	}
}

// List returns upcoming events.
func (h *EventHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	events, err := h.Catalog.UpcomingEvents(ctx)
	if err != nil {
		return err
	}
	out := make([]eventResp, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResp(e))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// Get returns an event by numeric id, or by slug when the parameter is
// not a number.
func (h *EventHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	var (
		d   *service.EventDetail
		err error
	)
	key := strings.TrimSpace(c.Param("id"))
	if id, perr := strconv.ParseUint(key, 10, 64); perr == nil {
		d, err = h.Catalog.Event(ctx, id)
	} else {
		d, err = h.Catalog.EventBySlug(ctx, key)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventDetailResp(d))
}

// Quote returns the caller's price and whether signups are open to them.
func (h *EventHandler) Quote(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), writeTimeout)
	defer cancel()

	q, err := h.Signups.Quote(ctx, uid, eventID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quoteResp{
		EventID:     q.EventID,
		CostPence:   q.CostPence,
		IsMember:    q.IsMember,
		SignupStart: q.SignupStart,
		Open:        q.Open,
		SignupsLeft: q.SignupsLeft,
		HasSignedUp: q.HasSignedUp,
		Notices:     q.Notices,
	})
}

// ListSignups lists the comments attendees left when signing up, oldest
// first.
func (h *EventHandler) ListSignups(c echo.Context) error {
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()

	comments, err := h.Signups.SignupComments(ctx, eventID)
	if err != nil {
		return err
	}
	out := make([]signupCommentResp, 0, len(comments))
	for _, cm := range comments {
		out = append(out, signupCommentResp{
			UserID: cm.UserID, Nickname: cm.Nickname, LongName: cm.LongName, AvatarURL: cm.AvatarURL,
			Comment: cm.Comment, CommentedAt: cm.CommentedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"signups": out})
}

// Signup creates a free signup.  Paid events answer 400 payment_required
// and the client continues with Checkout.
func (h *EventHandler) Signup(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), writeTimeout)
	defer cancel()

	res, err := h.Signups.CreateFreeSignup(ctx, uid, eventID, service.SignupForm{
		Comment:            req.Comment,
		PhotographyConsent: req.PhotographyConsent,
	})
	if err != nil {
		return err
	}
	h.invalidate(ctx)
	return c.JSON(http.StatusCreated, toSignupResp(res.Signup, res.Notices))
}

// Checkout starts a paid signup and returns the hosted checkout URL.
func (h *EventHandler) Checkout(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), writeTimeout)
	defer cancel()

	co, err := h.Signups.InitiatePaidSignup(ctx, uid, eventID, service.SignupForm{
		Comment:            req.Comment,
		PhotographyConsent: req.PhotographyConsent,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, checkoutResp{
		TicketID:    co.TicketID,
		Reference:   co.Reference,
		SessionID:   co.SessionID,
		URL:         co.URL,
		AmountPence: co.AmountPence,
		Notices:     co.Notices,
	})
}

// Cancel withdraws the caller's signup.  A failed refund does not undo
// the cancellation; it is reported alongside it.
func (h *EventHandler) Cancel(c echo.Context) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	eventID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), writeTimeout)
	defer cancel()

	res, err := h.Signups.CancelSignup(ctx, uid, eventID)
	if err != nil {
		return err
	}
	h.invalidate(ctx)

	out := cancelResp{Cancelled: true, Refunded: res.Refunded}
	if res.RefundErr != nil {
		var se *service.Error
		if errors.As(res.RefundErr, &se) {
			out.RefundError, out.RefundCode = se.Msg, se.Code
		} else {
			out.RefundError = service.ErrRefundFailed.Msg
			out.RefundCode = service.ErrRefundFailed.Code
		}
	}
	return c.JSON(http.StatusOK, out)
}
