package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/uwcs/warwickgg/internal/middleware"
	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/service"
	"github.com/uwcs/warwickgg/internal/utils"
)

const testJWTSecret = "handler-test-secret"

func discardLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newEcho returns an echo instance wired with the production error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(discardLog())
	return e
}

func authed() echo.MiddlewareFunc { return middleware.JWTAuth(testJWTSecret) }

type request struct {
	method string
	path   string
	body   string
	user   uint64
	header map[string]string
}

func do(t *testing.T, e *echo.Echo, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if r.user != 0 {
		tok, err := utils.NewAccessToken(testJWTSecret, r.user, model.RoleMember, 15, time.Now())
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// ----- mocks -----

type mockCatalog struct {
	UpcomingEventsFn func(ctx context.Context) ([]model.Event, error)
	EventFn          func(ctx context.Context, id uint64) (*service.EventDetail, error)
	EventBySlugFn    func(ctx context.Context, slug string) (*service.EventDetail, error)
	TournamentFn     func(ctx context.Context, id uint64) (*service.TournamentDetail, error)
}

func (m *mockCatalog) UpcomingEvents(ctx context.Context) ([]model.Event, error) {
	return m.UpcomingEventsFn(ctx)
}
func (m *mockCatalog) Event(ctx context.Context, id uint64) (*service.EventDetail, error) {
	return m.EventFn(ctx, id)
}
func (m *mockCatalog) EventBySlug(ctx context.Context, slug string) (*service.EventDetail, error) {
	return m.EventBySlugFn(ctx, slug)
}
func (m *mockCatalog) Tournament(ctx context.Context, id uint64) (*service.TournamentDetail, error) {
	return m.TournamentFn(ctx, id)
}

type mockSignups struct {
	QuoteFn                  func(ctx context.Context, userID, eventID uint64) (*service.Quote, error)
	SignupCommentsFn         func(ctx context.Context, eventID uint64) ([]service.SignupComment, error)
	CreateFreeSignupFn       func(ctx context.Context, userID, eventID uint64, form service.SignupForm) (*service.SignupResult, error)
	InitiatePaidSignupFn     func(ctx context.Context, userID, eventID uint64, form service.SignupForm) (*service.Checkout, error)
	CancelSignupFn           func(ctx context.Context, userID, eventID uint64) (*service.CancelResult, error)
	SignupTournamentFn       func(ctx context.Context, userID, tournamentID uint64, comment string) (*model.TournamentSignup, error)
	CancelTournamentSignupFn func(ctx context.Context, userID, tournamentID uint64) error
}

func (m *mockSignups) Quote(ctx context.Context, userID, eventID uint64) (*service.Quote, error) {
	return m.QuoteFn(ctx, userID, eventID)
}
func (m *mockSignups) SignupComments(ctx context.Context, eventID uint64) ([]service.SignupComment, error) {
	return m.SignupCommentsFn(ctx, eventID)
}
func (m *mockSignups) CreateFreeSignup(ctx context.Context, userID, eventID uint64, form service.SignupForm) (*service.SignupResult, error) {
	return m.CreateFreeSignupFn(ctx, userID, eventID, form)
}
func (m *mockSignups) InitiatePaidSignup(ctx context.Context, userID, eventID uint64, form service.SignupForm) (*service.Checkout, error) {
	return m.InitiatePaidSignupFn(ctx, userID, eventID, form)
}
func (m *mockSignups) CancelSignup(ctx context.Context, userID, eventID uint64) (*service.CancelResult, error) {
	return m.CancelSignupFn(ctx, userID, eventID)
}
func (m *mockSignups) SignupTournament(ctx context.Context, userID, tournamentID uint64, comment string) (*model.TournamentSignup, error) {
	return m.SignupTournamentFn(ctx, userID, tournamentID, comment)
}
func (m *mockSignups) CancelTournamentSignup(ctx context.Context, userID, tournamentID uint64) error {
	return m.CancelTournamentSignupFn(ctx, userID, tournamentID)
}

type mockSeating struct {
	CurrentOccupancyFn func(ctx context.Context, eventID uint64, number *int) (*service.Occupancy, error)
	SubmitRevisionFn   func(ctx context.Context, actorID, eventID uint64, seats []service.SeatAssignment) (*model.SeatingRevision, error)
	ListRevisionsFn    func(ctx context.Context, actorID, eventID uint64) ([]service.RevisionSummary, error)
	DiffAdjacentFn     func(ctx context.Context, actorID, eventID uint64, number int) (*service.RevisionDiff, error)
}

func (m *mockSeating) CurrentOccupancy(ctx context.Context, eventID uint64, number *int) (*service.Occupancy, error) {
	return m.CurrentOccupancyFn(ctx, eventID, number)
}
func (m *mockSeating) SubmitRevision(ctx context.Context, actorID, eventID uint64, seats []service.SeatAssignment) (*model.SeatingRevision, error) {
	return m.SubmitRevisionFn(ctx, actorID, eventID, seats)
}
func (m *mockSeating) ListRevisions(ctx context.Context, actorID, eventID uint64) ([]service.RevisionSummary, error) {
	return m.ListRevisionsFn(ctx, actorID, eventID)
}
func (m *mockSeating) DiffAdjacent(ctx context.Context, actorID, eventID uint64, number int) (*service.RevisionDiff, error) {
	return m.DiffAdjacentFn(ctx, actorID, eventID, number)
}

type mockPayments struct {
	OnPaymentCompletedFn func(ctx context.Context, reference, chargeID string, paid bool) (*model.EventSignup, error)
	OnChargeSucceededFn  func(ctx context.Context, chargeID string) error
	OnChargeRefundedFn   func(ctx context.Context, chargeID string) error
}

func (m *mockPayments) OnPaymentCompleted(ctx context.Context, reference, chargeID string, paid bool) (*model.EventSignup, error) {
	return m.OnPaymentCompletedFn(ctx, reference, chargeID, paid)
}
func (m *mockPayments) OnChargeSucceeded(ctx context.Context, chargeID string) error {
	return m.OnChargeSucceededFn(ctx, chargeID)
}
func (m *mockPayments) OnChargeRefunded(ctx context.Context, chargeID string) error {
	return m.OnChargeRefundedFn(ctx, chargeID)
}

type mockProfiles struct {
	CreateProfileFn     func(ctx context.Context, p *model.Profile) error
	GetProfileByEmailFn func(ctx context.Context, email string) (*model.Profile, error)
	GetProfileFn        func(ctx context.Context, id uint64) (*model.Profile, error)
}

func (m *mockProfiles) CreateProfile(ctx context.Context, p *model.Profile) error {
	return m.CreateProfileFn(ctx, p)
}
func (m *mockProfiles) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return m.GetProfileByEmailFn(ctx, email)
}
func (m *mockProfiles) GetProfile(ctx context.Context, id uint64) (*model.Profile, error) {
	return m.GetProfileFn(ctx, id)
}

type mockTokens struct {
	StoreRefreshFn     func(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefreshFn  func(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RotateFn           func(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error
	RevokeByHashFn     func(ctx context.Context, tokenHash string) error
	RevokeAllForUserFn func(ctx context.Context, userID uint64) error
}

func (m *mockTokens) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return m.StoreRefreshFn(ctx, userID, tokenHash, exp)
}
func (m *mockTokens) ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	return m.ValidateRefreshFn(ctx, tokenHash, now)
}
func (m *mockTokens) Rotate(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error {
	return m.RotateFn(ctx, userID, oldHash, newHash, exp)
}
func (m *mockTokens) RevokeByHash(ctx context.Context, tokenHash string) error {
	return m.RevokeByHashFn(ctx, tokenHash)
}
func (m *mockTokens) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return m.RevokeAllForUserFn(ctx, userID)
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) error {
	c.n++
	return nil
}
