package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/queue"
)

type signupFixture struct {
	store      *memStore
	gateway    *fakeGateway
	membership *fakeMembership
	refunds    *fakeRefunds
	events     *fakePublisher
	seats      *fakeSeats
	svc        *SignupService
}

func newSignupFixture() *signupFixture {
	f := &signupFixture{
		store:   newMemStore(),
		gateway: &fakeGateway{},
		membership: &fakeMembership{fn: func(string, string) (bool, error) {
			return false, nil
		}},
		refunds: &fakeRefunds{},
		events:  &fakePublisher{},
		seats:   &fakeSeats{},
	}
	f.svc = NewSignupService(SignupDeps{
		Store:      f.store,
		Membership: f.membership,
		Gateway:    f.gateway,
		References: plainRefs{},
		Refunds:    f.refunds,
		Seats:      f.seats,
		Events:     f.events,
		Log:        discardLog(),
		Now:        fixedNow,
	})
	for id := uint64(1); id <= 5; id++ {
		f.store.addProfile(model.Profile{
			ID:        id,
			Email:     "user" + string(rune('0'+id)) + "@example.com",
			UniID:     "2012345",
			FirstName: "User",
			LastName:  string(rune('A' + id)),
		})
	}
	return f
}

func openEvent(id uint64, limit int) model.Event {
	return model.Event{
		ID:          id,
		Slug:        "lan-" + string(rune('a'+id)),
		Title:       "LAN Party",
		Start:       testNow.Add(72 * time.Hour),
		End:         testNow.Add(96 * time.Hour),
		SignupStart: testNow.Add(-24 * time.Hour),
		SignupEnd:   testNow.Add(48 * time.Hour),
		SignupLimit: limit,
		HostedBy:    []string{model.SocietyUWCS},
	}
}

func paidEvent(id uint64, limit int) model.Event {
	e := openEvent(id, limit)
	e.CostMember = 500
	e.CostNonMember = 1000
	return e
}

func (f *signupFixture) checkout(t *testing.T, userID, eventID uint64) *Checkout {
	t.Helper()
	co, err := f.svc.InitiatePaidSignup(context.Background(), userID, eventID, SignupForm{Comment: "vegetarian"})
	require.NoError(t, err)
	return co
}

func TestCreateFreeSignup_Success(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))

	res, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{Comment: "hi", PhotographyConsent: true})

	require.NoError(t, err)
	assert.NotZero(t, res.Signup.ID)
	assert.Equal(t, "hi", res.Signup.Comment)
	assert.True(t, res.Signup.PhotographyConsent)
	require.NotNil(t, res.Signup.CommentedAt)
	assert.Nil(t, res.Signup.TicketID)
	assert.Equal(t, []string{queue.SignupCreated}, f.events.types())

	left, err := f.svc.SignupsLeft(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 69, left)
}

func TestCreateFreeSignup_AlreadySignedUp(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))
	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})
	require.NoError(t, err)

	_, err = f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})

	assert.ErrorIs(t, err, ErrAlreadySignedUp)
	assert.Equal(t, KindEligibility, KindOf(err))
}

func TestCreateFreeSignup_CapacityCheckedBeforeWindow(t *testing.T) {
	f := newSignupFixture()
	e := openEvent(10, 0)
	e.SignupStart = testNow.Add(time.Hour)
	f.store.addEvent(e)

	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})

	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCreateFreeSignup_WindowClosed(t *testing.T) {
	f := newSignupFixture()
	e := openEvent(10, 70)
	e.SignupEnd = testNow
	f.store.addEvent(e)

	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})

	assert.ErrorIs(t, err, ErrSignupNotOpen)
}

func TestCreateFreeSignup_FresherEarlyAccess(t *testing.T) {
	f := newSignupFixture()
	e := openEvent(10, 70)
	e.SignupStart = testNow.Add(24 * time.Hour)
	early := testNow.Add(-time.Hour)
	e.SignupStartFresher = &early
	f.store.addEvent(e)
	f.store.addProfile(model.Profile{ID: 6, UniID: "2698765", FirstName: "New", LastName: "Student"})
	f.store.addProfile(model.Profile{ID: 7, UniID: "1900001", FirstName: "Exec", LastName: "Member", IsExec: true})

	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})
	assert.ErrorIs(t, err, ErrSignupNotOpen)

	_, err = f.svc.CreateFreeSignup(context.Background(), 6, 10, SignupForm{})
	assert.NoError(t, err)

	_, err = f.svc.CreateFreeSignup(context.Background(), 7, 10, SignupForm{})
	assert.NoError(t, err)
}

func TestCreateFreeSignup_ConcurrentCapacity(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 2))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for uid := uint64(1); uid <= 3; uid++ {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			_, err := f.svc.CreateFreeSignup(context.Background(), uid, 10, SignupForm{})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(uid)
	}
	wg.Wait()

	ok, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, full)
	n, _ := f.store.CountValidSignups(context.Background(), 10)
	assert.Equal(t, 2, n)
}

func TestCreateFreeSignup_PaymentRequired(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))

	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})

	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestCreateFreeSignup_CommentTooLong(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))

	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{Comment: strings.Repeat("é", MaxCommentLength+1)})
	assert.ErrorIs(t, err, ErrCommentTooLong)

	_, err = f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{Comment: strings.Repeat("é", MaxCommentLength)})
	assert.NoError(t, err)
}

func TestCreateFreeSignup_UnknownEvent(t *testing.T) {
	f := newSignupFixture()

	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 99, SignupForm{})

	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestQuote_MemberPrice(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	f.membership.fn = func(society, uniID string) (bool, error) {
		return society == model.SocietyUWCS && uniID == "2012345", nil
	}

	q, err := f.svc.Quote(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(500), q.CostPence)
	assert.True(t, q.IsMember)
	assert.True(t, q.Open)
	assert.Equal(t, 70, q.SignupsLeft)
	assert.Empty(t, q.Notices)
}

func TestQuote_HasSignedUp(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))

	q, err := f.svc.Quote(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.False(t, q.HasSignedUp)

	_, err = f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})
	require.NoError(t, err)
	q, err = f.svc.Quote(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, q.HasSignedUp)
	assert.Equal(t, 69, q.SignupsLeft)

	_, err = f.svc.CancelSignup(context.Background(), 1, 10)
	require.NoError(t, err)
	q, err = f.svc.Quote(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.False(t, q.HasSignedUp)
}

func TestSignupComments_OldestCommentFirst(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))
	ctx := context.Background()
	at := func(mins int) *time.Time { ts := testNow.Add(time.Duration(mins) * time.Minute); return &ts }

	require.NoError(t, f.store.InsertSignup(ctx, &model.EventSignup{EventID: 10, UserID: 1, Comment: "second", CommentedAt: at(-5), CreatedAt: testNow.Add(-time.Hour)}))
	require.NoError(t, f.store.InsertSignup(ctx, &model.EventSignup{EventID: 10, UserID: 2, Comment: "first", CommentedAt: at(-30), CreatedAt: testNow}))
	require.NoError(t, f.store.InsertSignup(ctx, &model.EventSignup{EventID: 10, UserID: 3, CreatedAt: testNow}))
	withdrawn := &model.EventSignup{EventID: 10, UserID: 4, Comment: "gone", CommentedAt: at(-40), CreatedAt: testNow}
	require.NoError(t, f.store.InsertSignup(ctx, withdrawn))
	require.NoError(t, f.store.MarkSignupCancelled(ctx, withdrawn.ID, testNow))
	unpaid := &model.Ticket{EventID: 10, UserID: 5, Status: model.TicketCreated, AmountPence: 500, CreatedAt: testNow}
	require.NoError(t, f.store.InsertTicket(ctx, unpaid))
	require.NoError(t, f.store.InsertSignup(ctx, &model.EventSignup{EventID: 10, UserID: 5, Comment: "unpaid", CommentedAt: at(-50), TicketID: &unpaid.ID, CreatedAt: testNow}))

	comments, err := f.svc.SignupComments(ctx, 10)

	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Comment)
	assert.Equal(t, uint64(2), comments[0].UserID)
	assert.Equal(t, *at(-30), comments[0].CommentedAt)
	assert.Equal(t, "second", comments[1].Comment)
	assert.NotEmpty(t, comments[1].LongName)

	_, err = f.svc.SignupComments(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuote_MembershipFailureFallsBackToNonMember(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	f.membership.fn = func(string, string) (bool, error) { return false, errors.New("timeout") }

	q, err := f.svc.Quote(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.CostPence)
	assert.False(t, q.IsMember)
	assert.Equal(t, []string{ErrMembershipDegraded.Msg}, q.Notices)
}

func TestQuote_EqualCostsSkipMembership(t *testing.T) {
	f := newSignupFixture()
	e := paidEvent(10, 70)
	e.CostMember = e.CostNonMember
	f.store.addEvent(e)

	q, err := f.svc.Quote(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.CostPence)
	assert.Zero(t, f.membership.calls)
}

func TestInitiatePaidSignup_CreatesTicketAndCheckout(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))

	co := f.checkout(t, 1, 10)

	assert.Equal(t, int64(1000), co.AmountPence)
	assert.NotEmpty(t, co.URL)
	tk := f.store.ticket(co.TicketID)
	assert.Equal(t, model.TicketCreated, tk.Status)
	assert.Equal(t, "vegetarian", tk.Comment)
	require.Len(t, f.gateway.checkouts, 1)
	assert.Equal(t, co.Reference, f.gateway.checkouts[0].Reference)
	assert.Equal(t, fmt.Sprintf("checkout-ticket-%d", co.TicketID), f.gateway.checkouts[0].IdempotencyKey)

	// no signup exists until payment completes
	_, err := f.store.FindValidSignup(context.Background(), 10, 1)
	assert.Error(t, err)
}

func TestInitiatePaidSignup_FreeEvent(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))

	_, err := f.svc.InitiatePaidSignup(context.Background(), 1, 10, SignupForm{})

	assert.ErrorIs(t, err, ErrNoPaymentRequired)
}

func TestInitiatePaidSignup_GatewayDown(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	f.gateway.checkoutErr = errors.New("connection refused")

	_, err := f.svc.InitiatePaidSignup(context.Background(), 1, 10, SignupForm{})

	assert.ErrorIs(t, err, ErrPaymentGateway)
	assert.Equal(t, KindExternalService, KindOf(err))
}

func TestOnPaymentCompleted_MaterializesSignupOnce(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	co := f.checkout(t, 1, 10)

	first, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "vegetarian", first.Comment)
	assert.Equal(t, model.TicketComplete, f.store.ticket(co.TicketID).Status)

	replay, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	n, _ := f.store.CountValidSignups(context.Background(), 10)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{queue.SignupCreated}, f.events.types())
}

func TestOnPaymentCompleted_FullEventRefunds(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 1))
	co := f.checkout(t, 1, 10)

	// another user's payment lands first and takes the last place
	other := f.checkout(t, 2, 10)
	_, err := f.svc.OnPaymentCompleted(context.Background(), other.Reference, "pi_2", true)
	require.NoError(t, err)

	_, err = f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)

	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, []string{"pi_1"}, f.gateway.refunds)
	assert.Equal(t, model.TicketRefunded, f.store.ticket(co.TicketID).Status)
	n, _ := f.store.CountValidSignups(context.Background(), 10)
	assert.Equal(t, 1, n)
}

func TestOnPaymentCompleted_RefundFailureIsScheduled(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(11, 70))
	co := f.checkout(t, 1, 11)
	// capacity shrinks while the user is paying
	f.store.addEvent(paidEvent(11, 0))
	f.gateway.refundErr = errors.New("gateway timeout")

	_, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)

	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, []uint64{co.TicketID}, f.refunds.scheduled)
	assert.Equal(t, model.TicketComplete, f.store.ticket(co.TicketID).Status)
}

func TestOnPaymentCompleted_UnpaidThenChargeSucceeded(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	co := f.checkout(t, 1, 10)

	su, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", false)
	require.NoError(t, err)
	assert.Nil(t, su)
	assert.Equal(t, model.TicketInProgress, f.store.ticket(co.TicketID).Status)

	require.NoError(t, f.svc.OnChargeSucceeded(context.Background(), "pi_1"))
	assert.Equal(t, model.TicketComplete, f.store.ticket(co.TicketID).Status)
	_, err = f.store.FindValidSignup(context.Background(), 10, 1)
	assert.NoError(t, err)

	// replayed charge event is a no-op
	require.NoError(t, f.svc.OnChargeSucceeded(context.Background(), "pi_1"))
	n, _ := f.store.CountValidSignups(context.Background(), 10)
	assert.Equal(t, 1, n)
}

func TestOnPaymentCompleted_StaleReference(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	ref, _ := plainRefs{}.Encode(ReferenceClaims{TicketID: 1, EventID: 10, CreatedAt: testNow.Add(time.Minute)})

	_, err := f.svc.OnPaymentCompleted(context.Background(), ref, "pi_1", true)

	assert.ErrorIs(t, err, ErrStaleTicket)
}

func TestOnPaymentCompleted_BadReference(t *testing.T) {
	f := newSignupFixture()

	_, err := f.svc.OnPaymentCompleted(context.Background(), "garbage", "pi_1", true)

	assert.ErrorIs(t, err, ErrBadReference)
}

func TestOnChargeSucceeded_UnknownCharge(t *testing.T) {
	f := newSignupFixture()

	err := f.svc.OnChargeSucceeded(context.Background(), "pi_missing")

	assert.ErrorIs(t, err, ErrUnknownCharge)
	assert.Equal(t, KindReconciliation, KindOf(err))
}

func TestOnChargeRefunded_CancelsSignupAndReleasesSeat(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	co := f.checkout(t, 1, 10)
	_, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnChargeRefunded(context.Background(), "pi_1"))

	assert.Equal(t, model.TicketRefunded, f.store.ticket(co.TicketID).Status)
	_, err = f.store.FindValidSignup(context.Background(), 10, 1)
	assert.Error(t, err)
	assert.Equal(t, []uint64{1}, f.seats.released)
	assert.Contains(t, f.events.types(), queue.TicketRefunded)

	// the user may sign up again
	again := f.checkout(t, 1, 10)
	_, err = f.svc.OnPaymentCompleted(context.Background(), again.Reference, "pi_3", true)
	assert.NoError(t, err)

	// a late charge.succeeded for the refunded ticket is acknowledged
	assert.NoError(t, f.svc.OnChargeSucceeded(context.Background(), "pi_1"))
}

func TestOnChargeRefunded_UnknownChargeIgnored(t *testing.T) {
	f := newSignupFixture()

	assert.NoError(t, f.svc.OnChargeRefunded(context.Background(), "pi_missing"))
}

func TestCancelSignup_Free(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))
	_, err := f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})
	require.NoError(t, err)

	res, err := f.svc.CancelSignup(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.False(t, res.Refunded)
	assert.NoError(t, res.RefundErr)
	require.NotNil(t, res.Signup.Cancelled)
	assert.Equal(t, []uint64{1}, f.seats.released)

	_, err = f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})
	assert.NoError(t, err, "a cancelled signup does not block a new one")
}

func TestCancelSignup_PaidRefunds(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	co := f.checkout(t, 1, 10)
	_, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)
	require.NoError(t, err)

	res, err := f.svc.CancelSignup(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.True(t, res.Refunded)
	assert.Equal(t, []string{"pi_1"}, f.gateway.refunds)
	assert.Equal(t, model.TicketRefunded, f.store.ticket(co.TicketID).Status)
}

func TestCancelSignup_RefundFailureStillCancels(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(paidEvent(10, 70))
	co := f.checkout(t, 1, 10)
	_, err := f.svc.OnPaymentCompleted(context.Background(), co.Reference, "pi_1", true)
	require.NoError(t, err)
	f.gateway.refundErr = errors.New("gateway down")

	res, err := f.svc.CancelSignup(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.False(t, res.Refunded)
	assert.ErrorIs(t, res.RefundErr, ErrRefundFailed)
	assert.Equal(t, []uint64{co.TicketID}, f.refunds.scheduled)
	_, err = f.store.FindValidSignup(context.Background(), 10, 1)
	assert.Error(t, err)
	assert.Equal(t, []uint64{1}, f.seats.released)

	// the retry succeeds once the gateway recovers
	f.gateway.refundErr = nil
	require.NoError(t, f.svc.RetryRefund(context.Background(), co.TicketID))
	assert.Equal(t, model.TicketRefunded, f.store.ticket(co.TicketID).Status)
	require.NoError(t, f.svc.RetryRefund(context.Background(), co.TicketID))
	assert.Equal(t, 1, f.gateway.refundCount())
}

func TestCancelSignup_NotSignedUp(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))

	_, err := f.svc.CancelSignup(context.Background(), 1, 10)

	assert.ErrorIs(t, err, ErrNotSignedUp)
}

func TestRetryRefund_MissingTicket(t *testing.T) {
	f := newSignupFixture()

	err := f.svc.RetryRefund(context.Background(), 404)

	assert.ErrorIs(t, err, ErrNotFound)
}

func tournament(id uint64, eventID *uint64, limit int) model.Tournament {
	return model.Tournament{
		ID:                 id,
		Slug:               "cup",
		Title:              "Cup",
		EventID:            eventID,
		RequiresAttendance: eventID != nil,
		Start:              testNow.Add(72 * time.Hour),
		End:                testNow.Add(80 * time.Hour),
		SignupStart:        testNow.Add(-time.Hour),
		SignupEnd:          testNow.Add(time.Hour),
		SignupLimit:        limit,
	}
}

func TestSignupTournament_RequiresAttendance(t *testing.T) {
	f := newSignupFixture()
	f.store.addEvent(openEvent(10, 70))
	eventID := uint64(10)
	f.store.addTournament(tournament(20, &eventID, 8))

	_, err := f.svc.SignupTournament(context.Background(), 1, 20, "")
	assert.ErrorIs(t, err, ErrAttendanceRequired)

	_, err = f.svc.CreateFreeSignup(context.Background(), 1, 10, SignupForm{})
	require.NoError(t, err)
	su, err := f.svc.SignupTournament(context.Background(), 1, 20, "team rocket")
	require.NoError(t, err)
	assert.Equal(t, "team rocket", su.Comment)

	_, err = f.svc.SignupTournament(context.Background(), 1, 20, "")
	assert.ErrorIs(t, err, ErrAlreadySignedUp)
}

func TestSignupTournament_Capacity(t *testing.T) {
	f := newSignupFixture()
	f.store.addTournament(tournament(20, nil, 1))

	_, err := f.svc.SignupTournament(context.Background(), 1, 20, "")
	require.NoError(t, err)
	_, err = f.svc.SignupTournament(context.Background(), 2, 20, "")

	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCancelTournamentSignup(t *testing.T) {
	f := newSignupFixture()
	f.store.addTournament(tournament(20, nil, 1))
	_, err := f.svc.SignupTournament(context.Background(), 1, 20, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelTournamentSignup(context.Background(), 1, 20))
	assert.ErrorIs(t, f.svc.CancelTournamentSignup(context.Background(), 1, 20), ErrNotSignedUp)

	// capacity is freed
	_, err = f.svc.SignupTournament(context.Background(), 2, 20, "")
	assert.NoError(t, err)
}
