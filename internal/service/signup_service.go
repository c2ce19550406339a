package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/uwcs/warwickgg/internal/datastore"
	"github.com/uwcs/warwickgg/internal/metrics"
	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/queue"
)

// MaxCommentLength is the longest signup comment accepted, in characters.
const MaxCommentLength = 1024

// defaultExternalTimeout bounds every call to the payment gateway and the
// membership API when SignupDeps.ExternalTimeout is zero.
const defaultExternalTimeout = 10 * time.Second

// SignupForm is what a user submits alongside a signup.
type SignupForm struct {
	Comment            string
	PhotographyConsent bool
}

func (f SignupForm) validate() error {
	if utf8.RuneCountInString(f.Comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

// Quote is the price and eligibility of an event for one user.
type Quote struct {
	EventID     uint64
	CostPence   int64
	IsMember    bool
	SignupStart time.Time
	Open        bool
	SignupsLeft int
	HasSignedUp bool
	Notices     []string
}

// SignupComment is a comment left with a valid signup.
type SignupComment struct {
	Attendee
	Comment     string
	CommentedAt time.Time
}

// SignupResult is a materialized free signup.
type SignupResult struct {
	Signup  *model.EventSignup
	Notices []string
}

// Checkout is what the client needs to complete a paid signup.
type Checkout struct {
	TicketID    uint64
	Reference   string
	SessionID   string
	URL         string
	AmountPence int64
	Notices     []string
}

// CancelResult reports the outcome of a cancellation.  RefundErr is set
// when the signup was cancelled but the refund could not be issued.
type CancelResult struct {
	Signup    *model.EventSignup
	Refunded  bool
	RefundErr error
}

// SignupDeps collects the collaborators of a SignupService.  Membership,
// Refunds, Seats and Events are optional.
type SignupDeps struct {
	Store           datastore.Store
	Membership      MembershipVerifier
	Gateway         PaymentGateway
	References      ReferenceCodec
	Refunds         RefundScheduler
	Seats           SeatReleaser
	Events          EventPublisher
	Log             *slog.Logger
	Now             func() time.Time
	ExternalTimeout time.Duration
}

// SignupService owns the signup and ticket state machine for events and
// tournaments.  Capacity and duplicate checks are repeated inside the
// event lock at write time; the reads before it only give early errors.
type SignupService struct {
	store      datastore.Store
	membership MembershipVerifier
	gateway    PaymentGateway
	refs       ReferenceCodec
	refunds    RefundScheduler
	seats      SeatReleaser
	events     EventPublisher
	log        *slog.Logger
	now        func() time.Time
	timeout    time.Duration
}

// NewSignupService wires a SignupService.
func NewSignupService(d SignupDeps) *SignupService {
	s := &SignupService{
		store:      d.Store,
		membership: d.Membership,
		gateway:    d.Gateway,
		refs:       d.References,
		refunds:    d.Refunds,
		seats:      d.Seats,
		events:     d.Events,
		log:        d.Log,
		now:        d.Now,
		timeout:    d.ExternalTimeout,
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.timeout <= 0 {
		s.timeout = defaultExternalTimeout
	}
	return s
}

// SetSeatReleaser attaches the seating service after construction; the
// two services reference each other.
func (s *SignupService) SetSeatReleaser(r SeatReleaser) { s.seats = r }

func (s *SignupService) loadEvent(ctx context.Context, st datastore.Store, eventID uint64) (*model.Event, error) {
	e, err := st.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, withMsg(ErrNotFound, "event not found")
		}
		return nil, wrap(ErrPersistence, err)
	}
	return e, nil
}

func (s *SignupService) loadProfile(ctx context.Context, userID uint64) (*model.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, withMsg(ErrNotFound, "user not found")
		}
		return nil, wrap(ErrPersistence, err)
	}
	return p, nil
}

// cost returns the price the user pays and whether any hosting society
// recognised them as a member.  Verification failures fall back to the
// non-member price and add a notice.
func (s *SignupService) cost(ctx context.Context, e model.Event, p model.Profile) (int64, bool, []string) {
	if e.CostMember == e.CostNonMember || s.membership == nil || p.UniID == "" {
		return e.CostNonMember, false, nil
	}
	degraded := false
	for _, society := range e.HostedBy {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		member, err := s.membership.IsMember(cctx, society, p.UniID)
		cancel()
		if err != nil {
			degraded = true
			metrics.MembershipChecks.WithLabelValues("error").Inc()
			s.log.Warn("membership check failed",
				slog.String("society", society), slog.Uint64("user_id", p.ID), slog.Any("error", err))
			continue
		}
		if member {
			metrics.MembershipChecks.WithLabelValues("member").Inc()
			return e.CostMember, true, nil
		}
		metrics.MembershipChecks.WithLabelValues("non_member").Inc()
	}
	if degraded {
		return e.CostNonMember, false, []string{ErrMembershipDegraded.Msg}
	}
	return e.CostNonMember, false, nil
}

// checkEligibility applies the signup checks in order: duplicate, then
// capacity, then the user's signup window.
func (s *SignupService) checkEligibility(ctx context.Context, st datastore.Store, e model.Event, p model.Profile) error {
	if _, err := st.FindValidSignup(ctx, e.ID, p.ID); err == nil {
		return ErrAlreadySignedUp
	} else if !errors.Is(err, datastore.ErrNotFound) {
		return wrap(ErrPersistence, err)
	}
	n, err := st.CountValidSignups(ctx, e.ID)
	if err != nil {
		return wrap(ErrPersistence, err)
	}
	if n >= e.SignupLimit {
		return ErrCapacityExceeded
	}
	if !SignupsOpenFor(e, p, s.now()) {
		return ErrSignupNotOpen
	}
	return nil
}

// CheckEligibility reports whether the user may sign up to the event now.
func (s *SignupService) CheckEligibility(ctx context.Context, userID, eventID uint64) error {
	e, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return err
	}
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	return s.checkEligibility(ctx, s.store, *e, *p)
}

// SignupsLeft returns the remaining capacity of an event, never negative.
func (s *SignupService) SignupsLeft(ctx context.Context, eventID uint64) (int, error) {
	e, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.CountValidSignups(ctx, eventID)
	if err != nil {
		return 0, wrap(ErrPersistence, err)
	}
	return max(e.SignupLimit-n, 0), nil
}

// Quote prices the event for the user and reports when their signups open.
func (s *SignupService) Quote(ctx context.Context, userID, eventID uint64) (*Quote, error) {
	e, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	left, err := s.SignupsLeft(ctx, eventID)
	if err != nil {
		return nil, err
	}
	signedUp := true
	if _, err := s.store.FindValidSignup(ctx, e.ID, p.ID); err != nil {
		if !errors.Is(err, datastore.ErrNotFound) {
			return nil, wrap(ErrPersistence, err)
		}
		signedUp = false
	}
	cost, member, notices := s.cost(ctx, *e, *p)
	now := s.now()
	return &Quote{
		EventID:     e.ID,
		CostPence:   cost,
		IsMember:    member,
		SignupStart: SignupStartFor(*e, *p, now),
		Open:        SignupsOpenFor(*e, *p, now),
		SignupsLeft: left,
		HasSignedUp: signedUp,
		Notices:     notices,
	}, nil
}

// SignupComments lists what attendees wrote when signing up, oldest
// comment first.  Withdrawn and unpaid signups are left out.
func (s *SignupService) SignupComments(ctx context.Context, eventID uint64) ([]SignupComment, error) {
	if _, err := s.loadEvent(ctx, s.store, eventID); err != nil {
		return nil, err
	}
	signups, err := s.store.ListCommentedSignups(ctx, eventID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	ids := make([]uint64, 0, len(signups))
	for _, su := range signups {
		ids = append(ids, su.UserID)
	}
	profiles, err := s.store.ListProfiles(ctx, ids)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	out := make([]SignupComment, 0, len(signups))
	for _, su := range signups {
		if su.CommentedAt == nil {
			continue
		}
		out = append(out, SignupComment{
			Attendee:    attendee(su.UserID, profiles),
			Comment:     su.Comment,
			CommentedAt: *su.CommentedAt,
		})
	}
	return out, nil
}

// CreateFreeSignup signs the user up to an event that costs them nothing.
func (s *SignupService) CreateFreeSignup(ctx context.Context, userID, eventID uint64, form SignupForm) (*SignupResult, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	cost, _, notices := s.cost(ctx, *e, *p)
	if cost > 0 {
		return nil, ErrPaymentRequired
	}
	if err := s.checkEligibility(ctx, s.store, *e, *p); err != nil {
		return nil, err
	}

	now := s.now()
	signup := &model.EventSignup{
		EventID:            e.ID,
		UserID:             p.ID,
		Comment:            form.Comment,
		PhotographyConsent: form.PhotographyConsent,
		CreatedAt:          now,
	}
	if form.Comment != "" {
		signup.CommentedAt = &now
	}
	err = s.store.WithEventLock(ctx, e.ID, func(tx datastore.Store) error {
		locked, err := s.loadEvent(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if err := s.checkEligibility(ctx, tx, *locked, *p); err != nil {
			return err
		}
		if err := tx.InsertSignup(ctx, signup); err != nil {
			if errors.Is(err, datastore.ErrConflict) {
				return ErrAlreadySignedUp
			}
			return wrap(ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	metrics.Signups.WithLabelValues("free").Inc()
	s.publish(ctx, queue.DomainEvent{
		Type: queue.SignupCreated, EventID: e.ID, UserID: p.ID, SignupID: signup.ID,
	})
	s.log.Info("signup created", slog.Uint64("event_id", e.ID), slog.Uint64("user_id", p.ID), slog.Uint64("signup_id", signup.ID))
	return &SignupResult{Signup: signup, Notices: notices}, nil
}

// InitiatePaidSignup creates a ticket and a checkout session for an event
// that costs the user money.  No signup exists until the payment
// completes; see OnPaymentCompleted.
func (s *SignupService) InitiatePaidSignup(ctx context.Context, userID, eventID uint64, form SignupForm) (*Checkout, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, s.store, eventID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	cost, _, notices := s.cost(ctx, *e, *p)
	if cost == 0 {
		return nil, ErrNoPaymentRequired
	}
	if err := s.checkEligibility(ctx, s.store, *e, *p); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &model.Ticket{
		EventID:            e.ID,
		UserID:             p.ID,
		Status:             model.TicketCreated,
		AmountPence:        cost,
		Comment:            form.Comment,
		PhotographyConsent: form.PhotographyConsent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.InsertTicket(ctx, ticket); err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	ref, err := s.refs.Encode(ReferenceClaims{TicketID: ticket.ID, EventID: e.ID, CreatedAt: ticket.CreatedAt})
	if err != nil {
		return nil, wrap(ErrPersistence, fmt.Errorf("encode reference: %w", err))
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.gateway.CreateCheckout(gctx, CheckoutRequest{
		Reference:      ref,
		Email:          p.Email,
		Description:    e.Title,
		AmountPence:    cost,
		IdempotencyKey: checkoutKey(ticket.ID),
	})
	if err != nil {
		s.log.Error("create checkout failed", slog.Uint64("ticket_id", ticket.ID), slog.Any("error", err))
		return nil, wrap(ErrPaymentGateway, err)
	}
	s.log.Info("checkout created", slog.Uint64("event_id", e.ID), slog.Uint64("user_id", p.ID),
		slog.Uint64("ticket_id", ticket.ID), slog.Int64("amount_pence", cost))
	return &Checkout{
		TicketID:    ticket.ID,
		Reference:   ref,
		SessionID:   session.ID,
		URL:         session.URL,
		AmountPence: cost,
		Notices:     notices,
	}, nil
}

func checkoutKey(ticketID uint64) string {
	return "checkout-ticket-" + strconv.FormatUint(ticketID, 10)
}

// OnPaymentCompleted reconciles a checkout-completed notification.  When
// paid is false the payment is still settling and the ticket only moves
// to IN_PROGRESS.  Replays return the signup created the first time.
func (s *SignupService) OnPaymentCompleted(ctx context.Context, reference, chargeID string, paid bool) (*model.EventSignup, error) {
	claims, err := s.refs.Decode(reference)
	if err != nil {
		return nil, wrap(ErrBadReference, err)
	}
	if claims.CreatedAt.After(s.now()) {
		return nil, ErrStaleTicket
	}
	if chargeID == "" {
		return nil, withMsg(ErrBadReference, "payment notification has no charge id")
	}
	ticket, err := s.store.GetTicket(ctx, claims.TicketID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, withMsg(ErrUnknownCharge, "no ticket matches the reference")
		}
		return nil, wrap(ErrPersistence, err)
	}
	if ticket.EventID != claims.EventID {
		return nil, withMsg(ErrBadReference, "reference does not match the ticket")
	}

	if !paid {
		if ticket.Status != model.TicketCreated {
			return nil, nil
		}
		if err := s.store.UpdateTicket(ctx, ticket.ID, model.TicketInProgress, &chargeID); err != nil {
			return nil, wrap(ErrPersistence, err)
		}
		s.log.Info("ticket awaiting settlement", slog.Uint64("ticket_id", ticket.ID), slog.String("charge_id", chargeID))
		return nil, nil
	}
	return s.completeTicket(ctx, ticket.ID, ticket.EventID, chargeID)
}

// OnChargeSucceeded completes the ticket holding chargeID.  An unknown
// charge is a reconciliation anomaly and is returned as an error so the
// processor redelivers.
func (s *SignupService) OnChargeSucceeded(ctx context.Context, chargeID string) error {
	ticket, err := s.store.GetTicketByCharge(ctx, chargeID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			s.log.Error("charge succeeded for unknown ticket", slog.String("charge_id", chargeID))
			return wrap(ErrUnknownCharge, err)
		}
		return wrap(ErrPersistence, err)
	}
	if ticket.Status == model.TicketRefunded {
		s.log.Warn("charge succeeded for refunded ticket", slog.Uint64("ticket_id", ticket.ID), slog.String("charge_id", chargeID))
		return nil
	}
	_, err = s.completeTicket(ctx, ticket.ID, ticket.EventID, chargeID)
	if err != nil && (KindOf(err) == KindEligibility || errors.Is(err, ErrTicketRefunded)) {
		// Either completeTicket refunded the payment or it already was.
		return nil
	}
	return err
}

// OnChargeRefunded marks the ticket holding chargeID as refunded and
// frees the user's seat.  Unknown charges are ignored.
func (s *SignupService) OnChargeRefunded(ctx context.Context, chargeID string) error {
	ticket, err := s.store.GetTicketByCharge(ctx, chargeID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			s.log.Info("refund for unknown charge ignored", slog.String("charge_id", chargeID))
			return nil
		}
		return wrap(ErrPersistence, err)
	}

	changed := false
	err = s.store.WithEventLock(ctx, ticket.EventID, func(tx datastore.Store) error {
		t, err := tx.GetTicket(ctx, ticket.ID)
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		if t.Status == model.TicketRefunded {
			return nil
		}
		if err := tx.UpdateTicket(ctx, t.ID, model.TicketRefunded, nil); err != nil {
			return wrap(ErrPersistence, err)
		}
		changed = true
		// A refunded signup no longer counts; withdraw it so the user can
		// sign up again.
		su, err := tx.FindSignupByTicket(ctx, t.ID)
		if errors.Is(err, datastore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		if su.IsActive() {
			if err := tx.MarkSignupCancelled(ctx, su.ID, s.now()); err != nil {
				return wrap(ErrPersistence, err)
			}
		}
		return nil
	})
	if err != nil {
		return asServiceError(err)
	}
	if !changed {
		return nil
	}

	s.publish(ctx, queue.DomainEvent{
		Type: queue.TicketRefunded, EventID: ticket.EventID, UserID: ticket.UserID,
		TicketID: ticket.ID, AmountPence: ticket.AmountPence, Note: "refunded by payment processor",
	})
	s.releaseSeat(ctx, ticket.EventID, ticket.UserID)
	return nil
}

// completeTicket moves a ticket to COMPLETE and materializes its signup
// under the event lock.  If the event filled up or the user signed up
// some other way in the meantime, the payment is refunded and the
// eligibility error is returned.
func (s *SignupService) completeTicket(ctx context.Context, ticketID, eventID uint64, chargeID string) (*model.EventSignup, error) {
	var (
		signup  *model.EventSignup
		ticket  *model.Ticket
		refused error
		created bool
	)
	err := s.store.WithEventLock(ctx, eventID, func(tx datastore.Store) error {
		t, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		ticket = t
		existing, err := tx.FindSignupByTicket(ctx, t.ID)
		if err == nil {
			signup = existing
			return nil
		}
		if !errors.Is(err, datastore.ErrNotFound) {
			return wrap(ErrPersistence, err)
		}
		if t.Status == model.TicketRefunded {
			return ErrTicketRefunded
		}

		charge := chargeID
		if t.ChargeID != nil {
			if charge != "" && *t.ChargeID != charge {
				s.log.Warn("charge id mismatch; keeping recorded charge",
					slog.Uint64("ticket_id", t.ID), slog.String("recorded", *t.ChargeID), slog.String("received", charge))
			}
			charge = *t.ChargeID
		}
		if t.Status == model.TicketCreated {
			if err := tx.UpdateTicket(ctx, t.ID, model.TicketInProgress, &charge); err != nil {
				return wrap(ErrPersistence, err)
			}
		}
		if t.Status != model.TicketComplete {
			if err := tx.UpdateTicket(ctx, t.ID, model.TicketComplete, &charge); err != nil {
				return wrap(ErrPersistence, err)
			}
		}
		t.Status = model.TicketComplete
		t.ChargeID = &charge

		e, err := s.loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if _, err := tx.FindValidSignup(ctx, e.ID, t.UserID); err == nil {
			refused = ErrAlreadySignedUp
			return nil
		} else if !errors.Is(err, datastore.ErrNotFound) {
			return wrap(ErrPersistence, err)
		}
		n, err := tx.CountValidSignups(ctx, e.ID)
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		if n >= e.SignupLimit {
			refused = ErrCapacityExceeded
			return nil
		}

		now := s.now()
		signup = &model.EventSignup{
			EventID:            e.ID,
			UserID:             t.UserID,
			Comment:            t.Comment,
			PhotographyConsent: t.PhotographyConsent,
			TicketID:           &t.ID,
			CreatedAt:          now,
			Ticket:             t,
		}
		if t.Comment != "" {
			signup.CommentedAt = &now
		}
		if err := tx.InsertSignup(ctx, signup); err != nil {
			if errors.Is(err, datastore.ErrConflict) {
				signup = nil
				refused = ErrAlreadySignedUp
				return nil
			}
			return wrap(ErrPersistence, err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	if refused != nil {
		s.log.Warn("paid signup refused after payment; refunding",
			slog.Uint64("ticket_id", ticket.ID), slog.Uint64("user_id", ticket.UserID), slog.Any("reason", refused))
		if rerr := s.refundTicket(ctx, *ticket); rerr != nil {
			s.scheduleRefund(ctx, ticket.ID)
		}
		return nil, refused
	}
	if created {
		metrics.Signups.WithLabelValues("paid").Inc()
		s.publish(ctx, queue.DomainEvent{
			Type: queue.SignupCreated, EventID: eventID, UserID: ticket.UserID,
			SignupID: signup.ID, TicketID: ticket.ID, AmountPence: ticket.AmountPence,
		})
		s.log.Info("paid signup created", slog.Uint64("event_id", eventID),
			slog.Uint64("user_id", ticket.UserID), slog.Uint64("ticket_id", ticket.ID))
	}
	return signup, nil
}

// CancelSignup withdraws the user's valid signup to an event.  The
// cancellation always commits; a refund that fails afterwards is
// reported in CancelResult.RefundErr and queued for retry.
func (s *SignupService) CancelSignup(ctx context.Context, userID, eventID uint64) (*CancelResult, error) {
	if _, err := s.loadEvent(ctx, s.store, eventID); err != nil {
		return nil, err
	}

	var signup *model.EventSignup
	now := s.now()
	err := s.store.WithEventLock(ctx, eventID, func(tx datastore.Store) error {
		existing, err := tx.FindValidSignup(ctx, eventID, userID)
		if err != nil {
			if errors.Is(err, datastore.ErrNotFound) {
				return ErrNotSignedUp
			}
			return wrap(ErrPersistence, err)
		}
		if err := tx.MarkSignupCancelled(ctx, existing.ID, now); err != nil {
			return wrap(ErrPersistence, err)
		}
		existing.Cancelled = &model.Cancellation{At: now}
		if existing.TicketID != nil && existing.Ticket == nil {
			t, err := tx.GetTicket(ctx, *existing.TicketID)
			if err != nil {
				return wrap(ErrPersistence, err)
			}
			existing.Ticket = t
		}
		signup = existing
		return nil
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	metrics.Signups.WithLabelValues("cancelled").Inc()
	s.publish(ctx, queue.DomainEvent{
		Type: queue.SignupCancelled, EventID: eventID, UserID: userID, SignupID: signup.ID,
	})
	s.log.Info("signup cancelled", slog.Uint64("event_id", eventID), slog.Uint64("user_id", userID))

	res := &CancelResult{Signup: signup}
	if t := signup.Ticket; t != nil && t.Status == model.TicketComplete && t.ChargeID != nil {
		if err := s.refundTicket(ctx, *t); err != nil {
			res.RefundErr = wrap(ErrRefundFailed, err)
			s.scheduleRefund(ctx, t.ID)
		} else {
			res.Refunded = true
		}
	}
	s.releaseSeat(ctx, eventID, userID)
	return res, nil
}

// RetryRefund re-attempts the refund of a ticket.  Tickets that are
// already refunded, or were never paid, need nothing.
func (s *SignupService) RetryRefund(ctx context.Context, ticketID uint64) error {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return withMsg(ErrNotFound, "ticket not found")
		}
		return wrap(ErrPersistence, err)
	}
	if t.Status != model.TicketComplete || t.ChargeID == nil {
		return nil
	}
	if err := s.refundTicket(ctx, *t); err != nil {
		return wrap(ErrRefundFailed, err)
	}
	return nil
}

// refundTicket asks the gateway to refund a completed ticket and records
// the result.  The charge.refunded webhook reconciles the status again
// if the local update is lost.
func (s *SignupService) refundTicket(ctx context.Context, t model.Ticket) error {
	if t.ChargeID == nil {
		return errors.New("ticket has no charge")
	}
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.gateway.Refund(gctx, *t.ChargeID); err != nil {
		metrics.RefundFailures.Inc()
		s.log.Error("refund failed", slog.Uint64("ticket_id", t.ID), slog.String("charge_id", *t.ChargeID), slog.Any("error", err))
		return err
	}
	if err := s.store.UpdateTicket(ctx, t.ID, model.TicketRefunded, nil); err != nil {
		s.log.Error("refund issued but ticket update failed", slog.Uint64("ticket_id", t.ID), slog.Any("error", err))
	}
	s.publish(ctx, queue.DomainEvent{
		Type: queue.TicketRefunded, EventID: t.EventID, UserID: t.UserID,
		TicketID: t.ID, AmountPence: t.AmountPence,
	})
	return nil
}

func (s *SignupService) scheduleRefund(ctx context.Context, ticketID uint64) {
	if s.refunds == nil {
		return
	}
	if err := s.refunds.ScheduleRefundRetry(ctx, ticketID); err != nil {
		s.log.Error("schedule refund retry failed", slog.Uint64("ticket_id", ticketID), slog.Any("error", err))
	}
}

func (s *SignupService) releaseSeat(ctx context.Context, eventID, userID uint64) {
	if s.seats == nil {
		return
	}
	if err := s.seats.ReleaseUser(ctx, eventID, userID, userID); err != nil {
		s.log.Warn("release seat failed", slog.Uint64("event_id", eventID), slog.Uint64("user_id", userID), slog.Any("error", err))
	}
}

func (s *SignupService) publish(ctx context.Context, ev queue.DomainEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish domain event failed", slog.String("type", ev.Type), slog.Any("error", err))
	}
}

// SignupTournament signs the user up to a tournament.
func (s *SignupService) SignupTournament(ctx context.Context, userID, tournamentID uint64, comment string) (*model.TournamentSignup, error) {
	if err := (SignupForm{Comment: comment}).validate(); err != nil {
		return nil, err
	}
	t, err := s.loadTournament(ctx, s.store, tournamentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadProfile(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	signup := &model.TournamentSignup{
		TournamentID: t.ID,
		UserID:       userID,
		Comment:      comment,
		CreatedAt:    now,
	}
	if comment != "" {
		signup.CommentedAt = &now
	}
	err = s.store.WithTournamentLock(ctx, t.ID, func(tx datastore.Store) error {
		if _, err := tx.FindActiveTournamentSignup(ctx, t.ID, userID); err == nil {
			return ErrAlreadySignedUp
		} else if !errors.Is(err, datastore.ErrNotFound) {
			return wrap(ErrPersistence, err)
		}
		n, err := tx.CountActiveTournamentSignups(ctx, t.ID)
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		if n >= t.SignupLimit {
			return ErrCapacityExceeded
		}
		if !t.SignupsOpen(now) {
			return ErrSignupNotOpen
		}
		if t.RequiresAttendance && t.EventID != nil {
			if _, err := tx.FindValidSignup(ctx, *t.EventID, userID); err != nil {
				if errors.Is(err, datastore.ErrNotFound) {
					return ErrAttendanceRequired
				}
				return wrap(ErrPersistence, err)
			}
		}
		if err := tx.InsertTournamentSignup(ctx, signup); err != nil {
			if errors.Is(err, datastore.ErrConflict) {
				return ErrAlreadySignedUp
			}
			return wrap(ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	metrics.Signups.WithLabelValues("tournament").Inc()
	s.publish(ctx, queue.DomainEvent{
		Type: queue.TournamentSignupCreated, TournamentID: t.ID, UserID: userID, SignupID: signup.ID,
	})
	return signup, nil
}

// CancelTournamentSignup withdraws the user's active tournament signup.
func (s *SignupService) CancelTournamentSignup(ctx context.Context, userID, tournamentID uint64) error {
	t, err := s.loadTournament(ctx, s.store, tournamentID)
	if err != nil {
		return err
	}
	var signupID uint64
	err = s.store.WithTournamentLock(ctx, t.ID, func(tx datastore.Store) error {
		existing, err := tx.FindActiveTournamentSignup(ctx, t.ID, userID)
		if err != nil {
			if errors.Is(err, datastore.ErrNotFound) {
				return withMsg(ErrNotSignedUp, "you cannot un-signup from a tournament you're not signed up to")
			}
			return wrap(ErrPersistence, err)
		}
		signupID = existing.ID
		if err := tx.MarkTournamentSignupCancelled(ctx, existing.ID, s.now()); err != nil {
			return wrap(ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return asServiceError(err)
	}

	metrics.Signups.WithLabelValues("tournament_cancelled").Inc()
	s.publish(ctx, queue.DomainEvent{
		Type: queue.TournamentSignupCancelled, TournamentID: t.ID, UserID: userID, SignupID: signupID,
	})
	return nil
}

func (s *SignupService) loadTournament(ctx context.Context, st datastore.Store, id uint64) (*model.Tournament, error) {
	t, err := st.GetTournament(ctx, id)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, withMsg(ErrNotFound, "tournament not found")
		}
		return nil, wrap(ErrPersistence, err)
	}
	return t, nil
}

// asServiceError passes service errors through and classifies anything
// else (a failed commit, a lost lock) as a persistence failure.
func asServiceError(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, datastore.ErrNotFound) {
		return wrap(ErrNotFound, err)
	}
	return wrap(ErrPersistence, err)
}
