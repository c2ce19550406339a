package service

import (
	"context"
	"time"

	"github.com/uwcs/warwickgg/internal/queue"
)

// MembershipVerifier checks whether a university ID belongs to a member
// of a hosting society.
type MembershipVerifier interface {
	IsMember(ctx context.Context, society, uniID string) (bool, error)
}

// CheckoutRequest describes the payment a user is about to make.
type CheckoutRequest struct {
	Reference   string
	Email       string
	Description string
	AmountPence int64
	// IdempotencyKey is stable for the ticket, so a retried request
	// returns the session opened the first time.
	IdempotencyKey string
}

// CheckoutSession is the handle returned by the payment gateway for the
// client to complete payment.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentGateway is the outbound side of the payment processor.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	Refund(ctx context.Context, chargeID string) error
}

// ReferenceClaims is the content of a tamper-resistant checkout reference.
type ReferenceClaims struct {
	TicketID  uint64
	EventID   uint64
	CreatedAt time.Time
}

// ReferenceCodec signs and verifies checkout references.
type ReferenceCodec interface {
	Encode(c ReferenceClaims) (string, error)
	Decode(ref string) (ReferenceClaims, error)
}

// RefundScheduler queues a refund to be retried out of band.
type RefundScheduler interface {
	ScheduleRefundRetry(ctx context.Context, ticketID uint64) error
}

// EventPublisher broadcasts domain events.  Failures are never fatal to
// the operation that raised them.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.DomainEvent) error
}

// SeatReleaser removes a user from the current seating plan of an event.
type SeatReleaser interface {
	ReleaseUser(ctx context.Context, eventID, userID, actorID uint64) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.DomainEvent) error { return nil }
