package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error so that callers can decide how to
// surface it without knowing every individual case.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindEligibility
	KindExternalService
	KindPersistence
	KindReconciliation
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEligibility:
		return "eligibility"
	case KindExternalService:
		return "external_service"
	case KindPersistence:
		return "persistence"
	case KindReconciliation:
		return "reconciliation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// Error is the error type returned by the services.  Code names the
// concrete case and is stable for API clients; Msg is user-facing.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return e.Code + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code so that the sentinels below work
// with errors.Is even after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	return e.Kind == KindExternalService || e.Kind == KindPersistence
}

func newErr(kind Kind, code, msg string) *Error { return &Error{Kind: kind, Code: code, Msg: msg} }

// Eligibility failures.
var (
	ErrAlreadySignedUp    = newErr(KindEligibility, "already_signed_up", "you're already signed up to that event")
	ErrCapacityExceeded   = newErr(KindEligibility, "capacity_exceeded", "there are no signups left")
	ErrSignupNotOpen      = newErr(KindEligibility, "signup_not_open", "signups are not open")
	ErrNotSignedUp        = newErr(KindEligibility, "not_signed_up", "you cannot un-signup from an event you're not signed up to")
	ErrAttendanceRequired = newErr(KindEligibility, "attendance_required", "you must be signed up to the event to join this tournament")
	ErrSeatingLocked      = newErr(KindEligibility, "seating_locked", "the seating plan is locked")
)

// Validation failures.
var (
	ErrPaymentRequired   = newErr(KindValidation, "payment_required", "this event requires payment")
	ErrNoPaymentRequired = newErr(KindValidation, "no_payment_required", "this event is free for you")
	ErrCommentTooLong    = newErr(KindValidation, "comment_too_long", "comment must be at most 1024 characters")
	ErrStaleTicket       = newErr(KindValidation, "stale_ticket", "ticket reference is not valid yet")
	ErrBadReference      = newErr(KindValidation, "bad_reference", "ticket reference is invalid")
	ErrNoSeatingPlan     = newErr(KindValidation, "no_seating_plan", "this event has no seating plan")
	ErrInvalidSeating    = newErr(KindValidation, "invalid_seating", "the submitted seating is invalid")
	ErrInvalidEvent      = newErr(KindValidation, "invalid_event", "the event definition is invalid")
)

// Other kinds.
var (
	ErrForbidden          = newErr(KindForbidden, "forbidden", "you are not allowed to do that")
	ErrNotFound           = newErr(KindNotFound, "not_found", "not found")
	ErrPersistence        = newErr(KindPersistence, "persistence_error", "something went wrong saving your changes, please try again")
	ErrPaymentGateway     = newErr(KindExternalService, "payment_unavailable", "the payment provider could not be reached, please try again")
	ErrRefundFailed       = newErr(KindExternalService, "refund_failed", "your refund could not be issued automatically; the exec will follow up")
	ErrUnknownCharge      = newErr(KindReconciliation, "unknown_charge", "no ticket matches the charge")
	ErrTicketRefunded     = newErr(KindReconciliation, "ticket_refunded", "the ticket has already been refunded")
	ErrMembershipDegraded = newErr(KindExternalService, "membership_unverified", "membership could not be verified; non-member pricing applies")
)

// wrap returns a copy of the sentinel carrying cause as its wrapped error.
func wrap(sentinel *Error, cause error) *Error {
	e := *sentinel
	e.Err = cause
	return &e
}

// withMsg returns a copy of the sentinel with a more specific message.
func withMsg(sentinel *Error, msg string) *Error {
	e := *sentinel
	e.Msg = msg
	return &e
}

// KindOf returns the Kind of err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
