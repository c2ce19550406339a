package model

import "time"

// TicketStatus is the payment lifecycle state of a ticket.
type TicketStatus string

const (
	TicketCreated    TicketStatus = "CREATED"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketComplete   TicketStatus = "COMPLETE"
	TicketRefunded   TicketStatus = "REFUNDED"
)

// ticketTransitions lists the legal next states for each status.
// Complete may still move to Refunded on a later refund.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketCreated:    {TicketInProgress, TicketComplete, TicketRefunded},
	TicketInProgress: {TicketComplete, TicketRefunded},
	TicketComplete:   {TicketRefunded},
	TicketRefunded:   nil,
}

// CanTransition reports whether a ticket in status s may move to next.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	for _, t := range ticketTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	_, ok := ticketTransitions[s]
	return ok
}

// Ticket is the payment record backing a paid event signup.  The
// checkout form (comment and photography consent) travels on the
// ticket until payment completes and the signup is materialized.
//
// Fields:
//
//	ID                 – primary key identifier.
//	EventID            – event being paid for.
//	UserID             – paying user.
//	Status             – lifecycle state.
//	ChargeID           – payment processor charge/payment intent (nullable, unique).
//	AmountPence        – amount charged.
//	Comment            – signup comment captured at checkout.
//	PhotographyConsent – consent captured at checkout.
//	CreatedAt          – creation timestamp, encoded in the checkout reference.
//	UpdatedAt          – last update timestamp.
type Ticket struct {
	ID                 uint64       // tickets.id
	EventID            uint64       // tickets.event_id
	UserID             uint64       // tickets.user_id
	Status             TicketStatus // tickets.status
	ChargeID           *string      // tickets.charge_id (nullable)
	AmountPence        int64        // tickets.amount_pence
	Comment            string       // tickets.comment
	PhotographyConsent bool         // tickets.photography_consent
	CreatedAt          time.Time    // tickets.created_at
	UpdatedAt          time.Time    // tickets.updated_at
}
