// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Routing keys for domain events published to the events exchange.
const (
	SignupCreated             = "signup.created"
	SignupCancelled           = "signup.cancelled"
	TicketRefunded            = "ticket.refunded"
	TournamentSignupCreated   = "tournament_signup.created"
	TournamentSignupCancelled = "tournament_signup.cancelled"
	SeatingRevisionCreated    = "seating.revision_created"
	ExchangeName              = "warwickgg.events"
	ExchangeKind              = "topic"
	AuditQueueName            = "warwickgg.audit"
	auditBindingKey           = "#"
)

// DomainEvent is published whenever signup, ticket or seating state
// changes.  It carries enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary
// database.  Fields that do not apply to a given routing key are zero.
type DomainEvent struct {
	Type         string    `json:"type"`
	EventID      uint64    `json:"event_id,omitempty"`
	TournamentID uint64    `json:"tournament_id,omitempty"`
	UserID       uint64    `json:"user_id,omitempty"`
	SignupID     uint64    `json:"signup_id,omitempty"`
	TicketID     uint64    `json:"ticket_id,omitempty"`
	Revision     *int      `json:"revision,omitempty"`
	AmountPence  int64     `json:"amount_pence,omitempty"`
	Note         string    `json:"note,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
