package model

import "time"

// Cancellation records that a signup was withdrawn.  Signups are never
// deleted; a non-nil Cancellation is the only way a signup stops being
// active, so a cancelled signup always carries its timestamp.
type Cancellation struct {
	At time.Time
}

// EventSignup is one signup attempt by a user to an event.  A paid
// signup owns exactly one ticket through TicketID.
type EventSignup struct {
	ID                 uint64        // event_signups.id
	EventID            uint64        // event_signups.event_id
	UserID             uint64        // event_signups.user_id
	Comment            string        // event_signups.comment
	CommentedAt        *time.Time    // event_signups.commented_at (nullable)
	PhotographyConsent bool          // event_signups.photography_consent
	TicketID           *uint64       // event_signups.ticket_id (nullable, unique)
	CreatedAt          time.Time     // event_signups.created_at
	Cancelled          *Cancellation // event_signups.is_unsigned_up + unsigned_up_at

	// Ticket is populated by reads that join the owning ticket.
	Ticket *Ticket
}

// IsActive reports whether the signup has not been withdrawn.
func (s EventSignup) IsActive() bool { return s.Cancelled == nil }

// IsValid reports whether the signup counts toward capacity and
// tournament eligibility: it is active and either needs no ticket or its
// ticket has completed payment.  ticket must be the signup's own ticket
// (nil when the signup has none).
func (s EventSignup) IsValid(ticket *Ticket) bool {
	if !s.IsActive() {
		return false
	}
	if s.TicketID == nil {
		return true
	}
	return ticket != nil && ticket.ID == *s.TicketID && ticket.Status == TicketComplete
}

// TournamentSignup is a signup to a tournament.  Tournament signups are
// always free.
type TournamentSignup struct {
	ID           uint64        // tournament_signups.id
	TournamentID uint64        // tournament_signups.tournament_id
	UserID       uint64        // tournament_signups.user_id
	Comment      string        // tournament_signups.comment
	CommentedAt  *time.Time    // tournament_signups.commented_at (nullable)
	CreatedAt    time.Time     // tournament_signups.created_at
	Cancelled    *Cancellation // tournament_signups.is_unsigned_up + unsigned_up_at
}

// IsActive reports whether the signup has not been withdrawn.
func (s TournamentSignup) IsActive() bool { return s.Cancelled == nil }
