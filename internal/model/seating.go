package model

import "time"

// SeatingRevision is an immutable, complete snapshot of the seat
// assignments for an event.  Revision numbers start at 0 and increase by
// one per event; the pair (EventID, Number) is unique.
type SeatingRevision struct {
	ID        uint64    // seating_revisions.id
	EventID   uint64    // seating_revisions.event_id
	Number    int       // seating_revisions.number
	CreatorID uint64    // seating_revisions.creator_id
	CreatedAt time.Time // seating_revisions.created_at
}

// Seating is one user's seat within a revision snapshot.
type Seating struct {
	ID         uint64 // seatings.id
	RevisionID uint64 // seatings.revision_id
	UserID     uint64 // seatings.user_id
	SeatID     int    // seatings.seat_id
	Reserved   bool   // seatings.reserved
}
