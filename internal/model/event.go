package model

import (
	"errors"
	"time"
)

// Society codes that may host an event.
const (
	SocietyUWCS    = "UWCS"
	SocietyEsports = "WE"
)

// Event describes a scheduled society activity that members sign up to.
// Events are created by the exec (seed file or admin tooling) and are
// read-mostly afterwards.  Costs are stored in pence.
//
// Fields:
//
//	ID                 – primary key identifier.
//	Slug               – unique short name used in URLs.
//	Title              – display title.
//	Start, End         – when the event runs.
//	SignupStart        – when general signups open.
//	SignupEnd          – when signups close (exclusive).
//	SignupStartFresher – optional earlier opening for freshers and exec.
//	SignupLimit        – maximum number of valid signups.
//	HostedBy           – society codes hosting the event.
//	CostMember         – price in pence for members of a hosting society.
//	CostNonMember      – price in pence for everyone else.
//	SeatingRoomID      – room used by the seating plan (nil means no seating).
//	SeatingLockAt      – after this instant only the exec may edit seating.
type Event struct {
	ID                 uint64     // events.id
	Slug               string     // events.slug
	Title              string     // events.title
	Description        string     // events.description
	Location           string     // events.location
	Start              time.Time  // events.starts_at
	End                time.Time  // events.ends_at
	SignupStart        time.Time  // events.signup_start
	SignupEnd          time.Time  // events.signup_end
	SignupStartFresher *time.Time // events.signup_start_fresher (nullable)
	SignupLimit        int        // events.signup_limit
	HostedBy           []string   // events.hosted_by (comma separated)
	CostMember         int64      // events.cost_member
	CostNonMember      int64      // events.cost_non_member
	SeatingRoomID      *uint64    // events.seating_room_id (nullable)
	SeatingLockAt      *time.Time // events.seating_lock_at (nullable)
	HasPhotography     bool       // events.has_photography
	HasLivestream      bool       // events.has_livestream
	CreatedAt          time.Time  // events.created_at
	UpdatedAt          time.Time  // events.updated_at
}

var (
	ErrSignupWindow   = errors.New("signup window must not start after it ends")
	ErrEventWindow    = errors.New("event must not start after it ends")
	ErrSignupLimit    = errors.New("signup limit must not be negative")
	ErrFresherWindow  = errors.New("fresher signup start must not be after signup end")
	ErrNegativeCost   = errors.New("costs must not be negative")
	ErrUnknownSociety = errors.New("unknown hosting society")
)

// Validate checks the invariants an event must hold before it is stored.
func (e Event) Validate() error {
	if e.SignupStart.After(e.SignupEnd) {
		return ErrSignupWindow
	}
	if e.Start.After(e.End) {
		return ErrEventWindow
	}
	if e.SignupLimit < 0 {
		return ErrSignupLimit
	}
	if e.SignupStartFresher != nil && e.SignupStartFresher.After(e.SignupEnd) {
		return ErrFresherWindow
	}
	if e.CostMember < 0 || e.CostNonMember < 0 {
		return ErrNegativeCost
	}
	for _, s := range e.HostedBy {
		if s != SocietyUWCS && s != SocietyEsports {
			return ErrUnknownSociety
		}
	}
	return nil
}

// IsOngoing reports whether now falls within (Start, End].
func (e Event) IsOngoing(now time.Time) bool {
	return e.Start.Before(now) && !now.After(e.End)
}

// HasSeating reports whether the event uses a seating plan.
func (e Event) HasSeating() bool { return e.SeatingRoomID != nil }

// SeatingLocked reports whether seating edits are restricted to the exec.
func (e Event) SeatingLocked(now time.Time) bool {
	return e.SeatingLockAt != nil && !now.Before(*e.SeatingLockAt)
}

// SeatingRoom is a physical room layout: a list of tables, each with a
// number of seats.  Seat IDs are zero-based and run across tables in
// order, so with tables [20, 10] seat 20 is the first seat of table 1.
type SeatingRoom struct {
	ID        uint64    // seating_rooms.id
	Name      string    // seating_rooms.name
	Tables    []int     // seating_rooms.tables (JSON list of seat counts)
	CreatedAt time.Time // seating_rooms.created_at
}

// MaxCapacity is the total number of seats across all tables.
func (r SeatingRoom) MaxCapacity() int {
	n := 0
	for _, t := range r.Tables {
		n += t
	}
	return n
}

// Locate resolves a seat ID into its table index and seat index within
// that table.  ok is false when the seat does not exist in the room.
func (r SeatingRoom) Locate(seatID int) (table, seat int, ok bool) {
	if seatID < 0 {
		return 0, 0, false
	}
	rest := seatID
	for i, n := range r.Tables {
		if rest < n {
			return i, rest, true
		}
		rest -= n
	}
	return 0, 0, false
}
