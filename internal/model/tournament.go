package model

import "time"

// Tournament is a competitive activity, optionally run as part of an
// event.  When RequiresAttendance is set a user must hold a valid signup
// to the parent event before they may sign up to the tournament.
type Tournament struct {
	ID                 uint64    // tournaments.id
	Slug               string    // tournaments.slug
	Title              string    // tournaments.title
	Description        string    // tournaments.description
	Platform           string    // tournaments.platform
	EventID            *uint64   // tournaments.event_id (nullable)
	RequiresAttendance bool      // tournaments.requires_attendance
	Start              time.Time // tournaments.starts_at
	End                time.Time // tournaments.ends_at
	SignupStart        time.Time // tournaments.signup_start
	SignupEnd          time.Time // tournaments.signup_end
	SignupLimit        int       // tournaments.signup_limit
	CreatedAt          time.Time // tournaments.created_at
}

// Validate checks the same window and limit invariants as events.
func (t Tournament) Validate() error {
	if t.SignupStart.After(t.SignupEnd) {
		return ErrSignupWindow
	}
	if t.Start.After(t.End) {
		return ErrEventWindow
	}
	if t.SignupLimit < 0 {
		return ErrSignupLimit
	}
	return nil
}

// SignupsOpen reports whether now is within [SignupStart, SignupEnd).
func (t Tournament) SignupsOpen(now time.Time) bool {
	return !now.Before(t.SignupStart) && now.Before(t.SignupEnd)
}
