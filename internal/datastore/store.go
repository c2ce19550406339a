// Package datastore defines the persistence contract the services are
// written against.  The MySQL implementation lives in
// internal/repository; tests use in-memory fakes.
package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/uwcs/warwickgg/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint,
// such as a second active signup for the same user and event or a second
// signup for the same ticket.
var ErrConflict = errors.New("conflict")

// Store is the relational datastore.  Every method may run either against
// the connection pool or inside the transaction opened by WithEventLock.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, id uint64) (*model.Profile, error)
	ListProfiles(ctx context.Context, ids []uint64) (map[uint64]model.Profile, error)

	// Catalog
	GetEvent(ctx context.Context, id uint64) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListUpcomingEvents(ctx context.Context, now time.Time) ([]model.Event, error)
	GetSeatingRoom(ctx context.Context, id uint64) (*model.SeatingRoom, error)
	GetTournament(ctx context.Context, id uint64) (*model.Tournament, error)
	ListTournamentsForEvent(ctx context.Context, eventID uint64) ([]model.Tournament, error)

	// Event signups.  "Valid" follows model.EventSignup.IsValid.
	FindValidSignup(ctx context.Context, eventID, userID uint64) (*model.EventSignup, error)
	CountValidSignups(ctx context.Context, eventID uint64) (int, error)
	ListValidSignups(ctx context.Context, eventID uint64) ([]model.EventSignup, error)
	// ListCommentedSignups returns valid signups with a comment, oldest
	// comment first.
	ListCommentedSignups(ctx context.Context, eventID uint64) ([]model.EventSignup, error)
	FindSignupByTicket(ctx context.Context, ticketID uint64) (*model.EventSignup, error)
	InsertSignup(ctx context.Context, s *model.EventSignup) error
	MarkSignupCancelled(ctx context.Context, signupID uint64, at time.Time) error

	// Tickets
	InsertTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, id uint64) (*model.Ticket, error)
	GetTicketByCharge(ctx context.Context, chargeID string) (*model.Ticket, error)
	UpdateTicket(ctx context.Context, id uint64, status model.TicketStatus, chargeID *string) error

	// Tournament signups
	FindActiveTournamentSignup(ctx context.Context, tournamentID, userID uint64) (*model.TournamentSignup, error)
	CountActiveTournamentSignups(ctx context.Context, tournamentID uint64) (int, error)
	InsertTournamentSignup(ctx context.Context, s *model.TournamentSignup) error
	MarkTournamentSignupCancelled(ctx context.Context, signupID uint64, at time.Time) error

	// Seating revisions
	LatestRevision(ctx context.Context, eventID uint64) (*model.SeatingRevision, error)
	GetRevision(ctx context.Context, eventID uint64, number int) (*model.SeatingRevision, error)
	ListRevisions(ctx context.Context, eventID uint64) ([]model.SeatingRevision, error)
	InsertRevision(ctx context.Context, r *model.SeatingRevision) error
	InsertSeatings(ctx context.Context, seats []model.Seating) error
	ListSeatings(ctx context.Context, revisionID uint64) ([]model.Seating, error)

	// WithEventLock runs fn inside a single transaction that holds an
	// exclusive lock on the event row for its whole duration.  The Store
	// passed to fn is bound to that transaction.  If fn returns an error
	// nothing it wrote is committed.
	WithEventLock(ctx context.Context, eventID uint64, fn func(tx Store) error) error

	// WithTournamentLock is WithEventLock for a tournament row.
	WithTournamentLock(ctx context.Context, tournamentID uint64, fn func(tx Store) error) error
}
