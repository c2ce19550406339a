package service

import (
	"context"
	"errors"
	"time"

	"github.com/uwcs/warwickgg/internal/datastore"
	"github.com/uwcs/warwickgg/internal/model"
)

// EventDetail is an event with everything its page shows.
type EventDetail struct {
	Event       model.Event
	Room        *model.SeatingRoom
	Tournaments []model.Tournament
	SignupsLeft int
}

// TournamentDetail is a tournament with its remaining capacity.
type TournamentDetail struct {
	Tournament  model.Tournament
	SignupsLeft int
}

// CatalogService serves the read side of events and tournaments.
type CatalogService struct {
	store datastore.Store
	now   func() time.Time
}

func NewCatalogService(store datastore.Store, now func() time.Time) *CatalogService {
	if now == nil {
		now = time.Now
	}
	return &CatalogService{store: store, now: now}
}

// UpcomingEvents lists events that have not yet ended, soonest first.
func (c *CatalogService) UpcomingEvents(ctx context.Context) ([]model.Event, error) {
	events, err := c.store.ListUpcomingEvents(ctx, c.now())
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	return events, nil
}

func (c *CatalogService) Event(ctx context.Context, id uint64) (*EventDetail, error) {
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "event not found")
	}
	return c.detail(ctx, e)
}

func (c *CatalogService) EventBySlug(ctx context.Context, slug string) (*EventDetail, error) {
	e, err := c.store.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, notFoundOr(err, "event not found")
	}
	return c.detail(ctx, e)
}

func (c *CatalogService) detail(ctx context.Context, e *model.Event) (*EventDetail, error) {
	d := &EventDetail{Event: *e}
	if e.HasSeating() {
		room, err := c.store.GetSeatingRoom(ctx, *e.SeatingRoomID)
		if err != nil && !errors.Is(err, datastore.ErrNotFound) {
			return nil, wrap(ErrPersistence, err)
		}
		d.Room = room
	}
	tournaments, err := c.store.ListTournamentsForEvent(ctx, e.ID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	d.Tournaments = tournaments
	n, err := c.store.CountValidSignups(ctx, e.ID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	d.SignupsLeft = max(e.SignupLimit-n, 0)
	return d, nil
}

func (c *CatalogService) Tournament(ctx context.Context, id uint64) (*TournamentDetail, error) {
	t, err := c.store.GetTournament(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "tournament not found")
	}
	n, err := c.store.CountActiveTournamentSignups(ctx, id)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	return &TournamentDetail{Tournament: *t, SignupsLeft: max(t.SignupLimit-n, 0)}, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, datastore.ErrNotFound) {
		return withMsg(ErrNotFound, msg)
	}
	return wrap(ErrPersistence, err)
}
