package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/uwcs/warwickgg/internal/datastore"
	"github.com/uwcs/warwickgg/internal/metrics"
	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/queue"
)

// SeatAssignment is one seat in a submitted seating plan.
type SeatAssignment struct {
	SeatID   int
	UserID   uint64
	Reserved bool
}

// Attendee is the public view of a user on the seating plan.
type Attendee struct {
	UserID    uint64
	Nickname  string
	LongName  string
	AvatarURL string
}

// SeatView is an occupied seat with its table position resolved.
type SeatView struct {
	Attendee
	SeatID   int
	Table    int
	Seat     int
	Reserved bool
}

// Occupancy is the state of an event's seating plan at one revision.
// Revision is nil when no revision exists yet.
type Occupancy struct {
	Revision *int
	Seated   []SeatView
	Unseated []Attendee
}

// RevisionSummary names a revision for the history view.
type RevisionSummary struct {
	Number    int
	Name      string
	CreatorID uint64
	CreatedAt time.Time
}

// SeatMove is a user that changed seat between two revisions.
type SeatMove struct {
	UserID uint64
	From   int
	To     int
}

// RevisionDiff lists the seat changes between a revision and the one
// before it.  Each slice is ordered by user id.
type RevisionDiff struct {
	Number  int
	Added   []model.Seating
	Removed []model.Seating
	Moved   []SeatMove
}

// Empty reports whether nothing changed.
func (d RevisionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Moved) == 0
}

// Diff compares two seat snapshots by user.  A user seated only in next
// is added, only in prev is removed, and in both on different seats is
// moved.  A change of the reserved flag alone is not reported.
func Diff(prev, next []model.Seating) RevisionDiff {
	before := make(map[uint64]model.Seating, len(prev))
	for _, s := range prev {
		before[s.UserID] = s
	}
	after := make(map[uint64]model.Seating, len(next))
	for _, s := range next {
		after[s.UserID] = s
	}

	var d RevisionDiff
	for uid, s := range after {
		old, ok := before[uid]
		switch {
		case !ok:
			d.Added = append(d.Added, s)
		case old.SeatID != s.SeatID:
			d.Moved = append(d.Moved, SeatMove{UserID: uid, From: old.SeatID, To: s.SeatID})
		}
	}
	for uid, s := range before {
		if _, ok := after[uid]; !ok {
			d.Removed = append(d.Removed, s)
		}
	}
	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].UserID < d.Added[j].UserID })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].UserID < d.Removed[j].UserID })
	sort.Slice(d.Moved, func(i, j int) bool { return d.Moved[i].UserID < d.Moved[j].UserID })
	return d
}

// SeatingDeps collects the collaborators of a SeatingService.
type SeatingDeps struct {
	Store     datastore.Store
	Authority Authority
	Events    EventPublisher
	Log       *slog.Logger
	Now       func() time.Time
}

// SeatingService maintains the append-only history of seating plans.
// Revision numbers are allocated inside the event lock so concurrent
// submissions receive consecutive numbers.
type SeatingService struct {
	store     datastore.Store
	authority Authority
	events    EventPublisher
	log       *slog.Logger
	now       func() time.Time
}

// NewSeatingService wires a SeatingService.
func NewSeatingService(d SeatingDeps) *SeatingService {
	s := &SeatingService{store: d.Store, authority: d.Authority, events: d.Events, log: d.Log, now: d.Now}
	if s.authority == nil {
		s.authority = ProfileAuthority{Store: d.Store}
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *SeatingService) seatedEvent(ctx context.Context, eventID uint64) (*model.Event, *model.SeatingRoom, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, nil, withMsg(ErrNotFound, "event not found")
		}
		return nil, nil, wrap(ErrPersistence, err)
	}
	if !e.HasSeating() {
		return nil, nil, ErrNoSeatingPlan
	}
	room, err := s.store.GetSeatingRoom(ctx, *e.SeatingRoomID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, nil, ErrNoSeatingPlan
		}
		return nil, nil, wrap(ErrPersistence, err)
	}
	return e, room, nil
}

func (s *SeatingService) isExec(ctx context.Context, userID uint64) (bool, error) {
	exec, err := s.authority.IsExec(ctx, userID)
	if err != nil {
		return false, wrap(ErrPersistence, err)
	}
	return exec, nil
}

func (s *SeatingService) requireExec(ctx context.Context, userID uint64) error {
	exec, err := s.isExec(ctx, userID)
	if err != nil {
		return err
	}
	if !exec {
		return ErrForbidden
	}
	return nil
}

// revisionSeats loads the seats of a revision, or of the latest revision
// when number is nil.  A nil revision with no error means the event has
// no revisions.
func revisionSeats(ctx context.Context, st datastore.Store, eventID uint64, number *int) (*model.SeatingRevision, []model.Seating, error) {
	var (
		rev *model.SeatingRevision
		err error
	)
	if number == nil {
		rev, err = st.LatestRevision(ctx, eventID)
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, nil, nil
		}
	} else {
		rev, err = st.GetRevision(ctx, eventID, *number)
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, nil, withMsg(ErrNotFound, fmt.Sprintf("revision %d not found", *number))
		}
	}
	if err != nil {
		return nil, nil, wrap(ErrPersistence, err)
	}
	seats, err := st.ListSeatings(ctx, rev.ID)
	if err != nil {
		return nil, nil, wrap(ErrPersistence, err)
	}
	return rev, seats, nil
}

func validateAssignments(room model.SeatingRoom, seats []SeatAssignment) error {
	capacity := room.MaxCapacity()
	bySeat := make(map[int]bool, len(seats))
	byUser := make(map[uint64]bool, len(seats))
	for _, a := range seats {
		if a.SeatID < 0 || a.SeatID >= capacity {
			return withMsg(ErrInvalidSeating, fmt.Sprintf("seat %d does not exist", a.SeatID))
		}
		if bySeat[a.SeatID] {
			return withMsg(ErrInvalidSeating, fmt.Sprintf("seat %d is assigned twice", a.SeatID))
		}
		if byUser[a.UserID] {
			return withMsg(ErrInvalidSeating, fmt.Sprintf("user %d is seated twice", a.UserID))
		}
		bySeat[a.SeatID] = true
		byUser[a.UserID] = true
	}
	return nil
}

// onlyTouches reports whether every difference between prev and next
// concerns userID.
func onlyTouches(prev, next []model.Seating, userID uint64) bool {
	d := Diff(prev, next)
	for _, s := range d.Added {
		if s.UserID != userID {
			return false
		}
	}
	for _, s := range d.Removed {
		if s.UserID != userID {
			return false
		}
	}
	for _, m := range d.Moved {
		if m.UserID != userID {
			return false
		}
	}
	reserved := make(map[uint64]bool, len(prev))
	for _, p := range prev {
		reserved[p.UserID] = p.Reserved
	}
	// Reserving seats is left to the exec.
	for _, n := range next {
		r, ok := reserved[n.UserID]
		if ok && r != n.Reserved || !ok && n.Reserved {
			return false
		}
	}
	return true
}

// SubmitRevision records a complete new seating plan for an event.  Exec
// may submit any valid plan at any time.  Other users must hold a valid
// signup, may only change their own seat, and may not submit once the
// plan is locked.
func (s *SeatingService) SubmitRevision(ctx context.Context, actorID, eventID uint64, seats []SeatAssignment) (*model.SeatingRevision, error) {
	e, room, err := s.seatedEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	exec, err := s.isExec(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !exec {
		if _, err := s.store.FindValidSignup(ctx, e.ID, actorID); err != nil {
			if errors.Is(err, datastore.ErrNotFound) {
				return nil, withMsg(ErrForbidden, "only attendees may change the seating plan")
			}
			return nil, wrap(ErrPersistence, err)
		}
		if e.SeatingLocked(s.now()) {
			return nil, ErrSeatingLocked
		}
	}
	if err := validateAssignments(*room, seats); err != nil {
		return nil, err
	}

	next := make([]model.Seating, 0, len(seats))
	for _, a := range seats {
		next = append(next, model.Seating{UserID: a.UserID, SeatID: a.SeatID, Reserved: a.Reserved})
	}

	var rev *model.SeatingRevision
	err = s.store.WithEventLock(ctx, e.ID, func(tx datastore.Store) error {
		signups, err := tx.ListValidSignups(ctx, e.ID)
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		attending := make(map[uint64]bool, len(signups))
		for _, su := range signups {
			attending[su.UserID] = true
		}
		for _, n := range next {
			if !attending[n.UserID] {
				return withMsg(ErrInvalidSeating, fmt.Sprintf("user %d is not signed up", n.UserID))
			}
		}

		latest, prev, err := revisionSeats(ctx, tx, e.ID, nil)
		if err != nil {
			return err
		}
		if !exec && !onlyTouches(prev, next, actorID) {
			return withMsg(ErrForbidden, "you may only change your own seat")
		}
		rev, err = s.appendRevision(ctx, tx, e.ID, latest, actorID, next)
		return err
	})
	if err != nil {
		return nil, asServiceError(err)
	}
	s.revisionCommitted(ctx, rev)
	s.log.Info("seating revision created", slog.Uint64("event_id", e.ID),
		slog.Int("revision", rev.Number), slog.Uint64("creator_id", actorID), slog.Int("seats", len(next)))
	return rev, nil
}

// appendRevision writes the next revision after latest.  It must run
// inside the event lock; callers report it with revisionCommitted after
// the lock returns.
func (s *SeatingService) appendRevision(ctx context.Context, tx datastore.Store, eventID uint64, latest *model.SeatingRevision, creatorID uint64, seats []model.Seating) (*model.SeatingRevision, error) {
	number := 0
	if latest != nil {
		number = latest.Number + 1
	}
	rev := &model.SeatingRevision{
		EventID:   eventID,
		Number:    number,
		CreatorID: creatorID,
		CreatedAt: s.now(),
	}
	if err := tx.InsertRevision(ctx, rev); err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	rows := make([]model.Seating, len(seats))
	for i, seat := range seats {
		seat.ID = 0
		seat.RevisionID = rev.ID
		rows[i] = seat
	}
	if len(rows) > 0 {
		if err := tx.InsertSeatings(ctx, rows); err != nil {
			return nil, wrap(ErrPersistence, err)
		}
	}
	return rev, nil
}

// revisionCommitted records a revision once its transaction has
// committed.
func (s *SeatingService) revisionCommitted(ctx context.Context, rev *model.SeatingRevision) {
	metrics.SeatingRevisions.Inc()
	n := rev.Number
	ev := queue.DomainEvent{Type: queue.SeatingRevisionCreated, EventID: rev.EventID, UserID: rev.CreatorID, Revision: &n, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish domain event failed", slog.String("type", ev.Type), slog.Any("error", err))
	}
}

// ReleaseUser writes a new revision without userID if they hold a seat
// in the latest revision.  It is a no-op for events without seating.
func (s *SeatingService) ReleaseUser(ctx context.Context, eventID, userID, actorID uint64) error {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil
		}
		return wrap(ErrPersistence, err)
	}
	if !e.HasSeating() {
		return nil
	}
	var rev *model.SeatingRevision
	err = s.store.WithEventLock(ctx, eventID, func(tx datastore.Store) error {
		latest, seats, err := revisionSeats(ctx, tx, eventID, nil)
		if err != nil || latest == nil {
			return err
		}
		kept := make([]model.Seating, 0, len(seats))
		for _, seat := range seats {
			if seat.UserID != userID {
				kept = append(kept, seat)
			}
		}
		if len(kept) == len(seats) {
			return nil
		}
		rev, err = s.appendRevision(ctx, tx, eventID, latest, actorID, kept)
		return err
	})
	if err != nil {
		return asServiceError(err)
	}
	if rev != nil {
		s.revisionCommitted(ctx, rev)
		s.log.Info("seat released", slog.Uint64("event_id", eventID), slog.Uint64("user_id", userID), slog.Int("revision", rev.Number))
	}
	return nil
}

// GetRevision returns a revision and its seats; nil number means the
// latest.
func (s *SeatingService) GetRevision(ctx context.Context, eventID uint64, number *int) (*model.SeatingRevision, []model.Seating, error) {
	if _, _, err := s.seatedEvent(ctx, eventID); err != nil {
		return nil, nil, err
	}
	rev, seats, err := revisionSeats(ctx, s.store, eventID, number)
	if err != nil {
		return nil, nil, err
	}
	if rev == nil {
		return nil, nil, withMsg(ErrNotFound, "no seating revisions yet")
	}
	return rev, seats, nil
}

// CurrentOccupancy resolves who sits where at a revision, and which valid
// signups hold no seat.
func (s *SeatingService) CurrentOccupancy(ctx context.Context, eventID uint64, number *int) (*Occupancy, error) {
	_, room, err := s.seatedEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rev, seats, err := revisionSeats(ctx, s.store, eventID, number)
	if err != nil {
		return nil, err
	}
	signups, err := s.store.ListValidSignups(ctx, eventID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}

	// Later rows win when a seat appears twice.
	bySeat := make(map[int]model.Seating, len(seats))
	for _, seat := range seats {
		bySeat[seat.SeatID] = seat
	}
	ids := make([]uint64, 0, len(bySeat)+len(signups))
	seated := make(map[uint64]bool, len(bySeat))
	for _, seat := range bySeat {
		seated[seat.UserID] = true
		ids = append(ids, seat.UserID)
	}
	for _, su := range signups {
		if !seated[su.UserID] {
			ids = append(ids, su.UserID)
		}
	}
	profiles, err := s.store.ListProfiles(ctx, ids)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}

	occ := &Occupancy{Seated: []SeatView{}, Unseated: []Attendee{}}
	if rev != nil {
		n := rev.Number
		occ.Revision = &n
	}
	for _, seat := range bySeat {
		table, pos, _ := room.Locate(seat.SeatID)
		occ.Seated = append(occ.Seated, SeatView{
			Attendee: attendee(seat.UserID, profiles),
			SeatID:   seat.SeatID,
			Table:    table,
			Seat:     pos,
			Reserved: seat.Reserved,
		})
	}
	for _, su := range signups {
		if !seated[su.UserID] {
			occ.Unseated = append(occ.Unseated, attendee(su.UserID, profiles))
		}
	}
	sort.Slice(occ.Seated, func(i, j int) bool { return occ.Seated[i].SeatID < occ.Seated[j].SeatID })
	sort.Slice(occ.Unseated, func(i, j int) bool { return occ.Unseated[i].UserID < occ.Unseated[j].UserID })
	return occ, nil
}

func attendee(userID uint64, profiles map[uint64]model.Profile) Attendee {
	p, ok := profiles[userID]
	if !ok {
		return Attendee{UserID: userID}
	}
	return Attendee{UserID: userID, Nickname: p.Nickname, LongName: p.LongName(), AvatarURL: p.AvatarURL}
}

// ListRevisions returns the revision history of an event, newest first.
// Exec only.
func (s *SeatingService) ListRevisions(ctx context.Context, actorID, eventID uint64) ([]RevisionSummary, error) {
	if err := s.requireExec(ctx, actorID); err != nil {
		return nil, err
	}
	if _, _, err := s.seatedEvent(ctx, eventID); err != nil {
		return nil, err
	}
	revs, err := s.store.ListRevisions(ctx, eventID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	ids := make([]uint64, 0, len(revs))
	for _, r := range revs {
		ids = append(ids, r.CreatorID)
	}
	profiles, err := s.store.ListProfiles(ctx, ids)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].Number > revs[j].Number })

	out := make([]RevisionSummary, 0, len(revs))
	for _, r := range revs {
		name := fmt.Sprintf("user %d", r.CreatorID)
		if p, ok := profiles[r.CreatorID]; ok {
			name = p.LongName()
		}
		out = append(out, RevisionSummary{
			Number:    r.Number,
			Name:      fmt.Sprintf("Revision %d by %s", r.Number, name),
			CreatorID: r.CreatorID,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// DiffAdjacent compares revision number with number-1.  Revision 0 is
// compared against an empty plan.  Exec only.
func (s *SeatingService) DiffAdjacent(ctx context.Context, actorID, eventID uint64, number int) (*RevisionDiff, error) {
	if err := s.requireExec(ctx, actorID); err != nil {
		return nil, err
	}
	if _, _, err := s.seatedEvent(ctx, eventID); err != nil {
		return nil, err
	}
	_, next, err := revisionSeats(ctx, s.store, eventID, &number)
	if err != nil {
		return nil, err
	}
	var prev []model.Seating
	if number > 0 {
		before := number - 1
		_, prev, err = revisionSeats(ctx, s.store, eventID, &before)
		if err != nil {
			return nil, err
		}
	}
	d := Diff(prev, next)
	d.Number = number
	return &d, nil
}
