package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/uwcs/warwickgg/internal/datastore"
	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/queue"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func discardLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- In-memory datastore.Store ---

// memStore keeps every table in maps guarded by mu.  lock serializes
// WithEventLock and WithTournamentLock across all rows, which is stricter
// than row locks but enough to exercise the services' critical sections.
// A lock callback that fails, or a commit failing with commitErr, rolls
// the tables back to how they were when the lock was taken.
type memStore struct {
	mu   sync.Mutex
	lock sync.Mutex

	nextID      uint64
	profiles    map[uint64]model.Profile
	events      map[uint64]model.Event
	rooms       map[uint64]model.SeatingRoom
	tournaments map[uint64]model.Tournament
	tickets     map[uint64]model.Ticket
	signups     []model.EventSignup
	tsignups    []model.TournamentSignup
	revisions   []model.SeatingRevision
	seatings    []model.Seating

	getProfileErr     error
	insertSeatingsErr error
	commitErr         error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:      100,
		profiles:    map[uint64]model.Profile{},
		events:      map[uint64]model.Event{},
		rooms:       map[uint64]model.SeatingRoom{},
		tournaments: map[uint64]model.Tournament{},
		tickets:     map[uint64]model.Ticket{},
	}
}

func (m *memStore) id() uint64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addProfile(p model.Profile) { m.mu.Lock(); m.profiles[p.ID] = p; m.mu.Unlock() }
func (m *memStore) addEvent(e model.Event)     { m.mu.Lock(); m.events[e.ID] = e; m.mu.Unlock() }
func (m *memStore) addRoom(r model.SeatingRoom) {
	m.mu.Lock()
	m.rooms[r.ID] = r
	m.mu.Unlock()
}
func (m *memStore) addTournament(t model.Tournament) {
	m.mu.Lock()
	m.tournaments[t.ID] = t
	m.mu.Unlock()
}

func (m *memStore) GetProfile(_ context.Context, id uint64) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getProfileErr != nil {
		return nil, m.getProfileErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) ListProfiles(_ context.Context, ids []uint64) (map[uint64]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uint64]model.Profile{}
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memStore) GetEvent(_ context.Context, id uint64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &e, nil
}

func (m *memStore) GetEventBySlug(_ context.Context, slug string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Slug == slug {
			return &e, nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (m *memStore) ListUpcomingEvents(_ context.Context, now time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if !e.End.Before(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memStore) GetSeatingRoom(_ context.Context, id uint64) (*model.SeatingRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) GetTournament(_ context.Context, id uint64) (*model.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ListTournamentsForEvent(_ context.Context, eventID uint64) ([]model.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Tournament
	for _, t := range m.tournaments {
		if t.EventID != nil && *t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// valid mirrors the repository's validSignup condition.  Callers hold mu.
func (m *memStore) valid(su model.EventSignup) bool {
	var t *model.Ticket
	if su.TicketID != nil {
		if tk, ok := m.tickets[*su.TicketID]; ok {
			t = &tk
		}
	}
	return su.IsValid(t)
}

func (m *memStore) withTicket(su model.EventSignup) *model.EventSignup {
	if su.TicketID != nil {
		if tk, ok := m.tickets[*su.TicketID]; ok {
			su.Ticket = &tk
		}
	}
	return &su
}

func (m *memStore) FindValidSignup(_ context.Context, eventID, userID uint64) (*model.EventSignup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.signups) - 1; i >= 0; i-- {
		su := m.signups[i]
		if su.EventID == eventID && su.UserID == userID && m.valid(su) {
			return m.withTicket(su), nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (m *memStore) CountValidSignups(_ context.Context, eventID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, su := range m.signups {
		if su.EventID == eventID && m.valid(su) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListValidSignups(_ context.Context, eventID uint64) ([]model.EventSignup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventSignup
	for _, su := range m.signups {
		if su.EventID == eventID && m.valid(su) {
			out = append(out, *m.withTicket(su))
		}
	}
	return out, nil
}

func (m *memStore) ListCommentedSignups(_ context.Context, eventID uint64) ([]model.EventSignup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventSignup
	for _, su := range m.signups {
		if su.EventID == eventID && su.CommentedAt != nil && m.valid(su) {
			out = append(out, *m.withTicket(su))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CommentedAt.Before(*out[j].CommentedAt) })
	return out, nil
}

func (m *memStore) FindSignupByTicket(_ context.Context, ticketID uint64) (*model.EventSignup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, su := range m.signups {
		if su.TicketID != nil && *su.TicketID == ticketID {
			return m.withTicket(su), nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (m *memStore) InsertSignup(_ context.Context, s *model.EventSignup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, su := range m.signups {
		if su.EventID == s.EventID && su.UserID == s.UserID && su.IsActive() {
			return datastore.ErrConflict
		}
		if s.TicketID != nil && su.TicketID != nil && *su.TicketID == *s.TicketID {
			return datastore.ErrConflict
		}
	}
	s.ID = m.id()
	row := *s
	row.Ticket = nil
	m.signups = append(m.signups, row)
	return nil
}

func (m *memStore) MarkSignupCancelled(_ context.Context, signupID uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.signups {
		if m.signups[i].ID == signupID && m.signups[i].IsActive() {
			m.signups[i].Cancelled = &model.Cancellation{At: at}
			return nil
		}
	}
	return datastore.ErrNotFound
}

func (m *memStore) InsertTicket(_ context.Context, t *model.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	m.tickets[t.ID] = *t
	return nil
}

func (m *memStore) GetTicket(_ context.Context, id uint64) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) GetTicketByCharge(_ context.Context, chargeID string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ChargeID != nil && *t.ChargeID == chargeID {
			return &t, nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (m *memStore) UpdateTicket(_ context.Context, id uint64, status model.TicketStatus, chargeID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return datastore.ErrNotFound
	}
	t.Status = status
	if chargeID != nil {
		c := *chargeID
		t.ChargeID = &c
	}
	m.tickets[id] = t
	return nil
}

func (m *memStore) ticket(id uint64) model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id]
}

func (m *memStore) FindActiveTournamentSignup(_ context.Context, tournamentID, userID uint64) (*model.TournamentSignup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, su := range m.tsignups {
		if su.TournamentID == tournamentID && su.UserID == userID && su.IsActive() {
			return &su, nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (m *memStore) CountActiveTournamentSignups(_ context.Context, tournamentID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, su := range m.tsignups {
		if su.TournamentID == tournamentID && su.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) InsertTournamentSignup(_ context.Context, s *model.TournamentSignup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, su := range m.tsignups {
		if su.TournamentID == s.TournamentID && su.UserID == s.UserID && su.IsActive() {
			return datastore.ErrConflict
		}
	}
	s.ID = m.id()
	m.tsignups = append(m.tsignups, *s)
	return nil
}

func (m *memStore) MarkTournamentSignupCancelled(_ context.Context, signupID uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tsignups {
		if m.tsignups[i].ID == signupID && m.tsignups[i].IsActive() {
			m.tsignups[i].Cancelled = &model.Cancellation{At: at}
			return nil
		}
	}
	return datastore.ErrNotFound
}

func (m *memStore) LatestRevision(_ context.Context, eventID uint64) (*model.SeatingRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.SeatingRevision
	for _, r := range m.revisions {
		if r.EventID == eventID && (latest == nil || r.Number > latest.Number) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, datastore.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) GetRevision(_ context.Context, eventID uint64, number int) (*model.SeatingRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.revisions {
		if r.EventID == eventID && r.Number == number {
			return &r, nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (m *memStore) ListRevisions(_ context.Context, eventID uint64) ([]model.SeatingRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatingRevision
	for _, r := range m.revisions {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertRevision(_ context.Context, r *model.SeatingRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.revisions {
		if existing.EventID == r.EventID && existing.Number == r.Number {
			return datastore.ErrConflict
		}
	}
	r.ID = m.id()
	m.revisions = append(m.revisions, *r)
	return nil
}

func (m *memStore) InsertSeatings(_ context.Context, seats []model.Seating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertSeatingsErr != nil {
		return m.insertSeatingsErr
	}
	for _, s := range seats {
		s.ID = m.id()
		m.seatings = append(m.seatings, s)
	}
	return nil
}

func (m *memStore) ListSeatings(_ context.Context, revisionID uint64) ([]model.Seating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Seating
	for _, s := range m.seatings {
		if s.RevisionID == revisionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) WithEventLock(_ context.Context, _ uint64, fn func(tx datastore.Store) error) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	snap := m.snapshot()
	err := fn(lockedStore{m})
	if err == nil && m.commitErr != nil {
		err = fmt.Errorf("commit: %w", m.commitErr)
	}
	if err != nil {
		m.restore(snap)
	}
	return err
}

// memSnapshot holds copies of the tables a transaction can write.  IDs
// are not handed back, as with auto-increment columns.
type memSnapshot struct {
	profiles    map[uint64]model.Profile
	events      map[uint64]model.Event
	tournaments map[uint64]model.Tournament
	tickets     map[uint64]model.Ticket
	signups     []model.EventSignup
	tsignups    []model.TournamentSignup
	revisions   []model.SeatingRevision
	seatings    []model.Seating
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memSnapshot{
		profiles:    maps.Clone(m.profiles),
		events:      maps.Clone(m.events),
		tournaments: maps.Clone(m.tournaments),
		tickets:     maps.Clone(m.tickets),
		signups:     slices.Clone(m.signups),
		tsignups:    slices.Clone(m.tsignups),
		revisions:   slices.Clone(m.revisions),
		seatings:    slices.Clone(m.seatings),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = s.profiles
	m.events = s.events
	m.tournaments = s.tournaments
	m.tickets = s.tickets
	m.signups = s.signups
	m.tsignups = s.tsignups
	m.revisions = s.revisions
	m.seatings = s.seatings
}

func (m *memStore) WithTournamentLock(ctx context.Context, id uint64, fn func(tx datastore.Store) error) error {
	return m.WithEventLock(ctx, id, fn)
}

// lockedStore is the tx view handed to lock callbacks; nested locks reuse
// the held one.
type lockedStore struct{ *memStore }

func (l lockedStore) WithEventLock(_ context.Context, _ uint64, fn func(tx datastore.Store) error) error {
	return fn(l)
}

func (l lockedStore) WithTournamentLock(_ context.Context, _ uint64, fn func(tx datastore.Store) error) error {
	return fn(l)
}

// --- Ports ---

type fakeMembership struct {
	mu    sync.Mutex
	calls int
	fn    func(society, uniID string) (bool, error)
}

func (f *fakeMembership) IsMember(_ context.Context, society, uniID string) (bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(society, uniID)
}

type fakeGateway struct {
	mu          sync.Mutex
	checkouts   []CheckoutRequest
	refunds     []string
	checkoutErr error
	refundErr   error
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkoutErr != nil {
		return CheckoutSession{}, g.checkoutErr
	}
	g.checkouts = append(g.checkouts, req)
	n := len(g.checkouts)
	return CheckoutSession{ID: fmt.Sprintf("cs_%d", n), URL: fmt.Sprintf("https://pay.example/cs_%d", n)}, nil
}

func (g *fakeGateway) Refund(_ context.Context, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, chargeID)
	return nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

// plainRefs encodes references as "ticket:event:unixnano" without a
// signature.
type plainRefs struct{}

func (plainRefs) Encode(c ReferenceClaims) (string, error) {
	return fmt.Sprintf("%d:%d:%d", c.TicketID, c.EventID, c.CreatedAt.UnixNano()), nil
}

func (plainRefs) Decode(ref string) (ReferenceClaims, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return ReferenceClaims{}, errors.New("malformed reference")
	}
	tid, err1 := strconv.ParseUint(parts[0], 10, 64)
	eid, err2 := strconv.ParseUint(parts[1], 10, 64)
	ns, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		return ReferenceClaims{}, err
	}
	return ReferenceClaims{TicketID: tid, EventID: eid, CreatedAt: time.Unix(0, ns).UTC()}, nil
}

type fakeRefunds struct {
	mu        sync.Mutex
	scheduled []uint64
}

func (f *fakeRefunds) ScheduleRefundRetry(_ context.Context, ticketID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, ticketID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.DomainEvent
}

func (f *fakePublisher) Publish(_ context.Context, ev queue.DomainEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeSeats struct {
	mu       sync.Mutex
	released []uint64
}

func (f *fakeSeats) ReleaseUser(_ context.Context, _, userID, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, userID)
	return nil
}
