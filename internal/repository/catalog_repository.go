package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/uwcs/warwickgg/internal/model"
)

const eventColumns = `id, slug, title, description, location, starts_at, ends_at, signup_start, signup_end,
	signup_start_fresher, signup_limit, hosted_by, cost_member, cost_non_member, seating_room_id,
	seating_lock_at, has_photography, has_livestream, created_at, updated_at`

func scanEvent(r rowScanner) (model.Event, error) {
	var (
		e        model.Event
		fresher  sql.NullTime
		lockAt   sql.NullTime
		roomID   sql.NullInt64
		hostedBy string
	)
	err := r.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.Location, &e.Start, &e.End,
		&e.SignupStart, &e.SignupEnd, &fresher, &e.SignupLimit, &hostedBy, &e.CostMember,
		&e.CostNonMember, &roomID, &lockAt, &e.HasPhotography, &e.HasLivestream, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	if fresher.Valid {
		t := fresher.Time
		e.SignupStartFresher = &t
	}
	if lockAt.Valid {
		t := lockAt.Time
		e.SeatingLockAt = &t
	}
	if roomID.Valid {
		id := uint64(roomID.Int64)
		e.SeatingRoomID = &id
	}
	e.HostedBy = splitSocieties(hostedBy)
	return e, nil
}

// hosted_by is stored as a comma separated list of society codes.
func splitSocieties(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := scanEvent(s.q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id=?", id))
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	e, err := scanEvent(s.q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE slug=?", slug))
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// ListUpcomingEvents returns events that have not ended by now, soonest
// first.
func (s *Store) ListUpcomingEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE ends_at >= ? ORDER BY starts_at, id", now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetSeatingRoom(ctx context.Context, id uint64) (*model.SeatingRoom, error) {
	var (
		room   model.SeatingRoom
		tables []byte
	)
	err := s.q.QueryRowContext(ctx, "SELECT id, name, tables_json, created_at FROM seating_rooms WHERE id=?", id).
		Scan(&room.ID, &room.Name, &tables, &room.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(tables, &room.Tables); err != nil {
		return nil, err
	}
	return &room, nil
}

const tournamentColumns = `id, slug, title, description, platform, event_id, requires_attendance,
	starts_at, ends_at, signup_start, signup_end, signup_limit, created_at`

func scanTournament(r rowScanner) (model.Tournament, error) {
	var (
		t       model.Tournament
		eventID sql.NullInt64
	)
	err := r.Scan(&t.ID, &t.Slug, &t.Title, &t.Description, &t.Platform, &eventID, &t.RequiresAttendance,
		&t.Start, &t.End, &t.SignupStart, &t.SignupEnd, &t.SignupLimit, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if eventID.Valid {
		id := uint64(eventID.Int64)
		t.EventID = &id
	}
	return t, nil
}

func (s *Store) GetTournament(ctx context.Context, id uint64) (*model.Tournament, error) {
	t, err := scanTournament(s.q.QueryRowContext(ctx, "SELECT "+tournamentColumns+" FROM tournaments WHERE id=?", id))
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) ListTournamentsForEvent(ctx context.Context, eventID uint64) ([]model.Tournament, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+tournamentColumns+" FROM tournaments WHERE event_id=? ORDER BY starts_at, id", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertSeatingRoom inserts or updates a room by name and sets room.ID.
func (s *Store) UpsertSeatingRoom(ctx context.Context, room *model.SeatingRoom) error {
	tables, err := json.Marshal(room.Tables)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO seating_rooms (name, tables_json) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id), tables_json=VALUES(tables_json)`,
		room.Name, tables)
	if err != nil {
		return err
	}
	room.ID, err = insertID(res)
	return err
}

// UpsertEvent inserts or updates an event by slug and sets e.ID.
func (s *Store) UpsertEvent(ctx context.Context, e *model.Event) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO events (slug, title, description, location, starts_at, ends_at, signup_start, signup_end,
			signup_start_fresher, signup_limit, hosted_by, cost_member, cost_non_member, seating_room_id,
			seating_lock_at, has_photography, has_livestream)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id), title=VALUES(title), description=VALUES(description),
			location=VALUES(location), starts_at=VALUES(starts_at), ends_at=VALUES(ends_at),
			signup_start=VALUES(signup_start), signup_end=VALUES(signup_end),
			signup_start_fresher=VALUES(signup_start_fresher), signup_limit=VALUES(signup_limit),
			hosted_by=VALUES(hosted_by), cost_member=VALUES(cost_member), cost_non_member=VALUES(cost_non_member),
			seating_room_id=VALUES(seating_room_id), seating_lock_at=VALUES(seating_lock_at),
			has_photography=VALUES(has_photography), has_livestream=VALUES(has_livestream)`,
		e.Slug, e.Title, e.Description, e.Location, e.Start.UTC(), e.End.UTC(), e.SignupStart.UTC(), e.SignupEnd.UTC(),
		nullTime(e.SignupStartFresher), e.SignupLimit, strings.Join(e.HostedBy, ","), e.CostMember, e.CostNonMember,
		nullID(e.SeatingRoomID), nullTime(e.SeatingLockAt), e.HasPhotography, e.HasLivestream)
	if err != nil {
		return err
	}
	e.ID, err = insertID(res)
	return err
}

// UpsertTournament inserts or updates a tournament by slug and sets t.ID.
func (s *Store) UpsertTournament(ctx context.Context, t *model.Tournament) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO tournaments (slug, title, description, platform, event_id, requires_attendance,
			starts_at, ends_at, signup_start, signup_end, signup_limit)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id), title=VALUES(title), description=VALUES(description),
			platform=VALUES(platform), event_id=VALUES(event_id), requires_attendance=VALUES(requires_attendance),
			starts_at=VALUES(starts_at), ends_at=VALUES(ends_at), signup_start=VALUES(signup_start),
			signup_end=VALUES(signup_end), signup_limit=VALUES(signup_limit)`,
		t.Slug, t.Title, t.Description, t.Platform, nullID(t.EventID), t.RequiresAttendance,
		t.Start.UTC(), t.End.UTC(), t.SignupStart.UTC(), t.SignupEnd.UTC(), t.SignupLimit)
	if err != nil {
		return err
	}
	t.ID, err = insertID(res)
	return err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
