package repository

import (
	"context"

	"github.com/uwcs/warwickgg/internal/model"
)

const revisionColumns = "id, event_id, number, creator_id, created_at"

func scanRevision(r rowScanner) (model.SeatingRevision, error) {
	var rev model.SeatingRevision
	err := r.Scan(&rev.ID, &rev.EventID, &rev.Number, &rev.CreatorID, &rev.CreatedAt)
	return rev, err
}

func (s *Store) LatestRevision(ctx context.Context, eventID uint64) (*model.SeatingRevision, error) {
	rev, err := scanRevision(s.q.QueryRowContext(ctx,
		"SELECT "+revisionColumns+" FROM seating_revisions WHERE event_id=? ORDER BY number DESC LIMIT 1", eventID))
	if err != nil {
		return nil, notFound(err)
	}
	return &rev, nil
}

func (s *Store) GetRevision(ctx context.Context, eventID uint64, number int) (*model.SeatingRevision, error) {
	rev, err := scanRevision(s.q.QueryRowContext(ctx,
		"SELECT "+revisionColumns+" FROM seating_revisions WHERE event_id=? AND number=?", eventID, number))
	if err != nil {
		return nil, notFound(err)
	}
	return &rev, nil
}

func (s *Store) ListRevisions(ctx context.Context, eventID uint64) ([]model.SeatingRevision, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+revisionColumns+" FROM seating_revisions WHERE event_id=? ORDER BY number DESC", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatingRevision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// InsertRevision stores a revision header and sets rev.ID.  A duplicate
// (event, number) pair is datastore.ErrConflict.
func (s *Store) InsertRevision(ctx context.Context, rev *model.SeatingRevision) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO seating_revisions (event_id, number, creator_id, created_at) VALUES (?,?,?,?)",
		rev.EventID, rev.Number, rev.CreatorID, rev.CreatedAt.UTC())
	if err != nil {
		return conflict(err)
	}
	rev.ID, err = insertID(res)
	return err
}

// InsertSeatings writes all seats of a revision in one statement.
func (s *Store) InsertSeatings(ctx context.Context, seats []model.Seating) error {
	if len(seats) == 0 {
		return nil
	}
	query := "INSERT INTO seatings (revision_id, user_id, seat_id, reserved) VALUES "
	args := make([]any, 0, len(seats)*4)
	for i, seat := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, seat.RevisionID, seat.UserID, seat.SeatID, seat.Reserved)
	}
	_, err := s.q.ExecContext(ctx, query, args...)
	return conflict(err)
}

func (s *Store) ListSeatings(ctx context.Context, revisionID uint64) ([]model.Seating, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, revision_id, user_id, seat_id, reserved FROM seatings WHERE revision_id=? ORDER BY id", revisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seating
	for rows.Next() {
		var seat model.Seating
		if err := rows.Scan(&seat.ID, &seat.RevisionID, &seat.UserID, &seat.SeatID, &seat.Reserved); err != nil {
			return nil, err
		}
		out = append(out, seat)
	}
	return out, rows.Err()
}
