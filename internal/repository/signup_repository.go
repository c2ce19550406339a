package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/uwcs/warwickgg/internal/model"
)

// signupSelect joins each signup to its ticket.  validSignup restricts
// it to active signups that are free or fully paid.
const (
	signupSelect = `SELECT s.id, s.event_id, s.user_id, s.comment, s.commented_at, s.photography_consent,
		s.ticket_id, s.created_at, s.is_unsigned_up, s.unsigned_up_at,
		t.status, t.charge_id, t.amount_pence, t.created_at, t.updated_at
	FROM event_signups s LEFT JOIN tickets t ON t.id = s.ticket_id`
	validSignup = `s.is_unsigned_up = 0 AND (s.ticket_id IS NULL OR t.status = 'COMPLETE')`
)

func scanSignup(r rowScanner) (model.EventSignup, error) {
	var (
		su           model.EventSignup
		commentedAt  sql.NullTime
		ticketID     sql.NullInt64
		unsigned     bool
		unsignedAt   sql.NullTime
		status       sql.NullString
		chargeID     sql.NullString
		amount       sql.NullInt64
		ticketCreate sql.NullTime
		ticketUpdate sql.NullTime
	)
	err := r.Scan(&su.ID, &su.EventID, &su.UserID, &su.Comment, &commentedAt, &su.PhotographyConsent,
		&ticketID, &su.CreatedAt, &unsigned, &unsignedAt,
		&status, &chargeID, &amount, &ticketCreate, &ticketUpdate)
	if err != nil {
		return su, err
	}
	if commentedAt.Valid {
		t := commentedAt.Time
		su.CommentedAt = &t
	}
	if unsigned {
		su.Cancelled = &model.Cancellation{At: unsignedAt.Time}
	}
	if ticketID.Valid {
		id := uint64(ticketID.Int64)
		su.TicketID = &id
		if status.Valid {
			su.Ticket = &model.Ticket{
				ID:                 id,
				EventID:            su.EventID,
				UserID:             su.UserID,
				Status:             model.TicketStatus(status.String),
				AmountPence:        amount.Int64,
				Comment:            su.Comment,
				PhotographyConsent: su.PhotographyConsent,
				CreatedAt:          ticketCreate.Time,
				UpdatedAt:          ticketUpdate.Time,
			}
			if chargeID.Valid {
				c := chargeID.String
				su.Ticket.ChargeID = &c
			}
		}
	}
	return su, nil
}

func (s *Store) FindValidSignup(ctx context.Context, eventID, userID uint64) (*model.EventSignup, error) {
	su, err := scanSignup(s.q.QueryRowContext(ctx,
		signupSelect+" WHERE s.event_id=? AND s.user_id=? AND "+validSignup+" ORDER BY s.id DESC LIMIT 1",
		eventID, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return &su, nil
}

func (s *Store) CountValidSignups(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_signups s LEFT JOIN tickets t ON t.id = s.ticket_id WHERE s.event_id=? AND "+validSignup,
		eventID).Scan(&n)
	return n, err
}

func (s *Store) ListValidSignups(ctx context.Context, eventID uint64) ([]model.EventSignup, error) {
	return s.listSignups(ctx, signupSelect+" WHERE s.event_id=? AND "+validSignup+" ORDER BY s.created_at, s.id", eventID)
}

func (s *Store) ListCommentedSignups(ctx context.Context, eventID uint64) ([]model.EventSignup, error) {
	return s.listSignups(ctx,
		signupSelect+" WHERE s.event_id=? AND "+validSignup+" AND s.commented_at IS NOT NULL ORDER BY s.commented_at, s.id", eventID)
}

func (s *Store) listSignups(ctx context.Context, query string, args ...any) ([]model.EventSignup, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EventSignup
	for rows.Next() {
		su, err := scanSignup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, su)
	}
	return out, rows.Err()
}

func (s *Store) FindSignupByTicket(ctx context.Context, ticketID uint64) (*model.EventSignup, error) {
	su, err := scanSignup(s.q.QueryRowContext(ctx, signupSelect+" WHERE s.ticket_id=?", ticketID))
	if err != nil {
		return nil, notFound(err)
	}
	return &su, nil
}

// InsertSignup stores a new active signup and sets su.ID.  A second
// active signup for the same user and event, or a second signup for the
// same ticket, is datastore.ErrConflict.
func (s *Store) InsertSignup(ctx context.Context, su *model.EventSignup) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO event_signups (event_id, user_id, comment, commented_at, photography_consent, ticket_id, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		su.EventID, su.UserID, su.Comment, nullTime(su.CommentedAt), su.PhotographyConsent,
		nullID(su.TicketID), su.CreatedAt.UTC())
	if err != nil {
		return conflict(err)
	}
	su.ID, err = insertID(res)
	return err
}

func (s *Store) MarkSignupCancelled(ctx context.Context, signupID uint64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE event_signups SET is_unsigned_up=1, unsigned_up_at=? WHERE id=? AND is_unsigned_up=0",
		at.UTC(), signupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows)
	}
	return nil
}

func (s *Store) FindActiveTournamentSignup(ctx context.Context, tournamentID, userID uint64) (*model.TournamentSignup, error) {
	var (
		su          model.TournamentSignup
		commentedAt sql.NullTime
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, tournament_id, user_id, comment, commented_at, created_at
		 FROM tournament_signups WHERE tournament_id=? AND user_id=? AND is_unsigned_up=0 LIMIT 1`,
		tournamentID, userID).Scan(&su.ID, &su.TournamentID, &su.UserID, &su.Comment, &commentedAt, &su.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if commentedAt.Valid {
		t := commentedAt.Time
		su.CommentedAt = &t
	}
	return &su, nil
}

func (s *Store) CountActiveTournamentSignups(ctx context.Context, tournamentID uint64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tournament_signups WHERE tournament_id=? AND is_unsigned_up=0", tournamentID).Scan(&n)
	return n, err
}

func (s *Store) InsertTournamentSignup(ctx context.Context, su *model.TournamentSignup) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO tournament_signups (tournament_id, user_id, comment, commented_at, created_at) VALUES (?,?,?,?,?)",
		su.TournamentID, su.UserID, su.Comment, nullTime(su.CommentedAt), su.CreatedAt.UTC())
	if err != nil {
		return conflict(err)
	}
	su.ID, err = insertID(res)
	return err
}

func (s *Store) MarkTournamentSignupCancelled(ctx context.Context, signupID uint64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE tournament_signups SET is_unsigned_up=1, unsigned_up_at=? WHERE id=? AND is_unsigned_up=0",
		at.UTC(), signupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows)
	}
	return nil
}
