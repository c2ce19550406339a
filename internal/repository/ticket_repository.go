package repository

import (
	"context"
	"database/sql"

	"github.com/uwcs/warwickgg/internal/model"
)

const ticketColumns = "id, event_id, user_id, status, charge_id, amount_pence, comment, photography_consent, created_at, updated_at"

func scanTicket(r rowScanner) (model.Ticket, error) {
	var (
		t        model.Ticket
		chargeID sql.NullString
	)
	err := r.Scan(&t.ID, &t.EventID, &t.UserID, &t.Status, &chargeID, &t.AmountPence, &t.Comment,
		&t.PhotographyConsent, &t.CreatedAt, &t.UpdatedAt)
	if chargeID.Valid {
		c := chargeID.String
		t.ChargeID = &c
	}
	return t, err
}

// InsertTicket stores a new ticket and sets t.ID.
func (s *Store) InsertTicket(ctx context.Context, t *model.Ticket) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO tickets (event_id, user_id, status, charge_id, amount_pence, comment, photography_consent, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		t.EventID, t.UserID, t.Status, nullString(t.ChargeID), t.AmountPence, t.Comment,
		t.PhotographyConsent, t.CreatedAt.UTC())
	if err != nil {
		return conflict(err)
	}
	t.ID, err = insertID(res)
	return err
}

func (s *Store) GetTicket(ctx context.Context, id uint64) (*model.Ticket, error) {
	t, err := scanTicket(s.q.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id=?", id))
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) GetTicketByCharge(ctx context.Context, chargeID string) (*model.Ticket, error) {
	t, err := scanTicket(s.q.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE charge_id=?", chargeID))
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// UpdateTicket sets the status and, when chargeID is non-nil, the charge.
// A nil chargeID keeps the recorded one.
func (s *Store) UpdateTicket(ctx context.Context, id uint64, status model.TicketStatus, chargeID *string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE tickets SET status=?, charge_id=COALESCE(?, charge_id) WHERE id=?",
		status, nullString(chargeID), id)
	if err != nil {
		return conflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 when the row already holds these values.
		var exists int
		if err := s.q.QueryRowContext(ctx, "SELECT 1 FROM tickets WHERE id=?", id).Scan(&exists); err != nil {
			return notFound(err)
		}
	}
	return nil
}
