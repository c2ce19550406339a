package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/uwcs/warwickgg/internal/datastore"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements datastore.Store on MySQL.  A Store returned by
// WithEventLock is bound to the open transaction; db is nil on it.
type Store struct {
	db *sql.DB
	q  querier
}

var _ datastore.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store { return &Store{db: db, q: db} }

// DB exposes the pool for callers outside the datastore contract (seed,
// auth).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithEventLock(ctx context.Context, eventID uint64, fn func(tx datastore.Store) error) error {
	return s.withRowLock(ctx, "SELECT id FROM events WHERE id=? FOR UPDATE", eventID, fn)
}

func (s *Store) WithTournamentLock(ctx context.Context, tournamentID uint64, fn func(tx datastore.Store) error) error {
	return s.withRowLock(ctx, "SELECT id FROM tournaments WHERE id=? FOR UPDATE", tournamentID, fn)
}

// withRowLock opens a transaction, takes an exclusive lock on one row and
// runs fn.  When s is already transactional the lock is taken inside the
// existing transaction.
func (s *Store) withRowLock(ctx context.Context, lockQuery string, id uint64, fn func(tx datastore.Store) error) error {
	if s.db == nil {
		if err := lockRow(ctx, s.q, lockQuery, id); err != nil {
			return err
		}
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := lockRow(ctx, tx, lockQuery, id); err != nil {
		return err
	}
	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func lockRow(ctx context.Context, q querier, lockQuery string, id uint64) error {
	var got uint64
	if err := q.QueryRowContext(ctx, lockQuery, id).Scan(&got); err != nil {
		return notFound(err)
	}
	return nil
}

// notFound maps sql.ErrNoRows to datastore.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return datastore.ErrNotFound
	}
	return err
}

// conflict maps duplicate-key errors to datastore.ErrConflict.
func conflict(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", datastore.ErrConflict, me.Message)
	}
	return err
}

// placeholders returns "?,?,...,?" with n marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func insertID(res sql.Result) (uint64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
