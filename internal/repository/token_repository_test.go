package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwcs/warwickgg/internal/datastore"
)

func newMockTokens(t *testing.T) (*TokenRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewTokenRepo(db), mock
}

func TestValidateRefresh(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	cols := []string{"user_id", "expires_at", "revoked_at"}
	tests := []struct {
		name string
		rows *sqlmock.Rows
		want uint64
		err  error
	}{
		{"live", sqlmock.NewRows(cols).AddRow(1, now.Add(time.Hour), nil), 1, nil},
		{"expired", sqlmock.NewRows(cols).AddRow(1, now.Add(-time.Second), nil), 0, datastore.ErrNotFound},
		{"revoked", sqlmock.NewRows(cols).AddRow(1, now.Add(time.Hour), now), 0, datastore.ErrNotFound},
		{"unknown", sqlmock.NewRows(cols), 0, datastore.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mock := newMockTokens(t)
			mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).WithArgs("h").WillReturnRows(tc.rows)

			uid, err := r.ValidateRefresh(context.Background(), "h", now)

			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, uid)
		})
	}
}

func TestRotate(t *testing.T) {
	revoke := q("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND user_id=?")
	insert := q("INSERT INTO refresh_tokens")

	t.Run("swaps tokens", func(t *testing.T) {
		r, mock := newMockTokens(t)
		mock.ExpectBegin()
		mock.ExpectExec(revoke).WithArgs("old", 1).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insert).WithArgs(1, "new", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		require.NoError(t, r.Rotate(context.Background(), 1, "old", "new", time.Now()))
	})

	t.Run("already rotated", func(t *testing.T) {
		r, mock := newMockTokens(t)
		mock.ExpectBegin()
		mock.ExpectExec(revoke).WithArgs("old", 1).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := r.Rotate(context.Background(), 1, "old", "new", time.Now())
		assert.ErrorIs(t, err, datastore.ErrNotFound)
	})
}
