package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uwcs/warwickgg/internal/datastore"
	"github.com/uwcs/warwickgg/internal/model"
)

var (
	ErrEmailExists = errors.New("email already exists")
	ErrUniIDExists = errors.New("university id already registered")
)

const profileColumns = "id,email,password_hash,COALESCE(uni_id,''),nickname,first_name,last_name,avatar_url,is_exec,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (model.Profile, error) {
	var p model.Profile
	err := r.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.UniID, &p.Nickname, &p.FirstName, &p.LastName,
		&p.AvatarURL, &p.IsExec, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProfile inserts a user.  PasswordHash must already be hashed.
// Emails are stored lower-cased; an empty uni_id is stored as NULL so it
// does not collide with other unverified accounts.
func (s *Store) CreateProfile(ctx context.Context, p *model.Profile) error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.UniID = strings.TrimSpace(p.UniID)
	var uniID any
	if p.UniID != "" {
		uniID = p.UniID
	}
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, uni_id, nickname, first_name, last_name, avatar_url, is_exec) VALUES (?,?,?,?,?,?,?,?)",
		p.Email, p.PasswordHash, uniID, p.Nickname, p.FirstName, p.LastName, p.AvatarURL, p.IsExec)
	if err != nil {
		if errors.Is(conflict(err), datastore.ErrConflict) {
			if strings.Contains(err.Error(), "uq_users_uni_id") {
				return ErrUniIDExists
			}
			return ErrEmailExists
		}
		return err
	}
	p.ID, err = insertID(res)
	return err
}

// GetProfileByEmail fetches a user by normalized email.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := scanProfile(s.q.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE email=? LIMIT 1", email))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetProfile fetches a user by id.
func (s *Store) GetProfile(ctx context.Context, id uint64) (*model.Profile, error) {
	p, err := scanProfile(s.q.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE id=? LIMIT 1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListProfiles fetches the given users keyed by id.  Unknown ids are
// absent from the result.
func (s *Store) ListProfiles(ctx context.Context, ids []uint64) (map[uint64]model.Profile, error) {
	out := make(map[uint64]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// SetExec grants or revokes exec membership.
func (s *Store) SetExec(ctx context.Context, userID uint64, exec bool) error {
	res, err := s.q.ExecContext(ctx, "UPDATE users SET is_exec=? WHERE id=?", exec, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows)
	}
	return nil
}
