package model

import (
	"strings"
	"time"
)

// Profile represents a member of the site as stored in the `users`
// table. It joins the login identity with the society-specific profile
// fields (university ID, nickname) that signups and seating display.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	UniID        – university ID; its first two digits encode the admission year.
//	Nickname     – optional display name.
//	FirstName    – given name.
//	LastName     – family name.
//	AvatarURL    – reference to an externally rendered avatar.
//	IsExec       – whether the user belongs to the society exec.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type Profile struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	UniID        string    // users.uni_id
	Nickname     string    // users.nickname
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	AvatarURL    string    // users.avatar_url
	IsExec       bool      // users.is_exec
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// LongName returns the nickname when one is set, otherwise the full name.
func (p Profile) LongName() string {
	if n := strings.TrimSpace(p.Nickname); n != "" {
		return n
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Role returns the role claim issued in access tokens.
func (p Profile) Role() string {
	if p.IsExec {
		return RoleExec
	}
	return RoleMember
}

const (
	RoleMember = "MEMBER"
	RoleExec   = "EXEC"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
