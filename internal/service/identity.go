package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uwcs/warwickgg/internal/datastore"
	"github.com/uwcs/warwickgg/internal/model"
)

// FresherCohort returns the two-digit admission year prefix that marks a
// fresher at now, or "" during July and August when no cohort is
// current.  September to December belong to this calendar year's
// intake; January to June to last year's.
func FresherCohort(now time.Time) string {
	month := now.Month()
	switch {
	case month >= time.July && month <= time.August:
		return ""
	case month >= time.September:
		return fmt.Sprintf("%02d", now.Year()%100)
	default:
		return fmt.Sprintf("%02d", (now.Year()-1)%100)
	}
}

// IsFresher reports whether a university ID belongs to the current
// fresher cohort.  The comparison is a literal match on the first two
// characters of the ID.
func IsFresher(uniID string, now time.Time) bool {
	cohort := FresherCohort(now)
	if cohort == "" {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(uniID), cohort)
}

// Authority answers the one elevated-privilege question the services and
// middleware need.
type Authority interface {
	IsExec(ctx context.Context, userID uint64) (bool, error)
}

// ProfileAuthority reads the exec flag from the profile store on every
// call so that revoking exec takes effect without reissuing tokens.
type ProfileAuthority struct {
	Store datastore.Store
}

// IsExec reports whether the user is a member of the exec.  Unknown
// users are not exec.
func (a ProfileAuthority) IsExec(ctx context.Context, userID uint64) (bool, error) {
	p, err := a.Store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.IsExec, nil
}

// SignupStartFor resolves when signups open for a particular user.  The
// fresher start applies when the event defines one and the user is
// either exec or in the current fresher cohort.
func SignupStartFor(e model.Event, p model.Profile, now time.Time) time.Time {
	if e.SignupStartFresher == nil {
		return e.SignupStart
	}
	if p.IsExec || IsFresher(p.UniID, now) {
		return *e.SignupStartFresher
	}
	return e.SignupStart
}

// SignupsOpenFor reports whether now is within
// [SignupStartFor(e, p), e.SignupEnd).
func SignupsOpenFor(e model.Event, p model.Profile, now time.Time) bool {
	start := SignupStartFor(e, p, now)
	return !now.Before(start) && now.Before(e.SignupEnd)
}
