// Package payment talks to the card payment processor: it signs checkout
// references, creates checkout sessions, issues refunds and verifies the
// webhooks the processor sends back.
package payment

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uwcs/warwickgg/internal/service"
)

const referenceIssuer = "warwickgg/checkout"

// referenceClaims is the JWT body of a checkout reference.  CreatedAt is
// the ticket's creation time in Unix milliseconds.
type referenceClaims struct {
	TicketID  uint64 `json:"tid"`
	EventID   uint64 `json:"eid"`
	CreatedAt int64  `json:"cat"`
	jwt.RegisteredClaims
}

// ReferenceCodec signs checkout references as HS256 JWTs.  References do
// not expire; staleness is judged by the ticket's creation time.
type ReferenceCodec struct {
	Secret []byte
}

func NewReferenceCodec(secret string) ReferenceCodec {
	return ReferenceCodec{Secret: []byte(secret)}
}

// Encode signs c.
func (r ReferenceCodec) Encode(c service.ReferenceClaims) (string, error) {
	if len(r.Secret) == 0 {
		return "", errors.New("reference secret not configured")
	}
	claims := referenceClaims{
		TicketID:  c.TicketID,
		EventID:   c.EventID,
		CreatedAt: c.CreatedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  referenceIssuer,
			Subject: strconv.FormatUint(c.TicketID, 10),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.Secret)
}

// Decode verifies ref and returns its claims.  Any tampering, a foreign
// issuer or an unexpected signing method is an error.
func (r ReferenceCodec) Decode(ref string) (service.ReferenceClaims, error) {
	var claims referenceClaims
	_, err := jwt.ParseWithClaims(ref, &claims, func(*jwt.Token) (any, error) {
		return r.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(referenceIssuer))
	if err != nil {
		return service.ReferenceClaims{}, fmt.Errorf("parse reference: %w", err)
	}
	if claims.TicketID == 0 || claims.EventID == 0 {
		return service.ReferenceClaims{}, errors.New("reference is missing ticket or event")
	}
	return service.ReferenceClaims{
		TicketID:  claims.TicketID,
		EventID:   claims.EventID,
		CreatedAt: time.UnixMilli(claims.CreatedAt).UTC(),
	}, nil
}
