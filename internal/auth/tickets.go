package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidTicket = errors.New("invalid ticket")

// Ticket grants read access to one session's live feed.
type Ticket struct {
	UserID    uuid.UUID
	SessionID string
	ExpiresAt time.Time
}

// Tickets issues and validates HS256 live-feed tickets.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTickets(secret string, ttl time.Duration) *Tickets {
	return &Tickets{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *Tickets) Issue(userID uuid.UUID, sessionID string) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"sid": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

func (t *Tickets) Validate(tokenString string) (Ticket, error) {
	token, err := jwt.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Ticket{}, ErrInvalidTicket
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: bad subject", ErrInvalidTicket)
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return Ticket{}, fmt.Errorf("%w: missing session", ErrInvalidTicket)
	}

	var expires time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expires = exp.Time
	}
	return Ticket{UserID: userID, SessionID: sid, ExpiresAt: expires}, nil
}
