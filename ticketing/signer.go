package ticketing

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const issuer = "cinema-booking"

var ErrInvalidCode = errors.New("ticket code is invalid or tampered")

// Payload is everything a door scanner needs to admit one seat.
type Payload struct {
	TicketCode string
	BookingID  uint
	CustomerID uint
	SessionID  uint
	Seat       string
	IssuedAt   time.Time
}

type ticketClaims struct {
	TicketCode string `json:"tid"`
	BookingID  uint   `json:"bid"`
	CustomerID uint   `json:"uid"`
	SessionID  uint   `json:"sid"`
	Seat       string `json:"seat"`
	jwt.RegisteredClaims
}

// Signer produces and checks HS256-signed ticket codes. The signing key is derived from
// the configured secret so it never doubles as the login token key.
type Signer struct {
	key []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("ticket secret is empty")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("cinema-booking/ticket-qr/v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive ticket key: %w", err)
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Sign(p Payload) (string, error) {
	claims := ticketClaims{
		TicketCode: p.TicketCode,
		BookingID:  p.BookingID,
		CustomerID: p.CustomerID,
		SessionID:  p.SessionID,
		Seat:       p.Seat,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       p.TicketCode,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(p.IssuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Signer) Verify(code string) (*Payload, error) {
	var claims ticketClaims
	token, err := jwt.ParseWithClaims(code, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidCode
	}
	if claims.TicketCode == "" || claims.TicketCode != claims.ID {
		return nil, ErrInvalidCode
	}
	p := &Payload{
		TicketCode: claims.TicketCode,
		BookingID:  claims.BookingID,
		CustomerID: claims.CustomerID,
		SessionID:  claims.SessionID,
		Seat:       claims.Seat,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}
