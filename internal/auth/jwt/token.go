package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by bearer tokens issued for quiz takers.
type Claims struct {
	UserID         string `json:"user_id,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	IsGuest        bool   `json:"is_guest,omitempty"`
	GuestSessionID string `json:"guest_session_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the user id, falling back to the registered subject.
func (c *Claims) Principal() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Parser reads bearer tokens. With a secret the HMAC signature is verified;
// without one the backend stays the authority and only the claims are read.
type Parser struct {
	secret []byte
	now    func() time.Time
}

// NewParser creates a token parser. An empty secret disables verification.
func NewParser(secret []byte) *Parser {
	return &Parser{secret: secret, now: time.Now}
}

// Verifies reports whether signatures are checked.
func (p *Parser) Verifies() bool {
	return len(p.secret) > 0
}

// Parse extracts the claims of a token.
func (p *Parser) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(p.now)}

	if !p.Verifies() {
		if _, _, err := jwt.NewParser(opts...).ParseUnverified(tokenString, claims); err != nil {
			return nil, ErrInvalidToken
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !p.now().Before(exp.Time) {
			return nil, ErrExpiredToken
		}
		return claims, nil
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
