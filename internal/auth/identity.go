package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth/jwt"
	httperrors "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/errors"
)

// Ambient guest session locations.
const (
	GuestSessionHeader = "X-Guest-Session-Id"
	GuestSessionCookie = "guestSessionId"
)

// Identity is the caller of a request as seen by the adapter. Credential is
// the raw bearer token forwarded to the backend.
type Identity struct {
	Credential     string
	UserID         string
	DisplayName    string
	IsGuest        bool
	GuestSessionID string
}

// Authenticated reports whether a bearer token was supplied.
func (i Identity) Authenticated() bool {
	return i.Credential != ""
}

// Key identifies the owner of session checkpoints. Registered users key on
// their id, guests on their guest session. Empty when neither is known.
func (i Identity) Key() string {
	switch {
	case i.UserID != "" && !i.IsGuest:
		return "user:" + i.UserID
	case i.GuestSessionID != "":
		return "guest:" + i.GuestSessionID
	case i.UserID != "":
		return "user:" + i.UserID
	default:
		return ""
	}
}

// ParseBearer extracts the token of a "Bearer <token>" header.
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var errMalformedHeader = errors.New("malformed authorization header")

// Resolver builds identities from requests.
type Resolver struct {
	parser *jwt.Parser
}

// NewResolver creates a resolver backed by the given token parser.
func NewResolver(parser *jwt.Parser) *Resolver {
	return &Resolver{parser: parser}
}

// Resolve reads the bearer token and the ambient guest session of r. A
// request without an Authorization header yields an anonymous identity.
func (res *Resolver) Resolve(r *http.Request) (Identity, error) {
	id := Identity{GuestSessionID: ambientGuestSession(r)}

	header := r.Header.Get("Authorization")
	if header == "" {
		return id, nil
	}
	token, ok := ParseBearer(header)
	if !ok {
		return Identity{}, errMalformedHeader
	}
	claims, err := res.parser.Parse(token)
	if err != nil {
		return Identity{}, err
	}

	id.Credential = token
	id.UserID = claims.Principal()
	id.DisplayName = claims.DisplayName
	id.IsGuest = claims.IsGuest
	if claims.GuestSessionID != "" && id.GuestSessionID == "" {
		id.GuestSessionID = claims.GuestSessionID
	}
	return id, nil
}

func ambientGuestSession(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(GuestSessionHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(GuestSessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// Middleware resolves the caller identity and injects it into the request
// context. Unauthenticated requests pass through; bad tokens are rejected.
func Middleware(res *Resolver, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := res.Resolve(r)
			if err != nil {
				logger.Warn().Err(err).Msg("token validation failed")
				code := httperrors.ErrCodeInvalidToken
				if errors.Is(err, jwt.ErrExpiredToken) {
					code = httperrors.ErrCodeTokenExpired
				}
				httperrors.RespondUnauthorized(w, code, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth ensures the request carries a bearer token.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
