package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Domain errors
var (
	ErrSessionMissing = errors.New("session missing")
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session invalid")
)

// Identity is the authenticated user behind a session token
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	// Token is the raw bearer token, forwarded on calls to sibling services.
	Token string
}

// IsExpired checks if the session has expired
func (i *Identity) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Claims are the identity provider's access token claims
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates session tokens issued by the identity provider.
// Only HS256 with a shared secret is accepted.
type Verifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

// NewVerifier creates a verifier. An empty audience disables the audience check.
func NewVerifier(secret, audience string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		parser:   jwt.NewParser(opts...),
	}
}

// Verify parses and validates a token and returns its identity.
func (v *Verifier) Verify(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionMissing
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrSessionInvalid)
	}

	id := &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Token:  token,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Sign issues a token for the identity. Used by operator tooling and tests;
// production tokens come from the identity provider.
func (v *Verifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// FromAuthorizationHeader extracts a bearer token.
func FromAuthorizationHeader(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying the identity.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by NewContext, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
