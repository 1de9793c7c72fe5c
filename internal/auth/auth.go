package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"alkemio.org/authz/internal/authorization"
)

const defaultIssuer = "alkemio-authz"

// Claims are the JWT claims presented by callers. Credentials carry the
// actor's held credentials.
type Claims struct {
	Credentials []authorization.CredentialDescriptor `json:"credentials"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 caller tokens.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens returns a signer/verifier for secret.
func NewTokens(secret string) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Tokens{secret: []byte(secret), issuer: defaultIssuer, now: time.Now}, nil
}

// GenerateToken signs a token for subject holding creds.
func (t *Tokens) GenerateToken(subject string, creds []authorization.CredentialDescriptor, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, ErrInvalidSubject
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	normalized, err := normalizeCredentials(creds)
	if err != nil {
		return "", time.Time{}, err
	}

	now := t.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Credentials: normalized,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAndValidate verifies the signature and required claims.
func (t *Tokens) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	normalized, err := normalizeCredentials(claims.Credentials)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims.Credentials = normalized
	return claims, nil
}

// Authenticate turns a bearer token into a principal.
func (t *Tokens) Authenticate(token string) (Principal, error) {
	claims, err := t.ParseAndValidate(token)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(claims.Subject, claims.Credentials), nil
}

func normalizeCredentials(creds []authorization.CredentialDescriptor) ([]authorization.CredentialDescriptor, error) {
	seen := make(map[authorization.CredentialDescriptor]struct{}, len(creds))
	out := make([]authorization.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		ct, err := authorization.ParseCredentialType(string(c.Type))
		if err != nil {
			return nil, err
		}
		n := authorization.CredentialDescriptor{Type: ct, ResourceID: strings.TrimSpace(c.ResourceID)}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to ctx.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Subject == "" {
		return "", false
	}
	return p.Subject, true
}
