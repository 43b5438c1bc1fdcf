package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultIssuer     = "akademia"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// ErrInvalidToken indicates a token failed signature or claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued by the core. TokenVersion carries the
// user's session generation at signing time; for refresh tokens the
// registered ID (jti) is the chain record key in the session store.
type Claims struct {
	TokenVersion int    `json:"token_version"`
	TokenType    string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies the access/refresh token pair using HS256.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenIssuerOption configures TokenIssuer behavior.
type TokenIssuerOption func(*TokenIssuer)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if strings.TrimSpace(issuer) != "" {
			ti.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithAccessTokenTTL configures access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if ttl > 0 {
			ti.accessTTL = ttl
		}
	}
}

// WithRefreshTokenTTL configures refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if ttl > 0 {
			ti.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if fn != nil {
			ti.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer with the given signing secret.
func NewTokenIssuer(secret string, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	ti := &TokenIssuer{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// RefreshTTL returns the configured refresh token lifetime.
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.refreshTTL }

// AccessTTL returns the configured access token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// SignAccess issues a short-lived access token for the user, embedding the
// user's current token version.
func (ti *TokenIssuer) SignAccess(user *User) (string, time.Time, error) {
	return ti.sign(user, tokenTypeAccess, uuid.NewString(), ti.accessTTL)
}

// SignRefresh issues a refresh token whose jti equals the chain record id.
func (ti *TokenIssuer) SignRefresh(user *User, jti string) (string, time.Time, error) {
	if strings.TrimSpace(jti) == "" {
		return "", time.Time{}, errors.New("refresh jti is required")
	}
	return ti.sign(user, tokenTypeRefresh, jti, ti.refreshTTL)
}

// NewChainID returns a fresh opaque refresh chain identifier. A random UUID
// carries 122 bits of entropy, which meets the unguessability requirement for
// refresh-token record keys.
func NewChainID() string { return uuid.NewString() }

func (ti *TokenIssuer) sign(user *User, typ, jti string, ttl time.Duration) (string, time.Time, error) {
	now := ti.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		TokenVersion: user.TokenVersion,
		TokenType:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token and returns its claims.
func (ti *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return ti.verify(token, tokenTypeAccess)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (ti *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return ti.verify(token, tokenTypeRefresh)
}

func (ti *TokenIssuer) verify(token, wantType string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return ti.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := ti.validateClaims(claims, wantType); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (ti *TokenIssuer) validateClaims(claims *Claims, wantType string) error {
	if claims.Issuer != ti.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.TokenType != wantType {
		return fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("jti missing")
	}
	now := ti.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
