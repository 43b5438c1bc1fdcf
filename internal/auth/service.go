package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AlertFunc receives security events that must be surfaced for alerting, such
// as refresh-token reuse detection. It must not block.
type AlertFunc func(ctx context.Context, event string, fields map[string]any)

// Service implements the session lifecycle: login, refresh-token rotation
// with reuse detection, logout and global session invalidation.
type Service struct {
	store  Store
	tokens *TokenIssuer
	now    func() time.Time
	alert  AlertFunc
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAlertFunc installs the security-event sink. Without one, reuse
// detection still tears sessions down but emits nothing.
func WithAlertFunc(fn AlertFunc) ServiceOption {
	return func(s *Service) { s.alert = fn }
}

// NewService constructs the session service.
func NewService(store Store, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenPair carries a freshly issued access/refresh pair and the user they
// were issued to.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             *User
}

// Login verifies credentials and opens a new rotation chain. Every failure
// mode, including a disabled account, reports ErrUnauthenticated so the
// response does not reveal which check rejected the attempt.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthenticated
		}
		return TokenPair{}, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return TokenPair{}, ErrUnauthenticated
	}
	if !user.IsActive {
		return TokenPair{}, ErrUnauthenticated
	}
	return s.issuePair(ctx, user, nil)
}

// Refresh rotates a refresh token. Presenting an already-revoked token is
// treated as theft or an indistinguishable client race: every live session
// for the owner is torn down and the token version bumped before the failure
// is returned.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrUnauthenticated
	}

	sessions := s.store.RefreshTokens(ctx)
	record, err := sessions.Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Forged or pruned token; indistinguishable from expired on purpose.
			return TokenPair{}, ErrUnauthenticated
		}
		return TokenPair{}, err
	}

	if record.Revoked {
		return TokenPair{}, s.teardownOnReuse(ctx, record.UserID)
	}
	if record.ExpiresAt.Before(s.now()) {
		// Plain expiry is not a theft signal; no cascading revoke.
		return TokenPair{}, ErrUnauthenticated
	}

	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthenticated
		}
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrAccountDisabled
	}
	if user.TokenVersion != claims.TokenVersion {
		// Signed under a generation invalidated by logout-all or a prior
		// reuse event.
		return TokenPair{}, ErrUnauthenticated
	}

	pair, err := s.issuePair(ctx, user, &record.ID)
	if errors.Is(err, ErrConflict) {
		// A concurrent rotation revoked the record first; the loser of the
		// race is handled exactly like reuse.
		return TokenPair{}, s.teardownOnReuse(ctx, record.UserID)
	}
	return pair, err
}

// Logout revokes one refresh token. Possession of a validly signed token is
// the ownership proof: the revoke is conditioned on the subject signed into
// the token itself, so a caller cannot touch another user's session by
// guessing record ids. Invalid, missing and already-revoked tokens are a
// silent no-op, making logout idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	_, err = s.store.RefreshTokens(ctx).Revoke(ctx, claims.ID, claims.Subject)
	return err
}

// LogoutAll revokes every live refresh token for the user and bumps the token
// version in one atomic unit, invalidating outstanding access tokens as well.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidInput
	}
	revoked, _, err := s.store.RefreshTokens(ctx).RevokeAllAndBump(ctx, userID)
	return revoked, err
}

// Authenticate validates an access token for a protected request. The claim's
// token version is compared against the live value so logout-all takes effect
// before the access token naturally expires.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if !user.IsActive {
		return Principal{}, ErrAccountDisabled
	}
	if user.TokenVersion != claims.TokenVersion {
		return Principal{}, ErrUnauthenticated
	}
	role, err := s.store.Roles(ctx).Find(ctx, user.RoleID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Principal{}, err
	}
	principal := Principal{User: user}
	if role != nil {
		principal.RoleName = role.Name
	}
	return principal, nil
}

// PruneExpired deletes refresh-token records past their expiry. Expired
// records are already unusable, so this is maintenance, not correctness;
// callers log failures and never propagate them to unrelated requests.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	return s.store.RefreshTokens(ctx).DeleteExpired(ctx, s.now())
}

func (s *Service) issuePair(ctx context.Context, user *User, rotateFrom *string) (TokenPair, error) {
	now := s.now()
	next := &RefreshToken{
		ID:        NewChainID(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
	}

	sessions := s.store.RefreshTokens(ctx)
	if rotateFrom != nil {
		if err := sessions.Rotate(ctx, *rotateFrom, next); err != nil {
			return TokenPair{}, err
		}
	} else {
		if err := sessions.Create(ctx, next); err != nil {
			return TokenPair{}, err
		}
	}

	accessToken, accessExp, err := s.tokens.SignAccess(user)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, refreshExp, err := s.tokens.SignRefresh(user, next.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, nil
}

// teardownOnReuse is the security response for a replayed refresh token: all
// live tokens revoked and the version bumped in one transaction. The response
// must complete (or roll back entirely) before the failure is returned.
func (s *Service) teardownOnReuse(ctx context.Context, userID string) error {
	revoked, _, err := s.store.RefreshTokens(ctx).RevokeAllAndBump(ctx, userID)
	if err != nil {
		return err
	}
	alert := &SecurityAlert{
		Event:        "auth.refresh.reuse_detected",
		UserID:       userID,
		RevokedCount: revoked,
	}
	if s.alert != nil {
		s.alert(ctx, alert.Event, map[string]any{
			"user_id":       userID,
			"revoked_count": revoked,
		})
	}
	return alert
}
