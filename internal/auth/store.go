package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Cross-record invariants (rotation, session teardown, single-seat checks)
// are composite operations so implementations can run them inside a single
// database transaction; callers never see a partially applied state.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Roles(ctx context.Context) RoleStore
	Positions(ctx context.Context) PositionStore
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetStatus(ctx context.Context, id string, active bool) error
}

// RefreshTokenStore manages refresh-token rotation chains.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)

	// Rotate marks the old record revoked and inserts its successor in one
	// atomic unit. If the old record was already revoked (a concurrent
	// rotation won the race) it returns ErrConflict and inserts nothing.
	Rotate(ctx context.Context, oldID string, next *RefreshToken) error

	// Revoke marks one record revoked if it exists, belongs to userID and is
	// not already revoked. It reports whether a row transitioned; all other
	// cases are a no-op, not an error.
	Revoke(ctx context.Context, id, userID string) (bool, error)

	// RevokeAllAndBump revokes every live token for the user and increments
	// the user's token version in the same transaction, returning the revoked
	// count and the new version.
	RevokeAllAndBump(ctx context.Context, userID string) (int, int, error)

	// DeleteExpired removes records whose expiry precedes the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoleStore manages roles, the feature catalog and the permission matrix.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	EnsureFeatures(ctx context.Context, features []Feature) error

	// SetFeatureGrant upserts one matrix row, addressed by feature name.
	SetFeatureGrant(ctx context.Context, roleID, featureName string, grant RoleFeature) error

	// FeatureGrant returns the matrix row for (role, feature name), or
	// ErrNotFound when no row exists.
	FeatureGrant(ctx context.Context, roleID, featureName string) (*RoleFeature, error)
}

// PositionStore manages positions and their assignments.
type PositionStore interface {
	Create(ctx context.Context, pos *Position) error
	Find(ctx context.Context, id string) (*Position, error)

	// Assign creates an assignment. For single-seat positions it fails with
	// ErrConflict when another currently-effective assignment exists for the
	// same scope instance; the check and the insert share one transaction.
	Assign(ctx context.Context, a *PositionAssignment) error

	// EndAssignment closes an assignment by setting its end date.
	EndAssignment(ctx context.Context, id string, endDate time.Time) error

	// EffectiveAssignments returns the positions a user effectively holds at
	// the given instant, joined with scope metadata.
	EffectiveAssignments(ctx context.Context, userID string, at time.Time) ([]HeldPosition, error)
}
