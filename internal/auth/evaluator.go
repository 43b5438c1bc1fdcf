package auth

import (
	"context"
	"errors"
	"time"
)

// Scope identifies the resource instance a scoped permission check targets.
// At most one field is set.
type Scope struct {
	FacultyID      string
	StudyProgramID string
}

// Decision is the outcome of a permission check. A deny is a result, not an
// error; errors are reserved for store failures.
type Decision struct {
	Allowed bool
	Reason  string
}

// Decision reasons.
const (
	ReasonRoleFeature       = "role_feature"
	ReasonUnrestrictedRole  = "unrestricted_role"
	ReasonPositionScope     = "position_scope"
	ReasonInsufficientGrant = "insufficient_role_feature_permission"
)

// Evaluator combines the role-feature matrix with currently-effective
// position assignments. The decision is a pure function of the matrix row,
// the held positions and the clock; the store is only consulted to gather
// those inputs.
type Evaluator struct {
	store Store
	now   func() time.Time
}

// EvaluatorOption configures Evaluator behavior.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorClock overrides the time source (useful for tests).
func WithEvaluatorClock(fn func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEvaluator constructs the permission evaluator.
func NewEvaluator(store Store, opts ...EvaluatorOption) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	e := &Evaluator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Check decides whether the user may perform the action on the feature,
// optionally targeting a scoped resource. The base matrix allow always
// short-circuits; position assignments are only loaded on an otherwise-denied
// request to keep the common path at a single matrix lookup.
func (e *Evaluator) Check(ctx context.Context, userID, feature string, action Action, scope *Scope) (Decision, error) {
	user, err := e.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if !user.IsActive {
		return Decision{Reason: ReasonInsufficientGrant}, nil
	}

	roles := e.store.Roles(ctx)
	grant, err := roles.FeatureGrant(ctx, user.RoleID, feature)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Decision{}, err
	}
	if grant.Allows(action) {
		return Decision{Allowed: true, Reason: ReasonRoleFeature}, nil
	}

	role, err := roles.Find(ctx, user.RoleID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Decision{}, err
	}
	if role != nil && role.Name == SuperRoleName {
		return Decision{Allowed: true, Reason: ReasonUnrestrictedRole}, nil
	}

	if scope == nil || !FeatureIsScoped(feature) {
		return Decision{Reason: ReasonInsufficientGrant}, nil
	}

	held, err := e.store.Positions(ctx).EffectiveAssignments(ctx, userID, e.now())
	if err != nil {
		return Decision{}, err
	}
	return decideOverlay(action, *scope, held), nil
}

// HasUnrestrictedAccess reports whether the user holds the distinguished
// super role. Every scoped operation consults this single capability check
// instead of re-deriving the role name.
func (e *Evaluator) HasUnrestrictedAccess(ctx context.Context, userID string) (bool, error) {
	user, err := e.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return false, err
	}
	role, err := e.store.Roles(ctx).Find(ctx, user.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return role.Name == SuperRoleName, nil
}

// decideOverlay applies the position-scope overlay once the base matrix has
// denied. Holding any effective position implies read visibility; update
// requires an effective faculty-scoped assignment matching the target;
// delete, create and print are never granted by positions.
func decideOverlay(action Action, scope Scope, held []HeldPosition) Decision {
	switch action {
	case ActionRead:
		if len(held) > 0 {
			return Decision{Allowed: true, Reason: ReasonPositionScope}
		}
	case ActionUpdate:
		for _, h := range held {
			if h.ScopeType == ScopeFaculty && scope.FacultyID != "" && h.FacultyID == scope.FacultyID {
				return Decision{Allowed: true, Reason: ReasonPositionScope}
			}
		}
	}
	return Decision{Reason: ReasonInsufficientGrant}
}
