package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AdminService wraps the store with input validation for the administrative
// surface: user accounts, roles, the permission matrix, positions and
// assignments.
type AdminService struct {
	store Store
}

// NewAdminService constructs the admin service.
func NewAdminService(store Store) (*AdminService, error) {
	if store == nil {
		return nil, fmt.Errorf("admin store is required")
	}
	return &AdminService{store: store}, nil
}

// CreateUser registers an account with a hashed password and a role.
func (s *AdminService) CreateUser(ctx context.Context, email, fullName, password, roleID string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if strings.TrimSpace(roleID) == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		RoleID:       roleID,
		IsActive:     true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetUserStatus activates or deactivates an account. Deactivation does not
// revoke sessions by itself; pair it with LogoutAll when locking someone out.
func (s *AdminService) SetUserStatus(ctx context.Context, userID string, active bool) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).SetStatus(ctx, userID, active)
}

// CreateRole creates a named role.
func (s *AdminService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRoleFeature upserts one permission-matrix row for a role.
func (s *AdminService) SetRoleFeature(ctx context.Context, roleID, featureName string, grant RoleFeature) error {
	if strings.TrimSpace(roleID) == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	featureName = strings.TrimSpace(featureName)
	if featureName == "" {
		return fmt.Errorf("%w: feature is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).SetFeatureGrant(ctx, roleID, featureName, grant)
}

// CreatePosition creates an organizational position.
func (s *AdminService) CreatePosition(ctx context.Context, name string, scope ScopeType, singleSeat bool) (*Position, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: position name is required", ErrInvalidInput)
	}
	if scope != ScopeFaculty && scope != ScopeStudyProgram {
		return nil, fmt.Errorf("%w: unsupported scope type %q", ErrInvalidInput, scope)
	}
	pos := &Position{Name: name, ScopeType: scope, IsSingleSeat: singleSeat}
	if err := s.store.Positions(ctx).Create(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// AssignPosition binds a user to a position for a time window. Single-seat
// conflicts surface as ErrConflict from the store.
func (s *AdminService) AssignPosition(ctx context.Context, a *PositionAssignment) (*PositionAssignment, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: assignment is required", ErrInvalidInput)
	}
	if strings.TrimSpace(a.UserID) == "" || strings.TrimSpace(a.PositionID) == "" {
		return nil, fmt.Errorf("%w: user_id and position_id are required", ErrInvalidInput)
	}
	if a.FacultyID != "" && a.StudyProgramID != "" {
		return nil, fmt.Errorf("%w: faculty_id and study_program_id are mutually exclusive", ErrInvalidInput)
	}
	if a.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start_date is required", ErrInvalidInput)
	}
	if a.EndDate != nil && a.EndDate.Before(a.StartDate) {
		return nil, fmt.Errorf("%w: end_date precedes start_date", ErrInvalidInput)
	}
	if err := s.store.Positions(ctx).Assign(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetUser returns an account by id.
func (s *AdminService) GetUser(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, userID)
}

// GetRole returns a role by id.
func (s *AdminService) GetRole(ctx context.Context, roleID string) (*Role, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Find(ctx, roleID)
}

// GetPosition returns a position by id.
func (s *AdminService) GetPosition(ctx context.Context, positionID string) (*Position, error) {
	if strings.TrimSpace(positionID) == "" {
		return nil, fmt.Errorf("%w: position_id is required", ErrInvalidInput)
	}
	return s.store.Positions(ctx).Find(ctx, positionID)
}

// EndAssignment closes an assignment as of the given date.
func (s *AdminService) EndAssignment(ctx context.Context, assignmentID string, endDate time.Time) error {
	if strings.TrimSpace(assignmentID) == "" {
		return fmt.Errorf("%w: assignment_id is required", ErrInvalidInput)
	}
	if endDate.IsZero() {
		return fmt.Errorf("%w: end_date is required", ErrInvalidInput)
	}
	return s.store.Positions(ctx).EndAssignment(ctx, assignmentID, endDate)
}
