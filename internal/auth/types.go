package auth

import "time"

// User is a human account operating against the academic backend. TokenVersion
// is the per-user session generation counter: bumping it invalidates every
// access token signed under an earlier value.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	RoleID       string
	IsActive     bool
	TokenVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is one link of a rotation chain. The ID doubles as the jti of
// the signed refresh token; the record is never updated except for the
// one-way Revoked flag.
type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Role groups feature grants. Each user owns exactly one role.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Feature is a named capability targeted by matrix rows.
type Feature struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// RoleFeature is one row of the permission matrix. Absence of a row means no
// permission for any action on that feature.
type RoleFeature struct {
	RoleID    string
	FeatureID string
	CanCreate bool
	CanRead   bool
	CanUpdate bool
	CanDelete bool
	CanPrint  bool
}

// ScopeType designates which resource kind a position is bound to.
type ScopeType string

const (
	ScopeFaculty      ScopeType = "FACULTY"
	ScopeStudyProgram ScopeType = "STUDY_PROGRAM"
)

// Position is an organizational role such as "Dean". Single-seat positions
// allow at most one currently-effective holder per scope instance.
type Position struct {
	ID           string
	Name         string
	ScopeType    ScopeType
	IsSingleSeat bool
	CreatedAt    time.Time
}

// PositionAssignment binds a user to a position for a time window. Exactly one
// of FacultyID / StudyProgramID is set, matching the position's scope type.
type PositionAssignment struct {
	ID             string
	UserID         string
	PositionID     string
	FacultyID      string
	StudyProgramID string
	StartDate      time.Time
	EndDate        *time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// EffectiveAt reports whether the assignment grants its position at the given
// instant: active, started, and not yet ended.
func (a PositionAssignment) EffectiveAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.StartDate.After(now) {
		return false
	}
	if a.EndDate != nil && a.EndDate.Before(now) {
		return false
	}
	return true
}

// HeldPosition is an assignment joined with the scope metadata of its
// position, as returned by PositionStore.EffectiveAssignments.
type HeldPosition struct {
	PositionAssignment
	PositionName string
	ScopeType    ScopeType
}
