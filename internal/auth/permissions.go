package auth

import "fmt"

// Feature names known to the core. The catalog is seeded at migration time;
// CRUD modules reference features by these constants.
const (
	FeatureFacultyManagement      = "faculty_management"
	FeatureStudyProgramManagement = "study_program_management"
	FeatureLecturerManagement     = "lecturer_management"
	FeatureStudentManagement      = "student_management"
	FeatureUserManagement         = "user_management"
	FeatureRoleManagement         = "role_management"
	FeaturePositionManagement     = "position_management"
	FeatureDashboard              = "dashboard"
)

// SuperRoleName is the distinguished role with unrestricted access. Scoped
// operations consult it through Evaluator.HasUnrestrictedAccess rather than
// comparing role names ad hoc.
const SuperRoleName = "super_admin"

// BuiltinFeatures is the feature catalog ensured by the seeder.
var BuiltinFeatures = []Feature{
	{Name: FeatureFacultyManagement, Description: "Manage faculties"},
	{Name: FeatureStudyProgramManagement, Description: "Manage study programs"},
	{Name: FeatureLecturerManagement, Description: "Manage lecturers"},
	{Name: FeatureStudentManagement, Description: "Manage students"},
	{Name: FeatureUserManagement, Description: "Manage user accounts"},
	{Name: FeatureRoleManagement, Description: "Manage roles and grants"},
	{Name: FeaturePositionManagement, Description: "Manage positions and assignments"},
	{Name: FeatureDashboard, Description: "View dashboards"},
}

// scopedFeatures lists features whose resources carry a faculty or study
// program scope; only these participate in the position overlay.
var scopedFeatures = map[string]struct{}{
	FeatureFacultyManagement:      {},
	FeatureStudyProgramManagement: {},
}

// FeatureIsScoped reports whether the feature's resources are scope-bound.
func FeatureIsScoped(feature string) bool {
	_, ok := scopedFeatures[feature]
	return ok
}

// Action is the closed set of operations a matrix row can grant. Unknown
// actions are rejected when parsed, never at evaluation time.
type Action int

const (
	ActionCreate Action = iota
	ActionRead
	ActionUpdate
	ActionDelete
	ActionPrint
)

var actionNames = map[Action]string{
	ActionCreate: "create",
	ActionRead:   "read",
	ActionUpdate: "update",
	ActionDelete: "delete",
	ActionPrint:  "print",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction maps an action name to the enum, failing on anything outside
// the closed set.
func ParseAction(name string) (Action, error) {
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, name)
}

// Allows reports whether the matrix row grants the action. The five booleans
// are independent; there is no implication between them.
func (rf *RoleFeature) Allows(action Action) bool {
	if rf == nil {
		return false
	}
	switch action {
	case ActionCreate:
		return rf.CanCreate
	case ActionRead:
		return rf.CanRead
	case ActionUpdate:
		return rf.CanUpdate
	case ActionDelete:
		return rf.CanDelete
	case ActionPrint:
		return rf.CanPrint
	default:
		return false
	}
}
