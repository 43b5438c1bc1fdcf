package httpapi

import (
	"net/http"
	"strings"
	"time"

	"akademia.org/internal/audit"
	"akademia.org/internal/auth"
	"akademia.org/internal/obs"
)

// shiftPath pops the first segment off a path suffix, returning the segment
// and the remainder without its leading slash.
func shiftPath(p string) (string, string) {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, ""
}

// --- users ---

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	RoleID    string    `json:"role_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		RoleID:    u.RoleID,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.FeatureUserManagement, auth.ActionCreate, nil) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.admin.CreateUser(r.Context(), req.Email, req.FullName, req.Password, req.RoleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "admin.user.created", map[string]any{
		"target_user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/v1/admin/users"))
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch rest {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.requirePermission(w, r, auth.FeatureUserManagement, auth.ActionRead, nil) {
			return
		}
		user, err := a.admin.GetUser(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	case "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.requirePermission(w, r, auth.FeatureUserManagement, auth.ActionUpdate, nil) {
			return
		}
		var req struct {
			IsActive bool `json:"is_active"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := a.admin.SetUserStatus(r.Context(), id, req.IsActive); err != nil {
			handleAuthError(w, r, err)
			return
		}
		// Locking an account also ends its sessions immediately. A failed
		// teardown leaves live sessions on a deactivated account, so it is
		// an error, not a footnote.
		if !req.IsActive {
			revoked, err := a.auth.LogoutAll(r.Context(), id)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError,
					"account deactivated but session teardown failed")
				return
			}
			audit.LogEvent(r.Context(), "admin.user.deactivated", map[string]any{
				"target_user_id": id,
				"revoked_tokens": revoked,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": req.IsActive})
	default:
		http.NotFound(w, r)
	}
}

// --- roles ---

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type roleFeatureRequest struct {
	CanCreate bool `json:"can_create"`
	CanRead   bool `json:"can_read"`
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
	CanPrint  bool `json:"can_print"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.FeatureRoleManagement, auth.ActionCreate, nil) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := a.admin.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "admin.role.created", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
	})
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/v1/admin/roles"))
	if id == "" {
		http.NotFound(w, r)
		return
	}
	seg, tail := shiftPath(rest)
	switch {
	case rest == "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.requirePermission(w, r, auth.FeatureRoleManagement, auth.ActionRead, nil) {
			return
		}
		role, err := a.admin.GetRole(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          role.ID,
			"name":        role.Name,
			"description": role.Description,
		})
	case seg == "features" && tail != "":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.requirePermission(w, r, auth.FeatureRoleManagement, auth.ActionUpdate, nil) {
			return
		}
		var req roleFeatureRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		grant := auth.RoleFeature{
			CanCreate: req.CanCreate,
			CanRead:   req.CanRead,
			CanUpdate: req.CanUpdate,
			CanDelete: req.CanDelete,
			CanPrint:  req.CanPrint,
		}
		if err := a.admin.SetRoleFeature(r.Context(), id, tail, grant); err != nil {
			handleAuthError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "admin.role.feature_updated", map[string]any{
			"role_id": id,
			"feature": tail,
		})
		writeJSON(w, http.StatusOK, map[string]any{"role_id": id, "feature": tail})
	default:
		http.NotFound(w, r)
	}
}

// --- positions and assignments ---

type createPositionRequest struct {
	Name         string `json:"name"`
	ScopeType    string `json:"scope_type"`
	IsSingleSeat bool   `json:"is_single_seat"`
}

type assignPositionRequest struct {
	UserID         string     `json:"user_id"`
	FacultyID      string     `json:"faculty_id"`
	StudyProgramID string     `json:"study_program_id"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
}

func (a *API) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.FeaturePositionManagement, auth.ActionCreate, nil) {
		return
	}
	var req createPositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	pos, err := a.admin.CreatePosition(r.Context(), req.Name, auth.ScopeType(req.ScopeType), req.IsSingleSeat)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             pos.ID,
		"name":           pos.Name,
		"scope_type":     pos.ScopeType,
		"is_single_seat": pos.IsSingleSeat,
	})
}

func (a *API) handlePositionScoped(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/v1/admin/positions"))
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch rest {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.requirePermission(w, r, auth.FeaturePositionManagement, auth.ActionRead, nil) {
			return
		}
		pos, err := a.admin.GetPosition(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             pos.ID,
			"name":           pos.Name,
			"scope_type":     pos.ScopeType,
			"is_single_seat": pos.IsSingleSeat,
		})
	case "assignments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.requirePermission(w, r, auth.FeaturePositionManagement, auth.ActionCreate, nil) {
			return
		}
		var req assignPositionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		assignment, err := a.admin.AssignPosition(r.Context(), &auth.PositionAssignment{
			UserID:         req.UserID,
			PositionID:     id,
			FacultyID:      req.FacultyID,
			StudyProgramID: req.StudyProgramID,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			IsActive:       true,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "admin.position.assigned", map[string]any{
			"assignment_id":  assignment.ID,
			"position_id":    id,
			"target_user_id": req.UserID,
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":          assignment.ID,
			"position_id": id,
			"user_id":     assignment.UserID,
			"start_date":  assignment.StartDate,
			"end_date":    assignment.EndDate,
		})
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleAssignmentScoped(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/v1/admin/assignments"))
	if id == "" || rest != "end" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requirePermission(w, r, auth.FeaturePositionManagement, auth.ActionUpdate, nil) {
		return
	}
	var req struct {
		EndDate time.Time `json:"end_date"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.EndAssignment(r.Context(), id, req.EndDate); err != nil {
		handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "admin.position.assignment_ended", map[string]any{
		"assignment_id": id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "end_date": req.EndDate})
}

// --- maintenance ---

func (a *API) handlePruneTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}
	super, err := a.evaluator.HasUnrestrictedAccess(r.Context(), principal.User.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if !super {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	pruned, err := a.auth.PruneExpired(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObservePrunedTokens(pruned)
	writeJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
}
