package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"akademia.org/internal/auth"
)

// expectSuperAdmin queues the authentication and permission-check queries for
// a caller whose role is the unrestricted one.
func expectSuperAdmin(ta *testAPI, user *auth.User, feature string) {
	superRole := sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
		AddRow(user.RoleID, auth.SuperRoleName, "", handlerTestTime, handlerTestTime)

	// Bearer middleware.
	ta.mock.ExpectQuery("select .* from users where id =").
		WithArgs(user.ID).
		WillReturnRows(handlerUserRow(user))
	ta.mock.ExpectQuery("select id, name, description, created_at, updated_at from roles").
		WithArgs(user.RoleID).
		WillReturnRows(superRole)

	// Evaluator: no matrix row, super role allows.
	ta.mock.ExpectQuery("select .* from users where id =").
		WithArgs(user.ID).
		WillReturnRows(handlerUserRow(user))
	ta.mock.ExpectQuery("select rf.role_id, rf.feature_id").
		WithArgs(user.RoleID, feature).
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}))
	ta.mock.ExpectQuery("select id, name, description, created_at, updated_at from roles").
		WithArgs(user.RoleID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow(user.RoleID, auth.SuperRoleName, "", handlerTestTime, handlerTestTime))
}

func TestDeactivateUserTearsDownSessions(t *testing.T) {
	ta := newTestAPI(t)
	defer ta.close()

	admin := testHandlerUser(t, "s3cret")
	access, _, err := ta.issuer.SignAccess(admin)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	expectSuperAdmin(ta, admin, auth.FeatureUserManagement)

	ta.mock.ExpectExec("update users set is_active =").
		WithArgs("target-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ta.mock.ExpectBegin()
	ta.mock.ExpectExec("update refresh_tokens set revoked = true").
		WithArgs("target-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	ta.mock.ExpectQuery("update users set token_version = token_version").
		WithArgs("target-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(1))
	ta.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/users/target-1/status",
		strings.NewReader(`{"is_active":false}`))
	req.Header.Set("Authorization", "Bearer "+access)
	rr := ta.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate: %d body=%s", rr.Code, rr.Body.String())
	}
	if err := ta.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("session teardown did not run: %v", err)
	}
}

func TestDeactivateUserReportsTeardownFailure(t *testing.T) {
	ta := newTestAPI(t)
	defer ta.close()

	admin := testHandlerUser(t, "s3cret")
	access, _, err := ta.issuer.SignAccess(admin)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	expectSuperAdmin(ta, admin, auth.FeatureUserManagement)

	ta.mock.ExpectExec("update users set is_active =").
		WithArgs("target-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ta.mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/users/target-1/status",
		strings.NewReader(`{"is_active":false}`))
	req.Header.Set("Authorization", "Bearer "+access)
	rr := ta.do(req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("teardown failure not surfaced: %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "session teardown failed") {
		t.Fatalf("response does not report the teardown failure: %s", rr.Body.String())
	}
}

func TestReactivateUserSkipsTeardown(t *testing.T) {
	ta := newTestAPI(t)
	defer ta.close()

	admin := testHandlerUser(t, "s3cret")
	access, _, err := ta.issuer.SignAccess(admin)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	expectSuperAdmin(ta, admin, auth.FeatureUserManagement)

	// Activation only updates the flag; no revocation transaction follows.
	ta.mock.ExpectExec("update users set is_active =").
		WithArgs("target-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/users/target-1/status",
		strings.NewReader(`{"is_active":true}`))
	req.Header.Set("Authorization", "Bearer "+access)
	rr := ta.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: %d body=%s", rr.Code, rr.Body.String())
	}
	if err := ta.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
