package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newTestStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() { _ = db.Close() }
}

func TestCreateUserTranslatesUniqueViolation(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_email_key"})

	err := store.Users(context.Background()).Create(context.Background(), &User{
		Email: "dup@example.edu", PasswordHash: "x", RoleID: "role-1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateUserTranslatesForeignKeyViolation(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "users_role_id_fkey"})

	err := store.Users(context.Background()).Create(context.Background(), &User{
		Email: "new@example.edu", PasswordHash: "x", RoleID: "missing",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRotateAlreadyRevokedReturnsConflict(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked = true").
		WithArgs("old-id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.RefreshTokens(context.Background()).Rotate(context.Background(), "old-id", &RefreshToken{
		ID: "new-id", UserID: "user-1", ExpiresAt: testTime.Add(time.Hour),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotateRollsBackWhenInsertFails(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked = true").
		WithArgs("old-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.RefreshTokens(context.Background()).Rotate(context.Background(), "old-id", &RefreshToken{
		ID: "new-id", UserID: "user-1", ExpiresAt: testTime.Add(time.Hour),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevokeAllAndBumpAtomicity(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	// Version bump failure must roll the token revocations back too.
	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked = true").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("update users set token_version = token_version").
		WithArgs("user-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := store.RefreshTokens(context.Background()).RevokeAllAndBump(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetFeatureGrantUnknownFeature(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("insert into role_features").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Roles(context.Background()).SetFeatureGrant(context.Background(),
		"role-1", "no_such_feature", RoleFeature{CanRead: true})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignRejectsScopeMismatch(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("select scope_type, is_single_seat from positions").
		WithArgs("pos-1").
		WillReturnRows(sqlmock.NewRows([]string{"scope_type", "is_single_seat"}).
			AddRow("FACULTY", false))
	mock.ExpectRollback()

	err := store.Positions(context.Background()).Assign(context.Background(), &PositionAssignment{
		UserID:         "user-1",
		PositionID:     "pos-1",
		StudyProgramID: "prog-1",
		StartDate:      testTime,
		IsActive:       true,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAssignSingleSeatConflict(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("select scope_type, is_single_seat from positions").
		WithArgs("pos-1").
		WillReturnRows(sqlmock.NewRows([]string{"scope_type", "is_single_seat"}).
			AddRow("FACULTY", true))
	mock.ExpectQuery("select exists").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.Positions(context.Background()).Assign(context.Background(), &PositionAssignment{
		UserID:     "user-2",
		PositionID: "pos-1",
		FacultyID:  "faculty-f",
		StartDate:  testTime,
		IsActive:   true,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignSingleSeatAllowsFreeSeat(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("select scope_type, is_single_seat from positions").
		WithArgs("pos-1").
		WillReturnRows(sqlmock.NewRows([]string{"scope_type", "is_single_seat"}).
			AddRow("FACULTY", true))
	mock.ExpectQuery("select exists").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("insert into position_assignments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := &PositionAssignment{
		UserID:     "user-2",
		PositionID: "pos-1",
		FacultyID:  "faculty-g",
		StartDate:  testTime,
		IsActive:   true,
	}
	if err := store.Positions(context.Background()).Assign(context.Background(), a); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if a.ID == "" {
		t.Fatal("assignment id not generated")
	}
}

func TestEndAssignmentNotFound(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("update position_assignments set end_date").
		WithArgs("missing", testTime).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Positions(context.Background()).EndAssignment(context.Background(), "missing", testTime)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
