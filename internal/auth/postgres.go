package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"akademia.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *PGStore) Roles(context.Context) RoleStore         { return &roleStore{db: s.db} }
func (s *PGStore) Positions(context.Context) PositionStore { return &positionStore{db: s.db} }

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, full_name, password_hash, role_id, is_active, token_version)
		values ($1, $2, $3, $4, $5, $6, 0)
	`, u.ID, u.Email, u.FullName, u.PasswordHash, u.RoleID, u.IsActive)
	return translatePGError(err, "user")
}

const userColumns = `id, email, full_name, password_hash, role_id, is_active, token_version, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.RoleID,
		&u.IsActive, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *userStore) SetStatus(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_active = $2, updated_at = now() where id = $1`, id, active)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh token store ------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, expires_at, revoked)
		values ($1, $2, $3, false)
	`, tok.ID, tok.UserID, tok.ExpiresAt)
	return translatePGError(err, "refresh_token")
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	var tok RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, expires_at, revoked, created_at
		from refresh_tokens where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.ExpiresAt, &tok.Revoked, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *refreshTokenStore) Rotate(ctx context.Context, oldID string, next *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Conditional revoke serializes concurrent rotations of the same token:
	// the loser sees zero affected rows and takes the reuse path.
	res, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where id = $1 and revoked = false
	`, oldID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, expires_at, revoked)
		values ($1, $2, $3, false)
	`, next.ID, next.UserID, next.ExpiresAt); err != nil {
		return translatePGError(err, "refresh_token")
	}
	return tx.Commit()
}

func (s *refreshTokenStore) Revoke(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where id = $1 and user_id = $2 and revoked = false
	`, id, userID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *refreshTokenStore) RevokeAllAndBump(ctx context.Context, userID string) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where user_id = $1 and revoked = false
	`, userID)
	if err != nil {
		return 0, 0, err
	}
	revoked, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	var version int
	err = tx.QueryRowContext(ctx, `
		update users set token_version = token_version + 1, updated_at = now()
		where id = $1
		returning token_version
	`, userID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return int(revoked), version, nil
}

func (s *refreshTokenStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, description) values ($1, $2, $3)
	`, role.ID, role.Name, role.Description)
	return translatePGError(err, "role")
}

func scanRole(row *sql.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from roles where id = $1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from roles where name = $1`, name))
}

func (s *roleStore) EnsureFeatures(ctx context.Context, features []Feature) error {
	for _, f := range features {
		if f.ID == "" {
			f.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into features (id, name, description) values ($1, $2, $3)
			on conflict (name) do nothing
		`, f.ID, f.Name, f.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *roleStore) SetFeatureGrant(ctx context.Context, roleID, featureName string, grant RoleFeature) error {
	res, err := s.db.ExecContext(ctx, `
		insert into role_features (role_id, feature_id, can_create, can_read, can_update, can_delete, can_print)
		select $1, id, $3, $4, $5, $6, $7 from features where name = $2
		on conflict (role_id, feature_id) do update
		set can_create = excluded.can_create,
		    can_read = excluded.can_read,
		    can_update = excluded.can_update,
		    can_delete = excluded.can_delete,
		    can_print = excluded.can_print
	`, roleID, featureName, grant.CanCreate, grant.CanRead, grant.CanUpdate, grant.CanDelete, grant.CanPrint)
	if err != nil {
		return translatePGError(err, "role_feature")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: feature %s", ErrNotFound, featureName)
	}
	return nil
}

func (s *roleStore) FeatureGrant(ctx context.Context, roleID, featureName string) (*RoleFeature, error) {
	var rf RoleFeature
	err := s.db.QueryRowContext(ctx, `
		select rf.role_id, rf.feature_id, rf.can_create, rf.can_read, rf.can_update, rf.can_delete, rf.can_print
		from role_features rf
		join features f on f.id = rf.feature_id
		where rf.role_id = $1 and f.name = $2
	`, roleID, featureName).Scan(&rf.RoleID, &rf.FeatureID,
		&rf.CanCreate, &rf.CanRead, &rf.CanUpdate, &rf.CanDelete, &rf.CanPrint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

// Position store -----------------------------------------------------------

type positionStore struct{ db *sql.DB }

func (s *positionStore) Create(ctx context.Context, pos *Position) error {
	if pos.ID == "" {
		pos.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into positions (id, name, scope_type, is_single_seat)
		values ($1, $2, $3, $4)
	`, pos.ID, pos.Name, pos.ScopeType, pos.IsSingleSeat)
	return translatePGError(err, "position")
}

func (s *positionStore) Find(ctx context.Context, id string) (*Position, error) {
	var pos Position
	err := s.db.QueryRowContext(ctx, `
		select id, name, scope_type, is_single_seat, created_at
		from positions where id = $1
	`, id).Scan(&pos.ID, &pos.Name, &pos.ScopeType, &pos.IsSingleSeat, &pos.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *positionStore) Assign(ctx context.Context, a *PositionAssignment) error {
	if a.ID == "" {
		a.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the position row so concurrent single-seat assignments for the
	// same scope instance serialize on the existence check below.
	var (
		scopeType  ScopeType
		singleSeat bool
	)
	err = tx.QueryRowContext(ctx, `
		select scope_type, is_single_seat from positions where id = $1 for update
	`, a.PositionID).Scan(&scopeType, &singleSeat)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if (scopeType == ScopeFaculty) != (a.FacultyID != "") ||
		(scopeType == ScopeStudyProgram) != (a.StudyProgramID != "") {
		return fmt.Errorf("%w: assignment scope does not match position scope %s", ErrInvalidInput, scopeType)
	}

	if singleSeat {
		var taken bool
		err = tx.QueryRowContext(ctx, `
			select exists (
				select 1 from position_assignments
				where position_id = $1
				  and coalesce(faculty_id, '') = coalesce($2, '')
				  and coalesce(study_program_id, '') = coalesce($3, '')
				  and is_active
				  and start_date <= now()
				  and (end_date is null or end_date >= now())
			)
		`, a.PositionID, nullIfEmpty(a.FacultyID), nullIfEmpty(a.StudyProgramID)).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: position seat already held for this scope", ErrConflict)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		insert into position_assignments
			(id, user_id, position_id, faculty_id, study_program_id, start_date, end_date, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.UserID, a.PositionID, nullIfEmpty(a.FacultyID), nullIfEmpty(a.StudyProgramID),
		a.StartDate, a.EndDate, a.IsActive); err != nil {
		return translatePGError(err, "position_assignment")
	}
	return tx.Commit()
}

func (s *positionStore) EndAssignment(ctx context.Context, id string, endDate time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update position_assignments set end_date = $2 where id = $1
	`, id, endDate)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *positionStore) EffectiveAssignments(ctx context.Context, userID string, at time.Time) ([]HeldPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.user_id, a.position_id,
		       coalesce(a.faculty_id, ''), coalesce(a.study_program_id, ''),
		       a.start_date, a.end_date, a.is_active, a.created_at,
		       p.name, p.scope_type
		from position_assignments a
		join positions p on p.id = a.position_id
		where a.user_id = $1
		  and a.is_active
		  and a.start_date <= $2
		  and (a.end_date is null or a.end_date >= $2)
	`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []HeldPosition
	for rows.Next() {
		var h HeldPosition
		if err := rows.Scan(&h.ID, &h.UserID, &h.PositionID,
			&h.FacultyID, &h.StudyProgramID,
			&h.StartDate, &h.EndDate, &h.IsActive, &h.CreatedAt,
			&h.PositionName, &h.ScopeType); err != nil {
			return nil, err
		}
		held = append(held, h)
	}
	return held, rows.Err()
}

// Helpers -------------------------------------------------------------------

func translatePGError(err error, entity string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: duplicate %s (%s)", ErrConflict, entity, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing record (%s)", ErrConflict, entity, pgErr.ConstraintName)
		}
	}
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
