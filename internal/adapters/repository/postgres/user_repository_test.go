package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

type stubRow struct {
	scanFn func(dest ...interface{}) error
}

func (s stubRow) Scan(dest ...interface{}) error {
	return s.scanFn(dest...)
}

var userColumnNames = []string{"id", "email", "name", "role", "manager_id", "manager_name", "department", "phone", "status", "created_at", "updated_at"}

func TestScanUser_Success(t *testing.T) {
	t.Parallel()

	createdAt := time.Now().UTC()
	updatedAt := createdAt.Add(time.Minute)

	row := stubRow{scanFn: func(dest ...interface{}) error {
		if len(dest) != 11 {
			return errors.New("unexpected dest length")
		}
		*(dest[0].(*string)) = "user-1"
		*(dest[1].(*string)) = "user@example.com"
		*(dest[2].(*string)) = "User"
		*(dest[3].(*string)) = string(user.RoleEmployee)

		manager := dest[4].(*sql.NullString)
		manager.String = "mgr-1"
		manager.Valid = true

		*(dest[5].(*string)) = "Boss"
		*(dest[6].(*string)) = "Sales"
		*(dest[7].(*string)) = ""
		*(dest[8].(*string)) = string(user.StatusActive)
		*(dest[9].(*time.Time)) = createdAt
		*(dest[10].(*time.Time)) = updatedAt
		return nil
	}}

	u, err := scanUser(row)
	if err != nil {
		t.Fatalf("scanUser returned error: %v", err)
	}

	if u.ID != "user-1" || u.Email != "user@example.com" || u.Role != user.RoleEmployee {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.ManagerID == nil || *u.ManagerID != "mgr-1" || u.ManagerName != "Boss" {
		t.Fatalf("unexpected manager fields %+v", u)
	}
}

func TestScanUser_NoRows(t *testing.T) {
	t.Parallel()

	row := stubRow{scanFn: func(dest ...interface{}) error {
		return pgx.ErrNoRows
	}}

	_, err := scanUser(row)
	if !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestTranslatePgError(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: uniqueViolationCode}
	if !errors.Is(translatePgError(pgErr), user.ErrEmailAlreadyExists) {
		t.Fatalf("expected email exists error mapping")
	}

	fkErr := &pgconn.PgError{Code: foreignKeyViolationCode}
	if !errors.Is(translatePgError(fkErr), user.ErrInvalidManager) {
		t.Fatalf("expected fk violation to map to ErrInvalidManager")
	}

	badID := &pgconn.PgError{Code: invalidTextCode}
	if !errors.Is(translatePgError(badID), user.ErrUserNotFound) {
		t.Fatalf("expected malformed id to map to ErrUserNotFound")
	}

	otherErr := errors.New("random")
	if translatePgError(otherErr) != otherErr {
		t.Fatalf("unexpected translation for generic error")
	}
}

func TestUserRepository_FindByName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE name = $1`)).
		WithArgs("Boss").
		WillReturnRows(pgxmock.NewRows(userColumnNames).
			AddRow("mgr-1", "boss@example.com", "Boss", string(user.RoleManager), nil, "", "", "", string(user.StatusActive), now, now))

	u, err := repo.FindByName(context.Background(), " Boss ")
	if err != nil {
		t.Fatalf("FindByName returned error: %v", err)
	}
	if u.ID != "mgr-1" || u.ManagerID != nil {
		t.Fatalf("unexpected user %+v", u)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_List_WithNextToken(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	query := regexp.QuoteMeta(`
          FROM users
         ORDER BY created_at DESC, id DESC
         LIMIT $1
        OFFSET $2
    `)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(userColumnNames).
		AddRow("user-1", "user1@example.com", "User1", "employee", nil, "", "", "", string(user.StatusActive), now, now).
		AddRow("user-2", "user2@example.com", "User2", "employee", nil, "", "", "", string(user.StatusActive), now, now).
		AddRow("user-3", "user3@example.com", "User3", "employee", nil, "", "", "", string(user.StatusInactive), now, now)

	mock.ExpectQuery(query).
		WithArgs(3, 0).
		WillReturnRows(rows)

	users, nextToken, err := repo.List(context.Background(), user.ListUsersFilter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	if nextToken != "2" {
		t.Fatalf("expected next token '2', got %s", nextToken)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_List_WithFilters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	inactive := user.StatusInactive
	manager := user.RoleManager
	query := regexp.QuoteMeta(`
          FROM users WHERE status = $1 AND role = $2
         ORDER BY created_at DESC, id DESC
         LIMIT $3
        OFFSET $4
    `)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(userColumnNames).
		AddRow("user-5", "inactive@example.com", "Inactive", "manager", nil, "", "", "", string(user.StatusInactive), now, now)

	mock.ExpectQuery(query).
		WithArgs(string(inactive), string(manager), 3, 0).
		WillReturnRows(rows)

	users, nextToken, err := repo.List(context.Background(), user.ListUsersFilter{Limit: 2, Offset: 0, Status: &inactive, Role: &manager})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}

	if nextToken != "" {
		t.Fatalf("expected empty next token, got %s", nextToken)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_List_InvalidArguments(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	if _, _, err := repo.List(context.Background(), user.ListUsersFilter{Limit: 0, Offset: 0}); !errors.Is(err, user.ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}

	if _, _, err := repo.List(context.Background(), user.ListUsersFilter{Limit: 1, Offset: -1}); !errors.Is(err, user.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}
