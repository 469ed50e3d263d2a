package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
	pgdb "github.com/ogurasousui/codex-expense-approval/internal/platform/db/postgres"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	invalidTextCode         = "22P02"
)

const userColumns = `id, email, name, role, manager_id, manager_name, department, phone, status, created_at, updated_at`

// UserRepository は PostgreSQL を利用したユーザー永続化の実装です。
type UserRepository struct {
	pool pgdb.Queryer
}

// NewUserRepository は UserRepository を生成します。
func NewUserRepository(pool pgdb.Queryer) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create はユーザーを新規作成します。
func (r *UserRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO users (email, name, role, manager_id, manager_name, department, phone, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING `+userColumns+`
    `,
		u.Email,
		u.Name,
		string(u.Role),
		nullableString(u.ManagerID),
		u.ManagerName,
		u.Department,
		u.Phone,
		string(u.Status),
		u.CreatedAt,
		u.UpdatedAt,
	)

	created, err := scanUser(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return created, nil
}

// Update はユーザー情報を更新します。
func (r *UserRepository) Update(ctx context.Context, u *user.User) (*user.User, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE users
           SET name = $1,
               role = $2,
               manager_id = $3,
               manager_name = $4,
               department = $5,
               phone = $6,
               status = $7,
               updated_at = $8
         WHERE id = $9
        RETURNING `+userColumns+`
    `,
		u.Name,
		string(u.Role),
		nullableString(u.ManagerID),
		u.ManagerName,
		u.Department,
		u.Phone,
		string(u.Status),
		u.UpdatedAt,
		u.ID,
	)

	updated, err := scanUser(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return updated, nil
}

// FindByID はIDでユーザーを取得します。
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	return r.findOne(ctx, `
        SELECT `+userColumns+`
          FROM users
         WHERE id = $1
         LIMIT 1
    `, id)
}

// FindByEmail はメールアドレスでユーザーを取得します。
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, `
        SELECT `+userColumns+`
          FROM users
         WHERE lower(email) = lower($1)
         LIMIT 1
    `, email)
}

// FindByName は表示名でユーザーを取得します。同名の場合は最も新しいユーザーです。
func (r *UserRepository) FindByName(ctx context.Context, name string) (*user.User, error) {
	return r.findOne(ctx, `
        SELECT `+userColumns+`
          FROM users
         WHERE name = $1
         ORDER BY created_at DESC, id DESC
         LIMIT 1
    `, strings.TrimSpace(name))
}

// List はユーザーの一覧を取得します。
func (r *UserRepository) List(ctx context.Context, filter user.ListUsersFilter) ([]*user.User, string, error) {
	if filter.Limit <= 0 {
		return nil, "", user.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", user.ErrInvalidPageToken
	}

	limitWithBuffer := filter.Limit + 1

	args := make([]any, 0, 4)
	conditions := make([]string, 0, 2)

	if filter.Status != nil {
		placeholder := "$" + strconv.Itoa(len(args)+1)
		conditions = append(conditions, "status = "+placeholder)
		args = append(args, string(*filter.Status))
	}
	if filter.Role != nil {
		placeholder := "$" + strconv.Itoa(len(args)+1)
		conditions = append(conditions, "role = "+placeholder)
		args = append(args, string(*filter.Role))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limitPlaceholder := "$" + strconv.Itoa(len(args)+1)
	args = append(args, limitWithBuffer)
	offsetPlaceholder := "$" + strconv.Itoa(len(args)+1)
	args = append(args, filter.Offset)

	query := `
        SELECT ` + userColumns + `
          FROM users` + whereClause + `
         ORDER BY created_at DESC, id DESC
         LIMIT ` + limitPlaceholder + `
        OFFSET ` + offsetPlaceholder + `
    `

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, "", translatePgError(err)
	}
	defer rows.Close()

	users := make([]*user.User, 0, filter.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, "", translatePgError(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, "", translatePgError(err)
	}

	var nextToken string
	if len(users) == limitWithBuffer {
		users = users[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}

	return users, nextToken, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg string) (*user.User, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanUser(exec.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translatePgError(err)
	}
	return found, nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		id                   string
		email                string
		name                 string
		role                 string
		managerID            sql.NullString
		managerName          string
		department           string
		phone                string
		status               string
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(&id, &email, &name, &role, &managerID, &managerName, &department, &phone, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}

	return &user.User{
		ID:          id,
		Email:       email,
		Name:        name,
		Role:        user.Role(role),
		ManagerID:   stringPtr(managerID),
		ManagerName: managerName,
		Department:  department,
		Phone:       phone,
		Status:      user.Status(status),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return user.ErrEmailAlreadyExists
		case foreignKeyViolationCode:
			return user.ErrInvalidManager
		case invalidTextCode:
			return user.ErrUserNotFound
		}
	}
	return err
}

func nullableString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
