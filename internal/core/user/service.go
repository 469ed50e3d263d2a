package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
)

// Service はユーザーに関するユースケースをまとめます。
type Service struct {
	repo  Repository
	clock Clock
	tx    TransactionManager
}

// UseCase はユーザーユースケースの公開インターフェースです。
type UseCase interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	UpdateUser(ctx context.Context, in UpdateUserInput) (*User, error)
	DeactivateUser(ctx context.Context, in DeactivateUserInput) (*User, error)
	GetUser(ctx context.Context, in GetUserInput) (*User, error)
	ListUsers(ctx context.Context, in ListUsersInput) (*ListUsersResult, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{repo: repo, clock: clock, tx: tx}
}

// CreateUserInput はユーザー作成時の入力です。
type CreateUserInput struct {
	Email      string
	Name       string
	Role       Role
	ManagerID  *string
	Department string
	Phone      string
}

// UpdateUserInput はユーザー更新時の入力です。
type UpdateUserInput struct {
	ID           string
	Name         *string
	Role         *Role
	ManagerID    *string
	ManagerIDSet bool
	Department   *string
	Phone        *string
	Status       *Status
}

// DeactivateUserInput はユーザー無効化時の入力です。
type DeactivateUserInput struct {
	ID string
}

// GetUserInput はユーザー取得時の入力です。
type GetUserInput struct {
	ID string
}

// ListUsersInput は一覧取得時の入力です。
type ListUsersInput struct {
	PageSize  int
	PageToken string
	Status    *Status
	Role      *Role
}

// ListUsersResult は一覧取得結果を表します。
type ListUsersResult struct {
	Users         []*User
	NextPageToken string
}

// CreateUser は新しいユーザーを作成します。
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	role := in.Role
	if role == "" {
		role = RoleEmployee
	}
	if !isValidRole(role) {
		return nil, ErrInvalidRole
	}

	var created *User
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmailNotExists(txCtx, email); err != nil {
			return err
		}

		now := s.clock.Now()
		u := &User{
			Email:      email,
			Name:       name,
			Role:       role,
			Department: strings.TrimSpace(in.Department),
			Phone:      strings.TrimSpace(in.Phone),
			Status:     StatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := s.assignManager(txCtx, u, in.ManagerID); err != nil {
			return err
		}

		result, err := s.repo.Create(txCtx, u)
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// UpdateUser はユーザー情報を更新します。
func (s *Service) UpdateUser(ctx context.Context, in UpdateUserInput) (*User, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var updated *User
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, in.ID)
		if err != nil {
			return err
		}

		if in.Name != nil {
			updatedName := strings.TrimSpace(*in.Name)
			if updatedName == "" {
				return ErrInvalidName
			}
			existing.Name = updatedName
		}

		if in.Role != nil {
			if !isValidRole(*in.Role) {
				return ErrInvalidRole
			}
			existing.Role = *in.Role
		}

		if in.ManagerIDSet {
			if err := s.assignManager(txCtx, existing, in.ManagerID); err != nil {
				return err
			}
		}

		if in.Department != nil {
			existing.Department = strings.TrimSpace(*in.Department)
		}

		if in.Phone != nil {
			existing.Phone = strings.TrimSpace(*in.Phone)
		}

		if in.Status != nil {
			if !isValidStatus(*in.Status) {
				return ErrInvalidStatus
			}
			existing.Status = *in.Status
		}

		existing.UpdatedAt = s.clock.Now()

		result, err := s.repo.Update(txCtx, existing)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// DeactivateUser はユーザーを無効化します。ユーザーは物理削除しません。
func (s *Service) DeactivateUser(ctx context.Context, in DeactivateUserInput) (*User, error) {
	inactive := StatusInactive
	return s.UpdateUser(ctx, UpdateUserInput{ID: in.ID, Status: &inactive})
}

// GetUser は ID でユーザーを取得します。
func (s *Service) GetUser(ctx context.Context, in GetUserInput) (*User, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var found *User
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := s.repo.FindByID(txCtx, in.ID)
		if err != nil {
			return err
		}
		found = result
		return nil
	}); err != nil {
		return nil, err
	}

	return found, nil
}

// ListUsers はユーザーの一覧を取得します。
func (s *Service) ListUsers(ctx context.Context, in ListUsersInput) (*ListUsersResult, error) {
	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	var statusPtr *Status
	if in.Status != nil {
		if !isValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		status := *in.Status
		statusPtr = &status
	}

	var rolePtr *Role
	if in.Role != nil {
		if !isValidRole(*in.Role) {
			return nil, ErrInvalidRole
		}
		role := *in.Role
		rolePtr = &role
	}

	var (
		users     []*User
		nextToken string
	)

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		resultUsers, token, err := s.repo.List(txCtx, ListUsersFilter{
			Limit:  limit,
			Offset: offset,
			Status: statusPtr,
			Role:   rolePtr,
		})
		if err != nil {
			return err
		}
		users = resultUsers
		nextToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &ListUsersResult{
		Users:         users,
		NextPageToken: nextToken,
	}, nil
}

// assignManager は上長 ID を検証し、表示名とあわせて u に設定します。
// managerID が nil または空文字の場合は上長を解除します。
func (s *Service) assignManager(ctx context.Context, u *User, managerID *string) error {
	if managerID == nil || strings.TrimSpace(*managerID) == "" {
		u.ManagerID = nil
		u.ManagerName = ""
		return nil
	}

	id := strings.TrimSpace(*managerID)
	if u.ID != "" && id == u.ID {
		return fmt.Errorf("manager_id: %w", ErrInvalidManager)
	}

	manager, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("manager_id: %w", ErrInvalidManager)
		}
		return err
	}
	if !manager.IsActive() {
		return fmt.Errorf("manager_id: %w", ErrInvalidManager)
	}

	u.ManagerID = &id
	u.ManagerName = manager.Name
	return nil
}

func (s *Service) ensureEmailNotExists(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user != nil {
		return ErrEmailAlreadyExists
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(addr.Address), nil
}

func isValidStatus(status Status) bool {
	switch status {
	case StatusActive, StatusInactive:
		return true
	default:
		return false
	}
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

func normalizePageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return defaultListPageSize, nil
	}
	if pageSize > maxListPageSize {
		return 0, ErrInvalidPageSize
	}
	return pageSize, nil
}

func parsePageToken(token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, ErrInvalidPageToken
	}

	return offset, nil
}
