package rule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
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

// UserFinder はルールが参照するユーザーを解決します。user.Repository が満たします。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*user.User, error)
}

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
)

// Service は承認ルールのユースケースをまとめます。
type Service struct {
	repo  Repository
	users UserFinder
	clock Clock
	tx    TransactionManager
}

// UseCase は承認ルールユースケースの公開インターフェースです。
type UseCase interface {
	CreateApprovalRule(ctx context.Context, in CreateRuleInput) (*Rule, error)
	UpdateApprovalRule(ctx context.Context, in UpdateRuleInput) (*Rule, error)
	DeleteApprovalRule(ctx context.Context, in DeleteRuleInput) error
	GetApprovalRule(ctx context.Context, in GetRuleInput) (*Rule, error)
	GetRuleForUser(ctx context.Context, userID string) (*Rule, error)
	ListApprovalRules(ctx context.Context, in ListRulesInput) (*ListRulesResult, error)
}

// NewService は Service を生成します。users が nil の場合、ユーザー参照の検証を行いません。
func NewService(repo Repository, users UserFinder, clock Clock, tx TransactionManager) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{repo: repo, users: users, clock: clock, tx: tx}
}

// ApproverInput は承認者指定の入力です。
type ApproverInput struct {
	UserID   string
	Name     string
	Email    string
	Role     string
	Required bool
}

// CreateRuleInput はルール作成時の入力です。
type CreateRuleInput struct {
	UserID                    string
	Description               string
	ManagerID                 *string
	IsManagerApprover         bool
	Approvers                 []ApproverInput
	IsSequential              bool
	MinimumApprovalPercentage int
	IsActive                  *bool
}

// UpdateRuleInput はルール更新時の入力です。nil のフィールドは変更しません。
type UpdateRuleInput struct {
	ID                        string
	Description               *string
	ManagerID                 *string
	ManagerIDSet              bool
	IsManagerApprover         *bool
	Approvers                 *[]ApproverInput
	IsSequential              *bool
	MinimumApprovalPercentage *int
	IsActive                  *bool
}

// DeleteRuleInput はルール削除時の入力です。
type DeleteRuleInput struct {
	ID string
}

// GetRuleInput はルール取得時の入力です。
type GetRuleInput struct {
	ID string
}

// ListRulesInput は一覧取得時の入力です。
type ListRulesInput struct {
	UserID     string
	ActiveOnly bool
	PageSize   int
	PageToken  string
}

// ListRulesResult は一覧取得結果を表します。
type ListRulesResult struct {
	Rules         []*Rule
	NextPageToken string
}

// CreateApprovalRule は承認ルールを作成します。
func (s *Service) CreateApprovalRule(ctx context.Context, in CreateRuleInput) (*Rule, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	description, err := normalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	if err := validatePercentage(in.MinimumApprovalPercentage); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	var created *Rule
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.ensureUserExists(txCtx, userID); err != nil {
			return err
		}

		managerID, err := s.normalizeManager(txCtx, userID, in.ManagerID)
		if err != nil {
			return err
		}

		approvers, err := s.resolveApprovers(txCtx, userID, in.Approvers)
		if err != nil {
			return err
		}

		if active {
			if err := s.ensureNoOtherActiveRule(txCtx, userID, ""); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		r := &Rule{
			UserID:                    userID,
			Description:               description,
			ManagerID:                 managerID,
			IsManagerApprover:         in.IsManagerApprover,
			Approvers:                 approvers,
			IsSequential:              in.IsSequential,
			MinimumApprovalPercentage: in.MinimumApprovalPercentage,
			IsActive:                  active,
			CreatedAt:                 now,
			UpdatedAt:                 now,
		}

		result, err := s.repo.Create(txCtx, r)
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

// UpdateApprovalRule は承認ルールを部分更新します。
// 提出済みの経費は提出時点の承認者スナップショットを保持するため、更新の影響を受けません。
func (s *Service) UpdateApprovalRule(ctx context.Context, in UpdateRuleInput) (*Rule, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var updated *Rule
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, in.ID)
		if err != nil {
			return err
		}

		if in.Description != nil {
			description, err := normalizeDescription(*in.Description)
			if err != nil {
				return err
			}
			existing.Description = description
		}

		if in.ManagerIDSet {
			managerID, err := s.normalizeManager(txCtx, existing.UserID, in.ManagerID)
			if err != nil {
				return err
			}
			existing.ManagerID = managerID
		}

		if in.IsManagerApprover != nil {
			existing.IsManagerApprover = *in.IsManagerApprover
		}

		if in.Approvers != nil {
			approvers, err := s.resolveApprovers(txCtx, existing.UserID, *in.Approvers)
			if err != nil {
				return err
			}
			existing.Approvers = approvers
		}

		if in.IsSequential != nil {
			existing.IsSequential = *in.IsSequential
		}

		if in.MinimumApprovalPercentage != nil {
			if err := validatePercentage(*in.MinimumApprovalPercentage); err != nil {
				return err
			}
			existing.MinimumApprovalPercentage = *in.MinimumApprovalPercentage
		}

		if in.IsActive != nil {
			if *in.IsActive && !existing.IsActive {
				if err := s.ensureNoOtherActiveRule(txCtx, existing.UserID, existing.ID); err != nil {
					return err
				}
			}
			existing.IsActive = *in.IsActive
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

// DeleteApprovalRule は承認ルールを削除します。
func (s *Service) DeleteApprovalRule(ctx context.Context, in DeleteRuleInput) error {
	if strings.TrimSpace(in.ID) == "" {
		return fmt.Errorf("id: %w", ErrInvalidID)
	}

	return s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		return s.repo.Delete(txCtx, in.ID)
	})
}

// GetApprovalRule は ID で承認ルールを取得します。
func (s *Service) GetApprovalRule(ctx context.Context, in GetRuleInput) (*Rule, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var found *Rule
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

// GetRuleForUser は従業員に適用される有効なルールを取得します。
func (s *Service) GetRuleForUser(ctx context.Context, userID string) (*Rule, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, ErrInvalidUserID
	}

	var found *Rule
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := s.repo.FindActiveByUserID(txCtx, trimmed)
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

// ListApprovalRules は承認ルールの一覧を取得します。
func (s *Service) ListApprovalRules(ctx context.Context, in ListRulesInput) (*ListRulesResult, error) {
	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	var (
		rules     []*Rule
		nextToken string
	)

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		resultRules, token, err := s.repo.List(txCtx, ListRulesFilter{
			UserID:     strings.TrimSpace(in.UserID),
			ActiveOnly: in.ActiveOnly,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return err
		}
		rules = resultRules
		nextToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &ListRulesResult{Rules: rules, NextPageToken: nextToken}, nil
}

func (s *Service) ensureNoOtherActiveRule(ctx context.Context, userID, selfID string) error {
	existing, err := s.repo.FindActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil
		}
		return err
	}
	if existing != nil && existing.ID != selfID {
		return ErrActiveRuleExists
	}
	return nil
}

func (s *Service) ensureUserExists(ctx context.Context, userID string) error {
	if s.users == nil {
		return nil
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return fmt.Errorf("user_id %s: %w", userID, ErrInvalidUserID)
		}
		return err
	}
	return nil
}

func (s *Service) normalizeManager(ctx context.Context, userID string, raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}

	id := strings.TrimSpace(*raw)
	if id == userID {
		return nil, fmt.Errorf("manager_id: %w", ErrInvalidManager)
	}

	if s.users != nil {
		manager, err := s.users.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return nil, fmt.Errorf("manager_id %s: %w", id, ErrInvalidManager)
			}
			return nil, err
		}
		if !manager.IsActive() {
			return nil, fmt.Errorf("manager_id %s: %w", id, ErrInvalidManager)
		}
	}

	return &id, nil
}

// resolveApprovers は入力を検証し、ユーザー台帳が利用できる場合は名前・メール・権限を台帳の値で補完します。
func (s *Service) resolveApprovers(ctx context.Context, ownerID string, inputs []ApproverInput) ([]Approver, error) {
	approvers := make([]Approver, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))

	for i, in := range inputs {
		id := strings.TrimSpace(in.UserID)
		if id == "" {
			return nil, fmt.Errorf("approvers[%d].user_id: %w", i, ErrInvalidApprover)
		}
		if id == ownerID {
			return nil, fmt.Errorf("approvers[%d]: cannot approve own expenses: %w", i, ErrInvalidApprover)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("approvers[%d] %s: %w", i, id, ErrDuplicateApprover)
		}
		seen[id] = struct{}{}

		approver := Approver{
			UserID:   id,
			Name:     strings.TrimSpace(in.Name),
			Email:    strings.ToLower(strings.TrimSpace(in.Email)),
			Role:     strings.TrimSpace(in.Role),
			Required: in.Required,
		}

		if s.users != nil {
			u, err := s.users.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, user.ErrUserNotFound) {
					return nil, fmt.Errorf("approvers[%d] %s: %w", i, id, ErrInvalidApprover)
				}
				return nil, err
			}
			if !u.IsActive() {
				return nil, fmt.Errorf("approvers[%d] %s is inactive: %w", i, id, ErrInvalidApprover)
			}
			approver.Name = u.Name
			approver.Email = u.Email
			approver.Role = string(u.Role)
		}

		if approver.Name == "" {
			return nil, fmt.Errorf("approvers[%d].name: %w", i, ErrInvalidApprover)
		}

		approvers = append(approvers, approver)
	}

	return approvers, nil
}

func normalizeDescription(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidDescription
	}
	return trimmed, nil
}

func validatePercentage(pct int) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercentage
	}
	return nil
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
