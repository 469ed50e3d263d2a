// Package workflow は経費の提出・承認・却下を承認エンジンと永続化の間で調整します。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ogurasousui/codex-expense-approval/internal/core/approval"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

// ErrManagerUnresolved は上長承認が必要なルールで上長を特定できない場合に返却されます。
var ErrManagerUnresolved = errors.New("manager approval required but manager could not be resolved")

const maxAttempts = 3

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
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// RuleFinder は従業員に適用される有効なルールを返します。rule.Repository が満たします。
type RuleFinder interface {
	FindActiveByUserID(ctx context.Context, userID string) (*rule.Rule, error)
}

// UserFinder は上長の解決に使うユーザー参照です。user.Repository が満たします。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*user.User, error)
	FindByName(ctx context.Context, name string) (*user.User, error)
}

// UseCase はワークフローの公開インターフェースです。
type UseCase interface {
	SubmitExpense(ctx context.Context, in SubmitExpenseInput) (*expense.Expense, error)
	ApproveExpense(ctx context.Context, in DecisionInput) (*expense.Expense, error)
	RejectExpense(ctx context.Context, in DecisionInput) (*expense.Expense, error)
}

// SubmitExpenseInput は提出時の入力です。
type SubmitExpenseInput struct {
	ID string
}

// DecisionInput は承認・却下時の入力です。
type DecisionInput struct {
	ID         string
	ApproverID string
	Note       string
}

// Service はワークフローのユースケースをまとめます。
type Service struct {
	expenses expense.Repository
	rules    RuleFinder
	users    UserFinder
	engine   *approval.Engine
	clock    Clock
	tx       TransactionManager
	logger   zerolog.Logger
}

// NewService は Service を生成します。engine が nil の場合は既定ポリシーのエンジンを使います。
func NewService(expenses expense.Repository, rules RuleFinder, users UserFinder, engine *approval.Engine, clock Clock, tx TransactionManager, logger zerolog.Logger) *Service {
	if engine == nil {
		engine = approval.NewEngine(approval.Policy{})
	}
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{
		expenses: expenses,
		rules:    rules,
		users:    users,
		engine:   engine,
		clock:    clock,
		tx:       tx,
		logger:   logger,
	}
}

// SubmitExpense は下書きを提出し、その時点の有効なルールから承認者を確定します。
func (s *Service) SubmitExpense(ctx context.Context, in SubmitExpenseInput) (*expense.Expense, error) {
	return s.transition(ctx, "submit", in.ID, "", func(txCtx context.Context, current *expense.Expense) (*expense.Expense, error) {
		if err := s.ensureEmployee(txCtx, current.EmployeeID); err != nil {
			return nil, err
		}

		r, err := s.activeRule(txCtx, current.EmployeeID)
		if err != nil {
			return nil, err
		}
		r, err = s.withActiveApprovers(txCtx, r)
		if err != nil {
			return nil, err
		}

		var manager *approval.Manager
		if r != nil && r.IsActive && r.IsManagerApprover {
			manager, err = s.resolveManager(txCtx, r, current.EmployeeID)
			if err != nil {
				return nil, err
			}
		}

		return s.engine.Submit(current, r, manager, s.clock.Now())
	})
}

// ApproveExpense は承認者の承認を記録します。
func (s *Service) ApproveExpense(ctx context.Context, in DecisionInput) (*expense.Expense, error) {
	approverID := strings.TrimSpace(in.ApproverID)
	if approverID == "" {
		return nil, expense.ErrInvalidApprover
	}
	return s.transition(ctx, "approve", in.ID, approverID, func(_ context.Context, current *expense.Expense) (*expense.Expense, error) {
		return s.engine.Approve(current, approverID, in.Note, s.clock.Now())
	})
}

// RejectExpense は承認者の却下を記録します。
func (s *Service) RejectExpense(ctx context.Context, in DecisionInput) (*expense.Expense, error) {
	approverID := strings.TrimSpace(in.ApproverID)
	if approverID == "" {
		return nil, expense.ErrInvalidApprover
	}
	return s.transition(ctx, "reject", in.ID, approverID, func(_ context.Context, current *expense.Expense) (*expense.Expense, error) {
		return s.engine.Reject(current, approverID, in.Note, s.clock.Now())
	})
}

type decideFunc func(ctx context.Context, current *expense.Expense) (*expense.Expense, error)

// transition は最新の経費を読み込み decide の結果を版付きで保存します。
// 競合した場合は読み込みからやり直します。
func (s *Service) transition(ctx context.Context, op, id, actor string, decide decideFunc) (*expense.Expense, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id: %w", expense.ErrInvalidID)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			from   expense.Status
			result *expense.Expense
		)

		err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
			current, err := s.expenses.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			from = current.Status

			next, err := decide(txCtx, current)
			if err != nil {
				return err
			}

			saved, err := s.expenses.Update(txCtx, next)
			if err != nil {
				return err
			}
			result = saved
			return nil
		})
		if err == nil {
			s.logger.Info().
				Str("op", op).
				Str("expense_id", result.ID).
				Str("from", string(from)).
				Str("to", string(result.Status)).
				Str("actor", actor).
				Int("attempt", attempt).
				Msg("expense transitioned")
			return result, nil
		}

		if !errors.Is(err, expense.ErrStaleExpense) {
			s.logger.Debug().Err(err).Str("op", op).Str("expense_id", id).Str("actor", actor).Msg("expense transition refused")
			return nil, err
		}

		lastErr = err
		s.logger.Warn().Str("op", op).Str("expense_id", id).Int("attempt", attempt).Msg("stale expense write, retrying")
	}

	return nil, fmt.Errorf("%s expense %s after %d attempts: %w", op, id, maxAttempts, lastErr)
}

func (s *Service) activeRule(ctx context.Context, employeeID string) (*rule.Rule, error) {
	if s.rules == nil {
		return nil, nil
	}
	r, err := s.rules.FindActiveByUserID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, rule.ErrRuleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ensureEmployee は提出者がユーザーとして登録されていることを確認します。
func (s *Service) ensureEmployee(ctx context.Context, employeeID string) error {
	if s.users == nil {
		return nil
	}
	if _, err := s.users.FindByID(ctx, employeeID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return fmt.Errorf("employee %s: %w", employeeID, err)
		}
		return err
	}
	return nil
}

// withActiveApprovers は無効化または削除されたユーザーを除いたルールの複製を返します。
func (s *Service) withActiveApprovers(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	if r == nil || s.users == nil || len(r.Approvers) == 0 {
		return r, nil
	}
	filtered := r.Clone()
	filtered.Approvers = filtered.Approvers[:0]
	for _, a := range r.Approvers {
		if a.UserID == "" {
			filtered.Approvers = append(filtered.Approvers, a)
			continue
		}
		u, err := s.users.FindByID(ctx, a.UserID)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				s.logger.Debug().Str("rule_id", r.ID).Str("approver_id", a.UserID).Msg("rule approver no longer exists, skipped")
				continue
			}
			return nil, err
		}
		if !u.IsActive() {
			s.logger.Debug().Str("rule_id", r.ID).Str("approver_id", a.UserID).Msg("rule approver inactive, skipped")
			continue
		}
		filtered.Approvers = append(filtered.Approvers, a)
	}
	return filtered, nil
}

// resolveManager はルールの上長指定、従業員の上長 ID、従業員の上長名の順に上長を解決します。
// 無効化されたユーザーは候補から外します。
func (s *Service) resolveManager(ctx context.Context, r *rule.Rule, employeeID string) (*approval.Manager, error) {
	if r.ManagerID != nil && *r.ManagerID != "" {
		m, err := s.lookupByID(ctx, *r.ManagerID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	if s.users == nil {
		return nil, ErrManagerUnresolved
	}

	employee, err := s.users.FindByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, fmt.Errorf("employee %s: %w", employeeID, ErrManagerUnresolved)
		}
		return nil, err
	}

	if employee.ManagerID != nil && *employee.ManagerID != "" {
		m, err := s.lookupByID(ctx, *employee.ManagerID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	if name := strings.TrimSpace(employee.ManagerName); name != "" {
		u, err := s.users.FindByName(ctx, name)
		if err != nil && !errors.Is(err, user.ErrUserNotFound) {
			return nil, err
		}
		if u != nil && u.ID != employeeID && u.IsActive() {
			return managerFromUser(u), nil
		}
	}

	return nil, fmt.Errorf("employee %s: %w", employeeID, ErrManagerUnresolved)
}

func (s *Service) lookupByID(ctx context.Context, id string) (*approval.Manager, error) {
	if s.users == nil {
		return &approval.Manager{UserID: id}, nil
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, nil
	}
	return managerFromUser(u), nil
}

func managerFromUser(u *user.User) *approval.Manager {
	return &approval.Manager{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   string(u.Role),
	}
}
