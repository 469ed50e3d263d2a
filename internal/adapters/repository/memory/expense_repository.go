package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
)

// ExpenseRepository は expense.Repository のメモリ実装です。
type ExpenseRepository struct {
	t *table[expenseRecord]
}

// NewExpenseRepository は空の ExpenseRepository を生成します。
func NewExpenseRepository() *ExpenseRepository {
	return &ExpenseRepository{t: newTable[expenseRecord]("expense")}
}

// Create は経費を保存します。ID が空の場合は採番し、Version が 0 の場合は 1 にします。
func (r *ExpenseRepository) Create(_ context.Context, e *expense.Expense) (*expense.Expense, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	rec := toExpenseRecord(e)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	if _, ok, err := r.t.getLocked(rec.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, expense.ErrStaleExpense
	}
	if err := r.t.putLocked(rec.ID, rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Update は保存済みの版が一致する場合に経費を置き換え、版を進めます。
func (r *ExpenseRepository) Update(_ context.Context, e *expense.Expense) (*expense.Expense, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	stored, ok, err := r.t.getLocked(e.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, expense.ErrExpenseNotFound
	}
	if stored.Version != e.Version {
		return nil, expense.ErrStaleExpense
	}

	rec := toExpenseRecord(e)
	rec.Version = stored.Version + 1
	if err := r.t.putLocked(rec.ID, rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Delete は経費を削除します。
func (r *ExpenseRepository) Delete(_ context.Context, id string) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	if !r.t.removeLocked(id) {
		return expense.ErrExpenseNotFound
	}
	return nil
}

// FindByID は ID で経費を取得します。
func (r *ExpenseRepository) FindByID(_ context.Context, id string) (*expense.Expense, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	rec, ok, err := r.t.getLocked(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, expense.ErrExpenseNotFound
	}
	return rec.toDomain(), nil
}

// List はフィルタ条件で経費一覧を新しい順に返します。
func (r *ExpenseRepository) List(_ context.Context, filter expense.ListExpensesFilter) ([]*expense.Expense, string, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	var expenses []*expense.Expense
	err := r.t.scanLocked(func(rec expenseRecord) bool {
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			return true
		}
		if filter.Status != nil && expense.Status(rec.Status) != *filter.Status {
			return true
		}
		expenses = append(expenses, rec.toDomain())
		return true
	})
	if err != nil {
		return nil, "", err
	}

	items, next := page(expenses, filter.Limit, filter.Offset)
	return items, next, nil
}

// ListSubmittedByApprover は approverID が未判断のまま含まれる提出済み経費を返します。
func (r *ExpenseRepository) ListSubmittedByApprover(_ context.Context, approverID string) ([]*expense.Expense, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	var expenses []*expense.Expense
	err := r.t.scanLocked(func(rec expenseRecord) bool {
		if expense.Status(rec.Status) != expense.StatusSubmitted {
			return true
		}
		for _, a := range rec.Approvers {
			if a.ID == approverID && expense.ApproverStatus(a.Status) == expense.ApproverPending {
				expenses = append(expenses, rec.toDomain())
				break
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}
