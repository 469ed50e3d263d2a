package expense

import "context"

// Repository は経費永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, expense *Expense) (*Expense, error)
	// Update は保存済みの Version が expense.Version と一致する場合のみ更新し、Version を 1 進めます。
	// 一致しない場合は ErrStaleExpense を返します。
	Update(ctx context.Context, expense *Expense) (*Expense, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Expense, error)
	List(ctx context.Context, filter ListExpensesFilter) ([]*Expense, string, error)
	// ListSubmittedByApprover は approverID が未判断の承認者として含まれる提出済み経費を返します。
	ListSubmittedByApprover(ctx context.Context, approverID string) ([]*Expense, error)
}

// ListExpensesFilter は一覧取得用フィルタです。
type ListExpensesFilter struct {
	EmployeeID string
	Status     *Status
	Limit      int
	Offset     int
}
