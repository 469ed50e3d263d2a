package expense

import "errors"

var (
	// ErrExpenseNotFound は経費が存在しない場合に返却されます。
	ErrExpenseNotFound = errors.New("expense not found")
	// ErrInvalidTransition は現在の状態で許可されない操作の場合に返却されます。
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleExpense は保存済みの版が更新対象と一致しない場合に返却されます。
	ErrStaleExpense = errors.New("expense was modified concurrently")
	// ErrInvalidID は ID が不正な場合に返却されます。
	ErrInvalidID = errors.New("invalid expense id")
	// ErrInvalidEmployee は申請者の指定が不正な場合に返却されます。
	ErrInvalidEmployee = errors.New("invalid employee")
	// ErrInvalidDescription は説明が空の場合に返却されます。
	ErrInvalidDescription = errors.New("invalid description")
	// ErrInvalidCategory はカテゴリが空の場合に返却されます。
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidAmount は金額が正でないか、小数第 4 位を超える場合に返却されます。
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidCurrency は通貨コードが ISO 4217 形式でない場合に返却されます。
	ErrInvalidCurrency = errors.New("invalid currency code")
	// ErrUnsupportedCurrency は通貨換算が扱えない通貨コードの場合に返却されます。
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrInvalidExpenseDate は利用日が未指定の場合に返却されます。
	ErrInvalidExpenseDate = errors.New("invalid expense date")
	// ErrInvalidStatus はステータスが不正な場合に返却されます。
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidApprover は承認者 ID が不正な場合に返却されます。
	ErrInvalidApprover = errors.New("invalid approver id")
	// ErrInvalidPageSize は一覧取得時のページサイズが不正な場合に返却されます。
	ErrInvalidPageSize = errors.New("invalid page size")
	// ErrInvalidPageToken は一覧取得時のページトークンが不正な場合に返却されます。
	ErrInvalidPageToken = errors.New("invalid page token")
)
