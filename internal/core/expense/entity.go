package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status は経費のライフサイクル上の状態です。
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// IsTerminal は以降の承認操作を受け付けない状態かどうかを返します。
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ApproverStatus は承認者ごとの判断状態です。
type ApproverStatus string

const (
	ApproverPending  ApproverStatus = "pending"
	ApproverApproved ApproverStatus = "approved"
	ApproverRejected ApproverStatus = "rejected"
)

// Action は承認履歴に記録される操作です。
type Action string

const (
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
)

// SystemApprover は自動承認時に履歴へ記録される承認者名です。
const SystemApprover = "system"

// Approver は提出時点でルールから複製された承認者です。
type Approver struct {
	UserID    string
	Name      string
	Email     string
	Role      string
	Required  bool
	Status    ApproverStatus
	DecidedAt *time.Time
}

// HistoryEntry は承認履歴の 1 件です。
type HistoryEntry struct {
	ApproverID string
	Approver   string
	Action     Action
	Note       string
	Timestamp  time.Time
}

// Expense は経費申請エンティティです。
//
// Approvers と IsSequential / MinimumApprovalPercentage / RuleID は提出時の
// スナップショットで、以降のルール変更の影響を受けません。
type Expense struct {
	ID            string
	EmployeeID    string
	EmployeeName  string
	EmployeeEmail string
	Description   string
	Category      string
	Amount        decimal.Decimal
	Currency      string
	ExpenseDate   time.Time
	PaidBy        string
	Remarks       string
	Status        Status

	RuleID                    string
	Approvers                 []Approver
	IsSequential              bool
	MinimumApprovalPercentage int
	ApprovalHistory           []HistoryEntry

	SubmittedAt *time.Time
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// Clone は e のディープコピーを返します。
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Approvers != nil {
		clone.Approvers = make([]Approver, len(e.Approvers))
		for i, a := range e.Approvers {
			a.DecidedAt = cloneTime(a.DecidedAt)
			clone.Approvers[i] = a
		}
	}
	if e.ApprovalHistory != nil {
		clone.ApprovalHistory = append([]HistoryEntry(nil), e.ApprovalHistory...)
	}
	clone.SubmittedAt = cloneTime(e.SubmittedAt)
	clone.ApprovedAt = cloneTime(e.ApprovedAt)
	clone.RejectedAt = cloneTime(e.RejectedAt)
	return &clone
}

// IndexOfApprover は userID に一致する承認者の位置を返します。見つからない場合は -1 です。
func (e *Expense) IndexOfApprover(userID string) int {
	for i, a := range e.Approvers {
		if a.UserID == userID {
			return i
		}
	}
	return -1
}

// ActionableApprovers は現在判断できる承認者の位置を返します。
// 順次承認では先頭の未判断者のみ、並行承認では未判断者全員です。
func (e *Expense) ActionableApprovers() []int {
	if e.Status != StatusSubmitted {
		return nil
	}
	var idx []int
	for i, a := range e.Approvers {
		if a.Status != ApproverPending {
			continue
		}
		idx = append(idx, i)
		if e.IsSequential {
			break
		}
	}
	return idx
}

// IsActionableBy は userID が現在この経費を判断できるかどうかを返します。
func (e *Expense) IsActionableBy(userID string) bool {
	for _, i := range e.ActionableApprovers() {
		if e.Approvers[i].UserID == userID {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
