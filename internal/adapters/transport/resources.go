package transport

import (
	"time"

	"github.com/ogurasousui/codex-expense-approval/internal/core/approval"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

// DateLayout は経費日付の表現です。
const DateLayout = "2006-01-02"

// Approver は経費に確定した承認者です。
type Approver struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	Required  bool       `json:"required"`
	Status    string     `json:"status"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

// HistoryEntry は承認履歴の 1 件です。
type HistoryEntry struct {
	ApproverID string    `json:"approverId,omitempty"`
	Approver   string    `json:"approver"`
	Action     string    `json:"action"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Progress は承認の進捗です。
type Progress struct {
	Approved int `json:"approved"`
	Total    int `json:"total"`
}

// Expense は経費の外部表現です。
type Expense struct {
	ID                        string         `json:"id"`
	EmployeeID                string         `json:"employeeId"`
	EmployeeName              string         `json:"employeeName"`
	EmployeeEmail             string         `json:"employeeEmail"`
	Description               string         `json:"description"`
	Category                  string         `json:"category"`
	Amount                    string         `json:"amount"`
	Currency                  string         `json:"currency"`
	ExpenseDate               string         `json:"expenseDate"`
	PaidBy                    string         `json:"paidBy"`
	Remarks                   string         `json:"remarks"`
	Status                    string         `json:"status"`
	RuleID                    string         `json:"ruleId,omitempty"`
	Approvers                 []Approver     `json:"approvers"`
	IsSequential              bool           `json:"isSequential"`
	MinimumApprovalPercentage int            `json:"minimumApprovalPercentage"`
	ApprovalHistory           []HistoryEntry `json:"approvalHistory"`
	Progress                  Progress       `json:"progress"`
	AwaitingApproverIDs       []string       `json:"awaitingApproverIds"`
	SubmittedAt               *time.Time     `json:"submittedAt"`
	ApprovedAt                *time.Time     `json:"approvedAt"`
	RejectedAt                *time.Time     `json:"rejectedAt"`
	CreatedAt                 time.Time      `json:"createdAt"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
	Version                   int64          `json:"version"`
}

// ExpenseList は経費一覧のレスポンスです。
type ExpenseList struct {
	Expenses      []Expense `json:"expenses"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// Stats は経費集計のレスポンスです。
type Stats struct {
	Currency       string `json:"currency"`
	TotalExpenses  int    `json:"totalExpenses"`
	TotalAmount    string `json:"totalAmount"`
	ApprovedAmount string `json:"approvedAmount"`
	PendingAmount  string `json:"pendingAmount"`
	DraftAmount    string `json:"draftAmount"`
	RejectedAmount string `json:"rejectedAmount"`
	ApprovedCount  int    `json:"approvedCount"`
	PendingCount   int    `json:"pendingCount"`
	DraftCount     int    `json:"draftCount"`
	RejectedCount  int    `json:"rejectedCount"`
}

// RuleApprover はルールの承認者です。
type RuleApprover struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Required bool   `json:"required"`
}

// Rule は承認ルールの外部表現です。
type Rule struct {
	ID                        string         `json:"id"`
	UserID                    string         `json:"userId"`
	Description               string         `json:"description"`
	ManagerID                 *string        `json:"managerId"`
	IsManagerApprover         bool           `json:"isManagerApprover"`
	Approvers                 []RuleApprover `json:"approvers"`
	IsSequential              bool           `json:"isSequential"`
	MinimumApprovalPercentage int            `json:"minimumApprovalPercentage"`
	IsActive                  bool           `json:"isActive"`
	CreatedAt                 time.Time      `json:"createdAt"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
}

// RuleList はルール一覧のレスポンスです。
type RuleList struct {
	Rules         []Rule `json:"rules"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// User はユーザーの外部表現です。
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	ManagerID   *string   `json:"managerId"`
	ManagerName string    `json:"managerName,omitempty"`
	Department  string    `json:"department,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Status      string    `json:"status"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserList はユーザー一覧のレスポンスです。
type UserList struct {
	Users         []User `json:"users"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// FromExpense は経費を外部表現に変換します。
func FromExpense(e *expense.Expense) Expense {
	approved, total := approval.Progress(e)
	out := Expense{
		ID:                        e.ID,
		EmployeeID:                e.EmployeeID,
		EmployeeName:              e.EmployeeName,
		EmployeeEmail:             e.EmployeeEmail,
		Description:               e.Description,
		Category:                  e.Category,
		Amount:                    e.Amount.String(),
		Currency:                  e.Currency,
		ExpenseDate:               e.ExpenseDate.Format(DateLayout),
		PaidBy:                    e.PaidBy,
		Remarks:                   e.Remarks,
		Status:                    string(e.Status),
		RuleID:                    e.RuleID,
		Approvers:                 make([]Approver, 0, len(e.Approvers)),
		IsSequential:              e.IsSequential,
		MinimumApprovalPercentage: e.MinimumApprovalPercentage,
		ApprovalHistory:           make([]HistoryEntry, 0, len(e.ApprovalHistory)),
		Progress:                  Progress{Approved: approved, Total: total},
		AwaitingApproverIDs:       []string{},
		SubmittedAt:               e.SubmittedAt,
		ApprovedAt:                e.ApprovedAt,
		RejectedAt:                e.RejectedAt,
		CreatedAt:                 e.CreatedAt,
		UpdatedAt:                 e.UpdatedAt,
		Version:                   e.Version,
	}
	for _, a := range e.Approvers {
		out.Approvers = append(out.Approvers, Approver{
			ID:        a.UserID,
			Name:      a.Name,
			Email:     a.Email,
			Role:      a.Role,
			Required:  a.Required,
			Status:    string(a.Status),
			DecidedAt: a.DecidedAt,
		})
	}
	for _, h := range e.ApprovalHistory {
		out.ApprovalHistory = append(out.ApprovalHistory, HistoryEntry{
			ApproverID: h.ApproverID,
			Approver:   h.Approver,
			Action:     string(h.Action),
			Note:       h.Note,
			Timestamp:  h.Timestamp,
		})
	}
	for _, a := range approval.PendingApprovers(e) {
		out.AwaitingApproverIDs = append(out.AwaitingApproverIDs, a.UserID)
	}
	return out
}

// FromExpenses は経費の一覧を外部表現に変換します。
func FromExpenses(expenses []*expense.Expense, nextPageToken string) ExpenseList {
	out := ExpenseList{Expenses: make([]Expense, 0, len(expenses)), NextPageToken: nextPageToken}
	for _, e := range expenses {
		out.Expenses = append(out.Expenses, FromExpense(e))
	}
	return out
}

// FromStats は集計結果を外部表現に変換します。金額は小数第 2 位で表します。
func FromStats(s *expense.Stats) Stats {
	return Stats{
		Currency:       s.Currency,
		TotalExpenses:  s.TotalExpenses,
		TotalAmount:    s.TotalAmount.StringFixed(2),
		ApprovedAmount: s.ApprovedAmount.StringFixed(2),
		PendingAmount:  s.PendingAmount.StringFixed(2),
		DraftAmount:    s.DraftAmount.StringFixed(2),
		RejectedAmount: s.RejectedAmount.StringFixed(2),
		ApprovedCount:  s.ApprovedCount,
		PendingCount:   s.PendingCount,
		DraftCount:     s.DraftCount,
		RejectedCount:  s.RejectedCount,
	}
}

// FromRule はルールを外部表現に変換します。
func FromRule(r *rule.Rule) Rule {
	out := Rule{
		ID:                        r.ID,
		UserID:                    r.UserID,
		Description:               r.Description,
		ManagerID:                 r.ManagerID,
		IsManagerApprover:         r.IsManagerApprover,
		Approvers:                 make([]RuleApprover, 0, len(r.Approvers)),
		IsSequential:              r.IsSequential,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		IsActive:                  r.IsActive,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
	for _, a := range r.Approvers {
		out.Approvers = append(out.Approvers, RuleApprover{ID: a.UserID, Name: a.Name, Email: a.Email, Role: a.Role, Required: a.Required})
	}
	return out
}

// FromRules はルールの一覧を外部表現に変換します。
func FromRules(rules []*rule.Rule, nextPageToken string) RuleList {
	out := RuleList{Rules: make([]Rule, 0, len(rules)), NextPageToken: nextPageToken}
	for _, r := range rules {
		out.Rules = append(out.Rules, FromRule(r))
	}
	return out
}

// FromUser はユーザーを外部表現に変換します。
func FromUser(u *user.User) User {
	return User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		ManagerID:   u.ManagerID,
		ManagerName: u.ManagerName,
		Department:  u.Department,
		Phone:       u.Phone,
		Status:      string(u.Status),
		IsActive:    u.IsActive(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// FromUsers はユーザーの一覧を外部表現に変換します。
func FromUsers(users []*user.User, nextPageToken string) UserList {
	out := UserList{Users: make([]User, 0, len(users)), NextPageToken: nextPageToken}
	for _, u := range users {
		out.Users = append(out.Users, FromUser(u))
	}
	return out
}
