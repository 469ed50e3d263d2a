package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

// 保存形式はブラウザ版ストアと同じ camelCase のキーで、時刻は RFC 3339、金額は文字列です。

type userRecord struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	ManagerID   *string   `json:"managerId,omitempty"`
	ManagerName string    `json:"managerName,omitempty"`
	Department  string    `json:"department,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Status      string    `json:"status"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toUserRecord(u *user.User) userRecord {
	return userRecord{
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

func (r userRecord) toDomain() *user.User {
	status := user.Status(r.Status)
	if status == "" {
		status = user.StatusInactive
		if r.IsActive {
			status = user.StatusActive
		}
	}
	return &user.User{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		Role:        user.Role(r.Role),
		ManagerID:   r.ManagerID,
		ManagerName: r.ManagerName,
		Department:  r.Department,
		Phone:       r.Phone,
		Status:      status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type ruleApproverRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Required bool   `json:"required"`
}

type ruleRecord struct {
	ID                        string               `json:"id"`
	UserID                    string               `json:"userId"`
	Description               string               `json:"description"`
	ManagerID                 *string              `json:"managerId,omitempty"`
	IsManagerApprover         bool                 `json:"isManagerApprover"`
	Approvers                 []ruleApproverRecord `json:"approvers"`
	IsSequential              bool                 `json:"isSequential"`
	MinimumApprovalPercentage int                  `json:"minimumApprovalPercentage"`
	IsActive                  bool                 `json:"isActive"`
	CreatedAt                 time.Time            `json:"createdAt"`
	UpdatedAt                 time.Time            `json:"updatedAt"`
}

func toRuleRecord(r *rule.Rule) ruleRecord {
	approvers := make([]ruleApproverRecord, 0, len(r.Approvers))
	for _, a := range r.Approvers {
		approvers = append(approvers, ruleApproverRecord{
			ID:       a.UserID,
			Name:     a.Name,
			Email:    a.Email,
			Role:     a.Role,
			Required: a.Required,
		})
	}
	return ruleRecord{
		ID:                        r.ID,
		UserID:                    r.UserID,
		Description:               r.Description,
		ManagerID:                 r.ManagerID,
		IsManagerApprover:         r.IsManagerApprover,
		Approvers:                 approvers,
		IsSequential:              r.IsSequential,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		IsActive:                  r.IsActive,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
}

func (r ruleRecord) toDomain() *rule.Rule {
	var approvers []rule.Approver
	if len(r.Approvers) > 0 {
		approvers = make([]rule.Approver, 0, len(r.Approvers))
		for _, a := range r.Approvers {
			approvers = append(approvers, rule.Approver{
				UserID:   a.ID,
				Name:     a.Name,
				Email:    a.Email,
				Role:     a.Role,
				Required: a.Required,
			})
		}
	}
	return &rule.Rule{
		ID:                        r.ID,
		UserID:                    r.UserID,
		Description:               r.Description,
		ManagerID:                 r.ManagerID,
		IsManagerApprover:         r.IsManagerApprover,
		Approvers:                 approvers,
		IsSequential:              r.IsSequential,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		IsActive:                  r.IsActive,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
}

type expenseApproverRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	Required  bool       `json:"required"`
	Status    string     `json:"status"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

type historyRecord struct {
	ApproverID string    `json:"approverId,omitempty"`
	Approver   string    `json:"approver"`
	Action     string    `json:"action"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type expenseRecord struct {
	ID                        string                  `json:"id"`
	EmployeeID                string                  `json:"employeeId"`
	EmployeeName              string                  `json:"employeeName"`
	EmployeeEmail             string                  `json:"employeeEmail"`
	Description               string                  `json:"description"`
	Category                  string                  `json:"category"`
	Amount                    decimal.Decimal         `json:"amount"`
	Currency                  string                  `json:"currency"`
	ExpenseDate               time.Time               `json:"expenseDate"`
	PaidBy                    string                  `json:"paidBy"`
	Remarks                   string                  `json:"remarks"`
	Status                    string                  `json:"status"`
	RuleID                    string                  `json:"ruleId,omitempty"`
	Approvers                 []expenseApproverRecord `json:"approvers"`
	IsSequential              bool                    `json:"isSequential"`
	MinimumApprovalPercentage int                     `json:"minimumApprovalPercentage"`
	ApprovalHistory           []historyRecord         `json:"approvalHistory"`
	SubmittedAt               *time.Time              `json:"submittedAt"`
	ApprovedAt                *time.Time              `json:"approvedAt"`
	RejectedAt                *time.Time              `json:"rejectedAt"`
	CreatedAt                 time.Time               `json:"createdAt"`
	UpdatedAt                 time.Time               `json:"updatedAt"`
	Version                   int64                   `json:"version"`
}

func toExpenseRecord(e *expense.Expense) expenseRecord {
	rec := expenseRecord{
		ID:                        e.ID,
		EmployeeID:                e.EmployeeID,
		EmployeeName:              e.EmployeeName,
		EmployeeEmail:             e.EmployeeEmail,
		Description:               e.Description,
		Category:                  e.Category,
		Amount:                    e.Amount,
		Currency:                  e.Currency,
		ExpenseDate:               e.ExpenseDate,
		PaidBy:                    e.PaidBy,
		Remarks:                   e.Remarks,
		Status:                    string(e.Status),
		RuleID:                    e.RuleID,
		IsSequential:              e.IsSequential,
		MinimumApprovalPercentage: e.MinimumApprovalPercentage,
		SubmittedAt:               e.SubmittedAt,
		ApprovedAt:                e.ApprovedAt,
		RejectedAt:                e.RejectedAt,
		CreatedAt:                 e.CreatedAt,
		UpdatedAt:                 e.UpdatedAt,
		Version:                   e.Version,
	}
	if e.Approvers != nil {
		rec.Approvers = make([]expenseApproverRecord, 0, len(e.Approvers))
		for _, a := range e.Approvers {
			rec.Approvers = append(rec.Approvers, expenseApproverRecord{
				ID:        a.UserID,
				Name:      a.Name,
				Email:     a.Email,
				Role:      a.Role,
				Required:  a.Required,
				Status:    string(a.Status),
				DecidedAt: a.DecidedAt,
			})
		}
	}
	if e.ApprovalHistory != nil {
		rec.ApprovalHistory = make([]historyRecord, 0, len(e.ApprovalHistory))
		for _, h := range e.ApprovalHistory {
			rec.ApprovalHistory = append(rec.ApprovalHistory, historyRecord{
				ApproverID: h.ApproverID,
				Approver:   h.Approver,
				Action:     string(h.Action),
				Note:       h.Note,
				Timestamp:  h.Timestamp,
			})
		}
	}
	return rec
}

func (r expenseRecord) toDomain() *expense.Expense {
	e := &expense.Expense{
		ID:                        r.ID,
		EmployeeID:                r.EmployeeID,
		EmployeeName:              r.EmployeeName,
		EmployeeEmail:             r.EmployeeEmail,
		Description:               r.Description,
		Category:                  r.Category,
		Amount:                    r.Amount,
		Currency:                  r.Currency,
		ExpenseDate:               r.ExpenseDate,
		PaidBy:                    r.PaidBy,
		Remarks:                   r.Remarks,
		Status:                    expense.Status(r.Status),
		RuleID:                    r.RuleID,
		IsSequential:              r.IsSequential,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		SubmittedAt:               r.SubmittedAt,
		ApprovedAt:                r.ApprovedAt,
		RejectedAt:                r.RejectedAt,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
		Version:                   r.Version,
	}
	if r.Approvers != nil {
		e.Approvers = make([]expense.Approver, 0, len(r.Approvers))
		for _, a := range r.Approvers {
			e.Approvers = append(e.Approvers, expense.Approver{
				UserID:    a.ID,
				Name:      a.Name,
				Email:     a.Email,
				Role:      a.Role,
				Required:  a.Required,
				Status:    expense.ApproverStatus(a.Status),
				DecidedAt: a.DecidedAt,
			})
		}
	}
	if r.ApprovalHistory != nil {
		e.ApprovalHistory = make([]expense.HistoryEntry, 0, len(r.ApprovalHistory))
		for _, h := range r.ApprovalHistory {
			e.ApprovalHistory = append(e.ApprovalHistory, expense.HistoryEntry{
				ApproverID: h.ApproverID,
				Approver:   h.Approver,
				Action:     expense.Action(h.Action),
				Note:       h.Note,
				Timestamp:  h.Timestamp,
			})
		}
	}
	return e
}
