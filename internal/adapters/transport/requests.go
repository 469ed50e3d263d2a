package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
)

// OptionalString はキーの省略と null を区別する文字列です。
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON はキーが存在する場合にのみ呼ばれ、Set を立てます。
func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// CreateExpenseRequest は経費作成の入力です。
type CreateExpenseRequest struct {
	EmployeeID    string          `json:"employeeId"`
	EmployeeName  string          `json:"employeeName"`
	EmployeeEmail string          `json:"employeeEmail"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExpenseDate   string          `json:"expenseDate"`
	PaidBy        string          `json:"paidBy"`
	Remarks       string          `json:"remarks"`
}

// ToInput はユースケースの入力に変換します。
func (r CreateExpenseRequest) ToInput() (expense.CreateExpenseInput, error) {
	date, err := ParseDate(r.ExpenseDate)
	if err != nil {
		return expense.CreateExpenseInput{}, err
	}
	return expense.CreateExpenseInput{
		EmployeeID:    r.EmployeeID,
		EmployeeName:  r.EmployeeName,
		EmployeeEmail: r.EmployeeEmail,
		Description:   r.Description,
		Category:      r.Category,
		Amount:        r.Amount,
		Currency:      r.Currency,
		ExpenseDate:   date,
		PaidBy:        r.PaidBy,
		Remarks:       r.Remarks,
	}, nil
}

// UpdateExpenseRequest は下書き更新の入力です。省略したフィールドは変更しません。
type UpdateExpenseRequest struct {
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency"`
	ExpenseDate *string          `json:"expenseDate"`
	PaidBy      *string          `json:"paidBy"`
	Remarks     *string          `json:"remarks"`
}

// ToInput はユースケースの入力に変換します。
func (r UpdateExpenseRequest) ToInput(id string) (expense.UpdateExpenseInput, error) {
	in := expense.UpdateExpenseInput{
		ID:          id,
		Description: r.Description,
		Category:    r.Category,
		Amount:      r.Amount,
		Currency:    r.Currency,
		PaidBy:      r.PaidBy,
		Remarks:     r.Remarks,
	}
	if r.ExpenseDate != nil {
		date, err := ParseDate(*r.ExpenseDate)
		if err != nil {
			return expense.UpdateExpenseInput{}, err
		}
		in.ExpenseDate = &date
	}
	return in, nil
}

// DecisionRequest は承認・却下の入力です。
type DecisionRequest struct {
	ApproverID string `json:"approverId"`
	Note       string `json:"note"`
}

// ToInput はワークフローの入力に変換します。
func (r DecisionRequest) ToInput(id string) workflow.DecisionInput {
	return workflow.DecisionInput{ID: id, ApproverID: r.ApproverID, Note: r.Note}
}

// RuleApproverRequest はルールの承認者指定です。
type RuleApproverRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Required bool   `json:"required"`
}

// CreateRuleRequest はルール作成の入力です。
type CreateRuleRequest struct {
	UserID                    string                `json:"userId"`
	Description               string                `json:"description"`
	ManagerID                 *string               `json:"managerId"`
	IsManagerApprover         bool                  `json:"isManagerApprover"`
	Approvers                 []RuleApproverRequest `json:"approvers"`
	IsSequential              bool                  `json:"isSequential"`
	MinimumApprovalPercentage int                   `json:"minimumApprovalPercentage"`
	IsActive                  *bool                 `json:"isActive"`
}

// ToInput はユースケースの入力に変換します。
func (r CreateRuleRequest) ToInput() rule.CreateRuleInput {
	return rule.CreateRuleInput{
		UserID:                    r.UserID,
		Description:               r.Description,
		ManagerID:                 r.ManagerID,
		IsManagerApprover:         r.IsManagerApprover,
		Approvers:                 toApproverInputs(r.Approvers),
		IsSequential:              r.IsSequential,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		IsActive:                  r.IsActive,
	}
}

// UpdateRuleRequest はルール更新の入力です。managerId に null を指定すると上長指定を解除します。
type UpdateRuleRequest struct {
	Description               *string                `json:"description"`
	ManagerID                 OptionalString         `json:"managerId"`
	IsManagerApprover         *bool                  `json:"isManagerApprover"`
	Approvers                 *[]RuleApproverRequest `json:"approvers"`
	IsSequential              *bool                  `json:"isSequential"`
	MinimumApprovalPercentage *int                   `json:"minimumApprovalPercentage"`
	IsActive                  *bool                  `json:"isActive"`
}

// ToInput はユースケースの入力に変換します。
func (r UpdateRuleRequest) ToInput(id string) rule.UpdateRuleInput {
	in := rule.UpdateRuleInput{
		ID:                        id,
		Description:               r.Description,
		ManagerID:                 r.ManagerID.Value,
		ManagerIDSet:              r.ManagerID.Set,
		IsManagerApprover:         r.IsManagerApprover,
		IsSequential:              r.IsSequential,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		IsActive:                  r.IsActive,
	}
	if r.Approvers != nil {
		approvers := toApproverInputs(*r.Approvers)
		in.Approvers = &approvers
	}
	return in
}

func toApproverInputs(in []RuleApproverRequest) []rule.ApproverInput {
	out := make([]rule.ApproverInput, 0, len(in))
	for _, a := range in {
		out = append(out, rule.ApproverInput{UserID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role, Required: a.Required})
	}
	return out
}

// CreateUserRequest はユーザー作成の入力です。
type CreateUserRequest struct {
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	ManagerID  *string `json:"managerId"`
	Department string  `json:"department"`
	Phone      string  `json:"phone"`
}

// ToInput はユースケースの入力に変換します。
func (r CreateUserRequest) ToInput() user.CreateUserInput {
	return user.CreateUserInput{
		Email:      r.Email,
		Name:       r.Name,
		Role:       user.Role(strings.ToLower(strings.TrimSpace(r.Role))),
		ManagerID:  r.ManagerID,
		Department: r.Department,
		Phone:      r.Phone,
	}
}

// UpdateUserRequest はユーザー更新の入力です。
type UpdateUserRequest struct {
	Name       *string        `json:"name"`
	Role       *string        `json:"role"`
	ManagerID  OptionalString `json:"managerId"`
	Department *string        `json:"department"`
	Phone      *string        `json:"phone"`
	Status     *string        `json:"status"`
}

// ToInput はユースケースの入力に変換します。
func (r UpdateUserRequest) ToInput(id string) user.UpdateUserInput {
	in := user.UpdateUserInput{
		ID:           id,
		Name:         r.Name,
		ManagerID:    r.ManagerID.Value,
		ManagerIDSet: r.ManagerID.Set,
		Department:   r.Department,
		Phone:        r.Phone,
	}
	if r.Role != nil {
		role := user.Role(strings.ToLower(strings.TrimSpace(*r.Role)))
		in.Role = &role
	}
	if r.Status != nil {
		status := user.Status(strings.ToLower(strings.TrimSpace(*r.Status)))
		in.Status = &status
	}
	return in
}

// ParseDate は YYYY-MM-DD または RFC 3339 の日付を UTC の日付に変換します。
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expenseDate %q: %w", raw, expense.ErrInvalidExpenseDate)
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseStatus は経費ステータスのクエリ値を変換します。空の場合は nil です。
func ParseStatus(raw string) (*expense.Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return nil, nil
	}
	status := expense.Status(raw)
	switch status {
	case expense.StatusDraft, expense.StatusSubmitted, expense.StatusApproved, expense.StatusRejected:
		return &status, nil
	default:
		return nil, fmt.Errorf("status %q: %w", raw, expense.ErrInvalidStatus)
	}
}
