package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	pgdb "github.com/ogurasousui/codex-expense-approval/internal/platform/db/postgres"
)

const expenseColumns = `id, employee_id, employee_name, employee_email, description, category, amount::text, currency,
               expense_date, paid_by, remarks, status, rule_id, approvers, is_sequential, minimum_approval_percentage,
               approval_history, submitted_at, approved_at, rejected_at, created_at, updated_at, version`

// ExpenseRepository は PostgreSQL を利用した経費永続化の実装です。
type ExpenseRepository struct {
	pool pgdb.Queryer
}

// NewExpenseRepository は ExpenseRepository を生成します。
func NewExpenseRepository(pool pgdb.Queryer) *ExpenseRepository {
	return &ExpenseRepository{pool: pool}
}

type expenseApproverJSON struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	Required  bool       `json:"required"`
	Status    string     `json:"status"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

type historyJSON struct {
	ApproverID string    `json:"approverId,omitempty"`
	Approver   string    `json:"approver"`
	Action     string    `json:"action"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Create は経費を新規作成します。
func (r *ExpenseRepository) Create(ctx context.Context, e *expense.Expense) (*expense.Expense, error) {
	approvers, history, err := encodeExpenseDocuments(e)
	if err != nil {
		return nil, err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO expenses (employee_id, employee_name, employee_email, description, category, amount, currency,
                              expense_date, paid_by, remarks, status, rule_id, approvers, is_sequential,
                              minimum_approval_percentage, approval_history, submitted_at, approved_at, rejected_at,
                              created_at, updated_at, version)
        VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1)
        RETURNING `+expenseColumns+`
    `,
		e.EmployeeID,
		e.EmployeeName,
		e.EmployeeEmail,
		e.Description,
		e.Category,
		e.Amount.String(),
		e.Currency,
		dateOnly(e.ExpenseDate),
		e.PaidBy,
		e.Remarks,
		string(e.Status),
		nullableID(e.RuleID),
		approvers,
		e.IsSequential,
		e.MinimumApprovalPercentage,
		history,
		e.SubmittedAt,
		e.ApprovedAt,
		e.RejectedAt,
		e.CreatedAt,
		e.UpdatedAt,
	)

	created, err := scanExpense(row)
	if err != nil {
		return nil, translateExpensePgError(err)
	}
	return created, nil
}

// Update は保存済みの版が e.Version と一致する場合のみ更新し、版を 1 進めます。
func (r *ExpenseRepository) Update(ctx context.Context, e *expense.Expense) (*expense.Expense, error) {
	approvers, history, err := encodeExpenseDocuments(e)
	if err != nil {
		return nil, err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE expenses
           SET description = $1,
               category = $2,
               amount = $3::numeric,
               currency = $4,
               expense_date = $5,
               paid_by = $6,
               remarks = $7,
               status = $8,
               rule_id = $9,
               approvers = $10,
               is_sequential = $11,
               minimum_approval_percentage = $12,
               approval_history = $13,
               submitted_at = $14,
               approved_at = $15,
               rejected_at = $16,
               updated_at = $17,
               version = version + 1
         WHERE id = $18 AND version = $19
        RETURNING `+expenseColumns+`
    `,
		e.Description,
		e.Category,
		e.Amount.String(),
		e.Currency,
		dateOnly(e.ExpenseDate),
		e.PaidBy,
		e.Remarks,
		string(e.Status),
		nullableID(e.RuleID),
		approvers,
		e.IsSequential,
		e.MinimumApprovalPercentage,
		history,
		e.SubmittedAt,
		e.ApprovedAt,
		e.RejectedAt,
		e.UpdatedAt,
		e.ID,
		e.Version,
	)

	updated, err := scanExpense(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, expense.ErrExpenseNotFound) {
		return nil, translateExpensePgError(err)
	}

	var exists bool
	if err := exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM expenses WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return nil, translateExpensePgError(err)
	}
	if exists {
		return nil, expense.ErrStaleExpense
	}
	return nil, expense.ErrExpenseNotFound
}

// Delete は経費を削除します。
func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return translateExpensePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return expense.ErrExpenseNotFound
	}
	return nil
}

// FindByID は ID で経費を取得します。
func (r *ExpenseRepository) FindByID(ctx context.Context, id string) (*expense.Expense, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+expenseColumns+`
          FROM expenses
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanExpense(row)
	if err != nil {
		return nil, translateExpensePgError(err)
	}
	return found, nil
}

// List は経費の一覧を取得します。
func (r *ExpenseRepository) List(ctx context.Context, filter expense.ListExpensesFilter) ([]*expense.Expense, string, error) {
	if filter.Limit <= 0 {
		return nil, "", expense.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", expense.ErrInvalidPageToken
	}

	limitWithBuffer := filter.Limit + 1

	args := make([]any, 0, 4)
	conditions := make([]string, 0, 2)

	if strings.TrimSpace(filter.EmployeeID) != "" {
		placeholder := "$" + strconv.Itoa(len(args)+1)
		conditions = append(conditions, "employee_id = "+placeholder)
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != nil {
		placeholder := "$" + strconv.Itoa(len(args)+1)
		conditions = append(conditions, "status = "+placeholder)
		args = append(args, string(*filter.Status))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limitPlaceholder := "$" + strconv.Itoa(len(args)+1)
	args = append(args, limitWithBuffer)
	offsetPlaceholder := "$" + strconv.Itoa(len(args)+1)
	args = append(args, filter.Offset)

	query := `
        SELECT ` + expenseColumns + `
          FROM expenses` + whereClause + `
         ORDER BY created_at DESC, id DESC
         LIMIT ` + limitPlaceholder + `
        OFFSET ` + offsetPlaceholder + `
    `

	expenses, err := r.query(ctx, query, filter.Limit, args...)
	if err != nil {
		return nil, "", err
	}

	var nextToken string
	if len(expenses) == limitWithBuffer {
		expenses = expenses[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}

	return expenses, nextToken, nil
}

// ListSubmittedByApprover は approverID が未判断の承認者として含まれる提出済み経費を返します。
func (r *ExpenseRepository) ListSubmittedByApprover(ctx context.Context, approverID string) ([]*expense.Expense, error) {
	containment, err := json.Marshal([]map[string]string{{"id": approverID, "status": string(expense.ApproverPending)}})
	if err != nil {
		return nil, fmt.Errorf("encode approver filter: %w", err)
	}

	return r.query(ctx, `
        SELECT `+expenseColumns+`
          FROM expenses
         WHERE status = $1 AND approvers @> $2::jsonb
         ORDER BY created_at DESC, id DESC
    `, 0, string(expense.StatusSubmitted), containment)
}

// query は一覧系の問い合わせを実行します。UUID として解釈できない絞り込み値には
// 一致する行が存在しないため、22P02 は空の一覧として扱います。
func (r *ExpenseRepository) query(ctx context.Context, query string, capacity int, args ...any) ([]*expense.Expense, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		if isInvalidText(err) {
			return []*expense.Expense{}, nil
		}
		return nil, translateExpensePgError(err)
	}
	defer rows.Close()

	expenses := make([]*expense.Expense, 0, capacity)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, translateExpensePgError(err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		if isInvalidText(err) {
			return []*expense.Expense{}, nil
		}
		return nil, translateExpensePgError(err)
	}
	return expenses, nil
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextCode
}

func scanExpense(row pgx.Row) (*expense.Expense, error) {
	var (
		e                                   expense.Expense
		amount                              string
		status                              string
		ruleID                              sql.NullString
		approversRaw, historyRaw            []byte
		submittedAt, approvedAt, rejectedAt sql.NullTime
	)

	if err := row.Scan(
		&e.ID,
		&e.EmployeeID,
		&e.EmployeeName,
		&e.EmployeeEmail,
		&e.Description,
		&e.Category,
		&amount,
		&e.Currency,
		&e.ExpenseDate,
		&e.PaidBy,
		&e.Remarks,
		&status,
		&ruleID,
		&approversRaw,
		&e.IsSequential,
		&e.MinimumApprovalPercentage,
		&historyRaw,
		&submittedAt,
		&approvedAt,
		&rejectedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, expense.ErrExpenseNotFound
		}
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("expense %s amount %q: %w", e.ID, amount, err)
	}
	e.Amount = value
	e.Status = expense.Status(status)
	e.RuleID = ruleID.String
	e.ExpenseDate = dateOnly(e.ExpenseDate)
	e.SubmittedAt = timePtr(submittedAt)
	e.ApprovedAt = timePtr(approvedAt)
	e.RejectedAt = timePtr(rejectedAt)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	if e.Approvers, err = decodeExpenseApprovers(approversRaw); err != nil {
		return nil, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	if e.ApprovalHistory, err = decodeHistory(historyRaw); err != nil {
		return nil, fmt.Errorf("expense %s: %w", e.ID, err)
	}

	return &e, nil
}

func encodeExpenseDocuments(e *expense.Expense) ([]byte, []byte, error) {
	approvers := make([]expenseApproverJSON, 0, len(e.Approvers))
	for _, a := range e.Approvers {
		approvers = append(approvers, expenseApproverJSON{
			ID:        a.UserID,
			Name:      a.Name,
			Email:     a.Email,
			Role:      a.Role,
			Required:  a.Required,
			Status:    string(a.Status),
			DecidedAt: a.DecidedAt,
		})
	}
	history := make([]historyJSON, 0, len(e.ApprovalHistory))
	for _, h := range e.ApprovalHistory {
		history = append(history, historyJSON{
			ApproverID: h.ApproverID,
			Approver:   h.Approver,
			Action:     string(h.Action),
			Note:       h.Note,
			Timestamp:  h.Timestamp,
		})
	}

	approversRaw, err := json.Marshal(approvers)
	if err != nil {
		return nil, nil, fmt.Errorf("encode approvers: %w", err)
	}
	historyRaw, err := json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("encode approval history: %w", err)
	}
	return approversRaw, historyRaw, nil
}

func decodeExpenseApprovers(raw []byte) ([]expense.Approver, error) {
	var in []expenseApproverJSON
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode approvers: %w", err)
		}
	}
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]expense.Approver, 0, len(in))
	for _, a := range in {
		out = append(out, expense.Approver{
			UserID:    a.ID,
			Name:      a.Name,
			Email:     a.Email,
			Role:      a.Role,
			Required:  a.Required,
			Status:    expense.ApproverStatus(a.Status),
			DecidedAt: a.DecidedAt,
		})
	}
	return out, nil
}

func decodeHistory(raw []byte) ([]expense.HistoryEntry, error) {
	var in []historyJSON
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode approval history: %w", err)
		}
	}
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]expense.HistoryEntry, 0, len(in))
	for _, h := range in {
		out = append(out, expense.HistoryEntry{
			ApproverID: h.ApproverID,
			Approver:   h.Approver,
			Action:     expense.Action(h.Action),
			Note:       h.Note,
			Timestamp:  h.Timestamp,
		})
	}
	return out, nil
}

func translateExpensePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return expense.ErrExpenseNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case foreignKeyViolationCode:
			return expense.ErrInvalidEmployee
		case checkViolationCode:
			switch pgErr.ConstraintName {
			case "expenses_amount_check":
				return expense.ErrInvalidAmount
			case "expenses_status_check":
				return expense.ErrInvalidStatus
			}
			return err
		case invalidTextCode:
			return expense.ErrExpenseNotFound
		}
	}
	return err
}

func nullableID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
