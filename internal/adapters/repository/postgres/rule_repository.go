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

	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	pgdb "github.com/ogurasousui/codex-expense-approval/internal/platform/db/postgres"
)

const ruleColumns = `id, user_id, description, manager_id, is_manager_approver, approvers, is_sequential, minimum_approval_percentage, is_active, created_at, updated_at`

// RuleRepository は PostgreSQL を利用した承認ルール永続化の実装です。
type RuleRepository struct {
	pool pgdb.Queryer
}

// NewRuleRepository は RuleRepository を生成します。
func NewRuleRepository(pool pgdb.Queryer) *RuleRepository {
	return &RuleRepository{pool: pool}
}

type ruleApproverJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Required bool   `json:"required"`
}

// Create はルールを新規作成します。
func (r *RuleRepository) Create(ctx context.Context, in *rule.Rule) (*rule.Rule, error) {
	approvers, err := encodeRuleApprovers(in.Approvers)
	if err != nil {
		return nil, err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO approval_rules (user_id, description, manager_id, is_manager_approver, approvers, is_sequential, minimum_approval_percentage, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING `+ruleColumns+`
    `,
		in.UserID,
		in.Description,
		nullableString(in.ManagerID),
		in.IsManagerApprover,
		approvers,
		in.IsSequential,
		in.MinimumApprovalPercentage,
		in.IsActive,
		in.CreatedAt,
		in.UpdatedAt,
	)

	created, err := scanRule(row)
	if err != nil {
		return nil, translateRulePgError(err)
	}
	return created, nil
}

// Update はルールを更新します。
func (r *RuleRepository) Update(ctx context.Context, in *rule.Rule) (*rule.Rule, error) {
	approvers, err := encodeRuleApprovers(in.Approvers)
	if err != nil {
		return nil, err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE approval_rules
           SET description = $1,
               manager_id = $2,
               is_manager_approver = $3,
               approvers = $4,
               is_sequential = $5,
               minimum_approval_percentage = $6,
               is_active = $7,
               updated_at = $8
         WHERE id = $9
        RETURNING `+ruleColumns+`
    `,
		in.Description,
		nullableString(in.ManagerID),
		in.IsManagerApprover,
		approvers,
		in.IsSequential,
		in.MinimumApprovalPercentage,
		in.IsActive,
		in.UpdatedAt,
		in.ID,
	)

	updated, err := scanRule(row)
	if err != nil {
		return nil, translateRulePgError(err)
	}
	return updated, nil
}

// Delete はルールを削除します。
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM approval_rules WHERE id = $1`, id)
	if err != nil {
		return translateRulePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

// FindByID は ID でルールを取得します。
func (r *RuleRepository) FindByID(ctx context.Context, id string) (*rule.Rule, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+ruleColumns+`
          FROM approval_rules
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanRule(row)
	if err != nil {
		return nil, translateRulePgError(err)
	}
	return found, nil
}

// FindActiveByUserID は対象ユーザーの有効なルールを取得します。
func (r *RuleRepository) FindActiveByUserID(ctx context.Context, userID string) (*rule.Rule, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+ruleColumns+`
          FROM approval_rules
         WHERE user_id = $1 AND is_active
         ORDER BY created_at DESC, id DESC
         LIMIT 1
    `, userID)

	found, err := scanRule(row)
	if err != nil {
		return nil, translateRulePgError(err)
	}
	return found, nil
}

// List はルールの一覧を取得します。
func (r *RuleRepository) List(ctx context.Context, filter rule.ListRulesFilter) ([]*rule.Rule, string, error) {
	if filter.Limit <= 0 {
		return nil, "", rule.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", rule.ErrInvalidPageToken
	}

	limitWithBuffer := filter.Limit + 1

	args := make([]any, 0, 3)
	conditions := make([]string, 0, 2)

	if strings.TrimSpace(filter.UserID) != "" {
		placeholder := "$" + strconv.Itoa(len(args)+1)
		conditions = append(conditions, "user_id = "+placeholder)
		args = append(args, filter.UserID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
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
        SELECT ` + ruleColumns + `
          FROM approval_rules` + whereClause + `
         ORDER BY created_at DESC, id DESC
         LIMIT ` + limitPlaceholder + `
        OFFSET ` + offsetPlaceholder + `
    `

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		if isInvalidText(err) {
			return []*rule.Rule{}, "", nil
		}
		return nil, "", translateRulePgError(err)
	}
	defer rows.Close()

	rules := make([]*rule.Rule, 0, filter.Limit)
	for rows.Next() {
		found, err := scanRule(rows)
		if err != nil {
			return nil, "", translateRulePgError(err)
		}
		rules = append(rules, found)
	}
	if err := rows.Err(); err != nil {
		if isInvalidText(err) {
			return []*rule.Rule{}, "", nil
		}
		return nil, "", translateRulePgError(err)
	}

	var nextToken string
	if len(rules) == limitWithBuffer {
		rules = rules[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}

	return rules, nextToken, nil
}

func scanRule(row pgx.Row) (*rule.Rule, error) {
	var (
		id, userID, description string
		managerID               sql.NullString
		isManagerApprover       bool
		approversRaw            []byte
		isSequential            bool
		percentage              int
		isActive                bool
		createdAt, updatedAt    time.Time
	)

	if err := row.Scan(
		&id,
		&userID,
		&description,
		&managerID,
		&isManagerApprover,
		&approversRaw,
		&isSequential,
		&percentage,
		&isActive,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rule.ErrRuleNotFound
		}
		return nil, err
	}

	approvers, err := decodeRuleApprovers(approversRaw)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", id, err)
	}

	return &rule.Rule{
		ID:                        id,
		UserID:                    userID,
		Description:               description,
		ManagerID:                 stringPtr(managerID),
		IsManagerApprover:         isManagerApprover,
		Approvers:                 approvers,
		IsSequential:              isSequential,
		MinimumApprovalPercentage: percentage,
		IsActive:                  isActive,
		CreatedAt:                 createdAt,
		UpdatedAt:                 updatedAt,
	}, nil
}

func encodeRuleApprovers(approvers []rule.Approver) ([]byte, error) {
	out := make([]ruleApproverJSON, 0, len(approvers))
	for _, a := range approvers {
		out = append(out, ruleApproverJSON{ID: a.UserID, Name: a.Name, Email: a.Email, Role: a.Role, Required: a.Required})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode approvers: %w", err)
	}
	return b, nil
}

func decodeRuleApprovers(raw []byte) ([]rule.Approver, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in []ruleApproverJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode approvers: %w", err)
	}
	if len(in) == 0 {
		return nil, nil
	}
	approvers := make([]rule.Approver, 0, len(in))
	for _, a := range in {
		approvers = append(approvers, rule.Approver{UserID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role, Required: a.Required})
	}
	return approvers, nil
}

func translateRulePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return rule.ErrRuleNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return rule.ErrActiveRuleExists
		case foreignKeyViolationCode:
			if pgErr.ConstraintName == "approval_rules_manager_id_fkey" {
				return rule.ErrInvalidManager
			}
			return rule.ErrInvalidUserID
		case checkViolationCode:
			return rule.ErrInvalidPercentage
		case invalidTextCode:
			return rule.ErrRuleNotFound
		}
	}
	return err
}
