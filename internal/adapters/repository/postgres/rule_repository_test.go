package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
)

var ruleColumnNames = []string{"id", "user_id", "description", "manager_id", "is_manager_approver", "approvers", "is_sequential", "minimum_approval_percentage", "is_active", "created_at", "updated_at"}

func TestRuleRepository_FindActiveByUserID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewRuleRepository(mock)
	now := time.Now().UTC()
	approvers := []byte(`[{"id":"fin","name":"Finance","email":"fin@example.com","required":true},{"id":"cfo","name":"CFO","email":"cfo@example.com","required":false}]`)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND is_active`)).
		WithArgs("emp").
		WillReturnRows(pgxmock.NewRows(ruleColumnNames).
			AddRow("rule-1", "emp", "travel", nil, true, approvers, true, 50, true, now, now))

	got, err := repo.FindActiveByUserID(context.Background(), "emp")
	if err != nil {
		t.Fatalf("FindActiveByUserID returned error: %v", err)
	}

	if got.ID != "rule-1" || !got.IsManagerApprover || !got.IsSequential || got.MinimumApprovalPercentage != 50 {
		t.Fatalf("unexpected rule %+v", got)
	}
	if len(got.Approvers) != 2 || got.Approvers[0].UserID != "fin" || !got.Approvers[0].Required || got.Approvers[1].Required {
		t.Fatalf("unexpected approvers %+v", got.Approvers)
	}
	if got.ManagerID != nil {
		t.Fatalf("expected nil manager, got %v", *got.ManagerID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRuleRepository_FindActiveByUserID_NotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewRuleRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND is_active`)).
		WithArgs("emp").
		WillReturnRows(pgxmock.NewRows(ruleColumnNames))

	if _, err := repo.FindActiveByUserID(context.Background(), "emp"); !errors.Is(err, rule.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRuleRepository_Create_ActiveConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewRuleRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO approval_rules`)).
		WithArgs("emp", "travel", nil, false, []byte(`[{"id":"fin","name":"Finance","email":"","required":true}]`), false, 0, true, now, now).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "approval_rules_one_active_per_user"})

	_, err = repo.Create(context.Background(), &rule.Rule{
		UserID:      "emp",
		Description: "travel",
		Approvers:   []rule.Approver{{UserID: "fin", Name: "Finance", Required: true}},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if !errors.Is(err, rule.ErrActiveRuleExists) {
		t.Fatalf("expected ErrActiveRuleExists, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRuleRepository_List_WithFilters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewRuleRepository(mock)
	now := time.Now().UTC()

	query := regexp.QuoteMeta(`
          FROM approval_rules WHERE user_id = $1 AND is_active
         ORDER BY created_at DESC, id DESC
         LIMIT $2
        OFFSET $3
    `)

	mock.ExpectQuery(query).
		WithArgs("emp", 2, 0).
		WillReturnRows(pgxmock.NewRows(ruleColumnNames).
			AddRow("rule-2", "emp", "second", nil, false, []byte(`[]`), false, 0, true, now, now).
			AddRow("rule-1", "emp", "first", nil, false, []byte(`[]`), false, 0, true, now, now))

	rules, next, err := repo.List(context.Background(), rule.ListRulesFilter{UserID: "emp", ActiveOnly: true, Limit: 1})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(rules) != 1 || next != "1" {
		t.Fatalf("unexpected page: %d rules, next %q", len(rules), next)
	}
	if rules[0].Approvers != nil {
		t.Fatalf("expected nil approvers for empty document, got %+v", rules[0].Approvers)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRuleRepository_List_MalformedUserID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewRuleRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM approval_rules WHERE user_id = $1`)).
		WithArgs("not-a-uuid", 51, 0).
		WillReturnError(&pgconn.PgError{Code: invalidTextCode})

	rules, next, err := repo.List(context.Background(), rule.ListRulesFilter{UserID: "not-a-uuid", Limit: 50})
	if err != nil {
		t.Fatalf("expected empty page, got error %v", err)
	}
	if len(rules) != 0 || next != "" {
		t.Fatalf("unexpected page: %d rules, next %q", len(rules), next)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRuleRepository_Delete_NotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewRuleRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM approval_rules WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, rule.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTranslateRulePgError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want error
	}{
		{err: &pgconn.PgError{Code: uniqueViolationCode}, want: rule.ErrActiveRuleExists},
		{err: &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "approval_rules_user_id_fkey"}, want: rule.ErrInvalidUserID},
		{err: &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "approval_rules_manager_id_fkey"}, want: rule.ErrInvalidManager},
		{err: &pgconn.PgError{Code: checkViolationCode}, want: rule.ErrInvalidPercentage},
	}

	for _, tc := range cases {
		if got := translateRulePgError(tc.err); !errors.Is(got, tc.want) {
			t.Errorf("translateRulePgError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
