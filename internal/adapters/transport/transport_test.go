package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"

	"github.com/ogurasousui/codex-expense-approval/internal/core/approval"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/currency"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		kind   Kind
		code   codes.Code
		status int
	}{
		{name: "expense not found", err: fmt.Errorf("find: %w", expense.ErrExpenseNotFound), kind: KindNotFound, code: codes.NotFound, status: http.StatusNotFound},
		{name: "user not found", err: user.ErrUserNotFound, kind: KindNotFound, code: codes.NotFound, status: http.StatusNotFound},
		{name: "transition", err: approval.ErrInvalidTransition, kind: KindInvalidTransition, code: codes.FailedPrecondition, status: http.StatusConflict},
		{name: "not eligible", err: approval.ErrApproverNotEligible, kind: KindApproverNotEligible, code: codes.PermissionDenied, status: http.StatusForbidden},
		{name: "sequence", err: approval.ErrOutOfSequence, kind: KindOutOfSequence, code: codes.FailedPrecondition, status: http.StatusConflict},
		{name: "stale", err: fmt.Errorf("approve: %w", expense.ErrStaleExpense), kind: KindConflict, code: codes.Aborted, status: http.StatusConflict},
		{name: "active rule", err: rule.ErrActiveRuleExists, kind: KindConflict, code: codes.AlreadyExists, status: http.StatusConflict},
		{name: "manager", err: workflow.ErrManagerUnresolved, kind: KindConflict, code: codes.FailedPrecondition, status: http.StatusConflict},
		{name: "amount", err: expense.ErrInvalidAmount, kind: KindValidation, code: codes.InvalidArgument, status: http.StatusBadRequest},
		{name: "unsupported currency", err: fmt.Errorf("currency XYZ: %w", expense.ErrUnsupportedCurrency), kind: KindValidation, code: codes.InvalidArgument, status: http.StatusBadRequest},
		{name: "currency", err: currency.ErrUnsupportedCurrency, kind: KindValidation, code: codes.InvalidArgument, status: http.StatusBadRequest},
		{name: "request", err: fmt.Errorf("%w: eof", ErrInvalidRequest), kind: KindValidation, code: codes.InvalidArgument, status: http.StatusBadRequest},
		{name: "unknown", err: errors.New("boom"), kind: KindInternal, code: codes.Internal, status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		got := Classify(tc.err)
		if got.Kind != tc.kind || got.Code != tc.code || got.HTTPStatus != tc.status {
			t.Errorf("%s: got %+v", tc.name, got)
		}
	}
}

func TestOptionalString(t *testing.T) {
	t.Parallel()

	var absent UpdateRuleRequest
	if err := json.Unmarshal([]byte(`{"description":"x"}`), &absent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if absent.ManagerID.Set {
		t.Fatal("expected absent managerId to be unset")
	}

	var cleared UpdateRuleRequest
	if err := json.Unmarshal([]byte(`{"managerId":null}`), &cleared); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	in := cleared.ToInput("rule-1")
	if !in.ManagerIDSet || in.ManagerID != nil {
		t.Fatalf("expected explicit clear, got set=%v value=%v", in.ManagerIDSet, in.ManagerID)
	}

	var assigned UpdateUserRequest
	if err := json.Unmarshal([]byte(`{"managerId":"u-9","role":" Manager "}`), &assigned); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	uin := assigned.ToInput("u-1")
	if !uin.ManagerIDSet || uin.ManagerID == nil || *uin.ManagerID != "u-9" {
		t.Fatalf("expected manager assignment, got %+v", uin)
	}
	if uin.Role == nil || *uin.Role != user.RoleManager {
		t.Fatalf("expected normalized role, got %v", uin.Role)
	}

	var bad OptionalString
	if err := json.Unmarshal([]byte(`12`), &bad); err == nil {
		t.Fatal("expected error for non-string value")
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-03-01", "2026-03-01T22:30:00Z", " 2026-03-01 "} {
		got, err := ParseDate(raw)
		if err != nil {
			t.Fatalf("ParseDate(%q) error: %v", raw, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", raw, got, want)
		}
	}

	if got, err := ParseDate(""); err != nil || !got.IsZero() {
		t.Fatalf("expected zero time for empty input, got %v %v", got, err)
	}
	if _, err := ParseDate("03/01/2026"); !errors.Is(err, expense.ErrInvalidExpenseDate) {
		t.Fatalf("expected ErrInvalidExpenseDate, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	if got, err := ParseStatus(""); err != nil || got != nil {
		t.Fatalf("expected nil filter, got %v %v", got, err)
	}
	got, err := ParseStatus("Submitted")
	if err != nil || got == nil || *got != expense.StatusSubmitted {
		t.Fatalf("expected submitted, got %v %v", got, err)
	}
	if _, err := ParseStatus("paid"); !errors.Is(err, expense.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestFromExpense(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e := &expense.Expense{
		ID:           "exp-1",
		EmployeeID:   "emp",
		Amount:       decimal.RequireFromString("10.50"),
		Currency:     "USD",
		ExpenseDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:       expense.StatusSubmitted,
		IsSequential: true,
		Approvers: []expense.Approver{
			{UserID: "a", Status: expense.ApproverApproved, DecidedAt: &now},
			{UserID: "b", Status: expense.ApproverPending},
			{UserID: "c", Status: expense.ApproverPending},
		},
		ApprovalHistory: []expense.HistoryEntry{{ApproverID: "a", Approver: "A", Action: expense.ActionApproved, Timestamp: now}},
		Version:         3,
	}

	got := FromExpense(e)
	if got.Amount != "10.5" || got.ExpenseDate != "2026-03-01" {
		t.Fatalf("unexpected amount/date: %s %s", got.Amount, got.ExpenseDate)
	}
	if got.Progress != (Progress{Approved: 1, Total: 3}) {
		t.Fatalf("unexpected progress: %+v", got.Progress)
	}
	if len(got.AwaitingApproverIDs) != 1 || got.AwaitingApproverIDs[0] != "b" {
		t.Fatalf("expected only next sequential approver, got %v", got.AwaitingApproverIDs)
	}
	if len(got.ApprovalHistory) != 1 || got.ApprovalHistory[0].Action != "approved" {
		t.Fatalf("unexpected history: %+v", got.ApprovalHistory)
	}

	e.IsSequential = false
	if parallel := FromExpense(e); len(parallel.AwaitingApproverIDs) != 2 {
		t.Fatalf("expected both pending approvers, got %v", parallel.AwaitingApproverIDs)
	}

	e.Status = expense.StatusApproved
	if done := FromExpense(e); done.AwaitingApproverIDs == nil || len(done.AwaitingApproverIDs) != 0 {
		t.Fatalf("expected empty awaiting list for terminal expense, got %v", done.AwaitingApproverIDs)
	}
}

func TestFromStats(t *testing.T) {
	t.Parallel()

	got := FromStats(&expense.Stats{Currency: "EUR", TotalExpenses: 2, TotalAmount: decimal.RequireFromString("12.5"), ApprovedCount: 1})
	if got.TotalAmount != "12.50" || got.ApprovedAmount != "0.00" || got.Currency != "EUR" {
		t.Fatalf("unexpected stats: %+v", got)
	}
}
