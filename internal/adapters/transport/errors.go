// Package transport は gRPC と HTTP で共有する JSON 表現とエラー分類を提供します。
package transport

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/ogurasousui/codex-expense-approval/internal/core/approval"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/currency"
)

// ErrInvalidRequest はリクエスト本文を解釈できない場合に返却されます。
var ErrInvalidRequest = errors.New("invalid request body")

// Kind はクライアントに通知するエラー種別です。
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindApproverNotEligible Kind = "APPROVER_NOT_ELIGIBLE"
	KindOutOfSequence       Kind = "OUT_OF_SEQUENCE"
	KindValidation          Kind = "VALIDATION"
	KindConflict            Kind = "CONFLICT"
	KindInternal            Kind = "INTERNAL"
)

// Problem はエラーの種別と各トランスポートでの表現です。
type Problem struct {
	Kind       Kind
	Code       codes.Code
	HTTPStatus int
}

var validationErrors = []error{
	ErrInvalidRequest,
	expense.ErrInvalidID,
	expense.ErrInvalidEmployee,
	expense.ErrInvalidDescription,
	expense.ErrInvalidCategory,
	expense.ErrInvalidAmount,
	expense.ErrInvalidCurrency,
	expense.ErrUnsupportedCurrency,
	expense.ErrInvalidExpenseDate,
	expense.ErrInvalidStatus,
	expense.ErrInvalidApprover,
	expense.ErrInvalidPageSize,
	expense.ErrInvalidPageToken,
	rule.ErrInvalidID,
	rule.ErrInvalidUserID,
	rule.ErrInvalidDescription,
	rule.ErrInvalidManager,
	rule.ErrInvalidApprover,
	rule.ErrDuplicateApprover,
	rule.ErrInvalidPercentage,
	rule.ErrInvalidPageSize,
	rule.ErrInvalidPageToken,
	user.ErrInvalidEmail,
	user.ErrInvalidName,
	user.ErrInvalidStatus,
	user.ErrInvalidRole,
	user.ErrInvalidManager,
	user.ErrInvalidID,
	user.ErrInvalidPageSize,
	user.ErrInvalidPageToken,
	approval.ErrInvalidPolicy,
	currency.ErrUnsupportedCurrency,
}

// Classify は err をエラー種別に分類します。該当しないものは内部エラーです。
func Classify(err error) Problem {
	switch {
	case errors.Is(err, expense.ErrExpenseNotFound),
		errors.Is(err, rule.ErrRuleNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return Problem{Kind: KindNotFound, Code: codes.NotFound, HTTPStatus: http.StatusNotFound}
	case errors.Is(err, approval.ErrInvalidTransition):
		return Problem{Kind: KindInvalidTransition, Code: codes.FailedPrecondition, HTTPStatus: http.StatusConflict}
	case errors.Is(err, approval.ErrApproverNotEligible):
		return Problem{Kind: KindApproverNotEligible, Code: codes.PermissionDenied, HTTPStatus: http.StatusForbidden}
	case errors.Is(err, approval.ErrOutOfSequence):
		return Problem{Kind: KindOutOfSequence, Code: codes.FailedPrecondition, HTTPStatus: http.StatusConflict}
	case errors.Is(err, expense.ErrStaleExpense):
		return Problem{Kind: KindConflict, Code: codes.Aborted, HTTPStatus: http.StatusConflict}
	case errors.Is(err, rule.ErrActiveRuleExists), errors.Is(err, user.ErrEmailAlreadyExists):
		return Problem{Kind: KindConflict, Code: codes.AlreadyExists, HTTPStatus: http.StatusConflict}
	case errors.Is(err, workflow.ErrManagerUnresolved):
		return Problem{Kind: KindConflict, Code: codes.FailedPrecondition, HTTPStatus: http.StatusConflict}
	}

	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return Problem{Kind: KindValidation, Code: codes.InvalidArgument, HTTPStatus: http.StatusBadRequest}
		}
	}

	return Problem{Kind: KindInternal, Code: codes.Internal, HTTPStatus: http.StatusInternalServerError}
}
