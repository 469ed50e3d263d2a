package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
)

// ExpenseGrpcHandler は ExpenseService の gRPC 実装です。
type ExpenseGrpcHandler struct {
	expenses expense.UseCase
	workflow workflow.UseCase
	rules    rule.UseCase
}

var _ ExpenseServiceServer = (*ExpenseGrpcHandler)(nil)

// NewExpenseGrpcHandler は ExpenseGrpcHandler を生成します。
func NewExpenseGrpcHandler(expenses expense.UseCase, wf workflow.UseCase, rules rule.UseCase) *ExpenseGrpcHandler {
	return &ExpenseGrpcHandler{expenses: expenses, workflow: wf, rules: rules}
}

type idRequest struct {
	ID string `json:"id"`
}

type listExpensesRequest struct {
	EmployeeID string `json:"employeeId"`
	Status     string `json:"status"`
	PageSize   int    `json:"pageSize"`
	PageToken  string `json:"pageToken"`
}

type decisionRequest struct {
	ID string `json:"id"`
	transport.DecisionRequest
}

type pendingRequest struct {
	ApproverID string `json:"approverId"`
}

type statsRequest struct {
	EmployeeID string `json:"employeeId"`
	Currency   string `json:"currency"`
}

type updateRuleRequest struct {
	ID string `json:"id"`
	transport.UpdateRuleRequest
}

// CreateExpense は下書きの経費を作成します。
func (h *ExpenseGrpcHandler) CreateExpense(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body transport.CreateExpenseRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	in, err := body.ToInput()
	if err != nil {
		return nil, toStatusError(err)
	}

	created, err := h.expenses.CreateExpense(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpense(created))
}

// GetExpense は経費を取得します。
func (h *ExpenseGrpcHandler) GetExpense(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body idRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	found, err := h.expenses.GetExpense(ctx, expense.GetExpenseInput{ID: body.ID})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpense(found))
}

// ListExpenses は経費の一覧を取得します。
func (h *ExpenseGrpcHandler) ListExpenses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body listExpensesRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	statusFilter, err := transport.ParseStatus(body.Status)
	if err != nil {
		return nil, toStatusError(err)
	}

	result, err := h.expenses.ListExpenses(ctx, expense.ListExpensesInput{
		EmployeeID: body.EmployeeID,
		Status:     statusFilter,
		PageSize:   body.PageSize,
		PageToken:  body.PageToken,
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpenses(result.Expenses, result.NextPageToken))
}

// SubmitExpense は下書きを提出します。
func (h *ExpenseGrpcHandler) SubmitExpense(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body idRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	submitted, err := h.workflow.SubmitExpense(ctx, workflow.SubmitExpenseInput{ID: body.ID})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpense(submitted))
}

// ApproveExpense は承認を記録します。
func (h *ExpenseGrpcHandler) ApproveExpense(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body decisionRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	approved, err := h.workflow.ApproveExpense(ctx, body.ToInput(body.ID))
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpense(approved))
}

// RejectExpense は却下を記録します。
func (h *ExpenseGrpcHandler) RejectExpense(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body decisionRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	rejected, err := h.workflow.RejectExpense(ctx, body.ToInput(body.ID))
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpense(rejected))
}

// ListPendingApprovals は承認者が現在判断できる経費を返します。
func (h *ExpenseGrpcHandler) ListPendingApprovals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body pendingRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	pending, err := h.expenses.ListPendingApprovals(ctx, expense.ListPendingApprovalsInput{ApproverID: body.ApproverID})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromExpenses(pending, ""))
}

// GetExpenseStats は経費の集計を返します。
func (h *ExpenseGrpcHandler) GetExpenseStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body statsRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	stats, err := h.expenses.Stats(ctx, expense.StatsInput{EmployeeID: body.EmployeeID, Currency: body.Currency})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromStats(stats))
}

// CreateApprovalRule は承認ルールを作成します。
func (h *ExpenseGrpcHandler) CreateApprovalRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body transport.CreateRuleRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	created, err := h.rules.CreateApprovalRule(ctx, body.ToInput())
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromRule(created))
}

// UpdateApprovalRule は承認ルールを更新します。
func (h *ExpenseGrpcHandler) UpdateApprovalRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body updateRuleRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	updated, err := h.rules.UpdateApprovalRule(ctx, body.ToInput(body.ID))
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromRule(updated))
}

// GetApprovalRule は承認ルールを取得します。
func (h *ExpenseGrpcHandler) GetApprovalRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body idRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	found, err := h.rules.GetApprovalRule(ctx, rule.GetRuleInput{ID: body.ID})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromRule(found))
}

// decode は Struct を JSON 経由で v に詰め替えます。
func decode(req *structpb.Struct, v any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	b, err := protojson.Marshal(req)
	if err != nil {
		return toStatusError(fmt.Errorf("%w: %v", transport.ErrInvalidRequest, err))
	}
	if err := json.Unmarshal(b, v); err != nil {
		return toStatusError(fmt.Errorf("%w: %v", transport.ErrInvalidRequest, err))
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
