package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
)

type expenseHandler struct {
	expenses expense.UseCase
	workflow workflow.UseCase
}

func (h *expenseHandler) create(c *gin.Context) {
	var body transport.CreateExpenseRequest
	if !bindJSON(c, &body) {
		return
	}
	in, err := body.ToInput()
	if err != nil {
		writeError(c, err)
		return
	}

	created, err := h.expenses.CreateExpense(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transport.FromExpense(created))
}

func (h *expenseHandler) get(c *gin.Context) {
	found, err := h.expenses.GetExpense(c.Request.Context(), expense.GetExpenseInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpense(found))
}

func (h *expenseHandler) list(c *gin.Context) {
	statusFilter, err := transport.ParseStatus(c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	pageSize, err := queryInt(c, "pageSize")
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.expenses.ListExpenses(c.Request.Context(), expense.ListExpensesInput{
		EmployeeID: c.Query("employeeId"),
		Status:     statusFilter,
		PageSize:   pageSize,
		PageToken:  c.Query("pageToken"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpenses(result.Expenses, result.NextPageToken))
}

func (h *expenseHandler) update(c *gin.Context) {
	var body transport.UpdateExpenseRequest
	if !bindJSON(c, &body) {
		return
	}
	in, err := body.ToInput(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	updated, err := h.expenses.UpdateExpense(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpense(updated))
}

func (h *expenseHandler) delete(c *gin.Context) {
	if err := h.expenses.DeleteExpense(c.Request.Context(), expense.DeleteExpenseInput{ID: c.Param("id")}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *expenseHandler) submit(c *gin.Context) {
	submitted, err := h.workflow.SubmitExpense(c.Request.Context(), workflow.SubmitExpenseInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpense(submitted))
}

func (h *expenseHandler) approve(c *gin.Context) {
	var body transport.DecisionRequest
	if !bindJSON(c, &body) {
		return
	}
	approved, err := h.workflow.ApproveExpense(c.Request.Context(), body.ToInput(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpense(approved))
}

func (h *expenseHandler) reject(c *gin.Context) {
	var body transport.DecisionRequest
	if !bindJSON(c, &body) {
		return
	}
	rejected, err := h.workflow.RejectExpense(c.Request.Context(), body.ToInput(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpense(rejected))
}

func (h *expenseHandler) pending(c *gin.Context) {
	pending, err := h.expenses.ListPendingApprovals(c.Request.Context(), expense.ListPendingApprovalsInput{ApproverID: c.Query("approverId")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromExpenses(pending, ""))
}

func (h *expenseHandler) stats(c *gin.Context) {
	stats, err := h.expenses.Stats(c.Request.Context(), expense.StatsInput{
		EmployeeID: c.Query("employeeId"),
		Currency:   c.Query("currency"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromStats(stats))
}
