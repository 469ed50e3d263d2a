// Package handler は経費承認 API の HTTP/JSON 実装です。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
)

// Services は HTTP ハンドラが利用するユースケースです。
type Services struct {
	Expenses expense.UseCase
	Workflow workflow.UseCase
	Rules    rule.UseCase
	Users    user.UseCase
}

// NewRouter は /api/v1 配下のルートを登録した gin.Engine を返します。
func NewRouter(svc Services, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(logger), RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	expenses := &expenseHandler{expenses: svc.Expenses, workflow: svc.Workflow}
	api.POST("/expenses", expenses.create)
	api.GET("/expenses", expenses.list)
	api.GET("/expenses/stats", expenses.stats)
	api.GET("/expenses/:id", expenses.get)
	api.PATCH("/expenses/:id", expenses.update)
	api.DELETE("/expenses/:id", expenses.delete)
	api.POST("/expenses/:id/submit", expenses.submit)
	api.POST("/expenses/:id/approve", expenses.approve)
	api.POST("/expenses/:id/reject", expenses.reject)
	api.GET("/approvals/pending", expenses.pending)

	rules := &ruleHandler{rules: svc.Rules}
	api.POST("/rules", rules.create)
	api.GET("/rules", rules.list)
	api.GET("/rules/:id", rules.get)
	api.PATCH("/rules/:id", rules.update)
	api.DELETE("/rules/:id", rules.delete)

	users := &userHandler{users: svc.Users, rules: svc.Rules}
	api.POST("/users", users.create)
	api.GET("/users", users.list)
	api.GET("/users/:id", users.get)
	api.GET("/users/:id/rule", users.rule)
	api.PATCH("/users/:id", users.update)
	api.DELETE("/users/:id", users.deactivate)

	return r
}
