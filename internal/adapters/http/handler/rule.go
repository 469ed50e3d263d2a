package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
)

type ruleHandler struct {
	rules rule.UseCase
}

func (h *ruleHandler) create(c *gin.Context) {
	var body transport.CreateRuleRequest
	if !bindJSON(c, &body) {
		return
	}
	created, err := h.rules.CreateApprovalRule(c.Request.Context(), body.ToInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transport.FromRule(created))
}

func (h *ruleHandler) get(c *gin.Context) {
	found, err := h.rules.GetApprovalRule(c.Request.Context(), rule.GetRuleInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromRule(found))
}

func (h *ruleHandler) list(c *gin.Context) {
	activeOnly, err := queryBool(c, "activeOnly")
	if err != nil {
		writeError(c, err)
		return
	}
	pageSize, err := queryInt(c, "pageSize")
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.rules.ListApprovalRules(c.Request.Context(), rule.ListRulesInput{
		UserID:     c.Query("userId"),
		ActiveOnly: activeOnly,
		PageSize:   pageSize,
		PageToken:  c.Query("pageToken"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromRules(result.Rules, result.NextPageToken))
}

func (h *ruleHandler) update(c *gin.Context) {
	var body transport.UpdateRuleRequest
	if !bindJSON(c, &body) {
		return
	}
	updated, err := h.rules.UpdateApprovalRule(c.Request.Context(), body.ToInput(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromRule(updated))
}

func (h *ruleHandler) delete(c *gin.Context) {
	if err := h.rules.DeleteApprovalRule(c.Request.Context(), rule.DeleteRuleInput{ID: c.Param("id")}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
