package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

type userHandler struct {
	users user.UseCase
	rules rule.UseCase
}

func (h *userHandler) create(c *gin.Context) {
	var body transport.CreateUserRequest
	if !bindJSON(c, &body) {
		return
	}
	created, err := h.users.CreateUser(c.Request.Context(), body.ToInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transport.FromUser(created))
}

func (h *userHandler) get(c *gin.Context) {
	found, err := h.users.GetUser(c.Request.Context(), user.GetUserInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromUser(found))
}

// rule はユーザーに適用される有効な承認ルールを返します。
func (h *userHandler) rule(c *gin.Context) {
	found, err := h.rules.GetRuleForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromRule(found))
}

func (h *userHandler) list(c *gin.Context) {
	in := user.ListUsersInput{PageToken: c.Query("pageToken")}

	pageSize, err := queryInt(c, "pageSize")
	if err != nil {
		writeError(c, err)
		return
	}
	in.PageSize = pageSize

	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := user.Status(raw)
		in.Status = &status
	}
	if raw := strings.ToLower(strings.TrimSpace(c.Query("role"))); raw != "" {
		role := user.Role(raw)
		in.Role = &role
	}

	result, err := h.users.ListUsers(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromUsers(result.Users, result.NextPageToken))
}

func (h *userHandler) update(c *gin.Context) {
	var body transport.UpdateUserRequest
	if !bindJSON(c, &body) {
		return
	}
	updated, err := h.users.UpdateUser(c.Request.Context(), body.ToInput(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromUser(updated))
}

func (h *userHandler) deactivate(c *gin.Context) {
	deactivated, err := h.users.DeactivateUser(c.Request.Context(), user.DeactivateUserInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transport.FromUser(deactivated))
}
