package handler

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError はエラーを {"code","message"} の形で返します。
func writeError(c *gin.Context, err error) {
	problem := transport.Classify(err)
	message := err.Error()
	if problem.Kind == transport.KindInternal {
		_ = c.Error(err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(problem.HTTPStatus, errorBody{Code: string(problem.Kind), Message: message})
}

// bindJSON は本文を v に読み込み、失敗時は検証エラーを返します。
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, fmt.Errorf("%w: %v", transport.ErrInvalidRequest, err))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", transport.ErrInvalidRequest, key, raw)
	}
	return v, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s %q", transport.ErrInvalidRequest, key, raw)
	}
	return v, nil
}
