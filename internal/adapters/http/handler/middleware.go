package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger はリクエストのメソッド、パス、ステータス、所要時間を記録します。
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// Recovery は panic を 500 応答に変換します。
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("http handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
	})
}
